package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LLM-Oracle-Chain/internal/api"
	"LLM-Oracle-Chain/internal/config"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/pkg/logger"
)

// main 启动本地账本节点并部署请求登记程序。
func main() {
	configPath := flag.String("config", "", "配置文件路径，默认读取 ORACLE_CONFIG")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("ledgerd 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("ledgerd")

	bankOpts := []ledger.BankOption{ledger.WithLogger(logger.Named("bank"))}
	if cfg.Node.BlockhashWindow > 0 {
		bankOpts = append(bankOpts, ledger.WithBlockhashWindow(cfg.Node.BlockhashWindow))
	}
	bank := ledger.NewBank(bankOpts...)

	program, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	bank.Deploy(program)

	for _, key := range fundTargets(cfg, program) {
		if _, err := bank.Airdrop(key, cfg.Node.FundLamports); err != nil {
			return fmt.Errorf("为 %s 注资失败: %w", key, err)
		}
		log.Info("账户已注资", "account", key.String(), "lamports", cfg.Node.FundLamports)
	}

	rpcServer, _, err := ledger.NewRPCServer(bank)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	server := api.NewServer(api.Config{
		RPCAddress:      cfg.Node.RPCAddress,
		WSAddress:       cfg.Node.WSAddress,
		AllowOrigins:    cfg.Node.AllowOrigins,
		ShutdownTimeout: time.Duration(cfg.Node.ShutdownSeconds) * time.Second,
	}, rpcServer, bank)

	log.Info("账本节点启动",
		"rpc_address", cfg.Node.RPCAddress,
		"ws_address", cfg.Node.WSAddress,
		"program_id", program.ID().String(),
		"admin", program.Admin().String(),
		"oracle", program.Oracle().String(),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("账本节点已停止")
	return nil
}

func buildRegistry(cfg *config.Config) (*registry.Program, error) {
	var opts []registry.Option
	if cfg.Relay.ProgramID != "" {
		id, err := ledger.ParsePubkey(cfg.Relay.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("解析 program_id 失败: %w", err)
		}
		opts = append(opts, registry.WithProgramID(id))
	}
	if cfg.Node.Admin != "" {
		admin, err := ledger.ParsePubkey(cfg.Node.Admin)
		if err != nil {
			return nil, fmt.Errorf("解析 admin 失败: %w", err)
		}
		opts = append(opts, registry.WithAdmin(admin))
	}
	if cfg.Node.Oracle != "" {
		oracle, err := ledger.ParsePubkey(cfg.Node.Oracle)
		if err != nil {
			return nil, fmt.Errorf("解析 oracle 失败: %w", err)
		}
		opts = append(opts, registry.WithOracle(oracle))
	}
	opts = append(opts, registry.WithLogger(logger.Named("registry")))
	return registry.New(opts...), nil
}

// fundTargets 返回启动时需要注资的账户：管理员、预言机与 fund 列表。
func fundTargets(cfg *config.Config, program *registry.Program) []ledger.Pubkey {
	seen := make(map[ledger.Pubkey]bool)
	var keys []ledger.Pubkey
	add := func(k ledger.Pubkey) {
		if k.IsZero() || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	add(program.Admin())
	add(program.Oracle())
	for _, s := range cfg.Node.Fund {
		key, err := ledger.ParsePubkey(s)
		if err != nil {
			logger.Named("ledgerd").Warn("忽略无效的注资地址", "account", s, "error", err)
			continue
		}
		add(key)
	}
	if cfg.Relay.PrivateKey != "" {
		if kp, err := ledger.KeypairFromBase58(cfg.Relay.PrivateKey); err == nil {
			add(kp.PublicKey())
		}
	}
	return keys
}
