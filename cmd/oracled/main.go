package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"LLM-Oracle-Chain/internal/config"
	xerrors "LLM-Oracle-Chain/internal/errors"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/llm"
	"LLM-Oracle-Chain/internal/llm/gemini"
	"LLM-Oracle-Chain/internal/llm/openai"
	"LLM-Oracle-Chain/internal/observability/alerting"
	"LLM-Oracle-Chain/internal/observability/metrics"
	"LLM-Oracle-Chain/internal/relay"
	"LLM-Oracle-Chain/internal/storage"
	"LLM-Oracle-Chain/internal/storage/mysql"
	"LLM-Oracle-Chain/internal/web3/provider"
	"LLM-Oracle-Chain/pkg/logger"
)

// main 是预言机中继守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("oracled 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("oracled")

	payer, err := ledger.KeypairFromBase58(cfg.Relay.PrivateKey)
	if err != nil {
		return fmt.Errorf("解析 %s 失败: %w", config.EnvPrivateKey, err)
	}

	model, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	programID := ledger.Pubkey{}
	if cfg.Relay.ProgramID != "" {
		programID, err = ledger.ParsePubkey(cfg.Relay.ProgramID)
		if err != nil {
			return fmt.Errorf("解析 program_id 失败: %w", err)
		}
	}

	clusters, err := provider.NewRegistry(cfg.Web3, programID)
	if err != nil {
		return err
	}
	cluster := clusters.Default()
	if programID.IsZero() {
		programID = cluster.ProgramID
	}

	journal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	if journal != nil {
		defer func() {
			if err := journal.Close(); err != nil {
				log.Warn("关闭回写记录失败", "error", err)
			}
		}()
	}

	opts := []relay.Option{
		relay.WithQueueFactory(queueFactory(cfg)),
		relay.WithRecorder(metrics.Relay()),
		relay.WithJournal(journal),
		relay.WithAlerts(newAlerts(cfg.Alerting)),
		relay.WithLogger(logger.Named("relay")),
		relay.WithRestartDelay(time.Duration(cfg.Relay.RestartDelayMillis) * time.Millisecond),
	}
	daemon, err := relay.New(relay.DialFunc(clusters.Dial), relay.Settings{
		ProgramID:         programID,
		Payer:             payer,
		Model:             model,
		MaxModelAttempts:  cfg.Relay.MaxModelAttempts,
		MaxSubmitAttempts: cfg.Relay.MaxSubmitAttempts,
		ComputeUnitLimit:  cfg.Relay.ComputeUnitLimit,
		ComputeUnitPrice:  cfg.Relay.ComputeUnitPrice,
	}, opts...)
	if err != nil {
		return err
	}

	if addr := cfg.Metrics.Address; addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("指标服务异常退出", "error", err)
			}
		}()
	}

	log.Info("预言机中继启动",
		"cluster", cluster.Name,
		"rpc_url", cluster.RPCURL,
		"ws_url", cluster.WSURL,
		"program_id", programID.String(),
		"oracle", payer.PublicKey().String(),
		"provider", cfg.LLM.Provider,
		"queue", cfg.Queue.Driver,
		"journal", cfg.Journal.Driver,
	)
	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("预言机中继已停止")
	return nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "gemini":
		p := cfg.LLM.Gemini
		return gemini.NewClient(gemini.Config{
			APIKey:      p.APIKey,
			BaseURL:     p.BaseURL,
			Model:       p.Model,
			Temperature: p.Temperature,
			Timeout:     time.Duration(p.TimeoutSeconds) * time.Second,
		})
	case "openai":
		p := cfg.LLM.OpenAI
		return openai.NewClient(openai.Config{
			APIKey:      p.APIKey,
			BaseURL:     p.BaseURL,
			Model:       p.Model,
			Temperature: p.Temperature,
			Timeout:     time.Duration(p.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

// newAlerts 总是写日志告警，并按配置追加 webhook 渠道。
func newAlerts(cfg config.AlertingConfig) *alerting.FanoutDispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alerting")}}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, &alerting.SlackNotifier{WebhookURL: cfg.SlackWebhook})
	}
	if cfg.DingTalkWebhook != "" {
		notifiers = append(notifiers, &alerting.DingTalkNotifier{WebhookURL: cfg.DingTalkWebhook})
	}
	return alerting.NewFanout(notifiers...).WithMinSeverity(xerrors.Severity(cfg.MinSeverity))
}

// queueFactory 为每个运行周期创建新的通知队列。
func queueFactory(cfg *config.Config) relay.QueueFactory {
	capacity := cfg.Relay.QueueCapacity
	switch cfg.Queue.Driver {
	case "redis":
		r := cfg.Queue.Redis
		return func(ctx context.Context) (relay.Queue, error) {
			return relay.NewRedisQueue(ctx, relay.RedisQueueConfig{
				Address:   r.Address,
				Password:  r.Password,
				DB:        r.DB,
				Queue:     r.Queue,
				Capacity:  capacity,
				BlockWait: time.Duration(r.BlockWaitSeconds) * time.Second,
			})
		}
	case "rabbitmq":
		r := cfg.Queue.RabbitMQ
		autoDelete := r.AutoDelete == nil || *r.AutoDelete
		return func(context.Context) (relay.Queue, error) {
			return relay.NewRabbitMQQueue(relay.RabbitMQConfig{
				URL:        r.URL,
				Queue:      r.Queue,
				Capacity:   capacity,
				Prefetch:   r.Prefetch,
				Durable:    r.Durable,
				AutoDelete: autoDelete,
			})
		}
	default:
		return relay.MemoryQueueFactory(capacity)
	}
}

// openJournal 按驱动打开回写记录；driver 为 none 时返回 nil。
func openJournal(ctx context.Context, cfg config.JournalConfig) (storage.Journal, error) {
	switch cfg.Driver {
	case "file":
		return storage.NewFileJournal(cfg.DataDir)
	case "mysql":
		return mysql.NewSQLJournal(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		})
	default:
		return nil, nil
	}
}
