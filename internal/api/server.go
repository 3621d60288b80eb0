package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/observability/metrics"
)

// Config 描述节点对外暴露的地址。
type Config struct {
	RPCAddress      string
	WSAddress       string
	AllowOrigins    []string
	ShutdownTimeout time.Duration
}

// Server 负责把账本 RPC 服务挂到 HTTP 与 websocket 上。
type Server struct {
	cfg  Config
	rpc  *gethrpc.Server
	bank *ledger.Bank
}

// NewServer 构造 API 服务实例。
func NewServer(cfg Config, rpcServer *gethrpc.Server, bank *ledger.Bank) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	return &Server{cfg: cfg, rpc: rpcServer, bank: bank}
}

// Handler 返回 RPC 端口上的路由：JSON-RPC、健康检查与指标。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.HTTP().Middleware("rpc", s.rpc))
	return mux
}

// WebsocketHandler 返回订阅端口上的路由。
func (s *Server) WebsocketHandler() http.Handler {
	return metrics.HTTP().Middleware("ws", s.rpc.WebsocketHandler(s.cfg.AllowOrigins))
}

// Start 监听配置的地址并阻塞，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	rpcLn, err := net.Listen("tcp", s.cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("监听 RPC 地址失败: %w", err)
	}
	wsLn, err := net.Listen("tcp", s.cfg.WSAddress)
	if err != nil {
		rpcLn.Close()
		return fmt.Errorf("监听 websocket 地址失败: %w", err)
	}
	return s.Serve(ctx, rpcLn, wsLn)
}

// Serve 在给定监听器上提供服务，两个服务器任一失败都会关闭另一个。
func (s *Server) Serve(ctx context.Context, rpcLn, wsLn net.Listener) error {
	servers := []*http.Server{
		{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second},
		{Handler: s.WebsocketHandler(), ReadHeaderTimeout: 5 * time.Second},
	}
	listeners := []net.Listener{rpcLn, wsLn}

	errCh := make(chan error, len(servers))
	for i := range servers {
		srv, ln := servers[i], listeners[i]
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case result = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return result
}

type healthResponse struct {
	Status    string      `json:"status"`
	Slot      uint64      `json:"slot"`
	Blockhash ledger.Hash `json:"blockhash"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.bank == nil {
		http.Error(w, "账本未初始化", http.StatusServiceUnavailable)
		return
	}
	hash, _ := s.bank.LatestBlockhash()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Slot: s.bank.Slot(), Blockhash: hash})
}
