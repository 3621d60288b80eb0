package provider

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"LLM-Oracle-Chain/internal/config"
	"LLM-Oracle-Chain/internal/ledger"
)

func writeClusters(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRegistrySelectsDefaultAndAppliesOverrides(t *testing.T) {
	program := ledger.MustParsePubkey("DVc1wcKi3tnj8oHG5nHZ1xYC3JmtBmrZ3WmBm3K3qrLm")
	path := writeClusters(t, `default: b
clusters:
  a:
    rpc_url: http://a:8899
  b:
    rpc_url: http://b:8899
    ws_url: ws://b:8900
`)
	reg, err := NewRegistry(config.Web3Config{ClusterConfig: path, WSURL: "ws://override:8900"}, program)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	def := reg.Default()
	if def.Name != "b" || def.RPCURL != "http://b:8899" || def.WSURL != "ws://override:8900" {
		t.Fatalf("unexpected default cluster %+v", def)
	}
	if def.ProgramID != program {
		t.Fatalf("fallback program not applied")
	}
	if got := reg.Clusters(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected clusters %v", got)
	}
	if a, ok := reg.Cluster("a"); !ok || a.WSURL != "" {
		t.Fatalf("non-default cluster should be untouched: %+v", a)
	}
}

func TestRegistryFallsBackToDirectEndpoint(t *testing.T) {
	if _, err := NewRegistry(config.Web3Config{}, ledger.Pubkey{}); err == nil {
		t.Fatalf("expected error without endpoints")
	}

	bank := ledger.NewBank()
	server, _, err := ledger.NewRPCServer(bank)
	if err != nil {
		t.Fatalf("rpc server: %v", err)
	}
	defer server.Stop()
	srv := httptest.NewServer(server)
	defer srv.Close()

	reg, err := NewRegistry(config.Web3Config{RPCURL: srv.URL}, ledger.Pubkey{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := reg.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	hash, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("blockhash: %v", err)
	}
	if !bank.IsBlockhashValid(hash) {
		t.Fatalf("unexpected blockhash %s", hash)
	}
}
