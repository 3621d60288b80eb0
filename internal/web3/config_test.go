package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadClusterDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	content := `default: local
clusters:
  local:
    rpc_url: http://127.0.0.1:8899
    ws_url: ws://127.0.0.1:8900
    program_id: DVc1wcKi3tnj8oHG5nHZ1xYC3JmtBmrZ3WmBm3K3qrLm
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	defs, err := LoadClusterDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	local, ok := defs.Clusters["local"]
	if !ok || defs.Default != "local" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
	if local.WSURL != "ws://127.0.0.1:8900" || local.ProgramID == "" {
		t.Fatalf("unexpected cluster: %+v", local)
	}

	empty, err := LoadClusterDefinitions("")
	if err != nil || len(empty.Clusters) != 0 {
		t.Fatalf("empty path should yield no clusters: %+v %v", empty, err)
	}
}

func TestLoadClusterDefinitionsRejectsUnknownDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	if err := os.WriteFile(path, []byte("default: missing\nclusters:\n  a:\n    rpc_url: http://a\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadClusterDefinitions(path); err == nil {
		t.Fatalf("expected error for unknown default")
	}
}
