package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfigPath, EnvPrivateKey, EnvGoogleAPIKey, EnvOpenAIAPIKey, EnvRPCURL, EnvWebsocketURL, EnvLogLevel, EnvQueueDriver, EnvJournalDSN, EnvMetricsAddress} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.MaxModelAttempts != 2 || cfg.Relay.MaxSubmitAttempts != 3 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Relay)
	}
	if cfg.Relay.ComputeUnitLimit != 300_000 || cfg.Relay.ComputeUnitPrice != 200_000 || cfg.Relay.QueueCapacity != 100 {
		t.Fatalf("unexpected relay defaults: %+v", cfg.Relay)
	}
	if cfg.Web3.RPCURL != "http://localhost:8899" || cfg.Web3.WSURL != "ws://localhost:8900" {
		t.Fatalf("unexpected endpoints: %+v", cfg.Web3)
	}
	if cfg.LLM.Provider != "gemini" || cfg.Queue.Driver != "memory" || cfg.Journal.Driver != "none" {
		t.Fatalf("unexpected drivers: %+v %+v %+v", cfg.LLM, cfg.Queue, cfg.Journal)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error without a private key")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "oracle.json")
	content := `{
		"relay": {"max_submit_attempts": 5},
		"web3": {"rpc_url": "http://node:8899", "cluster_config": "clusters.yaml"},
		"journal": {"driver": "file", "data_dir": "journal"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_AI_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv(EnvPrivateKey, "  secret  ")
	t.Setenv(EnvWebsocketURL, "ws://override:8900")
	t.Setenv(EnvGoogleAPIKey, "")
	os.Unsetenv(EnvGoogleAPIKey)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Relay.MaxSubmitAttempts != 5 {
		t.Fatalf("file value lost: %d", cfg.Relay.MaxSubmitAttempts)
	}
	if cfg.Relay.PrivateKey != "secret" {
		t.Fatalf("private key not trimmed: %q", cfg.Relay.PrivateKey)
	}
	if cfg.Web3.RPCURL != "http://node:8899" || cfg.Web3.WSURL != "ws://override:8900" {
		t.Fatalf("unexpected endpoints: %+v", cfg.Web3)
	}
	if cfg.LLM.Gemini.APIKey != "from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.LLM.Gemini.APIKey)
	}
	if cfg.Journal.DataDir != filepath.Join(dir, "journal") {
		t.Fatalf("data dir not resolved: %s", cfg.Journal.DataDir)
	}
	if cfg.Web3.ClusterConfig != filepath.Join(dir, "clusters.yaml") {
		t.Fatalf("cluster config not resolved: %s", cfg.Web3.ClusterConfig)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
