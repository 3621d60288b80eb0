package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"LLM-Oracle-Chain/internal/api"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/internal/storage"
)

type node struct {
	url   string
	admin *ledger.Keypair
	bank  *ledger.Bank
}

func startNode(t *testing.T) *node {
	t.Helper()
	admin, err := ledger.NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	bank := ledger.NewBank()
	bank.Deploy(registry.New(registry.WithAdmin(admin.PublicKey())))
	rpcServer, _, err := ledger.NewRPCServer(bank)
	if err != nil {
		t.Fatalf("rpc server: %v", err)
	}
	t.Cleanup(rpcServer.Stop)
	srv := httptest.NewServer(api.NewServer(api.Config{}, rpcServer, bank).Handler())
	t.Cleanup(srv.Close)
	return &node{url: srv.URL, admin: admin, bank: bank}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (n *node) run(t *testing.T, args ...string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "missing.json")
	args = append(args,
		"--config", configPath,
		"--rpc", n.url,
		"--keypair", n.admin.Base58(),
		"--program", registry.DefaultProgramID.String(),
	)
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("oraclectl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestKeygenPrintsUsableKeypair(t *testing.T) {
	out, err := execute(t, "keygen", "--config", filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	var keys struct {
		Pubkey string `json:"pubkey"`
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal([]byte(out), &keys); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	kp, err := ledger.KeypairFromBase58(keys.Secret)
	if err != nil {
		t.Fatalf("secret does not parse: %v", err)
	}
	if kp.PublicKey().String() != keys.Pubkey {
		t.Fatalf("pubkey mismatch: %s vs %s", kp.PublicKey(), keys.Pubkey)
	}
}

func TestRequestLifecycle(t *testing.T) {
	n := startNode(t)

	n.run(t, "airdrop", "10000000000")
	if got := n.bank.Balance(n.admin.PublicKey()); got != 10_000_000_000 {
		t.Fatalf("unexpected balance: %d", got)
	}

	n.run(t, "initialize")
	cfgKey, _, _ := registry.ConfigAddress(registry.DefaultProgramID)
	if _, ok := n.bank.Account(cfgKey); !ok {
		t.Fatalf("config account not created")
	}

	n.run(t, "create-chat", "You are an assistant.", "--seed", "0")
	n.run(t, "create-inference", "What is 2+2?", "--seed", "0")

	out := n.run(t, "show-request")
	var shown struct {
		ChatContext struct {
			State registry.ChatContext `json:"state"`
		} `json:"chat_context"`
		Inference struct {
			State         registry.Inference `json:"state"`
			Discriminator string             `json:"callback_discriminator"`
		} `json:"inference"`
	}
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if shown.ChatContext.State.Text != "You are an assistant." {
		t.Fatalf("unexpected chat text %q", shown.ChatContext.State.Text)
	}
	inf := shown.Inference.State
	if inf.Text != "What is 2+2?" || inf.IsProcessed {
		t.Fatalf("unexpected inference: %+v", inf)
	}
	if inf.User != n.admin.PublicKey() || inf.CallbackProgramID != registry.DefaultProgramID {
		t.Fatalf("unexpected inference routing: %+v", inf)
	}
	if shown.Inference.Discriminator == "" {
		t.Fatalf("missing discriminator")
	}
}

func TestCreateInferenceRejectsBadCallbackFlags(t *testing.T) {
	n := startNode(t)
	configPath := filepath.Join(t.TempDir(), "missing.json")
	base := []string{"--config", configPath, "--rpc", n.url, "--keypair", n.admin.Base58(), "--program", registry.DefaultProgramID.String()}

	cases := map[string][]string{
		"short discriminator": {"create-inference", "q", "--callback-discriminator", "abcd"},
		"bad account flags":   {"create-inference", "q", "--callback-account", n.admin.PublicKey().String() + ":x"},
		"bad program":         {"create-inference", "q", "--callback-program", "not-a-key"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(t, append(args, base...)...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseCallbackAccounts(t *testing.T) {
	kp, _ := ledger.NewKeypair()
	key := kp.PublicKey().String()
	metas, err := parseCallbackAccounts([]string{key, key + ":w"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(metas) != 2 || metas[0].IsWritable || !metas[1].IsWritable || metas[1].IsSigner {
		t.Fatalf("unexpected metas: %+v", metas)
	}
}

func TestJournalListsRecordedFinalizations(t *testing.T) {
	dir := t.TempDir()
	journal, err := storage.NewFileJournal(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if err := journal.Record(context.Background(), storage.Finalization{ID: "1", Signature: "sig-1", Response: "4"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	journal.Close()

	configPath := filepath.Join(dir, "oracle.json")
	if err := os.WriteFile(configPath, []byte(`{"journal":{"driver":"file","data_dir":"data"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := execute(t, "journal", "--config", configPath)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	var entries []storage.Finalization
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].Signature != "sig-1" || entries[0].Response != "4" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
