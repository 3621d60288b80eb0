package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/internal/web3/ledgerrpc"
)

type harness struct {
	bank   *ledger.Bank
	admin  *ledger.Keypair
	client *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	admin, err := ledger.NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	bank := ledger.NewBank()
	bank.Deploy(registry.New(registry.WithAdmin(admin.PublicKey())))
	server, _, err := ledger.NewRPCServer(bank)
	if err != nil {
		t.Fatalf("rpc server: %v", err)
	}
	t.Cleanup(server.Stop)
	conn := ledgerrpc.NewClient("inproc", gethrpc.DialInProc(server), nil)
	t.Cleanup(conn.Close)

	client := NewClient(conn, ledger.Pubkey{}, admin)
	client.SetPollInterval(5 * time.Millisecond)
	if _, _, err := client.Airdrop(context.Background(), admin.PublicKey(), 10_000_000_000); err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	return &harness{bank: bank, admin: admin, client: client}
}

// answer plays the oracle: it finalizes the request at key directly on the bank.
func (h *harness) answer(t *testing.T, key ledger.Pubkey, response string) {
	t.Helper()
	acct, ok := h.bank.Account(key)
	if !ok {
		t.Fatalf("request %s missing", key)
	}
	inf, err := registry.DecodeInference(acct.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ix, err := registry.NewCallbackFromLLMInstruction(registry.DefaultProgramID, h.admin.PublicKey(), key, inf, response)
	if err != nil {
		t.Fatalf("callback ix: %v", err)
	}
	hash, _ := h.bank.LatestBlockhash()
	tx, err := ledger.NewSignedTransaction([]ledger.Instruction{ix}, h.admin, nil, hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.bank.ProcessTransaction(tx); err != nil {
		t.Fatalf("callback: %v", err)
	}
}

func TestRequestLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if h.client.ProgramID() != registry.DefaultProgramID {
		t.Fatalf("zero program id should select the default")
	}
	if _, _, err := h.client.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	chatKey, _, err := h.client.CreateChat(ctx, "You are an assistant.", 3)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	gotKey, chat, err := h.client.ChatContext(ctx, h.admin.PublicKey(), 3)
	if err != nil {
		t.Fatalf("read chat: %v", err)
	}
	if gotKey != chatKey || chat.Text != "You are an assistant." || chat.Seed != 3 {
		t.Fatalf("unexpected chat %s %+v", gotKey, chat)
	}

	infKey, _, err := h.client.CreateInference(ctx, Request{Seed: 3, Text: "What is 2+2?"})
	if err != nil {
		t.Fatalf("create inference: %v", err)
	}
	_, inf, err := h.client.Inference(ctx, h.admin.PublicKey(), 3)
	if err != nil {
		t.Fatalf("read inference: %v", err)
	}
	if inf.IsProcessed || inf.Text != "What is 2+2?" || inf.ChatContext != chatKey {
		t.Fatalf("unexpected inference %+v", inf)
	}
	if inf.CallbackProgramID != registry.DefaultProgramID || inf.CallbackDiscrim != registry.CallbackTestDiscriminator {
		t.Fatalf("default callback not applied: %+v", inf)
	}

	h.answer(t, infKey, "4")
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done, err := h.client.WaitProcessed(waitCtx, infKey)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !done.IsProcessed {
		t.Fatalf("request not processed")
	}
}

func TestWaitProcessedHonoursContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	missing, _ := ledger.NewKeypair()
	if _, err := h.client.WaitProcessed(ctx, missing.PublicKey()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestMissingAccountsReportNotFound(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.client.ChatContext(context.Background(), h.admin.PublicKey(), 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWritesRequireSigner(t *testing.T) {
	client := NewClient(nil, ledger.Pubkey{}, nil)
	if _, _, err := client.CreateChat(context.Background(), "x", 0); err == nil {
		t.Fatalf("expected error without signer")
	}
}

// stalledLedger waits for the caller's deadline and then fails with a
// transport error instead of the context error, as an RPC write timeout does.
type stalledLedger struct {
	Ledger
	err error
}

func (s stalledLedger) GetAccountInfo(ctx context.Context, _ ledger.Pubkey) (*ledger.Account, error) {
	<-ctx.Done()
	return nil, s.err
}

type failingLedger struct {
	Ledger
	err error
}

func (f failingLedger) GetAccountInfo(context.Context, ledger.Pubkey) (*ledger.Account, error) {
	return nil, f.err
}

func TestWaitProcessedPrefersContextErrorOverTransportError(t *testing.T) {
	transport := errors.New("write pipe: i/o timeout")
	client := NewClient(stalledLedger{err: transport}, ledger.Pubkey{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.WaitProcessed(ctx, ledger.Pubkey{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	client = NewClient(failingLedger{err: transport}, ledger.Pubkey{}, nil)
	if _, err := client.WaitProcessed(context.Background(), ledger.Pubkey{1}); !errors.Is(err, transport) {
		t.Fatalf("expected transport error while context is live, got %v", err)
	}
}
