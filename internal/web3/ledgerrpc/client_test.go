package ledgerrpc

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "LLM-Oracle-Chain/internal/errors"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/web3"
)

func newNode(t *testing.T) (*ledger.Bank, *gethrpc.Server) {
	t.Helper()
	bank := ledger.NewBank(ledger.WithBlockhashWindow(4))
	server, _, err := ledger.NewRPCServer(bank)
	if err != nil {
		t.Fatalf("rpc server: %v", err)
	}
	t.Cleanup(server.Stop)
	return bank, server
}

func newKeypair(t *testing.T) *ledger.Keypair {
	t.Helper()
	kp, err := ledger.NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return kp
}

func TestClientOverHTTPAndWebsocket(t *testing.T) {
	bank, server := newNode(t)
	httpSrv := httptest.NewServer(server)
	defer httpSrv.Close()
	wsSrv := httptest.NewServer(server.WebsocketHandler([]string{"*"}))
	defer wsSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := Dial(ctx, Config{
		Name:   "test",
		RPCURL: httpSrv.URL,
		WSURL:  "ws" + strings.TrimPrefix(wsSrv.URL, "http"),
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	payer := newKeypair(t)
	if _, err := client.RequestAirdrop(ctx, payer.PublicKey(), 1_000_000); err != nil {
		t.Fatalf("airdrop: %v", err)
	}

	sub, err := client.ProgramSubscribe(ctx, ledger.SystemProgramID, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	dest := newKeypair(t).PublicKey()
	hash, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("blockhash: %v", err)
	}
	tx, err := ledger.NewSignedTransaction([]ledger.Instruction{ledger.Transfer(payer.PublicKey(), dest, 1234)}, payer, nil, hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig, err := client.SendAndConfirmTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sig != tx.Signature() {
		t.Fatalf("unexpected signature %s", sig)
	}
	if bank.Balance(dest) != 1234 {
		t.Fatalf("transfer not applied")
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-sub.Updates():
			if n.Pubkey == dest {
				if n.Account.Lamports != 1234 {
					t.Fatalf("unexpected lamports %d", n.Account.Lamports)
				}
				return
			}
		case err := <-sub.Err():
			t.Fatalf("subscription error: %v", err)
		case <-deadline:
			t.Fatalf("no notification for destination")
		}
	}
}

func TestSendErrorsAreDecoded(t *testing.T) {
	_, server := newNode(t)
	client := NewClient("inproc", gethrpc.DialInProc(server), nil)
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payer := newKeypair(t)
	if _, err := client.RequestAirdrop(ctx, payer.PublicKey(), 100_000); err != nil {
		t.Fatalf("airdrop: %v", err)
	}
	hash, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		t.Fatalf("blockhash: %v", err)
	}

	tx, _ := ledger.NewSignedTransaction([]ledger.Instruction{ledger.Transfer(payer.PublicKey(), newKeypair(t).PublicKey(), 10_000_000)}, payer, nil, hash)
	_, err = client.SendAndConfirmTransaction(ctx, tx)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	var txErr *ledger.TransactionError
	if !errors.As(err, &txErr) || txErr.Index != 0 {
		t.Fatalf("expected transaction error for instruction 0, got %v", err)
	}
	if xerrors.CodeOf(err) != xerrors.CodeSubmitFailure {
		t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
	}

	for i := 0; i < 5; i++ {
		if _, err := client.RequestAirdrop(ctx, payer.PublicKey(), 1); err != nil {
			t.Fatalf("airdrop: %v", err)
		}
	}
	stale, _ := ledger.NewSignedTransaction([]ledger.Instruction{ledger.Transfer(payer.PublicKey(), newKeypair(t).PublicKey(), 1)}, payer, nil, hash)
	_, err = client.SendAndConfirmTransaction(ctx, stale)
	if xerrors.CodeOf(err) != xerrors.CodeBlockhashNotFound || !errors.Is(err, ledger.ErrBlockhashNotFound) {
		t.Fatalf("expected expired blockhash, got %v", err)
	}
}

func TestGetAccountInfoNotFound(t *testing.T) {
	_, server := newNode(t)
	client := NewClient("inproc", gethrpc.DialInProc(server), nil)
	defer client.Close()

	_, err := client.GetAccountInfo(context.Background(), newKeypair(t).PublicKey())
	if !errors.Is(err, web3.ErrAccountNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	client.Close()
	if _, err := client.GetLatestBlockhash(context.Background()); err == nil {
		t.Fatalf("expected error after close")
	}
}
