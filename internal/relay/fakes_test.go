package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/web3"
)

type fakeClient struct {
	mu          sync.Mutex
	accounts    map[ledger.Pubkey]*ledger.Account
	sendErr     error
	sends       atomic.Int32
	blockhashes atomic.Int32
	subscribes  atomic.Int32
	closed      atomic.Bool
	updates     chan ledger.ProgramNotification
	subErr      chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		accounts: make(map[ledger.Pubkey]*ledger.Account),
		updates:  make(chan ledger.ProgramNotification, 16),
		subErr:   make(chan error, 1),
	}
}

func (f *fakeClient) put(key ledger.Pubkey, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[key] = &ledger.Account{Lamports: 1, Data: data}
}

func (f *fakeClient) GetAccountInfo(_ context.Context, key ledger.Pubkey) (*ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[key]
	if !ok {
		return nil, web3.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (f *fakeClient) GetLatestBlockhash(context.Context) (ledger.Hash, error) {
	n := f.blockhashes.Add(1)
	return ledger.HashOf([]byte{byte(n)}), nil
}

func (f *fakeClient) SendAndConfirmTransaction(_ context.Context, tx *ledger.Transaction) (ledger.Signature, error) {
	f.sends.Add(1)
	if f.sendErr != nil {
		return ledger.Signature{}, f.sendErr
	}
	if err := tx.Verify(); err != nil {
		return ledger.Signature{}, err
	}
	return tx.Signature(), nil
}

func (f *fakeClient) ProgramSubscribe(context.Context, ledger.Pubkey, *ledger.ProgramConfig) (*web3.ProgramSubscription, error) {
	f.subscribes.Add(1)
	sub := gethevent.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-quit:
			return nil
		case err := <-f.subErr:
			return err
		}
	})
	return web3.NewProgramSubscription(f.updates, sub), nil
}

func (f *fakeClient) Close() { f.closed.Store(true) }

type countingModel struct {
	calls    atomic.Int32
	failures int32
	reply    string
	mu       sync.Mutex
	prompts  []string
}

func (m *countingModel) Complete(_ context.Context, prompt string) (string, error) {
	n := m.calls.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if n <= m.failures {
		return "", errors.New("model unavailable")
	}
	return m.reply, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	received int
	skipped  map[string]int
	model    int
	submit   int
	final    int
	restarts int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{skipped: make(map[string]int)}
}

func (r *fakeRecorder) add(counter *int) {
	r.mu.Lock()
	*counter++
	r.mu.Unlock()
}

func (r *fakeRecorder) NotificationReceived() { r.add(&r.received) }

func (r *fakeRecorder) NotificationSkipped(reason string) {
	r.mu.Lock()
	r.skipped[reason]++
	r.mu.Unlock()
}

func (r *fakeRecorder) ModelAttempt(error) { r.add(&r.model) }

func (r *fakeRecorder) SubmitAttempt(error) { r.add(&r.submit) }

func (r *fakeRecorder) Finalized(time.Duration) { r.add(&r.final) }

func (r *fakeRecorder) Restarted() { r.add(&r.restarts) }

func (r *fakeRecorder) skips(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped[reason]
}

func (r *fakeRecorder) finalized() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

func newKeypair(t *testing.T) *ledger.Keypair {
	t.Helper()
	kp, err := ledger.NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return kp
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
