package web3

import (
	"context"
	"errors"

	gethevent "github.com/ethereum/go-ethereum/event"

	"LLM-Oracle-Chain/internal/ledger"
)

// ErrAccountNotFound is returned when the ledger has no account at an address.
var ErrAccountNotFound = errors.New("account not found")

// ClusterSnapshot summarises the node a client is connected to.
type ClusterSnapshot struct {
	Name      string
	Slot      uint64
	Blockhash ledger.Hash
}

// ProgramSubscription wraps a program account subscription so callers can
// manage its lifecycle without depending on the go-ethereum event package.
type ProgramSubscription struct {
	updates <-chan ledger.ProgramNotification
	sub     gethevent.Subscription
}

// NewProgramSubscription constructs a managed subscription wrapper.
func NewProgramSubscription(updates <-chan ledger.ProgramNotification, sub gethevent.Subscription) *ProgramSubscription {
	return &ProgramSubscription{updates: updates, sub: sub}
}

// Updates returns the channel receiving account notifications.
func (s *ProgramSubscription) Updates() <-chan ledger.ProgramNotification {
	return s.updates
}

// Err forwards the subscription error channel. It is closed on Close.
func (s *ProgramSubscription) Err() <-chan error {
	if s == nil || s.sub == nil {
		return nil
	}
	return s.sub.Err()
}

// Close terminates the subscription.
func (s *ProgramSubscription) Close() {
	if s == nil || s.sub == nil {
		return
	}
	s.sub.Unsubscribe()
}

// Client is the ledger surface the relay depends on.
type Client interface {
	GetAccountInfo(ctx context.Context, key ledger.Pubkey) (*ledger.Account, error)
	GetLatestBlockhash(ctx context.Context) (ledger.Hash, error)
	SendAndConfirmTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.Signature, error)
	ProgramSubscribe(ctx context.Context, programID ledger.Pubkey, cfg *ledger.ProgramConfig) (*ProgramSubscription, error)
	Close()
}
