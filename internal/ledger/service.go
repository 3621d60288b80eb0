package ledger

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rpc"
)

// Namespace is the JSON-RPC namespace the service is registered under.
const Namespace = "ledger"

// JSON-RPC error codes for transaction submission.
const (
	CodeTransactionFailed   = -32002
	CodeBlockhashNotFound   = -32003
	CodeSignatureFailure    = -32004
	CodeAlreadyProcessed    = -32005
	CodeInsufficientFeeFund = -32006
	CodeInvalidTransaction  = -32007
)

// SendError is the error returned over RPC when a transaction is rejected.
type SendError struct {
	code    int
	message string
	Detail  *SendErrorDetail
}

// SendErrorDetail is the structured error data attached to a rejection.
type SendErrorDetail struct {
	Instruction *int          `json:"instruction,omitempty"`
	Program     *ProgramError `json:"program,omitempty"`
	Logs        []string      `json:"logs,omitempty"`
}

func (e *SendError) Error() string { return e.message }

func (e *SendError) ErrorCode() int { return e.code }

func (e *SendError) ErrorData() interface{} { return e.Detail }

func newSendError(err error, result *Result) *SendError {
	out := &SendError{code: CodeInvalidTransaction, message: err.Error(), Detail: &SendErrorDetail{}}
	if result != nil {
		out.Detail.Logs = result.Logs
	}
	var txErr *TransactionError
	switch {
	case errors.As(err, &txErr):
		out.code = CodeTransactionFailed
		idx := txErr.Index
		out.Detail.Instruction = &idx
		var progErr *ProgramError
		if errors.As(txErr.Err, &progErr) {
			out.Detail.Program = progErr
		}
	case errors.Is(err, ErrBlockhashNotFound):
		out.code = CodeBlockhashNotFound
	case errors.Is(err, ErrSignatureFailure):
		out.code = CodeSignatureFailure
	case errors.Is(err, ErrAlreadyProcessed):
		out.code = CodeAlreadyProcessed
	case errors.Is(err, ErrInsufficientFundsForFee), errors.Is(err, ErrAccountNotFound):
		out.code = CodeInsufficientFeeFund
	}
	return out
}

// Memcmp matches account data at an offset.
type Memcmp struct {
	Offset int    `json:"offset"`
	Bytes  []byte `json:"bytes"`
}

// Filter narrows program account queries and subscriptions. All set
// fields must match.
type Filter struct {
	Memcmp   *Memcmp `json:"memcmp,omitempty"`
	DataSize *int    `json:"dataSize,omitempty"`
}

func (f Filter) matches(data []byte) bool {
	if f.DataSize != nil && len(data) != *f.DataSize {
		return false
	}
	if f.Memcmp != nil {
		end := f.Memcmp.Offset + len(f.Memcmp.Bytes)
		if f.Memcmp.Offset < 0 || end > len(data) || !bytes.Equal(data[f.Memcmp.Offset:end], f.Memcmp.Bytes) {
			return false
		}
	}
	return true
}

// ProgramConfig carries the optional filters of a program query.
type ProgramConfig struct {
	Filters []Filter `json:"filters,omitempty"`
}

func (c *ProgramConfig) matches(data []byte) bool {
	if c == nil {
		return true
	}
	for _, f := range c.Filters {
		if !f.matches(data) {
			return false
		}
	}
	return true
}

// BlockhashResult is returned by getLatestBlockhash.
type BlockhashResult struct {
	Blockhash            Hash   `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Service exposes a Bank over JSON-RPC.
type Service struct {
	bank          *Bank
	subscriptions atomic.Int64
}

// NewService wraps bank.
func NewService(bank *Bank) *Service {
	return &Service{bank: bank}
}

// NewRPCServer registers a Service for bank on a fresh server.
func NewRPCServer(bank *Bank) (*rpc.Server, *Service, error) {
	svc := NewService(bank)
	server := rpc.NewServer()
	if err := server.RegisterName(Namespace, svc); err != nil {
		return nil, nil, err
	}
	return server, svc, nil
}

// Subscriptions reports the number of live program subscriptions.
func (s *Service) Subscriptions() int64 { return s.subscriptions.Load() }

// GetAccountInfo returns nil when the account does not exist.
func (s *Service) GetAccountInfo(ctx context.Context, pubkey Pubkey) (*Account, error) {
	acct, ok := s.bank.Account(pubkey)
	if !ok {
		return nil, nil
	}
	return acct, nil
}

func (s *Service) GetBalance(ctx context.Context, pubkey Pubkey) (uint64, error) {
	return s.bank.Balance(pubkey), nil
}

func (s *Service) GetSlot(ctx context.Context) (uint64, error) {
	return s.bank.Slot(), nil
}

func (s *Service) GetLatestBlockhash(ctx context.Context) (*BlockhashResult, error) {
	hash, last := s.bank.LatestBlockhash()
	return &BlockhashResult{Blockhash: hash, LastValidBlockHeight: last}, nil
}

func (s *Service) GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	return s.bank.Rent().MinimumBalance(size), nil
}

func (s *Service) GetProgramAccounts(ctx context.Context, programID Pubkey, cfg *ProgramConfig) ([]KeyedAccount, error) {
	all := s.bank.ProgramAccounts(programID)
	out := make([]KeyedAccount, 0, len(all))
	for _, ka := range all {
		if cfg.matches(ka.Account.Data) {
			out = append(out, ka)
		}
	}
	return out, nil
}

// SendTransaction executes tx and returns its signature once committed.
func (s *Service) SendTransaction(ctx context.Context, tx *Transaction) (Signature, error) {
	if tx == nil {
		return Signature{}, &SendError{code: CodeInvalidTransaction, message: "missing transaction"}
	}
	result, err := s.bank.ProcessTransaction(tx)
	if err != nil {
		return Signature{}, newSendError(err, result)
	}
	return result.Signature, nil
}

func (s *Service) RequestAirdrop(ctx context.Context, pubkey Pubkey, lamports uint64) (Signature, error) {
	return s.bank.Airdrop(pubkey, lamports)
}

// ProgramNotification is pushed for every change to an account owned by
// the subscribed program.
type ProgramNotification struct {
	Pubkey  Pubkey   `json:"pubkey"`
	Account *Account `json:"account"`
	Slot    uint64   `json:"slot"`
}

// ProgramSubscribe streams changes to accounts owned by programID.
func (s *Service) ProgramSubscribe(ctx context.Context, programID Pubkey, cfg *ProgramConfig) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	updates := make(chan AccountUpdate, 256)
	sub := s.bank.SubscribeAccounts(updates)
	s.subscriptions.Add(1)

	go func() {
		defer s.subscriptions.Add(-1)
		defer sub.Unsubscribe()
		for {
			select {
			case u := <-updates:
				if u.Account.Owner != programID || !cfg.matches(u.Account.Data) {
					continue
				}
				if err := notifier.Notify(rpcSub.ID, ProgramNotification{Pubkey: u.Pubkey, Account: u.Account, Slot: u.Slot}); err != nil {
					return
				}
			case <-rpcSub.Err():
				return
			}
		}
	}()
	return rpcSub, nil
}
