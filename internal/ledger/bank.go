package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// DefaultBlockhashWindow is how many recent blockhashes stay valid.
const DefaultBlockhashWindow = 150

// BankOption customises a Bank.
type BankOption func(*Bank)

// WithRent overrides the rent parameters.
func WithRent(r Rent) BankOption {
	return func(b *Bank) { b.rent = r }
}

// WithBlockhashWindow sets how many slots a blockhash stays usable.
func WithBlockhashWindow(n int) BankOption {
	return func(b *Bank) {
		if n > 0 {
			b.window = n
		}
	}
}

// WithLogger sets the logger for transaction outcomes.
func WithLogger(l *slog.Logger) BankOption {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// Result describes a committed or failed transaction.
type Result struct {
	Signature Signature `json:"signature"`
	Slot      uint64    `json:"slot"`
	Fee       uint64    `json:"fee"`
	Logs      []string  `json:"logs"`
}

// Bank holds the account arena and executes transactions atomically.
type Bank struct {
	commitMu sync.Mutex // serialises writers and notification delivery

	mu          sync.RWMutex
	accounts    map[Pubkey]*Account
	programs    map[Pubkey]Program
	rent        Rent
	window      int
	slot        uint64
	blockhashes []Hash
	recent      map[Hash]uint64
	processed   map[Signature]uint64

	feed   event.Feed
	logger *slog.Logger
}

// NewBank returns a bank with the system and compute budget programs loaded.
func NewBank(opts ...BankOption) *Bank {
	b := &Bank{
		accounts:  make(map[Pubkey]*Account),
		programs:  make(map[Pubkey]Program),
		rent:      DefaultRent,
		window:    DefaultBlockhashWindow,
		recent:    make(map[Hash]uint64),
		processed: make(map[Signature]uint64),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Deploy(systemProgram{})
	b.Deploy(computeBudgetProgram{})
	b.advance(HashOf([]byte("genesis")))
	return b
}

// Deploy registers a program and creates its executable account.
func (b *Bank) Deploy(p Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := p.ID()
	b.programs[id] = p
	b.accounts[id] = &Account{Lamports: 1, Owner: NativeLoaderID, Executable: true}
}

func (b *Bank) Rent() Rent { return b.rent }

// Slot returns the current slot.
func (b *Bank) Slot() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot
}

// Account returns a copy of the account at key.
func (b *Bank) Account(key Pubkey) (*Account, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.accounts[key]
	if !ok {
		return nil, false
	}
	return acct.Clone(), true
}

// Balance returns the lamports at key, zero when absent.
func (b *Bank) Balance(key Pubkey) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if acct, ok := b.accounts[key]; ok {
		return acct.Lamports
	}
	return 0
}

// ProgramAccounts lists accounts owned by programID, ordered by address.
func (b *Bank) ProgramAccounts(programID Pubkey) []KeyedAccount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []KeyedAccount
	for key, acct := range b.accounts {
		if acct.Owner == programID {
			out = append(out, KeyedAccount{Pubkey: key, Account: acct.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Pubkey[:]) < string(out[j].Pubkey[:]) })
	return out
}

// LatestBlockhash returns the newest blockhash and the last slot it is valid for.
func (b *Bank) LatestBlockhash() (Hash, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blockhashes[len(b.blockhashes)-1], b.slot + uint64(b.window)
}

// SubscribeAccounts delivers every committed account change to ch.
func (b *Bank) SubscribeAccounts(ch chan<- AccountUpdate) event.Subscription {
	return b.feed.Subscribe(ch)
}

// Airdrop credits a system account out of thin air.
func (b *Bank) Airdrop(to Pubkey, lamports uint64) (Signature, error) {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()

	b.mu.Lock()
	acct, ok := b.accounts[to]
	if !ok {
		acct = &Account{Owner: SystemProgramID}
		b.accounts[to] = acct
	}
	if acct.Executable {
		b.mu.Unlock()
		return Signature{}, fmt.Errorf("airdrop to executable account %s", to)
	}
	acct.Lamports += lamports
	var sig Signature
	seq := binary.LittleEndian.AppendUint64(nil, b.slot)
	digest := HashOf([]byte("airdrop"), to[:], seq, binary.LittleEndian.AppendUint64(nil, lamports))
	copy(sig[:], digest[:])
	b.advance(HashOf(b.blockhashes[len(b.blockhashes)-1][:], sig[:]))
	update := AccountUpdate{Pubkey: to, Account: acct.Clone(), Slot: b.slot}
	b.mu.Unlock()

	b.feed.Send(update)
	return sig, nil
}

// ProcessTransaction verifies, charges and executes tx. Either every
// instruction succeeds and all changes commit, or none of them do; the fee
// is charged in both cases once the transaction passes the pre-checks.
func (b *Bank) ProcessTransaction(tx *Transaction) (*Result, error) {
	b.commitMu.Lock()
	defer b.commitMu.Unlock()

	b.mu.Lock()
	result, updates, err := b.process(tx)
	b.mu.Unlock()

	for _, u := range updates {
		b.feed.Send(u)
	}
	if err != nil {
		b.logger.Debug("transaction failed", "signature", tx.Signature().String(), "error", err)
		return result, err
	}
	b.logger.Debug("transaction committed", "signature", result.Signature.String(), "slot", result.Slot)
	return result, nil
}

func (b *Bank) process(tx *Transaction) (*Result, []AccountUpdate, error) {
	if len(tx.Message.Instructions) == 0 {
		return nil, nil, fmt.Errorf("%w: empty transaction", ErrSignatureFailure)
	}
	if err := tx.Verify(); err != nil {
		return nil, nil, err
	}
	if _, ok := b.recent[tx.Message.RecentBlockhash]; !ok {
		return nil, nil, ErrBlockhashNotFound
	}
	sig := tx.Signature()
	if _, done := b.processed[sig]; done {
		return nil, nil, ErrAlreadyProcessed
	}
	budget, err := ParseComputeBudget(tx.Message.Instructions)
	if err != nil {
		return nil, nil, err
	}

	fee := LamportsPerSignature*uint64(len(tx.Signatures)) + budget.PriorityFee()
	payer, ok := b.accounts[tx.Message.FeePayer]
	if !ok || payer.Lamports == 0 {
		return nil, nil, ErrAccountNotFound
	}
	if payer.Owner != SystemProgramID || len(payer.Data) > 0 {
		return nil, nil, fmt.Errorf("%w: fee payer must be a system account", ErrInvalidAccountData)
	}
	if payer.Lamports < fee {
		return nil, nil, ErrInsufficientFundsForFee
	}
	payer.Lamports -= fee

	result := &Result{Signature: sig, Fee: fee, Logs: []string{}}
	b.processed[sig] = b.slot

	working := b.loadWorkingSet(tx)
	for i, ix := range tx.Message.Instructions {
		signers := make(map[Pubkey]bool, len(ix.Accounts))
		writable := make(map[Pubkey]bool, len(ix.Accounts))
		for _, meta := range ix.Accounts {
			if meta.IsSigner {
				signers[meta.Pubkey] = true
			}
			if meta.IsWritable {
				writable[meta.Pubkey] = true
			}
		}
		if err := b.execute(working, ix, signers, writable, 1, &result.Logs); err != nil {
			b.advanceAfter(sig)
			result.Slot = b.slot
			return result, b.payerUpdates(tx.Message.FeePayer), &TransactionError{Index: i, Err: err}
		}
	}
	for key, acct := range working {
		if len(acct.Data) > 0 && acct.Lamports > 0 && !b.rent.IsExempt(acct.Lamports, len(acct.Data)) {
			b.advanceAfter(sig)
			result.Slot = b.slot
			return result, b.payerUpdates(tx.Message.FeePayer), fmt.Errorf("%w: %s", ErrInsufficientFundsForRent, key)
		}
	}

	b.advanceAfter(sig)
	result.Slot = b.slot
	return result, b.commit(working), nil
}

func (b *Bank) loadWorkingSet(tx *Transaction) map[Pubkey]*Account {
	working := make(map[Pubkey]*Account)
	load := func(key Pubkey) {
		if _, ok := working[key]; ok {
			return
		}
		if acct, ok := b.accounts[key]; ok {
			working[key] = acct.Clone()
			return
		}
		working[key] = &Account{Owner: SystemProgramID}
	}
	load(tx.Message.FeePayer)
	for _, ix := range tx.Message.Instructions {
		load(ix.ProgramID)
		for _, meta := range ix.Accounts {
			load(meta.Pubkey)
		}
	}
	return working
}

func (b *Bank) commit(working map[Pubkey]*Account) []AccountUpdate {
	keys := make([]Pubkey, 0, len(working))
	for key := range working {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i][:]) < string(keys[j][:]) })

	var updates []AccountUpdate
	for _, key := range keys {
		post := working[key]
		pre, existed := b.accounts[key]
		if existed && pre.equal(post) {
			continue
		}
		if post.empty() || post.Lamports == 0 {
			if existed {
				delete(b.accounts, key)
			}
			continue
		}
		b.accounts[key] = post
		updates = append(updates, AccountUpdate{Pubkey: key, Account: post.Clone(), Slot: b.slot})
	}
	return updates
}

func (b *Bank) payerUpdates(payer Pubkey) []AccountUpdate {
	acct, ok := b.accounts[payer]
	if !ok {
		return nil
	}
	return []AccountUpdate{{Pubkey: payer, Account: acct.Clone(), Slot: b.slot}}
}

func (b *Bank) advanceAfter(sig Signature) {
	b.advance(HashOf(b.blockhashes[len(b.blockhashes)-1][:], sig[:]))
}

// advance moves to the next slot and expires blockhashes and signatures
// that fell out of the window.
func (b *Bank) advance(next Hash) {
	if len(b.blockhashes) > 0 {
		b.slot++
	}
	b.blockhashes = append(b.blockhashes, next)
	b.recent[next] = b.slot
	for len(b.blockhashes) > b.window {
		delete(b.recent, b.blockhashes[0])
		b.blockhashes = b.blockhashes[1:]
	}
	for sig, slot := range b.processed {
		if b.slot-slot > uint64(b.window) {
			delete(b.processed, sig)
		}
	}
}

// IsBlockhashValid reports whether h is still accepted.
func (b *Bank) IsBlockhashValid(h Hash) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.recent[h]
	return ok
}

// IsTransactionError reports whether err came from instruction execution.
func IsTransactionError(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr)
}
