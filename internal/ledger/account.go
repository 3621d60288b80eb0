package ledger

import "bytes"

const (
	// AccountStorageOverhead is charged on top of the data length when
	// computing the rent-exempt minimum.
	AccountStorageOverhead = 128
	// MaxPermittedDataLength caps account data size.
	MaxPermittedDataLength = 10 * 1024 * 1024
	// MaxPermittedDataIncrease caps growth of one account within one instruction.
	MaxPermittedDataIncrease = 10 * 1024
)

// Account is the state stored at an address.
type Account struct {
	Lamports   uint64 `json:"lamports"`
	Owner      Pubkey `json:"owner"`
	Data       []byte `json:"data"`
	Executable bool   `json:"executable"`
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Data = append([]byte(nil), a.Data...)
	return &out
}

func (a *Account) equal(b *Account) bool {
	return a.Lamports == b.Lamports && a.Owner == b.Owner && a.Executable == b.Executable && bytes.Equal(a.Data, b.Data)
}

func (a *Account) empty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && a.Owner == SystemProgramID && !a.Executable
}

// Rent computes rent-exempt minimum balances.
type Rent struct {
	LamportsPerByteYear uint64 `json:"lamportsPerByteYear"`
	ExemptionThreshold  uint64 `json:"exemptionThreshold"`
}

// DefaultRent mirrors the mainnet parameters.
var DefaultRent = Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2}

// MinimumBalance returns the lamports needed to keep size bytes rent exempt.
func (r Rent) MinimumBalance(size int) uint64 {
	return (AccountStorageOverhead + uint64(size)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// IsExempt reports whether lamports cover an account of size bytes.
func (r Rent) IsExempt(lamports uint64, size int) bool {
	return lamports >= r.MinimumBalance(size)
}

// KeyedAccount pairs an address with its state.
type KeyedAccount struct {
	Pubkey  Pubkey   `json:"pubkey"`
	Account *Account `json:"account"`
}

// AccountUpdate is published whenever a committed transaction changes an account.
type AccountUpdate struct {
	Pubkey  Pubkey   `json:"pubkey"`
	Account *Account `json:"account"`
	Slot    uint64   `json:"slot"`
}

// AccountInfo is a program's view of one instruction account. Writes go
// straight to the transaction's working copy.
type AccountInfo struct {
	Key        Pubkey
	IsSigner   bool
	IsWritable bool

	account     *Account
	originalLen int
}

func (a *AccountInfo) Lamports() uint64 { return a.account.Lamports }

func (a *AccountInfo) SetLamports(v uint64) { a.account.Lamports = v }

func (a *AccountInfo) Owner() Pubkey { return a.account.Owner }

// Assign changes the owner. The runtime only accepts it from the current owner.
func (a *AccountInfo) Assign(owner Pubkey) { a.account.Owner = owner }

func (a *AccountInfo) Executable() bool { return a.account.Executable }

// Data returns the live data slice; writes within its length are visible to the runtime.
func (a *AccountInfo) Data() []byte { return a.account.Data }

func (a *AccountInfo) DataLen() int { return len(a.account.Data) }

// Resize changes the data length, zero-filling any growth.
func (a *AccountInfo) Resize(size int) error {
	if size < 0 || size > MaxPermittedDataLength {
		return ErrInvalidRealloc.WithMessage("size %d out of range", size)
	}
	if size > a.originalLen+MaxPermittedDataIncrease {
		return ErrInvalidRealloc.WithMessage("growth from %d to %d exceeds %d bytes", a.originalLen, size, MaxPermittedDataIncrease)
	}
	cur := a.account.Data
	switch {
	case size <= len(cur):
		a.account.Data = cur[:size:size]
	default:
		grown := make([]byte, size)
		copy(grown, cur)
		a.account.Data = grown
	}
	return nil
}

// Lookup finds an account by key.
func Lookup(accounts []*AccountInfo, key Pubkey) (*AccountInfo, bool) {
	for _, acct := range accounts {
		if acct.Key == key {
			return acct, true
		}
	}
	return nil, false
}
