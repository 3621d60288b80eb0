package ledger

// AccountMeta names an account an instruction touches and the privileges it needs.
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// NewAccountMeta returns a writable meta.
func NewAccountMeta(pubkey Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: signer, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only meta.
func NewReadonlyAccountMeta(pubkey Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: signer, IsWritable: false}
}

// Instruction invokes one program with an ordered account list and opaque data.
type Instruction struct {
	ProgramID Pubkey        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}
