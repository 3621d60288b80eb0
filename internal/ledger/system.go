package ledger

// System program instruction tags.
const (
	systemCreateAccount uint32 = 0
	systemAssign        uint32 = 1
	systemTransfer      uint32 = 2
)

type createAccountArgs struct {
	Tag      uint32
	Lamports uint64
	Space    uint64
	Owner    Pubkey
}

type assignArgs struct {
	Tag   uint32
	Owner Pubkey
}

type transferArgs struct {
	Tag      uint32
	Lamports uint64
}

// CreateAccount funds, allocates and assigns a new account. Both from and
// to must sign; to may sign through program-derived seeds.
func CreateAccount(from, to Pubkey, lamports uint64, space uint64, owner Pubkey) Instruction {
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{NewAccountMeta(from, true), NewAccountMeta(to, true)},
		Data:      EncodeBorsh(nil, createAccountArgs{Tag: systemCreateAccount, Lamports: lamports, Space: space, Owner: owner}),
	}
}

// Transfer moves lamports between system-owned accounts.
func Transfer(from, to Pubkey, lamports uint64) Instruction {
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{NewAccountMeta(from, true), NewAccountMeta(to, false)},
		Data:      EncodeBorsh(nil, transferArgs{Tag: systemTransfer, Lamports: lamports}),
	}
}

// Assign hands a system-owned account to another program.
func Assign(account, owner Pubkey) Instruction {
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []AccountMeta{NewAccountMeta(account, true)},
		Data:      EncodeBorsh(nil, assignArgs{Tag: systemAssign, Owner: owner}),
	}
}

type systemProgram struct{}

func (systemProgram) ID() Pubkey { return SystemProgramID }

func (systemProgram) Process(ic *InvokeContext, accounts []*AccountInfo, data []byte) error {
	var tag uint32
	if err := DecodeBorsh(data, &tag); err != nil {
		return ErrInvalidInstructionData
	}
	switch tag {
	case systemCreateAccount:
		var args createAccountArgs
		if err := DecodeBorsh(data, &args); err != nil {
			return ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		return createAccount(ic, accounts[0], accounts[1], args.Lamports, args.Space, args.Owner)
	case systemAssign:
		var args assignArgs
		if err := DecodeBorsh(data, &args); err != nil {
			return ErrInvalidInstructionData
		}
		if len(accounts) < 1 {
			return ErrNotEnoughAccountKeys
		}
		acct := accounts[0]
		if !acct.IsSigner {
			return ErrMissingRequiredSignature.WithMessage("assign %s", acct.Key)
		}
		if acct.Owner() != SystemProgramID {
			return ErrIllegalOwner
		}
		acct.Assign(args.Owner)
		return nil
	case systemTransfer:
		var args transferArgs
		if err := DecodeBorsh(data, &args); err != nil {
			return ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		return transfer(ic, accounts[0], accounts[1], args.Lamports)
	default:
		return ErrInvalidInstructionData.WithMessage("unknown system instruction %d", tag)
	}
}

func createAccount(ic *InvokeContext, from, to *AccountInfo, lamports, space uint64, owner Pubkey) error {
	if !to.IsSigner {
		return ErrMissingRequiredSignature.WithMessage("create account %s", to.Key)
	}
	if to.Lamports() > 0 || to.DataLen() > 0 || to.Owner() != SystemProgramID {
		ic.Log("Create Account: account %s already in use", to.Key)
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return ErrInvalidArgument.WithMessage("space %d exceeds limit", space)
	}
	if err := transfer(ic, from, to, lamports); err != nil {
		return err
	}
	to.account.Data = make([]byte, space)
	to.Assign(owner)
	return nil
}

func transfer(ic *InvokeContext, from, to *AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return ErrMissingRequiredSignature.WithMessage("transfer from %s", from.Key)
	}
	if from.DataLen() > 0 || from.Owner() != SystemProgramID {
		return ErrInvalidArgument.WithMessage("transfer: from must not carry data")
	}
	if from.Lamports() < lamports {
		ic.Log("Transfer: insufficient lamports %d, need %d", from.Lamports(), lamports)
		return ErrInsufficientFunds
	}
	from.SetLamports(from.Lamports() - lamports)
	to.SetLamports(to.Lamports() + lamports)
	return nil
}
