package ledger

import (
	"bytes"
	"fmt"
)

// MaxInvokeDepth bounds nested cross-program invocations.
const MaxInvokeDepth = 4

// Program is native code the bank can execute.
type Program interface {
	ID() Pubkey
	Process(ic *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// InvokeContext is handed to a program for the duration of one instruction.
type InvokeContext struct {
	bank      *Bank
	working   map[Pubkey]*Account
	programID Pubkey
	signers   map[Pubkey]bool
	writable  map[Pubkey]bool
	depth     int
	logs      *[]string
	before    map[Pubkey]*Account
}

// ProgramID is the program currently executing.
func (ic *InvokeContext) ProgramID() Pubkey { return ic.programID }

func (ic *InvokeContext) Rent() Rent { return ic.bank.rent }

// Log appends a line to the transaction log.
func (ic *InvokeContext) Log(format string, args ...any) {
	*ic.logs = append(*ic.logs, "Program log: "+fmt.Sprintf(format, args...))
}

// Invoke calls another program with the caller's privileges.
func (ic *InvokeContext) Invoke(ix Instruction) error {
	return ic.InvokeSigned(ix, nil)
}

// InvokeSigned calls another program. Each seed set must derive, under the
// calling program, an address that then counts as a signer.
func (ic *InvokeContext) InvokeSigned(ix Instruction, signerSeeds [][][]byte) error {
	if ic.depth+1 > MaxInvokeDepth {
		return ErrCallDepth
	}
	pdaSigners := make(map[Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := CreateProgramAddress(seeds, ic.programID)
		if err != nil {
			return ErrInvalidSeeds.WithMessage("%v", err)
		}
		pdaSigners[addr] = true
	}
	if _, ok := ic.before[ix.ProgramID]; !ok {
		return ErrMissingAccount.WithMessage("program %s not provided to the caller", ix.ProgramID)
	}
	signers := make(map[Pubkey]bool, len(ix.Accounts))
	writable := make(map[Pubkey]bool, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		if _, ok := ic.before[meta.Pubkey]; !ok {
			return ErrMissingAccount.WithMessage("%s", meta.Pubkey)
		}
		if meta.IsSigner {
			if !ic.signers[meta.Pubkey] && !pdaSigners[meta.Pubkey] {
				ic.Log("%s's signer privilege escalated", meta.Pubkey)
				return ErrPrivilegeEscalation
			}
			signers[meta.Pubkey] = true
		}
		if meta.IsWritable {
			if !ic.writable[meta.Pubkey] {
				ic.Log("%s's writable privilege escalated", meta.Pubkey)
				return ErrPrivilegeEscalation
			}
			writable[meta.Pubkey] = true
		}
	}
	if err := ic.checkpoint(true); err != nil {
		return err
	}
	if err := ic.bank.execute(ic.working, ix, signers, writable, ic.depth+1, ic.logs); err != nil {
		return err
	}
	_ = ic.checkpoint(false)
	return nil
}

// checkpoint folds the caller's changes so far into its snapshot so that a
// callee's effects are not attributed to the caller.
func (ic *InvokeContext) checkpoint(verify bool) error {
	if verify {
		if err := verifyChanges(ic.programID, ic.before, ic.working, ic.writable); err != nil {
			return err
		}
	}
	for key := range ic.before {
		ic.before[key] = ic.working[key].Clone()
	}
	return nil
}

// execute runs one instruction against the working set and enforces the
// ownership rules on every account it touched.
func (b *Bank) execute(working map[Pubkey]*Account, ix Instruction, signers, writable map[Pubkey]bool, depth int, logs *[]string) error {
	program, ok := b.programs[ix.ProgramID]
	if !ok {
		return ErrUnsupportedProgramID.WithMessage("%s", ix.ProgramID)
	}
	*logs = append(*logs, fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, depth))

	infos := make([]*AccountInfo, len(ix.Accounts))
	before := make(map[Pubkey]*Account, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		acct := working[meta.Pubkey]
		infos[i] = &AccountInfo{
			Key:         meta.Pubkey,
			IsSigner:    signers[meta.Pubkey],
			IsWritable:  writable[meta.Pubkey],
			account:     acct,
			originalLen: len(acct.Data),
		}
		if _, seen := before[meta.Pubkey]; !seen {
			before[meta.Pubkey] = acct.Clone()
		}
	}

	ic := &InvokeContext{
		bank:      b,
		working:   working,
		programID: ix.ProgramID,
		signers:   signers,
		writable:  writable,
		depth:     depth,
		logs:      logs,
		before:    before,
	}
	if err := program.Process(ic, infos, ix.Data); err != nil {
		*logs = append(*logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	if err := verifyChanges(ix.ProgramID, before, working, writable); err != nil {
		*logs = append(*logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	*logs = append(*logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	return nil
}

func verifyChanges(programID Pubkey, before map[Pubkey]*Account, working map[Pubkey]*Account, writable map[Pubkey]bool) error {
	var sumBefore, sumAfter uint64
	for key, pre := range before {
		post := working[key]
		sumBefore += pre.Lamports
		sumAfter += post.Lamports
		if pre.equal(post) {
			continue
		}
		if pre.Executable {
			return ErrExecutableModified.WithMessage("%s", key)
		}
		if !writable[key] {
			if pre.Lamports != post.Lamports {
				return ErrReadonlyLamportChange.WithMessage("%s", key)
			}
			return ErrReadonlyDataModified.WithMessage("%s", key)
		}
		if pre.Owner != post.Owner && pre.Owner != programID {
			return ErrModifiedProgramID.WithMessage("%s", key)
		}
		if !bytes.Equal(pre.Data, post.Data) && pre.Owner != programID {
			return ErrExternalAccountDataModified.WithMessage("%s", key)
		}
		if post.Lamports < pre.Lamports && pre.Owner != programID {
			return ErrExternalLamportSpend.WithMessage("%s", key)
		}
	}
	if sumBefore != sumAfter {
		return ErrUnbalancedInstruction.WithMessage("lamports before %d, after %d", sumBefore, sumAfter)
	}
	return nil
}
