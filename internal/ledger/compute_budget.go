package ledger

import "fmt"

const (
	computeBudgetSetUnitLimit uint8 = 2
	computeBudgetSetUnitPrice uint8 = 3

	// DefaultComputeUnitLimit applies when a transaction sets no limit.
	DefaultComputeUnitLimit uint32 = 200_000
	// MaxComputeUnitLimit is the per-transaction ceiling.
	MaxComputeUnitLimit uint32 = 1_400_000
	// LamportsPerSignature is the base fee.
	LamportsPerSignature uint64 = 5000

	microLamportsPerLamport = 1_000_000
)

type unitLimitArgs struct {
	Tag   uint8
	Units uint32
}

type unitPriceArgs struct {
	Tag           uint8
	MicroLamports uint64
}

// SetComputeUnitLimit requests a compute ceiling for the transaction.
func SetComputeUnitLimit(units uint32) Instruction {
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: EncodeBorsh(nil, unitLimitArgs{Tag: computeBudgetSetUnitLimit, Units: units})}
}

// SetComputeUnitPrice sets the priority fee in micro-lamports per unit.
func SetComputeUnitPrice(microLamports uint64) Instruction {
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: EncodeBorsh(nil, unitPriceArgs{Tag: computeBudgetSetUnitPrice, MicroLamports: microLamports})}
}

// ComputeBudget is the compute allocation a transaction requested.
type ComputeBudget struct {
	UnitLimit uint32
	UnitPrice uint64
}

// PriorityFee returns ceil(limit * price / 1e6) lamports.
func (b ComputeBudget) PriorityFee() uint64 {
	total := uint64(b.UnitLimit) * b.UnitPrice
	return (total + microLamportsPerLamport - 1) / microLamportsPerLamport
}

// ParseComputeBudget scans a message for compute budget instructions.
func ParseComputeBudget(instructions []Instruction) (ComputeBudget, error) {
	budget := ComputeBudget{UnitLimit: DefaultComputeUnitLimit}
	var limitSet, priceSet bool
	for i, ix := range instructions {
		if ix.ProgramID != ComputeBudgetProgramID {
			continue
		}
		if len(ix.Data) == 0 {
			return budget, fmt.Errorf("%w: empty data at instruction %d", ErrInvalidComputeBudget, i)
		}
		var err error
		switch tag := ix.Data[0]; tag {
		case computeBudgetSetUnitLimit:
			if limitSet {
				return budget, fmt.Errorf("%w at instruction %d", ErrDuplicateComputeBudgetArg, i)
			}
			limitSet = true
			var args unitLimitArgs
			err = DecodeBorsh(ix.Data, &args)
			budget.UnitLimit = min(args.Units, MaxComputeUnitLimit)
		case computeBudgetSetUnitPrice:
			if priceSet {
				return budget, fmt.Errorf("%w at instruction %d", ErrDuplicateComputeBudgetArg, i)
			}
			priceSet = true
			var args unitPriceArgs
			err = DecodeBorsh(ix.Data, &args)
			budget.UnitPrice = args.MicroLamports
		default:
			return budget, fmt.Errorf("%w: tag %d at instruction %d", ErrInvalidComputeBudget, tag, i)
		}
		if err != nil {
			return budget, fmt.Errorf("%w at instruction %d: %v", ErrInvalidComputeBudget, i, err)
		}
	}
	return budget, nil
}

// computeBudgetProgram accepts the instructions ParseComputeBudget already validated.
type computeBudgetProgram struct{}

func (computeBudgetProgram) ID() Pubkey { return ComputeBudgetProgramID }

func (computeBudgetProgram) Process(*InvokeContext, []*AccountInfo, []byte) error { return nil }
