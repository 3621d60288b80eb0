package ledger

import (
	"errors"
	"fmt"
)

// ProgramError is the failure returned by a program or by the runtime while
// executing an instruction. Builtin errors carry a name; program-defined
// errors are Custom with a numeric code.
type ProgramError struct {
	Name    string `json:"name"`
	Custom  bool   `json:"custom,omitempty"`
	Code    uint32 `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *ProgramError) Error() string {
	if e.Custom {
		if e.Message != "" {
			return fmt.Sprintf("custom program error 0x%x (%s): %s", e.Code, e.Name, e.Message)
		}
		return fmt.Sprintf("custom program error 0x%x (%s)", e.Code, e.Name)
	}
	if e.Message != "" {
		return e.Name + ": " + e.Message
	}
	return e.Name
}

// Is matches program errors by identity of name and custom code so that
// wrapped copies carrying different messages still compare equal.
func (e *ProgramError) Is(target error) bool {
	var other *ProgramError
	if !errors.As(target, &other) {
		return false
	}
	if e.Custom || other.Custom {
		return e.Custom == other.Custom && e.Code == other.Code
	}
	return e.Name == other.Name
}

// WithMessage returns a copy of e carrying additional detail.
func (e *ProgramError) WithMessage(format string, args ...any) *ProgramError {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

func builtin(name string) *ProgramError { return &ProgramError{Name: name} }

// CustomError declares a program-specific error code.
func CustomError(code uint32, name, message string) *ProgramError {
	return &ProgramError{Name: name, Custom: true, Code: code, Message: message}
}

// Builtin instruction errors.
var (
	ErrInvalidArgument             = builtin("InvalidArgument")
	ErrInvalidInstructionData      = builtin("InvalidInstructionData")
	ErrInvalidAccountData          = builtin("InvalidAccountData")
	ErrAccountDataTooSmall         = builtin("AccountDataTooSmall")
	ErrInsufficientFunds           = builtin("InsufficientFunds")
	ErrIncorrectProgramID          = builtin("IncorrectProgramId")
	ErrMissingRequiredSignature    = builtin("MissingRequiredSignature")
	ErrAccountAlreadyInUse         = builtin("AccountAlreadyInUse")
	ErrUninitializedAccount        = builtin("UninitializedAccount")
	ErrNotEnoughAccountKeys        = builtin("NotEnoughAccountKeys")
	ErrIllegalOwner                = builtin("IllegalOwner")
	ErrInvalidSeeds                = builtin("InvalidSeeds")
	ErrInvalidRealloc              = builtin("InvalidRealloc")
	ErrPrivilegeEscalation         = builtin("PrivilegeEscalation")
	ErrUnsupportedProgramID        = builtin("UnsupportedProgramId")
	ErrMissingAccount              = builtin("MissingAccount")
	ErrCallDepth                   = builtin("CallDepth")
	ErrReadonlyDataModified        = builtin("ReadonlyDataModified")
	ErrReadonlyLamportChange       = builtin("ReadonlyLamportChange")
	ErrExternalAccountDataModified = builtin("ExternalAccountDataModified")
	ErrExternalLamportSpend        = builtin("ExternalAccountLamportSpend")
	ErrModifiedProgramID           = builtin("ModifiedProgramId")
	ErrExecutableModified          = builtin("ExecutableModified")
	ErrUnbalancedInstruction       = builtin("UnbalancedInstruction")
)

// Transaction-level failures. These are detected before any instruction runs
// (or, for rent, after all of them) and never carry an instruction index.
var (
	ErrSignatureFailure          = errors.New("transaction signature verification failure")
	ErrBlockhashNotFound         = errors.New("blockhash not found")
	ErrAlreadyProcessed          = errors.New("this transaction has already been processed")
	ErrAccountNotFound           = errors.New("attempt to debit an account but found no record of a prior credit")
	ErrInsufficientFundsForFee   = errors.New("insufficient funds for fee")
	ErrInsufficientFundsForRent  = errors.New("transaction results in an account with insufficient funds for rent")
	ErrInvalidComputeBudget      = errors.New("invalid compute budget instruction")
	ErrDuplicateComputeBudgetArg = errors.New("duplicate compute budget instruction")
)

// TransactionError reports which instruction of a transaction failed.
type TransactionError struct {
	Index int
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("error processing instruction %d: %v", e.Index, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
