package registry

import "LLM-Oracle-Chain/internal/ledger"

// 程序自定义错误码。
var (
	ErrInvalidAdmin            = ledger.CustomError(6000, "InvalidAdmin", "signer is not the configured admin")
	ErrUnauthorized            = ledger.CustomError(6001, "Unauthorized", "account does not match the expected authority")
	ErrAlreadyProcessed        = ledger.CustomError(6002, "AlreadyProcessed", "inference has already been answered")
	ErrCallbackProgramMismatch = ledger.CustomError(6003, "CallbackProgramMismatch", "program does not match the stored callback target")
	ErrAccountDiscriminator    = ledger.CustomError(3002, "AccountDiscriminatorMismatch", "account discriminator did not match")
	ErrAccountNotInitialized   = ledger.CustomError(3012, "AccountNotInitialized", "account is not initialized")
	ErrConstraintSeeds         = ledger.CustomError(2006, "ConstraintSeeds", "seeds constraint was violated")
)
