package services

import "errors"

// Failure taxonomy for movement operations. Validation failures are detected
// before any mutation and abort with zero side effects; anything else is
// wrapped and surfaced as an internal failure.
var (
	ErrInvalidAsset         = errors.New("invalid asset code")
	ErrAccountNotFound      = errors.New("account not found")
	ErrBalanceRecordMissing = errors.New("balance record not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrSelfOperation        = errors.New("cannot transfer to self")
)
