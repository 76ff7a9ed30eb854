package ledger

import "errors"

var (
	ErrEntryNotFound        = errors.New("ledger entry not found")
	ErrInsufficientBalance  = errors.New("insufficient credit balance")
	ErrAlreadyCompensated   = errors.New("ledger entry already compensated")
	ErrInvalidEntry         = errors.New("invalid ledger entry")
	ErrSerializationFailure = errors.New("ledger write conflicted with a concurrent transaction")
	ErrStorageFailure       = errors.New("ledger storage failure")
)
