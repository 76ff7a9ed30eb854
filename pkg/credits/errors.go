package credits

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount       = errors.New("credit amount must be a positive integer")
	ErrUnknownFeature      = errors.New("unknown feature key")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotRefundable       = errors.New("ledger entry is not refundable")
	ErrTransientConflict   = errors.New("balance mutation conflicted, retry later")
)

// InsufficientCreditsError carries the required vs. available context callers
// need to present an upgrade or purchase path. Matches ErrInsufficientCredits
// via errors.Is.
type InsufficientCreditsError struct {
	Feature   string
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for %s: required %d, available %d",
		e.Feature, e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}
