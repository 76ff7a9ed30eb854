package coach

import (
	"errors"
	"fmt"

	"github.com/wodworks/coachkit/pkg/entitlement"
)

var (
	// ErrNotEntitled marks expected entitlement denials. Match with errors.Is
	// and extract the decision with errors.As on *DeniedError.
	ErrNotEntitled = errors.New("action not entitled")

	// ErrGenerationFailed marks upstream provider failures and timeouts.
	// Retryable by the caller; no credits were charged.
	ErrGenerationFailed = errors.New("generation failed")
)

// DeniedError carries the full entitlement decision so callers can present
// the upgrade path (required vs. available credits, denial reason).
type DeniedError struct {
	Decision *entitlement.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("action denied: %s (credits required %d, available %d)",
		e.Decision.Denial, e.Decision.CreditsRequired, e.Decision.CreditsAvailable)
}

func (e *DeniedError) Unwrap() error {
	return ErrNotEntitled
}
