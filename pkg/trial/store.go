package trial

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists trial records. Implementations must enforce the one-trial-
// per-(user, plan) invariant at write time: Create fails with
// ErrAlreadyTrialed when any record for the pair exists, regardless of its
// expiry or conversion state.
type Store interface {
	// Create inserts a new trial record.
	Create(ctx context.Context, t Trial) error

	// Get returns the trial for (user, plan), ErrTrialNotFound when missing.
	Get(ctx context.Context, userID uuid.UUID, planID string) (*Trial, error)

	// ActiveForUser returns the user's unconverted trial with the latest end
	// time whose window may still be open, or ErrTrialNotFound. Callers must
	// still check IsActiveAt against their own clock.
	ActiveForUser(ctx context.Context, userID uuid.UUID) (*Trial, error)

	// MarkConverted sets the conversion flag; the original window fields are
	// never mutated.
	MarkConverted(ctx context.Context, userID uuid.UUID, planID string, at time.Time) error
}
