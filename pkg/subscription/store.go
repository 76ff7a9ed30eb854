package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store persists subscriptions. Implementations must uphold the invariant
// that a user has at most one active-or-trialing row at any instant:
// CreateSuperseding cancels the prior current row and inserts the new one in
// a single atomic unit.
type Store interface {
	// Current returns the user's active-or-trialing subscription,
	// ErrSubscriptionNotFound when there is none.
	Current(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Billable returns the user's newest active, trialing or past-due
	// subscription, ErrSubscriptionNotFound when there is none. Lifecycle
	// operations use this so a past-due row stays recoverable.
	Billable(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// CreateSuperseding atomically cancels any current subscription for the
	// user and inserts sub as the new current one.
	CreateSuperseding(ctx context.Context, sub *Subscription) error

	// Update rewrites a subscription's mutable fields by ID.
	Update(ctx context.Context, sub *Subscription) error

	// History returns all subscriptions for a user, newest first. Cancelled
	// rows are retained for billing audit.
	History(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
}
