package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription binds a user to a plan for a billing period. Rows are never
// hard-deleted: superseded subscriptions transition to cancelled and stay
// around for billing audit.
type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	PlanID             string
	Status             Status
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	ProviderSubID      string // billing provider's subscription ID, empty for free plans
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CancelledAt        *time.Time
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// InPeriodAt reports whether t falls inside the current billing period.
func (s *Subscription) InPeriodAt(t time.Time) bool {
	t = t.UTC()
	return !t.Before(s.CurrentPeriodStart) && t.Before(s.CurrentPeriodEnd)
}
