package trial

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Trial is a one-time, time-boxed grant of a plan's entitlements. A user may
// trial each plan at most once, ever; the record is immutable once converted
// or expired except for the conversion flag.
type Trial struct {
	UserID      uuid.UUID
	PlanID      string
	StartedAt   time.Time
	EndsAt      time.Time
	Converted   bool
	ConvertedAt *time.Time
}

// IsActiveAt reports whether the trial window is open at the given time and
// the trial has not been converted to paid.
func (t *Trial) IsActiveAt(now time.Time) bool {
	return !t.Converted && now.UTC().Before(t.EndsAt)
}

// DaysRemainingAt returns whole days left in the trial at the given time,
// rounding partial days up. Zero for converted or expired trials.
func (t *Trial) DaysRemainingAt(now time.Time) int {
	if !t.IsActiveAt(now) {
		return 0
	}
	remaining := t.EndsAt.Sub(now.UTC())
	return int(math.Ceil(remaining.Hours() / 24))
}

// Status is the read-model for a (user, plan) trial. A missing record is the
// zero value with HasHistory false, not an error.
type Status struct {
	HasHistory    bool
	Active        bool
	DaysRemaining int
	Converted     bool
	EndsAt        time.Time
}
