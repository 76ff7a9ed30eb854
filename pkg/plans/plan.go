package plans

import (
	"slices"
	"time"
)

// Plan describes a subscription tier: its monthly quota vector, feature flags,
// price and trial length. Plans are read-only to the rest of the system;
// callers must not mutate returned values.
type Plan struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	PriceCents  int64              `yaml:"price_cents"` // monthly price in the smallest currency unit
	Quotas      map[Category]int64 `yaml:"quotas"`      // monthly allowances, Unlimited (-1) for no cap
	Features    []Feature          `yaml:"features"`
	TrialDays   int                `yaml:"trial_days"` // 0 disables trial
	Default     bool               `yaml:"default"`    // the zero-cost tier assigned at signup
}

// HasFeature reports whether the plan includes the feature flag.
func (p Plan) HasFeature(f Feature) bool {
	return slices.Contains(p.Features, f)
}

// Quota returns the monthly allowance for a category. The second return is
// false when the plan has no matching quota field at all.
func (p Plan) Quota(c Category) (int64, bool) {
	q, ok := p.Quotas[c]
	return q, ok
}

// IsFree reports whether the plan costs nothing.
func (p Plan) IsFree() bool {
	return p.PriceCents == 0
}

// TrialEndsAt returns when a trial started at the given time ends.
// Returns startedAt unchanged for plans without a trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}
