package ledger

import "time"

// Period is a half-open time window [Start, End) used to bound quota queries.
type Period struct {
	Start time.Time
	End   time.Time
}

// CurrentPeriod returns the UTC calendar month containing now:
// [first-of-month 00:00, next-first-of-month 00:00).
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}
