package subscription

// Status represents the current state of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrialing  Status = "trialing"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsCurrent reports whether the status counts against the single
// active-or-trialing row invariant.
func (s Status) IsCurrent() bool {
	return s == StatusActive || s == StatusTrialing
}

// IsBillable reports whether the subscription still represents a live billing
// relationship. Past-due rows are not current for entitlement purposes but
// must stay reachable so a later payment can recover them.
func (s Status) IsBillable() bool {
	return s.IsCurrent() || s == StatusPastDue
}
