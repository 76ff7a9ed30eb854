package trial

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/plans"
)

// Manager gates trial eligibility and conversions. Trials are strictly
// one-shot per (user, plan): eligibility never resets, not even after expiry
// or conversion.
type Manager struct {
	store   Store
	catalog *plans.Catalog
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the reference clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a trial Manager. Panics on nil dependencies to fail fast
// during composition.
func NewManager(store Store, catalog *plans.Catalog, opts ...Option) *Manager {
	if store == nil {
		panic("trial: store is required")
	}
	if catalog == nil {
		panic("trial: plan catalog is required")
	}

	m := &Manager{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a trial of the given plan. Fails with ErrAlreadyTrialed when
// any trial record exists for the pair, and ErrTrialNotAvailable when the
// plan has no trial window configured.
func (m *Manager) Start(ctx context.Context, userID uuid.UUID, planID string) (*Trial, error) {
	plan, err := m.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}
	if plan.TrialDays <= 0 {
		return nil, ErrTrialNotAvailable
	}

	now := m.now().UTC()
	t := Trial{
		UserID:    userID,
		PlanID:    planID,
		StartedAt: now,
		EndsAt:    plan.TrialEndsAt(now),
	}

	// The store enforces uniqueness; a pre-read here would just race.
	if err := m.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Status reports the trial state for (user, plan). A user with no trial
// history gets the zero Status rather than an error.
func (m *Manager) Status(ctx context.Context, userID uuid.UUID, planID string) (Status, error) {
	t, err := m.store.Get(ctx, userID, planID)
	if errors.Is(err, ErrTrialNotFound) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	now := m.now()
	return Status{
		HasHistory:    true,
		Active:        t.IsActiveAt(now),
		DaysRemaining: t.DaysRemainingAt(now),
		Converted:     t.Converted,
		EndsAt:        t.EndsAt,
	}, nil
}

// Convert flags the trial as converted to paid. Fails with ErrNoActiveTrial
// unless an unconverted, unexpired trial exists right now.
func (m *Manager) Convert(ctx context.Context, userID uuid.UUID, planID string) error {
	t, err := m.store.Get(ctx, userID, planID)
	if errors.Is(err, ErrTrialNotFound) {
		return ErrNoActiveTrial
	}
	if err != nil {
		return err
	}

	if !t.IsActiveAt(m.now()) {
		return ErrNoActiveTrial
	}

	if err := m.store.MarkConverted(ctx, userID, planID, m.now()); err != nil {
		if errors.Is(err, ErrTrialNotFound) {
			// Lost a race with another conversion.
			return ErrNoActiveTrial
		}
		return err
	}
	return nil
}

// Active returns the user's currently active trial, or ErrTrialNotFound.
func (m *Manager) Active(ctx context.Context, userID uuid.UUID) (*Trial, error) {
	t, err := m.store.ActiveForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !t.IsActiveAt(m.now()) {
		return nil, ErrTrialNotFound
	}
	return t, nil
}
