package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/plans"
	"github.com/wodworks/coachkit/pkg/trial"
)

// CreditGranter is the hook the billing webhook uses to credit purchased
// packs. Satisfied by *credits.Engine.
type CreditGranter interface {
	Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string, metadata map[string]any) (int64, error)
}

// Service manages the subscription lifecycle: signup onto the default plan,
// upgrades that supersede the prior subscription, cancellation, renewal, and
// billing webhook ingestion.
type Service struct {
	catalog  *plans.Catalog
	store    Store
	provider BillingProvider
	granter  CreditGranter
	trials   *trial.Manager
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithProvider attaches a billing provider for checkout/portal/webhooks.
func WithProvider(p BillingProvider) ServiceOption {
	return func(s *Service) { s.provider = p }
}

// WithCreditGranter routes credit-pack purchase events into the accounting
// engine.
func WithCreditGranter(g CreditGranter) ServiceOption {
	return func(s *Service) { s.granter = g }
}

// WithTrialManager lets paid upgrades flag a matching trial as converted.
func WithTrialManager(m *trial.Manager) ServiceOption {
	return func(s *Service) { s.trials = m }
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the reference clock, primarily for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a subscription Service. Catalog and store are required;
// everything else is optional.
func NewService(catalog *plans.Catalog, store Store, opts ...ServiceOption) *Service {
	if catalog == nil {
		panic("subscription: plan catalog is required")
	}
	if store == nil {
		panic("subscription: store is required")
	}

	s := &Service{
		catalog: catalog,
		store:   store,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup puts a new user on the default free plan.
func (s *Service) Signup(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.startPlan(ctx, userID, s.catalog.DefaultPlan().ID, StatusActive, "")
}

// Subscribe moves the user onto the given plan as an active paid
// subscription, superseding whatever was current. If the user is mid-trial on
// the same plan, the trial is flagged as converted.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, planID, providerSubID string) (*Subscription, error) {
	sub, err := s.startPlan(ctx, userID, planID, StatusActive, providerSubID)
	if err != nil {
		return nil, err
	}

	if s.trials != nil {
		if err := s.trials.Convert(ctx, userID, planID); err != nil && !errors.Is(err, trial.ErrNoActiveTrial) {
			// Conversion bookkeeping must not undo a paid upgrade.
			s.log.ErrorContext(ctx, "failed to mark trial converted",
				"user_id", userID, "plan_id", planID, "error", err)
		}
	}
	return sub, nil
}

// Current returns the user's active-or-trialing subscription.
func (s *Service) Current(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.store.Current(ctx, userID)
}

// History returns all subscriptions for the user, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	return s.store.History(ctx, userID)
}

// Cancel ends the current subscription. With atPeriodEnd the subscription
// stays current until the period closes; otherwise it is cancelled
// immediately.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, atPeriodEnd bool) (*Subscription, error) {
	sub, err := s.store.Billable(ctx, userID)
	if err != nil {
		return nil, err
	}

	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		now := s.now()
		sub.Status = StatusCancelled
		sub.CancelledAt = &now
	}

	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Reactivate clears a pending cancel-at-period-end flag.
func (s *Service) Reactivate(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Billable(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.CancelAtPeriodEnd {
		return nil, ErrInvalidSubscriptionState
	}

	sub.CancelAtPeriodEnd = false
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Renew advances the billing period by one month and clears past-due state.
// Invoked on successful payment events. A subscription flagged
// cancel-at-period-end is cancelled instead of renewed.
func (s *Service) Renew(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.Billable(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if sub.CancelAtPeriodEnd {
		sub.Status = StatusCancelled
		sub.CancelledAt = &now
	} else {
		sub.Status = StatusActive
		sub.CurrentPeriodStart = sub.CurrentPeriodEnd
		sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.AddDate(0, 1, 0)
	}

	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CreateCheckoutLink starts a hosted checkout for the plan.
func (s *Service) CreateCheckoutLink(ctx context.Context, userID uuid.UUID, planID, email, successURL, cancelURL string) (*CheckoutLink, error) {
	if s.provider == nil {
		return nil, errors.New("no billing provider configured")
	}
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}

	// Free plans skip the provider entirely.
	if plan.IsFree() {
		if _, err := s.startPlan(ctx, userID, planID, StatusActive, ""); err != nil {
			return nil, err
		}
		return &CheckoutLink{URL: successURL, ExpiresAt: s.now().Add(5 * time.Minute)}, nil
	}

	return s.provider.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:    plan.ID, // plan IDs double as provider price IDs
		CustomerID: userID.String(),
		Email:      email,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
}

// HandleWebhook folds a billing provider event into subscription and credit
// state.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return errors.New("no billing provider configured")
	}

	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(event.CustomerID)
	if err != nil {
		return fmt.Errorf("invalid user ID in webhook: %w", err)
	}

	switch event.Type {
	case EventSubscriptionCreated:
		_, err := s.Subscribe(ctx, userID, event.PlanID, event.SubscriptionID)
		return err

	case EventSubscriptionUpdated:
		sub, err := s.store.Billable(ctx, userID)
		if err != nil {
			return err
		}
		if event.PlanID != "" && event.PlanID != sub.PlanID {
			if _, err := s.catalog.Plan(event.PlanID); err != nil {
				return err
			}
			sub.PlanID = event.PlanID
		}
		return s.store.Update(ctx, sub)

	case EventSubscriptionCancelled:
		_, err := s.Cancel(ctx, userID, false)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return err

	case EventPaymentSucceeded:
		_, err := s.Renew(ctx, userID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		return err

	case EventPaymentFailed:
		sub, err := s.store.Billable(ctx, userID)
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		sub.Status = StatusPastDue
		return s.store.Update(ctx, sub)

	case EventCreditPurchase:
		if s.granter == nil {
			s.log.WarnContext(ctx, "credit purchase received but no granter configured",
				"user_id", userID, "credits", event.Credits)
			return nil
		}
		_, err := s.granter.Grant(ctx, userID, event.Credits, "purchase", map[string]any{
			"provider_event": event.ProviderEvent,
			"transaction_id": event.SubscriptionID,
		})
		return err
	}

	// Unmapped provider events are ignored on purpose.
	return nil
}

func (s *Service) startPlan(ctx context.Context, userID uuid.UUID, planID string, status Status, providerSubID string) (*Subscription, error) {
	if _, err := s.catalog.Plan(planID); err != nil {
		return nil, err
	}

	now := s.now()
	sub := &Subscription{
		UserID:             userID,
		PlanID:             planID,
		Status:             status,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		ProviderSubID:      providerSubID,
	}
	if err := s.store.CreateSuperseding(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}
