package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/ledger"
	"github.com/wodworks/coachkit/pkg/plans"
	"github.com/wodworks/coachkit/pkg/subscription"
	"github.com/wodworks/coachkit/pkg/trial"
)

// SubscriptionSource yields the user's current subscription.
// Satisfied by *subscription.Service.
type SubscriptionSource interface {
	Current(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error)
}

// TrialSource yields the user's active trial. Satisfied by *trial.Manager.
type TrialSource interface {
	Active(ctx context.Context, userID uuid.UUID) (*trial.Trial, error)
}

// UsageSource counts current-period usage records. Satisfied by ledger.Store.
type UsageSource interface {
	UsageCount(ctx context.Context, userID uuid.UUID, feature string, p ledger.Period) (int64, error)
}

// CreditSource exposes the balance and the cost table.
// Satisfied by *credits.Engine.
type CreditSource interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Cost(featureKey string) (int64, error)
}

// Resolver computes the allow/deny decision for every metered action before
// the expensive generation work starts. Dependencies are injected as narrow
// interfaces so the resolver has no load-order coupling to the services
// behind them.
type Resolver struct {
	catalog *plans.Catalog
	subs    SubscriptionSource
	trials  TrialSource
	usage   UsageSource
	credit  CreditSource
	cache   UsageCache
	now     func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithUsageCache adds a read-through cache for current-period usage counts.
// Safe because the decision is advisory: staleness can only shift a request
// between the quota and credit paths, and the credit path re-validates
// atomically at deduction time.
func WithUsageCache(c UsageCache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithClock overrides the reference clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver creates a Resolver. All data sources are required.
func NewResolver(catalog *plans.Catalog, subs SubscriptionSource, trials TrialSource, usage UsageSource, credit CreditSource, opts ...Option) *Resolver {
	if catalog == nil {
		panic("entitlement: plan catalog is required")
	}
	if subs == nil || trials == nil || usage == nil || credit == nil {
		panic("entitlement: all data sources are required")
	}

	r := &Resolver{
		catalog: catalog,
		subs:    subs,
		trials:  trials,
		usage:   usage,
		credit:  credit,
		cache:   NoOpCache{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check resolves whether the user may perform the action right now.
// Entitlement denials come back inside the Decision, not as errors; the error
// return is reserved for unknown actions and storage failures.
func (r *Resolver) Check(ctx context.Context, userID uuid.UUID, action Action) (*Decision, error) {
	spec, ok := action.spec()
	if !ok {
		return nil, ErrUnknownAction
	}

	plan, err := r.effectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := &Decision{PlanID: plan.ID, Remaining: -1}

	quota, hasQuota := int64(0), false
	if spec.Category != "" {
		quota, hasQuota = plan.Quota(spec.Category)
	}

	// Feature gate: deny only when the flag is missing AND the plan has no
	// matching quota field, signalling upgrade-required.
	if spec.Feature != "" && !plan.HasFeature(spec.Feature) && !hasQuota {
		decision.Denial = DenialFeatureNotIncluded
		return decision, nil
	}

	if hasQuota {
		if quota == plans.Unlimited {
			decision.Allowed = true
			decision.FundedBy = FundedByUnlimited
			return decision, nil
		}

		used, err := r.usedThisPeriod(ctx, userID, spec.Category)
		if err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}

		if used < quota {
			decision.Allowed = true
			decision.FundedBy = FundedByQuota
			decision.Remaining = quota - used - 1
			return decision, nil
		}
	}

	// Quota exhausted or not applicable: the credit path decides.
	cost, err := r.credit.Cost(spec.CreditKey)
	if err != nil {
		return nil, err
	}
	balance, err := r.credit.Balance(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}

	decision.CreditsRequired = cost
	decision.CreditsAvailable = balance

	if balance >= cost {
		decision.Allowed = true
		decision.FundedBy = FundedByCredits
		return decision, nil
	}

	decision.Denial = DenialQuotaExceededNoCredit
	return decision, nil
}

// effectivePlan resolves which plan governs the user right now: an active
// subscription wins, then an active trial, then the default plan.
func (r *Resolver) effectivePlan(ctx context.Context, userID uuid.UUID) (plans.Plan, error) {
	sub, err := r.subs.Current(ctx, userID)
	switch {
	case err == nil:
		plan, perr := r.catalog.Plan(sub.PlanID)
		if perr != nil {
			// A current subscription pointing at a missing plan is catalog
			// corruption, fatal to the request.
			return plans.Plan{}, perr
		}
		return plan, nil
	case !errors.Is(err, subscription.ErrSubscriptionNotFound):
		return plans.Plan{}, errors.Join(ErrStorageFailure, err)
	}

	t, err := r.trials.Active(ctx, userID)
	switch {
	case err == nil:
		plan, perr := r.catalog.Plan(t.PlanID)
		if perr != nil {
			return plans.Plan{}, perr
		}
		return plan, nil
	case !errors.Is(err, trial.ErrTrialNotFound):
		return plans.Plan{}, errors.Join(ErrStorageFailure, err)
	}

	return r.catalog.DefaultPlan(), nil
}

// usedThisPeriod reads the current-period usage count through the cache.
func (r *Resolver) usedThisPeriod(ctx context.Context, userID uuid.UUID, category plans.Category) (int64, error) {
	period := ledger.CurrentPeriod(r.now())
	key := usageCacheKey(userID, category, period)

	if used, ok := r.cache.Get(ctx, key); ok {
		return used, nil
	}

	used, err := r.usage.UsageCount(ctx, userID, string(category), period)
	if err != nil {
		return 0, err
	}

	// Best effort: a failed cache write just means the next check re-reads.
	_ = r.cache.Set(ctx, key, used)
	return used, nil
}
