package coach_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wodworks/coachkit/pkg/credits"
	"github.com/wodworks/coachkit/pkg/entitlement"
	"github.com/wodworks/coachkit/pkg/ledger"
	"github.com/wodworks/coachkit/pkg/plans"
	"github.com/wodworks/coachkit/pkg/subscription"
	"github.com/wodworks/coachkit/pkg/trial"
	"github.com/wodworks/coachkit/pkg/usage"
	coach "github.com/wodworks/coachkit/svc/coach"
)

type stubSubs struct{ planID string }

func (s *stubSubs) Current(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	if s.planID == "" {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return &subscription.Subscription{UserID: userID, PlanID: s.planID, Status: subscription.StatusActive}, nil
}

type noTrials struct{}

func (noTrials) Active(ctx context.Context, userID uuid.UUID) (*trial.Trial, error) {
	return nil, trial.ErrTrialNotFound
}

type stubGenerator struct {
	err    error
	delay  time.Duration
	calls  int
	result *coach.GenerationResult
}

func (g *stubGenerator) Generate(ctx context.Context, req coach.GenerationRequest) (*coach.GenerationResult, error) {
	g.calls++
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	return &coach.GenerationResult{
		Content:  json.RawMessage(`{"wod":"5 rounds"}`),
		Provider: "openai",
	}, nil
}

type fixture struct {
	svc       *coach.Service
	engine    *credits.Engine
	store     ledger.Store
	generator *stubGenerator
	user      uuid.UUID
	close     func(context.Context) error
}

func newFixture(t *testing.T, planID string, generator *stubGenerator, cfg coach.Config) *fixture {
	t.Helper()

	catalog, err := plans.NewCatalog(context.Background(), plans.NewInMemSource(plans.DefaultSeed()))
	require.NoError(t, err)

	store := ledger.NewMemoryStore()
	engine := credits.NewEngine(store)
	resolver := entitlement.NewResolver(catalog, &stubSubs{planID: planID}, noTrials{}, store, engine)
	recorder, closeFn := usage.NewRecorder(store, nil, usage.Options{})
	t.Cleanup(func() { _ = closeFn(context.Background()) })

	svc := coach.NewService(resolver, engine, generator, recorder, nil, cfg)
	return &fixture{svc: svc, engine: engine, store: store, generator: generator, user: uuid.New(), close: closeFn}
}

func requestInfo() coach.RequestInfo {
	return coach.RequestInfo{Endpoint: "/v1/actions/workout", Method: "POST"}
}

func TestPerform_QuotaFundedRecordsUsage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	f := newFixture(t, "", gen, coach.Config{})

	outcome, err := f.svc.Perform(ctx, f.user, entitlement.ActionWorkout, coach.GenerationRequest{}, requestInfo())
	require.NoError(t, err)
	assert.Equal(t, entitlement.FundedByQuota, outcome.Decision.FundedBy)
	assert.Zero(t, outcome.CreditsSpent)
	assert.Equal(t, "openai", outcome.Content.Provider)
	assert.Equal(t, 1, gen.calls)

	// The usage record lands under the quota category and counts next time.
	require.NoError(t, f.close(ctx))
	count, err := f.store.UsageCount(ctx, f.user, "workouts", ledger.CurrentPeriod(time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestPerform_DeniedSkipsGeneration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	// Free plan, coaching cues not included.
	f := newFixture(t, "", gen, coach.Config{})

	_, err := f.svc.Perform(ctx, f.user, entitlement.ActionCoachingCue, coach.GenerationRequest{}, requestInfo())
	require.ErrorIs(t, err, coach.ErrNotEntitled)

	var denied *coach.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, entitlement.DenialFeatureNotIncluded, denied.Decision.Denial)
	assert.Zero(t, gen.calls, "denied requests never reach the provider")
}

func TestPerform_CreditFundedDeductsAfterSuccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	f := newFixture(t, "", gen, coach.Config{})

	// No workout quota left; 5 credits cover one custom_wod (3).
	_, err := f.engine.Grant(ctx, f.user, 5, "purchase", nil)
	require.NoError(t, err)
	for range 10 {
		require.NoError(t, f.store.Append(ctx, ledger.Entry{
			UserID: f.user, Kind: ledger.KindUsageRecord, Feature: "workouts", CreatedAt: time.Now().UTC(),
		}))
	}

	outcome, err := f.svc.Perform(ctx, f.user, entitlement.ActionWorkout, coach.GenerationRequest{}, requestInfo())
	require.NoError(t, err)
	assert.Equal(t, entitlement.FundedByCredits, outcome.Decision.FundedBy)
	assert.EqualValues(t, 3, outcome.CreditsSpent)
	assert.EqualValues(t, 2, outcome.NewBalance)
	assert.NotEqual(t, uuid.Nil, outcome.TransactionID)

	entry, err := f.store.Entry(ctx, outcome.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindCreditDeduction, entry.Kind)
	assert.Equal(t, "workout", entry.Metadata["action"])
	assert.Equal(t, "openai", entry.Metadata["provider"])
}

func TestPerform_ProviderFailureChargesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{err: errors.New("upstream 500")}
	f := newFixture(t, "", gen, coach.Config{})

	_, err := f.engine.Grant(ctx, f.user, 5, "purchase", nil)
	require.NoError(t, err)
	for range 10 {
		require.NoError(t, f.store.Append(ctx, ledger.Entry{
			UserID: f.user, Kind: ledger.KindUsageRecord, Feature: "workouts", CreatedAt: time.Now().UTC(),
		}))
	}

	_, err = f.svc.Perform(ctx, f.user, entitlement.ActionWorkout, coach.GenerationRequest{}, requestInfo())
	require.ErrorIs(t, err, coach.ErrGenerationFailed)

	balance, err := f.engine.Balance(ctx, f.user)
	require.NoError(t, err)
	assert.EqualValues(t, 5, balance, "failed generation must not charge credits")
}

func TestPerform_GenerationTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{delay: time.Second}
	f := newFixture(t, "", gen, coach.Config{GenerationTimeout: 20 * time.Millisecond})

	_, err := f.svc.Perform(ctx, f.user, entitlement.ActionWorkout, coach.GenerationRequest{}, requestInfo())
	assert.ErrorIs(t, err, coach.ErrGenerationFailed)
}

func TestPerform_FailuresDoNotConsumeQuota(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{err: errors.New("boom")}
	f := newFixture(t, "", gen, coach.Config{})

	_, err := f.svc.Perform(ctx, f.user, entitlement.ActionWorkout, coach.GenerationRequest{}, requestInfo())
	require.ErrorIs(t, err, coach.ErrGenerationFailed)

	require.NoError(t, f.close(ctx))

	// The failure is recorded under the action name, not the quota category.
	count, err := f.store.UsageCount(ctx, f.user, "workouts", ledger.CurrentPeriod(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = f.store.UsageCount(ctx, f.user, "workout", ledger.CurrentPeriod(time.Now()))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

type generatorFunc func(ctx context.Context, req coach.GenerationRequest) (*coach.GenerationResult, error)

func (f generatorFunc) Generate(ctx context.Context, req coach.GenerationRequest) (*coach.GenerationResult, error) {
	return f(ctx, req)
}

func TestPerform_LostDeductionRace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	catalog, err := plans.NewCatalog(ctx, plans.NewInMemSource(plans.DefaultSeed()))
	require.NoError(t, err)
	store := ledger.NewMemoryStore()
	engine := credits.NewEngine(store)
	resolver := entitlement.NewResolver(catalog, &stubSubs{}, noTrials{}, store, engine)
	recorder, closeFn := usage.NewRecorder(store, nil, usage.Options{})
	t.Cleanup(func() { _ = closeFn(context.Background()) })
	user := uuid.New()

	// Exactly 3 credits and no workout quota left: the advisory check passes
	// on the credit path.
	_, err = engine.Grant(ctx, user, 3, "purchase", nil)
	require.NoError(t, err)
	for range 10 {
		require.NoError(t, store.Append(ctx, ledger.Entry{
			UserID: user, Kind: ledger.KindUsageRecord, Feature: "workouts", CreatedAt: time.Now().UTC(),
		}))
	}

	// A concurrent request drains the balance while generation runs, so the
	// atomic deduction after success must lose.
	raceGen := generatorFunc(func(ctx context.Context, req coach.GenerationRequest) (*coach.GenerationResult, error) {
		_, derr := engine.Deduct(ctx, user, credits.FeatureCustomWOD, nil)
		require.NoError(t, derr)
		return &coach.GenerationResult{Content: json.RawMessage(`{}`), Provider: "openai"}, nil
	})
	svc := coach.NewService(resolver, engine, raceGen, recorder, nil, coach.Config{})

	_, err = svc.Perform(ctx, user, entitlement.ActionWorkout, coach.GenerationRequest{}, requestInfo())
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)

	balance, err := engine.Balance(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, balance, "only the racing deduction spent")
}

func TestPreview_DoesNotGenerateOrRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &stubGenerator{}
	f := newFixture(t, "pro", gen, coach.Config{})

	d, err := f.svc.Preview(ctx, f.user, entitlement.ActionWorkout)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, entitlement.FundedByUnlimited, d.FundedBy)
	assert.Zero(t, gen.calls)

	require.NoError(t, f.close(ctx))
	count, err := f.store.UsageCount(ctx, f.user, "workouts", ledger.CurrentPeriod(time.Now()))
	require.NoError(t, err)
	assert.Zero(t, count)
}
