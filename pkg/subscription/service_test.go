package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wodworks/coachkit/pkg/plans"
	"github.com/wodworks/coachkit/pkg/subscription"
	"github.com/wodworks/coachkit/pkg/trial"
)

func seedCatalog(t *testing.T) *plans.Catalog {
	t.Helper()
	catalog, err := plans.NewCatalog(context.Background(), plans.NewInMemSource(plans.DefaultSeed()))
	require.NoError(t, err)
	return catalog
}

func newService(t *testing.T, opts ...subscription.ServiceOption) *subscription.Service {
	t.Helper()
	return subscription.NewService(seedCatalog(t), subscription.NewMemoryStore(), opts...)
}

func TestService_Signup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t)
	user := uuid.New()

	sub, err := svc.Signup(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "free", sub.PlanID)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Empty(t, sub.ProviderSubID)

	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, current.ID)
}

func TestService_SubscribeSupersedes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t)
	user := uuid.New()

	_, err := svc.Signup(ctx, user)
	require.NoError(t, err)

	sub, err := svc.Subscribe(ctx, user, "athlete", "psub_123")
	require.NoError(t, err)
	assert.Equal(t, "athlete", sub.PlanID)
	assert.Equal(t, "psub_123", sub.ProviderSubID)

	// Exactly one current subscription; the free one is cancelled history.
	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "athlete", current.PlanID)

	history, err := svc.History(ctx, user)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, subscription.StatusCancelled, history[1].Status)
	assert.NotNil(t, history[1].CancelledAt)
}

func TestService_SubscribeUnknownPlan(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	_, err := svc.Subscribe(context.Background(), uuid.New(), "platinum", "psub_1")
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)
}

func TestService_SubscribeConvertsTrial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	catalog := seedCatalog(t)
	trials := trial.NewManager(trial.NewMemoryStore(), catalog,
		trial.WithClock(func() time.Time { return now }))
	svc := subscription.NewService(catalog, subscription.NewMemoryStore(),
		subscription.WithTrialManager(trials),
		subscription.WithClock(func() time.Time { return now }))
	user := uuid.New()

	_, err := trials.Start(ctx, user, "athlete")
	require.NoError(t, err)

	_, err = svc.Subscribe(ctx, user, "athlete", "psub_9")
	require.NoError(t, err)

	status, err := trials.Status(ctx, user, "athlete")
	require.NoError(t, err)
	assert.True(t, status.Converted)
}

func TestService_CancelImmediate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t)
	user := uuid.New()

	_, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)

	sub, err := svc.Cancel(ctx, user, false)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, sub.Status)
	assert.NotNil(t, sub.CancelledAt)

	_, err = svc.Current(ctx, user)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestService_CancelAtPeriodEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t)
	user := uuid.New()

	_, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)

	sub, err := svc.Cancel(ctx, user, true)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)

	// Still current until the period closes.
	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.True(t, current.CancelAtPeriodEnd)

	// Reactivate clears the flag.
	sub, err = svc.Reactivate(ctx, user)
	require.NoError(t, err)
	assert.False(t, sub.CancelAtPeriodEnd)

	// Reactivating without a pending cancel is a state error.
	_, err = svc.Reactivate(ctx, user)
	assert.ErrorIs(t, err, subscription.ErrInvalidSubscriptionState)
}

func TestService_Renew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	svc := newService(t, subscription.WithClock(func() time.Time { return now }))
	user := uuid.New()

	sub, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	firstEnd := sub.CurrentPeriodEnd

	renewed, err := svc.Renew(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, firstEnd, renewed.CurrentPeriodStart)
	assert.Equal(t, firstEnd.AddDate(0, 1, 0), renewed.CurrentPeriodEnd)
	assert.Equal(t, subscription.StatusActive, renewed.Status)
}

func TestService_PastDueStaysRecoverable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	svc := subscription.NewService(seedCatalog(t), store)
	user := uuid.New()

	sub, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	firstEnd := sub.CurrentPeriodEnd

	sub.Status = subscription.StatusPastDue
	require.NoError(t, store.Update(ctx, sub))
	_, err = svc.Current(ctx, user)
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	renewed, err := svc.Renew(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, renewed.Status)
	assert.Equal(t, firstEnd.AddDate(0, 1, 0), renewed.CurrentPeriodEnd)
}

func TestService_CancelPastDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	svc := subscription.NewService(seedCatalog(t), store)
	user := uuid.New()

	sub, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	sub.Status = subscription.StatusPastDue
	require.NoError(t, store.Update(ctx, sub))

	cancelled, err := svc.Cancel(ctx, user, false)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
}

func TestService_SubscribeSupersedesPastDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	svc := subscription.NewService(seedCatalog(t), store)
	user := uuid.New()

	sub, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	sub.Status = subscription.StatusPastDue
	require.NoError(t, store.Update(ctx, sub))

	// Picking a new plan while past due closes out the stale row.
	_, err = svc.Subscribe(ctx, user, "athlete", "psub_2")
	require.NoError(t, err)

	history, err := svc.History(ctx, user)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, subscription.StatusActive, history[0].Status)
	assert.Equal(t, subscription.StatusCancelled, history[1].Status)
}

func TestService_RenewHonorsPendingCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newService(t)
	user := uuid.New()

	_, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, user, true)
	require.NoError(t, err)

	renewed, err := svc.Renew(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, renewed.Status)
}
