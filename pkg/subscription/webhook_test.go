package subscription_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wodworks/coachkit/pkg/credits"
	"github.com/wodworks/coachkit/pkg/ledger"
	"github.com/wodworks/coachkit/pkg/subscription"
)

// fakeProvider replays a canned event instead of verifying real signatures.
type fakeProvider struct {
	event *subscription.WebhookEvent
	err   error
}

func (p *fakeProvider) CreateCheckoutLink(ctx context.Context, req subscription.CheckoutRequest) (*subscription.CheckoutLink, error) {
	return &subscription.CheckoutLink{URL: "https://checkout.example/" + req.PriceID}, nil
}

func (p *fakeProvider) GetCustomerPortalLink(ctx context.Context, sub *subscription.Subscription) (*subscription.PortalLink, error) {
	return &subscription.PortalLink{URL: "https://portal.example"}, nil
}

func (p *fakeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*subscription.WebhookEvent, error) {
	return p.event, p.err
}

func TestHandleWebhook_SubscriptionCreated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()
	provider := &fakeProvider{event: &subscription.WebhookEvent{
		Type:           subscription.EventSubscriptionCreated,
		CustomerID:     user.String(),
		PlanID:         "athlete",
		SubscriptionID: "psub_7",
	}}
	svc := newService(t, subscription.WithProvider(provider))

	require.NoError(t, svc.HandleWebhook(ctx, nil, "sig"))

	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "athlete", current.PlanID)
	assert.Equal(t, "psub_7", current.ProviderSubID)
}

func TestHandleWebhook_PaymentFailedMarksPastDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()
	provider := &fakeProvider{event: &subscription.WebhookEvent{
		Type:       subscription.EventPaymentFailed,
		CustomerID: user.String(),
	}}
	svc := newService(t, subscription.WithProvider(provider))

	_, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, nil, "sig"))

	// past_due is not a current status; the row stays in history.
	_, err = svc.Current(ctx, user)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	history, err := svc.History(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, subscription.StatusPastDue, history[0].Status)
}

func TestHandleWebhook_PaymentSucceededRenews(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()
	provider := &fakeProvider{event: &subscription.WebhookEvent{
		Type:       subscription.EventPaymentSucceeded,
		CustomerID: user.String(),
	}}
	svc := newService(t, subscription.WithProvider(provider))

	sub, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	firstEnd := sub.CurrentPeriodEnd

	require.NoError(t, svc.HandleWebhook(ctx, nil, "sig"))

	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, firstEnd.AddDate(0, 1, 0), current.CurrentPeriodEnd)
}

func TestHandleWebhook_PaymentRecoversPastDue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()
	provider := &fakeProvider{event: &subscription.WebhookEvent{
		Type:       subscription.EventPaymentFailed,
		CustomerID: user.String(),
	}}
	svc := newService(t, subscription.WithProvider(provider))

	sub, err := svc.Subscribe(ctx, user, "fitness", "psub_1")
	require.NoError(t, err)
	firstEnd := sub.CurrentPeriodEnd

	require.NoError(t, svc.HandleWebhook(ctx, nil, "sig"))
	_, err = svc.Current(ctx, user)
	require.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

	// The retried charge clears and the provider reports success: the same
	// subscription must come back active with the period advanced.
	provider.event = &subscription.WebhookEvent{
		Type:       subscription.EventPaymentSucceeded,
		CustomerID: user.String(),
	}
	require.NoError(t, svc.HandleWebhook(ctx, nil, "sig"))

	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, current.ID)
	assert.Equal(t, "fitness", current.PlanID)
	assert.Equal(t, subscription.StatusActive, current.Status)
	assert.Equal(t, firstEnd.AddDate(0, 1, 0), current.CurrentPeriodEnd)
}

func TestHandleWebhook_CreditPurchaseGrants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()
	provider := &fakeProvider{event: &subscription.WebhookEvent{
		Type:          subscription.EventCreditPurchase,
		CustomerID:    user.String(),
		Credits:       50,
		ProviderEvent: "transaction.completed",
	}}
	engine := credits.NewEngine(ledger.NewMemoryStore())
	svc := newService(t,
		subscription.WithProvider(provider),
		subscription.WithCreditGranter(engine))

	require.NoError(t, svc.HandleWebhook(ctx, nil, "sig"))

	balance, err := engine.Balance(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 50, balance)

	history, err := engine.History(ctx, user, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "purchase", history[0].Metadata["reason"])
}

func TestHandleWebhook_EventsForUnknownUsersAreIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, typ := range []subscription.EventType{
		subscription.EventSubscriptionCancelled,
		subscription.EventPaymentSucceeded,
		subscription.EventPaymentFailed,
	} {
		provider := &fakeProvider{event: &subscription.WebhookEvent{
			Type:       typ,
			CustomerID: uuid.New().String(),
		}}
		svc := newService(t, subscription.WithProvider(provider))
		assert.NoError(t, svc.HandleWebhook(ctx, nil, "sig"), typ)
	}
}

func TestHandleWebhook_InvalidCustomerID(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{event: &subscription.WebhookEvent{
		Type:       subscription.EventSubscriptionCreated,
		CustomerID: "not-a-uuid",
	}}
	svc := newService(t, subscription.WithProvider(provider))

	assert.Error(t, svc.HandleWebhook(context.Background(), nil, "sig"))
}

func TestCreateCheckoutLink_FreePlanSkipsProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := uuid.New()
	svc := newService(t, subscription.WithProvider(&fakeProvider{}))

	link, err := svc.CreateCheckoutLink(ctx, user, "free", "u@example.com", "https://app/ok", "https://app/no")
	require.NoError(t, err)
	assert.Equal(t, "https://app/ok", link.URL)

	current, err := svc.Current(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "free", current.PlanID)
}

func TestCreateCheckoutLink_PaidPlanUsesProvider(t *testing.T) {
	t.Parallel()

	svc := newService(t, subscription.WithProvider(&fakeProvider{}))

	link, err := svc.CreateCheckoutLink(context.Background(), uuid.New(), "pro", "u@example.com", "https://app/ok", "https://app/no")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/pro", link.URL)
}
