package subscription

import (
	"context"
	"time"
)

// BillingProvider is the boundary to the external payment collaborator. The
// core never initiates charges; the provider runs hosted checkouts and pushes
// webhook events back, which the Service folds into subscription state and
// credit grants.
type BillingProvider interface {
	// CreateCheckoutLink creates a hosted checkout session.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// GetCustomerPortalLink returns a temporary link to the provider's
	// customer portal for payment method updates and cancellation.
	GetCustomerPortalLink(ctx context.Context, sub *Subscription) (*PortalLink, error)

	// ParseWebhook validates the signature and normalizes the payload.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // provider's price identifier; plan IDs double as price IDs
	CustomerID string // internal user ID, round-tripped via custom data
	Email      string
	SuccessURL string
	CancelURL  string
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL              string
	CancelURL        string
	UpdatePaymentURL string
	ExpiresAt        time.Time
}

// EventType is the normalized billing event type. Provider adapters map their
// native events onto these.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventPaymentFailed         EventType = "payment_failed"
	EventCreditPurchase        EventType = "credit_purchase"
)

// WebhookEvent is a normalized webhook event from the billing provider.
type WebhookEvent struct {
	Type           EventType
	ProviderEvent  string // original provider event name
	SubscriptionID string // provider's subscription ID
	CustomerID     string // internal user ID from custom data
	Status         string
	PlanID         string
	Credits        int64 // credit-pack size for EventCreditPurchase
	Raw            map[string]any
}
