package subscription

import "errors"

var (
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrInvalidSubscriptionState = errors.New("invalid subscription state")
	ErrStorageFailure           = errors.New("subscription storage failure")

	// Provider errors
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL             = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL               = errors.New("no portal URL returned from provider")
	ErrMissingAPIKey             = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret      = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnv        = errors.New("invalid billing provider environment")
)
