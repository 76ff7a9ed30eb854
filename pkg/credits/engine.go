package credits

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/ledger"
)

// Engine is the atomic balance-mutation subsystem. Every mutation appends a
// ledger entry in the same unit of work as the balance change; the balance
// itself is a derived value owned by the ledger store. The store's atomic
// check during Deduct is the authoritative overdraw guard - any earlier
// entitlement read is a fast-path hint only.
type Engine struct {
	store         ledger.Store
	costs         map[string]int64
	log           *slog.Logger
	retryAttempts int
	retryBackoff  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithCosts replaces the default feature cost table.
func WithCosts(costs map[string]int64) Option {
	return func(e *Engine) {
		if len(costs) > 0 {
			e.costs = costs
		}
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithRetry tunes the internal retry on transaction conflicts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.retryAttempts = attempts
		}
		if backoff > 0 {
			e.retryBackoff = backoff
		}
	}
}

// NewEngine creates an Engine over the given ledger store.
func NewEngine(store ledger.Store, opts ...Option) *Engine {
	if store == nil {
		panic("credits: ledger store is required")
	}

	e := &Engine{
		store:         store,
		costs:         DefaultCosts(),
		log:           slog.Default(),
		retryAttempts: 2,
		retryBackoff:  25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cost returns the credit price for a feature key.
func (e *Engine) Cost(featureKey string) (int64, error) {
	cost, ok := e.costs[featureKey]
	if !ok {
		return 0, ErrUnknownFeature
	}
	return cost, nil
}

// Grant adds credits to a user's balance and returns the new balance.
// Amount must be a positive integer; metadata (purchase reference, actor id)
// is stored on the ledger entry for the audit trail.
func (e *Engine) Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string, metadata map[string]any) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	meta := cloneMeta(metadata)
	meta["reason"] = reason

	var balance int64
	err := e.withRetry(ctx, "grant", func() error {
		var err error
		balance, err = e.store.Grant(ctx, ledger.Entry{
			ID:       uuid.New(),
			UserID:   userID,
			Amount:   amount,
			Feature:  reason,
			Metadata: meta,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// DeductResult reports the outcome of a successful deduction.
type DeductResult struct {
	NewBalance    int64
	TransactionID uuid.UUID
	Cost          int64
}

// Deduct spends the feature's credit cost from the user's balance. The
// read-compare-write runs as one atomic unit in the store, so two concurrent
// deductions can never both succeed on a balance that covers only one.
// Fails with *InsufficientCreditsError when the balance is short at the
// moment of the atomic check.
func (e *Engine) Deduct(ctx context.Context, userID uuid.UUID, featureKey string, metadata map[string]any) (DeductResult, error) {
	cost, err := e.Cost(featureKey)
	if err != nil {
		return DeductResult{}, err
	}

	txID := uuid.New()
	var balance int64
	err = e.withRetry(ctx, "deduct", func() error {
		var err error
		balance, err = e.store.Deduct(ctx, ledger.Entry{
			ID:       txID,
			UserID:   userID,
			Amount:   -cost,
			Feature:  featureKey,
			Metadata: cloneMeta(metadata),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			// The store reports the balance it observed during the check.
			return DeductResult{}, &InsufficientCreditsError{
				Feature:   featureKey,
				Required:  cost,
				Available: balance,
			}
		}
		return DeductResult{}, err
	}

	return DeductResult{NewBalance: balance, TransactionID: txID, Cost: cost}, nil
}

// Refund compensates a prior deduction by appending a grant that references
// the original entry. The original row is never mutated; the unique
// compensates link makes a second refund of the same transaction fail with
// ErrNotRefundable.
func (e *Engine) Refund(ctx context.Context, transactionID uuid.UUID, actorID string) (int64, error) {
	original, err := e.store.Entry(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return 0, ErrNotRefundable
		}
		return 0, err
	}
	if original.Kind != ledger.KindCreditDeduction {
		return 0, ErrNotRefundable
	}

	var balance int64
	err = e.withRetry(ctx, "refund", func() error {
		var err error
		balance, err = e.store.Grant(ctx, ledger.Entry{
			ID:          uuid.New(),
			UserID:      original.UserID,
			Amount:      -original.Amount,
			Feature:     original.Feature,
			Compensates: &transactionID,
			Metadata: map[string]any{
				"refund_of": transactionID.String(),
				"actor_id":  actorID,
			},
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyCompensated) {
			return 0, ErrNotRefundable
		}
		return 0, err
	}
	return balance, nil
}

// Balance returns the user's current spendable balance.
func (e *Engine) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return e.store.Balance(ctx, userID)
}

// Reconcile resums the user's ledger entries and repairs the cached balance,
// returning the authoritative sum.
func (e *Engine) Reconcile(ctx context.Context, userID uuid.UUID) (int64, error) {
	return e.store.Reconcile(ctx, userID)
}

// Stats exposes aggregate ledger totals for administrative reporting.
func (e *Engine) Stats(ctx context.Context) (ledger.Stats, error) {
	return e.store.Stats(ctx)
}

// History returns the user's most recent ledger entries, newest first.
func (e *Engine) History(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.Entry, error) {
	return e.store.History(ctx, userID, limit)
}

// withRetry re-runs fn on storage-level transaction conflicts with linear
// backoff, then surfaces ErrTransientConflict. Business failures pass through
// unchanged on the first occurrence.
func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.retryAttempts; attempt++ {
		if attempt > 0 {
			e.log.WarnContext(ctx, "retrying balance mutation after conflict",
				"op", op, "attempt", attempt)
			select {
			case <-time.After(time.Duration(attempt) * e.retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = fn()
		if err == nil || !errors.Is(err, ledger.ErrSerializationFailure) {
			return err
		}
	}
	return errors.Join(ErrTransientConflict, err)
}

func cloneMeta(metadata map[string]any) map[string]any {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	return meta
}
