package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract for the ledger. Implementations must make
// Grant and Deduct atomic per user: two concurrent Deducts that together
// overdraw the balance must not both succeed. Across different users no
// ordering is required.
type Store interface {
	// Append writes a non-balance-affecting entry (usage records).
	Append(ctx context.Context, entry Entry) error

	// Grant atomically appends a credit_grant entry and bumps the cached
	// balance in the same unit of work, returning the new balance. When
	// entry.Compensates is set and the referenced entry was already
	// compensated, Grant fails with ErrAlreadyCompensated.
	Grant(ctx context.Context, entry Entry) (int64, error)

	// Deduct atomically verifies the balance covers -entry.Amount, appends a
	// credit_deduction entry and decrements the cached balance, returning the
	// new balance. Fails with ErrInsufficientBalance without writing anything
	// when the balance is short at the moment of the atomic check.
	Deduct(ctx context.Context, entry Entry) (int64, error)

	// Balance returns the current spendable balance for a user. Users with no
	// ledger history have a zero balance, not an error.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)

	// UsageCount returns the number of usage_record entries for a feature
	// category within the period.
	UsageCount(ctx context.Context, userID uuid.UUID, feature string, p Period) (int64, error)

	// Entry fetches a single entry by ID, ErrEntryNotFound when missing.
	Entry(ctx context.Context, id uuid.UUID) (*Entry, error)

	// History returns the most recent entries for a user, newest first.
	History(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)

	// Stats aggregates ledger totals across all users.
	Stats(ctx context.Context) (Stats, error)

	// Reconcile resums the user's credit entries and repairs the cached
	// balance if it drifted. Returns the authoritative ledger sum.
	Reconcile(ctx context.Context, userID uuid.UUID) (int64, error)
}
