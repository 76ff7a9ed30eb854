package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wodworks/coachkit/pkg/pg"
)

// pgStore persists the ledger in Postgres. The cached balance lives in
// credit_balances and is mutated in the same transaction as the ledger append,
// so the conditional UPDATE is the authoritative overdraw guard: two
// concurrent deductions serialize on the row lock and the loser sees the
// already-decremented balance.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given connection pool.
// Panics on nil pool to fail fast during composition.
func NewPGStore(pool *pgxpool.Pool) Store {
	if pool == nil {
		panic("ledger: connection pool is required")
	}
	return &pgStore{pool: pool}
}

func (s *pgStore) Append(ctx context.Context, entry Entry) error {
	entry = normalize(entry)

	meta, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return errors.Join(ErrInvalidEntry, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, feature, compensates, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, entry.Kind, entry.Amount, entry.Feature, entry.Compensates, meta, entry.CreatedAt,
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *pgStore) Grant(ctx context.Context, entry Entry) (int64, error) {
	if entry.Amount <= 0 {
		return 0, ErrInvalidEntry
	}
	entry.Kind = KindCreditGrant

	var balance int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO credit_balances (user_id, balance, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id) DO UPDATE
			SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = now()
			RETURNING balance`,
			entry.UserID, entry.Amount,
		).Scan(&balance); err != nil {
			return err
		}
		return s.insertEntry(ctx, tx, entry)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *pgStore) Deduct(ctx context.Context, entry Entry) (int64, error) {
	if entry.Amount >= 0 {
		return 0, ErrInvalidEntry
	}
	entry.Kind = KindCreditDeduction
	cost := -entry.Amount

	var balance int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE credit_balances
			SET balance = balance - $2, updated_at = now()
			WHERE user_id = $1 AND balance >= $2
			RETURNING balance`,
			entry.UserID, cost,
		).Scan(&balance)
		if pg.IsNotFoundError(err) {
			// No row updated: either the user has no balance row at all or
			// the balance is short. Both are the same business outcome.
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}
		return s.insertEntry(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			available, berr := s.Balance(ctx, entry.UserID)
			if berr == nil {
				return available, ErrInsufficientBalance
			}
		}
		return 0, err
	}
	return balance, nil
}

func (s *pgStore) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM credit_balances WHERE user_id = $1), 0)`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, classify(err)
	}
	return balance, nil
}

func (s *pgStore) UsageCount(ctx context.Context, userID uuid.UUID, feature string, p Period) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_entries
		WHERE user_id = $1 AND kind = $2 AND feature = $3
		  AND created_at >= $4 AND created_at < $5`,
		userID, KindUsageRecord, feature, p.Start, p.End,
	).Scan(&count)
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (s *pgStore) Entry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, amount, feature, compensates, metadata, created_at
		FROM ledger_entries WHERE id = $1`, id)

	entry, err := scanEntry(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return entry, nil
}

func (s *pgStore) History(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kind, amount, feature, compensates, metadata, created_at
		FROM ledger_entries WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, classify(err)
		}
		entries = append(entries, *entry)
	}
	return entries, classify(rows.Err())
}

func (s *pgStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = $1), 0),
			COALESCE(-SUM(amount) FILTER (WHERE kind = $2), 0),
			COUNT(*) FILTER (WHERE kind = $3),
			COUNT(*) FILTER (WHERE kind IN ($1, $2)),
			COUNT(DISTINCT user_id)
		FROM ledger_entries`,
		KindCreditGrant, KindCreditDeduction, KindUsageRecord,
	).Scan(&stats.TotalGranted, &stats.TotalDeducted, &stats.UsageRecords, &stats.CreditEntries, &stats.DistinctUsers)
	if err != nil {
		return Stats{}, classify(err)
	}
	stats.Outstanding = stats.TotalGranted - stats.TotalDeducted
	return stats, nil
}

func (s *pgStore) Reconcile(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
			WHERE user_id = $1 AND kind IN ($2, $3)`,
			userID, KindCreditGrant, KindCreditDeduction,
		).Scan(&sum); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO credit_balances (user_id, balance, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id) DO UPDATE SET balance = $2, updated_at = now()`,
			userID, sum)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *pgStore) insertEntry(ctx context.Context, tx pgx.Tx, entry Entry) error {
	entry = normalize(entry)

	meta, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return errors.Join(ErrInvalidEntry, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, feature, compensates, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.UserID, entry.Kind, entry.Amount, entry.Feature, entry.Compensates, meta, entry.CreatedAt,
	)
	return err
}

func (s *pgStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps storage-layer errors onto ledger sentinels so callers can
// branch without importing pgx.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInvalidEntry):
		return err
	case pg.IsDuplicateKeyError(err):
		// The only unique constraint writable here is the compensates link.
		return errors.Join(ErrAlreadyCompensated, err)
	case pg.IsSerializationFailureError(err):
		return errors.Join(ErrSerializationFailure, err)
	default:
		return errors.Join(ErrStorageFailure, err)
	}
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		entry Entry
		meta  []byte
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Kind, &entry.Amount,
		&entry.Feature, &entry.Compensates, &meta, &entry.CreatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
			return nil, err
		}
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}
