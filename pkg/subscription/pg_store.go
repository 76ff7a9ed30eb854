package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wodworks/coachkit/pkg/pg"
)

// pgStore persists subscriptions in Postgres. A partial unique index on
// (user_id) WHERE status IN ('active','trialing') backs the single-current
// invariant; CreateSuperseding cancels and inserts in one transaction so the
// index never trips under normal flow.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) Store {
	if pool == nil {
		panic("subscription: connection pool is required")
	}
	return &pgStore{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, status, current_period_start, current_period_end,
	cancel_at_period_end, provider_sub_id, created_at, updated_at, cancelled_at`

func (s *pgStore) Current(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status IN ($2, $3)`,
		userID, StatusActive, StatusTrialing)

	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return sub, nil
}

func (s *pgStore) Billable(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, StatusActive, StatusTrialing, StatusPastDue)

	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return sub, nil
}

func (s *pgStore) CreateSuperseding(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, cancelled_at = now(), updated_at = now()
		WHERE user_id = $1 AND status IN ($3, $4, $5)`,
		sub.UserID, StatusCancelled, StatusActive, StatusTrialing, StatusPastDue,
	); err != nil {
		return errors.Join(ErrStorageFailure, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.UserID, sub.PlanID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.ProviderSubID,
		sub.CreatedAt, sub.UpdatedAt, sub.CancelledAt,
	); err != nil {
		return errors.Join(ErrStorageFailure, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	return nil
}

func (s *pgStore) Update(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, current_period_start = $4, current_period_end = $5,
		    cancel_at_period_end = $6, provider_sub_id = $7, updated_at = $8, cancelled_at = $9
		WHERE id = $1`,
		sub.ID, sub.PlanID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.ProviderSubID, sub.UpdatedAt, sub.CancelledAt,
	)
	if err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *pgStore) History(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd, &sub.ProviderSubID,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.CancelledAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
