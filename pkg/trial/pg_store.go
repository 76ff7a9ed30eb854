package trial

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wodworks/coachkit/pkg/pg"
)

// pgStore persists trials in Postgres. The primary key on (user_id, plan_id)
// carries the one-shot invariant; a duplicate insert surfaces as
// ErrAlreadyTrialed even under concurrent starts.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPGStore returns a Store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) Store {
	if pool == nil {
		panic("trial: connection pool is required")
	}
	return &pgStore{pool: pool}
}

func (s *pgStore) Create(ctx context.Context, t Trial) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trials (user_id, plan_id, started_at, ends_at, converted, converted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.UserID, t.PlanID, t.StartedAt, t.EndsAt, t.Converted, t.ConvertedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrAlreadyTrialed
	}
	if err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, userID uuid.UUID, planID string) (*Trial, error) {
	var t Trial
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, plan_id, started_at, ends_at, converted, converted_at
		FROM trials WHERE user_id = $1 AND plan_id = $2`,
		userID, planID,
	).Scan(&t.UserID, &t.PlanID, &t.StartedAt, &t.EndsAt, &t.Converted, &t.ConvertedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrTrialNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return &t, nil
}

func (s *pgStore) ActiveForUser(ctx context.Context, userID uuid.UUID) (*Trial, error) {
	var t Trial
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, plan_id, started_at, ends_at, converted, converted_at
		FROM trials
		WHERE user_id = $1 AND NOT converted AND ends_at > now()
		ORDER BY ends_at DESC
		LIMIT 1`,
		userID,
	).Scan(&t.UserID, &t.PlanID, &t.StartedAt, &t.EndsAt, &t.Converted, &t.ConvertedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrTrialNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return &t, nil
}

func (s *pgStore) MarkConverted(ctx context.Context, userID uuid.UUID, planID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trials SET converted = true, converted_at = $3
		WHERE user_id = $1 AND plan_id = $2 AND NOT converted`,
		userID, planID, at.UTC(),
	)
	if err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTrialNotFound
	}
	return nil
}
