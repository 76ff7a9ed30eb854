package trial

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type trialKey struct {
	userID uuid.UUID
	planID string
}

// memoryStore is an in-memory Store for tests and local development.
type memoryStore struct {
	mu     sync.Mutex
	trials map[trialKey]Trial
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{trials: make(map[trialKey]Trial)}
}

func (s *memoryStore) Create(ctx context.Context, t Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trialKey{userID: t.UserID, planID: t.PlanID}
	if _, exists := s.trials[key]; exists {
		return ErrAlreadyTrialed
	}
	s.trials[key] = t
	return nil
}

func (s *memoryStore) Get(ctx context.Context, userID uuid.UUID, planID string) (*Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.trials[trialKey{userID: userID, planID: planID}]
	if !exists {
		return nil, ErrTrialNotFound
	}
	return &t, nil
}

func (s *memoryStore) ActiveForUser(ctx context.Context, userID uuid.UUID) (*Trial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Trial
	for key, t := range s.trials {
		if key.userID != userID || t.Converted {
			continue
		}
		if best == nil || t.EndsAt.After(best.EndsAt) {
			candidate := t
			best = &candidate
		}
	}
	if best == nil {
		return nil, ErrTrialNotFound
	}
	return best, nil
}

func (s *memoryStore) MarkConverted(ctx context.Context, userID uuid.UUID, planID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trialKey{userID: userID, planID: planID}
	t, exists := s.trials[key]
	if !exists {
		return ErrTrialNotFound
	}
	t.Converted = true
	at = at.UTC()
	t.ConvertedAt = &at
	s.trials[key] = t
	return nil
}
