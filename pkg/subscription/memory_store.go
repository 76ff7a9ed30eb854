package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore is an in-memory Store for tests and local development.
type memoryStore struct {
	mu   sync.Mutex
	subs []Subscription
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Current(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.subs) - 1; i >= 0; i-- {
		if s.subs[i].UserID == userID && s.subs[i].Status.IsCurrent() {
			sub := s.subs[i]
			return &sub, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *memoryStore) Billable(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.subs) - 1; i >= 0; i-- {
		if s.subs[i].UserID == userID && s.subs[i].Status.IsBillable() {
			sub := s.subs[i]
			return &sub, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *memoryStore) CreateSuperseding(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i := range s.subs {
		if s.subs[i].UserID == sub.UserID && s.subs[i].Status.IsBillable() {
			s.subs[i].Status = StatusCancelled
			cancelled := now
			s.subs[i].CancelledAt = &cancelled
			s.subs[i].UpdatedAt = now
		}
	}

	stored := *sub
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.subs = append(s.subs, stored)
	*sub = stored
	return nil
}

func (s *memoryStore) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.subs {
		if s.subs[i].ID == sub.ID {
			sub.UpdatedAt = time.Now().UTC()
			s.subs[i] = *sub
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

func (s *memoryStore) History(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Subscription
	for i := len(s.subs) - 1; i >= 0; i-- {
		if s.subs[i].UserID == userID {
			out = append(out, s.subs[i])
		}
	}
	return out, nil
}
