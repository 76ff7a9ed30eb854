package ledger

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore keeps the full ledger in memory. Intended for tests and local
// development; the mutex gives the same per-user atomicity the Postgres store
// gets from transactions.
type memoryStore struct {
	mu          sync.Mutex
	entries     []Entry
	balances    map[uuid.UUID]int64
	compensated map[uuid.UUID]bool
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		balances:    make(map[uuid.UUID]int64),
		compensated: make(map[uuid.UUID]bool),
	}
}

func (s *memoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, normalize(entry))
	return nil
}

func (s *memoryStore) Grant(ctx context.Context, entry Entry) (int64, error) {
	if entry.Amount <= 0 {
		return 0, ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Compensates != nil {
		if s.compensated[*entry.Compensates] {
			return 0, ErrAlreadyCompensated
		}
		s.compensated[*entry.Compensates] = true
	}

	entry.Kind = KindCreditGrant
	s.entries = append(s.entries, normalize(entry))
	s.balances[entry.UserID] += entry.Amount
	return s.balances[entry.UserID], nil
}

func (s *memoryStore) Deduct(ctx context.Context, entry Entry) (int64, error) {
	if entry.Amount >= 0 {
		return 0, ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cost := -entry.Amount
	if s.balances[entry.UserID] < cost {
		return s.balances[entry.UserID], ErrInsufficientBalance
	}

	entry.Kind = KindCreditDeduction
	s.entries = append(s.entries, normalize(entry))
	s.balances[entry.UserID] -= cost
	return s.balances[entry.UserID], nil
}

func (s *memoryStore) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.balances[userID], nil
}

func (s *memoryStore) UsageCount(ctx context.Context, userID uuid.UUID, feature string, p Period) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for i := range s.entries {
		e := &s.entries[i]
		if e.Kind == KindUsageRecord && e.UserID == userID && e.Feature == feature && p.Contains(e.CreatedAt) {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) Entry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			return copyEntry(s.entries[i]), nil
		}
	}
	return nil, ErrEntryNotFound
}

func (s *memoryStore) History(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID != userID {
			continue
		}
		out = append(out, *copyEntry(s.entries[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	users := make(map[uuid.UUID]struct{})
	for i := range s.entries {
		e := &s.entries[i]
		users[e.UserID] = struct{}{}
		switch e.Kind {
		case KindCreditGrant:
			stats.TotalGranted += e.Amount
			stats.CreditEntries++
		case KindCreditDeduction:
			stats.TotalDeducted += -e.Amount
			stats.CreditEntries++
		case KindUsageRecord:
			stats.UsageRecords++
		}
	}
	stats.Outstanding = stats.TotalGranted - stats.TotalDeducted
	stats.DistinctUsers = int64(len(users))
	return stats, nil
}

func (s *memoryStore) Reconcile(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for i := range s.entries {
		e := &s.entries[i]
		if e.UserID == userID && e.IsCreditKind() {
			sum += e.Amount
		}
	}
	s.balances[userID] = sum
	return sum, nil
}

// normalize fills server-assigned fields so callers don't have to.
func normalize(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	return e
}

// copyEntry returns a defensive copy so callers can't mutate stored state.
func copyEntry(e Entry) *Entry {
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	if e.Compensates != nil {
		c := *e.Compensates
		e.Compensates = &c
	}
	return &e
}
