package window

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Its contents are lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]time.Time)}
}

func (s *MemoryStore) Prune(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for identity := range s.events {
		removed += s.pruneLocked(identity, now)
	}
	return removed, nil
}

func (s *MemoryStore) pruneLocked(identity string, now time.Time) int64 {
	limit := cutoff(now)
	events := s.events[identity]
	kept := events[:0]
	for _, ts := range events {
		if !ts.Before(limit) {
			kept = append(kept, ts)
		}
	}
	removed := int64(len(events) - len(kept))
	if len(kept) == 0 {
		delete(s.events, identity)
	} else {
		s.events[identity] = kept
	}
	return removed
}

func (s *MemoryStore) Count(_ context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[identity]), nil
}

func (s *MemoryStore) Record(_ context.Context, identity string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[identity] = append(s.events[identity], now)
	return nil
}

func (s *MemoryStore) RecordIfUnder(_ context.Context, identity string, now time.Time, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(identity, now)
	count := len(s.events[identity])
	if count >= limit {
		return false, count, nil
	}
	s.events[identity] = append(s.events[identity], now)
	return true, count + 1, nil
}
