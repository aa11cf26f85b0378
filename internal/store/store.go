package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/pipeline"
)

// Entry is one grouping key's latest result together with the time it
// last appeared in a run.
type Entry struct {
	Result    *pipeline.KeyResult
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory holder for the latest report and its
// per-key results. A background goroutine (Run) evicts keys that have
// not been refreshed within the configured TTL.
type Store struct {
	mu       sync.RWMutex
	latest   *pipeline.Report
	latestAt time.Time
	keys     map[aggregate.Key]*Entry
	ttl      time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		keys: make(map[aggregate.Key]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put replaces the latest report and upserts every key it carries.
// Callers must not modify the report after calling Put.
func (s *Store) Put(rep *pipeline.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.latest = rep
	s.latestAt = now
	for _, kr := range rep.Keys {
		s.keys[kr.Key] = &Entry{Result: kr, UpdatedAt: now}
	}
}

// Latest returns the newest report, when it landed, and whether one
// exists yet.
func (s *Store) Latest() (*pipeline.Report, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latestAt, s.latest != nil
}

// Get returns the Entry for one grouping key. The entry may be stale if
// TTL has elapsed; callers can compare UpdatedAt against TTL.
func (s *Store) Get(k aggregate.Key) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.keys[k]
	return e, ok
}

// List returns all entries whose UpdatedAt is within the TTL. Stale
// entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.keys))
	for _, e := range s.keys {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the total number of key entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// TTL returns the configured entry time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Evict removes key entries older than now minus TTL and returns how
// many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for k, e := range s.keys {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.keys, k)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale keys", "count", n)
			}
		}
	}
}
