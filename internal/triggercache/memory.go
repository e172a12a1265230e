package triggercache

import (
	"context"
	"sync"
	"time"

	"equipment-reminders/internal/clock"
	"equipment-reminders/internal/leadtime"
	"equipment-reminders/internal/model"
)

// Memory keeps display records in process memory.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	clock clock.Clock
	loc   *time.Location

	mu       sync.Mutex
	displays map[string][]time.Time
}

func NewMemory(clk clock.Clock, loc *time.Location) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	return &Memory{clock: clk, loc: loc, displays: make(map[string][]time.Time)}
}

func (m *Memory) ShouldDisplay(_ context.Context, reminderID string, due time.Time, t model.ObligationType, today time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(m.clock.Now())
	if !leadtime.IsEligibleDay(t, due, today) {
		return false, nil
	}
	start, end := dayBounds(today, m.loc)
	for _, ts := range m.displays[reminderID] {
		if !ts.Before(start) && ts.Before(end) {
			return false, nil
		}
	}
	return true, nil
}

func (m *Memory) RecordDisplay(_ context.Context, reminderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displays[reminderID] = append(m.displays[reminderID], m.clock.Now())
	return nil
}

// Len reports how many reminders have at least one live record.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(m.clock.Now())
	return len(m.displays)
}

func (m *Memory) purgeLocked(now time.Time) {
	cutoff := now.Add(-Retention)
	for id, stamps := range m.displays {
		kept := stamps[:0]
		for _, ts := range stamps {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(m.displays, id)
			continue
		}
		m.displays[id] = kept
	}
}

// MemoryStore keeps one Memory cache per session. A session untouched for
// Retention holds no live records and is dropped.
type MemoryStore struct {
	clock clock.Clock
	loc   *time.Location

	mu        sync.Mutex
	sessions  map[string]*memorySession
	lastEvict time.Time
}

type memorySession struct {
	cache   *Memory
	touched time.Time
}

// evictEvery bounds how often Session scans for idle sessions.
const evictEvery = time.Minute

func NewMemoryStore(clk clock.Clock, loc *time.Location) *MemoryStore {
	return &MemoryStore{clock: clk, loc: loc, sessions: make(map[string]*memorySession)}
}

func (s *MemoryStore) Session(id string) Cache {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastEvict) >= evictEvery {
		s.evictLocked(now)
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memorySession{cache: NewMemory(s.clock, s.loc)}
		s.sessions[id] = sess
	}
	sess.touched = now
	return sess.cache
}

// Len reports how many sessions are retained after dropping idle ones.
func (s *MemoryStore) Len() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(now)
	return len(s.sessions)
}

func (s *MemoryStore) evictLocked(now time.Time) {
	s.lastEvict = now
	cutoff := now.Add(-Retention)
	for id, sess := range s.sessions {
		if sess.touched.Before(cutoff) && sess.cache.Len() == 0 {
			delete(s.sessions, id)
		}
	}
}
