package repository

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter is a process-local KeyedLimiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.counters[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &counter{expiresAt: now.Add(window)}
		m.counters[key] = entry
	}
	entry.count++

	m.sweep(now)
	return entry.count <= limit, nil
}

func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.counters, key)
	m.mu.Unlock()
	return nil
}

// sweep drops expired counters; caller holds mu.
func (m *MemoryLimiter) sweep(now time.Time) {
	for k, c := range m.counters {
		if !now.Before(c.expiresAt) {
			delete(m.counters, k)
		}
	}
}
