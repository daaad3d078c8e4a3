// Package ledger tracks which token registration ids are currently live.
//
// Registration is the server-side half of token validity: a token whose
// registration id has been deregistered is dead regardless of its expiry
// timestamp. This is what makes logout and forced revocation work for
// otherwise self-contained tokens.
//
// Two implementations are provided: Memory for single-process deployments
// and tests, and Gorm for deployments where revocation must survive
// restarts and span processes.
package ledger

import (
	"sync"
	"time"

	"github.com/thejerf/abtime"
)

// Ledger is a membership set of live registration ids. Register and
// Deregister are idempotent; deregistering an unknown id is a no-op.
type Ledger interface {
	Register(id string, expires time.Time) error
	Deregister(id string) error
	IsRegistered(id string) (bool, error)
}

// Memory is an in-process Ledger. Read-mostly: many validations per
// registration, so lookups take only a read lock.
type Memory struct {
	clock abtime.AbstractTime
	skew  time.Duration

	mu      sync.RWMutex
	entries map[string]time.Time // id -> expiry
}

// NewMemory creates an in-memory ledger. skew widens the eviction horizon so
// a token within allowed clock skew of its expiry is never evicted early.
func NewMemory(clock abtime.AbstractTime, skew time.Duration) *Memory {
	return &Memory{
		clock:   clock,
		skew:    skew,
		entries: make(map[string]time.Time),
	}
}

func (m *Memory) Register(id string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = expires
	return nil
}

func (m *Memory) Deregister(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *Memory) IsRegistered(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[id]
	return ok, nil
}

// Evict removes entries whose expiry plus skew has passed and returns how
// many were removed. A still-unexpired registration is never evicted.
func (m *Memory) Evict() int {
	horizon := m.clock.Now().Add(-m.skew)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, expires := range m.entries {
		if expires.Before(horizon) {
			delete(m.entries, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live registrations.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
