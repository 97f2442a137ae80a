// Package session keeps short-lived per-contact conversation state.
//
// Expiry is checked on read: a session read at or after its ExpiresAt is
// discarded and reported as absent.  Every Put refreshes the expiry to
// now + TTL.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/vehicle-rental-bot/internal/model"
)

// DefaultTTL is the conversation timeout.
const DefaultTTL = 30 * time.Minute

// ErrCorrupt is returned by Get when the stored session cannot be decoded.
// The entry is left in place; callers decide whether to clear it.
var ErrCorrupt = errors.New("session: corrupt entry")

// Store is the session persistence surface.  Get returns (nil, nil) when
// no live session exists.
type Store interface {
	Get(ctx context.Context, contactID string) (*model.Session, error)
	Put(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, contactID string) error
}

// MemoryStore is a Store for single-instance deployments.  Values are kept
// encoded so callers never share a *model.Session with the map.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// NewMemoryStore returns an empty store.  ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{data: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

// WithClock replaces the store clock.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Get(_ context.Context, contactID string) (*model.Session, error) {
	m.mu.Lock()
	e, ok := m.data[contactID]
	if ok && !m.now().Before(e.expiresAt) {
		delete(m.data, contactID)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var s model.Session
	if err := json.Unmarshal(e.raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *model.Session) error {
	s.ExpiresAt = m.now().Add(m.ttl)
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[s.ContactID] = memoryEntry{raw: raw, expiresAt: s.ExpiresAt}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, contactID string) error {
	m.mu.Lock()
	delete(m.data, contactID)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.data {
		if !now.Before(e.expiresAt) {
			delete(m.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
