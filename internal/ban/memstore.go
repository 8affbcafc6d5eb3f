package ban

import (
	"context"
	"sync"
	"time"
)

type record struct {
	reason  string
	expires time.Time // zero for permanent
}

// MemStore holds report bans in memory. Contents are lost on restart.
type MemStore struct {
	mu   sync.RWMutex
	bans map[string]record
	now  func() time.Time
}

// NewMemStore initializes an empty in-memory ban list.
func NewMemStore() *MemStore {
	return &MemStore{bans: make(map[string]record), now: time.Now}
}

// IsBanned reports whether userID is banned and not yet expired.
func (m *MemStore) IsBanned(_ context.Context, userID string) (bool, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.bans[userID]
	if !ok {
		return false, "", nil
	}
	if !r.expires.IsZero() && !m.now().Before(r.expires) {
		return false, "", nil
	}
	return true, r.reason, nil
}

// Ban records a ban for userID.
func (m *MemStore) Ban(_ context.Context, userID string, duration time.Duration, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := record{reason: reason}
	if duration > 0 {
		r.expires = m.now().Add(duration)
	}
	m.bans[userID] = r
	return nil
}

// Unban removes any ban for userID.
func (m *MemStore) Unban(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bans, userID)
	return nil
}
