package session

import (
	"context"
	"sync"

	"prediction-platform/internal/identity"
)

// Snapshot is what a Store persists between runs.
type Snapshot struct {
	CurrentUser     *identity.User    `json:"current_user"`
	IsAuthenticated bool              `json:"is_authenticated"`
	Session         *identity.Session `json:"session,omitempty"`
}

func (s *Snapshot) restorable() bool {
	return s != nil && s.CurrentUser != nil && s.IsAuthenticated
}

// Store is the local key-value store backing the session cache. Load returns
// (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the snapshot in process. Useful for tests and for clients
// that should forget the session on exit.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	cp := *m.snapshot
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snapshot
	m.snapshot = &cp
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	return nil
}
