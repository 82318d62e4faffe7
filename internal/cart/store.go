package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrInvalidKey is returned for empty cart keys.
var ErrInvalidKey = errors.New("cart: key is required")

// Store persists cart state by key. Load returns the zero State when nothing
// is stored.
type Store interface {
	Load(ctx context.Context, key string) (State, error)
	Save(ctx context.Context, key string, state State) error
	Delete(ctx context.Context, key string) error
}

func normaliseKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}

// MemoryStore keeps carts in process. Used in tests and local runs without Redis.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (State, error) {
	key, err := normaliseKey(key)
	if err != nil {
		return State{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[key].clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, key string, state State) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state.clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	key, err := normaliseKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}
