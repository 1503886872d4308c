package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
)

// memoryStore is an in-memory PreferencesStore; users absent from prefs are unknown
type memoryStore struct {
	mu        sync.Mutex
	prefs     map[string]string
	getErr    error
	updateErr error
	updates   int
}

func newMemoryStore(users map[string]string) *memoryStore {
	if users == nil {
		users = map[string]string{}
	}
	return &memoryStore{prefs: users}
}

func (m *memoryStore) GetUserPreferences(_ context.Context, userID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.prefs[userID]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	if v == "" {
		return nil, nil
	}
	return []byte(v), nil
}

func (m *memoryStore) UpdateUserPreferences(_ context.Context, userID string, serialized string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	m.prefs[userID] = serialized
	return nil
}

// stored decodes the persisted document of a user
func (m *memoryStore) stored(t *testing.T, userID string) map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(m.prefs[userID]), &out))
	return out
}

type fakeLedger struct {
	drops     string
	err       error
	addresses []string
}

func (f *fakeLedger) AccountBalance(_ context.Context, address string) (string, error) {
	f.addresses = append(f.addresses, address)
	if f.err != nil {
		return "", f.err
	}
	return f.drops, nil
}

var errStoreDown = errors.New("connection refused")
