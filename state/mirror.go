package state

import (
	"encoding/json"
	"sync"
)

// Mirror is the shell-side read-only copy of the host's state map.
// It is populated by one full sync followed by incremental sets, all
// arriving on the single command stream, so arrival order is write
// order and no reconciliation beyond overwrite is needed.
type Mirror struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	synced bool

	// watchers receive the key of every applied write.
	watchers []func(key string, value json.RawMessage)
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{values: make(map[string]json.RawMessage)}
}

// ApplySync replaces the whole map with a replayed snapshot.
func (m *Mirror) ApplySync(snapshot map[string]json.RawMessage) {
	m.mu.Lock()
	m.values = make(map[string]json.RawMessage, len(snapshot))
	for key, value := range snapshot {
		m.values[key] = value
	}
	m.synced = true
	watchers := m.watchers
	m.mu.Unlock()

	for key, value := range snapshot {
		for _, w := range watchers {
			w(key, value)
		}
	}
}

// ApplySet applies one incremental write.
func (m *Mirror) ApplySet(key string, value json.RawMessage) {
	m.mu.Lock()
	m.values[key] = value
	watchers := m.watchers
	m.mu.Unlock()

	for _, w := range watchers {
		w(key, value)
	}
}

// Watch registers a callback invoked for every applied write. Used to
// forward state changes into the page.
func (m *Mirror) Watch(fn func(key string, value json.RawMessage)) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()
}

// Get returns the encoded value under key.
func (m *Mirror) Get(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

// Synced reports whether the initial full sync has been applied.
func (m *Mirror) Synced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced
}

// Len returns the number of mirrored keys.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Snapshot returns a copy of the mirrored map.
func (m *Mirror) Snapshot() map[string]json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]json.RawMessage, len(m.values))
	for key, value := range m.values {
		snapshot[key] = value
	}
	return snapshot
}
