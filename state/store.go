// Package state implements the reactive state-synchronization protocol.
// The host's Store is the sole writer; every write is pushed to the
// shell as an incremental key/value event, and the full map is replayed
// once on (re)connect before any incremental push. The shell's Mirror
// is a read-only, eventually consistent copy.
package state

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Sink receives state pushes. Implemented by the host's connection;
// nil-safe absence means writes accumulate locally until a sink is
// attached.
type Sink interface {
	// PushState forwards one incremental write.
	PushState(key string, value json.RawMessage) error
	// SyncState replays the full map. Always called before the first
	// PushState on a new connection.
	SyncState(snapshot map[string]json.RawMessage) error
}

// Store is the host-owned state map. Values are stored JSON-encoded so
// a push is a copy, never a re-marshal of live host objects.
type Store struct {
	mu     sync.Mutex
	values map[string]json.RawMessage
	sink   Sink
}

// NewStore creates an empty store with no sink attached.
func NewStore() *Store {
	return &Store{values: make(map[string]json.RawMessage)}
}

// AttachSink connects the store to a sink and replays the full current
// map through it. Writes that happened before attachment are therefore
// never lost; a key never written again retains its replayed value.
// The lock is held through the replay so a concurrent Set cannot push
// ahead of the snapshot that lacks it.
func (s *Store) AttachSink(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
	if err := sink.SyncState(s.snapshotLocked()); err != nil {
		return fmt.Errorf("state sync: %w", err)
	}
	return nil
}

// Set marshals value and writes it under key, pushing the write to the
// attached sink. The store mutation and the push happen under one lock
// so pushes leave in write order.
func (s *Store) Set(key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state set %q: %w", key, err)
	}
	return s.SetRaw(key, encoded)
}

// SetRaw writes an already-encoded value under key.
func (s *Store) SetRaw(key string, value json.RawMessage) error {
	s.mu.Lock()
	s.values[key] = value
	sink := s.sink
	if sink == nil {
		s.mu.Unlock()
		return nil
	}
	err := sink.PushState(key, value)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("state push %q: %w", key, err)
	}
	return nil
}

// Update applies several writes. Each key is pushed individually, in
// map iteration order; callers needing a deterministic order set keys
// one at a time.
func (s *Store) Update(values map[string]any) error {
	for key, value := range values {
		if err := s.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the encoded value under key.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// GetInto unmarshals the value under key into out.
func (s *Store) GetInto(key string, out any) error {
	value, ok := s.Get(key)
	if !ok {
		return fmt.Errorf("state: no value for key %q", key)
	}
	return json.Unmarshal(value, out)
}

// Snapshot returns a copy of the full map.
func (s *Store) Snapshot() map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string]json.RawMessage {
	snapshot := make(map[string]json.RawMessage, len(s.values))
	for key, value := range s.values {
		snapshot[key] = value
	}
	return snapshot
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
