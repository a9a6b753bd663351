// Package vap implements the Virtual Asset Provider: a keyed in-memory
// store of binary payloads served to the rendering engine through
// custom-scheme URL interception. The channel exists to move binary
// data (images, tensors, audio frames) across the process boundary
// without the ~33% size inflation of base64-in-JSON.
package vap

import "sync"

// Entry is one stored asset. Payload bytes are owned by the store;
// readers must treat them as immutable.
type Entry struct {
	Data []byte
	MIME string
}

// DefaultMIME is used when a caller serves data without a content type.
const DefaultMIME = "application/octet-stream"

// Store is the keyed asset store. Re-serving an existing key replaces
// the whole entry atomically: a concurrent reader observes either the
// old entry or the new one, never a mix.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates an empty asset store.
func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Serve inserts or overwrites the entry under key. The payload is
// copied so later mutation by the caller cannot tear a stored entry.
func (s *Store) Serve(key string, data []byte, mime string) {
	if mime == "" {
		mime = DefaultMIME
	}
	owned := make([]byte, len(data))
	copy(owned, data)

	s.mu.Lock()
	s.entries[key] = Entry{Data: owned, MIME: mime}
	s.mu.Unlock()
}

// Unserve removes the entry under key. Removing an absent key is a
// no-op.
func (s *Store) Unserve(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Get looks up an entry by key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	return entry, ok
}

// Len returns the number of stored assets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns the stored keys in unspecified order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}
