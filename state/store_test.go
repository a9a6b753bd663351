package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// recordingSink records pushes in arrival order.
type recordingSink struct {
	pushes  []string
	syncs   []map[string]json.RawMessage
	pushErr error
	syncErr error
}

func (s *recordingSink) PushState(key string, value json.RawMessage) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushes = append(s.pushes, key+"="+string(value))
	return nil
}

func (s *recordingSink) SyncState(snapshot map[string]json.RawMessage) error {
	if s.syncErr != nil {
		return s.syncErr
	}
	copied := make(map[string]json.RawMessage, len(snapshot))
	for k, v := range snapshot {
		copied[k] = v
	}
	s.syncs = append(s.syncs, copied)
	return nil
}

func TestStore_SetWithoutSink(t *testing.T) {
	s := NewStore()

	if err := s.Set("counter", 1); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok := s.Get("counter")
	if !ok {
		t.Fatal("expected value under counter")
	}
	if string(value) != "1" {
		t.Errorf("expected 1, got %s", value)
	}
}

func TestStore_AttachSink_ReplaysSnapshot(t *testing.T) {
	s := NewStore()
	_ = s.Set("theme", "dark")
	_ = s.Set("counter", 3)

	sink := &recordingSink{}
	if err := s.AttachSink(sink); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if len(sink.syncs) != 1 {
		t.Fatalf("expected 1 sync, got %d", len(sink.syncs))
	}
	snap := sink.syncs[0]
	if string(snap["theme"]) != `"dark"` {
		t.Errorf("expected \"dark\", got %s", snap["theme"])
	}
	if string(snap["counter"]) != "3" {
		t.Errorf("expected 3, got %s", snap["counter"])
	}
	// Pre-attachment writes arrive only via the sync, not as pushes.
	if len(sink.pushes) != 0 {
		t.Errorf("expected no pushes before first Set, got %v", sink.pushes)
	}
}

func TestStore_PushOrder(t *testing.T) {
	s := NewStore()
	sink := &recordingSink{}
	if err := s.AttachSink(sink); err != nil {
		t.Fatalf("attach: %v", err)
	}

	_ = s.Set("a", 1)
	_ = s.Set("b", 2)
	_ = s.Set("a", 3)

	want := []string{"a=1", "b=2", "a=3"}
	if len(sink.pushes) != len(want) {
		t.Fatalf("expected %d pushes, got %d", len(want), len(sink.pushes))
	}
	for i, p := range want {
		if sink.pushes[i] != p {
			t.Errorf("push %d: expected %s, got %s", i, p, sink.pushes[i])
		}
	}
}

func TestStore_SetRaw(t *testing.T) {
	s := NewStore()
	sink := &recordingSink{}
	_ = s.AttachSink(sink)

	if err := s.SetRaw("blob", json.RawMessage(`{"x":1}`)); err != nil {
		t.Fatalf("set raw: %v", err)
	}
	if sink.pushes[0] != `blob={"x":1}` {
		t.Errorf("unexpected push %s", sink.pushes[0])
	}
}

func TestStore_PushErrorSurfaced(t *testing.T) {
	s := NewStore()
	sink := &recordingSink{}
	_ = s.AttachSink(sink)

	sink.pushErr = errors.New("connection severed")
	err := s.Set("k", 1)
	if err == nil {
		t.Fatal("expected push error to surface")
	}

	// The local write still lands even when the push fails.
	if _, ok := s.Get("k"); !ok {
		t.Error("local write should persist despite push failure")
	}
}

func TestStore_AttachSink_SyncError(t *testing.T) {
	s := NewStore()
	_ = s.Set("k", 1)

	if err := s.AttachSink(&recordingSink{syncErr: errors.New("down")}); err == nil {
		t.Fatal("expected sync error to surface")
	}
}

func TestStore_GetInto(t *testing.T) {
	s := NewStore()
	_ = s.Set("user", map[string]any{"name": "ada"})

	var out struct {
		Name string `json:"name"`
	}
	if err := s.GetInto("user", &out); err != nil {
		t.Fatalf("get into: %v", err)
	}
	if out.Name != "ada" {
		t.Errorf("expected ada, got %s", out.Name)
	}

	if err := s.GetInto("absent", &out); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore()
	if err := s.Update(map[string]any{"a": 1, "b": "two"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", s.Len())
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	_ = s.Set("k", 1)

	snap := s.Snapshot()
	snap["k"] = json.RawMessage("999")
	snap["injected"] = json.RawMessage("1")

	if v, _ := s.Get("k"); string(v) != "1" {
		t.Errorf("store mutated through snapshot: %s", v)
	}
	if _, ok := s.Get("injected"); ok {
		t.Error("snapshot mutation leaked into store")
	}
}

// sequencedSink records the exact interleaving of sink calls so a test
// can replay them into a Mirror the way the shell would.
type sequencedSink struct {
	ops []sinkOp
}

type sinkOp struct {
	key      string // empty for a sync
	value    json.RawMessage
	snapshot map[string]json.RawMessage
}

func (s *sequencedSink) PushState(key string, value json.RawMessage) error {
	s.ops = append(s.ops, sinkOp{key: key, value: value})
	return nil
}

func (s *sequencedSink) SyncState(snapshot map[string]json.RawMessage) error {
	copied := make(map[string]json.RawMessage, len(snapshot))
	for k, v := range snapshot {
		copied[k] = v
	}
	s.ops = append(s.ops, sinkOp{snapshot: copied})
	return nil
}

func TestStore_AttachSinkRacingWrites(t *testing.T) {
	s := NewStore()
	sink := &sequencedSink{}

	// Writers race the attachment. Every write must survive the replay:
	// either inside the snapshot or as a push ordered after it.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			key := fmt.Sprintf("w%d", w)
			for i := 0; i < 100; i++ {
				_ = s.Set(key, i)
			}
		}(w)
	}
	close(start)
	if err := s.AttachSink(sink); err != nil {
		t.Fatalf("attach: %v", err)
	}
	wg.Wait()

	if len(sink.ops) == 0 || sink.ops[0].snapshot == nil {
		t.Fatal("the sync must precede every push")
	}

	mirror := NewMirror()
	for _, op := range sink.ops {
		if op.snapshot != nil {
			mirror.ApplySync(op.snapshot)
		} else {
			mirror.ApplySet(op.key, op.value)
		}
	}

	for key, want := range s.Snapshot() {
		got, ok := mirror.Get(key)
		if !ok {
			t.Fatalf("key %s lost in replay", key)
		}
		if string(got) != string(want) {
			t.Errorf("key %s: mirror has %s, store has %s", key, got, want)
		}
	}
}

func TestStore_SetUnmarshalableValue(t *testing.T) {
	s := NewStore()
	if err := s.Set("bad", func() {}); err == nil {
		t.Error("expected marshal error for func value")
	}
}
