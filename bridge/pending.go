package bridge

import (
	"encoding/json"
	"sync"
)

// Outcome is the terminal result of a pending call: a result payload
// or an error, never both.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// PendingCalls is the correlation table mapping in-flight sequence ids
// to one-shot completion channels. Entries are consumed exactly once:
// the first matching Resolve or Reject removes the entry and delivers
// the outcome; anything later with the same id is a no-op.
type PendingCalls struct {
	mu    sync.Mutex
	calls map[string]chan Outcome
}

// NewPendingCalls creates an empty correlation table.
func NewPendingCalls() *PendingCalls {
	return &PendingCalls{calls: make(map[string]chan Outcome)}
}

// Register adds a pending call and returns its completion channel.
// The channel is buffered so completion never blocks the reader loop.
func (p *PendingCalls) Register(id string) (<-chan Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.calls[id]; exists {
		return nil, ErrDuplicateID
	}
	ch := make(chan Outcome, 1)
	p.calls[id] = ch
	return ch, nil
}

// Resolve completes a call with a result payload. Returns false if no
// call with this id is pending (late or duplicate reply).
func (p *PendingCalls) Resolve(id string, result json.RawMessage) bool {
	return p.complete(id, Outcome{Result: result})
}

// Reject completes a call with an error. Returns false if no call with
// this id is pending.
func (p *PendingCalls) Reject(id string, err error) bool {
	return p.complete(id, Outcome{Err: err})
}

func (p *PendingCalls) complete(id string, outcome Outcome) bool {
	p.mu.Lock()
	ch, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- outcome
	return true
}

// Abandon removes a pending call without delivering an outcome. Used
// when the caller stops waiting; a reply arriving afterwards is
// silently discarded by the no-op path.
func (p *PendingCalls) Abandon(id string) {
	p.mu.Lock()
	delete(p.calls, id)
	p.mu.Unlock()
}

// Len returns the number of calls currently in flight.
func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// RejectAll completes every pending call with err. Called when the
// transport severs: no reply can ever arrive.
func (p *PendingCalls) RejectAll(err error) {
	p.mu.Lock()
	calls := p.calls
	p.calls = make(map[string]chan Outcome)
	p.mu.Unlock()

	for _, ch := range calls {
		ch <- Outcome{Err: err}
	}
}
