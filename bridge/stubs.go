package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casement-ui/casement/types"
)

// DefaultCallTimeout bounds a stub invocation when the caller's context
// carries no deadline of its own.
const DefaultCallTimeout = 30 * time.Second

// DefaultConnectWait bounds how long an invocation waits for the
// transport to finish connecting before failing with ErrNotConnected.
// Deliberately short: a shell that has not connected within this window
// is not going to.
const DefaultConnectWait = 5 * time.Second

// Emitter sends an invocation toward the host. Implemented by the
// shell's connection; tests substitute a recorder.
type Emitter interface {
	EmitIPC(inv *types.IPCPayload) error
}

// Stubs is the rendering-side half of the RPC bridge: the set of
// callable names installed by bind commands, plus the pending-call
// table correlating replies.
type Stubs struct {
	emitter Emitter
	pending *PendingCalls

	mu    sync.RWMutex
	bound map[string]struct{}

	readyOnce sync.Once
	ready     chan struct{}

	// CallTimeout overrides DefaultCallTimeout when positive.
	CallTimeout time.Duration
	// ConnectWait overrides DefaultConnectWait when positive.
	ConnectWait time.Duration
}

// NewStubs creates the stub table wired to an emitter.
func NewStubs(emitter Emitter) *Stubs {
	return &Stubs{
		emitter: emitter,
		pending: NewPendingCalls(),
		bound:   make(map[string]struct{}),
		ready:   make(chan struct{}),
	}
}

// SetReady marks the transport connected. Invocations block on this
// gate (bounded by ConnectWait) rather than failing during startup.
func (s *Stubs) SetReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Install adds a callable name. Idempotent.
func (s *Stubs) Install(name string) {
	s.mu.Lock()
	s.bound[name] = struct{}{}
	s.mu.Unlock()
}

// Bound reports whether name has been installed.
func (s *Stubs) Bound(name string) bool {
	s.mu.RLock()
	_, ok := s.bound[name]
	s.mu.RUnlock()
	return ok
}

// Names returns the installed callable names.
func (s *Stubs) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.bound))
	for name := range s.bound {
		names = append(names, name)
	}
	return names
}

// Invoke calls a bound host function and blocks until the correlated
// reply arrives, the context is done, or the call deadline elapses.
//
// An unbound name fails immediately with ErrNotBound, no round trip.
// Before the transport connects, the call waits up to ConnectWait and
// then fails with ErrNotConnected.
func (s *Stubs) Invoke(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	if !s.Bound(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
	}

	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}

	rawArgs := make([]json.RawMessage, len(args))
	for i, arg := range args {
		encoded, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("bridge: marshal argument %d of %s: %w", i, name, err)
		}
		rawArgs[i] = encoded
	}

	id := uuid.NewString()
	outcome, err := s.pending.Register(id)
	if err != nil {
		return nil, err
	}

	if err := s.emitter.EmitIPC(&types.IPCPayload{Name: name, Args: rawArgs, ID: id}); err != nil {
		s.pending.Abandon(id)
		return nil, fmt.Errorf("bridge: emit %s: %w", name, err)
	}

	timeout := s.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.pending.Abandon(id)
		return nil, ctx.Err()
	case <-timer.C:
		s.pending.Abandon(id)
		return nil, fmt.Errorf("%w: %s after %s", ErrCallTimeout, name, timeout)
	case out := <-outcome:
		return out.Result, out.Err
	}
}

// HandleReply delivers a reply command to its pending call. Duplicate
// and unmatched ids are no-ops; the return value reports whether a
// call was completed, for metrics.
func (s *Stubs) HandleReply(reply *types.ReplyCommand) bool {
	if reply.Status == StatusOK {
		return s.pending.Resolve(reply.ID, reply.Result)
	}
	return s.pending.Reject(reply.ID, &RemoteError{Payload: reply.Result})
}

// FailAll rejects every in-flight call. Called when the transport
// severs.
func (s *Stubs) FailAll(err error) {
	s.pending.RejectAll(err)
}

// InFlight returns the number of calls awaiting replies.
func (s *Stubs) InFlight() int {
	return s.pending.Len()
}

func (s *Stubs) awaitReady(ctx context.Context) error {
	wait := s.ConnectWait
	if wait <= 0 {
		wait = DefaultConnectWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrNotConnected
	}
}
