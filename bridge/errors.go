// Package bridge implements the asynchronous RPC correlation protocol:
// rendering-side callable stubs, the one-shot pending-call table keyed
// by sequence id, and host-side dispatch of bound functions.
//
// Correctness never depends on reply arrival order. A reply resolves
// its call through the sequence id alone; duplicate, late, and
// unmatched replies are no-ops.
package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBound is returned synchronously when invoking a name that
	// was never bound. No round trip is made.
	ErrNotBound = errors.New("bridge: method not found")
	// ErrNotConnected is returned when the transport has not finished
	// connecting within the caller's wait budget.
	ErrNotConnected = errors.New("bridge: backend not connected")
	// ErrCallTimeout is returned when a reply does not arrive within
	// the call deadline.
	ErrCallTimeout = errors.New("bridge: call timed out")
	// ErrDuplicateID is returned when a sequence id collides with a
	// call already in flight.
	ErrDuplicateID = errors.New("bridge: duplicate sequence id")
)

// RemoteError is a host-reported call failure: the bound function
// returned an error, carried back in the reply's result payload.
type RemoteError struct {
	// Payload is the JSON error payload from the reply.
	Payload []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: remote error: %s", e.Payload)
}
