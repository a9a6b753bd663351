// Package adapter defines the lifecycle event publisher boundary.
//
// Adapters push bridge lifecycle notifications (window created, first
// paint, close requested, session end) to downstream systems. The host
// owns adapter lifecycle; users provide configuration only.
package adapter

import "context"

// Event kinds published over the adapter boundary.
const (
	KindWindowCreated  = "window_created"
	KindReady          = "ready"
	KindCloseRequested = "close_requested"
	KindSessionClosed  = "session_closed"
	KindShellExit      = "shell_exit"
)

// LifecycleEvent is the payload published when the bridge session
// transitions.
type LifecycleEvent struct {
	EventType string `json:"event_type"`
	BridgeID  string `json:"bridge_id"`
	// HWND is the native window handle, set for window_created.
	HWND string `json:"hwnd,omitempty"`
	// Transport is the endpoint kind the session runs over.
	Transport string `json:"transport,omitempty"`
	Timestamp string `json:"timestamp"` // ISO 8601
	// Detail carries kind-specific fields (exit codes, close decisions).
	Detail map[string]any `json:"detail,omitempty"`
}

// Adapter publishes lifecycle events to a downstream system.
type Adapter interface {
	// Publish sends a lifecycle event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *LifecycleEvent) error

	// Close releases adapter resources.
	Close() error
}

// Multi fans one event out to several adapters, returning the first
// error after attempting all of them.
type Multi []Adapter

// Publish implements Adapter.
func (m Multi) Publish(ctx context.Context, event *LifecycleEvent) error {
	var firstErr error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close implements Adapter.
func (m Multi) Close() error {
	var firstErr error
	for _, a := range m {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
