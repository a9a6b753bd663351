package types

import "encoding/json"

// MessageType discriminates shell-to-host envelopes.
type MessageType string

// Message type constants.
const (
	// MessageLifecycle carries shell lifecycle events (app_ready,
	// window_created, ready, close).
	MessageLifecycle MessageType = "lifecycle"
	// MessageIPC carries a rendering-side invocation of a bound host
	// function.
	MessageIPC MessageType = "ipc"
	// MessageCommandReply carries the shell's correlated reply to a
	// host-issued command that expects a result.
	MessageCommandReply MessageType = "command-reply"
)

// Envelope is the shell-to-host message wrapper. Payload decoding is
// deferred until the message type is known.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// LifecycleEvent identifies a shell lifecycle transition.
type LifecycleEvent string

// Lifecycle event constants.
const (
	// LifecycleAppReady is the handshake sent immediately after the
	// transport connects. It unblocks the host's outbound queue.
	LifecycleAppReady LifecycleEvent = "app_ready"
	// LifecycleWindowCreated reports the native window handle after
	// window creation.
	LifecycleWindowCreated LifecycleEvent = "window_created"
	// LifecycleReady is emitted after the first paint.
	LifecycleReady LifecycleEvent = "ready"
	// LifecycleClose is emitted when the window close button is pressed.
	// The shell waits for the host's decision; it does not exit on its own.
	LifecycleClose LifecycleEvent = "close"
)

// LifecyclePayload is the payload of a MessageLifecycle envelope.
type LifecyclePayload struct {
	Event LifecycleEvent `json:"event"`
	// HWND is the native window handle, set only for window_created.
	// Transmitted as a decimal string; handles exceed JSON's safe
	// integer range on 64-bit platforms.
	HWND string `json:"hwnd,omitempty"`
}

// IPCPayload is the payload of a MessageIPC envelope: the rendering
// side invoking a bound host function.
type IPCPayload struct {
	// Name is the bound function name.
	Name string `json:"name"`
	// Args is the positional argument list, JSON-encoded.
	Args []json.RawMessage `json:"data"`
	// ID is the sequence identifier correlating the eventual reply.
	ID string `json:"id"`
}

// CommandReplyPayload is the payload of a MessageCommandReply envelope.
type CommandReplyPayload struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}
