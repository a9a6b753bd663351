// Package shell implements the rendering-shell side of the bridge: the
// command dispatcher, the window state machine with its pending queue,
// the shell half of the RPC bridge, and the connection loop.
package shell

import (
	"encoding/json"

	"github.com/casement-ui/casement/types"
)

// DriverEvent is an event surfaced by the rendering engine.
type DriverEvent int

const (
	// EventPageReady fires after the first paint of the first page.
	EventPageReady DriverEvent = iota
	// EventCloseRequested fires when the user presses the window close
	// button. The shell forwards it to the host and waits for a
	// decision; the driver must not destroy the window on its own.
	EventCloseRequested
)

// Driver abstracts the native rendering engine. The dispatcher calls
// it from a single goroutine, so implementations need no internal
// locking for command application. Engines with thread-affinity
// requirements marshal onto their UI thread internally.
type Driver interface {
	// CreateWindow creates the native window and returns its handle as
	// a decimal string. Called exactly once per session.
	CreateWindow(opts types.WindowOptions) (hwnd string, err error)

	Navigate(url string) error
	// Eval evaluates JS in the current page and returns the
	// JSON-encoded result.
	Eval(code string) (json.RawMessage, error)
	// AddInitScript registers JS injected into every subsequent
	// navigation, before any page script runs.
	AddInitScript(js string) error

	SetTitle(title string) error
	SetSize(width, height int) error
	SetBounds(x, y, width, height int) error
	Center() error
	Minimize() error
	ToggleMaximize() error
	SetProgress(value float64, mode types.ProgressMode) error
	Show() error
	Hide() error
	SetResizable(resizable bool) error
	SetFrameless(frameless bool) error
	SetIcon(path string) error

	// InstallStub exposes a callable of the given name inside the page.
	// Invocations surface through the Stubs table.
	InstallStub(name string) error

	// Notify registers the channel receiving driver events. Sends must
	// not block: implementations drop events if the channel is full.
	Notify(events chan<- DriverEvent)

	// Destroy tears down the window and releases engine resources.
	Destroy() error
}
