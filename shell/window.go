package shell

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/casement-ui/casement/types"
)

// Phase is the window lifecycle phase. Transitions are driven only by
// dispatched commands and driver events, all on the dispatcher
// goroutine, so Window carries no lock.
type Phase int

// Window phases.
const (
	// PhaseAbsent: no native window exists yet. Window-bound commands
	// queue until init creates one.
	PhaseAbsent Phase = iota
	// PhaseCreated: the window exists but has not painted.
	PhaseCreated
	PhaseShown
	PhaseHidden
	PhaseMinimized
	PhaseMaximized
	// PhaseClosed: the window has been destroyed. Terminal.
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAbsent:
		return "absent"
	case PhaseCreated:
		return "created"
	case PhaseShown:
		return "shown"
	case PhaseHidden:
		return "hidden"
	case PhaseMinimized:
		return "minimized"
	case PhaseMaximized:
		return "maximized"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ErrWindowClosed reports a command applied after window destruction.
var ErrWindowClosed = errors.New("shell: window closed")

// errAlreadyCreated reports a second init command.
var errAlreadyCreated = errors.New("shell: window already created")

// Window drives the native window through its lifecycle. It owns the
// phase variable and validates every transition before touching the
// driver.
type Window struct {
	driver Driver
	phase  Phase
	hwnd   string
}

// NewWindow wraps a driver with lifecycle tracking.
func NewWindow(driver Driver) *Window {
	return &Window{driver: driver, phase: PhaseAbsent}
}

// Phase returns the current lifecycle phase.
func (w *Window) Phase() Phase { return w.phase }

// HWND returns the native handle reported at creation.
func (w *Window) HWND() string { return w.hwnd }

// Created reports whether the native window exists.
func (w *Window) Created() bool {
	return w.phase != PhaseAbsent && w.phase != PhaseClosed
}

// Create builds the native window from opts and applies the resolved
// start state. Start-state flags are not cumulative: exactly one
// governs, hidden over minimized over maximized over shown.
func (w *Window) Create(opts types.WindowOptions) (string, error) {
	if w.phase != PhaseAbsent {
		return "", errAlreadyCreated
	}

	hwnd, err := w.driver.CreateWindow(opts)
	if err != nil {
		return "", fmt.Errorf("create window: %w", err)
	}
	w.hwnd = hwnd
	w.phase = PhaseCreated

	switch opts.ResolveStartState() {
	case types.StartHidden:
		err = w.Hide()
	case types.StartMinimized:
		err = w.Minimize()
	case types.StartMaximized:
		err = w.ToggleMaximize()
	default:
		err = w.Show()
	}
	if err != nil {
		return "", err
	}
	return hwnd, nil
}

// guard rejects operations in phases with no window to operate on.
func (w *Window) guard() error {
	switch w.phase {
	case PhaseClosed:
		return ErrWindowClosed
	case PhaseAbsent:
		return errors.New("shell: window not created")
	}
	return nil
}

// Show makes the window visible and restores it from minimized.
func (w *Window) Show() error {
	if err := w.guard(); err != nil {
		return err
	}
	if err := w.driver.Show(); err != nil {
		return err
	}
	w.phase = PhaseShown
	return nil
}

// Hide conceals the window without destroying it. State such as the
// loaded page and the asset store survives.
func (w *Window) Hide() error {
	if err := w.guard(); err != nil {
		return err
	}
	if err := w.driver.Hide(); err != nil {
		return err
	}
	w.phase = PhaseHidden
	return nil
}

// Minimize minimizes the window.
func (w *Window) Minimize() error {
	if err := w.guard(); err != nil {
		return err
	}
	if err := w.driver.Minimize(); err != nil {
		return err
	}
	w.phase = PhaseMinimized
	return nil
}

// ToggleMaximize flips between maximized and restored.
func (w *Window) ToggleMaximize() error {
	if err := w.guard(); err != nil {
		return err
	}
	if err := w.driver.ToggleMaximize(); err != nil {
		return err
	}
	if w.phase == PhaseMaximized {
		w.phase = PhaseShown
	} else {
		w.phase = PhaseMaximized
	}
	return nil
}

// Navigate loads a URL.
func (w *Window) Navigate(url string) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.Navigate(url)
}

// Eval evaluates JS in the current page and returns the JSON-encoded
// result.
func (w *Window) Eval(code string) (json.RawMessage, error) {
	if err := w.guard(); err != nil {
		return nil, err
	}
	return w.driver.Eval(code)
}

// AddInitScript registers JS injected before every navigation.
func (w *Window) AddInitScript(js string) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.AddInitScript(js)
}

// InstallStub exposes a callable name inside the page.
func (w *Window) InstallStub(name string) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.InstallStub(name)
}

// SetTitle sets the window title.
func (w *Window) SetTitle(title string) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.SetTitle(title)
}

// SetSize resizes the window.
func (w *Window) SetSize(width, height int) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.SetSize(width, height)
}

// SetBounds moves and resizes in one step.
func (w *Window) SetBounds(x, y, width, height int) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.SetBounds(x, y, width, height)
}

// Center centers the window on the primary screen.
func (w *Window) Center() error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.Center()
}

// SetProgress sets the taskbar progress indicator. A negative value
// clears it; mode is validated before reaching the driver.
func (w *Window) SetProgress(value float64, mode types.ProgressMode) error {
	if err := w.guard(); err != nil {
		return err
	}
	if value < 0 {
		return w.driver.SetProgress(-1, types.ProgressNone)
	}
	if !mode.Valid() {
		return fmt.Errorf("shell: invalid progress mode %q", mode)
	}
	return w.driver.SetProgress(value, mode)
}

// SetResizable toggles user resizing.
func (w *Window) SetResizable(resizable bool) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.SetResizable(resizable)
}

// SetFrameless toggles window chrome.
func (w *Window) SetFrameless(frameless bool) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.SetFrameless(frameless)
}

// SetIcon sets the window icon from a path.
func (w *Window) SetIcon(path string) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.driver.SetIcon(path)
}

// Destroy tears down the window. Idempotent.
func (w *Window) Destroy() error {
	if w.phase == PhaseClosed || w.phase == PhaseAbsent {
		w.phase = PhaseClosed
		return nil
	}
	err := w.driver.Destroy()
	w.phase = PhaseClosed
	return err
}
