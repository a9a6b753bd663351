package shell

import (
	"encoding/json"
	"sync"

	"github.com/casement-ui/casement/types"
)

// Headless is a windowless Driver used in tests and CI. It records
// every call and lets the test fire driver events by hand.
type Headless struct {
	mu sync.Mutex

	created bool
	opts    types.WindowOptions
	events  chan<- DriverEvent

	// Calls is the ordered method trace, e.g. "navigate https://…".
	Calls []string
	// Stubs is the set of installed callable names.
	Stubs map[string]bool

	// CreateErr, when set, is returned by CreateWindow.
	CreateErr error
}

// NewHeadless creates a headless driver.
func NewHeadless() *Headless {
	return &Headless{Stubs: make(map[string]bool)}
}

func (h *Headless) record(call string) {
	h.mu.Lock()
	h.Calls = append(h.Calls, call)
	h.mu.Unlock()
}

// Trace returns a copy of the recorded call sequence.
func (h *Headless) Trace() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Calls...)
}

// Options returns the options CreateWindow received.
func (h *Headless) Options() types.WindowOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

func (h *Headless) CreateWindow(opts types.WindowOptions) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.CreateErr != nil {
		return "", h.CreateErr
	}
	h.created = true
	h.opts = opts
	h.Calls = append(h.Calls, "create "+opts.Title)
	return "264534", nil
}

func (h *Headless) Navigate(url string) error { h.record("navigate " + url); return nil }

func (h *Headless) Eval(code string) (json.RawMessage, error) {
	h.record("eval " + code)
	return json.RawMessage("null"), nil
}
func (h *Headless) AddInitScript(js string) error {
	h.record("init_script " + js)
	return nil
}
func (h *Headless) SetTitle(title string) error { h.record("set_title " + title); return nil }

func (h *Headless) SetSize(width, height int) error {
	h.record("set_size")
	return nil
}

func (h *Headless) SetBounds(x, y, width, height int) error {
	h.record("set_bounds")
	return nil
}

func (h *Headless) Center() error         { h.record("center"); return nil }
func (h *Headless) Minimize() error       { h.record("minimize"); return nil }
func (h *Headless) ToggleMaximize() error { h.record("toggle_maximize"); return nil }

func (h *Headless) SetProgress(value float64, mode types.ProgressMode) error {
	h.record("set_progress")
	return nil
}

func (h *Headless) Show() error { h.record("show"); return nil }
func (h *Headless) Hide() error { h.record("hide"); return nil }

func (h *Headless) SetResizable(resizable bool) error {
	h.record("set_resizable")
	return nil
}

func (h *Headless) SetFrameless(frameless bool) error {
	h.record("set_frameless")
	return nil
}

func (h *Headless) SetIcon(path string) error { h.record("set_icon " + path); return nil }

func (h *Headless) InstallStub(name string) error {
	h.mu.Lock()
	h.Stubs[name] = true
	h.Calls = append(h.Calls, "install_stub "+name)
	h.mu.Unlock()
	return nil
}

func (h *Headless) Notify(events chan<- DriverEvent) {
	h.mu.Lock()
	h.events = events
	h.mu.Unlock()
}

// Fire emits a driver event, as the real engine would from its UI
// thread. Dropped if no channel is registered or it is full.
func (h *Headless) Fire(ev DriverEvent) {
	h.mu.Lock()
	events := h.events
	h.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}

func (h *Headless) Destroy() error { h.record("destroy"); return nil }
