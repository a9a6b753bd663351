package types

// WindowOptions is the window configuration record carried by the init
// command. Zero values fall back to shell-side defaults.
type WindowOptions struct {
	Title           string `json:"title,omitempty" yaml:"title,omitempty"`
	Width           int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height          int    `json:"height,omitempty" yaml:"height,omitempty"`
	MinSize         *Size  `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize         *Size  `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	Resizable       *bool  `json:"resizable,omitempty" yaml:"resizable,omitempty"`
	Frameless       bool   `json:"frameless,omitempty" yaml:"frameless,omitempty"`
	Fullscreen      bool   `json:"fullscreen,omitempty" yaml:"fullscreen,omitempty"`
	AlwaysOnTop     bool   `json:"always_on_top,omitempty" yaml:"always_on_top,omitempty"`
	Transparent     bool   `json:"transparent,omitempty" yaml:"transparent,omitempty"`
	BackgroundColor string `json:"background_color,omitempty" yaml:"background_color,omitempty"`
	Icon            string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Center          bool   `json:"center,omitempty" yaml:"center,omitempty"`
	StartHidden     bool   `json:"start_hidden,omitempty" yaml:"start_hidden,omitempty"`
	StartMinimized  bool   `json:"start_minimized,omitempty" yaml:"start_minimized,omitempty"`
	StartMaximized  bool   `json:"start_maximized,omitempty" yaml:"start_maximized,omitempty"`
	Debug           bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
	// Root is the project root used for disk-backed asset resolution.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

// Size is a width/height pair in logical pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// StartState is the post-creation visibility derived from the start-state
// flags. Exactly one governs, checked in priority order
// hidden > minimized > maximized > shown.
type StartState int

// Start state constants, in priority order.
const (
	StartShown StartState = iota
	StartMaximized
	StartMinimized
	StartHidden
)

// ResolveStartState applies the start-state priority to the option flags.
func (o *WindowOptions) ResolveStartState() StartState {
	switch {
	case o.StartHidden:
		return StartHidden
	case o.StartMinimized:
		return StartMinimized
	case o.StartMaximized:
		return StartMaximized
	default:
		return StartShown
	}
}

// ProgressMode tags a taskbar progress indicator state.
type ProgressMode string

// Progress mode constants.
const (
	ProgressNone          ProgressMode = "none"
	ProgressNormal        ProgressMode = "normal"
	ProgressIndeterminate ProgressMode = "indeterminate"
	ProgressError         ProgressMode = "error"
	ProgressPaused        ProgressMode = "paused"
)

// Valid reports whether m is a known progress mode.
func (m ProgressMode) Valid() bool {
	switch m {
	case ProgressNone, ProgressNormal, ProgressIndeterminate, ProgressError, ProgressPaused:
		return true
	}
	return false
}
