package host

// CloseDecision is the host's answer to a window close request.
type CloseDecision int

const (
	// CloseTerminate ends the session: the shell destroys the window
	// and exits cleanly.
	CloseTerminate CloseDecision = iota
	// CloseHide hides the window instead of closing it (close to tray).
	// All bridge state survives; a later show command restores it.
	CloseHide
	// CloseVeto ignores the close request entirely.
	CloseVeto
)

func (d CloseDecision) String() string {
	switch d {
	case CloseTerminate:
		return "terminate"
	case CloseHide:
		return "hide"
	case CloseVeto:
		return "veto"
	default:
		return "unknown"
	}
}

// CloseHandler decides what happens when the user presses the window
// close button. Called on the host's event loop; keep it fast.
type CloseHandler func() CloseDecision
