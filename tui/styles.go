// Package tui provides the Bubble Tea frame-trace viewer used by
// casement-trace.
//
// The viewer is read-only: it renders capture files (or live probe
// output) and never writes to the wire itself.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	hostColor      = lipgloss.Color("#3B82F6") // Blue
	shellColor     = lipgloss.Color("#10B981") // Green
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#F59E0B") // Amber
)

// Styles for trace components.
var (
	// TitleStyle for the header line.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// HostStyle marks host-to-shell frames.
	HostStyle = lipgloss.NewStyle().
			Foreground(hostColor)

	// ShellStyle marks shell-to-host frames.
	ShellStyle = lipgloss.NewStyle().
			Foreground(shellColor)

	// ErrorStyle for undecodable bodies.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// MutedStyle for timestamps and sequence numbers.
	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// SelectedStyle highlights the cursor row.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// DetailStyle for the decoded-body pane.
	DetailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// HelpStyle for the key hint line.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// DirectionStyle returns the style for a frame direction tag.
func DirectionStyle(direction string) lipgloss.Style {
	switch direction {
	case "h2s":
		return HostStyle
	case "s2h":
		return ShellStyle
	default:
		return MutedStyle
	}
}
