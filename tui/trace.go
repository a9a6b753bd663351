package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/casement-ui/casement/wire"
)

// keyMap defines trace viewer key bindings.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous frame"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next frame"),
	),
	Top: key.NewBinding(
		key.WithKeys("g", "home"),
		key.WithHelp("g", "first frame"),
	),
	Bottom: key.NewBinding(
		key.WithKeys("G", "end"),
		key.WithHelp("G", "last frame"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// TraceModel is a Bubble Tea model rendering a captured frame
// sequence: a scrolling frame list plus a decoded-body detail pane for
// the selected frame.
type TraceModel struct {
	header *wire.CaptureHeader
	frames []wire.CapturedFrame

	cursor   int
	width    int
	height   int
	quitting bool
}

// NewTraceModel creates a trace model over a loaded capture.
func NewTraceModel(header *wire.CaptureHeader, frames []wire.CapturedFrame) TraceModel {
	return TraceModel{header: header, frames: frames}
}

// Init implements tea.Model.
func (m TraceModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m TraceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.frames)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Top):
			m.cursor = 0
		case key.Matches(msg, keys.Bottom):
			if len(m.frames) > 0 {
				m.cursor = len(m.frames) - 1
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m TraceModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	started := time.Unix(0, m.header.StartedAt).Format(time.RFC3339)
	b.WriteString(TitleStyle.Render(fmt.Sprintf(
		"casement trace — %d frames — started %s (v%s)",
		len(m.frames), started, m.header.Version,
	)))
	b.WriteString("\n")

	if len(m.frames) == 0 {
		b.WriteString(MutedStyle.Render("capture is empty"))
	} else {
		b.WriteString(m.renderList())
		b.WriteString("\n")
		b.WriteString(m.renderDetail())
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ select · g/G first/last · q quit"))
	return b.String()
}

// listRows bounds the frame list height, leaving room for the detail
// pane.
func (m TraceModel) listRows() int {
	rows := m.height - 14
	if rows < 5 {
		rows = 5
	}
	return rows
}

func (m TraceModel) renderList() string {
	rows := m.listRows()
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := start + rows
	if end > len(m.frames) {
		end = len(m.frames)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		frame := m.frames[i]
		at := time.Unix(0, frame.ObservedAt).Format("15:04:05.000")
		line := fmt.Sprintf("%4d  %s  %-4s  %-16s  %d bytes",
			frame.Seq, at, frame.Direction, FrameSummary(frame), len(frame.Body))

		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + DirectionStyle(frame.Direction).Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m TraceModel) renderDetail() string {
	frame := m.frames[m.cursor]

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, frame.Body, "", "  "); err != nil {
		return DetailStyle.Render(ErrorStyle.Render(
			fmt.Sprintf("body is not valid JSON: %v", err),
		))
	}

	body := pretty.String()
	const maxDetail = 2000
	if len(body) > maxDetail {
		body = body[:maxDetail] + "\n…"
	}
	return DetailStyle.Render(body)
}

// FrameSummary derives a short tag for a frame body: the command
// action for host-to-shell frames, the envelope type (and lifecycle
// event) for shell-to-host frames.
func FrameSummary(frame wire.CapturedFrame) string {
	switch frame.Direction {
	case wire.DirHostToShell:
		var probe struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(frame.Body, &probe); err != nil || probe.Action == "" {
			return "?"
		}
		return probe.Action
	case wire.DirShellToHost:
		var probe struct {
			Type    string `json:"type"`
			Payload struct {
				Event string `json:"event"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(frame.Body, &probe); err != nil || probe.Type == "" {
			return "?"
		}
		if probe.Payload.Event != "" {
			return probe.Type + ":" + probe.Payload.Event
		}
		return probe.Type
	default:
		return "?"
	}
}

// RunTrace loads a capture into the viewer and blocks until quit.
func RunTrace(header *wire.CaptureHeader, frames []wire.CapturedFrame) error {
	model := NewTraceModel(header, frames)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
