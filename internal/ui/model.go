// ABOUTME: Bubbletea model for the session status view
// ABOUTME: Polls a session for its state and counters and renders them
package ui

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/audiosock/pkg/protocol"
	"github.com/Resonate-Protocol/audiosock/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 250 * time.Millisecond

// Source is the session being watched
type Source interface {
	ID() string
	State() session.State
	Stats() session.Stats
}

// negotiator is implemented by playback sessions
type negotiator interface {
	Negotiated() (protocol.Config, bool)
}

// announcer is implemented by capture sessions
type announcer interface {
	Config() protocol.Config
}

type tickMsg time.Time

// StatusMsg updates fields that do not come from polling
type StatusMsg struct {
	Peer string
	Err  error
}

// Model represents the TUI state
type Model struct {
	role string
	src  Source

	peer   string
	state  session.State
	stream string
	stats  session.Stats
	err    error

	showDebug bool

	width  int
	height int
}

// NewModel watches src. role labels the header.
func NewModel(role string, src Source) Model {
	return Model{
		role: role,
		src:  src,
	}
}

// Init starts polling
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tick()
	case StatusMsg:
		if msg.Peer != "" {
			m.peer = msg.Peer
		}
		if msg.Err != nil {
			m.err = msg.Err
		}
	}

	return m, nil
}

// refresh copies the session's current state into the model
func (m *Model) refresh() {
	if m.src == nil {
		return
	}
	m.state = m.src.State()
	m.stats = m.src.Stats()

	switch s := m.src.(type) {
	case negotiator:
		if cfg, ok := s.Negotiated(); ok {
			m.stream = cfg.String()
		}
	case announcer:
		m.stream = s.Config().String()
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderStats()
	if m.showDebug {
		s += m.renderDebug()
	}
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	stream := m.stream
	if stream == "" {
		stream = "(waiting for config)"
	}
	peer := m.peer
	if peer == "" {
		peer = "-"
	}

	return fmt.Sprintf(`┌─ audiosock %-9s ───────────────────────────────┐
│ State:  %-42s │
│ Peer:   %-42s │
│ Stream: %-42s │
├──────────────────────────────────────────────────────┤
`, m.role, m.state, truncate(peer, 42), truncate(stream, 42))
}

func (m Model) renderStats() string {
	st := m.stats
	s := fmt.Sprintf("│ Messages: sent %-10d received %-14d │\n", st.MessagesSent, st.MessagesReceived)
	s += fmt.Sprintf("│ Samples:  captured %-8d sent %-16d │\n", st.SamplesCaptured, st.SamplesSent)
	s += fmt.Sprintf("│           received %-8d played %-14d │\n", st.SamplesReceived, st.SamplesPlayed)
	s += fmt.Sprintf("│ Overflow: %-10d Underflow: %-20d │\n", st.Overflows, st.Underflows)
	if m.err != nil {
		s += fmt.Sprintf("│ Error: %-45s │\n", truncate(m.err.Error(), 45))
	}
	return s
}

func (m Model) renderDebug() string {
	id := ""
	if m.src != nil {
		id = m.src.ID()
	}
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Session: %-43s │
│ Bytes:   sent %-10d received %-17d │
│ Errors:  schema %-8d transport %-17d │
`, truncate(id, 43), m.stats.BytesSent, m.stats.BytesReceived, m.stats.SchemaErrors, m.stats.TransportErrors)
}

func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
