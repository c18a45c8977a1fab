package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/theme"
)

// Command names understood by the palette.
const (
	Sync     = "sync"
	Analyze  = "analyze"
	SetType  = "type"
	Unread   = "unread"
	Inbox    = "inbox"
	Drafts   = "drafts"
	Archive  = "archive"
	Compose  = "compose"
	Settings = "settings"
	Quit     = "quit"
)

// CommandMsg is emitted when the user executes a valid command.
type CommandMsg struct {
	Name string
	Type model.MessageType // set for SetType
}

// ErrorMsg is emitted for input the palette cannot parse.
type ErrorMsg struct {
	Err error
}

// CloseMsg is emitted when the palette is dismissed.
type CloseMsg struct{}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "sync, analyze, type junk, unread, inbox, drafts, archive, compose, settings, quit"
	ti.Prompt = ": "
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.input.Reset()
			return m, func() tea.Msg { return CloseMsg{} }
		case "enter":
			line := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(line) == "" {
				return m, func() tea.Msg { return CloseMsg{} }
			}
			cmd, err := Parse(line)
			if err != nil {
				return m, func() tea.Msg { return ErrorMsg{Err: err} }
			}
			return m, func() tea.Msg { return cmd }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Parse turns a palette line into a command.
func Parse(line string) (CommandMsg, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}

	switch name := fields[0]; name {
	case Sync, Analyze, Unread, Inbox, Drafts, Archive, Compose, Settings, Quit:
		if len(fields) > 1 {
			return CommandMsg{}, fmt.Errorf("%s takes no arguments", name)
		}
		return CommandMsg{Name: name}, nil
	case "q":
		return CommandMsg{Name: Quit}, nil
	case SetType:
		if len(fields) != 2 {
			return CommandMsg{}, fmt.Errorf("usage: type <response-needed|read-only|junk-uncertain|junk>")
		}
		t := model.MessageType(fields[1])
		if !t.Triage() {
			return CommandMsg{}, fmt.Errorf("unknown type %q", fields[1])
		}
		return CommandMsg{Name: SetType, Type: t}, nil
	default:
		return CommandMsg{}, fmt.Errorf("unknown command %q", name)
	}
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Command Palette"),
		m.input.View(),
	)

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 20)).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
