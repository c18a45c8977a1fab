package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// ActionMsg signals the parent to execute an action on the shown message.
type ActionMsg struct {
	Action string
	ID     int64
}

// Model is the message detail view.
type Model struct {
	msg      *model.Message
	viewport viewport.Model
	spinner  spinner.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
	busy     string // non-empty while a slow action runs
}

// New creates a detail view model.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		viewport: vp,
		spinner:  sp,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy == "" && !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if cmd, ok := m.handleKey(msg); ok {
			return m, cmd
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if key.Matches(msg, m.keys.Back) {
		return func() tea.Msg { return BackMsg{} }, true
	}
	if m.msg == nil {
		return nil, false
	}

	var action string
	switch {
	case key.Matches(msg, m.keys.ToggleRead):
		action = "toggle-read"
	case key.Matches(msg, m.keys.Spam):
		action = "spam"
	case key.Matches(msg, m.keys.Inbox):
		action = "inbox"
	case key.Matches(msg, m.keys.CycleType):
		action = "cycle-type"
	case key.Matches(msg, m.keys.Reply):
		action = "reply"
	case key.Matches(msg, m.keys.Suggest):
		action = "suggest"
	case key.Matches(msg, m.keys.Analyze):
		action = "analyze"
	case key.Matches(msg, m.keys.Archive):
		action = "archive"
	case key.Matches(msg, m.keys.Trash):
		action = "trash"
	case key.Matches(msg, m.keys.DeleteDraft):
		action = "delete-draft"
	default:
		return nil, false
	}

	id := m.msg.ID
	return func() tea.Msg { return ActionMsg{Action: action, ID: id} }, true
}

// View renders the detail view.
func (m Model) View() string {
	center := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return center.Render(m.spinner.View() + " Loading message...")
	}
	if m.msg == nil {
		return center.Render("No message selected")
	}
	if m.busy != "" {
		status := lipgloss.NewStyle().Foreground(theme.ColorGray).
			Render(m.spinner.View() + " " + m.busy)
		return lipgloss.JoinVertical(lipgloss.Left, status, m.viewport.View())
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.msg == nil {
		return ""
	}
	msg := m.msg
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	subject := msg.Subject
	if strings.TrimSpace(subject) == "" {
		subject = "(No subject)"
	}
	sections = append(sections, titleStyle.Render(subject))

	readState := "read"
	if !msg.IsRead {
		readState = "unread"
	}
	badgeLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		theme.TypeStyle(msg.Type).Render(string(msg.Type)), "  ",
		theme.PriorityStyle(msg.Priority).Render(priorityName(msg.Priority)), "  ",
		theme.DimmedStyle.Render(readState),
	)
	sections = append(sections, badgeLine, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(10)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	meta := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, metaStyle.Render(label)+valStyle.Render(value))
	}

	var to, cc []string
	for _, r := range msg.Recipients {
		if r.Kind == model.RecipientCc {
			cc = append(cc, r.Address)
		} else {
			to = append(to, r.Address)
		}
	}
	meta("From:", msg.Sender)
	meta("To:", strings.Join(to, ", "))
	meta("Cc:", strings.Join(cc, ", "))
	if !msg.ReceivedAt.IsZero() {
		meta("Date:", msg.ReceivedAt.Local().Format("2006-01-02 15:04"))
	}
	meta("Labels:", strings.Join(msg.Labels, ", "))
	if !msg.HasRemote() {
		meta("Mirror:", "local only")
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	if msg.Summary != nil {
		sections = append(sections, "", headerStyle.Render("Summary"), *msg.Summary)
	}

	sections = append(sections, "", separator, "")
	body := msg.Body
	if strings.TrimSpace(body) == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No body")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(body))

	if msg.Draft != nil && strings.TrimSpace(*msg.Draft) != "" {
		sections = append(sections, "", separator, "",
			headerStyle.Render("Draft reply"),
			lipgloss.NewStyle().Foreground(theme.ColorMagenta).Render(*msg.Draft))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetMessage updates the shown message and re-renders the content. The
// scroll position is kept when the same message is refreshed.
func (m *Model) SetMessage(msg *model.Message) {
	same := m.msg != nil && msg != nil && m.msg.ID == msg.ID
	m.msg = msg
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	if !same {
		m.viewport.GotoTop()
	}
}

// Message returns the shown message, if any.
func (m Model) Message() *model.Message {
	return m.msg
}

// SetLoading sets the loading state and starts the spinner.
func (m *Model) SetLoading(loading bool) tea.Cmd {
	m.loading = loading
	if loading {
		return m.spinner.Tick
	}
	return nil
}

// SetBusy shows label next to a spinner until cleared with "".
func (m *Model) SetBusy(label string) tea.Cmd {
	m.busy = label
	if label != "" {
		return m.spinner.Tick
	}
	return nil
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 1
	m.viewport.SetContent(m.renderContent())
}

// priorityName returns a human-readable name for the priority level.
func priorityName(p int) string {
	switch p {
	case model.PriorityHigh:
		return "High"
	case model.PriorityMedium:
		return "Medium"
	case model.PriorityLow:
		return "Low"
	default:
		return fmt.Sprintf("P%d", p)
	}
}
