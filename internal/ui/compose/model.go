package compose

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/theme"
)

// Submission modes.
const (
	ModeSend  = "send"
	ModeDraft = "draft"
)

// SubmitMsg is dispatched when the user completes the form.
type SubmitMsg struct {
	ID      int64 // message being answered, 0 for a new message
	Mode    string
	To      []string
	Cc      []string
	Subject string // new messages only
	Body    string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	to      string
	cc      string
	subject string
	body    string
	mode    string
}

// Model is the reply and compose form.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	replyTo int64
	subject string
	width   int
	height  int
}

// New creates a form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{mode: ModeSend},
		width:  width,
		height: height,
	}
}

// Start initializes the form for a reply to msg. body pre-fills the text,
// falling back to the stored draft.
func (m *Model) Start(msg *model.Message, body string) tea.Cmd {
	m.replyTo = msg.ID
	m.subject = msg.Subject
	m.fb.subject = ""
	m.fb.to = senderAddress(msg.Sender)
	m.fb.mode = ModeSend

	var cc []string
	for _, r := range msg.Recipients {
		if r.Kind == model.RecipientCc {
			cc = append(cc, r.Address)
		}
	}
	m.fb.cc = strings.Join(cc, ", ")

	m.fb.body = body
	if m.fb.body == "" && msg.Draft != nil {
		m.fb.body = *msg.Draft
	}

	m.form = m.buildForm()
	return m.form.Init()
}

// StartNew initializes an empty form for a message that answers nothing.
func (m *Model) StartNew() tea.Cmd {
	m.replyTo = 0
	m.subject = ""
	*m.fb = formBindings{mode: ModeSend}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		submit := m.submission()
		m.form = nil
		return m, func() tea.Msg { return submit }
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := "New message"
	if m.replyTo != 0 {
		subject := m.subject
		if strings.TrimSpace(subject) == "" {
			subject = "(No subject)"
		}
		title = "Reply: " + subject
	}
	content := titleStyle.Render(title) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("To").
			Value(&m.fb.to).
			Validate(validateAddresses(true)),
		huh.NewInput().
			Title("Cc").
			Placeholder("optional, comma separated").
			Value(&m.fb.cc).
			Validate(validateAddresses(false)),
	}
	if m.replyTo == 0 {
		fields = append(fields, huh.NewInput().
			Title("Subject").
			Value(&m.fb.subject))
	}
	fields = append(fields,
		huh.NewText().
			Title("Message").
			Lines(8).
			Value(&m.fb.body).
			Validate(validateBody),
		huh.NewSelect[string]().
			Title("Action").
			Options(
				huh.NewOption("Send now", ModeSend),
				huh.NewOption("Save as draft", ModeDraft),
			).
			Value(&m.fb.mode),
	)
	return huh.NewForm(huh.NewGroup(fields...)).
		WithWidth(m.formWidth()).
		WithHeight(m.formHeight())
}

func (m Model) submission() SubmitMsg {
	return SubmitMsg{
		ID:      m.replyTo,
		Mode:    m.fb.mode,
		To:      model.SplitAddresses(m.fb.to),
		Cc:      model.SplitAddresses(m.fb.cc),
		Subject: strings.TrimSpace(m.fb.subject),
		Body:    strings.TrimSpace(m.fb.body),
	}
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 14)
}

func validateAddresses(required bool) func(string) error {
	return func(s string) error {
		addrs := model.SplitAddresses(s)
		if required && len(addrs) == 0 {
			return fmt.Errorf("at least one recipient is required")
		}
		for _, a := range addrs {
			if !strings.Contains(a, "@") {
				return fmt.Errorf("%q is not an email address", a)
			}
		}
		return nil
	}
}

func validateBody(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// senderAddress extracts the bare address from a From header value.
func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.Index(from[i:], ">"); j > 0 {
			return from[i+1 : i+j]
		}
	}
	return from
}
