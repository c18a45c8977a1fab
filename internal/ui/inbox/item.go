package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/theme"
)

// MessageItem wraps a model.Message so it can be used in a bubbles/list.
type MessageItem struct {
	Message model.Message
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string {
	return i.Message.Subject + " " + i.Message.Sender
}

// Title returns the subject for the list.
func (i MessageItem) Title() string {
	if strings.TrimSpace(i.Message.Subject) == "" {
		return "(No subject)"
	}
	return i.Message.Subject
}

// Description returns a short summary line for the list.
func (i MessageItem) Description() string {
	parts := []string{
		senderName(i.Message.Sender),
		string(i.Message.Type),
		relativeTime(i.Message.ReceivedAt, time.Now()),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering message rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	now := time.Now()
	if d.now != nil {
		now = d.now()
	}
	fmt.Fprint(w, renderRow(mi.Message, index == m.Index(), m.Width(), now))
}

// renderRow formats one message: unread marker, type and priority badges,
// sender, subject and age.
func renderRow(msg model.Message, selected bool, width int, now time.Time) string {
	marker := " "
	if !msg.IsRead {
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	typeBadge := theme.TypeStyle(msg.Type).Render(theme.TypeLabel(msg.Type))
	priBadge := theme.PriorityStyle(msg.Priority).Render(fmt.Sprintf("P%d", msg.Priority))

	sender := lipgloss.NewStyle().Width(18).MaxWidth(18).Render(truncate(senderName(msg.Sender), 17))

	subject := MessageItem{Message: msg}.Title()
	if msg.Draft != nil && strings.TrimSpace(*msg.Draft) != "" {
		subject += lipgloss.NewStyle().Foreground(theme.ColorMagenta).Render(" [draft]")
	}
	if msg.IsRead {
		subject = theme.DimmedStyle.Render(subject)
	} else {
		subject = theme.UnreadStyle.Render(subject)
	}

	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(msg.ReceivedAt, now))

	line := fmt.Sprintf("%s %s %s %s %s  %s", marker, typeBadge, priBadge, sender, subject, age)
	if width > 0 {
		line = lipgloss.NewStyle().MaxWidth(width - 2).Render(line)
	}

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// senderName returns the display name of a From header, or the address
// when there is no name.
func senderName(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.Index(from, "<"); i > 0 {
		if name := strings.Trim(strings.TrimSpace(from[:i]), `"`); name != "" {
			return name
		}
	}
	return strings.Trim(from, "<>")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 02")
	}
}
