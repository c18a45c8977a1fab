package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
)

func sample() *model.Message {
	return &model.Message{
		ID:         12,
		Subject:    "Contract renewal",
		Sender:     "Ann <ann@example.com>",
		Body:       "Please sign by Friday.",
		Type:       model.TypeResponseNeeded,
		Priority:   model.PriorityHigh,
		Summary:    model.StringPtr("Ann needs a signature by Friday."),
		Draft:      model.StringPtr("Will do."),
		ReceivedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestView(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)
	assert.Contains(t, m.View(), "No message selected")

	m.SetLoading(true)
	assert.Contains(t, m.View(), "Loading message...")

	m.SetMessage(sample())
	view := m.View()
	assert.Contains(t, view, "Contract renewal")
	assert.Contains(t, view, "Ann needs a signature by Friday.")
	assert.Contains(t, view, "Please sign by Friday.")
	assert.Contains(t, view, "Will do.")

	m.SetBusy("analyzing...")
	assert.Contains(t, m.View(), "analyzing...")
	assert.Nil(t, m.SetBusy(""))
	assert.NotContains(t, m.View(), "analyzing...")
}

func TestKeys(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 100, 40)

	// Without a message only esc does anything.
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Nil(t, cmd)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())

	m.SetMessage(sample())
	for k, action := range map[string]string{
		"u": "toggle-read",
		"s": "spam",
		"i": "inbox",
		"t": "cycle-type",
		"R": "reply",
		"g": "suggest",
		"a": "analyze",
		"e": "archive",
		"#": "trash",
		"X": "delete-draft",
	} {
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		require.NotNil(t, cmd, k)
		assert.Equal(t, ActionMsg{Action: action, ID: 12}, cmd(), k)
	}
}

func TestPriorityName(t *testing.T) {
	assert.Equal(t, "High", priorityName(model.PriorityHigh))
	assert.Equal(t, "Medium", priorityName(model.PriorityMedium))
	assert.Equal(t, "Low", priorityName(model.PriorityLow))
	assert.Equal(t, "P7", priorityName(7))
}
