package inbox_test

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
	"github.com/nhle/mail-triage/internal/ui/inbox"
	"github.com/nhle/mail-triage/tests/testutil"
)

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// load runs cmd and feeds the loaded rows back into m.
func load(t *testing.T, m inbox.Model, cmd tea.Cmd) inbox.Model {
	t.Helper()
	require.NotNil(t, cmd)
	msg, ok := cmd().(inbox.MessagesLoadedMsg)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	m, _ = m.Update(msg)
	return m
}

func TestInboxFilters(t *testing.T) {
	s := testutil.NewTestStore(t)
	acct := testutil.NewTestAccount(t, s)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	reply := testutil.SeedMessage(t, s, acct, model.Message{
		Subject: "needs reply", Type: model.TypeResponseNeeded, ReceivedAt: base.Add(3 * time.Minute),
	})
	testutil.SeedMessage(t, s, acct, model.Message{
		Subject: "fyi", Type: model.TypeReadOnly, IsRead: true, ReceivedAt: base.Add(2 * time.Minute),
	})
	testutil.SeedMessage(t, s, acct, model.Message{
		Subject: "spam", Type: model.TypeJunk, ReceivedAt: base.Add(time.Minute),
	})
	testutil.SeedMessage(t, s, acct, model.Message{
		Subject: "my reply", Type: model.TypeSent, ReceivedAt: base,
	})

	m := inbox.New(s, keys.DefaultKeyMap(), 80, 20)
	assert.Equal(t, store.InboxFilter().ExcludeTypes, m.Filter().ExcludeTypes)
	assert.Equal(t, "", m.FilterSummary())

	m = load(t, m, m.Init())
	assert.Equal(t, 3, m.Len(), "sent rows stay out of the inbox")
	id, ok := m.SelectedID()
	require.True(t, ok)
	assert.Equal(t, reply.ID, id, "newest first")

	m, cmd := m.Update(keyPress("4"))
	m = load(t, m, cmd)
	assert.Equal(t, "junk", m.FilterSummary())
	assert.Equal(t, 1, m.Len())

	m, cmd = m.Update(keyPress("U"))
	m = load(t, m, cmd)
	assert.Equal(t, "junk, unread", m.FilterSummary())
	assert.True(t, m.Filter().UnreadOnly)

	m, cmd = m.Update(keyPress("0"))
	m = load(t, m, cmd)
	assert.Equal(t, "unread", m.FilterSummary())
	assert.Equal(t, 2, m.Len())

	m, cmd = m.Update(keyPress("2"))
	m = load(t, m, cmd)
	assert.Zero(t, m.Len())
	assert.Contains(t, m.View(), "No matching messages.")
}

func TestInboxActions(t *testing.T) {
	s := testutil.NewTestStore(t)
	acct := testutil.NewTestAccount(t, s)
	msg := testutil.SeedMessage(t, s, acct, model.Message{Subject: "hello"})

	m := inbox.New(s, keys.DefaultKeyMap(), 80, 20)
	m = load(t, m, m.Load())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, inbox.SelectedMessageMsg{ID: msg.ID}, cmd())

	for k, action := range map[string]string{
		"u": "toggle-read",
		"s": "spam",
		"i": "inbox",
		"t": "cycle-type",
		"R": "reply",
		"e": "archive",
		"#": "trash",
		"X": "delete-draft",
	} {
		_, cmd := m.Update(keyPress(k))
		require.NotNil(t, cmd, k)
		assert.Equal(t, inbox.ActionMsg{Action: action, ID: msg.ID}, cmd(), k)
	}

	_, cmd = m.Update(keyPress("c"))
	require.NotNil(t, cmd)
	assert.Equal(t, inbox.ComposeMsg{}, cmd())
}

func TestInboxFolders(t *testing.T) {
	s := testutil.NewTestStore(t)
	acct := testutil.NewTestAccount(t, s)
	ctx := context.Background()

	testutil.SeedMessage(t, s, acct, model.Message{Subject: "current"})
	filed := testutil.SeedMessage(t, s, acct, model.Message{Subject: "filed"})
	_, err := s.SetArchived(ctx, filed.ID, true)
	require.NoError(t, err)
	testutil.SeedMessage(t, s, acct, model.Message{
		Subject: "half written", Type: model.TypeDraft, Draft: model.StringPtr("Dear"),
	})
	testutil.SeedMessage(t, s, acct, model.Message{
		Subject: "answered", Draft: model.StringPtr("Sure"),
	})

	m := inbox.New(s, keys.DefaultKeyMap(), 80, 20)
	m = load(t, m, m.Init())
	assert.Equal(t, 2, m.Len(), "archived and draft rows stay out of the inbox")

	m, cmd := m.Update(keyPress("5"))
	m = load(t, m, cmd)
	assert.Equal(t, inbox.FolderDrafts, m.Folder())
	assert.Equal(t, "drafts", m.FilterSummary())
	assert.Equal(t, 2, m.Len(), "standalone drafts and replies with a draft")

	m, cmd = m.Update(keyPress("6"))
	m = load(t, m, cmd)
	assert.Equal(t, "archive", m.FilterSummary())
	require.Equal(t, 1, m.Len())
	selected, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, filed.ID, selected.ID)

	m, cmd = m.Update(keyPress("U"))
	m = load(t, m, cmd)
	assert.Equal(t, "archive, unread", m.FilterSummary())

	m, cmd = m.Update(keyPress("1"))
	m = load(t, m, cmd)
	assert.Equal(t, inbox.FolderInbox, m.Folder(), "a type filter returns to the inbox")
	assert.Equal(t, "response-needed, unread", m.FilterSummary())

	m, cmd = m.Update(keyPress("0"))
	m = load(t, m, cmd)
	m, cmd = m.Update(keyPress("U"))
	m = load(t, m, cmd)
	m, cmd = m.Update(keyPress("6"))
	_, err = s.SetArchived(ctx, filed.ID, false)
	require.NoError(t, err)
	m = load(t, m, cmd)
	assert.Contains(t, m.View(), "No messages in archive.")
}

func TestInboxEmpty(t *testing.T) {
	s := testutil.NewTestStore(t)
	m := inbox.New(s, keys.DefaultKeyMap(), 80, 20)

	msgs, err := s.ListMessages(context.Background(), m.Filter())
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Contains(t, m.View(), "Inbox is empty.")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	_, cmd = m.Update(keyPress("s"))
	assert.Nil(t, cmd, "actions need a selected row")
}
