package inbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
	"github.com/nhle/mail-triage/internal/theme"
)

// pageSize bounds how many rows one load fetches.
const pageSize = 200

// MessagesLoadedMsg is sent when messages have been loaded from the store.
type MessagesLoadedMsg struct {
	Messages []model.Message
	Err      error
}

// SelectedMessageMsg is sent when the user opens a message.
type SelectedMessageMsg struct {
	ID int64
}

// ActionMsg asks the parent to run a mutation on a message.
type ActionMsg struct {
	Action string
	ID     int64
}

// ComposeMsg asks the parent to open an empty compose form.
type ComposeMsg struct{}

// Folder selects which rows the list shows.
type Folder string

// Folders.
const (
	FolderInbox   Folder = ""
	FolderDrafts  Folder = "drafts"
	FolderArchive Folder = "archive"
)

// Model is the message list view.
type Model struct {
	list       list.Model
	store      store.Store
	keys       *keys.KeyMap
	folder     Folder
	typeFilter model.MessageType // empty means the whole folder
	unreadOnly bool
	width      int
	height     int
}

// New creates a message list model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = theme.HeaderStyle
	// q and esc belong to the root model.
	l.KeyMap.Quit.SetEnabled(false)

	return Model{
		list:   l,
		store:  s,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Init returns a command that loads the first page.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessagesLoadedMsg:
		if msg.Err != nil {
			return m, nil
		}
		items := make([]list.Item, len(msg.Messages))
		for i, message := range msg.Messages {
			items[i] = MessageItem{Message: message}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		if m.list.SettingFilter() {
			break
		}
		if next, cmd, ok := m.handleKey(msg); ok {
			return next, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleKey processes list-level shortcuts. ok is false for keys the
// underlying list should see.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Select):
		if id, ok := m.SelectedID(); ok {
			return m, func() tea.Msg { return SelectedMessageMsg{ID: id} }, true
		}
		return m, nil, true

	case key.Matches(msg, m.keys.FilterAll):
		return m.setTypeFilter(""), m.Load(), true
	case key.Matches(msg, m.keys.FilterResponse):
		return m.setTypeFilter(model.TypeResponseNeeded), m.Load(), true
	case key.Matches(msg, m.keys.FilterReadOnly):
		return m.setTypeFilter(model.TypeReadOnly), m.Load(), true
	case key.Matches(msg, m.keys.FilterUncertain):
		return m.setTypeFilter(model.TypeJunkUncertain), m.Load(), true
	case key.Matches(msg, m.keys.FilterJunk):
		return m.setTypeFilter(model.TypeJunk), m.Load(), true

	case key.Matches(msg, m.keys.FolderDrafts):
		return m.setFolder(FolderDrafts), m.Load(), true
	case key.Matches(msg, m.keys.FolderArchive):
		return m.setFolder(FolderArchive), m.Load(), true

	case key.Matches(msg, m.keys.UnreadOnly):
		m.unreadOnly = !m.unreadOnly
		return m, m.Load(), true

	case key.Matches(msg, m.keys.ToggleRead):
		return m, m.action("toggle-read"), true
	case key.Matches(msg, m.keys.Spam):
		return m, m.action("spam"), true
	case key.Matches(msg, m.keys.Inbox):
		return m, m.action("inbox"), true
	case key.Matches(msg, m.keys.CycleType):
		return m, m.action("cycle-type"), true
	case key.Matches(msg, m.keys.Reply):
		return m, m.action("reply"), true
	case key.Matches(msg, m.keys.Archive):
		return m, m.action("archive"), true
	case key.Matches(msg, m.keys.Trash):
		return m, m.action("trash"), true
	case key.Matches(msg, m.keys.DeleteDraft):
		return m, m.action("delete-draft"), true
	case key.Matches(msg, m.keys.Compose):
		return m, func() tea.Msg { return ComposeMsg{} }, true
	}
	return m, nil, false
}

// setTypeFilter narrows the inbox to one type, leaving any other folder.
func (m Model) setTypeFilter(t model.MessageType) Model {
	m = m.setFolder(FolderInbox)
	m.typeFilter = t
	return m
}

func (m Model) setFolder(f Folder) Model {
	m.folder = f
	m.typeFilter = ""
	m.list.ResetSelected()
	switch f {
	case FolderDrafts:
		m.list.Title = "Drafts"
	case FolderArchive:
		m.list.Title = "Archive"
	default:
		m.list.Title = "Inbox"
	}
	return m
}

func (m Model) action(name string) tea.Cmd {
	id, ok := m.SelectedID()
	if !ok {
		return nil
	}
	return func() tea.Msg { return ActionMsg{Action: name, ID: id} }
}

// Filter returns the store filter for the current view settings.
func (m Model) Filter() store.MessageFilter {
	var f store.MessageFilter
	switch m.folder {
	case FolderDrafts:
		f = store.DraftsFilter()
	case FolderArchive:
		f = store.ArchiveFilter()
	default:
		f = store.InboxFilter()
	}
	if m.typeFilter != "" {
		f.Types = []model.MessageType{m.typeFilter}
	}
	f.UnreadOnly = m.unreadOnly
	f.Limit = pageSize
	return f
}

// FilterSummary describes the active filters, or "" for the plain inbox.
func (m Model) FilterSummary() string {
	var parts []string
	if m.folder != FolderInbox {
		parts = append(parts, string(m.folder))
	}
	if m.typeFilter != "" {
		parts = append(parts, string(m.typeFilter))
	}
	if m.unreadOnly {
		parts = append(parts, "unread")
	}
	return strings.Join(parts, ", ")
}

// Folder returns the folder being shown.
func (m Model) Folder() Folder {
	return m.folder
}

// SelectedID returns the id of the focused message.
func (m Model) SelectedID() (int64, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	if !ok {
		return 0, false
	}
	return item.Message.ID, true
}

// Selected returns the focused message.
func (m Model) Selected() (model.Message, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	return item.Message, ok
}

// Len returns the number of loaded rows.
func (m Model) Len() int {
	return len(m.list.Items())
}

// View renders the list view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when the view is empty.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.folder != FolderInbox && !m.unreadOnly {
		return style.Render(fmt.Sprintf("No messages in %s.\nPress 0 for the inbox.", m.folder))
	}
	if m.FilterSummary() != "" {
		return style.Render("No matching messages.\nPress 0 for the whole inbox.")
	}
	return style.Render("Inbox is empty.\n\nPress r to sync with the mailbox.")
}

// Load returns a tea.Cmd that queries the store with the current filter.
func (m Model) Load() tea.Cmd {
	filter := m.Filter()
	s := m.store
	return func() tea.Msg {
		msgs, err := s.ListMessages(context.Background(), filter)
		return MessagesLoadedMsg{Messages: msgs, Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
