package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Forced sync pass
	Refresh key.Binding

	// Type filters
	FilterResponse  key.Binding
	FilterReadOnly  key.Binding
	FilterUncertain key.Binding
	FilterJunk      key.Binding
	FilterAll       key.Binding
	UnreadOnly      key.Binding

	// Folders
	FolderDrafts  key.Binding
	FolderArchive key.Binding

	// Message actions
	ToggleRead  key.Binding
	Spam        key.Binding
	Inbox       key.Binding
	CycleType   key.Binding
	Reply       key.Binding
	Suggest     key.Binding
	Analyze     key.Binding
	Archive     key.Binding
	Trash       key.Binding
	DeleteDraft key.Binding
	Compose     key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open message"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "sync now"),
		),
		FilterResponse: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "response needed"),
		),
		FilterReadOnly: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "read only"),
		),
		FilterUncertain: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "maybe junk"),
		),
		FilterJunk: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "junk"),
		),
		FilterAll: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "inbox"),
		),
		UnreadOnly: key.NewBinding(
			key.WithKeys("U"),
			key.WithHelp("U", "unread only"),
		),
		FolderDrafts: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "drafts"),
		),
		FolderArchive: key.NewBinding(
			key.WithKeys("6"),
			key.WithHelp("6", "archive"),
		),
		ToggleRead: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "read/unread"),
		),
		Spam: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "move to spam"),
		),
		Inbox: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "move to inbox"),
		),
		CycleType: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "cycle type"),
		),
		Reply: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reply"),
		),
		Suggest: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "suggest reply"),
		),
		Analyze: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "analyze"),
		),
		Archive: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "archive"),
		),
		Trash: key.NewBinding(
			key.WithKeys("#"),
			key.WithHelp("#", "trash"),
		),
		DeleteDraft: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "delete draft"),
		),
		Compose: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "compose"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.Quit, k.Help, k.Refresh,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.Command, k.Help, k.Refresh, k.UnreadOnly},
		{k.FilterAll, k.FilterResponse, k.FilterReadOnly, k.FilterUncertain, k.FilterJunk},
		{k.FolderDrafts, k.FolderArchive},
		{k.ToggleRead, k.Spam, k.Inbox, k.CycleType, k.Archive, k.Trash},
		{k.Reply, k.Compose, k.DeleteDraft, k.Suggest, k.Analyze},
	}
}
