package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/ai"
	"github.com/nhle/mail-triage/internal/gateway"
	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
	appsync "github.com/nhle/mail-triage/internal/sync"
	"github.com/nhle/mail-triage/internal/ui"
	"github.com/nhle/mail-triage/internal/ui/command"
	"github.com/nhle/mail-triage/internal/ui/compose"
	settingsview "github.com/nhle/mail-triage/internal/ui/config"
	"github.com/nhle/mail-triage/internal/ui/detail"
	helpview "github.com/nhle/mail-triage/internal/ui/help"
	"github.com/nhle/mail-triage/internal/ui/inbox"
)

// flashTTL is how long a status bar message stays visible.
const flashTTL = 5 * time.Second

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
	ViewCompose
	ViewSettings
)

// Messages produced by the root model's commands.
type (
	messageLoadedMsg struct {
		msg *model.Message
		err error
	}
	actionDoneMsg struct {
		id     int64
		action string
		flash  string
		err    error
	}
	suggestionMsg struct {
		id   int64
		text string
		err  error
	}
	analyzedMsg struct {
		count int
		err   error
	}
	fingerprintMsg struct {
		value string
	}
	flashExpiredMsg struct {
		seq int
	}
)

// Model is the root Bubble Tea model that routes between views and runs
// user actions through the gateway.
type Model struct {
	store     store.Store
	gateway   *gateway.Gateway
	scheduler *appsync.Scheduler
	analyzer  *ai.Analyzer
	aiEnabled bool
	account   string
	config    *model.AppConfig
	logger    *zap.Logger

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	inbox        inbox.Model
	detail       detail.Model
	helpView     helpview.Model
	commandView  command.Model
	composeView  compose.Model
	settingsView settingsview.Model
	ready        bool

	fingerprint string
	analyzing   bool
	flash       string
	flashSeq    int
}

// NewModel creates the root model for a. Settings edits are written to
// configPath.
func NewModel(a *App, configPath string) Model {
	k := keys.DefaultKeyMap()
	m := Model{
		store:        a.Store,
		gateway:      a.Gateway,
		scheduler:    a.Scheduler,
		analyzer:     a.Analyzer,
		aiEnabled:    a.Classifier != nil && a.Classifier.Enabled(),
		config:       a.Config,
		logger:       a.Logger,
		currentView:  ViewList,
		keys:         k,
		inbox:        inbox.New(a.Store, k, 80, 22),
		detail:       detail.New(k, 80, 22),
		helpView:     helpview.New(k, 80, 22),
		commandView:  command.New(80, 22),
		composeView:  compose.New(80, 22),
		settingsView: settingsview.New(a.Config, configPath, pingClassifier, k, 80, 22),
	}
	if a.Account != nil {
		m.account = a.Account.Address
	}
	return m
}

// Init loads the inbox, listens for finished passes and starts the
// periodic sync tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.Init(),
		m.scheduler.WaitForNextPass(),
		m.scheduler.Tick(),
		m.requestSync(false),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.composeView.SetSize(w, h)
		m.settingsView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case appsync.TickMsg:
		analyze := m.analyzePending()
		if analyze != nil {
			m.analyzing = true
		}
		return m, tea.Batch(m.requestSync(false), analyze, m.scheduler.Tick())

	case appsync.PassDoneMsg:
		// Throttling and 5xx clear on their own; the status line says so.
		if msg.Status.LastError != nil && !msg.Status.AuthRequired && !msg.Status.Retriable {
			var flashCmd tea.Cmd
			m, flashCmd = m.setFlash("sync failed: " + msg.Status.LastError.Error())
			return m, tea.Batch(flashCmd, m.scheduler.WaitForNextPass())
		}
		return m, tea.Batch(m.checkFingerprint(), m.scheduler.WaitForNextPass())

	case fingerprintMsg:
		if msg.value == m.fingerprint {
			return m, nil
		}
		m.fingerprint = msg.value
		return m, m.reload()

	case analyzedMsg:
		m.analyzing = false
		if msg.err != nil && !errors.Is(msg.err, ai.ErrNoAPIKey) {
			return m.setFlash("analysis failed: " + msg.err.Error())
		}
		if msg.count > 0 {
			return m, m.reload()
		}
		return m, nil

	case inbox.SelectedMessageMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		return m, tea.Batch(m.detail.SetLoading(true), m.openMessage(msg.ID))

	case messageLoadedMsg:
		if msg.err != nil {
			m.currentView = ViewList
			return m.setFlash(msg.err.Error())
		}
		m.detail.SetMessage(msg.msg)
		if m.aiEnabled && msg.msg.NeedsAnalysis() {
			return m, tea.Batch(
				m.detail.SetBusy("analyzing..."),
				m.runAction(msg.msg.ID, "analyze"),
			)
		}
		return m, m.inbox.Load()

	case inbox.ActionMsg:
		return m.startAction(msg.ID, msg.Action)

	case inbox.ComposeMsg:
		m.previousView = m.currentView
		m.currentView = ViewCompose
		return m, m.composeView.StartNew()

	case detail.ActionMsg:
		return m.startAction(msg.ID, msg.Action)

	case detail.BackMsg:
		m.currentView = ViewList
		return m, m.inbox.Load()

	case actionDoneMsg:
		m.detail.SetBusy("")
		if msg.err == nil && m.currentView == ViewDetail && hidesMessage(msg.action) {
			m.currentView = ViewList
		}
		var flashCmd tea.Cmd
		switch {
		case msg.err != nil:
			m, flashCmd = m.setFlash(msg.err.Error())
		case msg.flash != "":
			m, flashCmd = m.setFlash(msg.flash)
		}
		return m, tea.Batch(flashCmd, m.reload())

	case suggestionMsg:
		m.detail.SetBusy("")
		if msg.err != nil {
			return m.setFlash(msg.err.Error())
		}
		shown := m.detail.Message()
		if shown == nil || shown.ID != msg.id {
			return m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewCompose
		return m, m.composeView.Start(shown, msg.text)

	case compose.SubmitMsg:
		m.currentView = m.previousView
		return m, m.submitReply(msg)

	case compose.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.runCommand(msg)

	case command.ErrorMsg:
		return m.setFlash(msg.Err.Error())

	case command.CloseMsg:
		m.currentView = m.previousView
		return m, nil

	case settingsview.SavedMsg:
		m.currentView = m.previousView
		m.applySettings(msg.Config)
		return m.setFlash("settings saved to " + msg.Path + ", sync changes apply after restart")

	case settingsview.ConfigDoneMsg:
		m.currentView = m.previousView
		return m, nil

	case flashExpiredMsg:
		if msg.seq == m.flashSeq {
			m.flash = ""
		}
		return m, nil

	case tea.KeyMsg:
		if next, cmd, ok := m.handleGlobalKey(msg); ok {
			return next, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work regardless of the active view.
// Text-entry views only see ctrl+c here.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit, true
	}
	switch m.currentView {
	case ViewCompose, ViewCommand, ViewSettings:
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.currentView == ViewList {
			return m, tea.Quit, true
		}
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Refresh):
		if m.currentView == ViewList || m.currentView == ViewDetail {
			return m, m.requestSync(true), true
		}
	}
	return m, nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Mail Triage"
	if m.account != "" {
		title += " · " + m.account
	}
	header := m.layout.RenderHeader(title, m.syncStatus())
	status := m.scheduler.Status()
	statusBar := m.layout.RenderStatusBar(m.keyHints(status.AuthRequired), m.flash, status.AuthRequired)

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.inbox.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewCompose:
		return m.composeView.View()
	case ViewSettings:
		return m.settingsView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the scheduler state.
func (m Model) syncStatus() string {
	st := m.scheduler.Status()
	switch {
	case st.Running:
		return "syncing..."
	case st.AuthRequired:
		return "offline: sign-in required"
	case st.LastError != nil && st.Retriable:
		return "sync delayed, retrying"
	case st.LastError != nil:
		return "⚠ last sync failed"
	case st.LastSuccessful.IsZero():
		return "not synced"
	default:
		return "synced " + st.LastSuccessful.Local().Format("15:04:05")
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints(authRequired bool) string {
	if authRequired && m.currentView == ViewList {
		return "run `mailtriage auth` to connect Gmail · changes stay local"
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc close"
	case ViewCompose:
		return "tab next field | enter submit | esc cancel"
	case ViewSettings:
		return "tab next field | enter save | esc close"
	case ViewDetail:
		return "esc back | R reply | g suggest | u read | s spam | i inbox | t type | e archive | # trash | a analyze"
	default:
		if f := m.inbox.FilterSummary(); f != "" {
			return "filter: " + f + " | 0 clear | ? help"
		}
		return "q quit | ? help | enter open | r sync | c compose | 1-4 filter | 5 drafts | 6 archive | : command"
	}
}

// === Commands ===

func (m Model) requestSync(force bool) tea.Cmd {
	s := m.scheduler
	return func() tea.Msg {
		s.RequestSync(force)
		return nil
	}
}

// checkFingerprint compares the store fingerprint with the last seen one
// so a pass that changed nothing does not reload the views.
func (m Model) checkFingerprint() tea.Cmd {
	s := m.store
	logger := m.logger
	return func() tea.Msg {
		fp, err := s.Fingerprint(context.Background())
		if err != nil {
			logger.Warn("reading store fingerprint", zap.Error(err))
			return fingerprintMsg{value: fmt.Sprintf("error-%d", time.Now().UnixNano())}
		}
		return fingerprintMsg{value: fp}
	}
}

// reload refreshes the inbox and, when a message is open, the detail view.
func (m Model) reload() tea.Cmd {
	cmds := []tea.Cmd{m.inbox.Load()}
	if shown := m.detail.Message(); shown != nil && m.currentView != ViewList {
		cmds = append(cmds, m.loadMessage(shown.ID))
	}
	return tea.Batch(cmds...)
}

func (m Model) loadMessage(id int64) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		msg, err := s.GetMessage(context.Background(), id)
		return messageLoadedMsg{msg: msg, err: err}
	}
}

// openMessage loads id for the detail view and marks it read.
func (m Model) openMessage(id int64) tea.Cmd {
	s, g := m.store, m.gateway
	return func() tea.Msg {
		ctx := context.Background()
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			return messageLoadedMsg{err: err}
		}
		if !msg.IsRead {
			if err := g.SetRead(ctx, id, true); err != nil {
				return messageLoadedMsg{err: err}
			}
			msg, err = s.GetMessage(ctx, id)
		}
		return messageLoadedMsg{msg: msg, err: err}
	}
}

func (m Model) analyzePending() tea.Cmd {
	if !m.aiEnabled || m.analyzing {
		return nil
	}
	a := m.analyzer
	return func() tea.Msg {
		n, err := a.AnalyzePending(context.Background())
		return analyzedMsg{count: n, err: err}
	}
}

// startAction validates an action against the current row and runs it.
func (m Model) startAction(id int64, action string) (tea.Model, tea.Cmd) {
	switch action {
	case "reply":
		msg := m.detail.Message()
		if msg == nil || msg.ID != id {
			sel, ok := m.inbox.Selected()
			if !ok || sel.ID != id {
				return m, nil
			}
			msg = &sel
		}
		m.previousView = m.currentView
		m.currentView = ViewCompose
		return m, m.composeView.Start(msg, "")

	case "suggest", "analyze":
		if !m.aiEnabled {
			return m.setFlash("classifier not configured: set ai.api_key")
		}
		label := "analyzing..."
		if action == "suggest" {
			label = "writing a reply..."
		}
		return m, tea.Batch(m.detail.SetBusy(label), m.runAction(id, action))
	}
	return m, m.runAction(id, action)
}

// runAction performs one mutation in the background.
func (m Model) runAction(id int64, action string) tea.Cmd {
	s, g, a := m.store, m.gateway, m.analyzer
	return func() tea.Msg {
		ctx := context.Background()
		done := actionDoneMsg{id: id, action: action}

		switch action {
		case "toggle-read":
			msg, err := s.GetMessage(ctx, id)
			if err != nil {
				done.err = err
				break
			}
			done.err = g.SetRead(ctx, id, !msg.IsRead)
		case "spam":
			done.err = g.MoveToSpam(ctx, id)
			done.flash = "moved to spam"
		case "inbox":
			done.err = g.MoveToInbox(ctx, id)
			done.flash = "moved to inbox"
		case "cycle-type":
			msg, err := s.GetMessage(ctx, id)
			if err != nil {
				done.err = err
				break
			}
			next, ok := nextType(msg.Type)
			if !ok {
				done.err = fmt.Errorf("%s messages cannot be retyped", msg.Type)
				break
			}
			done.err = g.SetType(ctx, id, next)
			done.flash = "type: " + string(next)
		case "archive":
			done.err = g.Archive(ctx, id)
			done.flash = "archived"
		case "trash":
			done.err = g.Trash(ctx, id)
			done.flash = "moved to trash"
		case "delete-draft":
			done.err = g.DeleteDraft(ctx, id)
			done.flash = "draft deleted"
		case "analyze":
			done.err = a.AnalyzeMessage(ctx, id)
		case "suggest":
			text, err := a.SuggestReply(ctx, id)
			return suggestionMsg{id: id, text: text, err: err}
		default:
			done.err = fmt.Errorf("unknown action %q", action)
		}
		return done
	}
}

// hidesMessage reports whether action takes the message out of the
// current view.
func hidesMessage(action string) bool {
	switch action {
	case "archive", "trash":
		return true
	}
	return false
}

// submitReply sends or saves the form. ID 0 is a new message.
func (m Model) submitReply(sub compose.SubmitMsg) tea.Cmd {
	g := m.gateway
	if sub.ID == 0 {
		return func() tea.Msg {
			ctx := context.Background()
			req := gateway.ComposeRequest{To: sub.To, Cc: sub.Cc, Subject: sub.Subject, Body: sub.Body}
			done := actionDoneMsg{action: "compose"}
			var msg *model.Message
			if sub.Mode == compose.ModeDraft {
				msg, done.err = g.ComposeDraft(ctx, req)
				done.flash = "draft saved"
			} else {
				msg, done.err = g.Compose(ctx, req)
				done.flash = "message sent"
			}
			if msg != nil {
				done.id = msg.ID
			}
			return done
		}
	}
	return func() tea.Msg {
		ctx := context.Background()
		done := actionDoneMsg{id: sub.ID, action: "reply"}
		if sub.Mode == compose.ModeDraft {
			done.err = g.SaveDraft(ctx, sub.ID, sub.Body)
			done.flash = "draft saved"
			return done
		}
		_, done.err = g.SendReply(ctx, sub.ID, gateway.ReplyRequest{
			Body: sub.Body,
			To:   sub.To,
			Cc:   sub.Cc,
		})
		done.flash = "reply sent"
		return done
	}
}

func (m Model) runCommand(c command.CommandMsg) (tea.Model, tea.Cmd) {
	switch c.Name {
	case command.Quit:
		return m, tea.Quit
	case command.Sync:
		return m, m.requestSync(true)
	case command.Analyze:
		if !m.aiEnabled {
			return m.setFlash("classifier not configured: set ai.api_key")
		}
		if m.analyzing {
			return m.setFlash("analysis already running")
		}
		m.analyzing = true
		a := m.analyzer
		return m, func() tea.Msg {
			n, err := a.AnalyzePending(context.Background())
			return analyzedMsg{count: n, err: err}
		}
	case command.SetType:
		id, ok := m.currentID()
		if !ok {
			return m.setFlash("no message selected")
		}
		g := m.gateway
		t := c.Type
		return m, func() tea.Msg {
			return actionDoneMsg{id: id, action: "type", flash: "type: " + string(t),
				err: g.SetType(context.Background(), id, t)}
		}
	case command.Unread:
		return m.updateActiveView(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("U")})
	case command.Inbox:
		m.currentView = ViewList
		return m.updateActiveView(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("0")})
	case command.Drafts:
		m.currentView = ViewList
		return m.updateActiveView(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("5")})
	case command.Archive:
		m.currentView = ViewList
		return m.updateActiveView(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("6")})
	case command.Compose:
		m.previousView = m.currentView
		m.currentView = ViewCompose
		return m, m.composeView.StartNew()
	case command.Settings:
		m.previousView = m.currentView
		m.currentView = ViewSettings
		return m, m.settingsView.Start()
	}
	return m, nil
}

// applySettings swaps in a classifier built from cfg. Scheduler and
// mailbox settings are read once at startup.
func (m *Model) applySettings(cfg *model.AppConfig) {
	m.config = cfg
	c := ai.NewHTTPClassifier(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout())
	m.analyzer = ai.NewAnalyzer(m.store, c, cfg.AI.BatchSize, m.logger)
	m.aiEnabled = c.Enabled()
}

func pingClassifier(ctx context.Context, c model.AIConfig) error {
	return ai.NewHTTPClassifier(c.BaseURL, c.APIKey, c.Model, c.Timeout()).Ping(ctx)
}

// currentID is the open message in the detail view, else the focused row.
func (m Model) currentID() (int64, bool) {
	if m.currentView == ViewDetail {
		if msg := m.detail.Message(); msg != nil {
			return msg.ID, true
		}
	}
	return m.inbox.SelectedID()
}

func (m Model) setFlash(text string) (Model, tea.Cmd) {
	m.flashSeq++
	m.flash = text
	seq := m.flashSeq
	return m, tea.Tick(flashTTL, func(time.Time) tea.Msg {
		return flashExpiredMsg{seq: seq}
	})
}

// nextType cycles through the triage types.
func nextType(t model.MessageType) (model.MessageType, bool) {
	order := []model.MessageType{
		model.TypeResponseNeeded,
		model.TypeReadOnly,
		model.TypeJunkUncertain,
		model.TypeJunk,
	}
	for i, o := range order {
		if o == t {
			return order[(i+1)%len(order)], true
		}
	}
	return "", false
}
