package config

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/theme"
)

// ConfigMode represents the current state of the settings view.
type ConfigMode int

const (
	ModeForm           ConfigMode = iota // Editing settings
	ModeValidating                       // Testing the classifier
	ModeValidateResult                   // Show test or save failure
)

// PingFunc checks classifier settings before they are saved.
type PingFunc func(ctx context.Context, c model.AIConfig) error

// ConfigDoneMsg signals the settings view should close without changes.
type ConfigDoneMsg struct{}

// SavedMsg signals the settings were written to disk.
type SavedMsg struct {
	Config *model.AppConfig
	Path   string
}

// validateResultMsg carries the result of a classifier ping.
type validateResultMsg struct {
	err error
}

// savedInternalMsg is sent after the file is written.
type savedInternalMsg struct {
	cfg *model.AppConfig
	err error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	interval    string
	maxResults  string
	selfAddress string
	baseURL     string
	modelName   string
	apiKey      string
	logLevel    string
}

// Model is the Bubble Tea model for the settings editor.
type Model struct {
	mode    ConfigMode
	path    string
	current *model.AppConfig
	pending *model.AppConfig
	ping    PingFunc

	form *huh.Form
	fb   *formBindings

	validError error
	spinner    spinner.Model

	keys          *keys.KeyMap
	width, height int
}

// New creates a settings view editing cfg, which is saved to path.
// ping may be nil to skip the classifier check.
func New(cfg *model.AppConfig, path string, ping PingFunc, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		mode:    ModeForm,
		path:    path,
		current: cfg,
		ping:    ping,
		fb:      &formBindings{},
		keys:    k,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Start opens the form prefilled from the current configuration.
func (m *Model) Start() tea.Cmd {
	c := m.current
	m.fb.interval = strconv.Itoa(c.Sync.IntervalSec)
	m.fb.maxResults = strconv.Itoa(c.Sync.MaxResults)
	m.fb.selfAddress = c.Gmail.SelfAddress
	m.fb.baseURL = c.AI.BaseURL
	m.fb.modelName = c.AI.Model
	m.fb.apiKey = c.AI.APIKey
	m.fb.logLevel = c.Log.Level
	if m.fb.logLevel == "" {
		m.fb.logLevel = "info"
	}
	return m.openForm()
}

func (m *Model) openForm() tea.Cmd {
	m.mode = ModeForm
	m.validError = nil
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case validateResultMsg:
		if m.mode != ModeValidating {
			return m, nil
		}
		if msg.err != nil {
			m.validError = msg.err
			m.mode = ModeValidateResult
			return m, nil
		}
		return m, m.save(m.pending)

	case savedInternalMsg:
		if msg.err != nil {
			m.validError = msg.err
			m.mode = ModeValidateResult
			return m, nil
		}
		m.current = msg.cfg
		m.pending = nil
		saved := SavedMsg{Config: msg.cfg, Path: m.path}
		return m, func() tea.Msg { return saved }

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeValidating:
			// Only allow escape during validation
			if msg.String() == "esc" {
				return m, m.openForm()
			}
			return m, nil
		case ModeValidateResult:
			return m.handleValidateResultKeys(msg)
		case ModeForm:
			if key.Matches(msg, m.keys.Back) {
				m.form = nil
				return m, func() tea.Msg { return ConfigDoneMsg{} }
			}
		}
	}

	return m.updateForm(msg)
}

// handleValidateResultKeys processes key events on the result screen.
func (m Model) handleValidateResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		return m, m.openForm()
	case "r":
		if m.pending != nil {
			return m.startValidation()
		}
	case "s":
		if m.pending != nil {
			return m, m.save(m.pending)
		}
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.mode != ModeForm {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.form = nil
		m.pending = m.applied()
		if m.ping != nil && m.pending.AI.APIKey != "" {
			return m.startValidation()
		}
		return m, m.save(m.pending)
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return ConfigDoneMsg{} }
	}

	return m, cmd
}

func (m Model) startValidation() (Model, tea.Cmd) {
	m.mode = ModeValidating
	m.validError = nil
	return m, tea.Batch(m.spinner.Tick, m.validate(m.pending.AI))
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sync interval (seconds)").
				Description("Minimum spacing between background passes").
				Value(&m.fb.interval).
				Validate(validatePositiveInt("Sync interval")),
			huh.NewInput().
				Title("Messages per pass").
				Description("How many recent messages each pass fetches").
				Value(&m.fb.maxResults).
				Validate(validatePositiveInt("Messages per pass")),
			huh.NewInput().
				Title("Account address").
				Description("Leave empty to use the mailbox profile").
				Placeholder("you@example.com").
				Value(&m.fb.selfAddress).
				Validate(validateOptionalAddress),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Classifier URL").
				Description("OpenAI-compatible chat completions base URL").
				Value(&m.fb.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model").
				Value(&m.fb.modelName).
				Validate(validateRequired("Model")),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to disable summaries").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.apiKey),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&m.fb.logLevel),
		),
	).WithWidth(m.formWidth())
}

// applied returns a copy of the current configuration with the form
// values written over it. Inputs are already validated.
func (m Model) applied() *model.AppConfig {
	cfg := *m.current
	cfg.Sync.IntervalSec, _ = strconv.Atoi(strings.TrimSpace(m.fb.interval))
	cfg.Sync.MaxResults, _ = strconv.Atoi(strings.TrimSpace(m.fb.maxResults))
	cfg.Gmail.SelfAddress = strings.TrimSpace(m.fb.selfAddress)
	cfg.AI.BaseURL = strings.TrimSpace(m.fb.baseURL)
	cfg.AI.Model = strings.TrimSpace(m.fb.modelName)
	cfg.AI.APIKey = strings.TrimSpace(m.fb.apiKey)
	cfg.Log.Level = m.fb.logLevel
	return &cfg
}

// --- View ---

// View renders the settings UI based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeForm:
		return m.viewForm()
	case ModeValidating:
		return m.viewValidating()
	case ModeValidateResult:
		return m.viewValidateResult()
	default:
		return ""
	}
}

func (m Model) viewForm() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	pathStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)

	content := titleStyle.Render("Settings") + "\n" +
		pathStyle.Render(m.path) + "\n\n" +
		m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m Model) viewValidating() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	content := fmt.Sprintf(
		"%s Testing classifier connection...\n\nPress esc to cancel.",
		m.spinner.View(),
	)

	return style.Render(content)
}

func (m Model) viewValidateResult() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	errStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorRed)

	msg := ""
	if m.validError != nil {
		msg = m.validError.Error()
	}
	content := errStyle.Render("Settings not saved") + "\n\n" +
		msg + "\n\n" +
		lipgloss.NewStyle().Foreground(theme.ColorGray).
			Render("r retry | s save anyway | enter/esc edit")

	return style.Render(content)
}

// --- Helpers ---

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Mode returns the current view mode.
func (m Model) Mode() ConfigMode {
	return m.mode
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

// save returns a command that writes cfg to the config file.
func (m Model) save(cfg *model.AppConfig) tea.Cmd {
	path := m.path
	return func() tea.Msg {
		if err := model.SaveConfig(path, cfg); err != nil {
			return savedInternalMsg{err: err}
		}
		return savedInternalMsg{cfg: cfg}
	}
}

// validate runs the ping against the pending classifier settings.
func (m Model) validate(c model.AIConfig) tea.Cmd {
	ping := m.ping
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout()+time.Second)
		defer cancel()
		return validateResultMsg{err: ping(ctx, c)}
	}
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validatePositiveInt(fieldName string) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s must be a number", fieldName)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be greater than zero", fieldName)
		}
		return nil
	}
}

func validateOptionalAddress(s string) error {
	s = strings.TrimSpace(s)
	if s != "" && !strings.Contains(s, "@") {
		return fmt.Errorf("%q is not an email address", s)
	}
	return nil
}
