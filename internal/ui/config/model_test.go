package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/keys"
	"github.com/nhle/mail-triage/internal/model"
)

func TestValidators(t *testing.T) {
	positive := validatePositiveInt("Interval")
	assert.NoError(t, positive(" 30 "))
	assert.EqualError(t, positive("abc"), "Interval must be a number")
	assert.EqualError(t, positive("0"), "Interval must be greater than zero")

	assert.NoError(t, validateURL("https://router.example.com/v1"))
	assert.EqualError(t, validateURL(""), "URL is required")
	assert.Error(t, validateURL("router.example.com"))

	assert.NoError(t, validateOptionalAddress(""))
	assert.NoError(t, validateOptionalAddress("me@example.com"))
	assert.Error(t, validateOptionalAddress("me"))

	assert.EqualError(t, validateRequired("Model")(" "), "Model is required")
}

func TestStartAndApply(t *testing.T) {
	cfg := model.DefaultAppConfig()
	m := New(cfg, "unused.yaml", nil, keys.DefaultKeyMap(), 100, 30)
	require.NotNil(t, m.Start())
	assert.Equal(t, "20", m.fb.interval)
	assert.Equal(t, "25", m.fb.maxResults)
	assert.Equal(t, "info", m.fb.logLevel)
	assert.Equal(t, ModeForm, m.Mode())

	m.fb.interval = "45"
	m.fb.apiKey = "  secret "
	m.fb.selfAddress = "me@example.com"

	got := m.applied()
	assert.Equal(t, 45, got.Sync.IntervalSec)
	assert.Equal(t, "secret", got.AI.APIKey)
	assert.Equal(t, "me@example.com", got.Gmail.SelfAddress)
	assert.Equal(t, cfg.Database.Path, got.Database.Path)
	assert.Equal(t, 20, cfg.Sync.IntervalSec, "current config is not mutated")
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := model.DefaultAppConfig()
	m := New(cfg, path, nil, keys.DefaultKeyMap(), 100, 30)
	m.Start()
	m.fb.interval = "90"
	m.pending = m.applied()

	msg := m.save(m.pending)()
	m, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	saved, ok := cmd().(SavedMsg)
	require.True(t, ok)
	assert.Equal(t, path, saved.Path)
	assert.Equal(t, 90, saved.Config.Sync.IntervalSec)
	assert.Nil(t, m.pending)

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 90, loaded.Sync.IntervalSec)
}

func TestPingFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	pingErr := errors.New("classifier error (401): bad key")
	var pinged model.AIConfig
	ping := func(_ context.Context, c model.AIConfig) error {
		pinged = c
		return pingErr
	}

	m := New(model.DefaultAppConfig(), path, ping, keys.DefaultKeyMap(), 100, 30)
	m.Start()
	m.fb.apiKey = "bad"
	m.pending = m.applied()

	m, _ = m.startValidation()
	assert.Equal(t, ModeValidating, m.Mode())
	assert.Contains(t, m.View(), "Testing classifier connection")

	m, cmd := m.Update(m.validate(m.pending.AI)())
	assert.Nil(t, cmd)
	assert.Equal(t, "bad", pinged.APIKey)
	assert.Equal(t, ModeValidateResult, m.Mode())
	assert.Contains(t, m.View(), "bad key")

	// Save anyway.
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	require.NotNil(t, cmd)
	internal, ok := cmd().(savedInternalMsg)
	require.True(t, ok)
	require.NoError(t, internal.err)

	// enter goes back to the form.
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ModeForm, m.Mode())
}

func TestEscClosesForm(t *testing.T) {
	m := New(model.DefaultAppConfig(), "unused.yaml", nil, keys.DefaultKeyMap(), 100, 30)
	m.Start()

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, ConfigDoneMsg{}, cmd())

	_, cmd = m.Update(validateResultMsg{err: errors.New("late")})
	assert.Nil(t, cmd, "stale ping results are ignored")
}
