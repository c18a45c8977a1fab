package sync

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// PassDoneMsg is a tea.Msg sent when a sync pass completes.
type PassDoneMsg struct {
	Status Status
}

// TickMsg asks the UI to request a throttled pass.
type TickMsg struct{}

// WaitForNextPass returns a tea.Cmd that blocks until the next pass
// finishes. The receiver re-issues it after handling each PassDoneMsg.
func (s *Scheduler) WaitForNextPass() tea.Cmd {
	return func() tea.Msg {
		return PassDoneMsg{Status: <-s.done}
	}
}

// Tick returns a tea.Cmd that fires a TickMsg after one interval.
func (s *Scheduler) Tick() tea.Cmd {
	return tea.Tick(s.interval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}
