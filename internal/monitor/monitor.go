// Package monitor is a terminal view of a running experiment: it follows the
// run's experiment.log and the sentinels in the shared store, and lets the
// operator abort the run or end the current stimulus early.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/arena/internal/log"
	"github.com/zjrosen/arena/internal/orchestrator"
	"github.com/zjrosen/arena/internal/statestore"
)

const (
	headerHeight = 2
	footerHeight = 2
	storeTimeout = 2 * time.Second
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#54A0FF"})
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#047857", Dark: "#73F59F"})
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#BBBBBB"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#FF8787"})
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#777777"})
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#444444"})
)

// Config wires the monitor to a run.
type Config struct {
	// LogPath is the experiment.log being followed.
	LogPath string
	// Changes signals that LogPath changed; nil disables following.
	Changes <-chan struct{}
	Store   statestore.Store
	// Refresh is how often the sentinels are re-read.
	Refresh time.Duration
}

type (
	logLoadedMsg struct {
		content string
		err     error
	}
	logChangedMsg struct{}
	statusMsg     struct {
		status orchestrator.Status
		err    error
	}
	tickMsg   struct{}
	actionMsg struct {
		action string
		err    error
	}
)

// Model is the monitor state.
type Model struct {
	cfg      Config
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	content string
	status  orchestrator.Status
	notice  string
	err     error
}

// New creates a monitor model.
func New(cfg Config) Model {
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second
	}
	return Model{cfg: cfg}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadLog(), m.readStatus(), m.waitForChange(), m.tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := max(msg.Height-headerHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.setContent(m.content)
		return m, nil

	case logLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.setContent(msg.content)
		return m, nil

	case logChangedMsg:
		return m, tea.Batch(m.loadLog(), m.waitForChange())

	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.status = msg.status
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.readStatus(), m.tick())

	case actionMsg:
		if msg.err != nil {
			m.err = msg.err
			m.notice = ""
			return m, nil
		}
		m.notice = msg.action
		return m, m.readStatus()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "a":
		return m, m.act("abort requested", orchestrator.RequestAbort)
	case "s":
		return m, m.act("stimulus ended", orchestrator.EndStimulus)
	case "g":
		m.viewport.GotoTop()
		return m, nil
	case "G":
		m.viewport.GotoBottom()
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("arena monitor") + "  " + m.renderStatus())
	sb.WriteString("\n")
	sb.WriteString(dividerStyle.Render(strings.Repeat("─", max(m.width, 1))))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m Model) renderStatus() string {
	if !m.status.Running() {
		return idleStyle.Render(m.status.String())
	}
	return statusStyle.Render(m.status.String())
}

func (m Model) renderFooter() string {
	line := ""
	switch {
	case m.err != nil:
		line = errorStyle.Render(m.err.Error())
	case m.notice != "":
		line = statusStyle.Render(m.notice)
	}
	return line + "\n" + hintStyle.Render("a abort • s end stimulus • j/k scroll • q quit")
}

// setContent replaces the log text, staying pinned to the bottom when the
// view was already there.
func (m *Model) setContent(content string) {
	m.content = content
	if !m.ready {
		return
	}
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(content)
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) loadLog() tea.Cmd {
	path := m.cfg.LogPath
	return func() tea.Msg {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied experiment directory
		if errors.Is(err, os.ErrNotExist) {
			return logLoadedMsg{content: ""}
		}
		if err != nil {
			return logLoadedMsg{err: fmt.Errorf("reading experiment log: %w", err)}
		}
		return logLoadedMsg{content: string(data)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	changes := m.cfg.Changes
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return logChangedMsg{}
	}
}

func (m Model) readStatus() tea.Cmd {
	store := m.cfg.Store
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		s, err := orchestrator.ReadStatus(ctx, store)
		return statusMsg{status: s, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) act(action string, fn func(context.Context, statestore.Store) error) tea.Cmd {
	store := m.cfg.Store
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := fn(ctx, store)
		if err != nil {
			log.ErrorErr(log.CatMonitor, "monitor action failed", err, "action", action)
		} else {
			log.Info(log.CatMonitor, action)
		}
		return actionMsg{action: action, err: err}
	}
}
