// Package tui is the terminal dashboard. It drives the same controller as
// the web server and renders the same view model.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/thruflo/goalboard/internal/logging"
	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/stream"
	"github.com/thruflo/goalboard/internal/view"
)

const (
	defaultWidth  = 100
	defaultHeight = 40
	barWidth      = 12
	minLogLines   = 5
	maxGoalLength = 200
)

// Controller is the subset of loop.Controller the dashboard drives.
type Controller interface {
	Start(ctx context.Context, goal string) (string, error)
	Stop() bool
	Snapshot() loop.Snapshot
}

// Config configures the dashboard model.
type Config struct {
	Controller Controller
	Hub        *stream.Hub // Optional: without it the model only sees its own updates
	Notifier   *Notifier   // Optional: announces finished runs
	Goal       string      // Prefilled goal
	Theme      *Theme
}

// snapshotMsg carries a snapshot decoded from the hub.
type snapshotMsg struct {
	snap loop.Snapshot
}

// subscriptionClosedMsg is sent when the hub subscription ends.
type subscriptionClosedMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	ctx   context.Context
	ctrl  Controller
	theme Theme
	log   *logging.Logger

	events   <-chan *stream.Event
	notifier *Notifier

	input   textinput.Model
	spinner spinner.Model

	width  int
	height int

	snap      loop.Snapshot
	board     view.Dashboard
	message   string
	announced string // run ID of the last result announced
}

// New creates the model. The hub subscription and any run started from the
// dashboard live until ctx is cancelled.
func New(ctx context.Context, cfg Config) *Model {
	theme := DefaultTheme()
	if cfg.Theme != nil {
		theme = *cfg.Theme
	}

	input := textinput.New()
	input.Prompt = "goal> "
	input.Placeholder = "Describe a goal and press enter"
	input.CharLimit = maxGoalLength
	input.SetValue(cfg.Goal)
	input.Focus()

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	m := &Model{
		ctx:      ctx,
		ctrl:     cfg.Controller,
		theme:    theme,
		log:      logging.With("component", "tui"),
		notifier: cfg.Notifier,
		input:    input,
		spinner:  spin,
		width:    defaultWidth,
		height:   defaultHeight,
	}

	// Read the sequence before the snapshot so nothing published in
	// between is missed. Replayed events are full snapshots.
	var from uint64
	if cfg.Hub != nil {
		from = cfg.Hub.LastSeq() + 1
	}
	initial := cfg.Controller.Snapshot()
	if initial.Result != nil {
		m.announced = initial.Result.RunID
	}
	m.apply(initial)
	if cfg.Hub != nil {
		m.events = cfg.Hub.Subscribe(ctx, from)
	}
	return m
}

// Run opens the dashboard on the terminal and blocks until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, cfg Config, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Notifier == nil {
		cfg.Notifier = NewNotifier(os.Stderr)
	}

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(New(ctx, cfg), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init starts the cursor blink, the spinner and the hub reader.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForEvent())
}

// Update applies key presses and snapshots.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-len(m.input.Prompt)-4)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case snapshotMsg:
		m.apply(msg.snap)
		return m, m.waitForEvent()

	case subscriptionClosedMsg:
		m.events = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit
	case "q":
		// The focused input owns every printable key.
		if !m.input.Focused() {
			return tea.Quit
		}
	case "ctrl+s":
		m.stop()
		return nil
	case "enter":
		return m.submit()
	}

	if !m.input.Focused() {
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) submit() tea.Cmd {
	if !m.board.CanSubmit {
		return nil
	}

	_, err := m.ctrl.Start(m.ctx, m.input.Value())
	switch {
	case errors.Is(err, loop.ErrBlankGoal):
		m.message = "Enter a goal to start a run."
		return nil
	case errors.Is(err, loop.ErrAlreadyRunning):
		m.message = "A run is already active."
		return nil
	case err != nil:
		m.message = err.Error()
		return nil
	}

	m.message = ""
	m.apply(m.ctrl.Snapshot())
	return nil
}

func (m *Model) stop() {
	if !m.board.CanStop {
		return
	}
	if m.ctrl.Stop() {
		m.apply(m.ctrl.Snapshot())
	}
}

// apply installs snap, keeps the goal input enabled only while idle and
// announces each finished run once.
func (m *Model) apply(snap loop.Snapshot) {
	m.snap = snap
	m.board = view.Build(snap)

	if m.board.GoalDisabled {
		if m.board.Goal != "" {
			m.input.SetValue(m.board.Goal)
		}
		m.input.Blur()
	} else if !m.input.Focused() {
		m.input.Focus()
	}

	res := snap.Result
	if snap.Running() || res == nil || res.RunID == m.announced {
		return
	}
	m.announced = res.RunID
	if m.notifier != nil {
		if err := m.notifier.NotifyResult(*res, m.board.Goal, true); err != nil {
			m.log.Warn("notify failed", "run_id", res.RunID, "error", err)
		}
	}
}

// waitForEvent reads the next snapshot from the hub subscription.
func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		for event := range events {
			var snap loop.Snapshot
			if err := event.Decode(&snap); err != nil {
				continue
			}
			return snapshotMsg{snap: snap}
		}
		return subscriptionClosedMsg{}
	}
}

// View renders the dashboard.
func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	inner := width - 4

	sections := []string{
		m.renderStatusBar(width),
		m.renderControls(),
	}
	if m.message != "" {
		sections = append(sections, m.theme.Error.Render(m.message))
	}
	if o := m.board.Outcome; o != nil {
		sections = append(sections, m.renderOutcome(o, inner))
	}
	if m.board.Metrics != nil {
		sections = append(sections, m.renderMetrics(inner))
	}
	if m.board.ShowAssumptions {
		sections = append(sections, m.panel("Assumptions", m.assumptionLines(inner), inner))
	}
	sections = append(sections, m.panel("Tasks", m.taskLines(inner), inner))

	used := lipgloss.Height(strings.Join(sections, "\n"))
	sections = append(sections, m.panel("Activity", m.logLines(inner, m.height-used-3), inner))
	return strings.Join(sections, "\n")
}

func (m *Model) renderStatusBar(width int) string {
	status := m.board.StatusMessage
	if m.board.Running {
		status = m.spinner.View() + " " + status
	}
	left := m.theme.Title.Render("goalboard")
	right := status
	if m.board.RunID != "" {
		right += "  run " + ShortID(m.board.RunID)
	}
	gap := max(1, width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	return m.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}

func (m *Model) renderControls() string {
	hint := func(enabled bool, key, action string) string {
		h := keyHint(key, action)
		if !enabled {
			return m.theme.Muted.Strikethrough(true).Render(h)
		}
		return h
	}
	hints := strings.Join([]string{
		hint(m.board.CanSubmit, "enter", "start"),
		hint(m.board.CanStop, "ctrl+s", "stop"),
		hint(true, quitKey(m.input.Focused()), "quit"),
	}, "  ")
	return m.input.View() + "\n" + m.theme.Muted.Render(hints)
}

func quitKey(typing bool) string {
	if typing {
		return "esc"
	}
	return "q"
}

func (m *Model) renderOutcome(o *view.Outcome, width int) string {
	body := o.Title
	if o.Summary != "" {
		body += "\n" + strings.Join(WrapText(o.Summary, width-4), "\n")
	}
	return m.theme.Class(o.Class).Width(width).Render(body)
}

func (m *Model) renderMetrics(width int) string {
	mt := m.board.Metrics
	cells := []string{
		"Iteration " + mt.Iteration,
		fmt.Sprintf("Completion %s %s", m.theme.Bar.Render(ProgressBar(mt.CompletionPct, barWidth)), mt.Completion),
		"Momentum " + mt.Momentum,
		fmt.Sprintf("Blocked %d", mt.Blocked),
	}
	lines := []string{strings.Join(cells, m.theme.Muted.Render(" │ "))}
	if mt.Focus != "" {
		lines = append(lines, "Focus: "+Truncate(mt.Focus, width-7))
	}
	return m.panel("Metrics", lines, width)
}

func (m *Model) assumptionLines(width int) []string {
	lines := make([]string, 0, len(m.board.Assumptions))
	for _, a := range m.board.Assumptions {
		label := m.theme.Class(a.Class).Render(a.Label)
		lines = append(lines, Truncate(a.Statement, width-lipgloss.Width(a.Label)-3)+"  "+label)
	}
	return lines
}

func (m *Model) taskLines(width int) []string {
	if len(m.board.Tasks) == 0 {
		return []string{m.theme.Muted.Render(m.board.TasksPlaceholder)}
	}
	lines := make([]string, 0, len(m.board.Tasks))
	for _, t := range m.board.Tasks {
		status := m.theme.Class(t.StatusClass).Render(fmt.Sprintf("%-11s", t.StatusLabel))
		phase := m.theme.Muted.Render(fmt.Sprintf("%-6s", t.Phase))
		lines = append(lines, fmt.Sprintf("%s %s %s", status, phase, Truncate(t.Title, width-24)))
		if n := len(t.Insights); n > 0 {
			lines = append(lines, m.theme.Muted.Render("    "+Truncate(t.Insights[n-1], width-4)))
		}
	}
	return lines
}

// logLines returns the newest entries that fit in limit lines, oldest
// first.
func (m *Model) logLines(width, limit int) []string {
	if len(m.board.Logs) == 0 {
		return []string{m.theme.Muted.Render(m.board.LogsPlaceholder)}
	}
	limit = max(minLogLines, limit)
	logs := m.board.Logs
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	lines := make([]string, 0, len(logs))
	for _, l := range logs {
		topic := m.theme.Class(l.TopicClass).Render(fmt.Sprintf("%-10s", l.TopicLabel))
		lines = append(lines, fmt.Sprintf("%s %s %s", m.theme.Muted.Render(l.Clock), topic, Truncate(l.Message, width-25)))
	}
	return lines
}

func (m *Model) panel(title string, lines []string, width int) string {
	body := m.theme.Heading.Render(title) + "\n" + strings.Join(lines, "\n")
	return m.theme.Panel.Width(width).Render(body)
}

// DiscardLogs silences the default logger while the dashboard owns the
// terminal. It returns a function that restores stderr output.
func DiscardLogs() func() {
	logging.SetOutput(io.Discard)
	return func() { logging.SetOutput(os.Stderr) }
}
