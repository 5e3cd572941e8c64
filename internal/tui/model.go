// Package tui is a terminal reviewer for a running dave-bot gateway.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davepeng-0503/dave-bot/internal/gateway"
	"github.com/davepeng-0503/dave-bot/internal/types"
)

const (
	defaultInterval = 2 * time.Second
	requestTimeout  = 10 * time.Second
)

// Client is the gateway surface the reviewer uses
type Client interface {
	Status(ctx context.Context) (types.Snapshot, error)
	Approve(ctx context.Context, contextFiles []string) (types.Status, error)
	Reject(ctx context.Context) (types.Status, error)
	Feedback(ctx context.Context, text string) (types.Status, error)
	UserInput(ctx context.Context, text string) (types.Status, error)
}

// inputMode is what the text box is collecting
type inputMode int

const (
	inputNone inputMode = iota
	inputFeedback
	inputAnswer
	inputContextFiles
)

// Messages
type (
	snapshotMsg struct {
		snap types.Snapshot
		err  error
	}
	actionMsg struct {
		action string
		status types.Status
		err    error
	}
	pollMsg struct{}
)

// Model is the reviewer state
type Model struct {
	client   Client
	interval time.Duration

	snap    types.Snapshot
	hasSnap bool
	pollErr error
	notice  string
	busy    bool

	mode    inputMode
	input   textarea.Model
	body    viewport.Model
	spinner spinner.Model

	width  int
	height int
	ready  bool
}

// New creates a reviewer polling client every interval
func New(client Client, interval time.Duration) Model {
	if interval <= 0 {
		interval = defaultInterval
	}

	ti := textarea.New()
	ti.CharLimit = 4000
	ti.SetHeight(3)
	ti.ShowLineNumbers = false

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Model{
		client:   client,
		interval: interval,
		input:    ti,
		spinner:  s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m Model) poll() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := client.Status(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

// act runs one reviewer action against the gateway
func (m Model) act(name string, fn func(ctx context.Context, c Client) (types.Status, error)) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		status, err := fn(ctx, client)
		return actionMsg{action: name, status: status, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.hasSnap && (m.snap.Status == types.StatusPlanning || m.snap.Status == types.StatusGenerating) {
			m.refreshBody(false)
		}

	case pollMsg:
		cmds = append(cmds, m.poll())

	case snapshotMsg:
		if msg.err != nil {
			m.pollErr = msg.err
		} else {
			m.pollErr = nil
			changed := !m.hasSnap || msg.snap.Version != m.snap.Version || msg.snap.Status != m.snap.Status
			statusChanged := !m.hasSnap || msg.snap.Status != m.snap.Status
			m.snap = msg.snap
			m.hasSnap = true
			if statusChanged && m.mode != inputNone && !m.modeAllowed(m.mode) {
				m.closeInput()
			}
			if changed {
				m.refreshBody(statusChanged)
			}
		}
		if !m.hasSnap || !m.snap.Status.Terminal() {
			cmds = append(cmds, m.schedulePoll())
		}

	case actionMsg:
		m.busy = false
		var apiErr *gateway.APIError
		switch {
		case msg.err == nil:
			m.notice = fmt.Sprintf("%s accepted, now %s", msg.action, msg.status)
		case errors.As(msg.err, &apiErr):
			m.notice = fmt.Sprintf("%s refused: %s", msg.action, apiErr.Message)
		default:
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		}
		cmds = append(cmds, m.poll())
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.mode != inputNone {
		return m.handleInputKey(msg)
	}

	status := m.snap.Status
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "a":
		if m.busy || status != types.StatusPlanReview {
			return m, nil
		}
		m.busy = true
		m.notice = "approving..."
		return m, m.act("approve", func(ctx context.Context, c Client) (types.Status, error) {
			return c.Approve(ctx, nil)
		})
	case "x":
		if m.busy || status != types.StatusPlanReview {
			return m, nil
		}
		m.busy = true
		m.notice = "rejecting..."
		return m, m.act("reject", func(ctx context.Context, c Client) (types.Status, error) {
			return c.Reject(ctx)
		})
	case "f":
		cmd := m.openInput(inputFeedback)
		return m, cmd
	case "c":
		cmd := m.openInput(inputContextFiles)
		return m, cmd
	case "i":
		cmd := m.openInput(inputAnswer)
		return m, cmd
	default:
		var cmd tea.Cmd
		m.body, cmd = m.body.Update(msg)
		return m, cmd
	}
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return m, nil
	case tea.KeyCtrlJ:
		m.input.InsertString("\n")
		return m, nil
	case tea.KeyEnter:
		return m.submit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) modeAllowed(mode inputMode) bool {
	switch mode {
	case inputFeedback, inputContextFiles:
		return m.snap.Status == types.StatusPlanReview
	case inputAnswer:
		return m.snap.Status == types.StatusUserInputRequired
	}
	return false
}

func (m *Model) openInput(mode inputMode) tea.Cmd {
	if m.busy || !m.modeAllowed(mode) {
		return nil
	}
	m.mode = mode
	switch mode {
	case inputFeedback:
		m.input.Placeholder = "What should the planner change?"
	case inputAnswer:
		m.input.Placeholder = "Your answer"
	case inputContextFiles:
		m.input.Placeholder = "Extra context files, separated by spaces or commas"
	}
	m.input.Reset()
	m.updateLayout()
	return m.input.Focus()
}

func (m *Model) closeInput() {
	m.mode = inputNone
	m.input.Reset()
	m.input.Blur()
	m.updateLayout()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		m.notice = "nothing to send"
		return m, nil
	}
	mode := m.mode
	m.closeInput()
	m.busy = true

	switch mode {
	case inputFeedback:
		m.notice = "sending feedback..."
		return m, m.act("feedback", func(ctx context.Context, c Client) (types.Status, error) {
			return c.Feedback(ctx, text)
		})
	case inputAnswer:
		m.notice = "sending answer..."
		return m, m.act("answer", func(ctx context.Context, c Client) (types.Status, error) {
			return c.UserInput(ctx, text)
		})
	case inputContextFiles:
		files := splitFiles(text)
		m.notice = "approving..."
		return m, m.act("approve", func(ctx context.Context, c Client) (types.Status, error) {
			return c.Approve(ctx, files)
		})
	}
	m.busy = false
	return m, nil
}

func splitFiles(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

func (m *Model) updateLayout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	inputHeight := 0
	if m.mode != inputNone {
		inputHeight = 5
	}
	bodyHeight := m.height - inputHeight - 4
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	if !m.ready {
		m.body = viewport.New(m.width, bodyHeight)
		m.ready = true
	} else {
		m.body.Width = m.width
		m.body.Height = bodyHeight
	}
	m.input.SetWidth(m.width - 4)
	m.refreshBody(false)
}

func (m *Model) refreshBody(top bool) {
	if !m.ready || !m.hasSnap {
		return
	}
	m.body.SetContent(RenderSnapshot(m.snap, m.body.Width-2, m.spinner.View()))
	if top {
		m.body.GotoTop()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	status := "connecting"
	if m.hasSnap {
		status = string(m.snap.Status)
	}
	badge, ok := statusStyles[status]
	if !ok {
		badge = LabelStyle
	}
	header := lipgloss.JoinHorizontal(lipgloss.Left, Logo(), "  ", badge.Render(status))
	b.WriteString(HeaderStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	if m.hasSnap {
		b.WriteString(m.body.View())
	} else {
		b.WriteString(m.spinner.View() + " waiting for the gateway...")
	}
	b.WriteString("\n")

	if m.mode != inputNone {
		b.WriteString(InputStyle.Render(m.input.View()))
		b.WriteString("\n")
	}

	switch {
	case m.pollErr != nil:
		b.WriteString(ErrorStyle.Render("gateway unreachable: " + m.pollErr.Error()))
	case m.notice != "":
		b.WriteString(NoticeStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help()))
	return b.String()
}

func (m Model) help() string {
	if m.mode != inputNone {
		return "enter: send • ctrl+j: newline • esc: cancel"
	}
	switch m.snap.Status {
	case types.StatusPlanReview:
		return "a: approve • c: approve with context files • f: feedback • x: reject • ↑↓: scroll • q: quit"
	case types.StatusUserInputRequired:
		return "i: answer • ↑↓: scroll • q: quit"
	case types.StatusDone, types.StatusError:
		return "run finished • q: quit"
	default:
		return "↑↓: scroll • q: quit"
	}
}
