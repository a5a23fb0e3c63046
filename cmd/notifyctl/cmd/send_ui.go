package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/intake"
)

type stepStatus int

const (
	stepPending stepStatus = iota
	stepActive
	stepDone
	stepFailed
)

type step struct {
	label  string
	status stepStatus
}

type SendModel struct {
	steps    []step
	current  int
	err      error
	created  []*domain.Notification
	spinner  spinner.Model
	done     bool
	quitting bool

	req     intake.Request
	backend backend
}

func NewSendModel(req intake.Request) *SendModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &SendModel{
		steps: []step{
			{label: "Connecting to store and queue"},
			{label: fmt.Sprintf("Enqueueing %q on %d channel(s)", req.TemplateName, len(req.Channels))},
		},
		spinner: s,
		req:     req,
	}
}

type connectedMsg struct {
	backend backend
	err     error
}

type enqueuedMsg struct {
	created []*domain.Notification
	err     error
}

func (m *SendModel) Init() tea.Cmd {
	m.steps[0].status = stepActive
	return tea.Batch(m.spinner.Tick, m.connect())
}

func (m *SendModel) connect() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := NewCommandContext(context.Background())
		defer cancel()
		b, err := openBackend(ctx)
		return connectedMsg{backend: b, err: err}
	}
}

func (m *SendModel) enqueue() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := NewCommandContext(context.Background())
		defer cancel()
		defer m.backend.Close()
		created, err := m.backend.Enqueue(ctx, m.req)
		return enqueuedMsg{created: created, err: err}
	}
}

func (m *SendModel) fail(err error) {
	m.steps[m.current].status = stepFailed
	m.err = err
	m.done = true
}

func (m *SendModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || (m.done && msg.String() == "q") {
			m.quitting = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case connectedMsg:
		if msg.err != nil {
			m.fail(msg.err)
			return m, nil
		}
		m.backend = msg.backend
		m.steps[m.current].status = stepDone
		m.current++
		m.steps[m.current].status = stepActive
		return m, m.enqueue()
	case enqueuedMsg:
		m.created = msg.created
		if msg.err != nil {
			m.fail(msg.err)
			return m, nil
		}
		m.steps[m.current].status = stepDone
		m.done = true
		return m, nil
	}
	return m, nil
}

func (m *SendModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("notifyctl send") + "\n\n")

	for _, step := range m.steps {
		symbol := " "
		label := step.label

		switch step.status {
		case stepPending:
			symbol = "  "
		case stepActive:
			symbol = m.spinner.View()
			label = lipgloss.NewStyle().Bold(true).Render(label)
		case stepDone:
			symbol = successStyle.Render("✓ ")
		case stepFailed:
			symbol = errorStyle.Render("✗ ")
		}

		s.WriteString(fmt.Sprintf("  %s %s\n", symbol, label))
		if step.status == stepFailed && m.err != nil {
			s.WriteString(fmt.Sprintf("    %s\n", errorStyle.Render(m.err.Error())))
		}
	}

	if len(m.created) > 0 {
		s.WriteString("\n")
		for _, n := range m.created {
			s.WriteString(fmt.Sprintf("  %s %-6s %s\n", successStyle.Render("QUEUED"), n.Channel, idStyle.Render(n.ID)))
		}
	}
	if m.done {
		s.WriteString("\n  (Press q to exit)")
	}

	return s.String()
}
