package cmd

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
)

type outcomeMsg events.Outcome

type WatchModel struct {
	channel domain.Channel
	events  []events.Outcome
	width   int
	height  int
	quit    bool
}

func NewWatchModel(channel domain.Channel) *WatchModel {
	return &WatchModel{
		channel: channel,
		events:  make([]events.Outcome, 0),
	}
}

func (m *WatchModel) Init() tea.Cmd {
	return nil
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case outcomeMsg:
		m.events = append(m.events, events.Outcome(msg))
		// Keep only the last N events that fit in the view
		maxEvents := m.height - 5
		if maxEvents > 0 && len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
	}
	return m, nil
}

func (m *WatchModel) View() string {
	if m.quit {
		return ""
	}

	var s strings.Builder

	scope := "all channels"
	if m.channel != "" {
		scope = string(m.channel)
	}
	s.WriteString(titleStyle.Render("notifyctl watch"))
	s.WriteString(fmt.Sprintf(" - %s\n\n", scope))

	s.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %-6s %-8s %-3s %-30s", "NOTIFICATION", "CHAN", "STATUS", "ATT", "REASON")))
	s.WriteString("\n")

	for _, e := range m.events {
		statusStr := string(e.Status)
		var statusStyled string
		switch e.Status {
		case domain.StatusSuccess:
			statusStyled = deliveredStyle.Render(fmt.Sprintf("%-8s", statusStr))
		case domain.StatusFailed:
			statusStyled = failedStyle.Render(fmt.Sprintf("%-8s", statusStr))
		default:
			statusStyled = pendingStyle.Render(fmt.Sprintf("%-8s", statusStr))
		}

		line := fmt.Sprintf("%-24s %-6s %s %-3d %s",
			truncate(e.NotificationID, 24),
			e.Channel,
			statusStyled,
			e.Attempts,
			truncate(e.Reason, 40),
		)
		s.WriteString(line + "\n")
	}

	if len(m.events) == 0 {
		s.WriteString("\n  Waiting for outcomes...\n")
	}

	s.WriteString("\n  (Press q to quit)")

	return s.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
