package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/harpua555/OpenFilamentSensor/project"
)

var (
	colorRed    = lipgloss.Color("#FF5555")
	colorYellow = lipgloss.Color("#F1FA8C")
	colorGreen  = lipgloss.Color("#50FA7B")
	colorCyan   = lipgloss.Color("#8BE9FD")
	colorGray   = lipgloss.Color("#6272A4")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle = lipgloss.NewStyle().Foreground(colorGray).Width(16)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(colorGray)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGray).Padding(0, 1)
)

const barWidth = 30

type tickMsg time.Time

type statusMsg struct {
	status project.SensorStatus
	err    error
	at     time.Time
}

type actionMsg struct {
	what string
	err  error
}

type model struct {
	source   statusSource
	interval time.Duration

	status  project.SensorStatus
	have    bool
	err     error
	updated time.Time
	notice  string
	width   int
}

func newModel(source statusSource, interval time.Duration) model {
	if interval <= 0 {
		interval = time.Second
	}
	return model{source: source, interval: interval}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetch(m.source))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetch(source statusSource) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		st, err := source.Fetch(ctx)
		return statusMsg{status: st, err: err, at: time.Now()}
	}
}

func post(source statusSource, what, path string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return actionMsg{what: what, err: source.Post(ctx, path)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, post(m.source, "recalibrate", "/recalibrate")
		case "c":
			return m, post(m.source, "clear pause request", "/pause_request/clear")
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetch(m.source))
	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.have = true
			m.updated = msg.at
		}
	case actionMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.what, msg.err)
		} else {
			m.notice = msg.what + " ok"
		}
		return m, fetch(m.source)
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("OpenFilamentSensor") + "\n\n")
	if !m.have {
		if m.err != nil {
			b.WriteString(critStyle.Render("unreachable: "+m.err.Error()) + "\n")
		} else {
			b.WriteString("connecting...\n")
		}
		b.WriteString("\n" + helpStyle.Render("q quit"))
		return b.String()
	}

	st := m.status
	rows := []string{
		row("state", stateLabel(st)),
		row("grace", st.GraceStateName),
		row("hard jam", bar(st.HardJamPercent, barWidth)+fmt.Sprintf(" %5.1f%%", st.HardJamPercent)),
		row("soft jam", bar(st.SoftJamPercent, barWidth)+fmt.Sprintf(" %5.1f%%", st.SoftJamPercent)),
		row("pass ratio", fmt.Sprintf("%.2f (threshold %.2f)", st.PassRatio, st.RatioThreshold)),
		row("expected", fmt.Sprintf("%.2f mm  %.2f mm/s", st.ExpectedFilament, st.ExpectedRateMmPerSec)),
		row("actual", fmt.Sprintf("%.2f mm  %.2f mm/s", st.ActualFilament, st.ActualRateMmPerSec)),
		row("deficit", fmt.Sprintf("%.2f mm", st.CurrentDeficitMm)),
		row("pulses", humanize.Comma(int64(st.MovementPulses))),
		row("uptime", uptime(st.UptimeMs)),
	}
	if st.JamReason != "" {
		rows = append(rows, row("reason", critStyle.Render(st.JamReason)))
	}
	b.WriteString(panelStyle.Render(strings.Join(rows, "\n")) + "\n")

	if m.err != nil {
		b.WriteString(warnStyle.Render("stale: "+m.err.Error()) + "\n")
	} else {
		b.WriteString(helpStyle.Render("updated "+humanize.Time(m.updated)) + "\n")
	}
	if m.notice != "" {
		b.WriteString(m.notice + "\n")
	}
	b.WriteString(helpStyle.Render("r recalibrate  c clear pause  q quit"))
	return b.String()
}

func uptime(ms uint32) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-time.Duration(ms)*time.Millisecond), now, "", ""))
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func stateLabel(st project.SensorStatus) string {
	switch {
	case st.FilamentRunout:
		return critStyle.Render("RUNOUT")
	case st.Stopped:
		return critStyle.Render("JAMMED")
	case !st.Printing:
		return helpStyle.Render("idle")
	case st.Paused:
		return warnStyle.Render("paused")
	case st.GraceActive:
		return warnStyle.Render("grace")
	default:
		return okStyle.Render("ok")
	}
}

func bar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	b := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case pct >= 80:
		return critStyle.Render(b)
	case pct >= 50:
		return warnStyle.Render(b)
	default:
		return okStyle.Render(b)
	}
}
