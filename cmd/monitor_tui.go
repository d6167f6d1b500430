// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/adbhost/pkg/adb"
	"github.com/Thermoquad/adbhost/pkg/monitor"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for failures, false for device changes
}

// deviceItem adapts a device record to list.Item
type deviceItem struct {
	info adb.DeviceInfo
}

func (d deviceItem) Title() string { return d.info.Serial }

func (d deviceItem) Description() string {
	model, ok := d.info.Get("model")
	if !ok {
		model = "unknown model"
	}
	if id, ok := d.info.Get("transport_id"); ok {
		return fmt.Sprintf("%s (transport %s)", model, id)
	}
	return model
}

func (d deviceItem) FilterValue() string { return d.info.Serial }

// TUI model
type monitorModel struct {
	connInfo      string
	interval      time.Duration
	showAll       bool
	stats         *monitor.Statistics
	deviceList    list.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	lastErr       error
	polled        bool
	width         int
	height        int
	quitting      bool
}

// Messages
type monitorTickMsg time.Time

type pollMsg struct {
	snapshot monitor.Snapshot
	events   []monitor.Event
}

func initialMonitorModel(connInfo string, interval time.Duration, showAll bool) monitorModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 40, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	return monitorModel{
		connInfo:      connInfo,
		interval:      interval,
		showAll:       showAll,
		stats:         monitor.NewStatistics(),
		deviceList:    deviceList,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			return m, nil
		}
		var cmd tea.Cmd
		m.deviceList, cmd = m.deviceList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deviceList.SetSize(max(msg.Width/3, 30), max(msg.Height-12, 6))

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case pollMsg:
		return m, m.applyPoll(msg)
	}

	return m, nil
}

func (m *monitorModel) applyPoll(msg pollMsg) tea.Cmd {
	snap := msg.snapshot
	m.polled = true
	m.stats.Update(snap, msg.events)

	if snap.Err != nil {
		// Log a failure once until the next success
		if m.lastErr == nil || m.lastErr.Error() != snap.Err.Error() {
			m.addLogEntry(adb.FormatError(snap.Err), true)
		}
		m.lastErr = snap.Err
		return nil
	}
	if m.lastErr != nil {
		m.addLogEntry("Daemon reachable again", false)
		m.lastErr = nil
	}

	for _, w := range snap.Warnings {
		m.addLogEntry("warning: "+w.String(), true)
	}
	for _, e := range msg.events {
		m.addLogEntry(e.String(), false)
	}
	if m.showAll && len(msg.events) == 0 {
		m.addLogEntry(fmt.Sprintf("%d devices, no change", len(snap.Devices)), false)
	}

	items := make([]list.Item, len(snap.Devices))
	for i, d := range snap.Devices {
		items[i] = deviceItem{info: d}
	}
	return m.deviceList.SetItems(items)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("ADBHOST - DEVICE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Interval: %v | 'r' reset stats | 'q' quit",
		m.connInfo, m.interval)))
	s.WriteString("\n\n")

	switch {
	case !m.polled:
		s.WriteString(infoStyle.Render("⏳ Waiting for first poll..."))
	case m.lastErr != nil:
		s.WriteString(errorStyle.Render("✗ " + adb.FormatError(m.lastErr)))
	default:
		s.WriteString(statsValueStyle.Render("✓ Daemon reachable"))
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.statsView()))
	s.WriteString("\n\n")

	devices := boxStyle.Render(m.deviceList.View())
	events := boxStyle.Width(max(m.width-lipgloss.Width(devices)-6, 20)).Render(m.eventLogView())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devices, " ", events))

	return s.String()
}

func (m monitorModel) statsView() string {
	st := m.stats
	var b strings.Builder

	var okPercent float64
	if st.TotalPolls > 0 {
		okPercent = float64(st.SuccessfulPolls) * 100.0 / float64(st.TotalPolls)
	}

	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Polls:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalPolls)),
		statsLabelStyle.Render("OK:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.SuccessfulPolls, okPercent)),
		statsLabelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d", st.Errors())),
	)

	if st.Errors() > 0 {
		fmt.Fprintf(&b, "%s (%s: %d, %s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Failures:"),
			headerStyle.Render("offline"), st.OfflineErrors,
			headerStyle.Render("connection"), st.ConnectionErrors,
			headerStyle.Render("decode"), st.DecodeErrors,
			headerStyle.Render("daemon"), st.AdbErrors,
			headerStyle.Render("other"), st.OtherErrors,
		)
	}
	if st.LengthMismatches > 0 {
		fmt.Fprintf(&b, "%s %s\n",
			statsLabelStyle.Render("Length mismatches:"), infoStyle.Render(fmt.Sprintf("%d", st.LengthMismatches)))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Devices:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Devices)),
		statsLabelStyle.Render("Latency:"), statsValueStyle.Render(st.LastLatency.Round(time.Microsecond).String()),
		statsLabelStyle.Render("Poll Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f/s", st.PollRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
	)
	return b.String()
}

func (m monitorModel) eventLogView() string {
	var b strings.Builder
	b.WriteString(statsLabelStyle.Render("Recent Events:"))
	b.WriteString("\n")

	// Reserve space for header and stats
	logHeight := max(m.height-14, 5)
	start := max(len(m.eventLog)-logHeight, 0)

	if len(m.eventLog) == 0 {
		b.WriteString(headerStyle.Render("  (no events yet)"))
		return b.String()
	}
	for _, entry := range m.eventLog[start:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, infoStyle.Render("ℹ "+entry.message))
		}
	}
	return b.String()
}
