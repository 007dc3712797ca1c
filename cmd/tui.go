// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

// linkSource is the read side of a Receiver used by the monitor
type linkSource interface {
	Snapshot() (sensorlink.Statistics, uint8)
	State() string
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type model struct {
	connInfo      string
	source        linkSource
	stats         sensorlink.Statistics
	expected      uint8
	state         string
	packetRate    float64
	lastTick      time.Time
	latest        *sensorlink.Record
	latestAt      time.Time
	readings      table.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type recordMsg struct {
	record     sensorlink.Record
	receivedAt time.Time
}
type linkClosedMsg struct{}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newReadingsTable() table.Model {
	columns := []table.Column{
		{Title: "Ch", Width: 4},
		{Title: "IR", Width: 8},
		{Title: "Ultrasonic", Width: 12},
	}
	return table.New(
		table.WithColumns(columns),
		table.WithRows(readingRows(nil)),
		table.WithHeight(sensorlink.IRChannels+1),
	)
}

// readingRows lays out one row per IR channel; ultrasonic readings fill
// the first rows of their column
func readingRows(r *sensorlink.Record) []table.Row {
	rows := make([]table.Row, sensorlink.IRChannels)
	for i := range rows {
		ir, us := "-", ""
		if r != nil {
			ir = strconv.Itoa(int(r.IR[i]))
		}
		if i < sensorlink.UltrasonicChannels {
			us = "-"
			if r != nil {
				us = strconv.Itoa(int(r.Ultrasonic[i])) + " mm"
			}
		}
		rows[i] = table.Row{strconv.Itoa(i), ir, us}
	}
	return rows
}

func initialModel(connInfo string, source linkSource) model {
	return model{
		connInfo:      connInfo,
		source:        source,
		state:         source.State(),
		readings:      newReadingsTable(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.refresh(time.Time(msg))
		return m, tickCmd()

	case recordMsg:
		if m.latest == nil {
			m.addLogEntry(fmt.Sprintf("Synchronized at seq %d", msg.record.Sequence), false)
		}
		rec := msg.record
		m.latest = &rec
		m.latestAt = msg.receivedAt
		m.readings.SetRows(readingRows(m.latest))

	case linkClosedMsg:
		m.addLogEntry("Connection closed", true)
	}

	return m, nil
}

// refresh pulls a statistics snapshot and logs what changed since the
// previous one
func (m *model) refresh(now time.Time) {
	prev := m.stats
	m.stats, m.expected = m.source.Snapshot()
	m.state = m.source.State()

	if m.stats.PacketsReceived < prev.PacketsReceived {
		// Counters only move backwards on reset
		m.addLogEntry("Statistics reset", false)
		m.packetRate = 0
		m.lastTick = now
		return
	}

	if !m.lastTick.IsZero() {
		if elapsed := now.Sub(m.lastTick).Seconds(); elapsed > 0 {
			m.packetRate = float64(m.stats.PacketsReceived-prev.PacketsReceived) / elapsed
		}
	}
	m.lastTick = now

	if m.stats.PacketsLost > prev.PacketsLost {
		m.addLogEntry(fmt.Sprintf("%d packet(s) lost", m.stats.PacketsLost-prev.PacketsLost), true)
	}
	if m.stats.CRCErrors > prev.CRCErrors {
		m.addLogEntry(fmt.Sprintf("%d CRC error(s)", m.stats.CRCErrors-prev.CRCErrors), true)
	}
	if m.latest != nil && m.stats.PacketsReceived == prev.PacketsReceived && m.stats.Timeouts > prev.Timeouts {
		m.addLogEntry("No frames in the last interval", false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
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

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("UARTLINK - LINK MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Receiver: %s | Press 'q' to quit", m.connInfo, m.state)))
	s.WriteString("\n\n")

	if m.latest == nil {
		s.WriteString(warningStyle.Render("⏳ Waiting for first frame..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Receiving"))
	}
	s.WriteString("\n\n")

	// Statistics
	counter := func(v uint32) string {
		if v > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", v))
		}
		return statsValueStyle.Render("0")
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s (%.1f%%)   %s %s\n",
		statsLabelStyle.Render("Received:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.PacketsReceived)),
		statsLabelStyle.Render("Lost:"), counter(m.stats.PacketsLost), m.stats.LossRate()*100.0,
		statsLabelStyle.Render("Next seq:"), statsValueStyle.Render(fmt.Sprintf("%d", m.expected)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		statsLabelStyle.Render("CRC Errors:"), counter(m.stats.CRCErrors),
		statsLabelStyle.Render("Timeouts:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.Timeouts)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.packetRate)),
		statsLabelStyle.Render("Avg Latency:"), statsValueStyle.Render(fmt.Sprintf("%.1f ms", m.stats.AvgLatencyMs)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest record
	if m.latest != nil {
		s.WriteString(statsLabelStyle.Render("Latest Record:"))
		s.WriteString("\n")

		recordContent := strings.Builder{}
		recordContent.WriteString(fmt.Sprintf("%s %s   %s 0x%02X   %s %s\n",
			statsLabelStyle.Render("Seq:"), statsValueStyle.Render(fmt.Sprintf("%d", m.latest.Sequence)),
			statsLabelStyle.Render("CRC:"), m.latest.CRC,
			statsLabelStyle.Render("At:"), headerStyle.Render(m.latestAt.Format("15:04:05.000")),
		))
		recordContent.WriteString(fmt.Sprintf("%s %s\n\n",
			statsLabelStyle.Render("Sender clock:"), statsValueStyle.Render(formatUptime(uint64(m.latest.TimestampMs))),
		))
		recordContent.WriteString(m.readings.View())

		s.WriteString(boxStyle.Render(recordContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 35 // Reserve space for header, stats and readings
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
