// Package ui renders a small bubbletea "watch" dashboard over a
// running ratemon.Monitor's look dump — a much smaller cousin of the
// teacher's full TUI, scoped to one live view instead of many pages.
package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/flowlens/ratemon/ratemon"
)

type tickMsg time.Time

// snapshotMsg carries one poll of the monitor's handler surface: the
// look dump plus the mem/memmax/thresh counters shown alongside it.
type snapshotMsg struct {
	dump   string
	mem    int64
	memmax int64
	thresh int64
}

// row is one parsed line of the look dump: a dotted address prefix at
// a given tree depth plus its forward/reverse scaled rates.
type row struct {
	depth    int
	prefix   string
	fwd, rev int64
}

// Model is the bubbletea model for the watch dashboard.
type Model struct {
	mon      *ratemon.Monitor
	interval time.Duration
	width    int

	rows      []row
	uptimeSec uint64
	mem       int64
	memmax    int64
	thresh    int64

	paused bool
}

// NewModel creates a watch dashboard polling mon every interval.
func NewModel(mon *ratemon.Monitor, interval time.Duration) Model {
	return Model{mon: mon, interval: interval}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), collectOnce(m.mon))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func collectOnce(mon *ratemon.Monitor) tea.Cmd {
	return func() tea.Msg {
		h := mon.Handlers()
		dump := h["look"].Read()
		mem := parseHandlerInt(h["mem"].Read())
		memmax := parseHandlerInt(h["memmax"].Read())
		thresh := parseHandlerInt(h["thresh"].Read())
		return snapshotMsg{dump: dump, mem: mem, memmax: memmax, thresh: thresh}
	}
}

func parseHandlerInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		if m.paused {
			return m, tick(m.interval)
		}
		return m, tea.Batch(tick(m.interval), collectOnce(m.mon))
	case snapshotMsg:
		m.rows, m.uptimeSec = parseDump(msg.dump)
		m.mem, m.memmax, m.thresh = msg.mem, msg.memmax, msg.thresh
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("ratemon watch"))

	status := fmt.Sprintf("uptime %ds", m.uptimeSec)
	if m.paused {
		status += "  " + pausedStyle.Render("PAUSED")
	}
	fmt.Fprintln(&b, labelStyle.Render(status))

	fmt.Fprintf(&b, "%s %s / %s    %s %s\n",
		labelStyle.Render("mem"),
		valueStyle.Render(humanize.Bytes(uint64(m.mem))),
		valueStyle.Render(humanize.Bytes(uint64(m.memmax))),
		labelStyle.Render("thresh"),
		valueStyle.Render(humanize.Comma(m.thresh)))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("(no traffic observed yet)\n"))
	}
	for _, r := range m.rows {
		indent := strings.Repeat("  ", r.depth)
		style := rateColor(maxInt64(r.fwd, r.rev), m.thresh)
		fmt.Fprintf(&b, "%s%-18s fwd %s  rev %s\n", indent, r.prefix,
			style.Render(humanize.Comma(r.fwd)), style.Render(humanize.Comma(r.rev)))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space: pause  q: quit"))

	width := m.width - 4
	if width < 10 {
		width = 10
	}
	return panelStyle.Width(width).Render(b.String())
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// parseDump turns the look handler's uptime-then-tab-indented-tree
// text into rows ready to render, using each line's leading tab count
// as its tree depth.
func parseDump(dump string) ([]row, uint64) {
	lines := strings.Split(dump, "\n")
	if len(lines) == 0 {
		return nil, 0
	}
	uptime, _ := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 64)

	var rows []row
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		depth := 0
		for depth < len(line) && line[depth] == '\t' {
			depth++
		}
		fields := strings.Split(line[depth:], "\t")
		if len(fields) != 3 {
			continue
		}
		fwd := parseHandlerInt(fields[1])
		rev := parseHandlerInt(fields[2])
		rows = append(rows, row{depth: depth, prefix: fields[0], fwd: fwd, rev: rev})
	}
	return rows, uptime
}
