package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	freshStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	freshTimeout = 2 * time.Second
)

// rowKey - jeden řádek tabulky = poslední hodnota pro (topic, zařízení).
// Metrika je poslední segment topicu. REST snapshot topic nenese (do DB se neukládá),
// proto se řádky párují podle ní.
type rowKey struct {
	Metric   string
	DeviceID string
}

type row struct {
	rec       telemetry.Record
	updatedAt time.Time
}

type feedMsg Event

type snapshotMsg struct {
	records []telemetry.Record
	err     error
}

// Model je bubbletea model live tabulky.
type Model struct {
	events <-chan Event
	api    *APIClient
	now    func() time.Time

	rows      map[rowKey]row
	connected bool
	lastErr   error
	received  int
	width     int
}

func NewModel(events <-chan Event, api *APIClient) Model {
	return Model{
		events: events,
		api:    api,
		now:    time.Now,
		rows:   make(map[rowKey]row),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{listenForEvent(m.events)}
	if m.api != nil {
		cmds = append(cmds, fetchSnapshot(m.api))
	}
	return tea.Batch(cmds...)
}

// listenForEvent čeká na další událost z Feedu.
func listenForEvent(ch <-chan Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return feedMsg(ev)
	}
}

func fetchSnapshot(api *APIClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		recs, err := api.Latest(ctx)
		return snapshotMsg{records: recs, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "c":
			m.rows = make(map[rowKey]row)
			m.received = 0
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case snapshotMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		for _, rec := range msg.records {
			key := rowKey{Metric: rec.Metric, DeviceID: rec.DeviceID}
			// Live data mají přednost před snapshotem.
			if _, ok := m.rows[key]; !ok {
				m.rows[key] = row{rec: rec}
			}
		}
		return m, nil

	case feedMsg:
		switch {
		case msg.Record != nil:
			rec := *msg.Record
			m.rows[rowKey{Metric: rec.Metric, DeviceID: rec.DeviceID}] = row{rec: rec, updatedAt: m.now()}
			m.received++
		case msg.Connected:
			m.connected = true
			m.lastErr = nil
		case msg.Err != nil:
			m.connected = false
			m.lastErr = msg.Err
		}
		return m, listenForEvent(m.events)
	}
	return m, nil
}

func displayTopic(rec telemetry.Record) string {
	if rec.Topic != "" {
		return rec.Topic
	}
	return rec.Metric
}

func (m Model) sortedKeys() []rowKey {
	keys := make([]rowKey, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Metric != keys[j].Metric {
			return keys[i].Metric < keys[j].Metric
		}
		return keys[i].DeviceID < keys[j].DeviceID
	})
	return keys
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("IoT live stream"))
	b.WriteString("  ")
	if m.connected {
		b.WriteString(okStyle.Render("● připojeno"))
	} else {
		b.WriteString(errStyle.Render("● odpojeno"))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  zpráv: %d", m.received)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %-20s %12s %-6s %s", "TOPIC", "ZAŘÍZENÍ", "HODNOTA", "JEDN.", "PŘIJATO")))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("zatím žádná data"))
		b.WriteString("\n")
	}

	now := m.now()
	for _, k := range m.sortedKeys() {
		r := m.rows[k]
		line := fmt.Sprintf("%-24s %-20s %12.2f %-6s %s",
			truncate(displayTopic(r.rec), 24), truncate(k.DeviceID, 20), r.rec.Value, r.rec.Unit,
			r.rec.ReceivedAt.Local().Format("15:04:05"))
		if !r.updatedAt.IsZero() && now.Sub(r.updatedAt) < freshTimeout {
			line = freshStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.lastErr != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(m.lastErr.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q: konec  c: vyčistit"))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
