package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModelKeepsLatestPerDevice(t *testing.T) {
	m := NewModel(nil, nil)

	recs := []telemetry.Record{
		{Topic: "iot/bandwidth", Metric: "bandwidth", DeviceID: "a", Value: 1, Unit: "Mbps"},
		{Topic: "iot/bandwidth", Metric: "bandwidth", DeviceID: "b", Value: 2, Unit: "Mbps"},
		{Topic: "iot/bandwidth", Metric: "bandwidth", DeviceID: "a", Value: 3, Unit: "Mbps"},
		{Topic: "iot/temperature", Metric: "temperature", DeviceID: "a", Value: 40, Unit: "°C"},
	}
	for i := range recs {
		m = update(t, m, feedMsg(Event{Record: &recs[i]}))
	}

	if len(m.rows) != 3 || m.received != 4 {
		t.Fatalf("rows=%d received=%d", len(m.rows), m.received)
	}
	if got := m.rows[rowKey{Metric: "bandwidth", DeviceID: "a"}].rec.Value; got != 3 {
		t.Errorf("latest a/bandwidth = %v, want 3", got)
	}

	view := m.View()
	for _, want := range []string{"iot/bandwidth", "iot/temperature", "40.00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelConnectionState(t *testing.T) {
	m := NewModel(nil, nil)

	m = update(t, m, feedMsg(Event{Connected: true}))
	if !m.connected || m.lastErr != nil {
		t.Fatalf("after connect: %+v", m)
	}

	m = update(t, m, feedMsg(Event{Err: errors.New("spojení spadlo")}))
	if m.connected || !strings.Contains(m.View(), "spojení spadlo") {
		t.Errorf("after error: connected=%v view=%s", m.connected, m.View())
	}
}

func TestModelSnapshotDoesNotOverrideLive(t *testing.T) {
	m := NewModel(nil, nil)
	live := telemetry.Record{Topic: "iot/bandwidth", Metric: "bandwidth", DeviceID: "a", Value: 9}
	m = update(t, m, feedMsg(Event{Record: &live}))

	m = update(t, m, snapshotMsg{records: []telemetry.Record{
		{Metric: "bandwidth", DeviceID: "a", Value: 1},
		{Metric: "bandwidth", DeviceID: "b", Value: 2},
	}})

	if len(m.rows) != 2 {
		t.Fatalf("rows = %d", len(m.rows))
	}
	if got := m.rows[rowKey{Metric: "bandwidth", DeviceID: "a"}].rec.Value; got != 9 {
		t.Errorf("live value replaced by snapshot: %v", got)
	}
}

func TestModelQuitAndClear(t *testing.T) {
	m := NewModel(nil, nil)
	rec := telemetry.Record{Metric: "bandwidth", DeviceID: "a"}
	m = update(t, m, feedMsg(Event{Record: &rec}))

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if len(m.rows) != 0 {
		t.Errorf("rows after clear = %d", len(m.rows))
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestAPIClientLatest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]telemetry.Record{{DeviceID: "pi", Metric: "bandwidth", Value: 5, ReceivedAt: time.Now().UTC()}})
	}))
	defer ts.Close()

	recs, err := NewAPIClient(ts.URL).Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].DeviceID != "pi" || recs[0].Value != 5 {
		t.Errorf("records = %+v", recs)
	}

	if _, err := NewAPIClient(ts.URL + "/missing").Latest(context.Background()); err == nil {
		t.Error("expected error for 404")
	}
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("WS_URL", "ws://env:1/ws")
	t.Setenv("API_URL", "http://env:1/")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WSURL != "ws://env:1/ws" || cfg.APIURL != "http://env:1" {
		t.Errorf("env config = %+v", cfg)
	}

	cfg, err = LoadConfig([]string{"--ws-url", "ws://flag:2/live"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WSURL != "ws://flag:2/live" {
		t.Errorf("flag ws-url = %s", cfg.WSURL)
	}
	if cfg.DefaultUnits["bandwidth"] != "Mbps" {
		t.Errorf("units = %v", cfg.DefaultUnits)
	}
}
