package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

func testNormalizer() *telemetry.Normalizer {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return telemetry.NewNormalizer(map[string]string{"bandwidth": "Mbps"}, func() time.Time { return at })
}

func TestDecodeFrame(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		name    string
		frame   string
		ping    bool
		wantErr bool
		device  string
		value   float64
		unit    string
		opaque  bool
	}{
		{name: "ping", frame: `{"type":"ping"}`, ping: true},
		{name: "envelope", frame: `{"topic":"iot/bandwidth","payload":{"device_id":"pi","bandwidth":12.5}}`, device: "pi", value: 12.5, unit: "Mbps"},
		{name: "string payload", frame: `{"topic":"iot/temperature","payload":"41.5"}`, device: telemetry.UnknownDevice, value: 41.5, unit: telemetry.OpaqueUnit, opaque: true},
		{name: "unknown type", frame: `{"type":"hello"}`, wantErr: true},
		{name: "garbage", frame: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ping, err := decodeFrame(n, []byte(tt.frame))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if ping != tt.ping {
				t.Fatalf("ping = %v, want %v", ping, tt.ping)
			}
			if tt.wantErr || tt.ping {
				return
			}
			if rec.DeviceID != tt.device || rec.Value != tt.value || rec.Unit != tt.unit || rec.Opaque != tt.opaque {
				t.Errorf("record = %+v", rec)
			}
		})
	}
}

func TestFeedAnswersPingAndDeliversRecords(t *testing.T) {
	pong := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		pong <- string(data)

		conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"iot/bandwidth","payload":{"device_id":"pi","bandwidth":3}}`))
		// Držet spojení, dokud klient neodejde.
		conn.ReadMessage()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 8)
	feed := NewFeed("ws"+strings.TrimPrefix(ts.URL, "http"), testNormalizer(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	go feed.Run(ctx, events)

	ev := nextEvent(t, events)
	if !ev.Connected {
		t.Fatalf("first event = %+v, want connected", ev)
	}

	select {
	case got := <-pong:
		if got != `{"type":"pong"}` {
			t.Errorf("pong = %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}

	ev = nextEvent(t, events)
	if ev.Record == nil || ev.Record.DeviceID != "pi" || ev.Record.Value != 3 || ev.Record.Topic != "iot/bandwidth" {
		t.Fatalf("record event = %+v", ev)
	}

	cancel()
	for range events {
	}
}

func TestFeedReportsDialError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 1)
	feed := NewFeed("ws://127.0.0.1:1/ws", testNormalizer(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	feed.retry = time.Hour
	go feed.Run(ctx, events)

	if ev := nextEvent(t, events); ev.Err == nil {
		t.Fatalf("event = %+v, want error", ev)
	}
	cancel()
	for range events {
	}
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}
