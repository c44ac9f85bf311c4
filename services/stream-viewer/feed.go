package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

var pongMessage = []byte(`{"type":"pong"}`)

// Event je jedna událost z live streamu pro UI.
type Event struct {
	Record    *telemetry.Record
	Connected bool
	Err       error
}

// Feed drží WebSocket spojení na bridge a převádí obálky na záznamy.
// Při výpadku se znovu připojuje, dokud neskončí ctx.
type Feed struct {
	url        string
	normalizer *telemetry.Normalizer
	dialer     *websocket.Dialer
	logger     *slog.Logger
	retry      time.Duration
}

func NewFeed(url string, n *telemetry.Normalizer, logger *slog.Logger) *Feed {
	return &Feed{
		url:        url,
		normalizer: n,
		dialer:     &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger:     logger,
		retry:      2 * time.Second,
	}
}

// Run posílá události do out. Kanál na konci zavře.
func (f *Feed) Run(ctx context.Context, out chan<- Event) {
	defer close(out)

	for {
		err := f.session(ctx, out)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("Live stream odpojen", "url", f.url, "error", err)
		if !emit(ctx, out, Event{Err: err}) {
			return
		}

		select {
		case <-time.After(f.retry):
		case <-ctx.Done():
			return
		}
	}
}

// session obslouží jedno spojení. Zapisuje jen tahle gorutina (pong), čte taky.
func (f *Feed) session(ctx context.Context, out chan<- Event) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("nelze se připojit k %s: %w", f.url, err)
	}
	defer conn.Close()

	// Zrušení ctx musí odblokovat ReadMessage.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.logger.Info("Připojeno k live streamu", "url", f.url)
	if !emit(ctx, out, Event{Connected: true}) {
		return ctx.Err()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		rec, ping, err := decodeFrame(f.normalizer, data)
		switch {
		case ping:
			// Bridge se ptá, jestli tu ještě jsme.
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, pongMessage); err != nil {
				return err
			}
		case err != nil:
			f.logger.Debug("Neznámá zpráva ze streamu", "error", err)
		default:
			if !emit(ctx, out, Event{Record: &rec}) {
				return ctx.Err()
			}
		}
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeFrame rozliší probe ({"type":"ping"}) a live obálku {"topic", "payload"}.
// Payload obálky prochází stejným normalizérem jako na bridgi; string payload je
// původní text neparsovatelné zprávy.
func decodeFrame(n *telemetry.Normalizer, data []byte) (telemetry.Record, bool, error) {
	var frame struct {
		Type    string          `json:"type"`
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return telemetry.Record{}, false, fmt.Errorf("neplatný JSON: %w", err)
	}

	if frame.Topic == "" {
		if frame.Type == "ping" {
			return telemetry.Record{}, true, nil
		}
		return telemetry.Record{}, false, errors.New("zpráva bez topicu")
	}

	raw := []byte(frame.Payload)
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return telemetry.Record{}, false, fmt.Errorf("neplatný payload: %w", err)
		}
		raw = []byte(text)
	}

	return n.Normalize(frame.Topic, raw), false, nil
}
