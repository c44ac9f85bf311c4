package telemetry

import (
	"encoding/json"
	"fmt"
)

// Envelope je zpráva, kterou posíláme live klientům přes WebSocket.
// Formát odpovídá původnímu bridgi: {"topic": "...", "payload": <JSON nebo string>}.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEnvelope serializuje záznam do live obálky.
// Strukturovaný payload jde dál tak, jak přišel; neparsovatelný jako JSON string s původním textem.
func EncodeEnvelope(rec Record) ([]byte, error) {
	payload := rec.RawPayload

	if rec.Opaque {
		var fallback struct {
			Raw string `json:"raw"`
		}
		if err := json.Unmarshal(rec.RawPayload, &fallback); err != nil {
			return nil, fmt.Errorf("neplatný raw payload: %w", err)
		}
		text, err := json.Marshal(fallback.Raw)
		if err != nil {
			return nil, err
		}
		payload = text
	}

	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	return json.Marshal(Envelope{Topic: rec.Topic, Payload: payload})
}
