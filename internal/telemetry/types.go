package telemetry

import (
	"encoding/json"
	"time"
)

// UnknownDevice se použije, pokud payload neobsahuje žádnou identifikaci zařízení.
const UnknownDevice = "unknown"

// OpaqueUnit je jednotka záznamu, jehož payload nešlo strukturovaně dekódovat.
const OpaqueUnit = "raw"

// Record je kanonická (normalizovaná) podoba jedné telemetrické události.
// Po uložení je neměnný - Store umí jen INSERT, nikdy UPDATE.
type Record struct {
	// SequenceID přiděluje Store při vložení. Je to jediný stabilní identifikátor záznamu
	// (přirozený klíč neexistuje). Před uložením je 0.
	SequenceID int64 `json:"sequence_id"`

	DeviceID string  `json:"device_id"`
	Metric   string  `json:"metric"` // Např. "bandwidth", poslední segment topicu
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`

	// Topic je celý MQTT topic, odkud zpráva přišla. Do DB se neukládá,
	// potřebujeme ho jen pro live obálku pro WebSocket klienty.
	Topic string `json:"topic,omitempty"`

	// RawPayload drží původní payload pro audit (vždy validní JSON).
	// U neparsovatelných zpráv je to objekt {"raw": "<text>"}.
	RawPayload json.RawMessage `json:"raw_payload"`

	// ReceivedAt razítkuje bridge v okamžiku příjmu (UTC), ne zařízení.
	ReceivedAt time.Time `json:"received_at"`

	// Opaque = payload nebyl strukturovaný (JSON/CBOR objekt).
	Opaque bool `json:"-"`
}
