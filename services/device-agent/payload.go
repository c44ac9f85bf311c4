package main

import (
	"encoding/json"
	"time"
)

// Reading je jedna naměřená hodnota připravená k odeslání.
type Reading struct {
	Topic  string
	Metric string // název pole s hodnotou ("bandwidth", "temperature", ...)
	Value  float64
	Unit   string
}

// encodeReading sestaví JSON payload ve formátu, který bridge čte:
// {"device_id": "...", "<metric>": 12.5, "unit": "Mbps", "timestamp": "..."}
func encodeReading(deviceID string, r Reading, at time.Time) ([]byte, error) {
	return json.Marshal(map[string]any{
		"device_id": deviceID,
		r.Metric:    r.Value,
		"unit":      r.Unit,
		"timestamp": at.UTC().Format(time.RFC3339),
	})
}
