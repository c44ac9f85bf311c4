package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
)

// Normalizer převádí surovou zprávu z busu na kanonický Record.
// Nikdy neselže - v nejhorším případě vrátí záznam s Value 0.0 a payloadem pod klíčem "raw".
type Normalizer struct {
	now   func() time.Time
	units []unitRule
}

type unitRule struct {
	match string
	unit  string
}

// cborMode dekóduje CBOR mapy rovnou do map[string]any, aby šly serializovat do JSONu.
var cborMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// NewNormalizer vytvoří normalizér. defaultUnits mapuje podřetězec názvu metriky na jednotku
// (např. "bandwidth" -> "Mbps"), now je zdroj času (nil = time.Now).
func NewNormalizer(defaultUnits map[string]string, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}

	rules := make([]unitRule, 0, len(defaultUnits))
	for match, unit := range defaultUnits {
		rules = append(rules, unitRule{match: match, unit: unit})
	}
	// Deterministické pořadí: delší (konkrétnější) shoda vyhrává.
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].match) != len(rules[j].match) {
			return len(rules[i].match) > len(rules[j].match)
		}
		return rules[i].match < rules[j].match
	})

	return &Normalizer{now: now, units: rules}
}

// Normalize zpracuje jednu zprávu. Čistá funkce (topic, raw, aktuální čas).
func (n *Normalizer) Normalize(topic string, raw []byte) Record {
	rec := Record{
		DeviceID:   UnknownDevice,
		Metric:     MetricFromTopic(topic),
		Topic:      topic,
		ReceivedAt: n.now().UTC(),
	}

	fields, payload, ok := decodeStructured(raw)
	if !ok {
		// FALLBACK: celý payload bereme jako jednu hodnotu.
		text := string(raw)
		rec.Opaque = true
		rec.Unit = OpaqueUnit
		if v, ok := parseNumber(text); ok {
			rec.Value = v
		}
		rec.RawPayload, _ = json.Marshal(map[string]string{"raw": text})
		return rec
	}

	rec.RawPayload = payload

	if id, ok := stringField(fields, "device_id"); ok {
		rec.DeviceID = id
	} else if id, ok := stringField(fields, "device"); ok {
		rec.DeviceID = id
	}

	if v, ok := numberField(fields, rec.Metric); ok {
		rec.Value = v
	} else if v, ok := numberField(fields, "value"); ok {
		rec.Value = v
	}

	if unit, ok := fields["unit"].(string); ok && unit != "" {
		rec.Unit = unit
	} else {
		rec.Unit = n.defaultUnit(rec.Metric)
	}

	return rec
}

func (n *Normalizer) defaultUnit(metric string) string {
	for _, r := range n.units {
		if strings.Contains(metric, r.match) {
			return r.unit
		}
	}
	return ""
}

// MetricFromTopic vrací poslední segment topicu ("iot/bandwidth" -> "bandwidth").
func MetricFromTopic(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		topic = topic[i+1:]
	}
	if topic == "" {
		return "unknown"
	}
	return topic
}

// ParseDefaultUnits parsuje konfiguraci ve tvaru "bandwidth:Mbps,temperature:°C".
// Neplatné položky se tiše přeskočí.
func ParseDefaultUnits(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, unit, found := strings.Cut(strings.TrimSpace(pair), ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(unit)
	}
	return out
}

// decodeStructured zkusí payload dekódovat jako objekt.
// Podporuje JSON, JSONC (komentáře, čárky navíc - některé firmwary to posílají) a CBOR mapy.
// Vrací pole objektu a JSON reprezentaci vhodnou pro uložení.
func decodeStructured(raw []byte) (map[string]any, json.RawMessage, bool) {
	// CBOR mapa začíná bajtem 0xa0-0xbf (major type 5). Textový JSON takhle začínat nemůže.
	// Binární data neořezáváme - bílé znaky na konci můžou být součástí CBOR.
	if len(raw) > 0 && raw[0] >= 0xa0 && raw[0] <= 0xbf {
		var fields map[string]any
		if err := cborMode.Unmarshal(raw, &fields); err != nil || fields == nil {
			return nil, nil, false
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return nil, nil, false
		}
		return fields, payload, true
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil, false
	}

	payload := trimmed
	if !json.Valid(payload) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, jsonc.ToJSON(trimmed)); err != nil {
			return nil, nil, false
		}
		payload = buf.Bytes()
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		// Validní JSON, ale ne objekt (číslo, pole, null) -> opaque.
		return nil, nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, false
	}

	return fields, json.RawMessage(bytes.Clone(payload)), true
}

func stringField(fields map[string]any, key string) (string, bool) {
	switch v := fields[key].(type) {
	case string:
		if v != "" {
			return v, true
		}
	case json.Number:
		return v.String(), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	}
	return "", false
}

func numberField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case json.Number:
		return parseNumber(v.String())
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		return parseNumber(v)
	}
	return 0, false
}

// parseNumber odmítá NaN a Inf - JSON je neumí a do grafu nepatří.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
