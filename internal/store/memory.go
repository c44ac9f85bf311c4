package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// MemoryStore drží záznamy jen v paměti procesu. Hodí se pro vývoj bez databáze a pro testy.
// Počet záznamů je omezený (maxRecords), aby paměť nerostla donekonečna.
type MemoryStore struct {
	mu sync.RWMutex

	records []telemetry.Record // vzestupně podle SequenceID
	// latest se neořezává, takže "poslední záznam zařízení" přežije i ořezání historie.
	latest map[string]telemetry.Record
	next   int64
	max    int
}

// NewMemoryStore vytvoří úložiště. maxRecords <= 0 znamená bez limitu.
func NewMemoryStore(maxRecords int) *MemoryStore {
	return &MemoryStore{
		latest: make(map[string]telemetry.Record),
		max:    maxRecords,
	}
}

func (s *MemoryStore) Append(ctx context.Context, rec telemetry.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Kopie payloadu - volající už nesmí záznam v úložišti změnit.
	rec.RawPayload = bytes.Clone(rec.RawPayload)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	rec.SequenceID = s.next
	s.records = append(s.records, rec)
	s.latest[rec.DeviceID] = rec

	if s.max > 0 && len(s.records) > s.max {
		drop := len(s.records) - s.max
		clear(s.records[:drop])
		s.records = s.records[drop:]
	}

	return rec.SequenceID, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]telemetry.Record, error) {
	return s.collect(ctx, limit, func(telemetry.Record) bool { return true })
}

func (s *MemoryStore) RecentForDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.Record, error) {
	return s.collect(ctx, limit, func(r telemetry.Record) bool { return r.DeviceID == deviceID })
}

func (s *MemoryStore) LatestPerDevice(ctx context.Context) ([]telemetry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]telemetry.Record, 0, len(s.latest))
	for _, rec := range s.latest {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	// Stejné pořadí jako DISTINCT ON (device_id) v Postgresu.
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// collect prochází záznamy od nejnovějšího a vrátí nejvýše limit kusů.
func (s *MemoryStore) collect(ctx context.Context, limit int, keep func(telemetry.Record) bool) ([]telemetry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []telemetry.Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]telemetry.Record, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}
