package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

func record(device string, value float64) telemetry.Record {
	return telemetry.Record{
		DeviceID:   device,
		Metric:     "bandwidth",
		Value:      value,
		Unit:       "Mbps",
		RawPayload: json.RawMessage(fmt.Sprintf(`{"device_id":%q,"bandwidth":%v}`, device, value)),
		ReceivedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreSequenceAndRecent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	const n = 50
	var last int64
	for i := 0; i < n; i++ {
		seq, err := s.Append(ctx, record("dev", float64(i)))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if seq <= last {
			t.Fatalf("sequence %d not greater than %d", seq, last)
		}
		last = seq
	}

	recent, err := s.Recent(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != n {
		t.Fatalf("Recent returned %d records, want %d", len(recent), n)
	}
	// Obrácené pořadí vložení.
	for i, rec := range recent {
		if want := float64(n - 1 - i); rec.Value != want {
			t.Fatalf("recent[%d].Value = %v, want %v", i, rec.Value, want)
		}
	}

	limited, _ := s.Recent(ctx, 5)
	if len(limited) != 5 || limited[0].SequenceID != last {
		t.Errorf("Recent(5) = %d records, first seq %d", len(limited), limited[0].SequenceID)
	}

	if empty, _ := s.Recent(ctx, 0); len(empty) != 0 {
		t.Errorf("Recent(0) returned %d records", len(empty))
	}
}

func TestMemoryStoreLatestPerDevice(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	for _, r := range []telemetry.Record{record("A", 1), record("B", 1), record("A", 2)} {
		if _, err := s.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.LatestPerDevice(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 {
		t.Fatalf("got %d devices, want 2", len(latest))
	}
	got := map[string]float64{}
	for _, r := range latest {
		got[r.DeviceID] = r.Value
	}
	if got["A"] != 2 || got["B"] != 1 {
		t.Errorf("LatestPerDevice = %v, want A->2 B->1", got)
	}
}

func TestMemoryStoreRecentForDevice(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	for i := 0; i < 10; i++ {
		dev := "A"
		if i%2 == 1 {
			dev = "B"
		}
		s.Append(ctx, record(dev, float64(i)))
	}

	recs, err := s.RecentForDevice(ctx, "B", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{9, 7, 5}
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i, r := range recs {
		if r.DeviceID != "B" || r.Value != want[i] {
			t.Errorf("recs[%d] = %s/%v, want B/%v", i, r.DeviceID, r.Value, want[i])
		}
	}

	if none, _ := s.RecentForDevice(ctx, "missing", 20); len(none) != 0 {
		t.Errorf("unknown device returned %d records", len(none))
	}
}

func TestMemoryStoreBounded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	s.Append(ctx, record("old", 1))
	for i := 0; i < 5; i++ {
		s.Append(ctx, record("new", float64(i)))
	}

	recent, _ := s.Recent(ctx, 100)
	if len(recent) != 3 {
		t.Fatalf("store kept %d records, want 3", len(recent))
	}

	// Poslední hodnota zařízení "old" musí přežít ořezání historie.
	latest, _ := s.LatestPerDevice(ctx)
	if len(latest) != 2 || latest[1].DeviceID != "old" || latest[1].SequenceID != 1 {
		t.Errorf("LatestPerDevice after trim = %+v", latest)
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	const writers, perWriter = 8, 100
	seqs := make(chan int64, writers*perWriter)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				seq, err := s.Append(ctx, record(fmt.Sprintf("dev-%d", w), float64(i)))
				if err != nil {
					t.Error(err)
					return
				}
				seqs <- seq
			}
		}(w)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		if seen[seq] {
			t.Fatalf("sequence %d assigned twice", seq)
		}
		seen[seq] = true
	}
	if len(seen) != writers*perWriter {
		t.Errorf("got %d unique sequences, want %d", len(seen), writers*perWriter)
	}

	recent, _ := s.Recent(ctx, writers*perWriter)
	for i := 1; i < len(recent); i++ {
		if recent[i-1].SequenceID <= recent[i].SequenceID {
			t.Fatalf("Recent not ordered newest first at %d", i)
		}
	}
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemoryStore(0).Append(ctx, record("a", 1)); err == nil {
		t.Error("Append with cancelled context should fail")
	}
}
