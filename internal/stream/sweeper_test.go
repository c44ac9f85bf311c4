package stream

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newClockRegistry(t0 time.Time) (*Registry, *time.Time) {
	clock := t0
	reg := NewRegistry(newTestMetrics())
	reg.now = func() time.Time { return clock }
	return reg, &clock
}

var testSweep = SweeperConfig{IdleWindow: 60 * time.Second, Grace: 30 * time.Second, Interval: time.Second}

func TestSweeperProbesOnceThenEvicts(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg, _ := newClockRegistry(t0)
	sw := NewSweeper(reg, testSweep, discardLogger(), reg.metrics)

	sub := &recordingSubscriber{}
	reg.Add(sub)

	steps := []struct {
		at             time.Duration
		probed, evicts int
	}{
		{59 * time.Second, 0, 0},
		{60 * time.Second, 1, 0},
		{70 * time.Second, 0, 0}, // sonda už odešla, druhá se neposílá
		{89 * time.Second, 0, 0},
		{90 * time.Second, 0, 1},
		{200 * time.Second, 0, 0},
	}
	for _, s := range steps {
		p, e := sw.Sweep(t0.Add(s.at))
		if p != s.probed || e != s.evicts {
			t.Fatalf("Sweep(+%v) = %d probes, %d evictions; want %d, %d", s.at, p, e, s.probed, s.evicts)
		}
	}

	msgs := sub.messages()
	if len(msgs) != 1 || string(msgs[0]) != `{"type":"ping"}` {
		t.Errorf("subscriber got %q, want exactly one ping", msgs)
	}
	if reg.Len() != 0 {
		t.Errorf("registry still has %d members", reg.Len())
	}
	waitFor(t, "evicted subscriber closed", func() bool { return sub.closeCount() == 1 })

	if got := testutil.ToFloat64(reg.metrics.Probes); got != 1 {
		t.Errorf("probes metric = %v", got)
	}
	if got := testutil.ToFloat64(reg.metrics.IdleEvictions); got != 1 {
		t.Errorf("evictions metric = %v", got)
	}
}

func TestSweeperActivityCancelsProbe(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg, clock := newClockRegistry(t0)
	sw := NewSweeper(reg, testSweep, discardLogger(), reg.metrics)

	sub := &recordingSubscriber{}
	h := reg.Add(sub)

	if p, _ := sw.Sweep(t0.Add(60 * time.Second)); p != 1 {
		t.Fatalf("expected a probe, got %d", p)
	}

	// Klient odpověděl.
	*clock = t0.Add(75 * time.Second)
	reg.Touch(h)

	if _, e := sw.Sweep(t0.Add(90 * time.Second)); e != 0 {
		t.Fatal("active subscriber evicted")
	}
	if reg.Len() != 1 {
		t.Fatal("active subscriber removed")
	}
	// Nové idle okno začíná od poslední aktivity.
	if p, _ := sw.Sweep(t0.Add(134 * time.Second)); p != 0 {
		t.Error("probe sent before the idle window elapsed")
	}
	if p, _ := sw.Sweep(t0.Add(135 * time.Second)); p != 1 {
		t.Error("second probe not sent after a fresh idle window")
	}
}

func TestSweeperDeliveryCountsAsActivity(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg, clock := newClockRegistry(t0)
	sw := NewSweeper(reg, testSweep, discardLogger(), reg.metrics)
	b := NewBroadcaster(reg, discardLogger(), reg.metrics)

	reg.Add(&recordingSubscriber{})

	*clock = t0.Add(50 * time.Second)
	b.Broadcast([]byte(`{}`))

	if p, _ := sw.Sweep(t0.Add(100 * time.Second)); p != 0 {
		t.Error("subscriber receiving data was probed")
	}
}

func TestSweeperEvictsUnreachableProbe(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg, _ := newClockRegistry(t0)
	sw := NewSweeper(reg, testSweep, discardLogger(), reg.metrics)

	dead := &recordingSubscriber{sendErr: ErrClosed}
	reg.Add(dead)

	p, e := sw.Sweep(t0.Add(time.Minute))
	if p != 0 || e != 1 {
		t.Errorf("Sweep = %d probes, %d evictions", p, e)
	}
	if reg.Len() != 0 {
		t.Error("dead subscriber still registered")
	}
}
