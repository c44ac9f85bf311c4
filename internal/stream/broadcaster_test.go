package stream

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

func TestBroadcastSkipsFailingSubscriber(t *testing.T) {
	m := newTestMetrics()
	reg := NewRegistry(m)
	b := NewBroadcaster(reg, discardLogger(), m)

	good1, good2 := &recordingSubscriber{}, &recordingSubscriber{}
	slow := &recordingSubscriber{sendErr: ErrSlowConsumer}
	reg.Add(good1)
	reg.Add(slow)
	reg.Add(good2)

	rec := telemetry.Record{Topic: "iot/bandwidth", RawPayload: json.RawMessage(`{"device_id":"esp32","bandwidth":12.5}`)}
	b.Publish(rec)

	want := `{"topic":"iot/bandwidth","payload":{"device_id":"esp32","bandwidth":12.5}}`
	for i, sub := range []*recordingSubscriber{good1, good2} {
		msgs := sub.messages()
		if len(msgs) != 1 || string(msgs[0]) != want {
			t.Errorf("subscriber %d got %q", i, msgs)
		}
	}

	if reg.Len() != 2 {
		t.Errorf("registry has %d members, want 2", reg.Len())
	}
	waitFor(t, "slow subscriber closed", func() bool { return slow.closeCount() == 1 })

	// Odpojený odběratel už další publikace nedostává.
	b.Publish(rec)
	if slow.sendCount() != 1 {
		t.Errorf("removed subscriber got %d sends", slow.sendCount())
	}
	if n := len(good1.messages()); n != 2 {
		t.Errorf("healthy subscriber got %d messages, want 2", n)
	}

	if got := testutil.ToFloat64(m.DeliveryFailures); got != 1 {
		t.Errorf("delivery failures = %v", got)
	}
	if got := testutil.ToFloat64(m.Deliveries); got != 4 {
		t.Errorf("deliveries = %v", got)
	}
	if got := testutil.ToFloat64(m.Subscribers); got != 2 {
		t.Errorf("subscribers gauge = %v", got)
	}
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	m := newTestMetrics()
	b := NewBroadcaster(NewRegistry(m), discardLogger(), m)

	if n := b.Broadcast([]byte(`{}`)); n != 0 {
		t.Errorf("Broadcast delivered to %d", n)
	}
}

func TestBroadcastOpaquePayload(t *testing.T) {
	m := newTestMetrics()
	reg := NewRegistry(m)
	sub := &recordingSubscriber{}
	reg.Add(sub)

	rec := telemetry.Record{Topic: "iot/temperature", Opaque: true, RawPayload: json.RawMessage(`{"raw":"hello"}`)}
	NewBroadcaster(reg, discardLogger(), m).Publish(rec)

	msgs := sub.messages()
	if len(msgs) != 1 || string(msgs[0]) != `{"topic":"iot/temperature","payload":"hello"}` {
		t.Errorf("got %q", msgs)
	}
}

// Registrace a odhlašování během publikace: každý odběratel dostane každou zprávu
// nejvýš jednou a ve stejném pořadí, v jakém byla publikována.
func TestBroadcastConcurrentMembership(t *testing.T) {
	m := newTestMetrics()
	reg := NewRegistry(m)
	b := NewBroadcaster(reg, discardLogger(), m)

	const publishes, churners = 300, 6
	subs := make([]*recordingSubscriber, churners)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range subs {
		subs[i] = &recordingSubscriber{}
		wg.Add(1)
		go func(sub *recordingSubscriber) {
			defer wg.Done()
			<-start
			for round := 0; round < 20; round++ {
				h := reg.Add(sub)
				reg.Snapshot()
				reg.Remove(h)
			}
			reg.Add(sub)
		}(subs[i])
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for n := 1; n <= publishes; n++ {
			b.Publish(telemetry.Record{Topic: "iot/bandwidth", RawPayload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, n))})
		}
	}()

	close(start)
	wg.Wait()

	if reg.Len() != churners {
		t.Fatalf("registry has %d members, want %d", reg.Len(), churners)
	}

	for i, sub := range subs {
		last := 0
		for _, raw := range sub.messages() {
			var env struct {
				Payload struct{ N int } `json:"payload"`
			}
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatal(err)
			}
			if env.Payload.N <= last {
				t.Fatalf("subscriber %d: message %d after %d", i, env.Payload.N, last)
			}
			last = env.Payload.N
		}
	}

	// Po ustálení dostanou všichni další zprávu právě jednou.
	b.Publish(telemetry.Record{Topic: "iot/bandwidth", RawPayload: json.RawMessage(`{"n":100000}`)})
	for i, sub := range subs {
		msgs := sub.messages()
		if len(msgs) == 0 || string(msgs[len(msgs)-1]) != `{"topic":"iot/bandwidth","payload":{"n":100000}}` {
			t.Errorf("subscriber %d missed the final message", i)
		}
	}
}

func TestRegistryRemoveTwice(t *testing.T) {
	reg := NewRegistry(newTestMetrics())
	h := reg.Add(&recordingSubscriber{})

	if _, ok := reg.Remove(h); !ok {
		t.Fatal("first Remove returned false")
	}
	if _, ok := reg.Remove(h); ok {
		t.Error("second Remove returned true")
	}
	if h2 := reg.Add(&recordingSubscriber{}); h2 == h {
		t.Error("handle reused")
	}
}

func TestRegistrySnapshotIsCopy(t *testing.T) {
	reg := NewRegistry(newTestMetrics())
	h := reg.Add(&recordingSubscriber{})
	snap := reg.Snapshot()

	reg.Remove(h)
	reg.Add(&recordingSubscriber{})

	if len(snap) != 1 || snap[0].Handle != h {
		t.Errorf("snapshot changed: %+v", snap)
	}
}
