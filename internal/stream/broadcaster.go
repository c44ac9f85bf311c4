package stream

import (
	"log/slog"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// Broadcaster doručí záznam všem odběratelům z aktuálního snapshotu registru.
type Broadcaster struct {
	reg     *Registry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBroadcaster - konstruktor.
func NewBroadcaster(reg *Registry, logger *slog.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{reg: reg, logger: logger, metrics: m}
}

// Publish serializuje záznam jednou a pošle ho všem odběratelům.
// Chyba jednoho odběratele se nepropaguje ven, jen se odběratel odpojí.
func (b *Broadcaster) Publish(rec telemetry.Record) {
	msg, err := telemetry.EncodeEnvelope(rec)
	if err != nil {
		b.logger.Error("Záznam nelze serializovat pro live stream", "topic", rec.Topic, "error", err)
		return
	}
	b.metrics.Published.Inc()
	b.Broadcast(msg)
}

// Broadcast pošle hotové bajty všem odběratelům a vrátí počet úspěšných předání.
// Send je neblokující zařazení do fronty odběratele, takže pomalý klient nezdrží ostatní
// a bridge nikdy nečeká na síť.
func (b *Broadcaster) Broadcast(msg []byte) int {
	delivered := 0
	for _, m := range b.reg.Snapshot() {
		if err := m.Sub.Send(msg); err != nil {
			b.metrics.DeliveryFailures.Inc()
			b.drop(m, err)
			continue
		}
		delivered++
		b.reg.Touch(m.Handle)
	}
	b.metrics.Deliveries.Add(float64(delivered))
	return delivered
}

// drop odebere odběratele z registru a zavře ho na pozadí.
// Close může čekat na síť, proto neběží v publikační smyčce.
func (b *Broadcaster) drop(m Member, cause error) {
	if _, ok := b.reg.Remove(m.Handle); !ok {
		return // Už ho odebral někdo jiný (sweeper, read loop).
	}
	b.logger.Warn("Odběratel odpojen po chybě doručení", "handle", m.Handle, "error", cause)
	go m.Sub.Close()
}
