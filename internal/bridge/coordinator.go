// Package bridge spojuje bus, úložiště a live stream do jedné pipeline:
// Normalize -> Store.Append -> Broadcaster.Publish.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/bus"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/store"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// Publisher je cokoli, co umí rozeslat záznam live odběratelům (stream.Broadcaster).
type Publisher interface {
	Publish(rec telemetry.Record)
}

// Coordinator zpracovává zprávy z busu jednu po druhé.
type Coordinator struct {
	normalizer   *telemetry.Normalizer
	store        store.Appender
	publisher    Publisher
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewCoordinator - konstruktor.
func NewCoordinator(n *telemetry.Normalizer, s store.Appender, p Publisher, storeTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &Coordinator{
		normalizer:   n,
		store:        s,
		publisher:    p,
		storeTimeout: storeTimeout,
		logger:       logger,
		metrics:      m,
	}
}

// Run čte frontu, dokud se nezavře. Zprávy, které už ve frontě jsou, se dozpracují
// i po zrušení ctx, aby se rozjetá publikace nepřerušila v půlce.
func (c *Coordinator) Run(ctx context.Context, messages <-chan bus.Message) {
	c.logger.Info("Koordinátor běží")
	defer c.logger.Info("Koordinátor skončil")

	for msg := range messages {
		c.metrics.BusQueue.Set(float64(len(messages)))
		c.Handle(context.WithoutCancel(ctx), msg)
	}
}

// Handle provede pipeline pro jednu zprávu. Nikdy nevrací chybu - výpadek úložiště
// nesmí zastavit live stream, jen se zaloguje a započítá.
func (c *Coordinator) Handle(ctx context.Context, msg bus.Message) telemetry.Record {
	// 1. Normalizace (nikdy neselže)
	rec := c.normalizer.Normalize(msg.Topic, msg.Payload)

	// 2. Uložení - jediný pokus, bez retry fronty
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	seq, err := c.store.Append(storeCtx, rec)
	cancel()

	if err != nil {
		c.metrics.StoreFailures.Inc()
		c.logger.Error("Záznam se nepodařilo uložit", "topic", msg.Topic, "device_id", rec.DeviceID, "error", err)
	} else {
		rec.SequenceID = seq
		c.metrics.RecordsStored.Inc()
		c.logger.Debug("Záznam uložen", "sequence_id", seq, "device_id", rec.DeviceID, "metric", rec.Metric)
	}

	// 3. Live rozeslání - vždy, i když zápis selhal
	c.publisher.Publish(rec)
	return rec
}
