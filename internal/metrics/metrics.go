// Package metrics drží Prometheus metriky sdílené busem, bridgem a live streamem.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "telemetry_bridge"

// Metrics sdružuje všechny kolektory. Vytváří se jednou v main a předává se komponentám.
type Metrics struct {
	BusReceived *prometheus.CounterVec // podle subscription filtru
	BusDropped  prometheus.Counter     // plná fronta
	BusQueue    prometheus.Gauge

	RecordsStored prometheus.Counter
	StoreFailures prometheus.Counter

	Published        prometheus.Counter
	Deliveries       prometheus.Counter
	DeliveryFailures prometheus.Counter

	Subscribers   prometheus.Gauge
	Probes        prometheus.Counter
	IdleEvictions prometheus.Counter
}

// New vytvoří metriky a zaregistruje je. V testech předáváme prometheus.NewRegistry(),
// aby se testy navzájem neovlivňovaly.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BusReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "messages_received_total",
			Help: "Zprávy přijaté z MQTT.",
		}, []string{"filter"}),
		BusDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "messages_dropped_total",
			Help: "Zprávy zahozené kvůli plné frontě.",
		}),
		BusQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bus", Name: "queue_length",
			Help: "Aktuální délka fronty mezi MQTT a koordinátorem.",
		}),
		RecordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "records_stored_total",
			Help: "Úspěšně uložené záznamy.",
		}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "append_failures_total",
			Help: "Selhané zápisy do úložiště (záznam se neopakuje).",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "records_published_total",
			Help: "Záznamy rozeslané live odběratelům.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "deliveries_total",
			Help: "Úspěšně předané zprávy jednotlivým odběratelům.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "delivery_failures_total",
			Help: "Selhaná doručení (odběratel byl odpojen).",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "stream", Name: "subscribers",
			Help: "Počet připojených live odběratelů.",
		}),
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "probes_total",
			Help: "Odeslané ping sondy neaktivním odběratelům.",
		}),
		IdleEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "idle_evictions_total",
			Help: "Odběratelé odpojení po vypršení grace okna.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BusReceived, m.BusDropped, m.BusQueue,
			m.RecordsStored, m.StoreFailures,
			m.Published, m.Deliveries, m.DeliveryFailures,
			m.Subscribers, m.Probes, m.IdleEvictions,
		)
	}
	return m
}
