package main

import (
	"context"
	"log/slog"
	"time"
)

// Agent periodicky měří a posílá hodnoty do MQTT.
type Agent struct {
	cfg     Config
	sampler *Sampler
	publish func(topic string, payload []byte) error
	logger  *slog.Logger
	now     func() time.Time
}

// Run měří hned po startu a pak v každém tiku, dokud se nezruší ctx.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	// Bandwidth potřebuje dvě měření, první jen nastaví čítače.
	a.Tick()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Tick provede jedno kolo měření. Chyba jednoho senzoru nezastaví ostatní.
func (a *Agent) Tick() int {
	sent := 0
	for _, r := range a.collect() {
		payload, err := encodeReading(a.cfg.DeviceID, r, a.now())
		if err != nil {
			a.logger.Error("Payload nelze sestavit", "metric", r.Metric, "error", err)
			continue
		}
		if err := a.publish(r.Topic, payload); err != nil {
			a.logger.Error("Chyba při publikaci do MQTT", "topic", r.Topic, "error", err)
			continue
		}
		a.logger.Debug("Metrika odeslána", "topic", r.Topic, "value", r.Value)
		sent++
	}
	return sent
}

func (a *Agent) collect() []Reading {
	var out []Reading

	if a.cfg.BandwidthTopic != "" {
		mbps, ok, err := a.sampler.Bandwidth()
		switch {
		case err != nil:
			a.logger.Error("Chyba při čtení síťových čítačů", "error", err)
		case ok:
			out = append(out, Reading{Topic: a.cfg.BandwidthTopic, Metric: "bandwidth", Value: mbps, Unit: "Mbps"})
		}
	}

	if a.cfg.TemperatureTopic != "" {
		if c, err := a.sampler.Temperature(); err != nil {
			// Kontejnery a VM často senzory nemají, není to chyba aplikace.
			a.logger.Debug("Teplotu nelze přečíst", "error", err)
		} else {
			out = append(out, Reading{Topic: a.cfg.TemperatureTopic, Metric: "temperature", Value: c, Unit: "°C"})
		}
	}

	if a.cfg.CPUTopic != "" {
		if p, err := a.sampler.CPULoad(); err != nil {
			a.logger.Error("Chyba při čtení CPU statistik", "error", err)
		} else {
			out = append(out, Reading{Topic: a.cfg.CPUTopic, Metric: "cpu", Value: p, Unit: "%"})
		}
	}

	if a.cfg.MemoryTopic != "" {
		if p, err := a.sampler.MemoryUsed(); err != nil {
			a.logger.Error("Chyba při čtení RAM statistik", "error", err)
		} else {
			out = append(out, Reading{Topic: a.cfg.MemoryTopic, Metric: "memory", Value: p, Unit: "%"})
		}
	}

	return out
}
