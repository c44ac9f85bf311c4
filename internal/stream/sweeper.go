package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
)

// PingMessage je sonda pro neaktivní klienty. Jakákoli odpověď se počítá jako aktivita.
var PingMessage = []byte(`{"type":"ping"}`)

// SweeperConfig - idle okno, grace okno po sondě a perioda kontroly.
type SweeperConfig struct {
	IdleWindow time.Duration
	Grace      time.Duration
	Interval   time.Duration
}

// Sweeper periodicky hledá tiché odběratele. Po IdleWindow bez provozu pošle
// právě jednu sondu; když ani do Grace nepřijde žádná aktivita, odběratele odpojí.
type Sweeper struct {
	reg     *Registry
	cfg     SweeperConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSweeper - konstruktor.
func NewSweeper(reg *Registry, cfg SweeperConfig, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Sweeper{reg: reg, cfg: cfg, logger: logger, metrics: m}
}

// Run běží, dokud se nezruší ctx.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.reg.now())
		}
	}
}

// Sweep provede jednu kontrolu k času now. Vrací počet sond a odpojených.
func (s *Sweeper) Sweep(now time.Time) (probed, evicted int) {
	probe, evict := s.reg.idle(now, s.cfg.IdleWindow, s.cfg.Grace)

	for _, m := range probe {
		if err := m.Sub.Send(PingMessage); err != nil {
			// Sondu nejde ani zařadit - klient je mrtvý, nečekáme na grace.
			if _, ok := s.reg.Remove(m.Handle); ok {
				s.metrics.IdleEvictions.Inc()
				evicted++
				go m.Sub.Close()
			}
			continue
		}
		s.metrics.Probes.Inc()
		probed++
	}

	for _, m := range evict {
		s.logger.Info("Neaktivní live klient odpojen", "handle", m.Handle)
		s.metrics.IdleEvictions.Inc()
		evicted++
		go m.Sub.Close()
	}
	return probed, evicted
}
