package store

import (
	"context"
	"log/slog"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// Repository zapouzdřuje práci s úložišti.
// Zbytek aplikace neví, jak se píše SQL nebo Lua, jen volá metody repozitáře.
//
// Cold Path: primární Store (Postgres nebo paměť) - zdroj pravdy.
// Hot Path: volitelná LiveCache ve Valkey s posledním stavem zařízení.
type Repository struct {
	Store
	live   *LiveCache
	logger *slog.Logger
}

// NewRepository - live může být nil (Valkey není nakonfigurované).
func NewRepository(primary Store, live *LiveCache, logger *slog.Logger) *Repository {
	return &Repository{Store: primary, live: live, logger: logger}
}

// Append uloží záznam do primárního úložiště a pak aktualizuje cache.
// Chyba cache není kritická pro integritu dat (máme je v PG), proto ji jen logujeme.
func (r *Repository) Append(ctx context.Context, rec telemetry.Record) (int64, error) {
	seq, err := r.Store.Append(ctx, rec)
	if err != nil {
		return 0, err
	}

	if r.live != nil {
		rec.SequenceID = seq
		if _, err := r.live.Put(ctx, rec); err != nil {
			r.logger.Warn("Live cache se nepodařilo aktualizovat", "device_id", rec.DeviceID, "error", err)
		}
	}
	return seq, nil
}

// Live vrací aktuální stav zařízení z Valkey.
// Bez cache (nebo při její chybě) se použije dotaz do primárního úložiště.
func (r *Repository) Live(ctx context.Context) ([]telemetry.Record, error) {
	if r.live != nil {
		recs, err := r.live.Latest(ctx)
		if err == nil {
			return recs, nil
		}
		r.logger.Warn("Valkey nedostupné, čtu z primárního úložiště", "error", err)
	}
	return r.Store.LatestPerDevice(ctx)
}
