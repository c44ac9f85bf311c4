// Package store je trvalé úložiště kanonických záznamů.
//
// Úložiště je append-only: záznam se jednou vloží a už nikdy nemění.
// SequenceID přiděluje úložiště a je striktně rostoucí podle pořadí vložení.
package store

import (
	"context"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// Výchozí limity dotazů (odpovídají původnímu API).
const (
	DefaultRecentLimit = 500
	DefaultDeviceLimit = 20
	MaxLimit           = 5000
)

// Appender je jediná zápisová operace. Chyba zápisu se vždy vrací volajícímu.
type Appender interface {
	Append(ctx context.Context, rec telemetry.Record) (int64, error)
}

// Reader je read-only dotazovací rozhraní, které používá HTTP vrstva.
// Všechny seznamy jsou seřazené od nejnovějšího záznamu.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]telemetry.Record, error)
	LatestPerDevice(ctx context.Context) ([]telemetry.Record, error)
	RecentForDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.Record, error)
}

// Store = zápis + dotazy.
type Store interface {
	Appender
	Reader
}
