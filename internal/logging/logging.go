// Package logging nastavuje slog logger sdílený všemi službami.
//
// Služby s MQTT spojením posílají každý řádek logu i do topicu logs/<služba>,
// odkud je sbírá log-collector.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel převede LOG_LEVEL na slog.Level. Neznámá hodnota = info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New vytvoří JSON logger (standard pro kontejnery) zapisující do out.
func New(out io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// NewWithMQTT píše do stdout i do MQTT zároveň.
// Klient musí existovat dřív než logger (slepice-vejce), proto se předává hotový.
func NewWithMQTT(client Publisher, service, level string) *slog.Logger {
	multi := io.MultiWriter(os.Stdout, NewMqttLogWriter(client, service))
	return New(multi, level).With("service", service)
}
