// Package httpapi vystavuje read-only REST API nad úložištěm telemetrie.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/store"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

var errBadLimit = errors.New("parametr limit musí být celé číslo")

// LiveReader vrací poslední stav zařízení z hot cache (store.Repository).
type LiveReader interface {
	Live(ctx context.Context) ([]telemetry.Record, error)
}

// Health je odpověď /health.
type Health struct {
	Status      string `json:"status"` // "ok" nebo "degraded"
	Bus         string `json:"bus,omitempty"`
	Subscribers *int   `json:"subscribers,omitempty"`
}

// HealthFunc sestaví aktuální stav služby.
type HealthFunc func(ctx context.Context) Health

// APIHandler sdružuje metody pro obsluhu HTTP požadavků.
type APIHandler struct {
	reader store.Reader
	live   LiveReader
	health HealthFunc
	logger *slog.Logger
}

// NewAPIHandler - live a health můžou být nil.
func NewAPIHandler(reader store.Reader, live LiveReader, health HealthFunc, logger *slog.Logger) *APIHandler {
	return &APIHandler{reader: reader, live: live, health: health, logger: logger}
}

// RegisterRoutes mapuje URL cesty na handlery (router z Go 1.22+ s metodami a wildcardy).
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Původní dashboard endpointy
	mux.HandleFunc("GET /data", h.handleRecent(store.DefaultRecentLimit))
	mux.HandleFunc("GET /latest", h.handleLatest)

	// REST API
	mux.HandleFunc("GET /api/telemetry", h.handleRecent(10))
	mux.HandleFunc("GET /api/telemetry/{device_id}", h.handleDevice)
	mux.HandleFunc("GET /api/live", h.handleLive)

	mux.HandleFunc("GET /health", h.handleHealth)
}

// MetricsHandler vystaví Prometheus metriky z daného registru.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// handleRecent: GET /data?limit=500, GET /api/telemetry?limit=10
func (h *APIHandler) handleRecent(def int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, def)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		recs, err := h.reader.Recent(r.Context(), limit)
		if err != nil {
			h.logger.Error("Chyba při čtení posledních záznamů", "limit", limit, "error", err)
			http.Error(w, "Interní chyba serveru", http.StatusInternalServerError)
			return
		}
		h.writeRecords(w, recs)
	}
}

// handleLatest: GET /latest - poslední záznam každého zařízení (zdroj pravdy je úložiště).
func (h *APIHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	recs, err := h.reader.LatestPerDevice(r.Context())
	if err != nil {
		h.logger.Error("Chyba při čtení posledních hodnot", "error", err)
		http.Error(w, "Interní chyba serveru", http.StatusInternalServerError)
		return
	}
	h.writeRecords(w, recs)
}

// handleDevice: GET /api/telemetry/{device_id}?limit=20
func (h *APIHandler) handleDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	limit, err := parseLimit(r, store.DefaultDeviceLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	recs, err := h.reader.RecentForDevice(r.Context(), deviceID, limit)
	if err != nil {
		h.logger.Error("Chyba při čtení historie zařízení", "device_id", deviceID, "error", err)
		http.Error(w, "Chyba při načítání dat", http.StatusInternalServerError)
		return
	}
	h.writeRecords(w, recs)
}

// handleLive: GET /api/live - hot path z Valkey, bez cache z úložiště.
func (h *APIHandler) handleLive(w http.ResponseWriter, r *http.Request) {
	var (
		recs []telemetry.Record
		err  error
	)
	if h.live != nil {
		recs, err = h.live.Live(r.Context())
	} else {
		recs, err = h.reader.LatestPerDevice(r.Context())
	}
	if err != nil {
		h.logger.Error("Chyba při čtení live stavu", "error", err)
		http.Error(w, "Interní chyba serveru", http.StatusInternalServerError)
		return
	}
	h.writeRecords(w, recs)
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := Health{Status: "ok"}
	if h.health != nil {
		status = h.health(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (h *APIHandler) writeRecords(w http.ResponseWriter, recs []telemetry.Record) {
	if recs == nil {
		recs = []telemetry.Record{} // prázdné pole, ne null
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		h.logger.Error("Chyba při zápisu JSON odpovědi", "error", err)
	}
}

// parseLimit přečte ?limit=N. Chybějící hodnota = def, mimo rozsah se ořízne na [1, MaxLimit].
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadLimit
	}
	return min(max(n, 1), store.MaxLimit), nil
}

// CorsMiddleware přidá CORS hlavičky, aby API šlo volat z dashboardu na jiném originu.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
