package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/httpapi"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/logging"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/store"
)

// Home API je samostatná read-only instance dotazovacího API.
// Nepřipojuje se k MQTT, jen čte to, co uložil telemetry-bridge.
func main() {
	// 1. Konfigurace a logování na JSON (standard pro kontejnery)
	cfg := LoadConfig()
	logger := logging.New(os.Stdout, cfg.LogLevel)
	logger.Info("Startuji Home API", "port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Připojení k databázi (Postgres/TimescaleDB)
	dbPool, err := store.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k DB", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// 3. Připojení k Valkey (volitelné)
	var live *store.LiveCache
	if cfg.ValkeyAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.ValkeyAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Kritická chyba: Nelze se připojit k Valkey", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		live = store.NewLiveCache(rdb, 0)
	}

	// 4. Wiring: repozitář -> API handler
	repo := store.NewRepository(store.NewPostgresStore(dbPool), live, logger)

	health := func(ctx context.Context) httpapi.Health {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
		defer cancel()
		if err := dbPool.Ping(pingCtx); err != nil {
			return httpapi.Health{Status: "degraded"}
		}
		return httpapi.Health{Status: "ok"}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	mux := http.NewServeMux()
	httpapi.NewAPIHandler(repo, repo, health, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", httpapi.MetricsHandler(promReg))

	// 5. HTTP server - handler obalíme CorsMiddlewarem a timeoutem na dotazy.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpapi.CorsMiddleware(http.TimeoutHandler(mux, cfg.QueryTimeout, "timeout")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP server naslouchá", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server spadl", "error", err)
		os.Exit(1)
	}
	logger.Info("Home API ukončeno")
}
