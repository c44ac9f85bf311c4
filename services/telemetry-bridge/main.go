package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/bridge"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/bus"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/httpapi"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/logging"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/store"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/stream"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

const serviceName = "telemetry-bridge"

func main() {
	// 1. Konfigurace
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Neplatná konfigurace", "error", err)
		os.Exit(1)
	}

	// 2. Metriky - vlastní registr, ať /metrics obsahuje jen to, co opravdu exportujeme.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	// 3. MQTT klient musí vzniknout DŘÍV než logger, který do něj píše.
	source := bus.NewSource(bus.Config{
		Broker:         cfg.MQTTBroker,
		ClientID:       cfg.MQTTClientID + "-" + uuid.NewString()[:8],
		Username:       cfg.MQTTUsername,
		Password:       cfg.MQTTPassword,
		Topics:         cfg.MQTTTopics,
		QoS:            cfg.MQTTQoS,
		QueueSize:      cfg.BusQueueSize,
		EnqueueTimeout: cfg.BusEnqueueTimeout,
		ConnectRetry:   cfg.MQTTConnectRetry,
	}, slog.Default(), m)

	logger := logging.NewWithMQTT(source.Client(), serviceName, cfg.LogLevel)
	slog.SetDefault(logger)
	source.SetLogger(logger)

	logger.Info("Spouštím Telemetry Bridge", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Úložiště (Cold Path) + volitelná live cache (Hot Path)
	primary, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Kritická chyba: úložiště není dostupné", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	live, closeLive := openLiveCache(ctx, cfg, logger)
	defer closeLive()
	repo := store.NewRepository(primary, live, logger)

	// 5. Live stream: registr odběratelů, broadcaster, WebSocket endpoint, sweeper
	registry := stream.NewRegistry(m)
	broadcaster := stream.NewBroadcaster(registry, logger, m)
	wsServer := stream.NewServer(registry, stream.ServerConfig{
		SendBuffer:   cfg.WSSendBuffer,
		WriteTimeout: cfg.WSWriteTimeout,
	}, logger)
	sweeper := stream.NewSweeper(registry, stream.SweeperConfig{
		IdleWindow: cfg.IdleWindow,
		Grace:      cfg.GraceWindow,
		Interval:   cfg.SweepInterval,
	}, logger, m)

	// 6. Koordinátor: Normalize -> Append -> Publish
	normalizer := telemetry.NewNormalizer(cfg.DefaultUnits, time.Now)
	coordinator := bridge.NewCoordinator(normalizer, repo, broadcaster, cfg.StoreTimeout, logger, m)

	// 7. HTTP: REST dotazy, WebSocket, health, metriky
	health := func(context.Context) httpapi.Health {
		n := registry.Len()
		state := source.State()
		h := httpapi.Health{Status: "ok", Bus: state.String(), Subscribers: &n}
		if state != bus.Subscribed {
			h.Status = "degraded"
		}
		return h
	}

	mux := http.NewServeMux()
	httpapi.NewAPIHandler(repo, repo, health, logger).RegisterRoutes(mux)
	mux.Handle("GET "+cfg.WSPath, wsServer)
	mux.Handle("GET /metrics", httpapi.MetricsHandler(promReg))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpapi.CorsMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 8. Připojení k MQTT. S MQTT_CONNECT_RETRY=true se paho připojuje na pozadí.
	if err := source.Start(ctx); err != nil {
		logger.Error("Kritická chyba: MQTT", "error", err)
		os.Exit(1)
	}

	// 9. Běh: ingestion, sweeper a HTTP v samostatných gorutinách
	g, gctx := errgroup.WithContext(ctx)
	coordinatorDone := make(chan struct{})

	g.Go(func() error {
		defer close(coordinatorDone)
		coordinator.Run(gctx, source.Messages())
		return nil
	})

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server naslouchá", "address", server.Addr, "ws_path", cfg.WSPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 10. Graceful shutdown: nejdřív přestat brát z busu, dozpracovat frontu,
	// pak zavřít live klienty a nakonec HTTP server.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Ukončuji službu...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		source.Stop()
		select {
		case <-coordinatorDone:
		case <-shutdownCtx.Done():
			logger.Warn("Koordinátor nestihl dozpracovat frontu")
		}

		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Live klienti se nestihli odpojit", "error", err)
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Služba skončila s chybou", "error", err)
		os.Exit(1)
	}
	logger.Info("Služba ukončena")
}

// openStore vybere úložiště podle STORE_DRIVER. U Postgresu nejdřív pustí migrace.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Používám úložiště v paměti - data nepřežijí restart", "max_records", cfg.MemoryMaxRecords)
		return store.NewMemoryStore(cfg.MemoryMaxRecords), func() {}, nil
	}

	if cfg.Migrate {
		if err := store.Migrate(cfg.PostgresURL); err != nil {
			return nil, nil, err
		}
		logger.Info("Migrace databáze hotové")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := store.Connect(connectCtx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

// openLiveCache připojí Valkey live cache, pokud je nakonfigurovaná. Výpadek cache není fatální,
// zápisy do ní se jen zalogují.
//
// U úložiště v paměti se cache nepoužije: sequence_id po restartu začíná znovu od 1 a záznamy
// z předchozího běhu s vyšším sequence_id by ve Valkey vyhrávaly až do vypršení TTL.
func openLiveCache(ctx context.Context, cfg Config, logger *slog.Logger) (*store.LiveCache, func()) {
	if cfg.ValkeyAddr == "" {
		return nil, func() {}
	}
	if cfg.StoreDriver == "memory" {
		logger.Warn("Live cache vypnutá: úložiště v paměti nemá trvalé sequence_id", "addr", cfg.ValkeyAddr)
		return nil, func() {}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.ValkeyAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Valkey zatím nedostupné, live cache se zkusí při dalším zápisu", "addr", cfg.ValkeyAddr, "error", err)
	}
	return store.NewLiveCache(rdb, cfg.LiveTTL), func() { rdb.Close() }
}
