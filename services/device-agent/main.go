package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/logging"
)

const serviceName = "device-agent"

func main() {
	// 1. Konfigurace
	cfg := LoadConfig()

	// 2. MQTT klient (musí existovat dřív než logger, který do něj píše)
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	client := mqtt.NewClient(opts)

	logger := logging.NewWithMQTT(client, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	token := client.Connect()
	if !token.WaitTimeout(30*time.Second) || token.Error() != nil {
		logger.Error("Selhalo připojení k MQTT", "broker", cfg.MQTTBroker, "error", token.Error())
		os.Exit(1) // Bez MQTT nemá smysl běžet
	}
	defer client.Disconnect(250)

	logger.Info("Startuji Device Agent", "device_id", cfg.DeviceID, "interval", cfg.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent := &Agent{
		cfg:     cfg,
		sampler: NewSampler(cfg.NetInterface),
		publish: func(topic string, payload []byte) error {
			t := client.Publish(topic, 0, false, payload)
			t.Wait() // QoS 0: čekáme jen na lokální odeslání
			return t.Error()
		},
		logger: logger,
		now:    time.Now,
	}
	agent.Run(ctx)

	logger.Info("Device Agent ukončen")
}
