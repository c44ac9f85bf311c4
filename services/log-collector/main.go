package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/logging"
)

func main() {
	cfg := LoadConfig()

	// Collector loguje jen na stdout. Kdyby psal do logs/#, četl by sám sebe.
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Startuji Log Collector", "dir", cfg.LogDir, "topic", cfg.LogTopic)

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		logger.Error("Nelze vytvořit adresář pro logy", "error", err)
		os.Exit(1)
	}

	collector := NewCollector(cfg)
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error("Chyba při zavírání souborů", "error", err)
		}
	}()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := collector.Write(msg.Topic(), msg.Payload()); err != nil {
			logger.Warn("Log nelze uložit", "topic", msg.Topic(), "error", err)
		}
	}

	// Subscribe v OnConnect, aby se obnovil i po reconnectu.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			if token := c.Subscribe(cfg.LogTopic, 0, handler); token.Wait() && token.Error() != nil {
				logger.Error("Subscribe failed", "topic", cfg.LogTopic, "error", token.Error())
				return
			}
			logger.Info("Poslouchám logy", "topic", cfg.LogTopic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("Spojení s MQTT ztraceno", "error", err)
		})

	client := mqtt.NewClient(opts)
	client.Connect()
	defer client.Disconnect(250)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Ukončuji Log Collector", "services", collector.Services())
}
