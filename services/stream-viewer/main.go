package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/logging"
	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	// Stdout patří TUI, logy jdou do souboru.
	var out io.Writer = io.Discard
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: 10, MaxBackups: 2}
		defer lj.Close()
		out = lj
	}
	logger := logging.New(out, cfg.LogLevel).With("service", "stream-viewer")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	normalizer := telemetry.NewNormalizer(cfg.DefaultUnits, time.Now)
	events := make(chan Event, 64)
	go NewFeed(cfg.WSURL, normalizer, logger).Run(ctx, events)

	var api *APIClient
	if cfg.APIURL != "" {
		api = NewAPIClient(cfg.APIURL)
	}

	logger.Info("Startuji stream-viewer", "ws_url", cfg.WSURL, "api_url", cfg.APIURL)
	_, err = tea.NewProgram(NewModel(events, api), tea.WithAltScreen()).Run()
	return err
}
