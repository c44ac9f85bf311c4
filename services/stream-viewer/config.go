package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// Config - stream-viewer je jen klient: live stream z WebSocketu a počáteční stav z REST API.
type Config struct {
	// WSURL: live stream bridge (např. ws://telemetry-bridge:8080/ws)
	WSURL string
	// APIURL: odkud stáhnout poslední hodnoty při startu. Prázdné = bez snapshotu.
	APIURL string
	// DefaultUnits pro payloady bez jednotky, stejný formát jako u bridge.
	DefaultUnits map[string]string
	// LogFile: TUI zabírá terminál, logy proto jdou do souboru (prázdné = zahodit).
	LogFile  string
	LogLevel string
}

// LoadConfig čte flagy (--ws-url, --api-url, ...) a ENV. Flag má přednost před ENV.
func LoadConfig(args []string) (Config, error) {
	fs := pflag.NewFlagSet("stream-viewer", pflag.ContinueOnError)
	fs.String("ws-url", "ws://localhost:8080/ws", "WebSocket endpoint bridge")
	fs.String("api-url", "http://localhost:8080", "REST API pro počáteční snapshot")
	fs.String("default-units", "bandwidth:Mbps", "výchozí jednotky metrik (metric:unit,...)")
	fs.String("log-file", "", "soubor pro logy")
	fs.String("log-level", "info", "debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}

	return Config{
		WSURL:        v.GetString("ws-url"),
		APIURL:       strings.TrimRight(v.GetString("api-url"), "/"),
		DefaultUnits: telemetry.ParseDefaultUnits(v.GetString("default-units")),
		LogFile:      v.GetString("log-file"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
