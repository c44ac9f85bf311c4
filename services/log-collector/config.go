package main

import (
	"strings"

	"github.com/spf13/viper"
)

// Config drží nastavení Log Collectoru. Hodnoty jdou z ENV (případně .env).
type Config struct {
	MQTTBroker   string
	MQTTClientID string

	// LogTopic: Topic, na kterém posloucháme logy (např. "logs/#")
	LogTopic string

	// LogDir: adresář pro soubory <služba>.log. V Dockeru typicky volume.
	LogDir string

	// Rotace (lumberjack): velikost v MB, počet záloh, stáří ve dnech.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	LogLevel string
}

func LoadConfig() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env je volitelný

	v.AutomaticEnv()

	v.SetDefault("MQTT_BROKER", "tcp://mosquitto:1883")
	v.SetDefault("MQTT_CLIENT_ID", "log-collector")
	v.SetDefault("LOG_TOPIC", "logs/#")
	v.SetDefault("LOG_DIR", "/var/log/iot-app")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 14)
	v.SetDefault("LOG_COMPRESS", true)
	v.SetDefault("LOG_LEVEL", "info")

	return Config{
		MQTTBroker:   v.GetString("MQTT_BROKER"),
		MQTTClientID: v.GetString("MQTT_CLIENT_ID"),
		LogTopic:     strings.TrimSpace(v.GetString("LOG_TOPIC")),
		LogDir:       v.GetString("LOG_DIR"),
		MaxSizeMB:    v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups:   v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays:   v.GetInt("LOG_MAX_AGE_DAYS"),
		Compress:     v.GetBool("LOG_COMPRESS"),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}
}
