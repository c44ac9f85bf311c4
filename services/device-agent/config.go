package main

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config - device-agent měří hostitele a posílá hodnoty jako IoT zařízení.
type Config struct {
	MQTTBroker   string
	MQTTClientID string

	// DeviceID: pod tímto jménem se zařízení objeví v dashboardu (default hostname).
	DeviceID string

	// Interval měření (např. "5s", "1m")
	Interval time.Duration

	BandwidthTopic   string
	TemperatureTopic string
	CPUTopic         string // prázdné = neposílat
	MemoryTopic      string // prázdné = neposílat

	// NetInterface: jen toto rozhraní (např. "eth0"). Prázdné = součet všech kromě loopbacku.
	NetInterface string

	LogLevel string
}

func LoadConfig() Config {
	v := viper.New()
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "device-agent"
	}

	v.SetDefault("MQTT_BROKER", "tcp://mosquitto:1883")
	v.SetDefault("MQTT_CLIENT_ID", "device-agent-"+hostname)
	v.SetDefault("DEVICE_ID", hostname)
	v.SetDefault("PUBLISH_INTERVAL", "5s")
	v.SetDefault("BANDWIDTH_TOPIC", "iot/bandwidth")
	v.SetDefault("TEMPERATURE_TOPIC", "iot/temperature")
	v.SetDefault("CPU_TOPIC", "iot/cpu")
	v.SetDefault("MEMORY_TOPIC", "iot/memory")
	v.SetDefault("NET_INTERFACE", "")
	v.SetDefault("LOG_LEVEL", "info")

	interval, err := time.ParseDuration(v.GetString("PUBLISH_INTERVAL"))
	if err != nil || interval <= 0 {
		interval = 5 * time.Second
	}

	return Config{
		MQTTBroker:       v.GetString("MQTT_BROKER"),
		MQTTClientID:     v.GetString("MQTT_CLIENT_ID"),
		DeviceID:         v.GetString("DEVICE_ID"),
		Interval:         interval,
		BandwidthTopic:   v.GetString("BANDWIDTH_TOPIC"),
		TemperatureTopic: v.GetString("TEMPERATURE_TOPIC"),
		CPUTopic:         v.GetString("CPU_TOPIC"),
		MemoryTopic:      v.GetString("MEMORY_TOPIC"),
		NetInterface:     v.GetString("NET_INTERFACE"),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}
}
