package logging

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher je část mqtt.Client, kterou writer potřebuje.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MqttLogWriter implementuje io.Writer. Vše, co se do něj zapíše, se odešle do MQTT.
type MqttLogWriter struct {
	client Publisher
	topic  string
}

// NewMqttLogWriter - topic bude "logs/<serviceName>".
func NewMqttLogWriter(client Publisher, serviceName string) *MqttLogWriter {
	return &MqttLogWriter{
		client: client,
		topic:  fmt.Sprintf("logs/%s", serviceName),
	}
}

// Topic vrací cílový topic.
func (w *MqttLogWriter) Topic() string {
	return w.topic
}

// Write odešle řádek bez čekání na potvrzení (fire-and-forget), logování nesmí
// zdržovat aplikaci. Při výpadku brokeru paho vrátí chybu v tokenu, kterou ignorujeme -
// stdout větev MultiWriteru zůstává funkční.
func (w *MqttLogWriter) Write(p []byte) (int, error) {
	// slog buffer po návratu recykluje, payload musíme zkopírovat.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}
