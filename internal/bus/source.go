// Package bus obaluje MQTT klienta (paho) a převádí callbacky na omezenou frontu zpráv.
//
// Paho volá handler ve své gorutině. Handler jen zařadí (topic, payload) do fronty,
// zpracování běží v koordinátoru, který si frontu vyzvedává sám.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
)

// ErrQueueFull - zpráva zahozena, koordinátor nestihl frontu vyprázdnit.
var ErrQueueFull = errors.New("bus: fronta je plná")

const subscribeAttempts = 3

// State je stav připojení k brokeru.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Subscribed:
		return "SUBSCRIBED"
	default:
		return "DISCONNECTED"
	}
}

// Message je jedna zpráva z busu. Payload je kopie, paho buffer nedržíme.
type Message struct {
	Topic   string
	Payload []byte
}

// Config - parametry připojení a fronty.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topics         []string
	QoS            byte
	QueueSize      int
	EnqueueTimeout time.Duration
	// ConnectRetry=false: Start čeká na první připojení a jeho selhání vrací jako chybu.
	ConnectRetry bool
}

// Source je zdroj zpráv z MQTT.
type Source struct {
	cfg     Config
	client  mqtt.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	state            atomic.Int32
	subscribeBackoff time.Duration

	mu     sync.RWMutex // chrání closed vůči handleru, který právě zapisuje do fronty
	closed bool
	queue  chan Message
}

// NewSource připraví klienta, ale ještě se nepřipojuje.
func NewSource(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Source {
	s := newSource(cfg, logger, m)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(cfg.ConnectRetry).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(s.onReconnecting)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	s.client = mqtt.NewClient(opts)
	return s
}

func newSource(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Source {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = time.Second
	}
	return &Source{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		queue:   make(chan Message, cfg.QueueSize),

		subscribeBackoff: time.Second,
	}
}

// Messages vrací frontu pro koordinátora. Zavře se po Stop.
func (s *Source) Messages() <-chan Message {
	return s.queue
}

// State vrací aktuální stav připojení.
func (s *Source) State() State {
	return State(s.state.Load())
}

// Client - sdílený klient, přes který se publikují i logy.
func (s *Source) Client() mqtt.Client {
	return s.client
}

// SetLogger vymění logger. Logger, který píše do MQTT, jde vytvořit až nad hotovým
// klientem, proto se volá v main před Start.
func (s *Source) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start zahájí připojení. Odběr topiců proběhne v onConnect, takže se zopakuje
// po každém reconnectu.
func (s *Source) Start(ctx context.Context) error {
	s.state.Store(int32(Connecting))
	token := s.client.Connect()

	if s.cfg.ConnectRetry {
		// Paho se připojuje na pozadí, dokud to nevyjde.
		return nil
	}

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		s.state.Store(int32(Disconnected))
		return fmt.Errorf("nelze se připojit k MQTT %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Stop odpojí klienta a zavře frontu. Zprávy, které už ve frontě jsou, zůstanou
// koordinátorovi k dořešení.
func (s *Source) Stop() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.state.Store(int32(Disconnected))

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
}

// onConnect se volá po prvním připojení i po každém reconnectu.
// SubscribeMultiple se stejnou sadou topiců je idempotentní.
func (s *Source) onConnect(c mqtt.Client) {
	filters := make(map[string]byte, len(s.cfg.Topics))
	for _, t := range s.cfg.Topics {
		filters[t] = s.cfg.QoS
	}

	var err error
	for attempt := 1; attempt <= subscribeAttempts; attempt++ {
		token := c.SubscribeMultiple(filters, s.handle)
		if token.Wait() && token.Error() == nil {
			s.state.Store(int32(Subscribed))
			s.logger.Info("Připojeno k MQTT, poslouchám", "broker", s.cfg.Broker, "topics", s.cfg.Topics)
			return
		}
		err = token.Error()
		s.logger.Warn("Subscribe selhal", "topics", s.cfg.Topics, "attempt", attempt, "error", err)
		time.Sleep(s.subscribeBackoff)
	}

	// Připojení drží, ale bez odběru. Další pokus přijde s dalším reconnectem.
	s.state.Store(int32(Connecting))
	s.logger.Error("Topicy se nepodařilo odebírat", "topics", s.cfg.Topics, "error", err)
}

func (s *Source) onConnectionLost(_ mqtt.Client, err error) {
	s.state.Store(int32(Disconnected))
	s.logger.Warn("Spojení s MQTT ztraceno", "error", err)
}

func (s *Source) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	s.state.Store(int32(Connecting))
	s.logger.Info("Znovu se připojuji k MQTT", "broker", s.cfg.Broker)
}

// handle zařadí zprávu do fronty. Čeká nejvýš EnqueueTimeout, pak zprávu zahodí,
// aby se nezastavil paho router (a s ním keepalive).
func (s *Source) handle(_ mqtt.Client, msg mqtt.Message) {
	m := Message{Topic: msg.Topic(), Payload: append([]byte(nil), msg.Payload()...)}
	s.metrics.BusReceived.WithLabelValues(s.filterFor(m.Topic)).Inc()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- m:
		s.metrics.BusQueue.Set(float64(len(s.queue)))
		return
	default:
	}

	timer := time.NewTimer(s.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case s.queue <- m:
		s.metrics.BusQueue.Set(float64(len(s.queue)))
	case <-timer.C:
		s.metrics.BusDropped.Inc()
		s.logger.Warn("Zpráva zahozena", "topic", m.Topic, "error", ErrQueueFull)
	}
}

// otherFilter - label pro zprávy, které žádnému filtru neodpovídají (neměly by přijít).
const otherFilter = "other"

// filterFor vrátí nakonfigurovaný filtr, kterému topic odpovídá. Metrika se labeluje
// filtrem, ne topicem, aby "iot/#" nevyrobilo label pro každé zařízení.
func (s *Source) filterFor(topic string) string {
	for _, f := range s.cfg.Topics {
		if MatchTopic(f, topic) {
			return f
		}
	}
	return otherFilter
}

// MatchTopic porovná MQTT topic s filtrem (wildcardy "+" a "#").
func MatchTopic(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
