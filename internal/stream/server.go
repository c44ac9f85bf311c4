package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerConfig - parametry WebSocket endpointu.
type ServerConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

// Server přijímá WebSocket spojení a registruje je jako odběratele.
type Server struct {
	reg      *Registry
	cfg      ServerConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	closing bool
	active  sync.WaitGroup
}

// NewServer - konstruktor.
func NewServer(reg *Registry, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboardy běží na jiném originu, stejně jako u REST API povolujeme vše.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP obslouží jedno spojení po celou dobu jeho života.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, ErrShuttingDown.Error(), http.StatusServiceUnavailable)
		return
	}
	s.active.Add(1)
	s.mu.Unlock()
	defer s.active.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader už klientovi poslal HTTP chybu.
		s.logger.Warn("WebSocket upgrade selhal", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := newWSSubscriber(uuid.NewString(), conn, s.cfg.SendBuffer, s.cfg.WriteTimeout)
	h := s.reg.Add(sub)

	// Shutdown mohl proběhnout mezi kontrolou a registrací - pak by nás Drain minul.
	if s.isClosing() {
		s.reg.Remove(h)
		sub.closeWith(websocket.CloseGoingAway, "server shutdown")
	}

	s.logger.Info("Live klient připojen", "client_id", sub.id, "remote", r.RemoteAddr, "subscribers", s.reg.Len())

	go sub.writePump()
	sub.readPump(func() { s.reg.Touch(h) })

	s.reg.Remove(h)
	sub.Close()
	<-sub.finished

	s.logger.Info("Live klient odpojen", "client_id", sub.id, "subscribers", s.reg.Len())
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown přestane přijímat nová spojení, všem klientům pošle close frame (going away)
// a počká, až obslužné gorutiny doběhnou, nejdéle do vypršení ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	members := s.reg.Drain()
	for _, m := range members {
		if ws, ok := m.Sub.(*wsSubscriber); ok {
			ws.closeWith(websocket.CloseGoingAway, "server shutdown")
			continue
		}
		m.Sub.Close()
	}
	s.logger.Info("Live stream se vypíná", "closed", len(members))

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
