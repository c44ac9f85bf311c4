package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxInboundMessage - klienti posílají jen krátké zprávy (pong, keepalive).
const maxInboundMessage = 4096

// wsSubscriber je jedno WebSocket spojení.
// Odchozí zprávy jdou přes omezenou frontu a do socketu je zapisuje jediná gorutina (writePump),
// gorilla/websocket nepodporuje souběžné zápisy.
type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	finished     chan struct{}
	writeTimeout time.Duration

	once        sync.Once
	closeCode   int
	closeReason string
}

func newWSSubscriber(id string, conn *websocket.Conn, buffer int, writeTimeout time.Duration) *wsSubscriber {
	if buffer < 1 {
		buffer = 1
	}
	return &wsSubscriber{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send zařadí zprávu do fronty. Nikdy neblokuje.
func (s *wsSubscriber) Send(msg []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close ukončí spojení s normálním close kódem. Opakované volání nic nedělá.
func (s *wsSubscriber) Close() error {
	s.closeWith(websocket.CloseNormalClosure, "")
	return nil
}

func (s *wsSubscriber) closeWith(code int, reason string) {
	s.once.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
	})
}

// writePump je jediný zapisovatel do socketu. Po skončení zavře spojení,
// tím se odblokuje i readPump.
func (s *wsSubscriber) writePump() {
	defer close(s.finished)
	defer s.conn.Close()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close()
				return
			}

		case <-s.done:
			// closeCode je zapsaný před close(done), čtení je tedy bezpečné.
			deadline := time.Now().Add(s.writeTimeout)
			if s.closeCode == websocket.CloseGoingAway {
				s.flush(deadline)
			}
			frame := websocket.FormatCloseMessage(s.closeCode, s.closeReason)
			s.conn.WriteControl(websocket.CloseMessage, frame, deadline)
			return
		}
	}
}

// flush při vypínání dopíše zprávy, které už jsou ve frontě.
func (s *wsSubscriber) flush(deadline time.Time) {
	s.conn.SetWriteDeadline(deadline)
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump čte příchozí zprávy jen kvůli detekci aktivity. Obsah ignorujeme.
// Vrací se, když klient odejde nebo se spojení zavře.
func (s *wsSubscriber) readPump(onActivity func()) {
	s.conn.SetReadLimit(maxInboundMessage)
	s.conn.SetPongHandler(func(string) error {
		onActivity()
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		onActivity()
	}
}
