package stream

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
)

// recordingSubscriber ukládá všechny zprávy; se sendErr simuluje pomalého nebo mrtvého klienta.
type recordingSubscriber struct {
	mu      sync.Mutex
	msgs    [][]byte
	sends   int
	closes  int
	sendErr error
	onSend  func([]byte)
}

func (r *recordingSubscriber) Send(msg []byte) error {
	r.mu.Lock()
	r.sends++
	err := r.sendErr
	if err == nil {
		r.msgs = append(r.msgs, append([]byte(nil), msg...))
	}
	hook := r.onSend
	r.mu.Unlock()

	if hook != nil && err == nil {
		hook(msg)
	}
	return err
}

func (r *recordingSubscriber) Close() error {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	return nil
}

func (r *recordingSubscriber) messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.msgs...)
}

func (r *recordingSubscriber) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends
}

func (r *recordingSubscriber) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(nil)
}

// waitFor čeká na podmínku splněnou asynchronně (Close běží v gorutině).
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
