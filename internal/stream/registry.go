// Package stream rozesílá kanonické záznamy live odběratelům (WebSocket).
//
// Registry vlastní množinu připojených odběratelů, Broadcaster z ní při každé publikaci
// bere snapshot a Sweeper odpojuje neaktivní spojení.
package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/metrics"
)

var (
	// ErrSlowConsumer - odběratel nestíhá číst a jeho fronta je plná.
	ErrSlowConsumer = errors.New("stream: odběratel nestíhá, fronta je plná")
	// ErrClosed - odběratel je už uzavřený.
	ErrClosed = errors.New("stream: odběratel je uzavřený")
	// ErrShuttingDown - server už nepřijímá nová spojení.
	ErrShuttingDown = errors.New("stream: server se vypíná")
)

// Subscriber je jedno otevřené odchozí spojení.
// Send nesmí blokovat - buď zprávu zařadí do fronty, nebo vrátí chybu.
type Subscriber interface {
	Send(msg []byte) error
	Close() error
}

// Handle identifikuje odběratele v registru. Nikdy se nerecykluje.
type Handle uint64

// Member je položka snapshotu.
type Member struct {
	Handle Handle
	Sub    Subscriber
}

type entry struct {
	sub        Subscriber
	lastActive time.Time
	probedAt   time.Time // nulový čas = sonda zatím neodešla
}

// Registry je thread-safe množina odběratelů.
// Zámek chrání jen mapu v paměti, nikdy se pod ním nevolá síťové I/O.
type Registry struct {
	mu      sync.RWMutex
	next    Handle
	members map[Handle]*entry

	now     func() time.Time
	metrics *metrics.Metrics
}

// NewRegistry - konstruktor.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		members: make(map[Handle]*entry),
		now:     time.Now,
		metrics: m,
	}
}

// Add zaregistruje odběratele a vrátí jeho handle.
func (r *Registry) Add(sub Subscriber) Handle {
	r.mu.Lock()
	r.next++
	h := r.next
	r.members[h] = &entry{sub: sub, lastActive: r.now()}
	n := len(r.members)
	r.mu.Unlock()

	r.metrics.Subscribers.Set(float64(n))
	return h
}

// Remove odebere odběratele. Druhé volání pro stejný handle vrátí false.
// Snapshoty vzniklé dříve se nemění - odebrání ovlivní jen budoucí publikace.
func (r *Registry) Remove(h Handle) (Subscriber, bool) {
	r.mu.Lock()
	e, ok := r.members[h]
	if ok {
		delete(r.members, h)
	}
	n := len(r.members)
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	r.metrics.Subscribers.Set(float64(n))
	return e.sub, true
}

// Snapshot vrátí kopii aktuální množiny. Volající ji může procházet bez zámku.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.members))
	for h, e := range r.members {
		out = append(out, Member{Handle: h, Sub: e.sub})
	}
	return out
}

// Len vrátí počet registrovaných odběratelů.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Touch zaznamená provoz na spojení (příchozí zpráva nebo doručený záznam).
// Zároveň ruší případnou nevyřízenou sondu.
func (r *Registry) Touch(h Handle) {
	r.mu.Lock()
	if e, ok := r.members[h]; ok {
		e.lastActive = r.now()
		e.probedAt = time.Time{}
	}
	r.mu.Unlock()
}

// Drain odebere všechny odběratele najednou (shutdown).
func (r *Registry) Drain() []Member {
	r.mu.Lock()
	out := make([]Member, 0, len(r.members))
	for h, e := range r.members {
		out = append(out, Member{Handle: h, Sub: e.sub})
	}
	r.members = make(map[Handle]*entry)
	r.mu.Unlock()

	r.metrics.Subscribers.Set(0)
	return out
}

// idle rozdělí neaktivní odběratele na ty, kterým se má poslat sonda, a ty, kteří
// po sondě mlčeli celé grace okno. Vystěhované rovnou odebere (pod stejným zámkem,
// aby se nepotkaly se souběžným Touch).
func (r *Registry) idle(now time.Time, idleWindow, grace time.Duration) (probe, evict []Member) {
	r.mu.Lock()
	for h, e := range r.members {
		switch {
		case e.probedAt.IsZero():
			if now.Sub(e.lastActive) >= idleWindow {
				e.probedAt = now
				probe = append(probe, Member{Handle: h, Sub: e.sub})
			}
		case now.Sub(e.probedAt) >= grace:
			delete(r.members, h)
			evict = append(evict, Member{Handle: h, Sub: e.sub})
		}
	}
	n := len(r.members)
	r.mu.Unlock()

	if len(evict) > 0 {
		r.metrics.Subscribers.Set(float64(n))
	}
	return probe, evict
}
