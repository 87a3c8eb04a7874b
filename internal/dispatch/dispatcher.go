// Package dispatch implements the Alert Dispatcher (C9): id-based
// deduplication and ordered, exception-isolated fan-out to subscribers.
package dispatch

import (
	"sync"

	"setbull_trader/internal/domain"
	"setbull_trader/pkg/apperrors"
	"setbull_trader/pkg/log"
)

// evictThreshold and evictBatch implement §4.9's bounded dedupe set: once
// it exceeds 1000 ids, the oldest 500 are evicted FIFO.
const (
	evictThreshold = 1000
	evictBatch     = 500
)

// Subscriber receives fired alerts; a panic or returned error is isolated
// per §4.9/§7 DispatchError and never prevents other subscribers from
// running.
type Subscriber func(alert domain.Alert) error

type subscriberHandle struct {
	id int
	fn Subscriber
}

// Dispatcher owns the dedupe set and the subscriber list. A single
// instance belongs to one Scanner/Orchestrator (§4.9 design note: no
// process-wide state).
type Dispatcher struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	order       []string // FIFO order of seen ids, for eviction
	subscribers []subscriberHandle
	nextID      int

	// auditSink, if set, receives every fired alert best-effort — see
	// internal/repository's gorm-backed alert audit sink. Failure here
	// never blocks or fails dispatch.
	auditSink Subscriber
}

// New builds an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{seen: make(map[string]struct{})}
}

// Subscribe registers a subscriber and returns an unsubscribe handle.
func (d *Dispatcher) Subscribe(fn Subscriber) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subscribers = append(d.subscribers, subscriberHandle{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, h := range d.subscribers {
			if h.id == id {
				d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
				break
			}
		}
	}
}

// SetAuditSink installs the optional best-effort persistence subscriber.
func (d *Dispatcher) SetAuditSink(fn Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.auditSink = fn
}

// Fire implements §4.9: rejects a duplicate id, otherwise records it and
// invokes every subscriber in registration order, isolating each one's
// failure from the rest.
func (d *Dispatcher) Fire(alert domain.Alert) bool {
	d.mu.Lock()
	if _, dup := d.seen[alert.ID]; dup {
		d.mu.Unlock()
		return false
	}
	d.seen[alert.ID] = struct{}{}
	d.order = append(d.order, alert.ID)
	if len(d.order) > evictThreshold {
		for _, id := range d.order[:evictBatch] {
			delete(d.seen, id)
		}
		d.order = append([]string(nil), d.order[evictBatch:]...)
	}
	subs := append([]subscriberHandle(nil), d.subscribers...)
	audit := d.auditSink
	d.mu.Unlock()

	for _, h := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.AlertError(string(alert.Type), alert.Symbol, "subscriber panicked", apperrors.NewDispatchError("subscriber", nil), map[string]interface{}{"recovered": r})
				}
			}()
			if err := h.fn(alert); err != nil {
				log.AlertError(string(alert.Type), alert.Symbol, "subscriber returned error", apperrors.NewDispatchError("subscriber", err), nil)
			}
		}()
	}
	if audit != nil {
		func() {
			defer func() { _ = recover() }()
			_ = audit(alert)
		}()
	}
	return true
}

// Clear resets the dedupe set — invoked by updateConfig (§4.10), since new
// filters may reclassify prior bars.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
	d.order = nil
}
