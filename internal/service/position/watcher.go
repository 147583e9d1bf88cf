// internal/service/position/watcher.go

package position

import (
	"sync"
	"time"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/position"
)

// DebounceConfig controls how aggressively raw position fixes are thinned
// before they reach consumers.
type DebounceConfig struct {
	// MinDistanceMeters is the movement below which an OK fix is suppressed.
	MinDistanceMeters float64

	// MaxInterval forces a fix through even without movement, so consumers
	// can distinguish "stationary" from "stale".
	MaxInterval time.Duration
}

// Debouncer filters a stream of raw position fixes down to the ones worth
// re-evaluating access and ranking against. Status changes always pass
// through; only small movements of an OK fix are suppressed.
type Debouncer struct {
	config DebounceConfig

	mu          sync.Mutex
	hasLast     bool
	last        position.Fix
	lastForward time.Time
}

// NewDebouncer creates a debouncer with the given thresholds.
func NewDebouncer(config DebounceConfig) *Debouncer {
	return &Debouncer{config: config}
}

// Offer feeds a raw fix in and reports whether consumers should see it.
func (d *Debouncer) Offer(fix position.Fix) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasLast {
		d.accept(fix)
		return true
	}

	// Permission and availability changes must reach consumers immediately
	// so access decisions can flip to the right denial reason.
	if fix.Status != d.last.Status {
		d.accept(fix)
		return true
	}

	if !fix.OK() {
		// Repeated failures of the same kind carry no new information.
		if fix.At.Sub(d.lastForward) >= d.config.MaxInterval {
			d.accept(fix)
			return true
		}
		return false
	}

	if geo.DistanceMeters(d.last.Position, fix.Position) >= d.config.MinDistanceMeters {
		d.accept(fix)
		return true
	}

	if fix.At.Sub(d.lastForward) >= d.config.MaxInterval {
		d.accept(fix)
		return true
	}

	return false
}

func (d *Debouncer) accept(fix position.Fix) {
	d.hasLast = true
	d.last = fix
	d.lastForward = fix.At
}

// Last returns the most recently forwarded fix, if any.
func (d *Debouncer) Last() (position.Fix, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// Watcher fans debounced fixes out to subscribers. Each connected client
// session owns one watcher; its feed goroutine calls Publish with raw
// fixes and subscribers receive only the debounced stream.
type Watcher struct {
	debouncer *Debouncer

	mu     sync.Mutex
	subs   map[uint64]chan position.Fix
	nextID uint64
	closed bool
}

// NewWatcher creates a watcher around the given debouncer.
func NewWatcher(debouncer *Debouncer) *Watcher {
	return &Watcher{
		debouncer: debouncer,
		subs:      make(map[uint64]chan position.Fix),
	}
}

// Publish offers a raw fix; if the debouncer forwards it, all subscribers
// receive it. Slow subscribers miss fixes rather than block the feed.
func (w *Watcher) Publish(fix position.Fix) {
	if !w.debouncer.Offer(fix) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for _, ch := range w.subs {
		select {
		case ch <- fix:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned stop function must be
// called when the subscriber is done.
func (w *Watcher) Subscribe() (<-chan position.Fix, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	ch := make(chan position.Fix, 8)
	w.subs[id] = ch

	var once sync.Once
	stop := func() {
		once.Do(func() {
			w.mu.Lock()
			if _, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(ch)
			}
			w.mu.Unlock()
		})
	}
	return ch, stop
}

// Close tears down all subscriptions.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
}
