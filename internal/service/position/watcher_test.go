// internal/service/position/watcher_test.go

package position

import (
	"testing"
	"time"

	"geowhisper/internal/domain/geo"
	"geowhisper/internal/domain/position"
)

func okFixAt(lat, lng float64, at time.Time) position.Fix {
	return position.Fix{
		Position: geo.Position{Latitude: lat, Longitude: lng},
		Status:   position.StatusOK,
		At:       at,
	}
}

func testDebouncer() *Debouncer {
	return NewDebouncer(DebounceConfig{
		MinDistanceMeters: 25,
		MaxInterval:       30 * time.Second,
	})
}

func TestDebouncerForwardsFirstFix(t *testing.T) {
	d := testDebouncer()
	if !d.Offer(okFixAt(0, 0, time.Now())) {
		t.Error("first fix must always be forwarded")
	}
}

func TestDebouncerSuppressesSmallMovement(t *testing.T) {
	d := testDebouncer()
	base := time.Now()

	d.Offer(okFixAt(0, 0, base))

	// ~11m east, under the 25m threshold.
	if d.Offer(okFixAt(0, 0.0001, base.Add(time.Second))) {
		t.Error("movement under the distance threshold should be suppressed")
	}
}

func TestDebouncerForwardsLargeMovement(t *testing.T) {
	d := testDebouncer()
	base := time.Now()

	d.Offer(okFixAt(0, 0, base))

	// ~111m east.
	if !d.Offer(okFixAt(0, 0.001, base.Add(time.Second))) {
		t.Error("movement over the distance threshold should be forwarded")
	}
}

func TestDebouncerForwardsAfterMaxInterval(t *testing.T) {
	d := testDebouncer()
	base := time.Now()

	d.Offer(okFixAt(0, 0, base))

	// Stationary, but past the max interval.
	if !d.Offer(okFixAt(0, 0, base.Add(31*time.Second))) {
		t.Error("a stationary fix past MaxInterval should be forwarded")
	}
}

func TestDebouncerForwardsStatusChanges(t *testing.T) {
	d := testDebouncer()
	base := time.Now()

	d.Offer(okFixAt(0, 0, base))

	denied := position.Fix{Status: position.StatusPermissionDenied, At: base.Add(time.Second)}
	if !d.Offer(denied) {
		t.Error("a status change must be forwarded immediately")
	}

	// A repeat of the same failure right after carries no new information.
	denied.At = base.Add(2 * time.Second)
	if d.Offer(denied) {
		t.Error("a repeated failure within MaxInterval should be suppressed")
	}

	// Recovery is a status change again.
	if !d.Offer(okFixAt(0, 0, base.Add(3*time.Second))) {
		t.Error("recovery to OK must be forwarded immediately")
	}
}

func TestDebouncerLast(t *testing.T) {
	d := testDebouncer()

	if _, ok := d.Last(); ok {
		t.Error("Last() should report nothing before any fix")
	}

	fix := okFixAt(1, 2, time.Now())
	d.Offer(fix)

	last, ok := d.Last()
	if !ok {
		t.Fatal("Last() should report the forwarded fix")
	}
	if last.Position != fix.Position {
		t.Errorf("Last() = %+v, want %+v", last.Position, fix.Position)
	}
}

func TestWatcherFanOut(t *testing.T) {
	w := NewWatcher(testDebouncer())
	defer w.Close()

	ch, stop := w.Subscribe()
	defer stop()

	fix := okFixAt(0, 0, time.Now())
	w.Publish(fix)

	select {
	case got := <-ch:
		if got.Position != fix.Position {
			t.Errorf("received %+v, want %+v", got.Position, fix.Position)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fix")
	}
}

func TestWatcherSuppressedFixNotDelivered(t *testing.T) {
	w := NewWatcher(testDebouncer())
	defer w.Close()

	base := time.Now()
	w.Publish(okFixAt(0, 0, base))

	ch, stop := w.Subscribe()
	defer stop()

	// Under threshold; the debouncer swallows it before fan-out.
	w.Publish(okFixAt(0, 0.0001, base.Add(time.Second)))

	select {
	case got := <-ch:
		t.Fatalf("suppressed fix was delivered: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := NewWatcher(testDebouncer())
	defer w.Close()

	ch, stop := w.Subscribe()
	stop()
	stop()

	if _, open := <-ch; open {
		t.Error("channel should be closed after stop")
	}
}
