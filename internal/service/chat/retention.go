// internal/service/chat/retention.go

package chat

import (
	"context"
	"log"
	"sync"
	"time"
)

// RetentionStore is the slice of the message store the sweeper needs.
type RetentionStore interface {
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionSweeper periodically deletes messages older than the retention
// window. Zones whose posts have aged out keep their chat history until
// the retention window passes, then disappear with it.
type RetentionSweeper struct {
	store     RetentionStore
	retention time.Duration
	interval  time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRetentionSweeper creates a sweeper that removes messages older than
// retention, checking every interval.
func NewRetentionSweeper(store RetentionStore, retention, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *RetentionSweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweep loop and waits for it to exit.
func (s *RetentionSweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *RetentionSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.store.DeleteMessagesOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Retention sweep removed %d messages older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
