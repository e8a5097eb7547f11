package cache

import (
	"context"
	"sync"
	"time"
)

// Janitor periodically calls CleanupExpired on a KeyStore.
type Janitor struct {
	store    KeyStore
	interval time.Duration

	// OnCleanup is called after each pass with the number of removed keys
	// and any error.
	OnCleanup func(removed int, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a janitor. A non-positive interval defaults to one
// minute.
func NewJanitor(store KeyStore, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{store: store, interval: interval}
}

// Start launches the cleanup loop. It stops when ctx is done or Stop is
// called. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.run(ctx, j.done)
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.store.CleanupExpired(ctx)
			if j.OnCleanup != nil {
				j.OnCleanup(removed, err)
			}
		}
	}
}
