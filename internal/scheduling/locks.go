package scheduling

import (
	"context"
	"sync"
)

// lockArena partitions mutual exclusion by key so bookings for different
// staff members never block each other. Acquisition is context-aware: a
// caller whose context expires while waiting never enters the section.
type lockArena struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockArena() *lockArena {
	return &lockArena{slots: make(map[string]chan struct{})}
}

func (a *lockArena) acquire(ctx context.Context, key string) (release func(), err error) {
	a.mu.Lock()
	slot, ok := a.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		a.slots[key] = slot
	}
	a.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
