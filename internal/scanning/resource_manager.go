package scanning

import (
	"context"
	"sync"
)

// ResourceManager limits how many engine runs may be in flight.
type ResourceManager interface {
	// Acquire blocks until a slot is free for scanID or ctx is done.
	Acquire(ctx context.Context, scanID string) error

	// Release frees the slot held by scanID.
	Release(scanID string)
}

// FixedResourceManager hands out a fixed number of slots. The scanner uses
// a single slot so that scans never overlap.
type FixedResourceManager struct {
	semaphore chan struct{}
	holders   map[string]struct{}
	mutex     sync.Mutex
}

// NewFixedResourceManager creates a manager with capacity slots (at least one).
func NewFixedResourceManager(capacity int) *FixedResourceManager {
	if capacity <= 0 {
		capacity = 1
	}

	return &FixedResourceManager{
		semaphore: make(chan struct{}, capacity),
		holders:   make(map[string]struct{}),
	}
}

// Acquire blocks until a slot is free for scanID.
func (rm *FixedResourceManager) Acquire(ctx context.Context, scanID string) error {
	select {
	case rm.semaphore <- struct{}{}:
		rm.mutex.Lock()
		rm.holders[scanID] = struct{}{}
		rm.mutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot held by scanID. Unknown IDs are ignored.
func (rm *FixedResourceManager) Release(scanID string) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if _, exists := rm.holders[scanID]; !exists {
		return
	}
	delete(rm.holders, scanID)

	select {
	case <-rm.semaphore:
	default:
	}
}
