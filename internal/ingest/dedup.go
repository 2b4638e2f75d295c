// Package ingest guards the ticket-event endpoints: duplicate delivery
// suppression and source signature verification.
package ingest

import (
	"context"
	"sync"
	"time"
)

// Deduper defines the interface for ticket-event deduplication storage.
type Deduper interface {
	// CheckAndSet atomically checks if an event key exists and sets it if not.
	// Returns true if the key was set (new event), false if it already existed
	// (redelivery). The key expires after the specified TTL.
	CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Delete removes an event key, typically used when processing failed so
	// the source can redeliver.
	Delete(ctx context.Context, key string) error
}

// entry is a seen event key with its expiration.
type entry struct {
	key       string
	expiresAt time.Time
}

// MemoryDeduper is an in-memory implementation of Deduper for testing and
// single-instance deployments.
type MemoryDeduper struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stopCh  chan struct{}
}

// NewMemoryDeduper creates a new in-memory deduper. It starts a background
// goroutine to clean up expired entries.
func NewMemoryDeduper() *MemoryDeduper {
	d := &MemoryDeduper{
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

// CheckAndSet implements Deduper.CheckAndSet for in-memory storage.
func (d *MemoryDeduper) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()

	if e, exists := d.entries[key]; exists {
		if e.expiresAt.After(now) {
			return false, nil // key still valid, this is a redelivery
		}
		// Expired key can be reused.
	}

	d.entries[key] = &entry{
		key:       key,
		expiresAt: now.Add(ttl),
	}

	return true, nil
}

// Delete implements Deduper.Delete for in-memory storage.
func (d *MemoryDeduper) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.entries, key)
	return nil
}

// Close stops the cleanup goroutine.
func (d *MemoryDeduper) Close() {
	close(d.stopCh)
}

// Len returns the number of entries in the deduper (for testing).
func (d *MemoryDeduper) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *MemoryDeduper) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

func (d *MemoryDeduper) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, e := range d.entries {
		if e.expiresAt.Before(now) {
			delete(d.entries, key)
		}
	}
}
