// Package memory provides an in-process lease for single-node deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jobtrackerhq/job-ingest/internal/ingest"
)

// Lease is a TTL-expiring key set guarded by a mutex.
type Lease struct {
	mu    sync.Mutex
	clock ingest.Clock
	held  map[string]time.Time
}

// New constructs a Lease using clock for expiry checks.
func New(clock ingest.Clock) *Lease {
	return &Lease{
		clock: clock,
		held:  make(map[string]time.Time),
	}
}

// Acquire takes the key unless it is already held and unexpired.
func (l *Lease) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Release drops the key. Releasing an unheld key is a no-op.
func (l *Lease) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
