// Package redis provides a Redis-backed lease for multi-node deployments.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when this process still holds it,
// so a lease that expired and was re-acquired elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lease uses SET NX with a per-acquire token.
type Lease struct {
	client *redis.Client
	token  func() string

	mu   sync.Mutex
	held map[string]string
}

// New constructs a Lease on client. token generates an opaque holder
// identity per acquire, typically a UUID.
func New(client *redis.Client, token func() string) *Lease {
	return &Lease{
		client: client,
		token:  token,
		held:   make(map[string]string),
	}
}

// Acquire takes the key with SET NX PX semantics.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tok := l.token()
	ok, err := l.client.SetNX(ctx, key, tok, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.held[key] = tok
	l.mu.Unlock()
	return true, nil
}

// Release drops the key if this Lease still holds it.
func (l *Lease) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	tok, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{key}, tok).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release %q: %w", key, err)
	}
	return nil
}
