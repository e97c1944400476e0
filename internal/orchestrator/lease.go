package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease serializes failover work per primary instance id. Exactly one state
// machine may hold the lease for a given primary at any time; a second
// trigger that cannot acquire it is deduplicated, not queued.
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const leasePrefix = "failover:lease:"

// NewLease is the default production lease, backed by redis.
func NewLease(client *redis.Client) Lease {
	return NewRedisLease(client)
}

// RedisLease backs the lease with redis SET NX, so deduplication holds even
// when more than one orchestrator daemon runs against the same fleet.
type RedisLease struct {
	client *redis.Client
}

func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{client: client}
}

func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leasePrefix+key, time.Now().Format(time.RFC3339Nano), ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, leasePrefix+key).Err()
}

// MemoryLease is a single-process lease for tests and local development.
type MemoryLease struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{leases: make(map[string]time.Time)}
}

func (l *MemoryLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expiry, held := l.leases[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	l.leases[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *MemoryLease) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, key)
	return nil
}
