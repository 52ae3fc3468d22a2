// Package lease provides cluster-wide run leases for scheduled jobs.
//
// [Redis] holds a lease as a key set with SET NX and a TTL. The value is a
// per-acquisition token, and release deletes the key only while it still
// holds that token, so a holder whose lease expired cannot release a lease
// taken over by another replica. [Local] is the single-replica fallback.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/vibejournal/internal/reminder"
)

// DefaultTTL bounds how long a crashed holder blocks other replicas.
const DefaultTTL = 15 * time.Minute

var (
	_ reminder.Locker = (*Redis)(nil)
	_ reminder.Locker = (*Local)(nil)
)

// releaseScript deletes KEYS[1] only if it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Redis grants leases stored in Redis.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis creates a Redis locker. A ttl of zero selects [DefaultTTL].
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Dial parses a redis:// URL and returns a locker backed by a new client.
// Close the returned client on shutdown.
func Dial(url string, ttl time.Duration) (*Redis, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("lease: parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	return NewRedis(c, ttl), c, nil
}

// Acquire implements [reminder.Locker].
func (r *Redis) Acquire(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("lease: release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Local grants leases within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates a Local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire implements [reminder.Locker].
func (l *Local) Acquire(_ context.Context, key string) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, true, nil
}
