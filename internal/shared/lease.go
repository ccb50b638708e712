package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld indicates another holder owns the lease.
var ErrLeaseHeld = errors.New("lease already held")

// releaseScript deletes the key only while it still carries the holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Leaser hands out expiring, single-holder leases stored in redis.
type Leaser struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLeaser constructs a Leaser whose leases expire after ttl unless released.
func NewLeaser(client redis.UniversalClient, ttl time.Duration) *Leaser {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Leaser{client: client, ttl: ttl}
}

// Lease is a held lease.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes the lease for key or returns ErrLeaseHeld.
func (l *Leaser) Acquire(ctx context.Context, key string) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("leaser not initialised")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, key)
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Key returns the redis key of the lease.
func (l *Lease) Key() string {
	return l.key
}

// Release gives the lease up. Releasing a lease that already expired and was taken
// by someone else leaves the new holder untouched.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
