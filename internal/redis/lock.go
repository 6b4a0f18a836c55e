package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker guards the booking critical section. Both parties to a booking are
// serialized: one key per (provider, date) and one per (patient, date), so
// two bookings for the same patient with different providers still contend.
// Bookings that share neither party never contend with each other.
type Locker interface {
	WithBookingLocks(ctx context.Context, providerID, patientID uuid.UUID, date string, fn func(ctx context.Context) error) error
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDayLocker creates a locker that holds one Redis key per
// (provider, date) pair and one per (patient, date) pair. The TTL bounds how
// long a crashed holder can block other bookings, and also caps fn's
// execution time.
func NewRedisDayLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisDayLocker) WithBookingLocks(ctx context.Context, providerID, patientID uuid.UUID, date string, fn func(ctx context.Context) error) error {
	// Fixed acquisition order: provider key, then patient key. Acquisition is
	// non-blocking, so order only matters for predictability of which party
	// a loser reports contention on.
	keys := []string{
		fmt.Sprintf("lock:provider-day:%s:%s", providerID.String(), date),
		fmt.Sprintf("lock:patient-day:%s:%s", patientID.String(), date),
	}
	token := uuid.NewString()

	acquired := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil || !ok {
			l.releaseAll(ctx, acquired, token)
			if err != nil {
				return fmt.Errorf("acquire booking lock: %w", err)
			}
			return ErrLockNotAcquired
		}
		acquired = append(acquired, key)
	}

	defer l.releaseAll(ctx, acquired, token)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// The token guard makes release a no-op when the TTL already expired and
// another booking holds the key.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) releaseAll(ctx context.Context, keys []string, token string) {
	for i := len(keys) - 1; i >= 0; i-- {
		_ = l.release(ctx, keys[i], token)
	}
}

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
