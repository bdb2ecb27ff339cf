package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a single-instance SET NX lock shared by every API replica.
type Redis struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{
		client:     client,
		prefix:     "booking:lock:",
		ttl:        ttl,
		retryEvery: 25 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
		}

		ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-time.After(r.retryEvery):
		}
	}

	return func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		deleted, err := releaseScript.Run(releaseCtx, r.client, []string{fullKey}, token).Int()
		if err != nil {
			log.Warn().Err(err).Str("lock", fullKey).Msg("Failed to release lock, it will expire after its TTL")
			return
		}
		if deleted == 0 {
			log.Warn().Str("lock", fullKey).Msg("Lock expired before release")
		}
	}, nil
}
