package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
)

const (
	redisDialTimeout   = 5 * time.Second
	redisConnectTries  = 3
	redisRetryInterval = time.Second
)

// RedisStore keeps the pair under <prefix>:access_token, <prefix>:refresh_token
// and <prefix>:username. Several kiosks sharing one sign-in point at the
// same prefix. Writes run in MULTI/EXEC and reads in one MGET, so a reader
// never sees keys from two different writes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "attendai:session"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedisStore connects using cfg, retrying the initial ping a few times.
func DialRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: redisDialTimeout,
	})

	var lastErr error
	for attempt := 0; attempt < redisConnectTries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				client.Close() //nolint:errcheck
				return nil, ctx.Err()
			case <-time.After(redisRetryInterval):
			}
		}
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return NewRedisStore(client, cfg.KeyPrefix), nil
		}
	}

	client.Close() //nolint:errcheck
	return nil, fmt.Errorf("connecting to redis at %s after %d attempts: %w", cfg.Addr(), redisConnectTries, lastErr)
}

func (r *RedisStore) key(name string) string {
	return r.prefix + ":" + name
}

func (r *RedisStore) Get(ctx context.Context) (Credential, error) {
	vals, err := r.client.MGet(ctx, r.key(KeyAccessToken), r.key(KeyRefreshToken), r.key(KeyUsername)).Result()
	if err != nil {
		return Credential{}, fmt.Errorf("reading credentials from redis: %w", err)
	}

	str := func(v any) string {
		s, _ := v.(string)
		return s
	}
	c := Credential{
		AccessToken:  str(vals[0]),
		RefreshToken: str(vals[1]),
		Username:     str(vals[2]),
	}
	switch {
	case c.AccessToken == "" && c.RefreshToken == "":
		return Credential{}, ErrNotFound
	case !c.Valid():
		return Credential{}, ErrCorrupt
	}
	return c, nil
}

func (r *RedisStore) Set(ctx context.Context, c Credential) error {
	if err := checkComplete(c); err != nil {
		return err
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(KeyAccessToken), c.AccessToken, 0)
		pipe.Set(ctx, r.key(KeyRefreshToken), c.RefreshToken, 0)
		if c.Username != "" {
			pipe.Set(ctx, r.key(KeyUsername), c.Username, 0)
		} else {
			pipe.Del(ctx, r.key(KeyUsername))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing credentials to redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(KeyAccessToken), r.key(KeyRefreshToken), r.key(KeyUsername))
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing credentials in redis: %w", err)
	}
	return nil
}

// HealthCheck pings the Redis server.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
