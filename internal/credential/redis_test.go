package credential

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/nerrad567/attendai-core/internal/infrastructure/config"
)

func configFor(backend, path string) config.CredentialsConfig {
	return config.CredentialsConfig{Backend: backend, FilePath: path}
}

// redisTestConfig returns a config for ATTENDAI_TEST_REDIS_ADDR or skips.
func redisTestConfig(t *testing.T) config.RedisConfig {
	t.Helper()
	addr := os.Getenv("ATTENDAI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ATTENDAI_TEST_REDIS_ADDR not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad ATTENDAI_TEST_REDIS_ADDR %q: %v", addr, err)
	}
	return config.RedisConfig{
		Host:      host,
		Port:      port,
		KeyPrefix: "attendai:test:" + uuid.NewString(),
		PoolSize:  4,
	}
}

func TestRedisStore(t *testing.T) {
	cfg := redisTestConfig(t)

	runStoreContract(t, func(t *testing.T) Store {
		c := cfg
		c.KeyPrefix = cfg.KeyPrefix + ":" + uuid.NewString()
		s, err := DialRedisStore(context.Background(), c)
		if err != nil {
			t.Fatalf("DialRedisStore() error = %v", err)
		}
		t.Cleanup(func() {
			s.Clear(context.Background()) //nolint:errcheck
			s.Close()                     //nolint:errcheck
		})
		return s
	})
}

func TestRedisStore_KeyLayout(t *testing.T) {
	s := NewRedisStore(nil, "")
	if got := s.key(KeyAccessToken); got != "attendai:session:access_token" {
		t.Errorf("key(access_token) = %q", got)
	}
	s = NewRedisStore(nil, "school-7")
	if got := s.key(KeyRefreshToken); got != "school-7:refresh_token" {
		t.Errorf("key(refresh_token) = %q", got)
	}
}
