package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loggerctl/command"
	"loggerctl/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLeaseHeld is returned when another process is already running a
// command against the same logger.
var ErrLeaseHeld = errors.New("logger is busy with another command")

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseStore hands out short lived per-logger leases so that at most one
// command is in flight for a logger across every process sharing Redis.
type LeaseStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Lease is held until Release is called or the TTL expires.
type Lease struct {
	Key   string
	Token string
	store *LeaseStore
}

func NewLeaseStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*LeaseStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "lease_store")
	logger.Info("Redis connected successfully", "addr", rdb.Options().Addr)

	return &LeaseStore{client: rdb, ttl: cfg.LeaseTTL(), logger: logger}, nil
}

// LeaseKey returns the Redis key guarding target.
func LeaseKey(target command.Target) string {
	return fmt.Sprintf("loggerctl:lease:%s", target.String())
}

// Acquire takes the lease for target or fails with ErrLeaseHeld. The lease
// expires after ttl, or the configured TTL when ttl is not positive.
func (s *LeaseStore) Acquire(ctx context.Context, target command.Target, ttl time.Duration) (*Lease, error) {
	key := LeaseKey(target)
	token := uuid.NewString()
	if ttl <= 0 {
		ttl = s.ttl
	}

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		s.logger.Warn("Lease already held", "key", key)
		return nil, ErrLeaseHeld
	}
	s.logger.Debug("Lease acquired", "key", key, "ttl", ttl.String())
	return &Lease{Key: key, Token: token, store: s}, nil
}

// Release frees the lease if it is still ours. Releasing an expired lease
// is not an error.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.store.client, []string{l.Key}, l.Token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.Key, err)
	}
	if n == 0 {
		l.store.logger.Warn("Lease expired before release", "key", l.Key)
	}
	return nil
}

func (s *LeaseStore) Close() error {
	return s.client.Close()
}
