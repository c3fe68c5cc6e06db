package store

import (
	"context"
	stdErrors "errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	serrors "agentstate/errors"
)

const defaultRedisOpTimeout = 5 * time.Second

// RedisStore implements Store using a Redis backend. Redis provides the real
// atomicity: SETNX for locks, INCRBY for counters, native sets.
type RedisStore struct {
	client  *redis.Client
	codec   Codec
	timeout time.Duration
	log     *zap.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTimeout sets the per-operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.timeout = d }
}

// WithCodec sets the codec used for values. Defaults to JSONCodec.
func WithCodec(c Codec) RedisOption {
	return func(s *RedisStore) { s.codec = c }
}

// WithLogger sets the logger used for codec failures.
func WithLogger(log *zap.Logger) RedisOption {
	return func(s *RedisStore) { s.log = log }
}

// NewRedisStore returns a new RedisStore using the provided Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		codec:   JSONCodec{},
		timeout: defaultRedisOpTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying Redis client so collaborators sharing the
// connection (the pub/sub event bus) can reuse it.
func (s *RedisStore) Client() *redis.Client { return s.client }

func wrapRedisErr(err error) error {
	switch {
	case err == nil:
		return nil
	case stdErrors.Is(err, context.DeadlineExceeded):
		return serrors.ErrTimeout
	case stdErrors.Is(err, redis.ErrClosed):
		return serrors.ErrConnectionClosed
	default:
		return err
	}
}

func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Get implements Store.Get. Expired keys are indistinguishable from absent
// ones; Redis handles expiry server-side.
func (s *RedisStore) Get(ctx context.Context, key string, out any) (bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	data, err := s.client.Get(cctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, wrapRedisErr(err)
	}
	if err := s.codec.Unmarshal(data, out); err != nil {
		s.log.Error("decode failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set implements Store.Set.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		s.log.Error("encode failed", zap.String("key", key), zap.Error(err))
		return err
	}
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapRedisErr(s.client.Set(cctx, key, data, ttl).Err())
}

// SetNX implements Store.SetNX using the SETNX-with-expiry primitive.
func (s *RedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := s.codec.Marshal(value)
	if err != nil {
		s.log.Error("encode failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.client.SetNX(cctx, key, data, ttl).Result()
	return ok, wrapRedisErr(err)
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapRedisErr(s.client.Del(cctx, key).Err())
}

// IncrBy implements Store.IncrBy via INCRBY.
func (s *RedisStore) IncrBy(ctx context.Context, name string, amount int64) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.client.IncrBy(cctx, name, amount).Result()
	return v, wrapRedisErr(err)
}

// SAdd implements Store.SAdd via the native set type.
func (s *RedisStore) SAdd(ctx context.Context, name, member string) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapRedisErr(s.client.SAdd(cctx, name, member).Err())
}

// SRem implements Store.SRem.
func (s *RedisStore) SRem(ctx context.Context, name, member string) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapRedisErr(s.client.SRem(cctx, name, member).Err())
}

// SMembers implements Store.SMembers.
func (s *RedisStore) SMembers(ctx context.Context, name string) ([]string, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	members, err := s.client.SMembers(cctx, name).Result()
	return members, wrapRedisErr(err)
}

// Size implements Store.Size via DBSIZE.
func (s *RedisStore) Size(ctx context.Context) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.DBSize(cctx).Result()
	return n, wrapRedisErr(err)
}

// Backend implements Store.Backend.
func (s *RedisStore) Backend() string { return "redis" }
