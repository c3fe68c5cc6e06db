package store

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectBudget = 2 * time.Second

// Config selects and parameterizes the backend. The zero value opens a
// Redis backend at localhost:6379.
type Config struct {
	// Addr is the Redis address. Empty means localhost:6379.
	Addr string
	// DB is the Redis database index.
	DB int
	// Disabled skips the remote backend entirely and uses the in-process
	// fallback.
	Disabled bool
	// OpTimeout bounds individual Redis operations. Zero means the default.
	OpTimeout time.Duration
	// Codec overrides the value codec. Nil means JSONCodec.
	Codec Codec
}

// Open constructs the Store for a session. It pings the remote backend once
// within a short budget; if the backend is unreachable it logs a degradation
// notice and returns the in-process fallback. The choice is made exactly once
// here and never revisited: there is no automatic reconnection, a process
// restart is required to re-attempt the remote backend.
//
// Open never fails; the second return value is the Redis client when the
// remote backend was selected, nil otherwise.
func Open(cfg Config, log *zap.Logger) (Store, *redis.Client) {
	if log == nil {
		log = zap.NewNop()
	}
	codec := cfg.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	if cfg.Disabled {
		log.Info("using in-process state backend")
		return NewMemoryStore(WithMemoryCodec(codec), WithMemoryLogger(log)), nil
	}

	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          cfg.DB,
		DialTimeout: connectBudget,
	})
	ctx, cancel := context.WithTimeout(context.Background(), connectBudget)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Warn("redis unreachable, falling back to in-process state backend",
			zap.String("addr", addr), zap.Error(err))
		return NewMemoryStore(WithMemoryCodec(codec), WithMemoryLogger(log)), nil
	}

	log.Info("connected to redis state backend", zap.String("addr", addr))
	opts := []RedisOption{WithCodec(codec), WithLogger(log)}
	if cfg.OpTimeout > 0 {
		opts = append(opts, WithTimeout(cfg.OpTimeout))
	}
	return NewRedisStore(client, opts...), client
}
