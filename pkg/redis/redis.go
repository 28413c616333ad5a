package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// New connects to redis, retrying with a doubling delay while the server comes up.
func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	log := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	})

	if err := ping(rdb, log); err != nil {
		_ = rdb.Close()
		log.Error("[Redis] Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	log.Info("[Redis] Connected to Redis", zap.Int("pool_size", c.Redis.PoolSize))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb, nil
}

func ping(rdb *redis.Client, log *zap.Logger) error {
	delay := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}

		log.Warn("[Redis] Redis not ready, retrying", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
