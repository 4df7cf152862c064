package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dalscooter/concern-service/internal/config"
)

const redisPingTimeout = 3 * time.Second

// Redis holds the client shared by the intake stream and the mailer's dedup
// keys.
type Redis struct {
	Client *redis.Client
	addr   string
}

// NewRedis builds the client. An unreachable server is logged rather than
// returned; readiness reports it until the server comes up.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(redisOptions(cfg))
	log := logger.With(zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("unable to reach redis", zap.Error(err))
	} else {
		log.Info("connected to redis")
	}

	return &Redis{Client: client, addr: cfg.Addr}
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		ClientName: cfg.ClientName,
	}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", r.addr, err)
	}
	return nil
}
