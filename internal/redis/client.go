package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-relay/internal/config"
)

// NewClient connects and pings. The caller owns Close.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	r := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Pass, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return r, nil
}
