package redis

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-relay/internal/utils"
)

// RateLimiter is a fixed-window request counter shared by every instance.
type RateLimiter struct {
	client *goredis.Client
	prefix string
	limit  int
	window time.Duration
	logger *zap.Logger
}

func NewRateLimiter(client *goredis.Client, prefix string, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, limit: limit, window: window, logger: logger}
}

// Middleware counts requests per key. Redis errors let the request through.
func (r *RateLimiter) Middleware(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, keyFunc(c))
		count, err := r.client.Incr(c.UserContext(), key).Result()
		if err != nil {
			r.logger.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			r.client.Expire(c.UserContext(), key, r.window)
		}
		if count > int64(r.limit) {
			return utils.JSONError(c, fiber.StatusTooManyRequests, utils.ErrRateLimited.Error())
		}
		return c.Next()
	}
}
