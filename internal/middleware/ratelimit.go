package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/windcore/authsvc/internal/config"
)

// loginLimiter counts requests per key in a fixed window. INCR and EXPIRE
// run in one script so the first hit always sets the window TTL.
var loginLimiter = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('TTL', KEYS[1])
	return { count, ttl }
`)

// RateLimit returns a fixed-window request limiter for credential
// endpoints (login, refresh), keyed by client IP and route. A nil Redis
// client or a Redis error fails open: brute-force protection degrades but
// authentication keeps working.
func RateLimit(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	window := int64(cfg.Window.Seconds())
	if window < 1 {
		window = 1
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := cfg.Prefix + ":" + c.RealIP() + ":" + c.Path()
			ctx := c.Request().Context()

			vals, err := loginLimiter.Run(ctx, rdb, []string{key}, window).Result()
			if err != nil {
				return next(c)
			}
			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 2 {
				return next(c)
			}
			count, _ := arr[0].(int64)
			ttl, _ := arr[1].(int64)

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			remaining := int64(cfg.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(cfg.Limit) {
				if ttl < 0 {
					ttl = window
				}
				c.Response().Header().Set("Retry-After", strconv.FormatInt(ttl, 10))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"retry_after": ttl,
				})
			}
			return next(c)
		}
	}
}
