package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	httprateredis "github.com/go-chi/httprate-redis"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	RequestLimit   int
	WindowDuration time.Duration
	// Message is returned in the 429 body.
	Message string
	// RedisClient enables a counter shared between instances. Nil keeps
	// counters in memory.
	RedisClient *redis.Client
	// PrefixKey namespaces the Redis counters.
	PrefixKey string
}

// DefaultRateLimitConfig returns a default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestLimit:   100,
		WindowDuration: 15 * time.Minute,
		Message:        "Too many requests, please try again later",
	}
}

// RateLimit returns a middleware that rate limits requests per client IP.
func RateLimit(config RateLimitConfig) func(next http.Handler) http.Handler {
	defaults := DefaultRateLimitConfig()
	if config.RequestLimit == 0 {
		config.RequestLimit = defaults.RequestLimit
	}
	if config.WindowDuration == 0 {
		config.WindowDuration = defaults.WindowDuration
	}
	if config.Message == "" {
		config.Message = defaults.Message
	}
	if config.PrefixKey == "" {
		config.PrefixKey = "pdfworks:ratelimit"
	}

	options := []httprate.Option{
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, config.Message, http.StatusTooManyRequests)
		}),
		httprate.WithKeyByRealIP(),
	}
	if config.RedisClient != nil {
		options = append(options, httprateredis.WithRedisLimitCounter(&httprateredis.Config{
			Client:    config.RedisClient,
			PrefixKey: config.PrefixKey,
		}))
	}

	return httprate.NewRateLimiter(config.RequestLimit, config.WindowDuration, options...).Handler
}
