package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{payer}:submissions - per-minute payment submissions
// - ratelimit:{payer}:queries - per-minute status queries

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	SubmissionLimit  int           // Max payment submissions per window
	SubmissionWindow time.Duration // Submission rate limit window
	QueryLimit       int           // Max status queries per window
	QueryWindow      time.Duration // Query rate limit window
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		SubmissionLimit:  30, // 30 submissions per minute
		SubmissionWindow: 60 * time.Second,
		QueryLimit:       120, // 120 status queries per minute
		QueryWindow:      60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// AllowSubmission checks if a caller can submit another payment
func (r *RateLimiter) AllowSubmission(ctx context.Context, caller string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:submissions", caller)
	return r.checkLimit(ctx, key, r.config.SubmissionLimit, r.config.SubmissionWindow)
}

// AllowQuery checks if a caller can run another status query
func (r *RateLimiter) AllowQuery(ctx context.Context, caller string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:queries", caller)
	return r.checkLimit(ctx, key, r.config.QueryLimit, r.config.QueryWindow)
}

// checkLimit performs the actual rate limit check using a sliding window counter
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	// Use Lua script for atomic increment and check
	script := goredis.NewScript(`
		local key = KEYS[1]
		local limit = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])

		local current = redis.call('GET', key)
		if current == false then
			current = 0
		else
			current = tonumber(current)
		end

		local ttl = redis.call('TTL', key)
		if ttl < 0 then
			ttl = window
		end

		if current < limit then
			redis.call('INCR', key)
			if ttl == window then
				redis.call('EXPIRE', key, window)
			end
			return {1, limit - current - 1, ttl}
		else
			return {0, 0, ttl}
		end
	`)

	result, err := script.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	// Parse the result
	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	allowed := resultSlice[0].(int64) == 1
	remaining := int(resultSlice[1].(int64))
	resetIn := time.Duration(resultSlice[2].(int64)) * time.Second

	return &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetIn:   resetIn,
		Limit:     limit,
	}, nil
}

// Reset resets the rate limit for a specific key (admin operation)
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// ResetCaller resets all rate limits for a caller
func (r *RateLimiter) ResetCaller(ctx context.Context, caller string) error {
	keys := []string{
		fmt.Sprintf("ratelimit:%s:submissions", caller),
		fmt.Sprintf("ratelimit:%s:queries", caller),
	}
	return r.client.Del(ctx, keys...).Err()
}
