package middleware

import (
	"net/http"
	"strconv"

	"pledgepay/internal/redis"
	"pledgepay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// SubmissionRateLimitMiddleware limits payment submissions per client IP.
// Applied to the processing endpoint only; reads stay on the query budget.
func SubmissionRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowSubmission(c.Request.Context(), c.ClientIP())
		if err != nil {
			// Redis being down should not take payments down with it.
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("submission rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// QueryRateLimitMiddleware limits status lookups per client IP.
func QueryRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowQuery(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("query rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
