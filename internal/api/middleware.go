package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ragbase/pkg/circuitbreaker"
	"ragbase/pkg/ratelimiter"
)

// RateLimit rejects requests with 429 once the limiter runs dry.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// CircuitBreak short-circuits requests with 503 while the breaker is open
// and feeds response status codes back into it. Status codes >= 500 count
// as failures.
func CircuitBreak(cb *circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cb.Allow() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
			return
		}
		c.Next()
		cb.Report(c.Writer.Status() < http.StatusInternalServerError)
	}
}
