package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"ragbase/internal/config"
	"ragbase/pkg/circuitbreaker"
	"ragbase/pkg/ratelimiter"
)

// RegisterRoutes wires the handlers into the router with the configured
// middleware. The upload and query routes share the default rate limiter
// and, when enabled, a circuit breaker around their external-service fan
// out; the clear route gets its own much stricter limiter.
func RegisterRoutes(router *gin.Engine, h *Handlers, mw config.MiddlewareConfig) error {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	var pipelineMW []gin.HandlerFunc
	var clearMW []gin.HandlerFunc

	if mw.RateLimiter.Enabled {
		defaultLimiter, err := newLimiter(mw.RateLimiter, mw.RateLimiter.Default)
		if err != nil {
			return err
		}
		clearLimiter, err := newLimiter(mw.RateLimiter, mw.RateLimiter.Clear)
		if err != nil {
			return err
		}
		pipelineMW = append(pipelineMW, RateLimit(defaultLimiter))
		clearMW = append(clearMW, RateLimit(clearLimiter))
	}

	if mw.CircuitBreaker.Enabled {
		timeout, err := time.ParseDuration(mw.CircuitBreaker.Timeout)
		if err != nil {
			return fmt.Errorf("invalid circuit breaker timeout: %w", err)
		}
		cb := circuitbreaker.New(mw.CircuitBreaker.FailureThreshold, mw.CircuitBreaker.SuccessThreshold, timeout)
		pipelineMW = append(pipelineMW, CircuitBreak(cb))
	}

	pipelines := router.Group("/", pipelineMW...)
	{
		pipelines.POST("/upload", h.Upload)
		pipelines.POST("/query", h.Query)
	}

	clear := router.Group("/", clearMW...)
	{
		clear.DELETE("/clear", h.Clear)
	}

	return nil
}

// newLimiter builds one limiter instance from the configured algorithm.
func newLimiter(cfg config.RateLimiterConfig, route config.RouteLimitConfig) (ratelimiter.RateLimiter, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "tokenBucket"
	}

	switch algorithm {
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(route.Rate, route.Capacity), nil
	case "fixedWindow":
		window, err := time.ParseDuration(cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limiter window: %w", err)
		}
		return ratelimiter.NewFixedWindow(route.Capacity, window), nil
	case "slidingLog":
		window, err := time.ParseDuration(cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limiter window: %w", err)
		}
		return ratelimiter.NewSlidingLog(route.Capacity, window), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", algorithm)
	}
}
