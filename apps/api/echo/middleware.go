package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/services/metrics"
)

// metricsMiddleware counts and times requests by route.
// Errors are handled here so that the recorded code is the one sent.
func metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}

			path := ctx.Path()
			if path == "" {
				path = "unknown"
			}
			method := ctx.Request().Method
			metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(ctx.Response().Status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// rateLimitMiddleware limits the attempts per client IP on a route.
// The limiter failing lets the request through.
func rateLimitMiddleware(limiter core.RateLimiter, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if limiter == nil {
				return next(ctx)
			}
			key := ctx.Path() + ":" + ctx.RealIP()
			ok, err := limiter.Allow(ctx.Request().Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", err, map[string]interface{}{"key": key})
				return next(ctx)
			}
			if !ok {
				metrics.RateLimitedTotal.WithLabelValues(ctx.Path()).Inc()
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
