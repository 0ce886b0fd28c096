package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"devcamper-api/internal/apperr"
	"devcamper-api/internal/metrics"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
)

// RateLimit returns the stage that counts requests per client IP. Rejected
// requests fail with RateLimitExceeded and a Retry-After header. A nil limiter
// lets every request through.
func RateLimit(l ratelimit.Limiter, m *metrics.Metrics) pipeline.Stage {
	return pipeline.Stage{
		Name: StageRateLimit,
		Run: func(c echo.Context) pipeline.Outcome {
			if l == nil {
				return pipeline.Continue()
			}

			res, err := l.Allow(c.Request().Context(), c.RealIP())
			if err != nil {
				return pipeline.Fail(apperr.Internal("rate limiter unavailable", err))
			}

			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			if res.Remaining >= 0 {
				h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
			}
			h.Set(HeaderRateLimitReset, strconv.FormatInt(ceilSeconds(res.ResetAfter), 10))

			if res.Allowed {
				return pipeline.Continue()
			}

			h.Set("Retry-After", strconv.FormatInt(max(ceilSeconds(res.RetryAfter), 1), 10))
			if m != nil {
				m.RateLimited.WithLabelValues(metrics.NormalizePath(c.Request().URL.Path)).Inc()
			}
			return pipeline.Fail(apperr.RateLimited("Too many requests, please try again later."))
		},
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
