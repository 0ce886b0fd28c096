package middleware

import (
	"log/slog"

	"devcamper-api/internal/metrics"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/ratelimit"
)

// Stage names, in execution order.
const (
	StageBody      = "body"
	StageCookies   = "cookies"
	StageUpload    = "upload"
	StageSanitize  = "mongo-sanitize"
	StageSecurity  = "security-headers"
	StageXSS       = "xss-clean"
	StageRateLimit = "rate-limit"
	StageHPP       = "hpp"
	StageCORS      = "cors"
)

// Options configures the request stages.
type Options struct {
	MaxFileBytes int64
	// Limiter may be nil, in which case the rate-limit stage always continues.
	Limiter      ratelimit.Limiter
	HPPWhitelist []string
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Stages returns the request stages in their fixed order. Route dispatch and
// error formatting follow them and are provided by Echo.
func Stages(opts Options) []pipeline.Stage {
	return []pipeline.Stage{
		BodyParser(),
		CookieParser(),
		Upload(opts.MaxFileBytes),
		MongoSanitize(),
		SecurityHeaders(),
		XSSClean(),
		RateLimit(opts.Limiter, opts.Metrics),
		HPP(opts.HPPWhitelist),
		CORS(),
	}
}

// New assembles the request pipeline and hooks stage failures into metrics
// and the debug log.
func New(opts Options) *pipeline.Pipeline {
	p := pipeline.New(Stages(opts)...)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return p.OnFailure(func(stage string, err error) {
		if opts.Metrics != nil {
			opts.Metrics.StageFailures.WithLabelValues(stage).Inc()
		}
		logger.Debug("pipeline stage failed", "stage", stage, "error", err)
	})
}
