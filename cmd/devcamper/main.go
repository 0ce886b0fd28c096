package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"devcamper-api/internal/auth"
	"devcamper-api/internal/config"
	"devcamper-api/internal/handler"
	"devcamper-api/internal/metrics"
	"devcamper-api/internal/middleware"
	"devcamper-api/internal/pipeline"
	"devcamper-api/internal/ratelimit"
	"devcamper-api/internal/service"
	"devcamper-api/internal/store"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const connectTimeout = 10 * time.Second

func main() {
	var cli config.CLI
	parser := kong.Must(&cli,
		kong.Name("devcamper"),
		kong.Description("DevCamper bootcamp directory API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	// The env file feeds kong's env lookups, so it is loaded between a first
	// parse that finds it and the parse that counts.
	_, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	parser.FatalIfErrorf(config.LoadEnvFile(cli.EnvFile))
	_, err = parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newStore,
			newLimiter,
			newTokens,
			newResourceService,
			service.NewAuthService,
			newPipeline,
			newEcho,
			newDocs,
			newHealthHandler,
			handler.NewResources,
			handler.NewPhotoHandler,
			handler.NewAuthHandler,
		),
		fx.Invoke(registerRoutes, logStartup, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h).With("env", cfg.Environment)
}

func newStore(lc fx.Lifecycle, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (store.Store, error) {
	unique := service.UniqueFields(service.Schemas())

	var st store.Store
	switch cfg.Database.Driver {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		mg, err := store.ConnectMongo(ctx, cfg.Database.URI, cfg.Database.Name)
		if err != nil {
			return nil, err
		}
		if err := mg.EnsureIndexes(ctx, unique); err != nil {
			_ = mg.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("mongo connected", "database", cfg.Database.Name)
		st = mg
	default:
		logger.Warn("using in-memory store, data is lost on exit")
		st = store.NewMemory(unique)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return st.Close(ctx) },
	})
	return store.Instrument(st, m.StoreDuration), nil
}

func newLimiter(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	rl := cfg.RateLimit
	if rl.Disabled {
		logger.Warn("rate limiting disabled")
		return nil, nil
	}
	window := rl.Window.Std()

	if ratelimit.Algorithm(rl.Algorithm) == ratelimit.AlgorithmTokenBucket {
		logger.Info("rate limiter enabled", "algorithm", rl.Algorithm, "max", rl.Max, "window", window)
		return ratelimit.NewTokenBucketLimiter(rl.Max, window), nil
	}

	var counters ratelimit.Store
	switch rl.Store {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		rs, err := ratelimit.DialRedis(ctx, ratelimit.RedisConfig{
			Address:  rl.Redis.Address,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
			Prefix:   rl.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return rs.Close() },
		})
		counters = rs
	default:
		ms := ratelimit.NewMemoryStore()
		stop := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go sweep(ms, window, stop)
				return nil
			},
			OnStop: func(context.Context) error {
				close(stop)
				return nil
			},
		})
		counters = ms
	}

	logger.Info("rate limiter enabled",
		"algorithm", rl.Algorithm, "store", rl.Store, "max", rl.Max, "window", window)
	return ratelimit.NewFixedWindowLimiter(counters, rl.Max, window), nil
}

// sweep drops expired counters once per window until stop is closed.
func sweep(ms *ratelimit.MemoryStore, window time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(window)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ms.Cleanup()
		case <-stop:
			return
		}
	}
}

func newTokens(cfg *config.Config) *auth.Tokens {
	return auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTExpire.Std())
}

func newResourceService(st store.Store, logger *slog.Logger) *service.ResourceService {
	return service.NewResourceService(st, logger)
}

func newPipeline(cfg *config.Config, l ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) *pipeline.Pipeline {
	return middleware.New(middleware.Options{
		MaxFileBytes: cfg.Upload.MaxFileBytes,
		Limiter:      l,
		HPPWhitelist: cfg.HPP.Whitelist,
		Metrics:      m,
		Logger:       logger.With("component", "pipeline"),
	})
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, p *pipeline.Pipeline) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	if cfg.Server.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.HTTPErrorHandler = middleware.ErrorHandler(logger, cfg.IsDevelopment())

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.MetricsMiddleware(m))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(p.Middleware())

	return e
}

func newDocs(cfg *config.Config, logger *slog.Logger) (*handler.DocsHandler, error) {
	h, err := handler.LoadDocs(cfg.Docs.File)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("api docs not found, route disabled", "file", cfg.Docs.File)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func newHealthHandler(cfg *config.Config, v handler.Version, st store.Store, p *pipeline.Pipeline) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg, v, st, handler.StageNames(p.Names()))
}

type routeParams struct {
	fx.In

	Echo      *echo.Echo
	Config    *config.Config
	Metrics   *metrics.Metrics
	Tokens    *auth.Tokens
	Users     *service.AuthService
	Health    *handler.HealthHandler
	Resources *handler.Resources
	Photos    *handler.PhotoHandler
	Auth      *handler.AuthHandler
	Docs      *handler.DocsHandler
}

func registerRoutes(p routeParams) {
	handler.RegisterRoutes(p.Echo, p.Config, handler.Routes{
		Health:    p.Health,
		Resources: p.Resources,
		Photos:    p.Photos,
		Auth:      p.Auth,
		Docs:      p.Docs,
		Metrics:   promhttp.HandlerFor(p.Metrics.Registry, promhttp.HandlerOpts{}),
		Protect:   auth.Protect(p.Tokens, p.Users),
	})
}

func logStartup(cfg *config.Config, logger *slog.Logger, p *pipeline.Pipeline) {
	cfg.WarnPermissions(logger)
	cfg.LogSMTP(logger)
	logger.Info("request pipeline", "stages", p.Names())
}

func startServer(lc fx.Lifecycle, sd fx.Shutdowner, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "version", version)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
					if err := sd.Shutdown(fx.ExitCode(1)); err != nil {
						logger.Error("shutdown", "err", err)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}
