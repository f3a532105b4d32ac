package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfhttp "github.com/sst-platform/incidentd/internal/adapter/http"
	cfnats "github.com/sst-platform/incidentd/internal/adapter/nats"
	"github.com/sst-platform/incidentd/internal/adapter/natskv"
	cfotel "github.com/sst-platform/incidentd/internal/adapter/otel"
	"github.com/sst-platform/incidentd/internal/adapter/postgres"
	"github.com/sst-platform/incidentd/internal/adapter/ristretto"
	"github.com/sst-platform/incidentd/internal/adapter/sse"
	"github.com/sst-platform/incidentd/internal/adapter/tiered"
	"github.com/sst-platform/incidentd/internal/adapter/ws"
	"github.com/sst-platform/incidentd/internal/config"
	"github.com/sst-platform/incidentd/internal/logger"
	"github.com/sst-platform/incidentd/internal/middleware"
	"github.com/sst-platform/incidentd/internal/port/cache"
	"github.com/sst-platform/incidentd/internal/realtime"
	"github.com/sst-platform/incidentd/internal/resilience"
	"github.com/sst-platform/incidentd/internal/service"
)

// streamPrefix is excluded from request tracing; sessions live for hours.
const streamPrefix = "/api/v1/stream"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"queue_capacity", cfg.Realtime.QueueCapacity,
		"relay", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	otelShutdown, err := cfotel.Setup(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	var incidentCache cache.Cache = l1

	var relay *cfnats.Relay
	if cfg.NATS.URL != "" {
		relay, err = cfnats.Connect(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = relay.Close() }()

		if cfg.NATS.CacheBucket != "" {
			kv, err := relay.KeyValue(ctx, cfg.NATS.CacheBucket, cfg.Cache.TTL)
			if err != nil {
				slog.Warn("nats kv unavailable, cache stays in-process", "bucket", cfg.NATS.CacheBucket, "error", err)
			} else {
				incidentCache = tiered.New(l1, natskv.New(kv), cfg.Cache.TTL)
			}
		}
	}

	// --- Services ---

	store := postgres.NewStore(pool)
	hub := realtime.NewBroadcaster(
		realtime.WithQueueCapacity(cfg.Realtime.QueueCapacity),
		realtime.WithObserver(metrics),
	)

	incidentSvc := service.NewIncidentService(store, hub)
	incidentSvc.SetMetrics(metrics)
	incidentSvc.SetCache(incidentCache, cfg.Cache.TTL)
	if relay != nil {
		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		breaker.OnStateChange(func(from, to resilience.State) {
			slog.Warn("relay circuit breaker", "from", from.String(), "to", to.String())
		})
		incidentSvc.SetRelay(relay, cfg.NATS.Subject, breaker)
	}

	authSvc := service.NewAuthService(store, &cfg.Auth)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Auth:        authSvc,
		Incidents:   incidentSvc,
		Hub:         hub,
		SSE:         sse.NewHandler(hub, cfg.Realtime.HeartbeatInterval),
		WS:          ws.NewHandler(hub, cfg.Realtime.HeartbeatInterval, originPatterns(cfg.Server.CORSOrigin)...),
		AuthLimiter: limiter,
		DB:          store,
	}
	if relay != nil {
		handlers.Relay = relay
	}

	router := cfhttp.NewRouter(handlers, cfhttp.RouterConfig{
		CORSOrigin:     cfg.Server.CORSOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
		Tracing:        cfotel.HTTPMiddleware(cfg.Logging.Service, streamPrefix),
	})

	// Stream sessions derive from baseCtx; cancelling it on shutdown makes
	// every open session unregister and return.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	g, gctx := errgroup.WithContext(ctx)

	limiter.StartCleanup(gctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server", "subscribers", hub.SubscriberCount())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if werr := incidentSvc.WaitPublishes(shutdownCtx); werr != nil {
			slog.Warn("pending publishes abandoned", "error", werr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped", "stream", hub.Stats())
	return nil
}

// originPatterns converts the CORS origin into WebSocket origin host patterns.
func originPatterns(corsOrigin string) []string {
	if corsOrigin == "" || corsOrigin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(corsOrigin)
	if err != nil || u.Host == "" {
		return []string{corsOrigin}
	}
	return []string{u.Host}
}
