package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/api"
	"github.com/platinummonkey/atrium/pkg/async"
	"github.com/platinummonkey/atrium/pkg/authz"
	"github.com/platinummonkey/atrium/pkg/config"
	"github.com/platinummonkey/atrium/pkg/identity"
	"github.com/platinummonkey/atrium/pkg/invites"
	"github.com/platinummonkey/atrium/pkg/middleware"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/service"
	"github.com/platinummonkey/atrium/pkg/storage"
)

var version = "dev"

func main() {
	migrate := flag.Bool("migrate", false, "Apply pending migrations before serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *migrate); err != nil {
		logger.WithError(err).Fatal("Atrium exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, migrate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if path := os.Getenv(config.FileEnv); path != "" {
		async.SafeGo(ctx, logger, 0, "config watcher", func(ctx context.Context) error {
			return config.WatchLogLevel(ctx, path, logger)
		})
	}

	otelCfg := cfg.OTel()
	otelCfg.ServiceVersion = version
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return err
	}
	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		return fmt.Errorf("failed to create OTel instruments: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	db, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		return err
	}
	defer db.Close()
	if migrate {
		if err := storage.NewMigrator(db, logger).Up(ctx); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.RedisClient())
		if err != nil {
			if cfg.Cache.Backend == config.CacheBackendRedis {
				return err
			}
			logger.WithError(err).Warn("Redis unavailable, continuing with in-process cache and limits")
		} else {
			defer redisClient.Close()
		}
	}

	var cacheBackend authz.Backend = authz.NewMemoryBackend(cfg.PermissionCache())
	limiterCfg := middleware.TokenRateLimitConfig()
	limiterCfg.RequestsPerWindow = cfg.Server.TokenRateLimit
	var limiter middleware.Limiter = middleware.NewLocalLimiter(limiterCfg, 0)
	var leaser storage.Leaser
	if redisClient != nil {
		prefix := cfg.Redis.KeyPrefix + ":"
		if cfg.Cache.Backend == config.CacheBackendRedis {
			cacheBackend = authz.NewRedisBackend(redisClient, prefix+"perms:", cfg.PermissionCache(), metrics)
		}
		limiter = middleware.NewRedisLimiter(redisClient, limiterCfg, prefix+"ratelimit", metrics)
		leaser = storage.NewRedisLeaser(redisClient, prefix+"lease:")
	}

	svc := service.New(db, service.Options{
		InviteValidity: cfg.Invites.Validity,
		CacheBackend:   cacheBackend,
		Logger:         logger,
		Metrics:        metrics,
		OTelMetrics:    otelMetrics,
	})

	verifier, err := identity.NewOIDCVerifier(ctx, cfg.Identity(), nil)
	if err != nil {
		return err
	}

	apiServer := api.NewServer(svc, verifier, limiter, logger, metrics)
	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	adminMux := http.NewServeMux()
	health := observability.NewHealthChecker(db, redisClient, version, metrics)
	health.Timeout = cfg.Server.HealthTimeout
	observability.RegisterHealthRoutes(adminMux, health)
	if cfg.Observability.MetricsEnabled {
		adminMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	adminServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           adminMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, adminServer)

	if cfg.Invites.SweepInProcess {
		sweeper := invites.NewSweeper(svc.Invites(), leaser, cfg.Sweeper(), logger)
		if err := sweeper.Start(); err != nil {
			return err
		}
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			sweeper.Stop(ctx)
			return nil
		})
	}

	async.SafeGo(ctx, logger, 0, "db stats", func(ctx context.Context) error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				metrics.RecordDBStats(db.Stats())
			}
		}
	})

	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	serve := func(srv *http.Server, name string) {
		done := async.Run(ctx, logger, name, func(context.Context) error {
			logger.WithField("addr", srv.Addr).Infof("Starting %s", name)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		go func() {
			if err := <-done; err != nil {
				cancel()
			}
		}()
	}
	serve(httpServer, "api server")
	serve(adminServer, "admin server")

	return shutdown.WaitForShutdown(ctx)
}
