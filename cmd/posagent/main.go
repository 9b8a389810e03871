package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"udpadijaya/posagent/internal/cache"
	"udpadijaya/posagent/internal/config"
	"udpadijaya/posagent/internal/httpapi"
	"udpadijaya/posagent/internal/metrics"
	"udpadijaya/posagent/internal/refresh"
	"udpadijaya/posagent/internal/remote"
	"udpadijaya/posagent/internal/service"
	"udpadijaya/posagent/internal/store"
	"udpadijaya/posagent/internal/store/memory"
	mongostore "udpadijaya/posagent/internal/store/mongo"
	pgstore "udpadijaya/posagent/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var journal store.Journal
	closers := make([]func() error, 0, 3)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory journal", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema", zap.Error(err))
		}
		journal = pg
		closers = append(closers, pg.Close)
		logger.Info("journal: postgres")
	case cfg.MongoURI != "":
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Fatal("mongo unavailable and MONGO_URI is set; refusing to start with in-memory journal", zap.Error(err))
		}
		if err := mg.EnsureIndexes(ctx); err != nil {
			logger.Fatal("mongo indexes", zap.Error(err))
		}
		journal = mg
		closers = append(closers, func() error {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			return mg.Close(closeCtx)
		})
		logger.Info("journal: mongo", zap.String("database", cfg.MongoDatabase))
	default:
		journal = memory.New()
		logger.Info("journal: in-memory")
	}
	reportInterrupted(ctx, journal, logger)

	snapshots := cache.SnapshotCache(cache.NoopSnapshotCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, snapshots are not cached", zap.Error(err))
			_ = redisCache.Close()
		} else {
			snapshots = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("snapshot cache: redis")
		}
	} else {
		logger.Info("snapshot cache: noop")
	}

	client, err := remote.New(cfg.APIBaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
		remote.WithLogger(logger.Named("remote")),
	)
	if err != nil {
		logger.Fatal("remote client", zap.Error(err))
	}

	svc := service.New(client, service.Options{
		Cache:                   snapshots,
		Journal:                 journal,
		SnapshotTTL:             cfg.SnapshotTTL(),
		LenientPurchaseFinalize: cfg.LenientPurchaseComplete,
		MaxTerminals:            cfg.MaxTerminals,
		Logger:                  logger.Named("service"),
	})
	if cfg.ServiceToken != "" {
		if _, err := svc.OpenServiceTerminal(cfg.DefaultTerminalID, cfg.ServiceToken); err != nil {
			logger.Fatal("open default terminal", zap.Error(err))
		}
		logger.Info("default terminal ready", zap.String("terminal", cfg.DefaultTerminalID))
	}

	refresher := refresh.New(cfg.RefreshInterval(), svc.RefreshJobs, refresh.WithLogger(logger.Named("refresh")))
	if err := refresher.Start(); err != nil {
		logger.Fatal("start refresher", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		logger.Fatal("register metrics", zap.Error(err))
	}

	api := httpapi.New(svc, cfg.AllowedOrigin,
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithMetrics(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		httpapi.WithDefaultTerminal(cfg.DefaultTerminalID),
	)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// submissions post one request per line
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("POS agent listening", zap.String("addr", cfg.Address()), zap.String("api", client.BaseURL()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("agent stopped")
}

func validateConfig(cfg config.Config) error {
	parsed, err := url.Parse(cfg.APIBaseURL)
	if cfg.APIBaseURL == "" || err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) url")
	}
	if cfg.DatabaseURL != "" && cfg.MongoURI != "" {
		return fmt.Errorf("set only one of DATABASE_URL and MONGO_URI")
	}
	if cfg.ServiceToken != "" && cfg.DefaultTerminalID == "" {
		return fmt.Errorf("SERVICE_TOKEN needs DEFAULT_TERMINAL_ID")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}
	return nil
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// reportInterrupted logs submissions a previous run left pending. They are
// not resumed: lines before the cursor may already exist remotely.
func reportInterrupted(ctx context.Context, journal store.Journal, logger *zap.Logger) {
	pending, err := journal.ListIncomplete(ctx, "")
	if err != nil {
		logger.Warn("list interrupted submissions", zap.Error(err))
		return
	}
	for _, sub := range pending {
		logger.Warn("interrupted submission",
			zap.String("submission_id", sub.ID),
			zap.String("terminal", sub.TerminalID),
			zap.String("kind", sub.Kind),
			zap.Int("cursor", sub.Cursor),
			zap.Int("lines", len(sub.Lines)))
	}
}
