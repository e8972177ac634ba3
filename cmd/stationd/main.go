package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/config"
	"github.com/example/station-engine/internal/events"
	httptransport "github.com/example/station-engine/internal/http"
	"github.com/example/station-engine/internal/jobs"
	"github.com/example/station-engine/internal/logging"
	"github.com/example/station-engine/internal/metrics"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/memory"
	"github.com/example/station-engine/internal/persistence/redisstore"
	"github.com/example/station-engine/internal/persistence/sqlite"
	"github.com/example/station-engine/internal/settlement"
	"github.com/example/station-engine/internal/telemetry"
)

const serviceName = "stationd"

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger = logging.New(os.Stdout, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("station engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := newApp(cfg, backend, registry, logger)

	scheduler := cron.New()
	if cfg.ExpirySweep != "" {
		if _, err := app.sweep.Schedule(ctx, scheduler, cfg.ExpirySweep); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("station engine listening", "addr", server.Addr, "storage", cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// backend is the opened store plus the Redis client, when one is in use.
type backend struct {
	store persistence.Store
	redis *redis.Client
	// ownsClient is set when the client is not closed by the store.
	ownsClient bool
}

func (b *backend) Close() error {
	err := b.store.Close()
	if b.ownsClient && b.redis != nil {
		err = errors.Join(err, b.redis.Close())
	}
	return err
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	var client *redis.Client
	if cfg.Storage == config.StorageRedis || cfg.EventsToRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opts)
	}

	switch cfg.Storage {
	case config.StorageMemory:
		return &backend{store: memory.New(), redis: client, ownsClient: true}, nil
	case config.StorageSQLite:
		store, err := sqlite.OpenPath(ctx, cfg.SQLitePath, logger)
		if err != nil {
			closeClient(client)
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return &backend{store: store, redis: client, ownsClient: true}, nil
	case config.StorageRedis:
		store := redisstore.New(client, "")
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect redis storage: %w", err)
		}
		return &backend{store: store, redis: client}, nil
	default:
		closeClient(client)
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

func closeClient(client *redis.Client) {
	if client != nil {
		_ = client.Close()
	}
}

type app struct {
	handler http.Handler
	sweep   *jobs.ExpirySweep
}

// newPublisher logs every event and mirrors it to Redis Pub/Sub when
// configured.
func newPublisher(cfg config.Config, client *redis.Client, logger *slog.Logger) events.Publisher {
	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.EventsToRedis && client != nil {
		publisher = events.Multi{publisher, events.NewRedisPublisher(client, cfg.EventsChannel)}
	}
	return publisher
}

func newApp(cfg config.Config, b *backend, registry *prometheus.Registry, logger *slog.Logger) *app {
	publisher := newPublisher(cfg, b.redis, logger)
	m := metrics.New(registry)
	engine := settlement.NewEngine(settlement.Config{
		XPPerRupee:       cfg.XPPerRupee,
		XPPerLevel:       cfg.XPPerLevel,
		PointsPerLevelUp: cfg.PointsPerLevelUp,
		SplitTolerance:   cfg.SplitTolerance,
	})

	retry := persistence.DefaultRetryConfig()
	retry.MaxRetries = cfg.ConflictRetries
	if cfg.ConflictBackoff > 0 {
		retry.InitialDelay = cfg.ConflictBackoff
	}

	rt := application.Runtime{
		IDGenerator: uuid.NewString,
		Now:         time.Now,
		Logger:      logger,
		Events:      publisher,
		Metrics:     m,
		Retry:       retry,
	}

	store := b.store
	sessions := application.NewSessionServiceWithRuntime(store, store, store, rt)
	checkout := application.NewCheckoutServiceWithRuntime(store, store, store, store, engine, rt)
	members := application.NewMemberServiceWithRuntime(store, store, store, engine, rt)
	catalog := application.NewCatalogServiceWithRuntime(store, store, rt)

	routes := httptransport.RouterConfig{
		Stations: httptransport.NewStationHandler(sessions, checkout, catalog, logger),
		Members:  httptransport.NewMemberHandler(members, rt.Now, logger),
		Catalog:  httptransport.NewCatalogHandler(catalog, logger),
		Bills:    httptransport.NewBillHandler(checkout, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	}
	if cfg.MetricsEnabled {
		routes.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	return &app{
		handler: httptransport.NewRouter(routes),
		sweep:   jobs.NewExpirySweep(store, publisher, m, rt.Now, logger),
	}
}
