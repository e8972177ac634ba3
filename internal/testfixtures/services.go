package testfixtures

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/metrics"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/persistence/memory"
	"github.com/example/station-engine/internal/persistence/sqlite"
	"github.com/example/station-engine/internal/persistence/sqlite/migration"
	"github.com/example/station-engine/internal/settlement"
)

// Harness wires every application service over one store with a
// controllable clock, deterministic ids and recording collaborators.
type Harness struct {
	Store    persistence.Store
	Clock    *Clock
	IDs      *IDGenerator
	Events   *EventRecorder
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Spans    *tracetest.SpanRecorder
	Engine   *settlement.Engine
	Runtime  application.Runtime

	Sessions *application.SessionService
	Checkout *application.CheckoutService
	Members  *application.MemberService
	Catalog  *application.CatalogService
}

// HarnessOption configures NewHarness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	store  func(tb testing.TB) persistence.Store
	clock  *Clock
	logger *slog.Logger
	engine settlement.Config
}

// WithStore runs the services over store instead of an in-memory one.
func WithStore(store persistence.Store) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.store = func(testing.TB) persistence.Store { return store }
	}
}

// WithSQLite runs the services over a migrated SQLite file in a temporary
// directory.
func WithSQLite() HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.store = func(tb testing.TB) persistence.Store { return NewSQLiteStore(tb) }
	}
}

// WithClock overrides the harness clock.
func WithClock(clock *Clock) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.clock = clock
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.logger = logger
	}
}

// WithSettlementConfig overrides the reward constants.
func WithSettlementConfig(engine settlement.Config) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.engine = engine
	}
}

// NewHarness builds the services. The store is closed when the test ends.
func NewHarness(tb testing.TB, opts ...HarnessOption) *Harness {
	tb.Helper()

	cfg := harnessConfig{
		store:  func(testing.TB) persistence.Store { return memory.New() },
		clock:  NewClock(time.Time{}),
		logger: slog.New(slog.DiscardHandler),
		engine: settlement.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := cfg.store(tb)
	tb.Cleanup(func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	tb.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	h := &Harness{
		Store:    store,
		Clock:    cfg.clock,
		IDs:      NewIDGenerator("id"),
		Events:   &EventRecorder{},
		Registry: registry,
		Metrics:  metrics.New(registry),
		Spans:    spans,
		Engine:   settlement.NewEngine(cfg.engine),
	}
	h.Runtime = application.Runtime{
		IDGenerator: h.IDs.NextFunc(),
		Now:         h.Clock.NowFunc(),
		Logger:      cfg.logger,
		Events:      h.Events,
		Metrics:     h.Metrics,
		Retry: persistence.RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
		Tracer: provider.Tracer("testfixtures"),
	}

	h.Sessions = application.NewSessionServiceWithRuntime(store, store, store, h.Runtime)
	h.Checkout = application.NewCheckoutServiceWithRuntime(store, store, store, store, h.Engine, h.Runtime)
	h.Members = application.NewMemberServiceWithRuntime(store, store, store, h.Engine, h.Runtime)
	h.Catalog = application.NewCatalogServiceWithRuntime(store, store, h.Runtime)
	return h
}

// SeedStations stores stations, failing the test on error.
func (h *Harness) SeedStations(tb testing.TB, stations ...domain.Station) {
	tb.Helper()
	for _, st := range stations {
		if _, err := h.Store.CreateStation(context.Background(), st); err != nil {
			tb.Fatalf("seed station %s: %v", st.ID, err)
		}
	}
}

// SeedMembers stores members, failing the test on error.
func (h *Harness) SeedMembers(tb testing.TB, members ...domain.Member) {
	tb.Helper()
	for _, m := range members {
		if _, err := h.Store.CreateMember(context.Background(), m); err != nil {
			tb.Fatalf("seed member %s: %v", m.ID, err)
		}
	}
}

// SeedPackages stores packages, failing the test on error.
func (h *Harness) SeedPackages(tb testing.TB, packages ...domain.Package) {
	tb.Helper()
	for _, pkg := range packages {
		if err := h.Store.SavePackage(context.Background(), pkg); err != nil {
			tb.Fatalf("seed package %s: %v", pkg.ID, err)
		}
	}
}

// Station reloads a station, failing the test on error.
func (h *Harness) Station(tb testing.TB, id string) domain.Station {
	tb.Helper()
	st, err := h.Store.GetStation(context.Background(), id)
	if err != nil {
		tb.Fatalf("load station %s: %v", id, err)
	}
	return st
}

// Member reloads a member, failing the test on error.
func (h *Harness) Member(tb testing.TB, id string) domain.Member {
	tb.Helper()
	m, err := h.Store.GetMember(context.Background(), id)
	if err != nil {
		tb.Fatalf("load member %s: %v", id, err)
	}
	return m
}

// NewSQLiteStore opens a migrated SQLite store in a temporary directory.
func NewSQLiteStore(tb testing.TB) *sqlite.Store {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "stations.db")
	store, err := sqlite.Open(context.Background(), migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	return store
}
