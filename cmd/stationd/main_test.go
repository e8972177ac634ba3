package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/config"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
)

func testConfig(storage string) config.Config {
	return config.Config{
		HTTPPort:         8080,
		Storage:          storage,
		EventsChannel:    "station-events",
		XPPerRupee:       decimal.NewFromFloat(0.1),
		XPPerLevel:       1000,
		PointsPerLevelUp: 100,
		SplitTolerance:   decimal.NewFromFloat(0.1),
		ConflictRetries:  3,
		MetricsEnabled:   true,
		LogLevel:         "info",
	}
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b, err := openBackend(ctx, testConfig(config.StorageMemory), discard())
		require.NoError(t, err)
		assert.Nil(t, b.redis)
		assert.NoError(t, b.Close())
	})

	t.Run("sqlite reopens an existing database", func(t *testing.T) {
		cfg := testConfig(config.StorageSQLite)
		cfg.SQLitePath = filepath.Join(t.TempDir(), "data", "stations.db")

		first, err := openBackend(ctx, cfg, discard())
		require.NoError(t, err)
		_, err = first.store.CreateStation(ctx, domain.Station{ID: "ps5-1", Name: "PS5 #1", Type: domain.StationConsole, Status: domain.StationAvailable})
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second, err := openBackend(ctx, cfg, discard())
		require.NoError(t, err)
		defer second.Close()
		st, err := second.store.GetStation(ctx, "ps5-1")
		require.NoError(t, err)
		assert.Equal(t, "PS5 #1", st.Name)
	})

	t.Run("redis url must parse", func(t *testing.T) {
		cfg := testConfig(config.StorageRedis)
		cfg.RedisURL = "not a url"
		_, err := openBackend(ctx, cfg, discard())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse redis url")
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := openBackend(ctx, testConfig("etcd"), discard())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"etcd"`)
	})
}

func TestNewPublisher(t *testing.T) {
	cfg := testConfig(config.StorageMemory)

	_, ok := newPublisher(cfg, nil, discard()).(*events.LogPublisher)
	assert.True(t, ok, "events are only logged by default")

	cfg.EventsToRedis = true
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	multi, ok := newPublisher(cfg, client, discard()).(events.Multi)
	require.True(t, ok)
	require.Len(t, multi, 2)
	assert.IsType(t, &events.RedisPublisher{}, multi[1])
}

func TestNewAppServesRoutes(t *testing.T) {
	b, err := openBackend(context.Background(), testConfig(config.StorageMemory), discard())
	require.NoError(t, err)
	defer b.Close()

	registry := prometheus.NewRegistry()
	a := newApp(testConfig(config.StorageMemory), b, registry, discard())
	server := httptest.NewServer(a.handler)
	defer server.Close()

	res, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))

	res, err = http.Post(server.URL+"/stations", "application/json",
		strings.NewReader(`{"id":"ps5-1","name":"PS5 #1","type":"console"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	res, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "station_engine_operations_total")

	expired, err := a.sweep.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestNewAppWithoutMetrics(t *testing.T) {
	cfg := testConfig(config.StorageMemory)
	cfg.MetricsEnabled = false
	b, err := openBackend(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer b.Close()

	a := newApp(cfg, b, prometheus.NewRegistry(), discard())
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
