// Package jobs holds the background work scheduled next to the HTTP server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/logging"
	"github.com/example/station-engine/internal/metrics"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/session"
)

// ExpirySweep reports running stations whose timed participants have all run
// out. It never changes a station; staff settle them through checkout.
type ExpirySweep struct {
	stations persistence.StationStore
	events   events.Publisher
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
	// notified maps a station to the start of the session already reported.
	notified map[string]time.Time
}

// NewExpirySweep constructs a sweep. A nil publisher drops events and a nil
// logger discards output.
func NewExpirySweep(stations persistence.StationStore, publisher events.Publisher, m *metrics.Metrics, now func() time.Time, logger *slog.Logger) *ExpirySweep {
	if publisher == nil {
		publisher = events.Nop
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ExpirySweep{
		stations: stations,
		events:   publisher,
		metrics:  m,
		now:      now,
		logger:   logger,
		notified: make(map[string]time.Time),
	}
}

// Sweep lists the expired stations and publishes one TimerExpired per
// session. A session already reported is not reported again.
func (j *ExpirySweep) Sweep(ctx context.Context) ([]string, error) {
	if j.stations == nil {
		return nil, fmt.Errorf("station store not configured")
	}
	logger := logging.FromContextOr(ctx, j.logger).With("job", "ExpirySweep")

	stations, err := j.stations.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	now := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()

	var expired []string
	seen := make(map[string]struct{}, len(stations))
	for _, st := range stations {
		if !session.Snapshot(st, now).Expired() {
			continue
		}
		expired = append(expired, st.ID)
		seen[st.ID] = struct{}{}

		started := sessionStart(st)
		if at, ok := j.notified[st.ID]; ok && at.Equal(started) {
			continue
		}
		j.notified[st.ID] = started
		if err := j.events.Publish(ctx, events.TimerExpired(st.ID, now)); err != nil {
			logger.WarnContext(ctx, "failed to publish timer expiry", "station_id", st.ID, "error", err)
		}
	}
	for id := range j.notified {
		if _, ok := seen[id]; !ok {
			delete(j.notified, id)
		}
	}

	j.metrics.SetExpiredStations(len(expired))
	if len(expired) > 0 {
		logger.InfoContext(ctx, "stations out of time", "count", len(expired), "station_ids", expired)
	}
	return expired, nil
}

func sessionStart(st domain.Station) time.Time {
	if st.StartTime == nil {
		return time.Time{}
	}
	return *st.StartTime
}

// Schedule registers the sweep on c under spec. Failures are logged; the
// next tick tries again.
func (j *ExpirySweep) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		}
	})
}
