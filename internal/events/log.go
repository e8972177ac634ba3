package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes each event as one structured log line.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With(slog.String("component", "events"))}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("kind", string(event.Kind)),
		slog.Time("at", event.At),
	}
	if event.Operation != "" {
		attrs = append(attrs, slog.String("operation", event.Operation))
	}
	if event.StationID != "" {
		attrs = append(attrs, slog.String("station_id", event.StationID))
	}
	if event.From != "" || event.To != "" {
		attrs = append(attrs, slog.String("from", string(event.From)), slog.String("to", string(event.To)))
	}
	if event.MemberID != "" {
		attrs = append(attrs, slog.String("member_id", event.MemberID))
	}
	if event.BillID != "" {
		attrs = append(attrs, slog.String("bill_id", event.BillID))
	}
	if event.Total != nil {
		attrs = append(attrs, slog.String("total", event.Total.String()))
	}
	if event.CycleTag != "" {
		attrs = append(attrs, slog.String("cycle_tag", event.CycleTag))
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, "event", attrs...)
	return nil
}
