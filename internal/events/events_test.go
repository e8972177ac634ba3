package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/domain"
)

var at = time.Date(2024, 5, 3, 21, 0, 0, 0, time.UTC)

func TestSessionTransitioned(t *testing.T) {
	before := domain.Station{ID: "ps5-1", Status: domain.StationAvailable}
	after := domain.Station{ID: "ps5-1", Status: domain.StationInUse}

	ev := SessionTransitioned("StartSession", before, after, at)
	assert.Equal(t, KindSessionTransitioned, ev.Kind)
	assert.Equal(t, domain.StationAvailable, ev.From)
	assert.Equal(t, domain.StationInUse, ev.To)
	assert.Equal(t, "StartSession", ev.Operation)
}

func TestBillCreatedCarriesTotal(t *testing.T) {
	ev := BillCreated(domain.Bill{ID: "b-1", StationID: "ps5-1", Total: decimal.NewFromInt(300), CycleTag: "shift-1", CreatedAt: at})
	require.NotNil(t, ev.Total)
	assert.True(t, ev.Total.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "b-1", ev.BillID)
	assert.Equal(t, at, ev.At)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := NewLogPublisher(logger).Publish(context.Background(), MemberUpdated("Checkout", "m-1", at))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "event", line["msg"])
	assert.Equal(t, "member.updated", line["kind"])
	assert.Equal(t, "m-1", line["member_id"])
	assert.Equal(t, "events", line["component"])
	assert.NotContains(t, line, "station_id")
}

func TestRedisPublisher(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ev := TimerExpired("ps5-1", at)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectPublish("station-events", payload).SetVal(1)

	require.NoError(t, NewRedisPublisher(db, "station-events").Publish(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisherWrapsFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ev := TimerExpired("ps5-1", at)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectPublish("station-events", payload).SetErr(errors.New("connection refused"))

	err = NewRedisPublisher(db, "station-events").Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timer.expired")
}

func TestMultiJoinsErrors(t *testing.T) {
	var got []Kind
	record := PublisherFunc(func(_ context.Context, ev Event) error {
		got = append(got, ev.Kind)
		return nil
	})
	boom := errors.New("boom")
	failing := PublisherFunc(func(context.Context, Event) error { return boom })

	err := Multi{record, nil, failing, record}.Publish(context.Background(), TimerExpired("ps5-1", at))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []Kind{KindTimerExpired, KindTimerExpired}, got)

	assert.NoError(t, Nop.Publish(context.Background(), Event{}))
}
