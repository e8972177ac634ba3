package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/domain"
	fx "github.com/example/station-engine/internal/testfixtures"
)

type testServer struct {
	h       *fx.Harness
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	h := fx.NewHarness(t)
	h.SeedStations(t, fx.NewStation(), fx.NewStation(fx.WithStationID("ps5-2")))
	h.SeedMembers(t, fx.NewMember(fx.WithRecharges(fx.NewRecharge())))
	h.SeedPackages(t,
		fx.NewPackage(),
		fx.NewPackage(fx.WithPackageID("ten-hours", "Ten Hours"), fx.WithDuration(10*time.Hour), fx.WithPrice(900), fx.WithCapacity(1), fx.AsRechargePack(30)),
	)

	logger := slog.New(slog.DiscardHandler)
	handler := NewRouter(RouterConfig{
		Stations:   NewStationHandler(h.Sessions, h.Checkout, h.Catalog, logger),
		Members:    NewMemberHandler(h.Members, h.Clock.NowFunc(), logger),
		Catalog:    NewCatalogHandler(h.Catalog, logger),
		Bills:      NewBillHandler(h.Checkout, logger),
		Middleware: []func(http.Handler) http.Handler{RequestLogger(logger), Recoverer(logger)},
	})
	return &testServer{h: h, handler: handler}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	}
	return rec, payload
}

func TestStationLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/stations/ps5-1/session", map[string]any{
		"entrants": []map[string]any{
			{"member_id": "m-1", "plan": "walk_in", "package_id": "duo"},
			{"guest_name": "Kiran", "plan": "walk_in", "package_id": "duo"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in-use", body["status"])
	assert.Equal(t, "Duo Pack", body["package_name"])
	assert.Len(t, body["participants"], 2)

	rec, body = s.do(t, http.MethodPost, "/stations/ps5-1/items", map[string]any{"name": "Fries", "unit_price": "60", "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "food", body["kind"])

	s.h.Clock.Advance(30 * time.Minute)
	rec, body = s.do(t, http.MethodGet, "/stations/ps5-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1800), body["latest_seconds"])
	assert.Equal(t, "260", body["running_total"])
	assert.Len(t, body["lines"], 1)

	rec, body = s.do(t, http.MethodPost, "/stations/ps5-1/checkout", map[string]any{
		"payment":   map[string]any{"method": "cash"},
		"cycle_tag": "shift-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bill := body["bill"].(map[string]any)
	assert.Equal(t, "260", bill["total"])
	assert.Equal(t, "available", body["station"].(map[string]any)["status"])
	assert.Len(t, body["members"], 1)

	billID := bill["id"].(string)
	rec, body = s.do(t, http.MethodGet, "/bills/"+billID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, billID, body["id"])

	rec, body = s.do(t, http.MethodGet, "/bills?cycle_tag=shift-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["bills"], 1)

	rec, body = s.do(t, http.MethodGet, "/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["stations"], 2)
}

func TestTimersOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/stations/ps5-1/session", map[string]any{
		"entrants": []map[string]any{{"member_id": "m-1", "plan": "recharge", "duration_minutes": 60}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3600), body["latest_seconds"])

	rec, body = s.do(t, http.MethodPost, "/stations/ps5-1/time", map[string]any{"participant_ids": []string{"m-1"}, "duration_minutes": 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(5400), body["latest_seconds"])

	rec, body = s.do(t, http.MethodDelete, "/stations/ps5-1/time", map[string]any{"participant_ids": []string{"m-1"}, "duration_minutes": 45})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2700), body["latest_seconds"])

	rec, body = s.do(t, http.MethodPost, "/stations/ps5-1/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["paused"])

	rec, body = s.do(t, http.MethodPost, "/stations/ps5-1/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["paused"])

	s.h.Clock.Advance(20 * time.Minute)
	rec, body = s.do(t, http.MethodPost, "/stations/ps5-1/participants/m-1/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1200), body["played_seconds"])
	assert.Equal(t, float64(1200), body["debited_seconds"])
	assert.Equal(t, true, body["all_finished"])

	rec, body = s.do(t, http.MethodGet, "/members/m-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5*3600-1200), body["active_seconds"])
}

func TestMoveOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/stations/ps5-1/session", map[string]any{
		"entrants": []map[string]any{{"guest_name": "Kiran", "plan": "open"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := s.do(t, http.MethodPost, "/stations/ps5-1/move", map[string]any{"to_station_id": "ps5-2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ps5-2", body["id"])
	assert.Equal(t, domain.StationAvailable, s.h.Station(t, "ps5-1").Status)

	rec, body = s.do(t, http.MethodPost, "/stations/ps5-2/move", map[string]any{"to_station_id": "ps5-2"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["errors"], "to_station_id")
}

func TestErrorMappingOverHTTP(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "checkout of an idle station",
			method: http.MethodPost, path: "/stations/ps5-1/checkout",
			body:   map[string]any{"payment": map[string]any{"method": "cash"}},
			status: http.StatusConflict, code: "STATION_NOT_ACTIVE",
		},
		{
			name:   "unknown plan",
			method: http.MethodPost, path: "/stations/ps5-1/session",
			body:   map[string]any{"entrants": []map[string]any{{"member_id": "m-1", "plan": "vip"}}},
			status: http.StatusUnprocessableEntity, code: "VALIDATION_FAILED",
		},
		{
			name:   "recharge beyond balance",
			method: http.MethodPost, path: "/stations/ps5-1/session",
			body:   map[string]any{"entrants": []map[string]any{{"member_id": "m-1", "plan": "recharge", "duration_minutes": 600}}},
			status: http.StatusConflict, code: "INSUFFICIENT_BALANCE",
		},
		{
			name:   "malformed body",
			method: http.MethodPost, path: "/stations/ps5-1/session",
			body:   "{not json",
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown field",
			method: http.MethodPost, path: "/members",
			body:   map[string]any{"name": "Dana", "nickname": "D"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown station",
			method: http.MethodGet, path: "/stations/ghost",
			status: http.StatusNotFound, code: "NOT_FOUND",
		},
		{
			name:   "duplicate station",
			method: http.MethodPost, path: "/stations",
			body:   map[string]any{"id": "ps5-1", "name": "PS5 #1", "type": "console"},
			status: http.StatusConflict, code: "ALREADY_EXISTS",
		},
		{
			name:   "bad bill limit",
			method: http.MethodGet, path: "/bills?limit=-3",
			status: http.StatusBadRequest,
		},
		{
			name:   "bad availability flag",
			method: http.MethodGet, path: "/packages?available=maybe",
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := s.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.code != "" {
				assert.Equal(t, tc.code, body["error_code"])
			}
		})
	}
}

func TestMembersAndCatalogOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/members", map[string]any{"id": "m-9", "name": "Dana", "tier": "Green"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Green", body["tier"])

	rec, body = s.do(t, http.MethodPost, "/members/m-9/recharges", map[string]any{
		"package_id": "ten-hours",
		"payment":    map[string]any{"method": "split", "cash_amount": "500", "upi_amount": "400"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(36000), body["recharge"].(map[string]any)["remaining_seconds"])
	assert.Equal(t, "recharge_sale", body["bill"].(map[string]any)["kind"])
	assert.Equal(t, "900", body["member"].(map[string]any)["total_spent"])

	rec, body = s.do(t, http.MethodGet, "/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["members"], 2)

	rec, body = s.do(t, http.MethodPut, "/packages/happy-hour", map[string]any{
		"name":             "Happy Hour",
		"duration_minutes": 60,
		"price":            "99",
		"start_minutes":    12 * 60,
		"end_minutes":      16 * 60,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "happy-hour", body["id"])

	rec, body = s.do(t, http.MethodGet, "/packages?available=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["packages"], 2)

	rec, body = s.do(t, http.MethodGet, "/packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["packages"], 3)

	rec, _ = s.do(t, http.MethodGet, "/packages/happy-hour", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	handler := NewRouter(RouterConfig{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stations", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
