package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/logging"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/settlement"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	t.Run("assigns a request id and a scoped logger", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		base := slog.New(slog.NewJSONHandler(&buf, nil))

		var seenID string
		handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := RequestIDFromContext(r.Context())
			require.True(t, ok)
			seenID = id
			require.NotNil(t, logging.FromContext(r.Context()))
			w.WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stations", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, seenID)
		assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "request completed", entry["msg"])
		assert.Equal(t, seenID, entry["request_id"])
		assert.Equal(t, float64(http.StatusTeapot), entry["status"])
		assert.Equal(t, "/stations", entry["path"])
	})

	t.Run("keeps an inbound request id", func(t *testing.T) {
		t.Parallel()

		handler := RequestLogger(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(RequestIDHeader, "till-7")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "till-7", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	handler := Recoverer(slog.New(slog.NewJSONHandler(&buf, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("till drawer jammed")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stations/ps5-1/checkout", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Contains(t, buf.String(), "till drawer jammed")
}

func TestPreconditionCodeFallsBack(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PRECONDITION_FAILED", preconditionCode(assert.AnError))
}

func TestHandleServiceErrorReportsPartialWrites(t *testing.T) {
	t.Parallel()

	r := newResponder(slog.New(slog.DiscardHandler))

	t.Run("incomplete settlement names the bill and the members", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("checkout: %w", &application.IncompleteSettlementError{
			BillID:  "bill-1",
			Pending: []settlement.MemberEffect{{MemberID: "m-1"}, {MemberID: "m-2"}},
			Err:     fmt.Errorf("member %q: %w: %w", "m-1", application.ErrTransient, persistence.ErrConflict),
		})
		rec := httptest.NewRecorder()
		r.handleServiceError(context.Background(), rec, err)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "SETTLEMENT_INCOMPLETE", body.ErrorCode)
		assert.Equal(t, "bill-1", body.BillID)
		assert.Equal(t, []string{"m-1", "m-2"}, body.PendingMembers)
	})

	t.Run("deferred debit is not reported as a plain retry", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("participant %q stopped: %w: %w", "m-1", application.ErrDebitDeferred, application.ErrTransient)
		rec := httptest.NewRecorder()
		r.handleServiceError(context.Background(), rec, err)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "DEBIT_DEFERRED", body.ErrorCode)
	})
}
