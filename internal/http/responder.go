package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/logging"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errBadQuery       = errors.New("query parameters are invalid")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// preconditionCodes names each rejected transition for clients.
var preconditionCodes = []struct {
	err  error
	code string
}{
	{domain.ErrStationNotAvailable, "STATION_NOT_AVAILABLE"},
	{domain.ErrStationNotActive, "STATION_NOT_ACTIVE"},
	{domain.ErrStationPaused, "STATION_PAUSED"},
	{domain.ErrStationNotPaused, "STATION_NOT_PAUSED"},
	{domain.ErrPlayerLimit, "PLAYER_LIMIT"},
	{domain.ErrNoParticipants, "NO_PARTICIPANTS"},
	{domain.ErrDuplicateParticipant, "DUPLICATE_PARTICIPANT"},
	{domain.ErrParticipantNotFound, "PARTICIPANT_NOT_FOUND"},
	{domain.ErrParticipantFinished, "PARTICIPANT_FINISHED"},
	{domain.ErrInvalidDuration, "INVALID_DURATION"},
	{domain.ErrNoTimer, "NO_TIMER"},
	{domain.ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{domain.ErrPackageUnavailable, "PACKAGE_UNAVAILABLE"},
	{domain.ErrLineNotFound, "LINE_NOT_FOUND"},
	{domain.ErrInvalidLine, "INVALID_LINE"},
	{domain.ErrInvalidAmount, "INVALID_AMOUNT"},
	{domain.ErrSplitMismatch, "SPLIT_MISMATCH"},
	{domain.ErrInvalidPayment, "INVALID_PAYMENT"},
}

func preconditionCode(err error) string {
	for _, c := range preconditionCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "PRECONDITION_FAILED"
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr  *application.ValidationError
		pcErr *domain.PreconditionError
		isErr *application.IncompleteSettlementError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &pcErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: preconditionCode(err),
			Message:   pcErr.Error(),
		})
	case errors.As(err, &isErr):
		// the bill exists; only member records are behind
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode:      "SETTLEMENT_INCOMPLETE",
			Message:        "the bill was stored but some member records could not be updated",
			BillID:         isErr.BillID,
			PendingMembers: isErr.MemberIDs(),
		})
	case errors.Is(err, application.ErrDebitDeferred):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "DEBIT_DEFERRED",
			Message:   "the participant was stopped, the recharge debit will be taken at checkout",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "the requested resource was not found"})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "ALREADY_EXISTS", Message: "the resource already exists"})
	case errors.Is(err, application.ErrTransient):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{ErrorCode: "CONCURRENT_UPDATE", Message: "the resource is busy, retry the request"})
	case errors.Is(err, application.ErrTampered):
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "BILL_TAMPERED", Message: "the stored bill failed its integrity check"})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, r.logger)
}

type errorResponse struct {
	ErrorCode      string            `json:"error_code,omitempty"`
	Message        string            `json:"message"`
	Errors         map[string]string `json:"errors,omitempty"`
	BillID         string            `json:"bill_id,omitempty"`
	PendingMembers []string          `json:"pending_members,omitempty"`
}

func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
