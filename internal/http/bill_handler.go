package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/persistence"
)

type billService interface {
	Bill(ctx context.Context, id string) (domain.Bill, error)
	Bills(ctx context.Context, filter persistence.BillFilter) ([]domain.Bill, error)
}

// BillHandler serves settled bills.
type BillHandler struct {
	service   billService
	responder responder
	logger    *slog.Logger
}

func NewBillHandler(service billService, logger *slog.Logger) *BillHandler {
	base := defaultLogger(logger)
	return &BillHandler{service: service, responder: newResponder(base), logger: base}
}

// List filters by station_id, member_id and cycle_tag, newest first, capped
// by limit.
func (h *BillHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter, err := buildBillFilter(r)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadQuery)
		return
	}
	bills, err := h.service.Bills(r.Context(), filter)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "BillHandler", "List").
			ErrorContext(r.Context(), "bill listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBillsResponse{Bills: toBillDTOs(bills)})
}

func (h *BillHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	bill, err := h.service.Bill(r.Context(), id)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "BillHandler", "Get", "bill_id", id).
			WarnContext(r.Context(), "bill lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBillDTO(bill))
}

func buildBillFilter(r *http.Request) (persistence.BillFilter, error) {
	q := r.URL.Query()
	filter := persistence.BillFilter{
		StationID: strings.TrimSpace(q.Get("station_id")),
		MemberID:  strings.TrimSpace(q.Get("member_id")),
		CycleTag:  strings.TrimSpace(q.Get("cycle_tag")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return persistence.BillFilter{}, errBadQuery
		}
		filter.Limit = limit
	}
	return filter, nil
}

type listBillsResponse struct {
	Bills []billDTO `json:"bills"`
}
