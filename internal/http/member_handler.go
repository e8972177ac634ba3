package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
)

type memberService interface {
	Enroll(ctx context.Context, params application.EnrollParams) (domain.Member, error)
	PurchaseRecharge(ctx context.Context, params application.PurchaseRechargeParams) (application.PurchaseResult, error)
	Member(ctx context.Context, id string) (domain.Member, error)
	Members(ctx context.Context) ([]domain.Member, error)
	Balance(ctx context.Context, id string) (application.MemberBalance, error)
}

// MemberHandler serves enrollment, member lookups and recharge sales.
type MemberHandler struct {
	service   memberService
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewMemberHandler(service memberService, now func() time.Time, logger *slog.Logger) *MemberHandler {
	if now == nil {
		now = time.Now
	}
	base := defaultLogger(logger)
	return &MemberHandler{service: service, now: now, responder: newResponder(base), logger: base}
}

func (h *MemberHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MemberHandler", operation, attrs...)
}

func (h *MemberHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error, attrs ...any) {
	h.log(r.Context(), operation, attrs...).
		WarnContext(r.Context(), "member request rejected", "error", err, "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(r.Context(), w, err)
}

func (h *MemberHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req enrollRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Enroll", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode enroll request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	member, err := h.service.Enroll(r.Context(), application.EnrollParams{
		ID:   strings.TrimSpace(req.ID),
		Name: strings.TrimSpace(req.Name),
		Tier: domain.Tier(strings.TrimSpace(req.Tier)),
	})
	if err != nil {
		h.fail(w, r, "Enroll", err)
		return
	}

	h.log(r.Context(), "Enroll", "member_id", member.ID).InfoContext(r.Context(), "member enrolled")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toMemberDTO(member, h.now()))
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	members, err := h.service.Members(r.Context())
	if err != nil {
		h.fail(w, r, "List", err)
		return
	}
	now := h.now()
	out := listMembersResponse{Members: make([]memberDTO, 0, len(members))}
	for _, m := range members {
		out.Members = append(out.Members, toMemberDTO(m, now))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	member, err := h.service.Member(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Get", err, "member_id", id)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMemberDTO(member, h.now()))
}

func (h *MemberHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	balance, err := h.service.Balance(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Balance", err, "member_id", id)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, balanceResponse{
		MemberID:      balance.MemberID,
		ActiveSeconds: seconds(balance.Active),
	})
}

func (h *MemberHandler) PurchaseRecharge(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "PurchaseRecharge", "member_id", id, "error_kind", "bad_request").
			WarnContext(r.Context(), "failed to decode purchase request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	res, err := h.service.PurchaseRecharge(r.Context(), application.PurchaseRechargeParams{
		MemberID:  id,
		PackageID: strings.TrimSpace(req.PackageID),
		Payment:   req.Payment.toInput(),
		SkipBill:  req.SkipBill,
		CycleTag:  strings.TrimSpace(req.CycleTag),
	})
	if err != nil {
		h.fail(w, r, "PurchaseRecharge", err, "member_id", id)
		return
	}

	now := h.now()
	out := purchaseResponse{
		Member:   toMemberDTO(res.Member, now),
		Recharge: toRechargeDTO(res.Recharge, now),
	}
	if res.Bill != nil {
		bill := toBillDTO(*res.Bill)
		out.Bill = &bill
	}
	h.log(r.Context(), "PurchaseRecharge", "member_id", id, "recharge_id", res.Recharge.ID).InfoContext(r.Context(), "recharge sold")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, out)
}

type listMembersResponse struct {
	Members []memberDTO `json:"members"`
}
