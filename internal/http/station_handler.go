package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
	"github.com/example/station-engine/internal/session"
)

type sessionService interface {
	StartSession(ctx context.Context, params application.StartSessionParams) (domain.Station, error)
	JoinSession(ctx context.Context, params application.JoinSessionParams) (domain.Station, error)
	StopParticipant(ctx context.Context, params application.ParticipantParams) (application.StopResult, error)
	ToggleStation(ctx context.Context, stationID string) (domain.Station, bool, error)
	TogglePlayer(ctx context.Context, params application.ParticipantParams) (domain.Station, bool, error)
	AddTime(ctx context.Context, params application.TimeChangeParams) (domain.Station, error)
	ReduceTime(ctx context.Context, params application.TimeChangeParams) (domain.Station, error)
	MoveSession(ctx context.Context, params application.MoveSessionParams) (domain.Station, error)
	AddItem(ctx context.Context, params application.AddItemParams) (domain.LineItem, error)
	RemoveItem(ctx context.Context, params application.RemoveItemParams) (domain.Station, error)
	SetDiscount(ctx context.Context, params application.SetDiscountParams) (domain.Station, error)
	Station(ctx context.Context, stationID string) (domain.Station, error)
	Views(ctx context.Context) ([]session.View, error)
	Now() time.Time
}

type checkoutService interface {
	Checkout(ctx context.Context, params application.CheckoutParams) (application.CheckoutResult, error)
}

type stationRegistry interface {
	RegisterStation(ctx context.Context, params application.RegisterStationParams) (domain.Station, error)
}

// StationHandler serves the floor: station registration, live sessions and
// checkout.
type StationHandler struct {
	sessions  sessionService
	checkout  checkoutService
	registry  stationRegistry
	responder responder
	logger    *slog.Logger
}

func NewStationHandler(sessions sessionService, checkout checkoutService, registry stationRegistry, logger *slog.Logger) *StationHandler {
	base := defaultLogger(logger)
	return &StationHandler{
		sessions:  sessions,
		checkout:  checkout,
		registry:  registry,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *StationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StationHandler", operation, attrs...)
}

func (h *StationHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// decode reads the request body into req, answering 400 on failure.
func (h *StationHandler) decode(w http.ResponseWriter, r *http.Request, operation string, req any) bool {
	if err := decodeJSON(r, req); err != nil {
		h.log(r.Context(), operation, "station_id", r.PathValue("id"), "error_kind", "bad_request").
			WarnContext(r.Context(), "failed to decode request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

// reply writes the station, or maps err.
func (h *StationHandler) reply(w http.ResponseWriter, r *http.Request, operation string, st domain.Station, err error) {
	logger := h.log(r.Context(), operation, "station_id", r.PathValue("id"))
	if err != nil {
		logger.WarnContext(r.Context(), "station request rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStationDTO(st, h.sessions.Now()))
}

func (h *StationHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	views, err := h.sessions.Views(r.Context())
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "station listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listStationsResponse{Stations: toViewDTOs(views)})
}

func (h *StationHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if h.registry == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var req registerStationRequest
	if !h.decode(w, r, "Register", &req) {
		return
	}
	st, err := h.registry.RegisterStation(r.Context(), application.RegisterStationParams{
		ID:   strings.TrimSpace(req.ID),
		Name: strings.TrimSpace(req.Name),
		Type: domain.StationType(strings.TrimSpace(req.Type)),
	})
	if err != nil {
		h.reply(w, r, "Register", st, err)
		return
	}
	h.log(r.Context(), "Register", "station_id", st.ID).InfoContext(r.Context(), "station registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toStationDTO(st, h.sessions.Now()))
}

func (h *StationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	st, err := h.sessions.Station(r.Context(), r.PathValue("id"))
	h.reply(w, r, "Get", st, err)
}

func (h *StationHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req startSessionRequest
	if !h.decode(w, r, "Start", &req) {
		return
	}
	params := application.StartSessionParams{StationID: r.PathValue("id")}
	for _, e := range req.Entrants {
		params.Entrants = append(params.Entrants, e.toInput())
	}
	st, err := h.sessions.StartSession(r.Context(), params)
	h.reply(w, r, "Start", st, err)
}

func (h *StationHandler) Join(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req entrantRequest
	if !h.decode(w, r, "Join", &req) {
		return
	}
	st, err := h.sessions.JoinSession(r.Context(), application.JoinSessionParams{
		StationID: r.PathValue("id"),
		Entrant:   req.toInput(),
	})
	h.reply(w, r, "Join", st, err)
}

func (h *StationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.sessions.StopParticipant(r.Context(), application.ParticipantParams{
		StationID:     r.PathValue("id"),
		ParticipantID: r.PathValue("participant"),
	})
	if err != nil {
		h.reply(w, r, "Stop", domain.Station{}, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, stopResponse{
		Station:        toStationDTO(res.Station, h.sessions.Now()),
		PlayedSeconds:  seconds(res.Played),
		DebitedSeconds: seconds(res.Debited),
		AllFinished:    res.AllFinished,
	})
}

func (h *StationHandler) ToggleStation(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	st, paused, err := h.sessions.ToggleStation(r.Context(), r.PathValue("id"))
	h.replyToggle(w, r, "ToggleStation", st, paused, err)
}

func (h *StationHandler) TogglePlayer(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	st, paused, err := h.sessions.TogglePlayer(r.Context(), application.ParticipantParams{
		StationID:     r.PathValue("id"),
		ParticipantID: r.PathValue("participant"),
	})
	h.replyToggle(w, r, "TogglePlayer", st, paused, err)
}

func (h *StationHandler) replyToggle(w http.ResponseWriter, r *http.Request, operation string, st domain.Station, paused bool, err error) {
	if err != nil {
		h.reply(w, r, operation, st, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toggleResponse{
		Station: toStationDTO(st, h.sessions.Now()),
		Paused:  paused,
	})
}

func (h *StationHandler) AddTime(w http.ResponseWriter, r *http.Request) {
	h.changeTime(w, r, "AddTime", false)
}

func (h *StationHandler) ReduceTime(w http.ResponseWriter, r *http.Request) {
	h.changeTime(w, r, "ReduceTime", true)
}

func (h *StationHandler) changeTime(w http.ResponseWriter, r *http.Request, operation string, reduce bool) {
	if !h.ready(w) {
		return
	}
	var req timeChangeRequest
	if !h.decode(w, r, operation, &req) {
		return
	}
	params := application.TimeChangeParams{
		StationID:      r.PathValue("id"),
		ParticipantIDs: req.ParticipantIDs,
		Duration:       minutes(req.DurationMinutes),
		PackageID:      strings.TrimSpace(req.PackageID),
	}
	var (
		st  domain.Station
		err error
	)
	if reduce {
		st, err = h.sessions.ReduceTime(r.Context(), params)
	} else {
		st, err = h.sessions.AddTime(r.Context(), params)
	}
	h.reply(w, r, operation, st, err)
}

func (h *StationHandler) Move(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req moveRequest
	if !h.decode(w, r, "Move", &req) {
		return
	}
	st, err := h.sessions.MoveSession(r.Context(), application.MoveSessionParams{
		FromStationID: r.PathValue("id"),
		ToStationID:   strings.TrimSpace(req.ToStationID),
	})
	h.reply(w, r, "Move", st, err)
}

func (h *StationHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req addItemRequest
	if !h.decode(w, r, "AddItem", &req) {
		return
	}
	line, err := h.sessions.AddItem(r.Context(), application.AddItemParams{
		StationID: r.PathValue("id"),
		ItemID:    strings.TrimSpace(req.ItemID),
		Name:      strings.TrimSpace(req.Name),
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.reply(w, r, "AddItem", domain.Station{}, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toLineDTO(line))
}

func (h *StationHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	st, err := h.sessions.RemoveItem(r.Context(), application.RemoveItemParams{
		StationID: r.PathValue("id"),
		LineID:    r.PathValue("line"),
	})
	h.reply(w, r, "RemoveItem", st, err)
}

func (h *StationHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req discountRequest
	if !h.decode(w, r, "SetDiscount", &req) {
		return
	}
	st, err := h.sessions.SetDiscount(r.Context(), application.SetDiscountParams{
		StationID: r.PathValue("id"),
		Discount:  req.Discount,
	})
	h.reply(w, r, "SetDiscount", st, err)
}

func (h *StationHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if h.checkout == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	var req checkoutRequest
	if !h.decode(w, r, "Checkout", &req) {
		return
	}
	res, err := h.checkout.Checkout(r.Context(), application.CheckoutParams{
		StationID: r.PathValue("id"),
		Payment:   req.Payment.toInput(),
		CycleTag:  strings.TrimSpace(req.CycleTag),
	})
	if err != nil {
		h.reply(w, r, "Checkout", domain.Station{}, err)
		return
	}
	h.log(r.Context(), "Checkout", "station_id", r.PathValue("id"), "bill_id", res.Bill.ID).
		InfoContext(r.Context(), "station checked out")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCheckoutResponse(res, h.sessions.Now()))
}

type listStationsResponse struct {
	Stations []stationDTO `json:"stations"`
}
