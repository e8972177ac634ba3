package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/station-engine/internal/application"
	"github.com/example/station-engine/internal/domain"
)

type catalogService interface {
	SavePackage(ctx context.Context, input application.PackageInput) (domain.Package, error)
	Package(ctx context.Context, id string) (domain.Package, error)
	Packages(ctx context.Context) ([]domain.Package, error)
	AvailablePackages(ctx context.Context) ([]domain.Package, error)
}

// CatalogHandler serves the package catalog.
type CatalogHandler struct {
	service   catalogService
	responder responder
	logger    *slog.Logger
}

func NewCatalogHandler(service catalogService, logger *slog.Logger) *CatalogHandler {
	base := defaultLogger(logger)
	return &CatalogHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *CatalogHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "CatalogHandler", operation, attrs...)
}

// Save creates or replaces the package named in the body.
func (h *CatalogHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req packageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Save", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode package request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if id := r.PathValue("id"); id != "" {
		req.ID = id
	}

	pkg, err := h.service.SavePackage(r.Context(), req.toInput())
	if err != nil {
		h.log(r.Context(), "Save", "package_id", req.ID).
			WarnContext(r.Context(), "package save rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toPackageDTO(pkg))
}

// List returns the catalog; ?available=true keeps only what can be sold now.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	availableOnly := false
	if raw := r.URL.Query().Get("available"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadQuery)
			return
		}
		availableOnly = parsed
	}

	var (
		packages []domain.Package
		err      error
	)
	if availableOnly {
		packages, err = h.service.AvailablePackages(r.Context())
	} else {
		packages, err = h.service.Packages(r.Context())
	}
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "package listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPackagesResponse{Packages: toPackageDTOs(packages)})
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	pkg, err := h.service.Package(r.Context(), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toPackageDTO(pkg))
}

type listPackagesResponse struct {
	Packages []packageDTO `json:"packages"`
}
