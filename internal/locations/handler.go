package locations

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages location HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/archive", h.archive)
	r.Post("/{id}/restore", h.restore)
}

// MountSettings registers the multi-location toggle route.
func (h *Handler) MountSettings(r chi.Router) {
	r.Put("/multi-location", h.toggleMultiLocation)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locs, err := h.service.ListActive(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": locs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeValid(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if actor := shared.UserFromContext(r.Context()); actor != nil {
		input.ActorID = actor.ID
	}
	loc, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Archive(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

type toggleRequest struct {
	Activate bool `json:"activate"`
}

func (h *Handler) toggleMultiLocation(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var actorID int64
	if actor := shared.UserFromContext(r.Context()); actor != nil {
		actorID = actor.ID
	}
	if err := h.service.ToggleMultiLocation(r.Context(), req.Activate, actorID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"activated": req.Activate})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateLocation),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrInvariantViolation),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("locations handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
