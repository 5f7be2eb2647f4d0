package receipts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages goods receipt HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update(true))
	r.Patch("/{id}", h.update(false))
	r.Post("/{id}/backorder", h.createBackOrder)
	r.Post("/{id}/correct", h.correctToReceived)
	r.Get("/{id}/returns", h.listReturns)
	r.Post("/{id}/returns", h.createReturn)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var kind *Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		kd := Kind(k)
		kind = &kd
	}
	var status *Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := Status(s)
		status = &st
	}
	items, err := h.service.List(r.Context(), kind, status)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
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
	rc, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rc)
}

func (h *Handler) update(replace bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		var input UpdateInput
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input.Replace = replace
		if actor := shared.UserFromContext(r.Context()); actor != nil {
			input.ActorID = actor.ID
		}
		rc, err := h.service.Update(r.Context(), id, input)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rc)
	}
}

func (h *Handler) createBackOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var actorID int64
	if actor := shared.UserFromContext(r.Context()); actor != nil {
		actorID = actor.ID
	}
	rc, err := h.service.CreateBackOrder(r.Context(), id, actorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rc)
}

func (h *Handler) correctToReceived(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var actorID int64
	if actor := shared.UserFromContext(r.Context()); actor != nil {
		actorID = actor.ID
	}
	rc, err := h.service.CorrectToReceived(r.Context(), id, actorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rc)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items, err := h.service.ListReturns(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var input ReturnInput
	if err := httpx.DecodeValid(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if actor := shared.UserFromContext(r.Context()); actor != nil {
		input.ActorID = actor.ID
	}
	ret, err := h.service.CreateReturn(r.Context(), id, input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrImmutableDocument),
		errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrLocationRequired),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrExpectedMismatch),
		errors.Is(err, ErrAlreadyFullyReceived),
		errors.Is(err, ErrDuplicateBackOrder),
		errors.Is(err, shared.ErrTenantMissing):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("receipts handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
