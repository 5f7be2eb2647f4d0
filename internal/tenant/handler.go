package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages tenant registration endpoints. These are mounted outside
// the tenant-resolving middleware since the caller has no tenant yet.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	resolver *Resolver
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, repo *Repository, resolver *Resolver) *Handler {
	return &Handler{logger: logger, repo: repo, resolver: resolver}
}

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.register)
}

type registerInput struct {
	Name string `json:"name" validate:"required,min=2,max=31"`
	Host string `json:"host" validate:"required,hostname"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var input registerInput
	if err := httpx.DecodeValid(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.repo.Create(r.Context(), input.Name, strings.ToLower(input.Host))
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateHost), errors.Is(err, ErrInvalidName):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("tenant register", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	h.resolver.Invalidate(r.Context(), t.Host)
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	total, err := h.repo.Count(r.Context())
	if err != nil {
		h.logger.Error("tenant count", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	p := shared.NewPagination(page, perPage, total)

	tenants, err := h.repo.List(r.Context(), p.PerPage, p.Offset())
	if err != nil {
		h.logger.Error("tenant list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": tenants, "pagination": p})
}
