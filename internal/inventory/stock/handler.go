package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes read access to the ledger.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers ledger read routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.query)
	r.Get("/drift", h.drift)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", err.Error())
		return
	}

	locationID := r.URL.Query().Get("location")
	if locationID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location query parameter required")
		return
	}

	if p := r.URL.Query().Get("product"); p != "" {
		productID, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product must be an integer")
			return
		}
		row, err := h.repo.GetQuantity(ctx, schema, locationID, productID)
		if err != nil {
			h.logger.Error("stock query", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, row)
		return
	}

	rows, err := h.repo.ListByLocation(ctx, schema, locationID)
	if err != nil {
		h.logger.Error("stock list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

// drift recomputes ledger quantities from the move journal for the current
// tenant and reports mismatching rows. An empty list means the ledger and the
// journal agree.
func (h *Handler) drift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", err.Error())
		return
	}

	drifts, err := h.repo.ScanDrift(ctx, schema)
	if err != nil {
		h.logger.Error("stock drift", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": drifts})
}
