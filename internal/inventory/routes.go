// Package inventory wires the document workflow handlers under a single
// route tree.
package inventory

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory/adjustments"
	"github.com/meridian-erp/meridian-erp/internal/inventory/deliveries"
	"github.com/meridian-erp/meridian-erp/internal/inventory/receipts"
	"github.com/meridian-erp/meridian-erp/internal/inventory/scrap"
	"github.com/meridian-erp/meridian-erp/internal/inventory/stock"
	"github.com/meridian-erp/meridian-erp/internal/inventory/transfers"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler aggregates the inventory sub-handlers.
type Handler struct {
	Stock       *stock.Handler
	Adjustments *adjustments.Handler
	Scrap       *scrap.Handler
	Receipts    *receipts.Handler
	Transfers   *transfers.Handler
	Deliveries  *deliveries.Handler
}

// NewHandler builds every inventory service and handler against the shared
// pool. The locations and products services double as validation ports for
// the document workflows.
func NewHandler(logger *slog.Logger, pool *pgxpool.Pool,
	locs *locations.Service, prods *products.Service, audit *shared.AuditLogger) *Handler {

	orders := procurement.NewRepository(pool)

	return &Handler{
		Stock: stock.NewHandler(logger, stock.NewRepository(pool)),
		Adjustments: adjustments.NewHandler(logger,
			adjustments.NewService(adjustments.NewRepository(pool), locs, prods, audit)),
		Scrap: scrap.NewHandler(logger,
			scrap.NewService(scrap.NewRepository(pool), locs, prods, audit)),
		Receipts: receipts.NewHandler(logger,
			receipts.NewService(receipts.NewRepository(pool), locs, prods, orders, audit)),
		Transfers: transfers.NewHandler(logger,
			transfers.NewService(transfers.NewRepository(pool), locs, prods, audit)),
		Deliveries: deliveries.NewHandler(logger,
			deliveries.NewService(deliveries.NewRepository(pool), locs, prods, audit)),
	}
}

// MountRoutes registers the full inventory route tree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock", h.Stock.MountRoutes)
	r.Route("/adjustments", h.Adjustments.MountRoutes)
	r.Route("/scraps", h.Scrap.MountRoutes)
	r.Route("/receipts", h.Receipts.MountRoutes)
	r.Route("/transfers", h.Transfers.MountRoutes)
	r.Route("/deliveries", h.Deliveries.MountRoutes)
}
