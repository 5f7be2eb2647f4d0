package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/locations"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/tenant"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	TenantResolver   *tenant.Resolver
	TenantHandler    *tenant.Handler
	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	LocationsHandler *locations.Handler
	ProductsHandler  *products.Handler
	InventoryHandler *inventory.Handler
	JobsClient       *jobs.Client
}

// NewRouter constructs the chi.Router with Meridian defaults. Tenant
// registration and health checks stay outside the tenant-resolving group;
// everything else runs against a resolved tenant schema, and the core
// resources additionally require an authenticated actor.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/tenants", params.TenantHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(params.Logger, params.TenantResolver))

		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(params.AuthService))

			r.Route("/locations", params.LocationsHandler.MountRoutes)
			r.Route("/settings", params.LocationsHandler.MountSettings)
			r.Route("/products", params.ProductsHandler.MountRoutes)
			r.Route("/inventory", params.InventoryHandler.MountRoutes)

			if params.JobsClient != nil {
				r.Post("/jobs/drift-scan", func(w http.ResponseWriter, req *http.Request) {
					info, err := params.JobsClient.EnqueueStockDriftScan(req.Context(), time.Now().UTC())
					if err != nil {
						params.Logger.Error("enqueue drift scan", slog.Any("error", err))
						http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
						return
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusAccepted)
					_, _ = w.Write([]byte(`{"task_id":"` + info.ID + `"}`))
				})
			}
		})
	})

	return r
}
