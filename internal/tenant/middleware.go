package tenant

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Middleware resolves the request hostname to a tenant and stores it in the
// request context. Requests from unregistered hosts are rejected before any
// handler runs.
func Middleware(logger *slog.Logger, resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := hostname(r)
			t, err := resolver.Resolve(r.Context(), host)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					httpx.Problem(w, http.StatusNotFound, "Unknown Tenant", "no tenant registered for host "+host)
					return
				}
				logger.Error("tenant resolve", slog.String("host", host), slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "tenant resolution failed")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), t)))
		})
	}
}

func hostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
