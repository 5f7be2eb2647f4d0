package auth

import (
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RequireUser rejects requests without a valid bearer token for the resolved
// tenant and stores the actor in the request context.
func RequireUser(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			schema, err := shared.SchemaFromContext(r.Context())
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
				return
			}

			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token, found := strings.CutPrefix(raw, "Bearer ")
			if !found || token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}

			actor, err := svc.Verify(token, schema)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", ErrTokenInvalid.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithUser(r.Context(), actor)))
		})
	}
}
