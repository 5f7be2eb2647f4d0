package shared

import (
	"context"

	"github.com/google/uuid"
)

// Tenant identifies the resolved tenant for the current request. The Schema
// field names the PostgreSQL schema every core read/write must execute in.
type Tenant struct {
	ID     uuid.UUID
	Name   string
	Host   string
	Schema string
}

// User is the authenticated actor attached to the request.
type User struct {
	ID    int64
	Email string
	Name  string
}

type tenantContextKey struct{}
type userContextKey struct{}

// ContextWithTenant stores the resolved tenant in context.
func ContextWithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the resolved tenant, or nil.
func TenantFromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(tenantContextKey{}).(*Tenant)
	return t
}

// SchemaFromContext returns the tenant schema or an error when unresolved.
// Core services call this so a request can never silently run against public.
func SchemaFromContext(ctx context.Context) (string, error) {
	t := TenantFromContext(ctx)
	if t == nil || t.Schema == "" {
		return "", ErrTenantMissing
	}
	return t.Schema, nil
}

// ContextWithUser stores the authenticated user in context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}
