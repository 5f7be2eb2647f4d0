package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a missing or invalid credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated but disallowed request.
	ErrForbidden = errors.New("forbidden")
	// ErrTenantMissing occurs when a core operation runs without a resolved tenant.
	ErrTenantMissing = errors.New("tenant context missing")
)
