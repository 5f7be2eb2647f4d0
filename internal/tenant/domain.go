// Package tenant owns tenant registration and per-request resolution. Each
// tenant's data lives in its own PostgreSQL schema, provisioned at
// registration and resolved from the request hostname afterwards.
package tenant

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tenant is one registered organization.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Schema    string    `json:"schema"`
	CreatedAt time.Time `json:"created_at"`
}

// Domain errors.
var (
	ErrNotFound      = errors.New("tenant not found")
	ErrDuplicateHost = errors.New("host is already registered")
	ErrInvalidName   = errors.New("tenant name must be lowercase alphanumeric")
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]{1,30}$`)

// SchemaName derives the schema identifier for a tenant name. Names are
// restricted so the result is always a safe identifier.
func SchemaName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !namePattern.MatchString(name) {
		return "", ErrInvalidName
	}
	return "t_" + name, nil
}
