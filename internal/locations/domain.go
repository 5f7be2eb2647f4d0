// Package locations manages warehouse locations and the multi-location toggle.
package locations

import (
	"errors"
	"time"
)

// Type distinguishes internal warehouse nodes from partner nodes.
type Type string

const (
	// TypeInternal is a location inside the warehouse.
	TypeInternal Type = "internal"
	// TypePartner is a supplier or customer node outside the warehouse.
	TypePartner Type = "partner"
)

// IsValid reports whether the type is one of the known values.
func (t Type) IsValid() bool {
	return t == TypeInternal || t == TypePartner
}

// Sentinel partner locations representing "outside the warehouse". They are
// provisioned with every tenant and excluded from active listings and from
// the visible-location capacity rule.
const (
	SentinelSupplierCode = "SUPP"
	SentinelCustomerCode = "CUST"
	SentinelSupplierID   = "SUPP00001"
	SentinelCustomerID   = "CUST00002"
)

// MaxVisibleLocations caps non-hidden locations while multi-location is off.
const MaxVisibleLocations = 3

// Location is an internal or partner node stock can sit in. Identity is
// {code}{5-digit sequence}, with the sequence scoped per code.
type Location struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	SequenceNo int64     `json:"sequence_no"`
	Name       string    `json:"name"`
	Type       Type      `json:"type"`
	ManagerID  *int64    `json:"manager_id,omitempty"`
	KeeperID   *int64    `json:"keeper_id,omitempty"`
	Hidden     bool      `json:"hidden"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsSentinel reports whether the location is one of the two partner sentinels.
func (l Location) IsSentinel() bool {
	return l.Code == SentinelSupplierCode || l.Code == SentinelCustomerCode
}

// Domain errors for the location registry.
var (
	// ErrNotFound indicates the requested location does not exist.
	ErrNotFound = errors.New("location not found")
	// ErrDuplicateLocation indicates a code, name or explicit id collision.
	ErrDuplicateLocation = errors.New("location code, name or id already exists")
	// ErrCapacityExceeded indicates the visible-location cap was hit while
	// multi-location is inactive.
	ErrCapacityExceeded = errors.New("multi location is inactive: at most 3 visible locations allowed")
	// ErrInvariantViolation indicates an attempt to deactivate multi-location
	// while more than one visible location remains.
	ErrInvariantViolation = errors.New("cannot deactivate multi location while multiple visible locations exist")
	// ErrInvalidInput indicates malformed create input.
	ErrInvalidInput = errors.New("invalid location input")
)
