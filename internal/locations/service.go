package locations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the location registry.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new location.
type CreateInput struct {
	Code      string `json:"code" validate:"required,max=4"`
	Name      string `json:"name" validate:"required,max=120"`
	Type      Type   `json:"type" validate:"required"`
	ManagerID *int64 `json:"manager_id"`
	KeeperID  *int64 `json:"keeper_id"`
	Hidden    bool   `json:"hidden"`
	// ExplicitID lets provisioning insert the sentinel partners with fixed ids.
	ExplicitID string `json:"-"`
	ActorID    int64  `json:"-"`
}

// Create registers a new location. The identity is {code}{5-digit sequence};
// the sequence is reserved in the same transaction as the insert.
func (s *Service) Create(ctx context.Context, input CreateInput) (Location, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Location{}, err
	}

	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || len(input.Code) > 4 {
		return Location{}, fmt.Errorf("%w: code must be 1-4 characters", ErrInvalidInput)
	}
	if input.Name == "" {
		return Location{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if !input.Type.IsValid() {
		return Location{}, fmt.Errorf("%w: type must be internal or partner", ErrInvalidInput)
	}

	var loc Location
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		if exists, err := tx.ExistsCode(ctx, input.Code); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: code %s", ErrDuplicateLocation, input.Code)
		}
		if exists, err := tx.ExistsName(ctx, input.Name); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: name %s", ErrDuplicateLocation, input.Name)
		}
		if input.ExplicitID != "" {
			if exists, err := tx.ExistsID(ctx, input.ExplicitID); err != nil {
				return err
			} else if exists {
				return fmt.Errorf("%w: id %s", ErrDuplicateLocation, input.ExplicitID)
			}
		}

		if !input.Hidden && !isSentinelCode(input.Code) {
			if err := s.checkCapacity(ctx, tx); err != nil {
				return err
			}
		}

		seq, err := tx.NextSequence(ctx, input.Code)
		if err != nil {
			return err
		}
		id := input.ExplicitID
		if id == "" {
			id = sequence.Format(input.Code, 5, seq)
		}

		now := time.Now().UTC()
		loc = Location{
			ID:         id,
			Code:       input.Code,
			SequenceNo: seq,
			Name:       input.Name,
			Type:       input.Type,
			ManagerID:  input.ManagerID,
			KeeperID:   input.KeeperID,
			Hidden:     input.Hidden,
			CreatedBy:  input.ActorID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.Insert(ctx, loc)
	})
	if err != nil {
		return Location{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "location:create",
			Entity:   "location",
			EntityID: loc.ID,
			Meta:     map[string]any{"code": loc.Code, "name": loc.Name, "type": loc.Type},
		})
	}
	return loc, nil
}

// checkCapacity enforces the visible-location cap while multi-location is off.
func (s *Service) checkCapacity(ctx context.Context, tx TxRepository) error {
	active, err := tx.MultiLocationActive(ctx)
	if err != nil {
		return err
	}
	if active {
		return nil
	}
	n, err := tx.CountVisible(ctx)
	if err != nil {
		return err
	}
	if n >= MaxVisibleLocations {
		return ErrCapacityExceeded
	}
	return nil
}

// Get returns one location.
func (s *Service) Get(ctx context.Context, id string) (Location, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Location{}, err
	}
	return s.repo.Get(ctx, schema, id)
}

// ListActive returns all non-hidden locations excluding the sentinel partners.
func (s *Service) ListActive(ctx context.Context) ([]Location, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListActive(ctx, schema)
}

// ToggleMultiLocation flips the singleton multi-location flag. Deactivation is
// blocked while more than one visible location remains.
func (s *Service) ToggleMultiLocation(ctx context.Context, activate bool, actorID int64) error {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		if !activate {
			n, err := tx.CountVisible(ctx)
			if err != nil {
				return err
			}
			if n > 1 {
				return ErrInvariantViolation
			}
		}
		return tx.SetMultiLocation(ctx, activate)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "location:multi-location",
			Entity:   "multi_location",
			EntityID: "singleton",
			Meta:     map[string]any{"activated": activate},
		})
	}
	return nil
}

// Archive hides a location without deleting it.
func (s *Service) Archive(ctx context.Context, id string) error {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		return tx.SetHidden(ctx, id, true)
	})
}

// Restore unhides a location, re-checking the visible-location cap.
func (s *Service) Restore(ctx context.Context, id string) error {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, schema, func(ctx context.Context, tx TxRepository) error {
		loc, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if loc.Hidden && !loc.IsSentinel() {
			if err := s.checkCapacity(ctx, tx); err != nil {
				return err
			}
		}
		return tx.SetHidden(ctx, id, false)
	})
}

func isSentinelCode(code string) bool {
	return code == SentinelSupplierCode || code == SentinelCustomerCode
}
