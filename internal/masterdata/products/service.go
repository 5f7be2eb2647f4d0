package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service provides product master data operations.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput describes a new product.
type CreateInput struct {
	Code  string  `json:"code" validate:"required,max=32"`
	Name  string  `json:"name" validate:"required,max=160"`
	UOM   string  `json:"uom"`
	Price float64 `json:"price" validate:"gte=0"`
}

// Create registers a product.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Product{}, err
	}
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if input.Code == "" || input.Name == "" {
		return Product{}, fmt.Errorf("%w: code and name required", ErrInvalidInput)
	}
	if input.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	}
	uom := input.UOM
	if uom == "" {
		uom = "PCS"
	}
	return s.repo.Create(ctx, schema, Product{
		Code:  input.Code,
		Name:  input.Name,
		UOM:   uom,
		Price: input.Price,
	})
}

// List returns products, optionally including hidden ones.
func (s *Service) List(ctx context.Context, includeHidden bool) ([]Product, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, schema, includeHidden)
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return Product{}, err
	}
	return s.repo.Get(ctx, schema, id)
}

// Archive hides a product from new documents.
func (s *Service) Archive(ctx context.Context, id int64) error {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.SetHidden(ctx, schema, id, true)
}

// Restore unhides a product.
func (s *Service) Restore(ctx context.Context, id int64) error {
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return err
	}
	return s.repo.SetHidden(ctx, schema, id, false)
}

// EnsureVisible verifies every referenced product exists and is not hidden.
// Document services call this during creation and item updates.
func (s *Service) EnsureVisible(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	schema, err := shared.SchemaFromContext(ctx)
	if err != nil {
		return err
	}
	visible, err := s.repo.VisibleIDs(ctx, schema, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !visible[id] {
			return fmt.Errorf("%w: product %d", ErrHiddenProduct, id)
		}
	}
	return nil
}
