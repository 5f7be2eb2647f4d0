package products

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memRepo struct {
	items  map[int64]Product
	nextID int64
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]Product{}}
}

func (m *memRepo) List(_ context.Context, _ string, includeHidden bool) ([]Product, error) {
	var out []Product
	for _, p := range m.items {
		if p.Hidden && !includeHidden {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memRepo) Get(_ context.Context, _ string, id int64) (Product, error) {
	p, ok := m.items[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *memRepo) Create(_ context.Context, _ string, p Product) (Product, error) {
	for _, existing := range m.items {
		if existing.Code == p.Code {
			return Product{}, ErrDuplicateCode
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.items[p.ID] = p
	return p, nil
}

func (m *memRepo) SetHidden(_ context.Context, _ string, id int64, hidden bool) error {
	p, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	p.Hidden = hidden
	m.items[id] = p
	return nil
}

func (m *memRepo) VisibleIDs(_ context.Context, _ string, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if p, ok := m.items[id]; ok && !p.Hidden {
			out[id] = true
		}
	}
	return out, nil
}

func tenantCtx() context.Context {
	return shared.ContextWithTenant(context.Background(), &shared.Tenant{Schema: "t_acme"})
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := tenantCtx()

	p, err := svc.Create(ctx, CreateInput{Code: " P-100 ", Name: "Widget", Price: 12.5})
	require.NoError(t, err)
	require.Equal(t, "P-100", p.Code)
	require.Equal(t, "PCS", p.UOM)

	_, err = svc.Create(ctx, CreateInput{Code: "", Name: "Widget"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateInput{Code: "P-100", Name: "Dup", Price: 1})
	require.ErrorIs(t, err, ErrDuplicateCode)

	_, err = svc.Create(context.Background(), CreateInput{Code: "P-200", Name: "Widget"})
	require.ErrorIs(t, err, shared.ErrTenantMissing)
}

func TestEnsureVisibleRejectsHidden(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := tenantCtx()

	p, err := svc.Create(ctx, CreateInput{Code: "P-100", Name: "Widget", Price: 1})
	require.NoError(t, err)
	require.NoError(t, svc.EnsureVisible(ctx, []int64{p.ID}))

	require.NoError(t, svc.Archive(ctx, p.ID))
	err = svc.EnsureVisible(ctx, []int64{p.ID})
	require.ErrorIs(t, err, ErrHiddenProduct)

	// Unknown products fail the same way.
	err = svc.EnsureVisible(ctx, []int64{999})
	require.ErrorIs(t, err, ErrHiddenProduct)

	require.NoError(t, svc.Restore(ctx, p.ID))
	require.NoError(t, svc.EnsureVisible(ctx, []int64{p.ID}))
}

func TestListFiltersHidden(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := tenantCtx()

	a, err := svc.Create(ctx, CreateInput{Code: "P-1", Name: "A", Price: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Code: "P-2", Name: "B", Price: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Archive(ctx, a.ID))

	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
