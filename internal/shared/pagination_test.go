package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultPerPage, p.PerPage)
	require.Equal(t, 45, p.Total)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 0, p.Offset())
}

func TestNewPaginationOffsets(t *testing.T) {
	p := NewPagination(3, 10, 25)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 20, p.Offset())

	// An empty listing still reports page one with zero pages.
	empty := NewPagination(1, 10, 0)
	require.Equal(t, 0, empty.TotalPages)
	require.Equal(t, 0, empty.Offset())
}
