package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "WH01ADJ00001", Format("WH01ADJ", 5, 1))
	require.Equal(t, "WH0100042", Format("WH01", 5, 42))
	require.Equal(t, "WH01IN10001", Format("WH01IN", 5, 10001))
}

func TestMoveNumber(t *testing.T) {
	require.Equal(t, "MOV/IN/000001", MoveNumber("IN", 1))
	require.Equal(t, "MOV/TRF/000123", MoveNumber("TRF", 123))
}
