package ringbuf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOccupancy_WithinRange(t *testing.T) {
	occ, err := occupancy(10, 6, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(4), occ)
}

func TestOccupancy_Empty(t *testing.T) {
	occ, err := occupancy(5, 5, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0), occ)
}

func TestOccupancy_Full(t *testing.T) {
	occ, err := occupancy(8, 0, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(8), occ)
}

func TestOccupancy_AdversarialOutOfRange(t *testing.T) {
	// A malicious/buggy peer sets its index so that, interpreted as
	// write-read, occupancy would exceed capacity.
	_, err := occupancy(0, 1, 8) // read ahead of write: occ wraps to huge value
	require.ErrorIs(t, err, ErrProtocolError)
}

func TestOccupancy_WrapsCorrectlyNearUint64Max(t *testing.T) {
	// Both indices wrapped around the 64-bit space but stayed in a valid
	// relative relationship: occupancy must still come out correct.
	w := uint64(2)
	r := math.MaxUint64 - 1 // r is "4 less" than w once wrapped
	occ, err := occupancy(w, r, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(4), occ)
}

func TestOccupancy_ExactlyAtCapacityBoundary(t *testing.T) {
	occ, err := occupancy(100, 92, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(8), occ)

	_, err = occupancy(101, 92, 8)
	require.ErrorIs(t, err, ErrProtocolError)
}
