// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package builder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearDBRoundTrip(t *testing.T) {
	// Round trip within 0.01 dB across the audible fader range, stepping
	// just above the silence floor (the floor itself maps to exact zero).
	for db := DBFloor + 0.5; db <= 6.0; db += 0.5 {
		got := LinearToDB(DBToLinear(db))
		require.InDelta(t, db, got, 0.01, "round trip at %g dB", db)
	}
}

func TestDBToLinear_FloorIsSilence(t *testing.T) {
	require.Equal(t, 0.0, DBToLinear(DBFloor))
	require.Equal(t, 0.0, DBToLinear(DBFloor-20))
	require.Equal(t, 1.0, DBToLinear(0))
}

func TestLinearToDB_ClampsToFloor(t *testing.T) {
	require.Equal(t, DBFloor, LinearToDB(0))
	require.Equal(t, DBFloor, LinearToDB(-1))
	require.Equal(t, DBFloor, LinearToDB(1e-9))
	require.InDelta(t, 0.0, LinearToDB(1), 1e-9)
	require.InDelta(t, 6.0206, LinearToDB(2), 0.001)
}
