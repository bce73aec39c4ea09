package pathmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarvedPathFor_NoCarvedDir(t *testing.T) {
	got, err := CarvedPathFor("/tmp/s.h5", false, false, "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/s.h5.carved", got)
}

func TestCarvedPathFor_WithCarvedDir(t *testing.T) {
	got, err := CarvedPathFor("/tmp/s.h5", false, false, "/carved")
	require.NoError(t, err)
	assert.Equal(t, "/carved/s.h5.carved", got)
}

// S6: in re-execution mode with NETCDF4 set, the host program passes
// an already-".carved"-suffixed path; the mapper strips it and
// reconstructs the same carved path.
func TestCarvedPathFor_NetCDF4SuffixStrip(t *testing.T) {
	got, err := CarvedPathFor("/data/x.nc.carved", true, true, "")
	require.NoError(t, err)
	assert.Equal(t, "/data/x.nc.carved", got)
}

func TestCarvedPathFor_RoundTripIdempotent(t *testing.T) {
	for _, tc := range []struct {
		source    string
		carvedDir string
	}{
		{"/tmp/s.h5", ""},
		{"/tmp/s.h5", "/carved"},
		{"/data/x.nc", "/out"},
	} {
		first, err := CarvedPathFor(tc.source, true, false, tc.carvedDir)
		require.NoError(t, err)

		second, err := CarvedPathFor(first, true, true, tc.carvedDir)
		require.NoError(t, err)

		assert.Equal(t, first, second, "carved_path_for should be idempotent on an already-carved path")
	}
}
