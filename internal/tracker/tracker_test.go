package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/boltlib"
	"github.com/rclone/datacarve/internal/markers"
)

// openPair mirrors internal/attrcopy's helper: one shared *boltlib.DB
// servicing two independent logical files, the way internal/dispatch
// shares a single fs.Library across a source file and its carved
// counterpart.
func openPair(t *testing.T) (lib *boltlib.DB, srcFile, dstFile carvefs.File) {
	t.Helper()
	db, err := boltlib.Open(filepath.Join(t.TempDir(), "trk.carved"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	src, err := db.CreateFile(ctx, "src")
	require.NoError(t, err)
	dst, err := db.CreateFile(ctx, "dst")
	require.NoError(t, err)
	return db, src, dst
}

func seedShell(t *testing.T, lib *boltlib.DB, srcFile, dstFile carvefs.File, payload []byte) {
	t.Helper()
	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{Dims: []int{len(payload) / 4}}

	srcRoot := srcFile.Root()
	defer srcRoot.Close()
	srcDS, err := lib.CreateDataset(srcRoot, "d", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	require.NoError(t, lib.WriteDataset(srcDS, payload))
	require.NoError(t, srcDS.Close())

	dstRoot := dstFile.Root()
	defer dstRoot.Close()
	dstDS, err := lib.CreateDataset(dstRoot, "d", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	require.NoError(t, markers.WriteBool(lib, dstDS, markers.IsEmpty, true))
	require.NoError(t, dstDS.Close())
}

// TestOnDatasetReadPopulatesAndStripsMarker exercises §4.4 steps 3-4 and
// §8 property 3: a first read must copy the payload, flip
// WAS_DATASET_COPIED on the root, and leave CARVED_DATASET_IS_EMPTY
// absent (not merely false) on the populated dataset, since a stale
// marker left behind would make every subsequent "absent or false"
// check on this dataset see a leftover shell attribute instead.
func TestOnDatasetReadPopulatesAndStripsMarker(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	seedShell(t, lib, srcFile, dstFile, payload)

	populated, err := OnDatasetRead(lib, srcFile, dstFile, carvefs.ObjectPath("/d"))
	require.NoError(t, err)
	assert.True(t, populated)

	dstRoot := dstFile.Root()
	defer dstRoot.Close()
	dstDS, err := lib.OpenDataset(dstRoot, "d")
	require.NoError(t, err)
	defer dstDS.Close()

	got, err := lib.ReadDataset(dstDS)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, absent, corrupt := markers.ReadBool(lib, dstDS, markers.IsEmpty)
	assert.False(t, corrupt)
	assert.True(t, absent, "CARVED_DATASET_IS_EMPTY must be stripped, not left false, after populate")

	wasCopied, absent, corrupt := markers.ReadBool(lib, dstRoot, markers.WasCopied)
	assert.False(t, corrupt)
	assert.False(t, absent)
	assert.True(t, wasCopied)
}

// TestOnDatasetReadIsIdempotent covers a second read of an
// already-populated dataset: the payload must not be recopied (and
// must not error out just because CARVED_DATASET_IS_EMPTY is now
// absent rather than explicitly false).
func TestOnDatasetReadIsIdempotent(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	payload := []byte{1, 2, 3, 4}
	seedShell(t, lib, srcFile, dstFile, payload)

	_, err := OnDatasetRead(lib, srcFile, dstFile, carvefs.ObjectPath("/d"))
	require.NoError(t, err)

	populated, err := OnDatasetRead(lib, srcFile, dstFile, carvefs.ObjectPath("/d"))
	require.NoError(t, err)
	assert.True(t, populated)

	dstRoot := dstFile.Root()
	defer dstRoot.Close()
	dstDS, err := lib.OpenDataset(dstRoot, "d")
	require.NoError(t, err)
	defer dstDS.Close()
	got, err := lib.ReadDataset(dstDS)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestOnDatasetReadRepopulatesOnCorruptMarker covers §7 MarkerCorrupt:
// a corrupt CARVED_DATASET_IS_EMPTY payload must be treated as a
// shell, not as already populated, so the dataset gets (re)populated
// rather than silently served as empty.
func TestOnDatasetReadRepopulatesOnCorruptMarker(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	payload := []byte{9, 9, 9, 9}
	seedShell(t, lib, srcFile, dstFile, payload)

	dstRoot := dstFile.Root()
	dstDS, err := lib.OpenDataset(dstRoot, "d")
	require.NoError(t, err)
	attr, err := lib.OpenAttribute(dstDS, markers.IsEmpty)
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, []byte{1, 2, 3}))
	require.NoError(t, attr.Close())
	require.NoError(t, dstDS.Close())
	require.NoError(t, dstRoot.Close())

	populated, err := OnDatasetRead(lib, srcFile, dstFile, carvefs.ObjectPath("/d"))
	require.NoError(t, err)
	assert.True(t, populated)

	dstRoot2 := dstFile.Root()
	defer dstRoot2.Close()
	dstDS2, err := lib.OpenDataset(dstRoot2, "d")
	require.NoError(t, err)
	defer dstDS2.Close()
	got, err := lib.ReadDataset(dstDS2)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
