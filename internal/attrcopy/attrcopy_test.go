package attrcopy

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/boltlib"
	"github.com/rclone/datacarve/internal/cerrors"
)

// openPair opens two independent logical files ("src"/"dst") against a
// single shared *boltlib.DB, the way internal/dispatch shares one
// fs.Library across a source file and its carved counterpart.
func openPair(t *testing.T) (lib *boltlib.DB, srcFile, dstFile carvefs.File) {
	t.Helper()
	db, err := boltlib.Open(filepath.Join(t.TempDir(), "lib.carved"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	src, err := db.CreateFile(ctx, "src")
	require.NoError(t, err)
	dst, err := db.CreateFile(ctx, "dst")
	require.NoError(t, err)
	return db, src, dst
}

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func TestCopyAtomic(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{}
	attr, err := lib.CreateAttribute(srcRoot, "X", dt, ds)
	require.NoError(t, err)
	payload := []byte{7, 0, 0, 0}
	require.NoError(t, lib.WriteAttribute(attr, payload))

	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "X"))

	dstAttr, err := lib.OpenAttribute(dstRoot, "X")
	require.NoError(t, err)
	got, err := lib.ReadAttribute(dstAttr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCopyIsIdempotentAndOverwrites(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{}
	attr, err := lib.CreateAttribute(srcRoot, "X", dt, ds)
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, []byte{1, 0, 0, 0}))
	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "X"))

	require.NoError(t, lib.WriteAttribute(attr, []byte{2, 0, 0, 0}))
	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "X"))

	dstAttr, err := lib.OpenAttribute(dstRoot, "X")
	require.NoError(t, err)
	got, err := lib.ReadAttribute(dstAttr)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0}, got)
}

func TestCopyObjectReference(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{Dims: []int{4}}

	srcTarget, err := lib.CreateDataset(srcRoot, "a", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	dstTarget, err := lib.CreateDataset(dstRoot, "a", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)

	refBytes, err := lib.CreateReference(srcFile, srcTarget)
	require.NoError(t, err)

	refDT := &carvefs.Datatype{Class: carvefs.ObjectRef, RefABI: carvefs.RefABIOpaque}
	attr, err := lib.CreateAttribute(srcRoot, "TARGET", refDT, &carvefs.Dataspace{})
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, refBytes))

	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "TARGET"))

	dstAttr, err := lib.OpenAttribute(dstRoot, "TARGET")
	require.NoError(t, err)
	dstPayload, err := lib.ReadAttribute(dstAttr)
	require.NoError(t, err)

	resolved, err := lib.DereferenceObject(dstFile, dstPayload)
	require.NoError(t, err)
	defer resolved.Close()
	assert.Equal(t, dstTarget.Path(), resolved.Path())
}

func TestDanglingReference(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{Dims: []int{4}}
	srcTarget, err := lib.CreateDataset(srcRoot, "a", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	// Note: no equivalent object is ever created under dst.

	refBytes, err := lib.CreateReference(srcFile, srcTarget)
	require.NoError(t, err)

	refDT := &carvefs.Datatype{Class: carvefs.ObjectRef, RefABI: carvefs.RefABIOpaque}
	attr, err := lib.CreateAttribute(srcRoot, "TARGET", refDT, &carvefs.Dataspace{})
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, refBytes))

	err = Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "TARGET")
	require.Error(t, err)
	assert.Equal(t, cerrors.DanglingReference, cerrors.KindOf(err))
}

func TestCopyCompound(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{
		Class: carvefs.Compound,
		Fields: []carvefs.CompoundField{
			{Name: "a", Offset: 0, Type: &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}},
			{Name: "b", Offset: 4, Type: &carvefs.Datatype{Class: carvefs.Atomic, Size: 2}},
		},
		CompoundSize: 6,
	}
	ds := &carvefs.Dataspace{}
	attr, err := lib.CreateAttribute(srcRoot, "C", dt, ds)
	require.NoError(t, err)
	payload := []byte{1, 2, 3, 4, 5, 6}
	require.NoError(t, lib.WriteAttribute(attr, payload))

	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "C"))

	dstAttr, err := lib.OpenAttribute(dstRoot, "C")
	require.NoError(t, err)
	got, err := lib.ReadAttribute(dstAttr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCopyVlen(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{Class: carvefs.Vlen, Elem: &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}}
	ds := &carvefs.Dataspace{Dims: []int{2}} // 2 vlen lists

	// list 0: [10, 20], list 1: [30]
	var payload []byte
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint64(hdr, 2)
	payload = append(payload, hdr...)
	payload = append(payload, encodeInt32(10)...)
	payload = append(payload, encodeInt32(20)...)
	hdr2 := make([]byte, 8)
	binary.LittleEndian.PutUint64(hdr2, 1)
	payload = append(payload, hdr2...)
	payload = append(payload, encodeInt32(30)...)

	attr, err := lib.CreateAttribute(srcRoot, "V", dt, ds)
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, payload))

	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "V"))

	dstAttr, err := lib.OpenAttribute(dstRoot, "V")
	require.NoError(t, err)
	got, err := lib.ReadAttribute(dstAttr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCopyArray(t *testing.T) {
	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	dt := &carvefs.Datatype{
		Class: carvefs.Array,
		Dims:  []int{3},
		Elem:  &carvefs.Datatype{Class: carvefs.Atomic, Size: 4},
	}
	ds := &carvefs.Dataspace{}
	payload := append(append(encodeInt32(1), encodeInt32(2)...), encodeInt32(3)...)

	attr, err := lib.CreateAttribute(srcRoot, "A", dt, ds)
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, payload))

	require.NoError(t, Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "A"))

	dstAttr, err := lib.OpenAttribute(dstRoot, "A")
	require.NoError(t, err)
	got, err := lib.ReadAttribute(dstAttr)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDatatypeTooDeep(t *testing.T) {
	leaf := &carvefs.Datatype{Class: carvefs.Atomic, Size: 1}
	dt := leaf
	for i := 0; i < maxDepth+5; i++ {
		dt = &carvefs.Datatype{
			Class:        carvefs.Compound,
			Fields:       []carvefs.CompoundField{{Name: "x", Offset: 0, Type: dt}},
			CompoundSize: fieldByteSize(dt),
		}
	}

	lib, srcFile, dstFile := openPair(t)
	srcRoot := srcFile.Root()
	dstRoot := dstFile.Root()

	payload := make([]byte, dt.CompoundSize)
	attr, err := lib.CreateAttribute(srcRoot, "D", dt, &carvefs.Dataspace{})
	require.NoError(t, err)
	require.NoError(t, lib.WriteAttribute(attr, payload))

	err = Copy(lib, srcFile, srcRoot, dstFile, dstRoot, "D")
	require.Error(t, err)
	assert.Equal(t, cerrors.DatatypeTooDeep, cerrors.KindOf(err))
}
