package boltlib

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	carvefs "github.com/rclone/datacarve/fs"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.carved")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateGroupAndDataset(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	f, err := db.CreateFile(ctx, "ignored")
	require.NoError(t, err)
	defer f.Close()

	root := f.Root()
	defer root.Close()

	g1, err := db.CreateGroup(root, "g1")
	require.NoError(t, err)
	defer g1.Close()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{Dims: []int{4}}
	dset, err := db.CreateDataset(g1, "a", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	defer dset.Close()

	assert.Equal(t, carvefs.ObjectPath("/g1/a"), dset.Path())
	assert.Equal(t, 4, dset.Dataspace().ElementCount())

	var names []string
	require.NoError(t, db.IterateLinks(root, func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"g1"}, names)
}

func TestReadWriteDatasetPayload(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f, err := db.CreateFile(ctx, "ignored")
	require.NoError(t, err)
	defer f.Close()
	root := f.Root()
	defer root.Close()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{Dims: []int{4}}
	dset, err := db.CreateDataset(root, "a", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	defer dset.Close()

	payload := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	require.NoError(t, db.WriteDataset(dset, payload))

	got, err := db.ReadDataset(dset)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestObjectReferenceRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f, err := db.CreateFile(ctx, "ignored")
	require.NoError(t, err)
	defer f.Close()
	root := f.Root()
	defer root.Close()

	dt := &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}
	ds := &carvefs.Dataspace{Dims: []int{4}}
	target, err := db.CreateDataset(root, "target", dt, ds, carvefs.CreationProps{})
	require.NoError(t, err)
	defer target.Close()

	ref, err := db.CreateReference(f, target)
	require.NoError(t, err)
	assert.Len(t, ref, 16)

	resolved, err := db.DereferenceObject(f, ref)
	require.NoError(t, err)
	defer resolved.Close()
	assert.Equal(t, carvefs.ObjectPath("/target"), resolved.Path())
}

func TestOpenHandleCountReturnsToZero(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f, err := db.CreateFile(ctx, "ignored")
	require.NoError(t, err)

	root := f.Root()
	g, err := db.CreateGroup(root, "g")
	require.NoError(t, err)

	require.NoError(t, g.Close())
	require.NoError(t, root.Close())
	require.NoError(t, f.Close())

	assert.Equal(t, 0, db.OpenHandleCount())
}

func TestDeleteLinkRemovesFromIteration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f, err := db.CreateFile(ctx, "ignored")
	require.NoError(t, err)
	defer f.Close()
	root := f.Root()
	defer root.Close()

	_, err = db.CreateGroup(root, "g1")
	require.NoError(t, err)

	require.NoError(t, db.DeleteLink(root, "g1"))

	var names []string
	require.NoError(t, db.IterateLinks(root, func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Empty(t, names)
}
