package boltlib

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	carvefs "github.com/rclone/datacarve/fs"
)

// fileHandle is the fs.File returned by OpenFile/CreateFile. path is
// the logical file identity every object and attribute record belonging
// to this file is scoped under (scopedKey), not merely a label.
type fileHandle struct {
	db   *DB
	path string
}

func (f *fileHandle) Root() carvefs.Group {
	f.db.incOpen()
	return &objHandle{db: f.db, file: f.path, path: carvefs.Root, kind: carvefs.KindGroup}
}
func (f *fileHandle) Path() string { return f.path }
func (f *fileHandle) Close() error { f.db.decOpen(); return nil }

// objHandle is the fs.Object/fs.Group implementation: the file it
// belongs to, its path within that file, and its cached kind. Datasets
// use datasetHandle, which embeds objHandle.
type objHandle struct {
	db   *DB
	file string
	path carvefs.ObjectPath
	kind carvefs.ObjectKind
}

func (o *objHandle) Path() carvefs.ObjectPath { return o.path }
func (o *objHandle) Kind() carvefs.ObjectKind { return o.kind }
func (o *objHandle) Close() error             { o.db.decOpen(); return nil }
func (o *objHandle) fileOf() string           { return o.file }

// scoped is implemented by every concrete Object/Group this package
// hands out, giving internal methods a way to recover which logical
// file an Object belongs to without widening the public fs.Object
// interface (only this package's own types ever satisfy it).
type scoped interface {
	fileOf() string
}

// datasetHandle additionally carries the dataset's datatype, dataspace
// and creation properties, fetched once at open time.
type datasetHandle struct {
	objHandle
	dt    *carvefs.Datatype
	ds    *carvefs.Dataspace
	props carvefs.CreationProps
}

func (d *datasetHandle) Datatype() *carvefs.Datatype          { return d.dt }
func (d *datasetHandle) Dataspace() *carvefs.Dataspace        { return d.ds }
func (d *datasetHandle) CreationProps() carvefs.CreationProps { return d.props }

// attrHandle is the fs.Attribute implementation.
type attrHandle struct {
	db     *DB
	file   string
	parent carvefs.ObjectPath
	name   string
	dt     *carvefs.Datatype
	ds     *carvefs.Dataspace
}

func (a *attrHandle) Name() string                  { return a.name }
func (a *attrHandle) Datatype() *carvefs.Datatype   { return a.dt }
func (a *attrHandle) Dataspace() *carvefs.Dataspace { return a.ds }
func (a *attrHandle) Close() error                  { a.db.decOpen(); return nil }

// OpenFile implements fs.Library.
func (d *DB) OpenFile(ctx context.Context, path string, flags carvefs.OpenFlags) (carvefs.File, error) {
	if err := d.ensureFileRoot(path); err != nil {
		return nil, err
	}
	d.incOpen()
	return &fileHandle{db: d, path: path}, nil
}

// CreateFile implements fs.Library. A logical file's root is created
// lazily (ensureFileRoot), so CreateFile and OpenFile behave
// identically here: the distinction matters to a real HDF5 binding
// (H5Fcreate vs H5Fopen) but not to this reference store.
func (d *DB) CreateFile(ctx context.Context, path string) (carvefs.File, error) {
	if err := d.ensureFileRoot(path); err != nil {
		return nil, err
	}
	d.incOpen()
	return &fileHandle{db: d, path: path}, nil
}

func (d *DB) CloseFile(f carvefs.File) error { return f.Close() }

func (d *DB) lookup(file string, path carvefs.ObjectPath) (*objectRecord, error) {
	var rec objectRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket([]byte(bucketObjects)), scopedKey(file, path), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("boltlib: no such object %q in %q", path, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *DB) openAs(file string, path carvefs.ObjectPath) (carvefs.Object, error) {
	rec, err := d.lookup(file, path)
	if err != nil {
		return nil, err
	}
	d.incOpen()
	if rec.Kind == carvefs.KindDataset {
		return &datasetHandle{
			objHandle: objHandle{db: d, file: file, path: path, kind: rec.Kind},
			dt:        rec.Datatype,
			ds:        rec.Dataspace,
			props:     carvefs.CreationProps{Opaque: rec.Props},
		}, nil
	}
	return &objHandle{db: d, file: file, path: path, kind: rec.Kind}, nil
}

// OpenObject implements fs.Library.
func (d *DB) OpenObject(loc carvefs.Group, name string) (carvefs.Object, error) {
	l := loc.(scoped)
	return d.openAs(l.fileOf(), loc.Path().Join(name))
}

// OpenDataset implements fs.Library.
func (d *DB) OpenDataset(loc carvefs.Group, name string) (carvefs.Dataset, error) {
	l := loc.(scoped)
	o, err := d.openAs(l.fileOf(), loc.Path().Join(name))
	if err != nil {
		return nil, err
	}
	ds, ok := o.(carvefs.Dataset)
	if !ok {
		return nil, errors.Errorf("boltlib: %q is not a dataset", loc.Path().Join(name))
	}
	return ds, nil
}

// OpenGroup implements fs.Library.
func (d *DB) OpenGroup(loc carvefs.Group, name string) (carvefs.Group, error) {
	l := loc.(scoped)
	o, err := d.openAs(l.fileOf(), loc.Path().Join(name))
	if err != nil {
		return nil, err
	}
	return o.(carvefs.Group), nil
}

// OpenAttribute implements fs.Library.
func (d *DB) OpenAttribute(o carvefs.Object, name string) (carvefs.Attribute, error) {
	file := o.(scoped).fileOf()
	var rec attrRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket([]byte(bucketAttrs)), attrKey(file, o.Path(), name), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("boltlib: no attribute %q on %q", name, o.Path())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.incOpen()
	return &attrHandle{db: d, file: file, parent: o.Path(), name: name, dt: rec.Datatype, ds: rec.Dataspace}, nil
}

// CreateGroup implements fs.Library.
func (d *DB) CreateGroup(loc carvefs.Group, name string) (carvefs.Group, error) {
	file := loc.(scoped).fileOf()
	path := loc.Path().Join(name)
	id := newUUID()
	err := d.db.Update(func(tx *bolt.Tx) error {
		objs := tx.Bucket([]byte(bucketObjects))
		key := scopedKey(file, path)
		if objs.Get([]byte(key)) != nil {
			return errors.Errorf("boltlib: %q already exists in %q", path, file)
		}
		if err := putJSON(objs, key, objectRecord{Kind: carvefs.KindGroup, UUID: id}); err != nil {
			return err
		}
		if err := d.indexUUID(tx, id, file, path); err != nil {
			return err
		}
		return d.addChild(tx, file, loc.Path(), name)
	})
	if err != nil {
		return nil, err
	}
	d.incOpen()
	return &objHandle{db: d, file: file, path: path, kind: carvefs.KindGroup}, nil
}

// CreateDataset implements fs.Library. It creates a shell: datatype,
// dataspace and creation properties only, no payload (§4.2).
func (d *DB) CreateDataset(loc carvefs.Group, name string, dt *carvefs.Datatype, ds *carvefs.Dataspace, props carvefs.CreationProps) (carvefs.Dataset, error) {
	file := loc.(scoped).fileOf()
	path := loc.Path().Join(name)
	rec := objectRecord{Kind: carvefs.KindDataset, Datatype: dt, Dataspace: ds, Props: props.Opaque, UUID: newUUID()}
	err := d.db.Update(func(tx *bolt.Tx) error {
		objs := tx.Bucket([]byte(bucketObjects))
		key := scopedKey(file, path)
		if objs.Get([]byte(key)) != nil {
			return errors.Errorf("boltlib: %q already exists in %q", path, file)
		}
		if err := putJSON(objs, key, rec); err != nil {
			return err
		}
		if err := d.indexUUID(tx, rec.UUID, file, path); err != nil {
			return err
		}
		return d.addChild(tx, file, loc.Path(), name)
	})
	if err != nil {
		return nil, err
	}
	d.incOpen()
	return &datasetHandle{objHandle: objHandle{db: d, file: file, path: path, kind: carvefs.KindDataset}, dt: dt, ds: ds, props: props}, nil
}

// CreateAttribute implements fs.Library.
func (d *DB) CreateAttribute(o carvefs.Object, name string, dt *carvefs.Datatype, ds *carvefs.Dataspace) (carvefs.Attribute, error) {
	file := o.(scoped).fileOf()
	err := d.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket([]byte(bucketAttrs)), attrKey(file, o.Path(), name), attrRecord{Datatype: dt, Dataspace: ds}); err != nil {
			return err
		}
		return d.addAttrName(tx, file, o.Path(), name)
	})
	if err != nil {
		return nil, err
	}
	d.incOpen()
	return &attrHandle{db: d, file: file, parent: o.Path(), name: name, dt: dt, ds: ds}, nil
}

// DeleteLink implements fs.Library.
func (d *DB) DeleteLink(loc carvefs.Group, name string) error {
	file := loc.(scoped).fileOf()
	path := loc.Path().Join(name)
	return d.db.Update(func(tx *bolt.Tx) error {
		objs := tx.Bucket([]byte(bucketObjects))
		key := scopedKey(file, path)
		var rec objectRecord
		if ok, err := getJSON(objs, key, &rec); err != nil {
			return err
		} else if ok {
			if err := d.unindexUUID(tx, rec.UUID); err != nil {
				return err
			}
		}
		if err := objs.Delete([]byte(key)); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketPayload)).Delete(payloadKey(file, path)); err != nil {
			return err
		}
		return d.removeChild(tx, file, loc.Path(), name)
	})
}

// DeleteAttribute implements fs.Library.
func (d *DB) DeleteAttribute(o carvefs.Object, name string) error {
	file := o.(scoped).fileOf()
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketAttrs)).Delete([]byte(attrKey(file, o.Path(), name))); err != nil {
			return err
		}
		return d.removeAttrName(tx, file, o.Path(), name)
	})
}

// CopyObject implements fs.Library: a full recursive payload copy from
// (srcLoc, srcName) to (dstLoc, dstName), used by the Populator to
// materialize a dataset's real contents over its shell (§4.4). srcLoc
// and dstLoc may belong to different logical files.
func (d *DB) CopyObject(srcLoc carvefs.Group, srcName string, dstLoc carvefs.Group, dstName string) error {
	srcFile := srcLoc.(scoped).fileOf()
	dstFile := dstLoc.(scoped).fileOf()
	src := srcLoc.Path().Join(srcName)
	dst := dstLoc.Path().Join(dstName)

	rec, err := d.lookup(srcFile, src)
	if err != nil {
		return err
	}
	var payload []byte
	if rec.Kind == carvefs.KindDataset {
		err = d.db.View(func(tx *bolt.Tx) error {
			payload = append([]byte(nil), tx.Bucket([]byte(bucketPayload)).Get(payloadKey(srcFile, src))...)
			return nil
		})
		if err != nil {
			return err
		}
	}

	newRec := *rec
	newRec.UUID = newUUID()
	return d.db.Update(func(tx *bolt.Tx) error {
		objs := tx.Bucket([]byte(bucketObjects))
		if err := putJSON(objs, scopedKey(dstFile, dst), newRec); err != nil {
			return err
		}
		if err := d.indexUUID(tx, newRec.UUID, dstFile, dst); err != nil {
			return err
		}
		if err := d.addChild(tx, dstFile, dstLoc.Path(), dstName); err != nil {
			return err
		}
		if payload != nil {
			if err := tx.Bucket([]byte(bucketPayload)).Put(payloadKey(dstFile, dst), payload); err != nil {
				return err
			}
		}
		// Copy attributes verbatim; the Populator strips all of them
		// immediately after calling this.
		names, err := d.attrNamesTx(tx, srcFile, src)
		if err != nil {
			return err
		}
		for _, name := range names {
			var arec attrRecord
			ok, err := getJSON(tx.Bucket([]byte(bucketAttrs)), attrKey(srcFile, src, name), &arec)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := putJSON(tx.Bucket([]byte(bucketAttrs)), attrKey(dstFile, dst, name), arec); err != nil {
				return err
			}
			if err := d.addAttrName(tx, dstFile, dst, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) attrNamesTx(tx *bolt.Tx, file string, path carvefs.ObjectPath) ([]string, error) {
	var names []string
	_, err := getJSON(tx.Bucket([]byte(bucketAttrNames)), scopedKey(file, path), &names)
	return names, err
}

// IterateLinks implements fs.Library. Child names are kept sorted
// on write (addChild), so iteration is already name-ascending.
func (d *DB) IterateLinks(loc carvefs.Group, visit func(name string) error) error {
	file := loc.(scoped).fileOf()
	var names []string
	err := d.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket([]byte(bucketChildren)), scopedKey(file, loc.Path()), &names)
		return err
	})
	if err != nil {
		return err
	}
	if !sort.StringsAreSorted(names) {
		sort.Strings(names) // defensive; addChild should already guarantee this
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// IterateAttributes implements fs.Library, likewise name-ascending.
func (d *DB) IterateAttributes(o carvefs.Object, visit func(name string) error) error {
	file := o.(scoped).fileOf()
	var names []string
	err := d.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket([]byte(bucketAttrNames)), scopedKey(file, o.Path()), &names)
		return err
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// ReadAttribute implements fs.Library.
func (d *DB) ReadAttribute(a carvefs.Attribute) ([]byte, error) {
	ah := a.(*attrHandle)
	var rec attrRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		_, err := getJSON(tx.Bucket([]byte(bucketAttrs)), attrKey(ah.file, ah.parent, ah.name), &rec)
		return err
	})
	return rec.Payload, err
}

// WriteAttribute implements fs.Library.
func (d *DB) WriteAttribute(a carvefs.Attribute, payload []byte) error {
	ah := a.(*attrHandle)
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAttrs))
		key := attrKey(ah.file, ah.parent, ah.name)
		var rec attrRecord
		if _, err := getJSON(b, key, &rec); err != nil {
			return err
		}
		rec.Datatype = ah.dt
		rec.Dataspace = ah.ds
		rec.Payload = payload
		return putJSON(b, key, rec)
	})
}

// ReadDataset implements fs.Library.
func (d *DB) ReadDataset(ds carvefs.Dataset) ([]byte, error) {
	dh := ds.(scoped)
	var payload []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		payload = append([]byte(nil), tx.Bucket([]byte(bucketPayload)).Get(payloadKey(dh.fileOf(), ds.Path()))...)
		return nil
	})
	return payload, err
}

// WriteDataset implements fs.Library.
func (d *DB) WriteDataset(ds carvefs.Dataset, payload []byte) error {
	dh := ds.(scoped)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPayload)).Put(payloadKey(dh.fileOf(), ds.Path()), payload)
	})
}

// ObjectPathOf implements fs.Library.
func (d *DB) ObjectPathOf(o carvefs.Object) (carvefs.ObjectPath, error) { return o.Path(), nil }

// ObjectKindOf implements fs.Library.
func (d *DB) ObjectKindOf(o carvefs.Object) (carvefs.ObjectKind, error) { return o.Kind(), nil }

// FileOf implements fs.Library.
func (d *DB) FileOf(o carvefs.Object) (carvefs.File, error) {
	d.incOpen()
	return &fileHandle{db: d, path: o.(scoped).fileOf()}, nil
}
