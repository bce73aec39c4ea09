package boltlib

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	carvefs "github.com/rclone/datacarve/fs"
)

// uuidIndexRecord is the uuid->location mapping an object reference
// resolves through, so DereferenceObject can answer "what object does
// this reference name" without a path (object references name objects
// by identity, not by path — spec §3 GLOSSARY). It must carry the
// owning file alongside the path: the same object path string can
// denote unrelated objects in different logical files.
type uuidIndexRecord struct {
	File string
	Path carvefs.ObjectPath
}

func (d *DB) indexUUID(tx *bolt.Tx, id [16]byte, file string, path carvefs.ObjectPath) error {
	return putJSON(tx.Bucket([]byte(bucketUUIDIndex)), string(id[:]), uuidIndexRecord{File: file, Path: path})
}

func (d *DB) unindexUUID(tx *bolt.Tx, id [16]byte) error {
	return tx.Bucket([]byte(bucketUUIDIndex)).Delete(id[:])
}

// CreateReference implements fs.Library: the reference payload is
// simply target's object-identity UUID. internal/attrcopy never
// inspects these bytes directly (object-reference class delegates to
// CreateReference/DereferenceObject for every read and write), so the
// encoding is a private contract between the two methods.
func (d *DB) CreateReference(f carvefs.File, target carvefs.Object) ([]byte, error) {
	file := target.(scoped).fileOf()
	rec, err := d.lookup(file, target.Path())
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 16)
	copy(buf, rec.UUID[:])
	return buf, nil
}

// DereferenceObject implements fs.Library. f pins which file the
// reference is being resolved within; a reference is only ever
// meaningful relative to the file it was minted for, since the target
// it names was necessarily carved into that same file (§4.3, §4.7).
func (d *DB) DereferenceObject(f carvefs.File, ref []byte) (carvefs.Object, error) {
	if len(ref) != 16 {
		return nil, errors.New("boltlib: malformed object reference")
	}
	var id [16]byte
	copy(id[:], ref)
	var rec uuidIndexRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket([]byte(bucketUUIDIndex)), string(id[:]), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("boltlib: dangling object reference")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec.File != f.Path() {
		return nil, errors.Errorf("boltlib: object reference names an object in %q, not in %q", rec.File, f.Path())
	}
	return d.openAs(rec.File, rec.Path)
}
