// Package boltlib is the reference fs.Library implementation: a
// bolt-backed hierarchical object store standing in for a real cgo
// binding to libhdf5. It adapts the bucket-per-concern layout the
// teacher's backend/cache package uses to persist a remote's
// directory/file metadata tree (RootBucket/RootTsBucket/DataTsBucket
// in storage_persistent.go) to HDF5's own notion of groups, datasets
// and attributes: a bolt bucket holds one JSON record per object path,
// a second bucket holds each group's sorted child-name list so
// IterateLinks can satisfy the name-ascending ordering the spec
// requires without re-sorting on every call, and a third stores
// attribute payloads keyed by (file, path, name).
//
// This package is deliberately the only place in the module that knows
// about bbolt, xxhash, or uuid: everything above it (internal/skeleton,
// internal/attrcopy, internal/tracker, ...) talks exclusively to
// fs.Library.
package boltlib

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	carvefs "github.com/rclone/datacarve/fs"
)

const (
	bucketObjects   = "objects"
	bucketChildren  = "children"
	bucketAttrs     = "attrs"
	bucketAttrNames = "attrnames"
	bucketPayload   = "payload"
	bucketUUIDIndex = "uuidindex"
)

var allBuckets = []string{
	bucketObjects, bucketChildren, bucketAttrs, bucketAttrNames, bucketPayload, bucketUUIDIndex,
}

// dbMap deduplicates *DB instances by path, the same singleton-by-path
// pattern storage_persistent.go's GetPersistent uses for its boltMap.
var (
	dbMap   = make(map[string]*DB)
	dbMapMx sync.Mutex
)

// objectRecord is the JSON payload stored in bucketObjects for one
// path.
type objectRecord struct {
	Kind      carvefs.ObjectKind
	Datatype  *carvefs.Datatype  `json:",omitempty"`
	Dataspace *carvefs.Dataspace `json:",omitempty"`
	Props     []byte             `json:",omitempty"`
	UUID      [16]byte
}

// attrRecord is the JSON payload stored in bucketAttrs for one
// (path, name) pair.
type attrRecord struct {
	Datatype  *carvefs.Datatype
	Dataspace *carvefs.Dataspace
	Payload   []byte
}

// DB is a single open bolt-backed carving-library file.
type DB struct {
	path      string
	db        *bolt.DB
	openCount int64 // atomic; clean-handles audit
}

// Open opens (creating if absent) the bolt database at path, returning
// the shared *DB instance for that path.
func Open(path string) (*DB, error) {
	dbMapMx.Lock()
	defer dbMapMx.Unlock()
	if d, ok := dbMap[path]; ok {
		return d, nil
	}
	bdb, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "boltlib: opening %s", path)
	}
	d := &DB{path: path, db: bdb}
	if err := d.ensureBuckets(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	dbMap[path] = d
	return d, nil
}

// Exists reports whether a carved file already exists on disk at path.
// Nothing in the module calls it; internal/dispatch makes the same
// on-disk check with its own fileExists for the idempotent-reopen
// recovery path (spec §7, §8 property 6, scenario S5).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (d *DB) ensureBuckets() error {
	return d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ensureFileRoot creates the root group record for a logical file the
// first time it is opened or created. Every logical file (source,
// carved, or retained fallback original) gets its own root, scoped by
// file path alongside every other object in it (scopedKey).
func (d *DB) ensureFileRoot(file string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		objs := tx.Bucket([]byte(bucketObjects))
		key := scopedKey(file, carvefs.Root)
		if objs.Get([]byte(key)) != nil {
			return nil
		}
		rec := objectRecord{Kind: carvefs.KindGroup, UUID: newUUID()}
		if err := putJSON(objs, key, rec); err != nil {
			return err
		}
		return d.indexUUID(tx, rec.UUID, file, carvefs.Root)
	})
}

func newUUID() [16]byte {
	id := uuid.New()
	var u [16]byte
	copy(u[:], id[:])
	return u
}

func putJSON(b *bolt.Bucket, key string, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), buf)
}

func getJSON(b *bolt.Bucket, key string, v interface{}) (bool, error) {
	raw := b.Get([]byte(key))
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// scopedKey joins a logical file path and an object path into one
// storage key. A single *DB backs every file the process has open
// (source, carved, and in re-execution mode, the retained fallback
// original), and those files' object trees are independent even when
// their paths are identical (a skeleton mirrors its source's layout
// exactly), so every bucket keyed by object path must also be keyed by
// which file that path lives in.
func scopedKey(file string, path carvefs.ObjectPath) string {
	return file + "\x00" + string(path)
}

func payloadKey(file string, path carvefs.ObjectPath) []byte {
	h := xxhash.Sum64String(scopedKey(file, path))
	return []byte(fmt.Sprintf("%016x", h))
}

func attrKey(file string, path carvefs.ObjectPath, name string) string {
	return scopedKey(file, path) + "\x00" + name
}

func (d *DB) addChild(tx *bolt.Tx, file string, parent carvefs.ObjectPath, name string) error {
	children := tx.Bucket([]byte(bucketChildren))
	key := scopedKey(file, parent)
	var names []string
	if _, err := getJSON(children, key, &names); err != nil {
		return err
	}
	i := sort.SearchStrings(names, name)
	if i < len(names) && names[i] == name {
		return nil
	}
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	return putJSON(children, key, names)
}

func (d *DB) removeChild(tx *bolt.Tx, file string, parent carvefs.ObjectPath, name string) error {
	children := tx.Bucket([]byte(bucketChildren))
	key := scopedKey(file, parent)
	var names []string
	if _, err := getJSON(children, key, &names); err != nil {
		return err
	}
	i := sort.SearchStrings(names, name)
	if i >= len(names) || names[i] != name {
		return nil
	}
	names = append(names[:i], names[i+1:]...)
	return putJSON(children, key, names)
}

func (d *DB) addAttrName(tx *bolt.Tx, file string, parent carvefs.ObjectPath, name string) error {
	b := tx.Bucket([]byte(bucketAttrNames))
	key := scopedKey(file, parent)
	var names []string
	if _, err := getJSON(b, key, &names); err != nil {
		return err
	}
	i := sort.SearchStrings(names, name)
	if i < len(names) && names[i] == name {
		return nil
	}
	names = append(names, "")
	copy(names[i+1:], names[i:])
	names[i] = name
	return putJSON(b, key, names)
}

func (d *DB) removeAttrName(tx *bolt.Tx, file string, parent carvefs.ObjectPath, name string) error {
	b := tx.Bucket([]byte(bucketAttrNames))
	key := scopedKey(file, parent)
	var names []string
	if _, err := getJSON(b, key, &names); err != nil {
		return err
	}
	i := sort.SearchStrings(names, name)
	if i >= len(names) || names[i] != name {
		return nil
	}
	names = append(names[:i], names[i+1:]...)
	return putJSON(b, key, names)
}

func (d *DB) incOpen() { atomic.AddInt64(&d.openCount, 1) }
func (d *DB) decOpen() { atomic.AddInt64(&d.openCount, -1) }

// OpenHandleCount implements fs.Library.
func (d *DB) OpenHandleCount() int { return int(atomic.LoadInt64(&d.openCount)) }

// Close closes the underlying bolt database. Tests should always
// Exists()-check / reopen against a fresh path rather than Close and
// reuse the shared *DB from the dbMap, mirroring the singleton lifetime
// storage_persistent.go's boltMap gives its *Persistent values.
func (d *DB) Close() error {
	dbMapMx.Lock()
	delete(dbMap, d.path)
	dbMapMx.Unlock()
	return d.db.Close()
}
