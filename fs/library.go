package fs

import "context"

// Object is any named node in a file's hierarchy: a group, a dataset,
// or a named datatype.
type Object interface {
	Path() ObjectPath
	Kind() ObjectKind
	Close() error
}

// Group is a container of links to child objects.
type Group interface {
	Object
}

// Dataset is an object that carries a typed, shaped data payload.
type Dataset interface {
	Object
	Datatype() *Datatype
	Dataspace() *Dataspace
	CreationProps() CreationProps
}

// Attribute is a named, typed value attached to an Object. Unlike a
// child link, an attribute's identity includes its name, not just its
// parent's path.
type Attribute interface {
	Name() string
	Datatype() *Datatype
	Dataspace() *Dataspace
	Close() error
}

// File is an open handle on a source or destination file.
type File interface {
	Root() Group
	Path() string
	Close() error
}

// Library is the host data library capability interface (spec §6):
// everything the carving core needs from HDF5 (and, transitively,
// netCDF-4) to do its work. The core is written entirely against this
// interface; internal/boltlib is the reference implementation used by
// tests and cmd/carvesim, and a production build would instead wire a
// cgo binding to libhdf5 behind the same interface.
type Library interface {
	// File lifecycle.
	OpenFile(ctx context.Context, path string, flags OpenFlags) (File, error)
	CreateFile(ctx context.Context, path string) (File, error)
	CloseFile(f File) error

	// Object / dataset / group / attribute open.
	OpenObject(loc Group, name string) (Object, error)
	OpenDataset(loc Group, name string) (Dataset, error)
	OpenGroup(loc Group, name string) (Group, error)
	OpenAttribute(o Object, name string) (Attribute, error)

	// Creation.
	CreateGroup(loc Group, name string) (Group, error)
	CreateDataset(loc Group, name string, dt *Datatype, ds *Dataspace, props CreationProps) (Dataset, error)
	CreateAttribute(o Object, name string, dt *Datatype, ds *Dataspace) (Attribute, error)

	// Deletion.
	DeleteLink(loc Group, name string) error
	DeleteAttribute(o Object, name string) error

	// Full recursive payload copy of one object from src to dst (used
	// by the Populator, §4.4).
	CopyObject(srcLoc Group, srcName string, dstLoc Group, dstName string) error

	// Iteration, both guaranteed name-ascending by the implementation
	// (spec requires this ordering everywhere; pushing the sort into
	// the capability boundary keeps every caller naturally correct).
	IterateLinks(loc Group, visit func(name string) error) error
	IterateAttributes(o Object, visit func(name string) error) error

	// Payload I/O.
	ReadAttribute(a Attribute) ([]byte, error)
	WriteAttribute(a Attribute, payload []byte) error
	ReadDataset(d Dataset) ([]byte, error)
	WriteDataset(d Dataset, payload []byte) error

	// References: an object reference names an object by identity, not
	// path (§3 GLOSSARY). CreateReference mints a reference payload
	// usable as an attribute's raw bytes; DereferenceObject resolves
	// one back to the object it names within f.
	CreateReference(f File, target Object) ([]byte, error)
	DereferenceObject(f File, ref []byte) (Object, error)

	// Introspection.
	ObjectPathOf(o Object) (ObjectPath, error)
	ObjectKindOf(o Object) (ObjectKind, error)
	FileOf(o Object) (File, error)

	// OpenHandleCount supports the clean-handles audit spec §5
	// requires: it must return to zero once every handle acquired by a
	// completed operation has been released. Datatype and Dataspace are
	// modeled as immutable value structs rather than host handles, so
	// only File/Group/Dataset/Object/Attribute acquisitions count here.
	OpenHandleCount() int
}
