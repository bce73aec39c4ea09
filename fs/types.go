// Package fs defines the host data library capability interface the
// carving core consumes (spec §6). It knows nothing about HDF5's C API,
// dynamic-symbol interposition, or any on-disk format: it is the seam
// between the engine packages (pathmap, skeleton, attrcopy, tracker,
// fallback, router, lifecycle) and whatever concrete implementation
// backs a given run — a real libhdf5 binding in production, or the
// bbolt-backed reference implementation in internal/boltlib used for
// tests and the cmd/carvesim harness.
package fs

import "strings"

// ObjectKind classifies what an Object names in the hierarchical
// namespace.
type ObjectKind int

const (
	KindBad ObjectKind = iota
	KindGroup
	KindDataset
	KindNamedDatatype
)

func (k ObjectKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	case KindNamedDatatype:
		return "named_datatype"
	default:
		return "bad"
	}
}

// ObjectPath is an absolute, slash-separated path within a file's
// namespace. It is a plain string: cheap to copy and share, and the
// stable cross-file identity key the spec requires (§3).
type ObjectPath string

const Root ObjectPath = "/"

// Join appends a child name to a path.
func (p ObjectPath) Join(name string) ObjectPath {
	if p == Root {
		return ObjectPath("/" + name)
	}
	return ObjectPath(string(p) + "/" + name)
}

// Base returns the final path component.
func (p ObjectPath) Base() string {
	s := strings.TrimRight(string(p), "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Parent returns the path with its final component removed.
func (p ObjectPath) Parent() ObjectPath {
	s := strings.TrimRight(string(p), "/")
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return Root
	}
	return ObjectPath(s[:i])
}

// FallbackKind is the FALLBACK_TYPE enum member of FallbackMetadata (§4.5).
type FallbackKind int

const (
	FallbackLocal FallbackKind = iota
	FallbackRemote
)

// ReferenceABI discriminates the two object-reference encodings the
// host library may hand back (§4.3, §9): the legacy fixed-size
// hobj_ref_t and the newer opaque H5R_ref_t. The carving core does not
// assume a single byte width; it picks the width from the ABI the
// datatype names.
type ReferenceABI int

const (
	RefABILegacy ReferenceABI = iota // fixed-size handle
	RefABIOpaque                     // opaque, variable-size handle
)

// OpenFlags mirror the host library's file-open flags; the core treats
// them opaquely and passes them through.
type OpenFlags int

const (
	ReadOnly OpenFlags = iota
	ReadWrite
)
