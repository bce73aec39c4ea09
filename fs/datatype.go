package fs

// DatatypeClass is the tag of the Datatype union (spec §3, §4.3, §9
// "Polymorphism over datatype class"). The source walks datatype class
// with if/else-if ladders; this is the tagged union that replaces it,
// dispatched on in a single recursive function (internal/attrcopy).
type DatatypeClass int

const (
	Atomic DatatypeClass = iota
	ObjectRef
	RegionRef
	Compound
	Vlen
	Array
)

// CompoundField describes one named, offset member of a Compound
// datatype (§3).
type CompoundField struct {
	Name   string
	Offset int
	Type   *Datatype
}

// Datatype is a tree over the datatype classes spec §3 enumerates.
// Only the fields relevant to the tag are populated; this mirrors a
// tagged union more than a C struct, but keeping every field exported
// on one type (rather than an interface per class) is what lets the
// bbolt-backed reference Library (internal/boltlib) serialize it
// trivially with encoding/json.
type Datatype struct {
	Class DatatypeClass

	// Atomic: raw byte size of one element.
	Size int

	// ObjectRef: which reference ABI the host library will hand back
	// for this datatype (§4.3, §9).
	RefABI ReferenceABI

	// Compound: fields in declaration order.
	Fields []CompoundField
	// Compound: total stored size of one element, used to size the
	// output buffer and advance the write cursor per element (§4.3).
	CompoundSize int

	// Vlen, Array: element datatype.
	Elem *Datatype

	// Array: dimensions, outermost first. Nested array classes are
	// walked by the copier until a non-array base type is reached
	// (§4.3 "Array class").
	Dims []int
}

// TotalArrayCount multiplies every dimension down through nested Array
// classes, stopping at the first non-array base type, per §4.3's Array
// class rule. It returns the base (non-array) datatype and the element
// count.
func (d *Datatype) TotalArrayCount() (base *Datatype, count int) {
	count = 1
	cur := d
	for cur.Class == Array {
		for _, dim := range cur.Dims {
			count *= dim
		}
		cur = cur.Elem
	}
	return cur, count
}

// Dataspace describes the shape of a dataset or attribute. A nil Dims
// (or a zero-length Dims) denotes a scalar dataspace.
type Dataspace struct {
	Dims    []int
	MaxDims []int
}

func (s *Dataspace) IsScalar() bool {
	return s == nil || len(s.Dims) == 0
}

// ElementCount returns the total element count implied by Dims,
// treating a scalar dataspace as one element.
func (s *Dataspace) ElementCount() int {
	if s.IsScalar() {
		return 1
	}
	n := 1
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// ScalarBool returns the dataspace/datatype pair for a scalar boolean
// attribute, the shape used for both CARVED_DATASET_IS_EMPTY and
// WAS_DATASET_COPIED (§4.2, §4.4).
func ScalarBool() (*Datatype, *Dataspace) {
	return &Datatype{Class: Atomic, Size: 1}, &Dataspace{}
}

// CreationProps is an opaque capture of a dataset's creation property
// list (chunking, filters, fill value, ...). The core never interprets
// it; it only round-trips it from source to destination (§4.2).
type CreationProps struct {
	Opaque []byte
}
