// Package attrcopy implements the Attribute Copier (spec §4.3): the
// single recursive function that replaces the source's
// if (class == X) ... else if (class == Y) ... datatype ladder (§9)
// with dispatch over fs.DatatypeClass.
package attrcopy

import (
	"encoding/binary"

	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/cerrors"
	"github.com/rclone/datacarve/internal/objpath"
)

// maxDepth bounds compound/vlen/array recursion (spec §5): real
// datatypes nest a handful of levels deep; 64 is a defensive ceiling,
// not a realistic limit.
const maxDepth = 64

// Copy copies the named attribute from src to dst, creating it on dst
// if absent or overwriting it if present (idempotence, spec §8
// property 6). srcFile/dstFile are needed to dereference and mint
// object references respectively.
func Copy(lib carvefs.Library, srcFile carvefs.File, src carvefs.Object, dstFile carvefs.File, dst carvefs.Object, name string) error {
	srcAttr, err := lib.OpenAttribute(src, name)
	if err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: open source attribute "+name)
	}
	defer srcAttr.Close()

	payload, err := lib.ReadAttribute(srcAttr)
	if err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: read source attribute "+name)
	}

	out, err := copyValue(lib, srcFile, dstFile, srcAttr.Datatype(), srcAttr.Dataspace().ElementCount(), payload, 0)
	if err != nil {
		return err
	}

	dstAttr, err := lib.OpenAttribute(dst, name)
	if err != nil {
		dstAttr, err = lib.CreateAttribute(dst, name, srcAttr.Datatype(), srcAttr.Dataspace())
		if err != nil {
			return cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: create destination attribute "+name)
		}
	}
	defer dstAttr.Close()

	if err := lib.WriteAttribute(dstAttr, out); err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: write destination attribute "+name)
	}
	return nil
}

// copyValue dispatches on dt.Class and returns the destination-side
// encoding of count elements of dt read from payload (§4.3). Reference
// classes rewrite their payload to point into dstFile; every other
// class passes bytes through unchanged (atomic) or recurses
// structurally (compound/vlen/array).
func copyValue(lib carvefs.Library, srcFile, dstFile carvefs.File, dt *carvefs.Datatype, count int, payload []byte, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, cerrors.New(cerrors.DatatypeTooDeep, "attrcopy: datatype nesting exceeds recursion limit")
	}

	switch dt.Class {
	case carvefs.RegionRef:
		return nil, cerrors.New(cerrors.UnsupportedDatatype, "attrcopy: dataset region references are not supported")

	case carvefs.ObjectRef:
		return copyObjectRefs(lib, srcFile, dstFile, dt, count, payload)

	case carvefs.Compound:
		return copyCompound(lib, srcFile, dstFile, dt, count, payload, depth)

	case carvefs.Vlen:
		return copyVlen(lib, srcFile, dstFile, dt, count, payload, depth)

	case carvefs.Array:
		base, innerCount := dt.TotalArrayCount()
		return copyValue(lib, srcFile, dstFile, base, innerCount*count, payload, depth+1)

	case carvefs.Atomic:
		return append([]byte(nil), payload...), nil

	default:
		return nil, cerrors.New(cerrors.UnsupportedDatatype, "attrcopy: unrecognized datatype class")
	}
}

func refSize(abi carvefs.ReferenceABI) int {
	if abi == carvefs.RefABILegacy {
		return 8
	}
	return 16 // opaque H5R_ref_t-style handle; selected by the datatype's RefABI tag (§4.3, §9)
}

func copyObjectRefs(lib carvefs.Library, srcFile, dstFile carvefs.File, dt *carvefs.Datatype, count int, payload []byte) ([]byte, error) {
	size := refSize(dt.RefABI)
	if count == 0 {
		return []byte{}, nil // zero-element references: created with an empty buffer (§4.3 edge case)
	}
	out := make([]byte, 0, count*size)
	for i := 0; i < count; i++ {
		off := i * size
		if off+size > len(payload) {
			return nil, cerrors.New(cerrors.HostLibraryFailure, "attrcopy: truncated reference payload")
		}
		srcObj, err := lib.DereferenceObject(srcFile, payload[off:off+size])
		if err != nil {
			return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: dereference source object reference")
		}
		path, err := lib.ObjectPathOf(srcObj)
		_ = srcObj.Close()
		if err != nil {
			return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: resolve source reference target path")
		}

		dstObj, err := objpath.OpenObject(lib, dstFile, path)
		if err != nil {
			// The destination path MUST already exist: attribute copy
			// is deferred to termination precisely so every reference
			// target has been carved by then (§4.3, §4.7).
			return nil, cerrors.Wrap(cerrors.DanglingReference, err, "attrcopy: reference target not present in destination: "+string(path))
		}
		refBytes, err := lib.CreateReference(dstFile, dstObj)
		_ = dstObj.Close()
		if err != nil {
			return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "attrcopy: create destination object reference")
		}
		if len(refBytes) != size {
			padded := make([]byte, size)
			copy(padded, refBytes)
			refBytes = padded
		}
		out = append(out, refBytes...)
	}
	return out, nil
}

func copyCompound(lib carvefs.Library, srcFile, dstFile carvefs.File, dt *carvefs.Datatype, count int, payload []byte, depth int) ([]byte, error) {
	out := make([]byte, count*dt.CompoundSize)
	for i := 0; i < count; i++ {
		elemBase := i * dt.CompoundSize
		if elemBase+dt.CompoundSize > len(payload) {
			return nil, cerrors.New(cerrors.HostLibraryFailure, "attrcopy: truncated compound payload")
		}
		for _, field := range dt.Fields {
			fieldSize := fieldByteSize(field.Type)
			fieldPayload := payload[elemBase+field.Offset : elemBase+field.Offset+fieldSize]
			fieldOut, err := copyValue(lib, srcFile, dstFile, field.Type, 1, fieldPayload, depth+1)
			if err != nil {
				return nil, err
			}
			copy(out[elemBase+field.Offset:], fieldOut)
		}
	}
	return out, nil
}

// fieldByteSize returns the on-wire size of one instance of a compound
// member's datatype, used to slice the member's bytes out of the
// parent element before recursing.
func fieldByteSize(dt *carvefs.Datatype) int {
	switch dt.Class {
	case carvefs.Compound:
		return dt.CompoundSize
	case carvefs.ObjectRef:
		return refSize(dt.RefABI)
	case carvefs.Array:
		base, count := dt.TotalArrayCount()
		return count * fieldByteSize(base)
	case carvefs.Vlen:
		return 16 // (pointer, length) descriptor; payload lives out-of-line
	default:
		return dt.Size
	}
}

// vlenHeader describes the 8-byte little-endian length that precedes
// each of the N lists an attribute of Vlen class holds (§4.3), with the
// list's elements following inline. copyVlen reads and writes that
// length directly with encoding/binary rather than through this type.
type vlenHeader struct {
	Len uint64
}

func copyVlen(lib carvefs.Library, srcFile, dstFile carvefs.File, dt *carvefs.Datatype, count int, payload []byte, depth int) ([]byte, error) {
	const headerSize = 8
	out := make([]byte, 0, len(payload))
	cursor := 0
	for i := 0; i < count; i++ {
		if cursor+headerSize > len(payload) {
			return nil, cerrors.New(cerrors.HostLibraryFailure, "attrcopy: truncated vlen header")
		}
		n := int(binary.LittleEndian.Uint64(payload[cursor : cursor+headerSize]))
		cursor += headerSize

		elemSize := fieldByteSize(dt.Elem)
		dataLen := n * elemSize
		if cursor+dataLen > len(payload) {
			return nil, cerrors.New(cerrors.HostLibraryFailure, "attrcopy: truncated vlen element data")
		}
		elemOut, err := copyValue(lib, srcFile, dstFile, dt.Elem, n, payload[cursor:cursor+dataLen], depth+1)
		if err != nil {
			return nil, err
		}
		cursor += dataLen

		hdr := make([]byte, headerSize)
		binary.LittleEndian.PutUint64(hdr, uint64(n))
		out = append(out, hdr...)
		out = append(out, elemOut...)
	}
	return out, nil
}
