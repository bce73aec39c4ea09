// Package fallback implements the Fallback Metadata Writer (spec
// §4.5): a single compound attribute on the destination root group
// recording how to reach the original file.
package fallback

import (
	"errors"

	carvefs "github.com/rclone/datacarve/fs"
)

var errFallbackTruncated = errors.New("fallback: truncated FALLBACK_METADATA payload")

const AttrName = "FALLBACK_METADATA"

// fallbackRecord mirrors the wire layout of §4.5's table: a 4-byte
// enum discriminator followed by the absolute path, stored as a
// fixed-length string whose width equals len(path) so a reader can
// reconstruct it verbatim.
type fallbackRecord struct {
	Kind carvefs.FallbackKind
	Path string
}

// datatype builds the FALLBACK_METADATA compound datatype for a given
// path: FALLBACK_TYPE is an atomic 4-byte enum, PATH a fixed-length
// string sized to strlen(path) exactly, per §4.5.
func datatype(path string) *carvefs.Datatype {
	return &carvefs.Datatype{
		Class: carvefs.Compound,
		Fields: []carvefs.CompoundField{
			{Name: "FALLBACK_TYPE", Offset: 0, Type: &carvefs.Datatype{Class: carvefs.Atomic, Size: 4}},
			{Name: "PATH", Offset: 4, Type: &carvefs.Datatype{Class: carvefs.Atomic, Size: len(path)}},
		},
		CompoundSize: 4 + len(path),
	}
}

// Write creates (or overwrites) FALLBACK_METADATA on dst's root group.
func Write(lib carvefs.Library, dst carvefs.File, kind carvefs.FallbackKind, absPath string) error {
	root := dst.Root()
	defer root.Close()

	dt := datatype(absPath)
	ds := &carvefs.Dataspace{}

	buf := make([]byte, dt.CompoundSize)
	buf[0] = byte(kind)
	copy(buf[4:], absPath)

	attr, err := lib.OpenAttribute(root, AttrName)
	if err != nil {
		attr, err = lib.CreateAttribute(root, AttrName, dt, ds)
		if err != nil {
			return err
		}
	}
	defer attr.Close()
	return lib.WriteAttribute(attr, buf)
}

// Read parses a FALLBACK_METADATA attribute's raw payload back into
// its kind and path, the read-side counterpart a re-execution
// consumer (outside this module's scope) would use to reach the
// original file.
func Read(payload []byte) (carvefs.FallbackKind, string, error) {
	if len(payload) < 4 {
		return 0, "", errFallbackTruncated
	}
	kind := carvefs.FallbackKind(payload[0])
	return kind, string(payload[4:]), nil
}
