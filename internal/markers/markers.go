// Package markers implements the two boolean marker attributes the
// carved file carries (spec §4.2, §4.4, §6): CARVED_DATASET_IS_EMPTY
// on every dataset shell, and WAS_DATASET_COPIED on every root group.
package markers

import (
	"github.com/rclone/datacarve/internal/carvelog"
	"github.com/rclone/datacarve/internal/cerrors"

	carvefs "github.com/rclone/datacarve/fs"
)

const (
	IsEmpty   = "CARVED_DATASET_IS_EMPTY"
	WasCopied = "WAS_DATASET_COPIED"
)

// WriteBool creates or overwrites a scalar boolean attribute on o.
func WriteBool(lib carvefs.Library, o carvefs.Object, name string, value bool) error {
	dt, ds := carvefs.ScalarBool()
	attr, err := lib.OpenAttribute(o, name)
	if err != nil {
		attr, err = lib.CreateAttribute(o, name, dt, ds)
		if err != nil {
			return cerrors.Wrap(cerrors.HostLibraryFailure, err, "markers: create "+name)
		}
	}
	defer attr.Close()
	b := byte(0)
	if value {
		b = 1
	}
	if err := lib.WriteAttribute(attr, []byte{b}); err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "markers: write "+name)
	}
	return nil
}

// ReadBool reads a scalar boolean marker attribute. absent reports
// whether the attribute exists at all, distinguishing datasets with no
// marker (treated as populated per §4.4 step 3: "If absent or false")
// from explicitly-false ones. corrupt reports the §7 MarkerCorrupt
// case: the attribute exists but its payload isn't a single
// recognizable boolean byte. Callers must treat a corrupt marker the
// same as a shell (fall back to re-populating), never as populated,
// regardless of absent/value, which are meaningless when corrupt is
// true.
func ReadBool(lib carvefs.Library, o carvefs.Object, name string) (value bool, absent bool, corrupt bool) {
	attr, err := lib.OpenAttribute(o, name)
	if err != nil {
		return false, true, false
	}
	defer attr.Close()

	payload, err := lib.ReadAttribute(attr)
	if err != nil || len(payload) != 1 {
		carvelog.Errorf("markers: %s on %s has unreadable payload, treating as empty (MarkerCorrupt)", name, o.Path())
		return false, false, true
	}
	return payload[0] != 0, false, false
}

// IsEmptyPopulated reports whether a CARVED_DATASET_IS_EMPTY read (via
// ReadBool) describes a populated dataset, per §4.4 step 3 / §4.6's
// literal "absent or false" test. A corrupt marker is never populated
// (§7 MarkerCorrupt), regardless of value/absent. Both
// internal/tracker and internal/router make this same decision over
// the same marker and must stay in lockstep, so it lives here once
// rather than being reimplemented at each call site.
func IsEmptyPopulated(value, absent, corrupt bool) bool {
	return !corrupt && (absent || !value)
}
