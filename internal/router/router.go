// Package router implements the Re-execution Router (spec §4.6):
// applied to every object-open dispatch in re-execution mode, it
// serves a request from the carved file when the object is present
// and populated there, and transparently falls back to the retained
// original-file handle otherwise.
package router

import (
	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/cerrors"
	"github.com/rclone/datacarve/internal/markers"
	"github.com/rclone/datacarve/internal/objpath"
)

// Route resolves an object-open request (parentPath, name) against the
// carved file first, falling back to the original. Both branches return
// a plain fs.Object, so the object itself does not reveal which file
// served the request; only Route's direct caller learns it, through
// servedFromFallback.
func Route(
	carvedLib carvefs.Library, carvedFile carvefs.File,
	fallbackLib carvefs.Library, fallbackFile carvefs.File,
	parentPath carvefs.ObjectPath, name string,
) (obj carvefs.Object, servedFromFallback bool, err error) {
	carvedParent, err := objpath.OpenGroup(carvedLib, carvedFile, parentPath)
	if err != nil {
		return fallback(fallbackLib, fallbackFile, parentPath, name)
	}
	defer carvedParent.Close()

	candidate, err := carvedLib.OpenObject(carvedParent, name)
	if err != nil {
		return fallback(fallbackLib, fallbackFile, parentPath, name)
	}

	if candidate.Kind() != carvefs.KindDataset {
		// Groups (and named datatypes) carry no shell concept: the
		// Skeleton Builder always creates them in full.
		return candidate, false, nil
	}

	isEmpty, absent, corrupt := markers.ReadBool(carvedLib, candidate, markers.IsEmpty)
	if markers.IsEmptyPopulated(isEmpty, absent, corrupt) {
		// §4.6: "the CARVED_DATASET_IS_EMPTY marker is absent or false".
		return candidate, false, nil
	}
	_ = candidate.Close()

	return fallback(fallbackLib, fallbackFile, parentPath, name)
}

func fallback(fallbackLib carvefs.Library, fallbackFile carvefs.File, parentPath carvefs.ObjectPath, name string) (carvefs.Object, bool, error) {
	parent, err := objpath.OpenGroup(fallbackLib, fallbackFile, parentPath)
	if err != nil {
		return nil, true, cerrors.Wrap(cerrors.HostLibraryFailure, err, "router: open fallback parent group")
	}
	defer parent.Close()

	obj, err := fallbackLib.OpenObject(parent, name)
	if err != nil {
		return nil, true, cerrors.Wrap(cerrors.HostLibraryFailure, err, "router: open object on fallback handle")
	}
	return obj, true, nil
}
