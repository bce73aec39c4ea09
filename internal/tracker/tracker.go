// Package tracker implements the Access Tracker / Populator (spec
// §4.4): invoked on every dataset-read dispatch, it decides whether a
// destination dataset is still a shell and, if so, materializes it.
package tracker

import (
	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/cerrors"
	"github.com/rclone/datacarve/internal/markers"
	"github.com/rclone/datacarve/internal/objpath"
)

// OnDatasetRead is the carve-mode half of the Populator (§4.4).
// path locates the dataset within both the source and destination
// files (identical path); dstFile is the carved counterpart. When it
// populates a shell it also sets the root WAS_DATASET_COPIED flag
// itself. It reports whether the dataset was (or already had been)
// populated.
func OnDatasetRead(lib carvefs.Library, srcFile carvefs.File, dstFile carvefs.File, path carvefs.ObjectPath) (populated bool, err error) {
	parentPath := path.Parent()
	name := path.Base()

	dstParent, err := objpath.OpenGroup(lib, dstFile, parentPath)
	if err != nil {
		return false, cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: open destination parent group")
	}
	defer dstParent.Close()

	dstDS, err := lib.OpenDataset(dstParent, name)
	if err != nil {
		return false, cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: open destination dataset shell")
	}
	defer dstDS.Close()

	isEmpty, absent, corrupt := markers.ReadBool(lib, dstDS, markers.IsEmpty)
	if markers.IsEmptyPopulated(isEmpty, absent, corrupt) {
		// Already populated by a prior read in this run (§4.4 step 3:
		// "If absent or false, the dataset is already populated").
		return true, nil
	}

	srcParent, err := objpath.OpenGroup(lib, srcFile, parentPath)
	if err != nil {
		return false, cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: open source parent group")
	}
	defer srcParent.Close()

	if err := lib.DeleteLink(dstParent, name); err != nil {
		return false, cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: delete shell link")
	}
	if err := lib.CopyObject(srcParent, name, dstParent, name); err != nil {
		return false, cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: copy dataset payload")
	}

	root := dstFile.Root()
	if err := markers.WriteBool(lib, root, markers.WasCopied, true); err != nil {
		root.Close()
		return false, err
	}
	root.Close()

	populatedDS, err := lib.OpenDataset(dstParent, name)
	if err != nil {
		return false, cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: reopen populated dataset")
	}
	defer populatedDS.Close()

	if err := stripAttributes(lib, populatedDS); err != nil {
		return false, err
	}
	return true, nil
}

// stripAttributes deletes every attribute on the newly copied
// destination object, including the stale CARVED_DATASET_IS_EMPTY
// shell marker left behind by the copy (§4.4 step 4: "iterate all
// attributes of the newly copied destination object and delete
// them"). The source never carries CARVED_DATASET_IS_EMPTY, so
// CopyObject never brings one over; the only IS_EMPTY attribute seen
// here is the original shell's, which DeleteLink/CopyObject leave
// behind since the object's path is unchanged. Leaving it in place
// would mean a populated dataset never reports "absent or false"
// (§8 property 3). All other attributes may reference objects that no
// longer resolve correctly once this dataset's identity changed, and
// are recopied (correctly) by the Lifecycle Coordinator's termination
// sweep (§4.7).
func stripAttributes(lib carvefs.Library, o carvefs.Object) error {
	var names []string
	if err := lib.IterateAttributes(o, func(name string) error {
		names = append(names, name)
		return nil
	}); err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: iterate copied attributes")
	}
	for _, name := range names {
		if err := lib.DeleteAttribute(o, name); err != nil {
			return cerrors.Wrap(cerrors.HostLibraryFailure, err, "tracker: strip attribute "+name)
		}
	}
	return nil
}
