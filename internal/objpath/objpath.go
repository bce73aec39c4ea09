// Package objpath provides the shared "walk from root to resolve an
// absolute ObjectPath" helper that both internal/attrcopy (resolving
// reference targets) and internal/tracker (resolving a dataset read's
// containing group) need: fs.Library's open operations are scoped to
// a (parent Group, child name) pair, never a full path, so anything
// that only has a path in hand has to walk down from the root.
package objpath

import (
	"strings"

	carvefs "github.com/rclone/datacarve/fs"
)

// Segments splits an absolute ObjectPath into its path components.
func Segments(path carvefs.ObjectPath) []string {
	trimmed := strings.TrimPrefix(string(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// OpenGroup walks from f's root to the group named by path, opening
// (and closing) every intermediate group along the way.
func OpenGroup(lib carvefs.Library, f carvefs.File, path carvefs.ObjectPath) (carvefs.Group, error) {
	cur := f.Root()
	for _, name := range Segments(path) {
		g, err := lib.OpenGroup(cur, name)
		if err != nil {
			cur.Close()
			return nil, err
		}
		cur.Close()
		cur = g
	}
	return cur, nil
}

// OpenObject walks from f's root to the object named by path.
func OpenObject(lib carvefs.Library, f carvefs.File, path carvefs.ObjectPath) (carvefs.Object, error) {
	if path == carvefs.Root {
		return f.Root(), nil
	}
	parent, err := OpenGroup(lib, f, path.Parent())
	if err != nil {
		return nil, err
	}
	defer parent.Close()
	return lib.OpenObject(parent, path.Base())
}
