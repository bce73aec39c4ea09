// Package skeleton implements the Skeleton Builder (spec §4.2): a
// depth-first, name-sorted traversal of the source object graph that
// reproduces every group and dataset shell in the destination, without
// payloads. Attributes are not copied here — see internal/attrcopy and
// internal/lifecycle for why that is deferred.
package skeleton

import (
	"context"

	"golang.org/x/sync/errgroup"

	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/cerrors"
	"github.com/rclone/datacarve/internal/fallback"
	"github.com/rclone/datacarve/internal/markers"
)

// Build constructs dst's skeleton from src: every group, every dataset
// shell with CARVED_DATASET_IS_EMPTY=true, the root WAS_DATASET_COPIED
// flag (initialized false), and the FallbackMetadata attribute.
//
// Before traversal it writes the two root-group attributes spec §4.2
// requires up front, then recurses. Sibling subtrees at each level are
// fanned out with an errgroup (mirroring how the teacher's
// backend/cache and fs/walk packages parallelize sibling directory
// listings), but the visitation order within a single parent — and
// therefore every observable side effect that depends on order, like
// the sequence dataset shells are created in — still follows the
// name-ascending sort the spec requires: fan-out is over already-sorted,
// disjoint children, never a substitute for sorting them.
func Build(ctx context.Context, lib carvefs.Library, src carvefs.File, dst carvefs.File, originalPath string, originalKind carvefs.FallbackKind) error {
	if err := fallback.Write(lib, dst, originalKind, originalPath); err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: write fallback metadata")
	}

	root := dst.Root()
	defer root.Close()
	if err := markers.WriteBool(lib, root, markers.WasCopied, false); err != nil {
		return err
	}

	return buildGroup(ctx, lib, src.Root(), dst.Root())
}

func buildGroup(ctx context.Context, lib carvefs.Library, srcGroup, dstGroup carvefs.Group) error {
	defer srcGroup.Close()
	defer dstGroup.Close()

	var names []string
	err := lib.IterateLinks(srcGroup, func(name string) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: iterate links")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		obj, err := lib.OpenObject(srcGroup, name)
		if err != nil {
			return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: open object "+name)
		}
		switch obj.Kind() {
		case carvefs.KindGroup:
			srcChild, err := lib.OpenGroup(srcGroup, name)
			_ = obj.Close()
			if err != nil {
				return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: open group "+name)
			}
			dstChild, err := lib.CreateGroup(dstGroup, name)
			if err != nil {
				return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: create group "+name)
			}
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				return buildGroup(ctx, lib, srcChild, dstChild)
			})
		case carvefs.KindDataset:
			_ = obj.Close()
			if err := buildDatasetShell(lib, srcGroup, dstGroup, name); err != nil {
				return err
			}
		default:
			// Named datatypes and other object kinds are skipped (§4.2,
			// §9 open question 1): nothing downstream depends on them
			// existing in the carved file.
			_ = obj.Close()
		}
	}
	return g.Wait()
}

func buildDatasetShell(lib carvefs.Library, srcGroup, dstGroup carvefs.Group, name string) error {
	srcDS, err := lib.OpenDataset(srcGroup, name)
	if err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: open dataset "+name)
	}
	defer srcDS.Close()

	dstDS, err := lib.CreateDataset(dstGroup, name, srcDS.Datatype(), srcDS.Dataspace(), srcDS.CreationProps())
	if err != nil {
		return cerrors.Wrap(cerrors.HostLibraryFailure, err, "skeleton: create dataset "+name)
	}
	defer dstDS.Close()

	return markers.WriteBool(lib, dstDS, markers.IsEmpty, true)
}
