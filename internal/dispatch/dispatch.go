// Package dispatch implements the five entry points the interposition
// layer is expected to call (spec §6 "Dispatch interface"). It is the
// one package that wires pathmap, skeleton, tracker, fallback, router
// and lifecycle together behind the shape an LD_PRELOAD trampoline
// would actually invoke.
//
// The symbol-interposition mechanism itself (§1, §9 "Function-pointer
// trampoline") is an external collaborator and is not implemented
// here: callers are expected to be the dynamic-linker preload layer
// (production) or cmd/carvesim (tests, demos).
package dispatch

import (
	"context"
	"os"
	"path/filepath"

	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/carvelog"
	"github.com/rclone/datacarve/internal/cerrors"
	"github.com/rclone/datacarve/internal/config"
	"github.com/rclone/datacarve/internal/lifecycle"
	"github.com/rclone/datacarve/internal/objpath"
	"github.com/rclone/datacarve/internal/pathmap"
	"github.com/rclone/datacarve/internal/router"
	"github.com/rclone/datacarve/internal/skeleton"
	"github.com/rclone/datacarve/internal/tracker"
)

// Dispatcher holds everything a single process needs to service the
// five intercepted operations: the host capability implementation, the
// resolved environment configuration, and the Lifecycle Coordinator's
// process-wide Context.
type Dispatcher struct {
	Lib carvefs.Library
	Cfg config.Config
	Ctx *lifecycle.Context
}

// New builds a Dispatcher from the process environment and a concrete
// fs.Library (a real libhdf5 binding in production; internal/boltlib
// in tests and cmd/carvesim).
func New(lib carvefs.Library, cfg config.Config) *Dispatcher {
	if cfg.Debug {
		if err := carvelog.EnableDebugFile("."); err != nil {
			carvelog.Errorf("dispatch: could not enable debug log: %v", err)
		}
	}
	return &Dispatcher{Lib: lib, Cfg: cfg, Ctx: lifecycle.NewContext(lib)}
}

// OnFileOpen implements on_file_open(path, flags, fapl) (§6). In carve
// mode it runs the Path Mapper, then either builds a fresh skeleton or
// (idempotence, §7/§8 S5) reuses an already-carved file found on disk.
// In re-execution mode it opens the carved file as primary and retains
// the original as the fallback handle for the Router.
func (d *Dispatcher) OnFileOpen(ctx context.Context, sourcePath string, flags carvefs.OpenFlags) (carvefs.File, error) {
	carvedPath, err := pathmap.CarvedPathFor(sourcePath, d.Cfg.NetCDF4, d.Cfg.UseCarved, d.Cfg.CarvedDirectory)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.PathMappingFailure, err, "dispatch: map carved path")
	}

	if d.Cfg.UseCarved {
		return d.openReexec(ctx, sourcePath, carvedPath)
	}
	return d.openCarve(ctx, sourcePath, carvedPath)
}

func (d *Dispatcher) openCarve(ctx context.Context, sourcePath, carvedPath string) (carvefs.File, error) {
	src, err := d.Lib.OpenFile(ctx, sourcePath, carvefs.ReadOnly)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "dispatch: open source file")
	}

	existed := fileExists(carvedPath)

	var dst carvefs.File
	if existed {
		dst, err = d.Lib.OpenFile(ctx, carvedPath, carvefs.ReadWrite)
	} else {
		dst, err = d.Lib.CreateFile(ctx, carvedPath)
	}
	if err != nil {
		src.Close()
		return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "dispatch: open/create carved file")
	}

	binding := &lifecycle.FileBinding{
		SourcePath: sourcePath,
		CarvedPath: carvedPath,
		Mode:       lifecycle.ModeCarve,
		Source:     src,
		Carved:     dst,
	}
	d.Ctx.Register(binding)

	if existed {
		carvelog.Debugf("dispatch: %s already carved at %s, skipping skeleton build", sourcePath, carvedPath)
		return dst, nil
	}

	if err := skeleton.Build(ctx, d.Lib, src, dst, absPath(sourcePath), carvefs.FallbackLocal); err != nil {
		carvelog.Errorf("dispatch: skeleton build failed for %s: %v", sourcePath, err)
		return nil, err
	}
	d.Ctx.MarkBuilt(sourcePath)
	return dst, nil
}

func (d *Dispatcher) openReexec(ctx context.Context, sourcePath, carvedPath string) (carvefs.File, error) {
	carved, err := d.Lib.OpenFile(ctx, carvedPath, carvefs.ReadOnly)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "dispatch: open carved file")
	}
	original, err := d.Lib.OpenFile(ctx, sourcePath, carvefs.ReadOnly)
	if err != nil {
		carved.Close()
		return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "dispatch: open fallback (original) file")
	}

	binding := &lifecycle.FileBinding{
		SourcePath: sourcePath,
		CarvedPath: carvedPath,
		Mode:       lifecycle.ModeReexec,
		Carved:     carved,
		Fallback:   original,
	}
	d.Ctx.Register(binding)
	return carved, nil
}

// OnNetcdfOpen implements on_netcdf_open(path, mode, out_id) (§6): the
// netCDF open is intercepted solely to rewrite path to the carved
// counterpart in re-execution mode (§8 S6); the actual open is
// delegated to OnFileOpen once the path has been resolved.
func (d *Dispatcher) OnNetcdfOpen(ctx context.Context, path string, flags carvefs.OpenFlags) (carvefs.File, error) {
	return d.OnFileOpen(ctx, path, flags)
}

// OnObjectOpen implements on_object_open(loc, name, lapl) (§6). In
// carve mode it is a pass-through to the host library (nothing to
// route; every object always exists in the carved file by skeleton
// construction). In re-execution mode it defers entirely to
// internal/router.
func (d *Dispatcher) OnObjectOpen(sourcePath string, parentPath carvefs.ObjectPath, name string) (carvefs.Object, error) {
	b, ok := d.Ctx.Binding(sourcePath)
	if !ok {
		return nil, cerrors.New(cerrors.HostLibraryFailure, "dispatch: object-open for unknown file binding")
	}

	if b.Mode == lifecycle.ModeCarve {
		parent, err := objpath.OpenGroup(d.Lib, b.Carved, parentPath)
		if err != nil {
			return nil, cerrors.Wrap(cerrors.HostLibraryFailure, err, "dispatch: open parent group")
		}
		defer parent.Close()
		return d.Lib.OpenObject(parent, name)
	}

	obj, fromFallback, err := router.Route(d.Lib, b.Carved, d.Lib, b.Fallback, parentPath, name)
	if err != nil {
		return nil, err
	}
	if fromFallback {
		carvelog.Debugf("dispatch: %s%s served from fallback handle", parentPath, "/"+name)
	}
	return obj, nil
}

// OnDatasetRead implements on_dataset_read(dataset, mem_type, mem_space,
// file_space, dxpl, buf) (§6). In carve mode it runs the Populator. In
// re-execution mode the read has already been served by whichever file
// the Router chose at open time, so this is a no-op (§4.4).
func (d *Dispatcher) OnDatasetRead(sourcePath string, datasetPath carvefs.ObjectPath) error {
	b, ok := d.Ctx.Binding(sourcePath)
	if !ok {
		return cerrors.New(cerrors.HostLibraryFailure, "dispatch: dataset-read for unknown file binding")
	}
	if b.Mode == lifecycle.ModeReexec {
		return nil
	}
	_, err := tracker.OnDatasetRead(d.Lib, b.Source, b.Carved, datasetPath)
	return err
}

// OnLibraryTerminate implements on_library_terminate() (§6): runs the
// Lifecycle Coordinator's termination sweep, then would delegate to
// the host library's own termination routine (outside this module's
// scope — an external collaborator per §1).
func (d *Dispatcher) OnLibraryTerminate(ctx context.Context) error {
	return d.Ctx.Terminate(ctx)
}

// fileExists backs the idempotent-reopen recovery path (§7, §8 S5): a
// carved file already present on disk means skeleton build is skipped
// and the existing destination is reused as-is.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
