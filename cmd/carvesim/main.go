// Command carvesim drives the carving engine against the bbolt-backed
// reference fs.Library for local experimentation, in the teacher's
// cmd/ convention (cobra + pflag). It is a test harness, not the
// production entry point: the real product is driven by a dynamic-
// linker preload trampoline calling into internal/dispatch (§1, §9).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	carvefs "github.com/rclone/datacarve/fs"
	"github.com/rclone/datacarve/internal/boltlib"
	"github.com/rclone/datacarve/internal/config"
	"github.com/rclone/datacarve/internal/dispatch"
)

func main() {
	cfg := config.FromEnviron()

	root := &cobra.Command{
		Use:   "carvesim <source-file>",
		Short: "Drive the data-carving engine against a bbolt-backed reference file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], cfg)
		},
	}
	root.Flags().SortFlags = false
	cfg.RegisterFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "carvesim:", err)
		os.Exit(1)
	}
}

func run(sourcePath string, cfg config.Config) error {
	lib, err := boltlib.Open(sourcePath)
	if err != nil {
		return err
	}

	d := dispatch.New(lib, cfg)
	ctx := context.Background()

	f, err := d.OnFileOpen(ctx, sourcePath, carvefs.ReadOnly)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Printf("opened %s (use_carved=%v)\n", sourcePath, cfg.UseCarved)
	return d.OnLibraryTerminate(ctx)
}
