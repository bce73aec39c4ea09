// Package config reads the four environment variables that form the
// core's sole configuration surface (spec §6), the same
// read-once-at-init style the teacher uses for its fs/config package,
// plus an optional pflag.FlagSet for overriding them in tests and the
// cmd/carvesim harness.
package config

import (
	"os"

	"github.com/spf13/pflag"
)

// Config is the resolved configuration for one process.
type Config struct {
	// CarvedDirectory, if non-empty, is the directory under which
	// carved files are created; otherwise they are created alongside
	// their sources.
	CarvedDirectory string

	// UseCarved selects re-execution mode when true; carve mode
	// otherwise.
	UseCarved bool

	// NetCDF4 hints that source files are netCDF-4, enabling the
	// ".carved" suffix strip in re-execution mode.
	NetCDF4 bool

	// Debug enables the append-mode diagnostic log file.
	Debug bool
}

// FromEnviron parses CARVED_DIRECTORY, USE_CARVED, NETCDF4, and DEBUG
// exactly as spec §6 specifies: USE_CARVED selects re-execution mode
// only for the exact string "true"; NETCDF4 and DEBUG are presence
// flags, not booleans.
func FromEnviron() Config {
	_, netcdf4 := os.LookupEnv("NETCDF4")
	_, debug := os.LookupEnv("DEBUG")
	return Config{
		CarvedDirectory: os.Getenv("CARVED_DIRECTORY"),
		UseCarved:       os.Getenv("USE_CARVED") == "true",
		NetCDF4:         netcdf4,
		Debug:           debug,
	}
}

// RegisterFlags binds the same configuration surface onto fs so the
// cmd/carvesim harness can override the environment from the command
// line, the pattern the teacher's cmd package uses to let pflag values
// shadow environment-derived config defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.CarvedDirectory, "carved-directory", c.CarvedDirectory, "directory under which carved files are created")
	fs.BoolVar(&c.UseCarved, "use-carved", c.UseCarved, "select re-execution mode")
	fs.BoolVar(&c.NetCDF4, "netcdf4", c.NetCDF4, "hint that source files are netCDF-4")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable the append-mode diagnostic log file")
}
