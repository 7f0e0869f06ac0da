// Command decompile turns a compiled TorqueScript DSO file back into
// source text.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/torquescript/dsodecompile/internal/decompile"
	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/dlog"
	"github.com/torquescript/dsodecompile/internal/filedata"
)

// version is set at build time via -ldflags, mirroring the teacher's
// buildinfo.Version convention but without pulling in its VCS-stamping
// machinery, which has no analog for a single-binary decompiler.
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "decompile",
		Usage:   "decompile a Torque Game Engine DSO bytecode file",
		Version: version,
		// The built-in version flag is hidden: its name would collide
		// with the --version flag below.
		HideVersion: true,
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "version",
				Usage: "fail unless the file's DSO version word equals this value",
			},
		},
		ArgsUsage: "<input.dso>",
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "decompile:", err)
		os.Exit(decompileerr.ExitCode(err))
	}
}

func run(c *cli.Context) error {
	// File-level failures (missing argument, unopenable path) are
	// returned as plain errors rather than *decompileerr.Error: per
	// decompileerr.ExitCode's contract, an untagged error already maps
	// to exit code 1, spec §6's "file error".
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("missing input file (usage: decompile <input.dso>)")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fd, err := filedata.Load(f)
	if err != nil {
		return err
	}
	dlog.Infof("loaded %s: DSO version %d", path, fd.Version())

	if want := c.Uint("version"); c.IsSet("version") && fd.Version() != uint32(want) {
		return decompileerr.New(decompileerr.Format, "%s: DSO version %d does not match expected %d", path, fd.Version(), want)
	}

	src, err := decompile.File(fd)
	if err != nil {
		return err
	}

	fmt.Print(src)
	return nil
}
