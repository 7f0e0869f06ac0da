// Package decompile orchestrates the full pipeline (spec §1): from a
// disassembled file, build one CFG per region, structure each one
// independently, lift each to an AST, and print the concatenated
// result as TorqueScript source.
package decompile

import (
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/torquescript/dsodecompile/internal/ast"
	"github.com/torquescript/dsodecompile/internal/cfg"
	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/dlog"
	"github.com/torquescript/dsodecompile/internal/dom"
	"github.com/torquescript/dsodecompile/internal/printer"
	"github.com/torquescript/dsodecompile/internal/region"
)

// File decompiles fd into TorqueScript source text. The main-script
// region comes first, in cfg.Build's order, followed by one function
// per FuncDecl-with-body region; each region's structural analysis is
// independent of every other's, so they run concurrently, bounded to
// GOMAXPROCS workers.
func File(fd disasm.FileData) (string, error) {
	dis, err := disasm.Disassemble(fd)
	if err != nil {
		return "", decompileerr.Wrap(decompileerr.Format, err, "disassemble")
	}
	dlog.Infof("disassembled %d instructions", dis.Len())

	funcs, err := cfg.Build(dis)
	if err != nil {
		return "", decompileerr.Wrap(decompileerr.Structural, err, "build control-flow graphs")
	}
	dlog.Infof("built %d control-flow region(s)", len(funcs))

	nodeLists := make([][]*ast.Node, len(funcs))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range funcs {
		i, f := i, f
		g.Go(func() error {
			dom.Compute(f)
			vr, err := region.Analyze(f)
			if err != nil {
				return decompileerr.Wrap(decompileerr.Structural, err, "analyze %s", regionLabel(f))
			}
			nodeLists[i] = ast.Lift(vr, fd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var out strings.Builder
	for i, nodes := range nodeLists {
		if i > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(printer.Fprint(nodes))
	}
	if out.Len() > 0 {
		out.WriteByte('\n')
	}
	return out.String(), nil
}

// regionLabel names f for an error message: the main-script region has
// no name of its own.
func regionLabel(f *cfg.Func) string {
	if f.Name == "" {
		return "main script body"
	}
	return "function " + f.Name
}
