package region

import (
	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/dom"
)

// tryCyclic implements spec §4.4's cyclic reduction: a self-loop, or a
// two-node loop where the tail's only successor and only predecessor
// is n. If no successor of n matches, n's natural loop is queued for
// refinement and this call reports no progress.
func tryCyclic(g *graph, n *node) (bool, error) {
	for _, s := range append([]*node(nil), n.succs...) {
		selfLoop := s == n
		twoNode := !selfLoop && len(s.succs) == 1 && s.succs[0] == n && len(s.preds) == 1 && s.preds[0] == n
		if !selfLoop && !twoNode {
			continue
		}

		tail := s
		if tail.block.Terminator().Kind != disasm.KindBranch {
			return false, decompileerr.New(decompileerr.Structural, "loop tail at addr %d does not end in a branch", tail.block.Addr())
		}

		var body []*VirtualRegion
		body = appendToBody(body, vrOf(g, n))
		if !selfLoop {
			body = appendToBody(body, vrOf(g, s))
		}

		// For a self-loop, the loop's only exit test is n's own branch.
		// For a genuine two-node loop, n's block usually tests the
		// while-style top-of-loop exit while s carries an unconditional
		// jump back (or vice versa for a do-while shape); the loop is
		// truly unable to exit only when neither end carries a
		// conditional branch (see the DESIGN.md note on this formula).
		var infinite bool
		if selfLoop {
			infinite = len(tail.block.Succs) == 1 || tail.block.Terminator().Op.IsUnconditional()
		} else {
			infinite = n.block.Terminator().Op.IsUnconditional() && tail.block.Terminator().Op.IsUnconditional()
		}

		if selfLoop {
			disconnect(n, n)
		} else {
			disconnect(n, s)
			disconnect(s, n)
			removeNode(g, s)
		}

		g.vr[n] = &VirtualRegion{Kind: KindLoop, Infinite: infinite, Body: body}
		return true, nil
	}

	blocks := dom.NaturalLoop(n.block)
	loop := make([]*node, 0, len(blocks))
	for _, b := range blocks {
		if ln, live := g.nodes[b]; live {
			loop = append(loop, ln)
		}
	}
	g.unreducedLoops = append(g.unreducedLoops, loop)
	return false, nil
}
