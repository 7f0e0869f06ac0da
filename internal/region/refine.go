package region

import (
	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/dlog"
	"github.com/torquescript/dsodecompile/internal/dom"
)

// refine is spec §4.4's refine_unreduced_regions, called when a full
// post-order sweep makes no progress. Step 1 drains unreduced_loops.
// Step 2 (ReduceTailSuccessors) is left unimplemented, per the Open
// Question decision in DESIGN.md — last resort alone guarantees
// termination. Step 3 (last resort) runs when unreducedLoops is empty,
// or when draining it cut no edge, so each call makes exactly one kind
// of cut.
func refine(g *graph) error {
	if len(g.unreducedLoops) > 0 {
		edges := func() (n int) {
			for _, nd := range g.nodes {
				n += len(nd.succs)
			}
			return n
		}
		before := edges()
		loops := g.unreducedLoops
		g.unreducedLoops = nil
		for _, loop := range loops {
			virtualizeLoopEntries(g, loop)
		}
		if edges() < before {
			return nil
		}
	}

	return lastResort(g)
}

// virtualizeLoopEntries gives loop a single entry: the member with the
// most incoming edges from outside the loop becomes the head, and
// every external edge into any other member is replaced by a
// synthesized Goto at its source (spec §4.4 refinement step 1).
func virtualizeLoopEntries(g *graph, loop []*node) {
	if len(loop) == 0 {
		return
	}
	inLoop := make(map[*node]bool, len(loop))
	for _, n := range loop {
		inLoop[n] = true
	}

	extIn := make(map[*node]int, len(loop))
	for _, n := range loop {
		if _, live := g.nodes[n.block]; !live {
			continue
		}
		for _, p := range n.preds {
			if !inLoop[p] {
				extIn[n]++
			}
		}
	}

	head := loop[0]
	for _, n := range loop[1:] {
		if extIn[n] > extIn[head] {
			head = n
		}
	}

	for _, n := range loop {
		if n == head {
			continue
		}
		if _, live := g.nodes[n.block]; !live {
			continue
		}
		for _, p := range append([]*node(nil), n.preds...) {
			if inLoop[p] {
				continue
			}
			addr := n.block.Addr()
			g.vr[p] = &VirtualRegion{
				Kind: KindSequence,
				Body: appendToBody(appendToBody(nil, vrOf(g, p)), &VirtualRegion{Kind: KindGoto, TargetAddr: addr}),
			}
			disconnect(p, n)
			dlog.Warnf("region: virtualized loop entry edge into 0x%x", addr)
		}
	}
}

// lastResort makes exactly one cut so the outer loop's old_count guard
// always sees progress (spec §4.4 refinement step 3).
func lastResort(g *graph) error {
	for _, n := range postorder(g) {
		if _, live := g.nodes[n.block]; !live {
			continue
		}

		switch len(n.succs) {
		case 1:
			s := n.succs[0]
			if dom.Dominates(n.block, s.block, false) || dom.Dominates(s.block, n.block, false) {
				continue
			}
			addr := s.block.Addr()
			g.vr[n] = &VirtualRegion{
				Kind: KindSequence,
				Body: appendToBody(appendToBody(nil, vrOf(g, n)), &VirtualRegion{Kind: KindGoto, TargetAddr: addr}),
			}
			disconnect(n, s)
			dlog.Warnf("region: last resort goto 0x%x from unreduced node 0x%x", addr, n.block.Addr())
			return nil

		case 2:
			e := n.succs[1]
			if dom.Dominates(n.block, e.block, false) || dom.Dominates(e.block, n.block, false) {
				continue
			}
			addr := e.block.Addr()
			g.vr[n] = &VirtualRegion{Kind: KindConditionalGoto, Block: n.block, TargetAddr: addr}
			disconnect(n, e)
			dlog.Warnf("region: last resort conditional goto 0x%x from unreduced node 0x%x", addr, n.block.Addr())
			return nil
		}
	}

	return decompileerr.New(decompileerr.Internal, "structural analysis stalled with no last-resort cut available")
}
