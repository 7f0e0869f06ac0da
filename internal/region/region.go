// Package region implements the structural analyzer (spec §4.4): it
// collapses a CFG's region graph into a tree of VirtualRegion nodes by
// repeated acyclic and cyclic reduction, falling back to goto
// synthesis for irreducible control flow.
package region

import (
	"github.com/torquescript/dsodecompile/internal/cfg"
	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/dom"
)

// Kind tags a VirtualRegion variant (design note §9: tagged variant
// plus pattern matching, not a class hierarchy).
type Kind int

const (
	KindInstruction Kind = iota
	KindLoopFooter
	KindSequence
	KindFunction
	KindConditional
	KindLoop
	KindConditionalGoto
	KindGoto
	KindBreak
	KindContinue
)

// VirtualRegion is one node of the structured tree the analyzer
// produces. Only the fields relevant to Kind are meaningful.
type VirtualRegion struct {
	Kind Kind

	// Instruction / LoopFooter / Conditional / ConditionalGoto
	Block *cfg.Block

	// Sequence / Function / Loop body
	Body []*VirtualRegion

	// Function
	Header *disasm.Instruction

	// Conditional: Then/Else are bodies (Else is nil/empty for a
	// then-only conditional). ThenIsTarget records which physical CFG
	// successor (branch target vs fall-through) plays the "then" role,
	// per the condition-inversion rule in spec §4.4.
	Then         []*VirtualRegion
	Else         []*VirtualRegion
	ThenIsTarget bool

	// Loop
	Infinite bool

	// ConditionalGoto / Goto
	TargetAddr uint32
}

// node is one region-graph node: a mutable mirror of a cfg.Block with
// its own shrinking successor/predecessor lists (spec §3's "Region
// graph"). Block is the read-only CFG block this node was seeded from;
// it never changes, so it doubles as the node's stable address key and
// as the source of dominance queries (cycle classification is computed
// once from the original CFG and does not change as the region graph
// collapses).
type node struct {
	block *cfg.Block
	succs []*node
	preds []*node
}

func (n *node) addSucc(s *node) {
	n.succs = append(n.succs, s)
	s.preds = append(s.preds, n)
}

// graph is the mutable region graph plus the virtual-region side table
// (spec §4.4's "a side table virtual_regions: addr → VirtualRegion").
type graph struct {
	nodes map[*cfg.Block]*node
	entry *node
	vr    map[*node]*VirtualRegion
	f     *cfg.Func

	unreducedLoops [][]*node
}

// Analyze collapses f's CFG into a single VirtualRegion (spec §4.4).
// f must already have had dom.Compute run on it (internal/decompile's
// pipeline does this before calling Analyze); Analyze itself only
// queries dominance, it never recomputes it.
func Analyze(f *cfg.Func) (*VirtualRegion, error) {
	g := newGraph(f)

	// A function consisting of a single self-looping block starts with
	// exactly one region-graph node, which already satisfies "only one
	// node remains" — but it still carries a self-edge that needs one
	// cyclic-reduction pass. moreToDo accounts for that case in addition
	// to the ordinary node-count check.
	moreToDo := func() bool {
		if len(g.nodes) > 1 {
			return true
		}
		for _, n := range g.nodes {
			return len(n.succs) > 0
		}
		return false
	}

	for moreToDo() {
		oldCount := len(g.nodes)

		for _, n := range postorder(g) {
			if _, live := g.nodes[n.block]; !live {
				continue
			}
			if err := reduceNode(g, n); err != nil {
				return nil, err
			}
		}

		if len(g.nodes) == oldCount && moreToDo() {
			if err := refine(g); err != nil {
				return nil, err
			}
		}
	}

	for _, n := range g.nodes {
		vr := vrOf(g, n)
		if n.block == f.Entry && f.Header != nil {
			vr = &VirtualRegion{Kind: KindFunction, Header: f.Header, Body: appendToBody(nil, vr)}
		}
		return vr, nil
	}
	return nil, decompileerr.New(decompileerr.Internal, "structural analysis produced an empty region graph")
}

func newGraph(f *cfg.Func) *graph {
	g := &graph{nodes: make(map[*cfg.Block]*node, len(f.Blocks)), vr: make(map[*node]*VirtualRegion, len(f.Blocks)), f: f}
	byBlock := make(map[*cfg.Block]*node, len(f.Blocks))
	for _, b := range f.Blocks {
		n := &node{block: b}
		byBlock[b] = n
		g.nodes[b] = n
	}
	for _, b := range f.Blocks {
		n := byBlock[b]
		for _, s := range b.Succs {
			n.addSucc(byBlock[s])
		}
	}
	g.entry = byBlock[f.Entry]
	return g
}

// postorder returns g's nodes in post-order DFS from the entry, a
// fresh snapshot taken before this sweep's mutations begin (spec
// §4.4's main-loop step 2). Nodes removed mid-sweep are skipped by the
// caller via a liveness check, since edges into a removed node are
// always rewired away atomically by the reduction that removed it.
func postorder(g *graph) []*node {
	visited := make(map[*node]bool, len(g.nodes))
	var order []*node
	var dfs func(n *node)
	dfs = func(n *node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, s := range n.succs {
			dfs(s)
		}
		order = append(order, n)
	}
	if g.entry != nil {
		dfs(g.entry)
	}
	return order
}

func isCycleStart(n *node) bool { return dom.IsCycleStart(n.block) }
func isCycleEnd(n *node) bool   { return dom.IsCycleEnd(n.block) }

// reduceNode repeats acyclic or cyclic reduction at n while progress is
// made (spec §4.4's reduce_node).
func reduceNode(g *graph, n *node) error {
	for {
		if _, live := g.nodes[n.block]; !live {
			return nil
		}
		if len(n.succs) > 2 {
			return decompileerr.New(decompileerr.Structural, "region node at addr %d has %d successors, want at most 2", n.block.Addr(), len(n.succs))
		}

		var progress bool
		var err error
		if !isCycleEnd(n) {
			progress, err = tryAcyclic(g, n)
			if err != nil {
				return err
			}
		}
		// A loop header is a cycle start but, since it is entered from
		// outside the loop, is almost never also a cycle end — so cyclic
		// reduction is attempted here as a fallback whenever n is a cycle
		// start, not only when the acyclic attempt above was skipped
		// entirely (self-loops are both a cycle start and a cycle end,
		// and are caught by the branch above failing to make progress).
		if !progress && isCycleStart(n) {
			progress, err = tryCyclic(g, n)
			if err != nil {
				return err
			}
		}
		if !progress {
			return nil
		}
	}
}

// vrOf returns n's existing virtual region, or a fresh Instruction
// leaf copying n's block if none has been recorded yet.
func vrOf(g *graph, n *node) *VirtualRegion {
	if vr, ok := g.vr[n]; ok {
		return vr
	}
	return &VirtualRegion{Kind: KindInstruction, Block: n.block}
}

// appendToBody implements the sequence-flattening invariant (spec §3):
// a Sequence being appended to another region's body is spliced in
// element-by-element rather than nested.
func appendToBody(body []*VirtualRegion, vr *VirtualRegion) []*VirtualRegion {
	if vr.Kind == KindSequence {
		return append(body, vr.Body...)
	}
	return append(body, vr)
}

func removeNode(g *graph, n *node) {
	delete(g.nodes, n.block)
	delete(g.vr, n)
}

// disconnect removes the edge from->to on both sides.
func disconnect(from, to *node) {
	from.succs = removeOne(from.succs, to)
	to.preds = removeOne(to.preds, from)
}

func removeOne(list []*node, target *node) []*node {
	out := list[:0]
	for _, n := range list {
		if n != target {
			out = append(out, n)
		}
	}
	return out
}
