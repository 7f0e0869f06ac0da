// Package dom computes dominator trees over internal/cfg graphs using
// the Cooper/Harvey/Kennedy iterative algorithm (spec §4.3), and
// exposes the dominance queries the structural analyzer needs to
// classify cycle starts and cycle ends.
package dom

import "github.com/torquescript/dsodecompile/internal/cfg"

// ReversePostOrder returns f's blocks in reverse post-order from
// f.Entry. Unreachable blocks are excluded (internal/cfg already drops
// them, so in practice this is just f.Blocks in a fixed order).
func ReversePostOrder(f *cfg.Func) []*cfg.Block {
	visited := make(map[*cfg.Block]bool, len(f.Blocks))
	var order []*cfg.Block

	var dfs func(b *cfg.Block)
	dfs = func(b *cfg.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			dfs(s)
		}
		order = append(order, b)
	}
	if f.Entry != nil {
		dfs(f.Entry)
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Compute populates Idom, Dominees, and RPO for every block reachable
// from f.Entry, using a reverse-postorder-numbered intersect fixpoint
// (Cooper/Harvey/Kennedy). The entry block is temporarily
// self-dominated during the fixpoint and reset to "no immediate
// dominator" (nil) on completion, per spec §4.3.
func Compute(f *cfg.Func) {
	rpo := ReversePostOrder(f)
	if len(rpo) == 0 {
		return
	}

	for i, b := range rpo {
		b.RPO = i
	}

	intersect := func(b1, b2 *cfg.Block) *cfg.Block {
		for b1 != b2 {
			for b1.RPO > b2.RPO {
				b1 = b1.Idom
			}
			for b2.RPO > b1.RPO {
				b2 = b2.Idom
			}
		}
		return b1
	}

	entry := rpo[0]
	entry.Idom = entry

	for _, b := range f.Blocks {
		if b != entry {
			b.Idom = nil
		}
		b.Dominees = nil
	}

	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *cfg.Block
			for _, p := range b.Preds {
				if p.Idom != nil {
					newIdom = p
					break
				}
			}
			if newIdom == nil {
				continue
			}
			for _, p := range b.Preds {
				if p == newIdom || p.Idom == nil {
					continue
				}
				newIdom = intersect(p, newIdom)
			}
			if b.Idom != newIdom {
				b.Idom = newIdom
				changed = true
			}
		}
	}

	entry.Idom = nil

	for _, b := range rpo {
		if b.Idom != nil {
			b.Idom.Dominees = append(b.Idom.Dominees, b)
		}
	}
}

// Dominates reports whether a dominates b. When strict is false, a
// dominates itself; when true, the reflexive case is excluded.
func Dominates(a, b *cfg.Block, strict bool) bool {
	if a == b {
		return !strict
	}
	for n := b.Idom; n != nil; n = n.Idom {
		if n == a {
			return true
		}
	}
	return false
}

// CommonDominator walks two "fingers" up the idom tree, always
// advancing whichever has the higher RPO number, until they meet
// (spec §4.3's "two fingers" helper).
func CommonDominator(a, b *cfg.Block) *cfg.Block {
	for a != b {
		for a.RPO > b.RPO {
			a = a.Idom
		}
		for b.RPO > a.RPO {
			b = b.Idom
		}
	}
	return a
}

// IsCycleStart reports whether h has some predecessor dominated by h,
// i.e. a back-edge into h exists (spec §4.3).
func IsCycleStart(h *cfg.Block) bool {
	for _, p := range h.Preds {
		if Dominates(h, p, false) {
			return true
		}
	}
	return false
}

// IsCycleEnd reports whether n has some successor that dominates n
// (spec §4.3).
func IsCycleEnd(n *cfg.Block) bool {
	for _, s := range n.Succs {
		if Dominates(s, n, false) {
			return true
		}
	}
	return false
}

// NaturalLoop returns every block on some back-edge path to h: the set
// of nodes n such that n is h or n reaches h without going through h's
// idom-tree root escaping the loop, computed by the standard
// backward-reachability-avoiding-h construction seeded from each
// back-edge predecessor.
func NaturalLoop(h *cfg.Block) []*cfg.Block {
	inLoop := map[*cfg.Block]bool{h: true}
	var stack []*cfg.Block

	for _, p := range h.Preds {
		if Dominates(h, p, false) && !inLoop[p] {
			inLoop[p] = true
			stack = append(stack, p)
		}
	}

	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range b.Preds {
			if !inLoop[p] {
				inLoop[p] = true
				stack = append(stack, p)
			}
		}
	}

	out := make([]*cfg.Block, 0, len(inLoop))
	for _, b := range h.Func.Blocks {
		if inLoop[b] {
			out = append(out, b)
		}
	}
	return out
}
