package region

// tryAcyclic dispatches acyclic reduction on n's current successor
// count (spec §4.4's "Acyclic reduction (dispatch on successor
// count)"). A node with more than two successors is caught earlier in
// reduceNode as a fatal structural error.
func tryAcyclic(g *graph, n *node) (bool, error) {
	switch len(n.succs) {
	case 0:
		return false, nil
	case 1:
		return trySequence(g, n)
	case 2:
		return tryConditional(g, n)
	default:
		return false, nil
	}
}

// trySequence implements the 1-successor case: n;s collapse into a
// Sequence, provided s has no other predecessor (spec §4.4).
func trySequence(g *graph, n *node) (bool, error) {
	s := n.succs[0]
	if len(s.preds) != 1 || s.preds[0] != n {
		return false, nil
	}

	var body []*VirtualRegion
	body = appendToBody(body, vrOf(g, n))
	if isCycleEnd(s) {
		body = appendToBody(body, &VirtualRegion{Kind: KindLoopFooter, Block: s.block})
	} else {
		body = appendToBody(body, vrOf(g, s))
	}

	for _, succ := range append([]*node(nil), s.succs...) {
		disconnect(s, succ)
		n.addSucc(succ)
	}
	disconnect(n, s)
	removeNode(g, s)

	g.vr[n] = &VirtualRegion{Kind: KindSequence, Body: body}
	return true, nil
}

// tryConditional implements the 2-successor case: the then-only and
// then/else conditional shapes from spec §4.4.
func tryConditional(g *graph, n *node) (bool, error) {
	x, y := n.succs[0], n.succs[1]

	if tryThenOnly(g, n, x, y) {
		return true, nil
	}
	if tryThenOnly(g, n, y, x) {
		return true, nil
	}
	if tryThenElse(g, n, x, y) {
		return true, nil
	}
	return false, nil
}

// tryThenOnly matches "t_s = e and t has no predecessor other than n":
// an if-then with no else, where taking t always leads back to e. e is
// already one of n's two successors (n's "else" branch), so collapsing
// t leaves the existing n→e edge as n's sole remaining successor.
func tryThenOnly(g *graph, n, t, e *node) bool {
	if len(t.succs) != 1 || t.succs[0] != e {
		return false
	}
	if len(t.preds) != 1 || t.preds[0] != n {
		return false
	}

	cond := &VirtualRegion{
		Kind:         KindConditional,
		Block:        n.block,
		Then:         appendToBody(nil, vrOf(g, t)),
		ThenIsTarget: t.block == n.block.Succs[0],
	}

	disconnect(t, e)
	disconnect(n, t)
	removeNode(g, t)

	g.vr[n] = cond
	return true
}

// tryThenElse matches "e_s exists, t_s = e_s, and neither t nor e has
// any extra predecessor": a balanced if-then-else whose branches
// converge on a common join.
func tryThenElse(g *graph, n, t, e *node) bool {
	if len(t.succs) != 1 || len(e.succs) != 1 {
		return false
	}
	joinT, joinE := t.succs[0], e.succs[0]
	if joinT != joinE {
		return false
	}
	if len(t.preds) != 1 || t.preds[0] != n {
		return false
	}
	if len(e.preds) != 1 || e.preds[0] != n {
		return false
	}

	join := joinT
	cond := &VirtualRegion{
		Kind:         KindConditional,
		Block:        n.block,
		Then:         appendToBody(nil, vrOf(g, t)),
		Else:         appendToBody(nil, vrOf(g, e)),
		ThenIsTarget: t.block == n.block.Succs[0],
	}

	disconnect(t, join)
	disconnect(e, join)
	disconnect(n, t)
	disconnect(n, e)
	n.addSucc(join)
	removeNode(g, t)
	removeNode(g, e)

	g.vr[n] = cond
	return true
}
