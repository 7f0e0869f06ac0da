package ast

import (
	"fmt"

	"github.com/torquescript/dsodecompile/internal/cfg"
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/opcode"
	"github.com/torquescript/dsodecompile/internal/region"
)

// addrMode tracks which of SetCurVar/SetCurField most recently set the
// "currently addressed" target; LoadVar/SaveVar/LoadField/SaveField
// read whichever is active, mirroring the VM's own single current
// addressing context.
type addrMode int

const (
	modeNone addrMode = iota
	modeVar
	modeField
)

// noAddr is the lookahead sentinel meaning "no lexically-following
// address" (end of function, or outside any enclosing loop).
const noAddr = ^uint32(0)

// loopCtx is the nearest enclosing loop's header and post-loop address,
// threaded by argument (design note §9) rather than stashed on the
// builder, so nested loops shadow it correctly and it unwinds for free
// on return.
type loopCtx struct {
	active bool
	header uint32
	after  uint32
}

// objFrame accumulates one open CreateObject...EndObject span (spec's
// CreateObject/AddObject/EndObject instruction trio, object literal
// lift not spelled out by §4.5's lift rules — see DESIGN.md).
type objFrame struct {
	parentName  string
	isDatablock bool
	name        *Node
	stmts       []*Node
	children    []*Node
}

// builder holds the lift's two pieces of cross-block state: the
// FileData needed to resolve LoadImmediate's deferred float/string/
// ident/tag references (instruction.go's ImmRaw contract), and the open object
// literal stack, which can in principle span more than one basic
// block. Per-statement evaluation state (the expression stack, current
// var/field addressing, string concatenation buffer, call-argument
// frames) lives in liftBlock instead: a DSO code generator always
// leaves that state empty at a block boundary, since any mid-statement
// value would otherwise have to survive a branch.
type builder struct {
	fd       disasm.FileData
	objStack []*objFrame
}

// Lift converts a structural analyzer's collapsed region tree into its
// AST form (spec §4.5). A function region's Header, if non-nil,
// produces the sole KindFuncDecl node in the result; the main-script
// region instead returns its statement list directly.
func Lift(vr *region.VirtualRegion, fd disasm.FileData) []*Node {
	b := &builder{fd: fd}
	if vr.Kind == region.KindFunction {
		fn := &Node{Kind: KindFuncDecl}
		if vr.Header != nil {
			fn.Text = vr.Header.Name
			fn.FuncArgs = vr.Header.FuncArgs
		}
		fn.Stmts, _ = b.liftBody(vr.Body, noAddr, loopCtx{})
		return []*Node{fn}
	}
	stmts, _ := b.liftBody([]*region.VirtualRegion{vr}, noAddr, loopCtx{})
	return stmts
}

// liftBody lifts items in order, giving each element the address of
// its immediate lexical successor (or outerAfter, for the last
// element) as its "after" lookahead — the address a Goto/
// ConditionalGoto reaching past this construct would target, used to
// recognize break (spec's break/continue-from-goto design decision).
// The trailing return value is whichever expression, if any, the very
// last lifted element left on its own expression stack: only a
// branch's unconsumed condition operand survives a block this way, so
// callers that need a loop/conditional's test expression read it from
// here instead of re-decoding the block.
func (b *builder) liftBody(items []*region.VirtualRegion, outerAfter uint32, lc loopCtx) (stmts []*Node, trailing []*Node) {
	for i, it := range items {
		after := outerAfter
		if i+1 < len(items) {
			if a, ok := firstAddr(items[i+1]); ok {
				after = a
			}
		}
		s, tr := b.liftOne(it, after, lc)
		stmts = append(stmts, s...)
		trailing = tr
	}
	return stmts, trailing
}

func (b *builder) liftOne(vr *region.VirtualRegion, after uint32, lc loopCtx) ([]*Node, []*Node) {
	switch vr.Kind {
	case region.KindInstruction, region.KindLoopFooter:
		return b.liftBlock(vr.Block)

	case region.KindSequence:
		return b.liftBody(vr.Body, after, lc)

	case region.KindConditional:
		stmts, stack := b.liftBlock(vr.Block)
		cond := trailingOrTrue(stack)
		cond = sidedCond(cond, vr.ThenIsTarget, vr.Block.Terminator().Branch.Invert())
		thenStmts, _ := b.liftBody(vr.Then, after, lc)
		elseStmts, _ := b.liftBody(vr.Else, after, lc)
		stmts = append(stmts, &Node{Kind: KindIf, Cond: cond, Then: thenStmts, Else: elseStmts})
		return stmts, nil

	case region.KindLoop:
		header, _ := firstAddr(vr.Body[0])
		newLC := loopCtx{active: true, header: header, after: after}
		var bodyStmts []*Node
		var cond *Node
		for _, part := range vr.Body {
			s, tr := b.liftOne(part, after, newLC)
			bodyStmts = append(bodyStmts, s...)
			if len(tr) > 0 {
				cond = tr[len(tr)-1]
			}
		}
		return []*Node{{Kind: KindWhile, Cond: cond, Body: bodyStmts, Infinite: vr.Infinite || cond == nil}}, nil

	case region.KindConditionalGoto:
		stmts, stack := b.liftBlock(vr.Block)
		raw := trailingOrTrue(stack)
		term := vr.Block.Terminator()
		cond := sidedCond(raw, vr.TargetAddr == term.TargetAddr, term.Branch.Invert())
		stmts = append(stmts, &Node{Kind: KindIf, Cond: cond, Then: []*Node{b.gotoOrBreakContinue(vr.TargetAddr, lc)}})
		return stmts, nil

	case region.KindGoto:
		return []*Node{b.gotoOrBreakContinue(vr.TargetAddr, lc)}, nil

	case region.KindBreak:
		return []*Node{{Kind: KindBreak}}, nil

	case region.KindContinue:
		return []*Node{{Kind: KindContinue}}, nil
	}
	return nil, nil
}

func trailingOrTrue(stack []*Node) *Node {
	if len(stack) == 0 {
		return &Node{Kind: KindConstUint, UintV: 1}
	}
	return stack[len(stack)-1]
}

// sidedCond returns raw, or its logical negation, so that the result
// is true exactly when the side identified by sideIsTarget (the
// physical branch-target successor, as opposed to the fall-through)
// is the one that executes — spec §4.4's branch condition-inversion
// rule, applied here at print time rather than at analysis time, since
// ThenIsTarget/TargetAddr already carry the bit the analyzer needs for
// its own bookkeeping (see DESIGN.md).
func sidedCond(raw *Node, sideIsTarget, invert bool) *Node {
	if sideIsTarget != invert {
		return raw
	}
	return &Node{Kind: KindUnary, Op: opcode.Not, Operand: raw}
}

func (b *builder) gotoOrBreakContinue(target uint32, lc loopCtx) *Node {
	if lc.active {
		if target == lc.header {
			return &Node{Kind: KindContinue}
		}
		if target == lc.after {
			return &Node{Kind: KindBreak}
		}
	}
	return &Node{Kind: KindGoto, Text: labelName(target)}
}

func labelName(addr uint32) string { return fmt.Sprintf("L%d", addr) }

// firstAddr finds the address flow enters vr's subtree at, used only
// to look ahead at a sibling's starting address (for break-target
// matching) or a loop's own header address.
func firstAddr(vr *region.VirtualRegion) (uint32, bool) {
	switch vr.Kind {
	case region.KindInstruction, region.KindLoopFooter, region.KindConditional, region.KindConditionalGoto:
		if vr.Block != nil && len(vr.Block.Instrs) > 0 {
			return vr.Block.Instrs[0].Addr, true
		}
	case region.KindGoto:
		return vr.TargetAddr, true
	}
	if len(vr.Body) > 0 {
		return firstAddr(vr.Body[0])
	}
	if len(vr.Then) > 0 {
		return firstAddr(vr.Then[0])
	}
	return 0, false
}

// liftBlock simulates block's instructions against a fresh expression
// stack (spec §4.5): constants and loads push, binary/unary/compare
// operators pop-then-push, saves pop one value and emit an Assignment.
// Any value left on the stack when the loop ends is returned as
// trailing, for a Conditional/Loop caller to read as its test
// expression; a plain Sequence member's trailing value, if any, is
// simply discarded by its caller, matching the real VM's invariant
// that normal statement boundaries leave nothing on the stack.
func (b *builder) liftBlock(block *cfg.Block) (stmts []*Node, stack []*Node) {
	var mode addrMode
	var curVarName string
	var curVarIndex *Node
	var haveCurObject bool
	var curObject *Node
	var curFieldName string
	var curFieldIndex *Node
	var concatParts []*Node
	var frameStarts []int

	push := func(n *Node) { stack = append(stack, n) }
	pop := func() *Node {
		if len(stack) == 0 {
			return &Node{Kind: KindConstUint}
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return n
	}
	emit := func(n *Node) {
		if len(b.objStack) > 0 {
			top := b.objStack[len(b.objStack)-1]
			top.stmts = append(top.stmts, n)
			return
		}
		stmts = append(stmts, n)
	}
	currentTarget := func() *Node {
		if mode == modeVar {
			return &Node{Kind: KindVarRef, Text: curVarName, Index: curVarIndex}
		}
		var obj *Node
		if haveCurObject {
			obj = curObject
		}
		return &Node{Kind: KindFieldRef, Object: obj, Text: curFieldName, Index: curFieldIndex}
	}
	emitAssign := func() {
		target := currentTarget()
		value := pop()
		assign := &Node{Kind: KindAssign, Target: target}
		tk, _ := targetKey(target)
		if value.Kind == KindBinary && value.compoundTargetKey != "" && value.compoundTargetKey == tk {
			assign.CompoundOp = value.Op
			assign.Value = value.RHS
			if (value.Op == opcode.Add || value.Op == opcode.Sub) && isOne(value.RHS) {
				assign.CompoundOp = opcode.Invalid
				assign.Value = nil
				if value.Op == opcode.Add {
					assign.IncDec = Inc
				} else {
					assign.IncDec = Dec
				}
			}
		} else {
			assign.Value = value
		}
		emit(&Node{Kind: KindExprStmt, Expr: assign})
	}

	for i, ins := range block.Instrs {
		last := i == len(block.Instrs)-1
		switch ins.Kind {
		case disasm.KindBranch:
			// The branch itself never becomes a statement: its
			// control-flow meaning is already captured by the
			// enclosing Conditional/Loop/Goto region. Any operand it
			// would have consumed is simply left on the stack for the
			// caller (see the doc comment above).

		case disasm.KindReturn:
			var v *Node
			if ins.ReturnsValue && len(stack) > 0 {
				v = pop()
			}
			emit(&Node{Kind: KindReturn, Value: v})

		case disasm.KindFuncDecl, disasm.KindDebugBreak, disasm.KindUnused:
			// No source-level effect: FuncDecl is consumed by the CFG
			// region split, DebugBreak and the filler Unused opcodes
			// carry no recoverable meaning (spec §7).

		case disasm.KindCreateObject:
			var name *Node
			if len(stack) > 0 {
				name = pop()
			}
			b.objStack = append(b.objStack, &objFrame{parentName: ins.ParentName, isDatablock: ins.IsDatablock, name: name})

		case disasm.KindAddObject:
			// No textual effect: nesting is already implied by the
			// enclosing CreateObject/EndObject pair.

		case disasm.KindEndObject:
			if len(b.objStack) == 0 {
				break
			}
			frame := b.objStack[len(b.objStack)-1]
			b.objStack = b.objStack[:len(b.objStack)-1]
			decl := &Node{
				Kind:        KindObjectDecl,
				ParentName:  frame.parentName,
				IsDatablock: frame.isDatablock,
				Text:        nameText(frame.name),
				Stmts:       frame.stmts,
				Children:    frame.children,
			}
			switch {
			case ins.EndObjectPush:
				push(decl)
			case len(b.objStack) > 0:
				top := b.objStack[len(b.objStack)-1]
				top.children = append(top.children, decl)
			default:
				emit(decl)
			}

		case disasm.KindBinary:
			rhs, lhs := pop(), pop()
			n := &Node{Kind: KindBinary, Op: ins.Op, LHS: lhs, RHS: rhs}
			if key, ok := targetKey(lhs); ok {
				n.compoundTargetKey = key
			}
			push(n)

		case disasm.KindUnary:
			push(&Node{Kind: KindUnary, Op: ins.Op, Operand: pop()})

		case disasm.KindStringCompare:
			rhs, lhs := pop(), pop()
			push(&Node{Kind: KindStringCompare, Op: opcode.StringCompare, LHS: lhs, RHS: rhs})

		case disasm.KindSetCurVar:
			mode = modeVar
			curVarName = ins.Name
			curVarIndex = nil

		case disasm.KindSetCurVarArray:
			curVarIndex = pop()

		case disasm.KindLoadVar:
			push(&Node{Kind: KindVarRef, Text: curVarName, Index: curVarIndex})

		case disasm.KindSaveVar:
			emitAssign()

		case disasm.KindSetCurObject:
			haveCurObject = true
			if len(stack) > 0 {
				curObject = pop()
			} else {
				curObject = nil
			}

		case disasm.KindSetCurField:
			mode = modeField
			curFieldName = ins.Name
			curFieldIndex = nil

		case disasm.KindSetCurFieldArray:
			curFieldIndex = pop()

		case disasm.KindLoadField:
			var obj *Node
			if haveCurObject {
				obj = curObject
			}
			push(&Node{Kind: KindFieldRef, Object: obj, Text: curFieldName, Index: curFieldIndex})

		case disasm.KindSaveField:
			emitAssign()

		case disasm.KindConvert:
			// TorqueScript is dynamically typed at the source level; a
			// numeric/string coercion has no textual representation.

		case disasm.KindLoadImmediate:
			push(b.loadImmediate(ins))

		case disasm.KindCall:
			start := 0
			if n := len(frameStarts); n > 0 {
				start = frameStarts[n-1]
				frameStarts = frameStarts[:n-1]
			}
			if start > len(stack) {
				start = len(stack)
			}
			args := append([]*Node(nil), stack[start:]...)
			stack = stack[:start]
			push(&Node{Kind: KindCall, Text: ins.Name, Namespace: ins.Namespace, CallType: ins.Call, Args: args})

		case disasm.KindAdvanceString:
			concatParts = append(concatParts, pop())

		case disasm.KindRewind:
			if len(concatParts) == 0 {
				push(&Node{Kind: KindConstString})
				break
			}
			parts := concatParts
			concatParts = nil
			if len(parts) == 1 {
				// A single fragment needs no "@" join; Rewind{terminate}
				// just decides whether it prints as a plain string or a
				// tag literal.
				solo := parts[0]
				if ins.RewindTerminate && solo.Kind == KindConstString {
					solo = &Node{Kind: KindConstTag, Text: solo.Text}
				}
				push(solo)
				break
			}
			push(&Node{Kind: KindConcat, Parts: parts, Tagged: ins.RewindTerminate})

		case disasm.KindPush:
			// Materializes whatever a prior call/expression left
			// pending as a standalone statement (e.g. a function called
			// purely for its side effects, per the Push variant's role
			// described in DESIGN.md).
			if len(stack) > 0 {
				emit(&Node{Kind: KindExprStmt, Expr: pop()})
			}

		case disasm.KindPushFrame:
			frameStarts = append(frameStarts, len(stack))
		}

		// A call left dangling at the very end of a block (no explicit
		// Push materialized it) is still a statement-worthy call used
		// purely for effect; anything else left over is dead and is
		// simply dropped by the caller.
		if last && len(stack) == 1 && stack[0].Kind == KindCall {
			emit(&Node{Kind: KindExprStmt, Expr: stack[0]})
			stack = stack[:0]
		}
	}
	return stmts, stack
}

func (b *builder) loadImmediate(ins *disasm.Instruction) *Node {
	switch ins.Imm {
	case disasm.ImmUint:
		return &Node{Kind: KindConstUint, UintV: ins.ImmUintV}
	case disasm.ImmFloat:
		return &Node{Kind: KindConstFloat, FloatV: b.fd.FloatTable(ins.ImmRaw)}
	case disasm.ImmStringRef:
		return &Node{Kind: KindConstString, Text: b.fd.StringTable(ins.ImmRaw)}
	case disasm.ImmIdentRef:
		name, ok := b.fd.Identifier(ins.Addr+1, ins.ImmRaw)
		if !ok {
			name = b.fd.StringTable(ins.ImmRaw)
		}
		return &Node{Kind: KindConstString, Text: name}
	case disasm.ImmTagRef:
		return &Node{Kind: KindConstTag, Text: b.fd.StringTable(ins.ImmRaw)}
	default:
		return &Node{Kind: KindConstUint}
	}
}

func nameText(n *Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindConstString, KindConstTag, KindVarRef:
		return n.Text
	default:
		return ""
	}
}

// targetKey and exprKey build a best-effort structural fingerprint used
// only to recognize when a Save's target is the same one a preceding
// Load addressed (spec §4.5's op-compound pattern); they are not a
// general expression printer.
func targetKey(n *Node) (string, bool) {
	switch n.Kind {
	case KindVarRef:
		return "v:" + n.Text + indexKey(n.Index), true
	case KindFieldRef:
		return "f:" + exprKey(n.Object) + "." + n.Text + indexKey(n.Index), true
	}
	return "", false
}

func indexKey(idx *Node) string {
	if idx == nil {
		return ""
	}
	return "[" + exprKey(idx) + "]"
}

func exprKey(n *Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindConstUint:
		return fmt.Sprintf("u%d", n.UintV)
	case KindConstFloat:
		return fmt.Sprintf("g%v", n.FloatV)
	case KindConstString, KindConstTag:
		return "s" + n.Text
	case KindVarRef:
		return "v" + n.Text + indexKey(n.Index)
	case KindFieldRef:
		return "d" + exprKey(n.Object) + "." + n.Text + indexKey(n.Index)
	default:
		return "?"
	}
}

func isOne(n *Node) bool {
	return n != nil && n.Kind == KindConstUint && n.UintV == 1
}
