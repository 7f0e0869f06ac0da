package ast

import (
	"testing"

	"github.com/torquescript/dsodecompile/internal/cfg"
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/opcode"
	"github.com/torquescript/dsodecompile/internal/region"
)

// fakeFile is a minimal FileData, matching internal/disasm's own test
// helper: identifiers and strings share one name table indexed 1-based.
type fakeFile struct {
	names  []string
	floats []float64
}

func (f *fakeFile) CodeSize() uint32    { return 0 }
func (f *fakeFile) Op(uint32) uint32    { return 0 }
func (f *fakeFile) Identifier(_ uint32, raw uint32) (string, bool) {
	if raw == 0 || int(raw) > len(f.names) {
		return "", false
	}
	return f.names[raw-1], true
}
func (f *fakeFile) StringTable(raw uint32) string { return f.names[raw-1] }
func (f *fakeFile) FloatTable(raw uint32) float64 { return f.floats[raw-1] }

// block builds a one-block Func containing instrs, addressed
// sequentially starting at 0, wired with no successors (leaf block) —
// enough for liftBlock, which only reads Instrs.
func block(instrs ...*disasm.Instruction) *cfg.Block {
	f := &cfg.Func{}
	b := &cfg.Block{Func: f}
	for i, ins := range instrs {
		ins.Addr = uint32(i)
		b.Instrs = append(b.Instrs, ins)
	}
	f.Blocks = append(f.Blocks, b)
	return b
}

func TestLiftBlockPlainAssign(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%x"},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmUint, ImmUintV: 5},
		&disasm.Instruction{Kind: disasm.KindSaveVar},
	)
	bd := &builder{}
	stmts, trailing := bd.liftBlock(b)

	if len(trailing) != 0 {
		t.Fatalf("trailing = %v, want empty", trailing)
	}
	if len(stmts) != 1 || stmts[0].Kind != KindExprStmt {
		t.Fatalf("stmts = %+v, want one ExprStmt", stmts)
	}
	assign := stmts[0].Expr
	if assign.Kind != KindAssign || assign.CompoundOp != opcode.Invalid || assign.IncDec != NotIncDec {
		t.Fatalf("assign = %+v, want plain assignment", assign)
	}
	if assign.Target.Kind != KindVarRef || assign.Target.Text != "%x" {
		t.Fatalf("target = %+v", assign.Target)
	}
	if assign.Value.Kind != KindConstUint || assign.Value.UintV != 5 {
		t.Fatalf("value = %+v", assign.Value)
	}
}

func TestLiftBlockOpCompoundAssign(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%x"},
		&disasm.Instruction{Kind: disasm.KindLoadVar},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmUint, ImmUintV: 2},
		&disasm.Instruction{Kind: disasm.KindBinary, Op: opcode.Add},
		&disasm.Instruction{Kind: disasm.KindSaveVar},
	)
	bd := &builder{}
	stmts, _ := bd.liftBlock(b)

	assign := stmts[0].Expr
	if assign.CompoundOp != opcode.Add {
		t.Fatalf("CompoundOp = %v, want Add", assign.CompoundOp)
	}
	if assign.Value == nil || assign.Value.UintV != 2 {
		t.Fatalf("Value = %+v, want const 2", assign.Value)
	}
	if assign.IncDec != NotIncDec {
		t.Fatalf("IncDec = %v, want NotIncDec", assign.IncDec)
	}
}

func TestLiftBlockIncDec(t *testing.T) {
	tests := []struct {
		name string
		op   opcode.Code
		want IncDecKind
	}{
		{"increment", opcode.Add, Inc},
		{"decrement", opcode.Sub, Dec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := block(
				&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%i"},
				&disasm.Instruction{Kind: disasm.KindLoadVar},
				&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmUint, ImmUintV: 1},
				&disasm.Instruction{Kind: disasm.KindBinary, Op: tt.op},
				&disasm.Instruction{Kind: disasm.KindSaveVar},
			)
			bd := &builder{}
			stmts, _ := bd.liftBlock(b)
			assign := stmts[0].Expr
			if assign.IncDec != tt.want {
				t.Fatalf("IncDec = %v, want %v", assign.IncDec, tt.want)
			}
			if assign.CompoundOp != opcode.Invalid || assign.Value != nil {
				t.Fatalf("assign = %+v, want CompoundOp cleared and Value nil", assign)
			}
		})
	}
}

func TestLiftBlockUnrelatedBinaryIsNotCompound(t *testing.T) {
	// %y = %x + 2 -- the LHS load addresses %x but the save targets %y,
	// so this must NOT collapse into a compound assignment.
	b := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%x"},
		&disasm.Instruction{Kind: disasm.KindLoadVar},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmUint, ImmUintV: 2},
		&disasm.Instruction{Kind: disasm.KindBinary, Op: opcode.Add},
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%y"},
		&disasm.Instruction{Kind: disasm.KindSaveVar},
	)
	bd := &builder{}
	stmts, _ := bd.liftBlock(b)
	assign := stmts[0].Expr
	if assign.CompoundOp != opcode.Invalid {
		t.Fatalf("CompoundOp = %v, want Invalid (different targets)", assign.CompoundOp)
	}
	if assign.Value == nil || assign.Value.Kind != KindBinary {
		t.Fatalf("Value = %+v, want the raw Binary expression", assign.Value)
	}
}

func TestLiftBlockCallForSideEffect(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindPushFrame},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 1},
		&disasm.Instruction{Kind: disasm.KindCall, Name: "echo", Call: disasm.CallFunction},
		&disasm.Instruction{Kind: disasm.KindPush},
	)
	bd := &builder{fd: &fakeFile{names: []string{"hi"}}}
	stmts, trailing := bd.liftBlock(b)

	if len(trailing) != 0 {
		t.Fatalf("trailing = %v, want empty", trailing)
	}
	if len(stmts) != 1 || stmts[0].Kind != KindExprStmt {
		t.Fatalf("stmts = %+v, want one ExprStmt", stmts)
	}
	call := stmts[0].Expr
	if call.Kind != KindCall || call.Text != "echo" || len(call.Args) != 1 {
		t.Fatalf("call = %+v", call)
	}
	if call.Args[0].Kind != KindConstString || call.Args[0].Text != "hi" {
		t.Fatalf("arg = %+v", call.Args[0])
	}
}

func TestLiftBlockDanglingCallWithoutPush(t *testing.T) {
	// Same as above but with no explicit Push: the backstop at the end
	// of liftBlock must still emit it as a statement.
	b := block(
		&disasm.Instruction{Kind: disasm.KindPushFrame},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 1},
		&disasm.Instruction{Kind: disasm.KindCall, Name: "echo", Call: disasm.CallFunction},
	)
	bd := &builder{fd: &fakeFile{names: []string{"hi"}}}
	stmts, trailing := bd.liftBlock(b)

	if len(trailing) != 0 {
		t.Fatalf("trailing = %v, want empty", trailing)
	}
	if len(stmts) != 1 || stmts[0].Expr.Kind != KindCall {
		t.Fatalf("stmts = %+v, want the dangling call materialized", stmts)
	}
}

func TestLiftBlockStringConcat(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 1},
		&disasm.Instruction{Kind: disasm.KindAdvanceString, Advance: disasm.AdvancePlain},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 2},
		&disasm.Instruction{Kind: disasm.KindAdvanceString, Advance: disasm.AdvancePlain},
		&disasm.Instruction{Kind: disasm.KindRewind, RewindTerminate: false},
	)
	bd := &builder{fd: &fakeFile{names: []string{"a", "b"}}}
	_, trailing := bd.liftBlock(b)

	if len(trailing) != 1 || trailing[0].Kind != KindConcat {
		t.Fatalf("trailing = %+v, want a single Concat", trailing)
	}
	parts := trailing[0].Parts
	if len(parts) != 2 || parts[0].Text != "a" || parts[1].Text != "b" {
		t.Fatalf("parts = %+v, want [a, b] in source order", parts)
	}
	if trailing[0].Tagged {
		t.Fatalf("Tagged = true, want false")
	}
}

func TestLiftBlockSingleFragmentTag(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 1},
		&disasm.Instruction{Kind: disasm.KindAdvanceString, Advance: disasm.AdvancePlain},
		&disasm.Instruction{Kind: disasm.KindRewind, RewindTerminate: true},
	)
	bd := &builder{fd: &fakeFile{names: []string{"foo"}}}
	_, trailing := bd.liftBlock(b)

	if len(trailing) != 1 {
		t.Fatalf("trailing = %+v, want one node", trailing)
	}
	if trailing[0].Kind != KindConstTag || trailing[0].Text != "foo" {
		t.Fatalf("node = %+v, want a ConstTag", trailing[0])
	}
}

func TestLiftBlockLoadImmediateFloat(t *testing.T) {
	b := block(&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmFloat, ImmRaw: 1})
	bd := &builder{fd: &fakeFile{floats: []float64{3.5}}}
	_, trailing := bd.liftBlock(b)
	if len(trailing) != 1 || trailing[0].Kind != KindConstFloat || trailing[0].FloatV != 3.5 {
		t.Fatalf("trailing = %+v", trailing)
	}
}

func TestLiftBlockObjectLiteral(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 1},
		&disasm.Instruction{Kind: disasm.KindCreateObject, ParentName: "SimObject"},
		&disasm.Instruction{Kind: disasm.KindSetCurField, Name: "value"},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmUint, ImmUintV: 1},
		&disasm.Instruction{Kind: disasm.KindSaveField},
		&disasm.Instruction{Kind: disasm.KindEndObject, EndObjectPush: false},
	)
	bd := &builder{fd: &fakeFile{names: []string{"myObj"}}}
	stmts, trailing := bd.liftBlock(b)

	if len(trailing) != 0 {
		t.Fatalf("trailing = %+v, want empty", trailing)
	}
	if len(stmts) != 1 || stmts[0].Kind != KindObjectDecl {
		t.Fatalf("stmts = %+v, want one ObjectDecl", stmts)
	}
	decl := stmts[0]
	if decl.ParentName != "SimObject" || decl.Text != "myObj" {
		t.Fatalf("decl = %+v", decl)
	}
	if len(decl.Stmts) != 1 || decl.Stmts[0].Expr.Target.Text != "value" {
		t.Fatalf("decl.Stmts = %+v", decl.Stmts)
	}
}

func TestLiftBlockObjectLiteralAsValue(t *testing.T) {
	b := block(
		&disasm.Instruction{Kind: disasm.KindCreateObject, ParentName: "SimObject"},
		&disasm.Instruction{Kind: disasm.KindEndObject, EndObjectPush: true},
	)
	bd := &builder{fd: &fakeFile{}}
	_, trailing := bd.liftBlock(b)
	if len(trailing) != 1 || trailing[0].Kind != KindObjectDecl {
		t.Fatalf("trailing = %+v, want the object literal pushed as a value", trailing)
	}
}

// vrBlock wraps a *cfg.Block in a KindInstruction VirtualRegion, the
// shape internal/region uses for a leaf.
func vrBlock(b *cfg.Block) *region.VirtualRegion {
	return &region.VirtualRegion{Kind: region.KindInstruction, Block: b}
}

func TestLiftConditional(t *testing.T) {
	// if (%a) { echo("yes"); } -- JmpIfNot means the fall-through (the
	// Then body, immediately following) is the "then" side, so
	// ThenIsTarget is false and the branch inverts: no negation needed.
	condBlock := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%a"},
		&disasm.Instruction{Kind: disasm.KindLoadVar},
		&disasm.Instruction{Kind: disasm.KindBranch, Op: opcode.JmpIfNot, Branch: opcode.BranchJmpIfNot, TargetAddr: 99},
	)
	thenBlock := block(
		&disasm.Instruction{Kind: disasm.KindPushFrame},
		&disasm.Instruction{Kind: disasm.KindLoadImmediate, Imm: disasm.ImmStringRef, ImmRaw: 1},
		&disasm.Instruction{Kind: disasm.KindCall, Name: "echo"},
		&disasm.Instruction{Kind: disasm.KindPush},
	)

	vr := &region.VirtualRegion{
		Kind:         region.KindConditional,
		Block:        condBlock,
		Then:         []*region.VirtualRegion{vrBlock(thenBlock)},
		ThenIsTarget: false,
	}

	b := &builder{fd: &fakeFile{names: []string{"yes"}}}
	stmts, _ := b.liftOne(vr, noAddr, loopCtx{})

	if len(stmts) != 1 || stmts[0].Kind != KindIf {
		t.Fatalf("stmts = %+v, want one If", stmts)
	}
	ifNode := stmts[0]
	if ifNode.Cond.Kind != KindVarRef {
		t.Fatalf("Cond = %+v, want the raw condition (not negated)", ifNode.Cond)
	}
	if len(ifNode.Then) != 1 || ifNode.Then[0].Expr.Kind != KindCall {
		t.Fatalf("Then = %+v", ifNode.Then)
	}
	if len(ifNode.Else) != 0 {
		t.Fatalf("Else = %+v, want none", ifNode.Else)
	}
}

func TestLiftConditionalNegatesWhenFallThroughIsThen(t *testing.T) {
	// JmpIf doesn't invert. Had the branch target been the "then" side
	// (ThenIsTarget = true), sideIsTarget(true) != invert(false) and the
	// condition would print unnegated. Here the fall-through is "then"
	// (ThenIsTarget = false), so sideIsTarget == invert and the negation
	// must fire.
	condBlock := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%a"},
		&disasm.Instruction{Kind: disasm.KindLoadVar},
		&disasm.Instruction{Kind: disasm.KindBranch, Op: opcode.JmpIf, Branch: opcode.BranchJmpIf, TargetAddr: 99},
	)
	thenBlock := block(&disasm.Instruction{Kind: disasm.KindDebugBreak})

	vr := &region.VirtualRegion{
		Kind:         region.KindConditional,
		Block:        condBlock,
		Then:         []*region.VirtualRegion{vrBlock(thenBlock)},
		ThenIsTarget: false, // the fall-through, not the branch target, is "then"
	}

	b := &builder{}
	stmts, _ := b.liftOne(vr, noAddr, loopCtx{})
	ifNode := stmts[0]
	if ifNode.Cond.Kind != KindUnary || ifNode.Cond.Op != opcode.Not {
		t.Fatalf("Cond = %+v, want a negated condition", ifNode.Cond)
	}
}

func TestLiftLoopConditionalBreak(t *testing.T) {
	// while (%i) { if (%stop) break; }
	// modeled directly as one ConditionalGoto region inside a Loop,
	// bypassing the region analyzer (region.go never constructs
	// KindBreak/KindContinue itself; the lift recognizes a goto to the
	// loop's after-address as a break).
	headerBlock := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%i"},
		&disasm.Instruction{Kind: disasm.KindLoadVar},
		&disasm.Instruction{Kind: disasm.KindBranch, Op: opcode.JmpIfNot, Branch: opcode.BranchJmpIfNot, TargetAddr: 200},
	)
	gotoBlock := block(
		&disasm.Instruction{Kind: disasm.KindSetCurVar, Name: "%stop"},
		&disasm.Instruction{Kind: disasm.KindLoadVar},
		&disasm.Instruction{Kind: disasm.KindBranch, Op: opcode.JmpIf, Branch: opcode.BranchJmpIf, TargetAddr: 200},
	)
	footerBlock := block(
		&disasm.Instruction{Kind: disasm.KindBranch, Op: opcode.Jmp, Branch: opcode.BranchJmp, TargetAddr: 0},
	)

	loop := &region.VirtualRegion{
		Kind: region.KindLoop,
		Body: []*region.VirtualRegion{
			vrBlock(headerBlock),
			{Kind: region.KindConditionalGoto, Block: gotoBlock, TargetAddr: 200},
			vrBlock(footerBlock),
		},
		Infinite: false,
	}

	b := &builder{}
	stmts, _ := b.liftOne(loop, 200, loopCtx{})
	if len(stmts) != 1 || stmts[0].Kind != KindWhile {
		t.Fatalf("stmts = %+v, want one While", stmts)
	}
	while := stmts[0]
	if while.Cond == nil || while.Cond.Kind != KindVarRef || while.Cond.Text != "%i" {
		t.Fatalf("Cond = %+v, want the header's %%i condition", while.Cond)
	}

	// The gotoBlock's conditional break: target 200 == the loop's own
	// after-address (passed as liftOne's after argument above),
	// recognized as Break.
	var found *Node
	for _, s := range while.Body {
		if s.Kind == KindIf {
			found = s
		}
	}
	if found == nil {
		t.Fatalf("Body = %+v, want an If wrapping the break", while.Body)
	}
	if len(found.Then) != 1 || found.Then[0].Kind != KindBreak {
		t.Fatalf("Then = %+v, want [Break]", found.Then)
	}
}

func TestLift_FunctionWrapping(t *testing.T) {
	main := block(&disasm.Instruction{Kind: disasm.KindReturn, ReturnsValue: false})
	vr := &region.VirtualRegion{
		Kind:   region.KindFunction,
		Header: &disasm.Instruction{Kind: disasm.KindFuncDecl, Name: "foo", FuncArgs: []string{"%a"}},
		Body:   []*region.VirtualRegion{vrBlock(main)},
	}
	nodes := Lift(vr, &fakeFile{})
	if len(nodes) != 1 || nodes[0].Kind != KindFuncDecl {
		t.Fatalf("nodes = %+v, want one FuncDecl", nodes)
	}
	if nodes[0].Text != "foo" || len(nodes[0].FuncArgs) != 1 || nodes[0].FuncArgs[0] != "%a" {
		t.Fatalf("FuncDecl = %+v", nodes[0])
	}
	if len(nodes[0].Stmts) != 1 || nodes[0].Stmts[0].Kind != KindReturn {
		t.Fatalf("Stmts = %+v", nodes[0].Stmts)
	}
}

func TestLift_MainScript(t *testing.T) {
	main := block(&disasm.Instruction{Kind: disasm.KindDebugBreak})
	nodes := Lift(vrBlock(main), &fakeFile{})
	if len(nodes) != 0 {
		t.Fatalf("nodes = %+v, want none (DebugBreak has no source form)", nodes)
	}
}
