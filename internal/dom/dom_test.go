package dom

import (
	"testing"

	"github.com/torquescript/dsodecompile/internal/cfg"
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/opcode"
)

// linear builds three straight-line instructions, which cfg.Build
// fuses into a single block; it returns that block three times. Used
// to check reflexivity.
func linear(t *testing.T) (*cfg.Func, *cfg.Block, *cfg.Block, *cfg.Block) {
	t.Helper()
	entryIns := &disasm.Instruction{Addr: 0, Op: opcode.Push, Kind: disasm.KindPush}
	aIns := &disasm.Instruction{Addr: 1, Op: opcode.Push, Kind: disasm.KindPush}
	bIns := &disasm.Instruction{Addr: 2, Op: opcode.Push, Kind: disasm.KindPush}
	dis := &disasm.Disassembly{ByAddr: map[uint32]*disasm.Instruction{0: entryIns, 1: aIns, 2: bIns}, Order: []uint32{0, 1, 2}}
	funcs, err := cfg.Build(dis)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	f := funcs[0]
	if f.NumBlocks() != 1 {
		t.Fatalf("expected straight-line code to fuse into one block, got %d", f.NumBlocks())
	}
	return f, f.Entry, f.Entry, f.Entry
}

func TestDominatesReflexiveOnSingleBlock(t *testing.T) {
	f, entry, _, _ := linear(t)
	Compute(f)
	if !Dominates(entry, entry, false) {
		t.Error("Dominates(entry, entry, false) = false, want true")
	}
	if Dominates(entry, entry, true) {
		t.Error("Dominates(entry, entry, true) = true, want false (strict)")
	}
}

// diamond builds entry -> {t, e} -> join, the if-then-else shape.
func diamond(t *testing.T) (*cfg.Func, *cfg.Block, *cfg.Block, *cfg.Block, *cfg.Block) {
	t.Helper()
	entryIns := &disasm.Instruction{Addr: 0, Op: opcode.JmpIfNot, Kind: disasm.KindBranch, TargetAddr: 2, Branch: opcode.BranchJmpIfNot}
	thenIns := &disasm.Instruction{Addr: 1, Op: opcode.Jmp, Kind: disasm.KindBranch, TargetAddr: 3, Branch: opcode.BranchJmp}
	elseIns := &disasm.Instruction{Addr: 2, Op: opcode.Push, Kind: disasm.KindPush, IsBranchTarget: true}
	joinIns := &disasm.Instruction{Addr: 3, Op: opcode.Push, Kind: disasm.KindPush, IsBranchTarget: true}
	dis := &disasm.Disassembly{
		ByAddr: map[uint32]*disasm.Instruction{0: entryIns, 1: thenIns, 2: elseIns, 3: joinIns},
		Order:  []uint32{0, 1, 2, 3},
	}
	funcs, err := cfg.Build(dis)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	f := funcs[0]
	var entry, thenB, elseB, join *cfg.Block
	for _, b := range f.Blocks {
		switch b.Addr() {
		case 0:
			entry = b
		case 1:
			thenB = b
		case 2:
			elseB = b
		case 3:
			join = b
		}
	}
	return f, entry, thenB, elseB, join
}

func TestDominatesDiamond(t *testing.T) {
	f, entry, thenB, elseB, join := diamond(t)
	Compute(f)

	if !Dominates(entry, join, false) {
		t.Error("entry should dominate join")
	}
	if Dominates(thenB, join, false) {
		t.Error("then-branch must not dominate join (else-branch bypasses it)")
	}
	if Dominates(elseB, join, false) {
		t.Error("else-branch must not dominate join (then-branch bypasses it)")
	}
	if join.Idom != entry {
		t.Errorf("join.Idom = %v, want entry", join.Idom)
	}
}

func TestDominatesTransitive(t *testing.T) {
	// entry -> mid -> leaf, verifying dominates(entry, mid) and
	// dominates(mid, leaf) implies dominates(entry, leaf).
	// entry and mid each end in an unconditional jump so the "previous
	// instruction was a branch" leader rule forces three distinct
	// blocks even though the jump targets are just the next address.
	entryIns := &disasm.Instruction{Addr: 0, Op: opcode.Jmp, Kind: disasm.KindBranch, TargetAddr: 1, Branch: opcode.BranchJmp}
	midIns := &disasm.Instruction{Addr: 1, Op: opcode.Jmp, Kind: disasm.KindBranch, TargetAddr: 2, Branch: opcode.BranchJmp, IsBranchTarget: true}
	leafIns := &disasm.Instruction{Addr: 2, Op: opcode.Push, Kind: disasm.KindPush, IsBranchTarget: true}
	dis := &disasm.Disassembly{
		ByAddr: map[uint32]*disasm.Instruction{0: entryIns, 1: midIns, 2: leafIns},
		Order:  []uint32{0, 1, 2},
	}
	funcs, err := cfg.Build(dis)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	f := funcs[0]
	Compute(f)

	var entry, mid, leaf *cfg.Block
	for _, b := range f.Blocks {
		switch b.Addr() {
		case 0:
			entry = b
		case 1:
			mid = b
		case 2:
			leaf = b
		}
	}
	if mid == nil {
		t.Fatal("expected a distinct mid block reachable only as entry's jump target")
	}
	if !Dominates(entry, mid, false) || !Dominates(mid, leaf, false) {
		t.Fatal("precondition failed: expected entry to dominate mid and mid to dominate leaf")
	}
	if !Dominates(entry, leaf, false) {
		t.Error("Dominates is not transitive: entry should dominate leaf")
	}
}

func TestCycleStartAndEnd(t *testing.T) {
	// H: JMPIFNOT X; body...; JMP H; X: (classic while-loop shape)
	h := &disasm.Instruction{Addr: 0, Op: opcode.JmpIfNot, Kind: disasm.KindBranch, TargetAddr: 2, Branch: opcode.BranchJmpIfNot, IsBranchTarget: true}
	body := &disasm.Instruction{Addr: 1, Op: opcode.Jmp, Kind: disasm.KindBranch, TargetAddr: 0, Branch: opcode.BranchJmp}
	exit := &disasm.Instruction{Addr: 2, Op: opcode.Push, Kind: disasm.KindPush, IsBranchTarget: true}
	dis := &disasm.Disassembly{
		ByAddr: map[uint32]*disasm.Instruction{0: h, 1: body, 2: exit},
		Order:  []uint32{0, 1, 2},
	}
	funcs, err := cfg.Build(dis)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	f := funcs[0]
	Compute(f)

	var head, bodyBlock *cfg.Block
	for _, b := range f.Blocks {
		if b.Addr() == 0 {
			head = b
		}
		if b.Addr() == 1 {
			bodyBlock = b
		}
	}
	if !IsCycleStart(head) {
		t.Error("loop header should be a cycle start (back-edge from body)")
	}
	if !IsCycleEnd(bodyBlock) {
		t.Error("loop body should be a cycle end (its successor, the header, dominates it)")
	}

	loop := NaturalLoop(head)
	if len(loop) != 2 {
		t.Errorf("NaturalLoop(head) = %v, want [head, body]", loop)
	}
}
