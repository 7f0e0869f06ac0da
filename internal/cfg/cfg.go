// Package cfg builds one control-flow graph per code region (spec
// §4.2) from a disassembly: the main-script body, plus one CFG per
// function declaration with a body.
package cfg

import (
	"fmt"

	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/disasm"
)

// ID is a block's index within its owning Func's Blocks slice.
type ID int

// Block is a basic block: a run of non-branching instructions followed
// by a terminator (or a fall-through off the end of the region).
type Block struct {
	ID ID

	// Instrs is the ordered instruction list, including the
	// terminator if one exists.
	Instrs []*disasm.Instruction

	Succs []*Block
	Preds []*Block

	Func *Func

	// Idom and Dominees are populated by internal/dom.
	Idom     *Block
	Dominees []*Block

	// RPO is this block's reverse-postorder number, set by
	// internal/dom and used by the "two fingers" common-dominator walk.
	RPO int
}

// Addr returns the address of the block's first instruction.
func (b *Block) Addr() uint32 { return b.Instrs[0].Addr }

// Terminator returns the block's last instruction, the one whose kind
// decided Succs.
func (b *Block) Terminator() *disasm.Instruction { return b.Instrs[len(b.Instrs)-1] }

func (b *Block) String() string { return fmt.Sprintf("b%d@%04d", b.ID, b.Addr()) }

// AddSucc records a forward edge, updating both Succs and succ's Preds.
func (b *Block) AddSucc(succ *Block) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// NumSuccs and NumPreds mirror the teacher's Block accessors.
func (b *Block) NumSuccs() int { return len(b.Succs) }
func (b *Block) NumPreds() int { return len(b.Preds) }

// Func is one region's CFG: either the main script body or a single
// function declaration's body.
type Func struct {
	// Name is "" for the main script body.
	Name string
	// IsFunction distinguishes the main region from a FuncDecl region
	// (spec §4.2's "Function { header }" wrapping in the analyzer).
	IsFunction bool
	// Header is the FuncDecl instruction that opened this region, nil
	// for the main-script region.
	Header *disasm.Instruction

	Blocks []*Block
	Entry  *Block

	nextBlockID ID
}

func (f *Func) newBlock() *Block {
	b := &Block{ID: f.nextBlockID, Func: f}
	f.nextBlockID++
	f.Blocks = append(f.Blocks, b)
	return b
}

// NumBlocks mirrors the teacher's Func.NumBlocks.
func (f *Func) NumBlocks() int { return len(f.Blocks) }

// Build splits dis into one Func per code region (spec §4.2) and
// wires each region's leader set into blocks with forward edges.
// Unreachable blocks are dropped per the reachability invariant.
func Build(dis *disasm.Disassembly) ([]*Func, error) {
	regions := splitRegions(dis)

	funcs := make([]*Func, 0, len(regions))
	for _, r := range regions {
		f, err := buildRegion(dis, r)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		funcs = append(funcs, f)
	}
	return funcs, nil
}

// region is an ordered instruction-address list plus the FuncDecl
// header that opened it, if any.
type region struct {
	addrs  []uint32
	header *disasm.Instruction
}

// splitRegions walks the disassembly in address order and carves out
// one region per FuncDecl with HasBody (its [func_start, end_addr)
// body), plus the main-script region: every remaining address not
// covered by a FuncDecl header or a function body, stitched together
// in address order (spec §4.2's contract; TorqueScript permits
// function declarations interleaved with top-level statements, so the
// main region is not necessarily a single contiguous address range).
func splitRegions(dis *disasm.Disassembly) []region {
	excluded := make(map[uint32]bool)
	var funcRegions []region

	for _, addr := range dis.Order {
		ins := dis.ByAddr[addr]
		if ins.Kind != disasm.KindFuncDecl {
			continue
		}
		excluded[addr] = true
		if !ins.HasBody {
			continue
		}
		var body []uint32
		for _, a := range dis.Order {
			if a > addr && a < ins.EndAddr {
				body = append(body, a)
				excluded[a] = true
			}
		}
		funcRegions = append(funcRegions, region{addrs: body, header: ins})
	}

	var main []uint32
	for _, addr := range dis.Order {
		if !excluded[addr] {
			main = append(main, addr)
		}
	}
	return append([]region{{addrs: main}}, funcRegions...)
}

// buildRegion computes the leader set for one region (spec §4.2),
// splits it into blocks, and wires successor/predecessor edges.
func buildRegion(dis *disasm.Disassembly, r region) (*Func, error) {
	f := &Func{Header: r.header, IsFunction: r.header != nil}
	if f.IsFunction {
		f.Name = r.header.Name
	}

	addrs := r.addrs
	if len(addrs) == 0 {
		// Spec §8 scenario 1: an empty region yields no CFG at all,
		// not a CFG with one empty block.
		return nil, nil
	}

	leaders := leaderSet(dis, addrs)
	blockOf := make(map[uint32]*Block, len(leaders))

	var cur *Block
	for _, addr := range addrs {
		if leaders[addr] || cur == nil {
			cur = f.newBlock()
			blockOf[addr] = cur
		}
		cur.Instrs = append(cur.Instrs, dis.ByAddr[addr])
	}
	f.Entry = blockOf[addrs[0]]

	// nextInRegion maps each address to the address immediately
	// following it in this region's own (possibly non-contiguous, for
	// the main region) address list: the logical fall-through target,
	// since a FuncDecl header and body are transparently skipped by
	// control flow rather than fallen into.
	nextInRegion := make(map[uint32]uint32, len(addrs))
	for i := 0; i+1 < len(addrs); i++ {
		nextInRegion[addrs[i]] = addrs[i+1]
	}

	for _, b := range f.Blocks {
		if err := wireSuccessors(b, blockOf, nextInRegion); err != nil {
			return nil, err
		}
	}

	dropUnreachable(f)
	return f, nil
}

// leaderSet implements spec §4.2's leader rule: the region's first
// instruction, every branch target, and every instruction immediately
// following a branch, return, or function boundary.
func leaderSet(dis *disasm.Disassembly, addrs []uint32) map[uint32]bool {
	leaders := make(map[uint32]bool, len(addrs))
	leaders[addrs[0]] = true

	for i, addr := range addrs {
		ins := dis.ByAddr[addr]
		if ins.IsBranchTarget {
			leaders[addr] = true
		}
		if i == 0 {
			continue
		}
		prev := dis.ByAddr[addrs[i-1]]
		if prev.Kind == disasm.KindBranch || prev.Kind == disasm.KindReturn || prev.Kind == disasm.KindFuncDecl {
			leaders[addr] = true
		}
	}
	return leaders
}

// wireSuccessors adds b's outgoing edges per spec §4.2's edge table.
// nextInRegion gives each address's logical fall-through successor
// within the owning region's own instruction order.
func wireSuccessors(b *Block, blockOf map[uint32]*Block, nextInRegion map[uint32]uint32) error {
	term := b.Terminator()
	switch term.Kind {
	case disasm.KindBranch:
		target, ok := blockOf[term.TargetAddr]
		if !ok {
			return decompileerr.New(decompileerr.Structural, "branch at addr %d targets addr %d outside its region", term.Addr, term.TargetAddr)
		}
		b.AddSucc(target)
		if term.Op.IsUnconditional() {
			return nil
		}
		if fallthroughAddr, ok := nextInRegion[term.Addr]; ok {
			if fall, ok := blockOf[fallthroughAddr]; ok {
				b.AddSucc(fall)
			}
		}
		return nil
	case disasm.KindReturn:
		return nil
	default:
		fallthroughAddr, ok := nextInRegion[term.Addr]
		if !ok {
			return nil
		}
		if fall, ok := blockOf[fallthroughAddr]; ok {
			b.AddSucc(fall)
		}
		return nil
	}
}

// dropUnreachable removes blocks not reachable from f.Entry via
// forward edges (spec §4.2's reachability invariant), renumbering the
// survivors' IDs to stay contiguous.
func dropUnreachable(f *Func) {
	reachable := make(map[*Block]bool, len(f.Blocks))
	var stack []*Block
	if f.Entry != nil {
		stack = append(stack, f.Entry)
		reachable[f.Entry] = true
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Succs {
			if !reachable[s] {
				reachable[s] = true
				stack = append(stack, s)
			}
		}
	}

	kept := make([]*Block, 0, len(f.Blocks))
	for _, b := range f.Blocks {
		if !reachable[b] {
			continue
		}
		b.Preds = filterReachable(b.Preds, reachable)
		b.Succs = filterReachable(b.Succs, reachable)
		b.ID = ID(len(kept))
		kept = append(kept, b)
	}
	f.Blocks = kept
}

func filterReachable(blocks []*Block, reachable map[*Block]bool) []*Block {
	out := blocks[:0]
	for _, b := range blocks {
		if reachable[b] {
			out = append(out, b)
		}
	}
	return out
}
