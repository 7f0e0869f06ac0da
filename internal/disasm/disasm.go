// Package disasm implements the disassembler (spec §4.1): a linear
// sweep of the DSO code segment that produces a typed instruction list
// and flags branch targets.
package disasm

import (
	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/dlog"
	"github.com/torquescript/dsodecompile/internal/opcode"
)

// Disassembly is an address-keyed ordered instruction map, plus the
// flat address order the sweep produced it in (the "successor
// iteration order" from the disasm contract).
type Disassembly struct {
	Order  []uint32
	ByAddr map[uint32]*Instruction
}

// At returns the instruction at addr, if any.
func (d *Disassembly) At(addr uint32) (*Instruction, bool) {
	ins, ok := d.ByAddr[addr]
	return ins, ok
}

// Len returns the number of disassembled instructions.
func (d *Disassembly) Len() int { return len(d.Order) }

// decoder holds the linear-sweep cursor plus the single-bit "STR"
// return-value tracker described in spec §4.1 and design note §9: one
// boolean threaded through decoding, never a full abstract stack.
type decoder struct {
	fd       FileData
	pos      uint32
	returnable bool
}

// Disassemble sweeps fd's code segment from offset 0, producing a
// Disassembly. Unknown opcodes and out-of-range branch targets are
// fatal format errors (spec §4.1, §7).
func Disassemble(fd FileData) (*Disassembly, error) {
	d := &decoder{fd: fd}
	size := fd.CodeSize()

	dis := &Disassembly{ByAddr: make(map[uint32]*Instruction)}

	for d.pos < size {
		addr := d.pos
		tag := d.readWord()
		code := opcode.Code(tag)
		if !code.Valid() {
			return nil, decompileerr.New(decompileerr.Format, "unknown opcode %d at addr %d", tag, addr)
		}

		ins, err := d.decode(addr, code)
		if err != nil {
			return nil, err
		}
		ins.Addr = addr
		ins.Op = code
		dis.ByAddr[addr] = ins
		dis.Order = append(dis.Order, addr)
	}

	if err := markBranchTargets(dis); err != nil {
		return nil, err
	}
	return dis, nil
}

func (d *decoder) readWord() uint32 {
	w := d.fd.Op(d.pos)
	d.pos++
	return w
}

func (d *decoder) readIdentifier() (string, bool) {
	at := d.pos
	raw := d.readWord()
	return d.fd.Identifier(at, raw)
}

// decode dispatches on code's class/opcode and consumes the operand
// words for that instruction (spec invariant 1, §8).
func (d *decoder) decode(addr uint32, code opcode.Code) (*Instruction, error) {
	switch code {
	case opcode.FuncDecl:
		return d.decodeFuncDecl()
	case opcode.CreateObject:
		return d.decodeCreateObject()
	case opcode.AddObject:
		ins := &Instruction{Kind: KindAddObject, PlaceAtRoot: d.readWord() != 0}
		return ins, nil
	case opcode.EndObject:
		ins := &Instruction{Kind: KindEndObject, EndObjectPush: d.readWord() != 0}
		return ins, nil
	case opcode.Jmp, opcode.JmpIf, opcode.JmpIff, opcode.JmpIfNot,
		opcode.JmpIffNot, opcode.JmpIfNp, opcode.JmpIfNotNp:
		return d.decodeBranch(code)
	case opcode.Return:
		returns := d.returnable
		d.returnable = false
		return &Instruction{Kind: KindReturn, ReturnsValue: returns}, nil
	case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div, opcode.Mod,
		opcode.BitAnd, opcode.BitOr, opcode.Xor, opcode.Shl, opcode.Shr, opcode.Cmp:
		d.setReturnable(code)
		return &Instruction{Kind: KindBinary}, nil
	case opcode.Neg, opcode.Not, opcode.NotF, opcode.OnesCompl:
		d.setReturnable(code)
		return &Instruction{Kind: KindUnary}, nil
	case opcode.StringCompare:
		d.setReturnable(code)
		return &Instruction{Kind: KindStringCompare}, nil
	case opcode.SetCurVar:
		name, _ := d.readIdentifier()
		return &Instruction{Kind: KindSetCurVar, Name: name}, nil
	case opcode.SetCurVarArray:
		return &Instruction{Kind: KindSetCurVarArray}, nil
	case opcode.LoadVar:
		d.setReturnable(code)
		return &Instruction{Kind: KindLoadVar}, nil
	case opcode.SaveVar:
		d.setReturnable(code)
		return &Instruction{Kind: KindSaveVar}, nil
	case opcode.SetCurObject:
		isNew := d.readWord() != 0
		return &Instruction{Kind: KindSetCurObject, IsNewObject: isNew}, nil
	case opcode.SetCurField:
		name, _ := d.readIdentifier()
		return &Instruction{Kind: KindSetCurField, Name: name}, nil
	case opcode.SetCurFieldArray:
		return &Instruction{Kind: KindSetCurFieldArray}, nil
	case opcode.LoadField:
		d.setReturnable(code)
		return &Instruction{Kind: KindLoadField}, nil
	case opcode.SaveField:
		d.setReturnable(code)
		return &Instruction{Kind: KindSaveField}, nil
	case opcode.ConvertToFloat:
		return &Instruction{Kind: KindConvert, ConvertTarget: opcode.ConvertFloat}, nil
	case opcode.ConvertToUint:
		return &Instruction{Kind: KindConvert, ConvertTarget: opcode.ConvertUint}, nil
	case opcode.ConvertToString:
		d.returnable = true
		return &Instruction{Kind: KindConvert, ConvertTarget: opcode.ConvertString}, nil
	case opcode.ConvertToNone:
		d.returnable = false
		return &Instruction{Kind: KindConvert, ConvertTarget: opcode.ConvertNone}, nil
	case opcode.LoadImmediateUint:
		d.returnable = true
		return &Instruction{Kind: KindLoadImmediate, Imm: ImmUint, ImmUintV: d.readWord()}, nil
	case opcode.LoadImmediateFloat:
		d.returnable = true
		return &Instruction{Kind: KindLoadImmediate, Imm: ImmFloat, ImmRaw: d.readWord()}, nil
	case opcode.LoadImmediateStringRef:
		d.returnable = true
		return &Instruction{Kind: KindLoadImmediate, Imm: ImmStringRef, ImmRaw: d.readWord()}, nil
	case opcode.LoadImmediateIdentRef:
		d.returnable = true
		return &Instruction{Kind: KindLoadImmediate, Imm: ImmIdentRef, ImmRaw: d.readWord()}, nil
	case opcode.LoadImmediateTagRef:
		d.returnable = true
		return &Instruction{Kind: KindLoadImmediate, Imm: ImmTagRef, ImmRaw: d.readWord()}, nil
	case opcode.CallFunction, opcode.CallMethod, opcode.CallParent:
		return d.decodeCall(code)
	case opcode.AdvanceStringPlain:
		d.returnable = true
		return &Instruction{Kind: KindAdvanceString, Advance: AdvancePlain}, nil
	case opcode.AdvanceStringAppendChar:
		d.returnable = true
		ch := d.readWord()
		return &Instruction{Kind: KindAdvanceString, Advance: AdvanceAppendChar, AdvanceChar: byte(ch)}, nil
	case opcode.AdvanceStringComma:
		d.returnable = true
		return &Instruction{Kind: KindAdvanceString, Advance: AdvanceComma}, nil
	case opcode.AdvanceStringNull:
		d.returnable = true
		return &Instruction{Kind: KindAdvanceString, Advance: AdvanceNull}, nil
	case opcode.Rewind:
		d.returnable = true
		terminate := d.readWord() != 0
		return &Instruction{Kind: KindRewind, RewindTerminate: terminate}, nil
	case opcode.Push:
		return &Instruction{Kind: KindPush}, nil
	case opcode.PushFrame:
		return &Instruction{Kind: KindPushFrame}, nil
	case opcode.DebugBreak:
		return &Instruction{Kind: KindDebugBreak}, nil
	case opcode.Unused1, opcode.Unused2:
		dlog.Warnf("preserved unused filler opcode %s at addr %d", code, addr)
		return &Instruction{Kind: KindUnused}, nil
	default:
		return nil, decompileerr.New(decompileerr.Format, "unhandled opcode %s at addr %d", code, addr)
	}
}

// setReturnable sets the STR bit for any opcode whose Info says it
// produces a visible value (spec §4.1).
func (d *decoder) setReturnable(code opcode.Code) {
	if code.Info().ProducesValue {
		d.returnable = true
	}
}

func (d *decoder) decodeFuncDecl() (*Instruction, error) {
	name, _ := d.readIdentifier()
	namespace, _ := d.readIdentifier()
	pkg, _ := d.readIdentifier()
	hasBody := d.readWord() != 0
	endAddr := d.readWord()
	argc := d.readWord()

	args := make([]string, 0, argc)
	for i := uint32(0); i < argc; i++ {
		arg, _ := d.readIdentifier()
		args = append(args, arg)
	}

	return &Instruction{
		Kind:      KindFuncDecl,
		Name:      name,
		Namespace: namespace,
		Package:   pkg,
		HasBody:   hasBody,
		EndAddr:   endAddr,
		FuncArgs:  args,
	}, nil
}

func (d *decoder) decodeCreateObject() (*Instruction, error) {
	parentName, _ := d.readIdentifier()
	isDatablock := d.readWord() != 0
	failJump := d.readWord()
	return &Instruction{
		Kind:         KindCreateObject,
		ParentName:   parentName,
		IsDatablock:  isDatablock,
		FailJumpAddr: failJump,
	}, nil
}

func (d *decoder) decodeBranch(code opcode.Code) (*Instruction, error) {
	target := d.readWord()
	return &Instruction{
		Kind:       KindBranch,
		TargetAddr: target,
		Branch:     opcode.BranchKindOf(code),
	}, nil
}

func (d *decoder) decodeCall(code opcode.Code) (*Instruction, error) {
	name, _ := d.readIdentifier()
	namespace, _ := d.readIdentifier()
	d.returnable = true

	var kind CallKind
	switch code {
	case opcode.CallMethod:
		kind = CallMethod
	case opcode.CallParent:
		kind = CallParent
	default:
		kind = CallFunction
	}
	return &Instruction{Kind: KindCall, Name: name, Namespace: namespace, Call: kind}, nil
}

// markBranchTargets implements the branch-target pass from spec §4.1:
// every Branch.target_addr must name an existing instruction.
func markBranchTargets(dis *Disassembly) error {
	for _, addr := range dis.Order {
		ins := dis.ByAddr[addr]
		if ins.Kind != KindBranch {
			continue
		}
		target, ok := dis.ByAddr[ins.TargetAddr]
		if !ok {
			return decompileerr.New(decompileerr.Format,
				"branch at addr %d targets non-instruction addr %d", addr, ins.TargetAddr)
		}
		target.IsBranchTarget = true
	}
	return nil
}
