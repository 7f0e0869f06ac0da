package disasm

import (
	"fmt"

	"github.com/torquescript/dsodecompile/internal/opcode"
)

// Kind tags which of the spec's instruction variants an Instruction
// represents. Several DSO opcodes share one Kind (e.g. every
// arithmetic opcode decodes to KindBinary, distinguished by Op).
type Kind int

const (
	KindFuncDecl Kind = iota
	KindCreateObject
	KindAddObject
	KindEndObject
	KindBranch
	KindReturn
	KindBinary
	KindUnary
	KindStringCompare
	KindSetCurVar
	KindSetCurVarArray
	KindLoadVar
	KindSaveVar
	KindSetCurObject
	KindSetCurField
	KindSetCurFieldArray
	KindLoadField
	KindSaveField
	KindConvert
	KindLoadImmediate
	KindCall
	KindAdvanceString
	KindRewind
	KindPush
	KindPushFrame
	KindDebugBreak
	KindUnused
)

// ImmediateKind distinguishes the five LoadImmediate<T> payload shapes.
type ImmediateKind int

const (
	ImmUint ImmediateKind = iota
	ImmFloat
	ImmStringRef
	ImmIdentRef
	ImmTagRef
)

// CallKind distinguishes Call's three dispatch shapes.
type CallKind int

const (
	CallFunction CallKind = iota
	CallMethod
	CallParent
)

// AdvanceKind distinguishes AdvanceString's four shapes.
type AdvanceKind int

const (
	AdvancePlain AdvanceKind = iota
	AdvanceAppendChar
	AdvanceComma
	AdvanceNull
)

// Instruction is an immutable, disassembled DSO instruction. It is a
// single tagged struct (Kind selects which payload fields are
// meaningful) rather than a type hierarchy, per the "tagged variants
// plus pattern matching" design note: dispatch on Kind in visitors,
// keep per-variant fields on the one struct.
//
// Instructions, once produced by Disassemble, are never mutated.
type Instruction struct {
	Addr           uint32
	Op             opcode.Code
	Kind           Kind
	IsBranchTarget bool

	// FuncDecl
	Name      string
	Namespace string
	Package   string
	HasBody   bool
	EndAddr   uint32
	FuncArgs  []string

	// CreateObject / AddObject / EndObject
	ParentName    string
	IsDatablock   bool
	FailJumpAddr  uint32
	PlaceAtRoot   bool
	EndObjectPush bool // EndObject.value

	// Branch
	TargetAddr uint32
	Branch     opcode.BranchKind

	// Return
	ReturnsValue bool

	// Convert
	ConvertTarget opcode.ConvertTarget

	// LoadImmediate
	Imm       ImmediateKind
	ImmUintV  uint32
	ImmFloatV float64
	ImmRaw    uint32 // raw float/string/ident/tag table reference, resolved by the AST lift layer via FileData

	// SetCurObject
	IsNewObject bool

	// Call
	Call CallKind

	// AdvanceString
	Advance     AdvanceKind
	AdvanceChar byte

	// Rewind
	RewindTerminate bool
}

// String renders a short debug form, e.g. "0004: JMPIFNOT -> 0012".
func (ins *Instruction) String() string {
	switch ins.Kind {
	case KindBranch:
		return fmt.Sprintf("%04d: %s -> %04d", ins.Addr, ins.Op, ins.TargetAddr)
	case KindFuncDecl:
		return fmt.Sprintf("%04d: FUNC_DECL %s(%v) end=%04d", ins.Addr, ins.Name, ins.FuncArgs, ins.EndAddr)
	default:
		return fmt.Sprintf("%04d: %s", ins.Addr, ins.Op)
	}
}
