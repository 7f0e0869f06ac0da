// Package opcode enumerates the DSO bytecode opcode set and classifies
// each opcode for the disassembler and control-flow builder.
package opcode

// Code is a single DSO opcode tag, one 32-bit word in the code segment.
type Code int

const (
	Invalid Code = iota

	FuncDecl
	CreateObject
	AddObject
	EndObject

	Jmp
	JmpIf
	JmpIff
	JmpIfNot
	JmpIffNot
	JmpIfNp
	JmpIfNotNp

	Return

	Add
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	Xor
	Shl
	Shr
	Cmp

	Neg
	Not
	NotF
	OnesCompl

	StringCompare

	SetCurVar
	SetCurVarArray
	LoadVar
	SaveVar

	SetCurObject
	SetCurField
	SetCurFieldArray
	LoadField
	SaveField

	ConvertToFloat
	ConvertToUint
	ConvertToString
	ConvertToNone

	LoadImmediateUint
	LoadImmediateFloat
	LoadImmediateStringRef
	LoadImmediateIdentRef
	LoadImmediateTagRef

	CallFunction
	CallMethod
	CallParent

	AdvanceStringPlain
	AdvanceStringAppendChar
	AdvanceStringComma
	AdvanceStringNull
	Rewind

	Push
	PushFrame
	DebugBreak

	Unused1
	Unused2

	opCount // sentinel, must stay last
)

// Class describes how the disassembler and CFG builder must treat an
// opcode, independent of its specific operands.
type Class int

const (
	ClassPlain Class = iota
	ClassJump
	ClassReturn
	ClassFuncDecl
	ClassUnused
)

// Info is the static metadata associated with one opcode.
type Info struct {
	Name string
	// Operands is the fixed number of operand words consumed after the
	// tag word, not counting FuncDecl's variable-length arg list.
	Operands int
	Class    Class
	// ProducesValue is true if decoding this opcode sets the "STR"
	// returnable-value bit (see disasm package, §4.1).
	ProducesValue bool
	// ClearsValue is true if decoding this opcode clears the bit
	// instead (the *_to_None converts).
	ClearsValue bool
}

var infoTable = [opCount]Info{
	Invalid: {Name: "INVALID"},

	FuncDecl:     {Name: "FUNC_DECL", Class: ClassFuncDecl, Operands: 6},
	CreateObject: {Name: "CREATE_OBJECT", Operands: 3},
	AddObject:    {Name: "ADD_OBJECT", Operands: 1},
	EndObject:    {Name: "END_OBJECT", Operands: 1},

	Jmp:        {Name: "JMP", Operands: 1, Class: ClassJump},
	JmpIf:      {Name: "JMPIF", Operands: 1, Class: ClassJump},
	JmpIff:     {Name: "JMPIFF", Operands: 1, Class: ClassJump},
	JmpIfNot:   {Name: "JMPIFNOT", Operands: 1, Class: ClassJump},
	JmpIffNot:  {Name: "JMPIFFNOT", Operands: 1, Class: ClassJump},
	JmpIfNp:    {Name: "JMPIF_NP", Operands: 1, Class: ClassJump},
	JmpIfNotNp: {Name: "JMPIFNOT_NP", Operands: 1, Class: ClassJump},

	Return: {Name: "RETURN", Class: ClassReturn},

	Add:    {Name: "ADD", ProducesValue: true},
	Sub:    {Name: "SUB", ProducesValue: true},
	Mul:    {Name: "MUL", ProducesValue: true},
	Div:    {Name: "DIV", ProducesValue: true},
	Mod:    {Name: "MOD", ProducesValue: true},
	BitAnd: {Name: "BITAND", ProducesValue: true},
	BitOr:  {Name: "BITOR", ProducesValue: true},
	Xor:    {Name: "XOR", ProducesValue: true},
	Shl:    {Name: "SHL", ProducesValue: true},
	Shr:    {Name: "SHR", ProducesValue: true},
	Cmp:    {Name: "CMP", ProducesValue: true},

	Neg:       {Name: "NEG", ProducesValue: true},
	Not:       {Name: "NOT", ProducesValue: true},
	NotF:      {Name: "NOTF", ProducesValue: true},
	OnesCompl: {Name: "ONESCOMPLEMENT", ProducesValue: true},

	StringCompare: {Name: "STR_CMP", ProducesValue: true},

	SetCurVar:      {Name: "SETCURVAR", Operands: 1},
	SetCurVarArray: {Name: "SETCURVAR_ARRAY"},
	LoadVar:        {Name: "LOADVAR", ProducesValue: true},
	SaveVar:        {Name: "SAVEVAR", ProducesValue: true},

	SetCurObject:     {Name: "SETCUROBJECT", Operands: 1, Class: ClassPlain},
	SetCurField:      {Name: "SETCURFIELD", Operands: 1},
	SetCurFieldArray: {Name: "SETCURFIELD_ARRAY"},
	LoadField:        {Name: "LOADFIELD", ProducesValue: true},
	SaveField:        {Name: "SAVEFIELD", ProducesValue: true},

	ConvertToFloat:  {Name: "FLT"},
	ConvertToUint:   {Name: "UINT"},
	ConvertToString: {Name: "STR", ProducesValue: true},
	ConvertToNone:   {Name: "NONE", ClearsValue: true},

	LoadImmediateUint:      {Name: "LOADIMMED_UINT", Operands: 1, ProducesValue: true},
	LoadImmediateFloat:     {Name: "LOADIMMED_FLT", Operands: 1, ProducesValue: true},
	LoadImmediateStringRef: {Name: "LOADIMMED_STR", Operands: 1, ProducesValue: true},
	LoadImmediateIdentRef:  {Name: "LOADIMMED_IDENT", Operands: 1, ProducesValue: true},
	LoadImmediateTagRef:    {Name: "LOADIMMED_UINT_TAG", Operands: 1, ProducesValue: true},

	CallFunction: {Name: "CALLFUNC", Operands: 2, ProducesValue: true},
	CallMethod:   {Name: "CALLMETHOD", Operands: 2, ProducesValue: true},
	CallParent:   {Name: "CALLPARENT", Operands: 2, ProducesValue: true},

	AdvanceStringPlain:      {Name: "ADVANCE_STR", ProducesValue: true},
	AdvanceStringAppendChar: {Name: "ADVANCE_STR_APPENDCHAR", Operands: 1, ProducesValue: true},
	AdvanceStringComma:      {Name: "ADVANCE_STR_COMMA", ProducesValue: true},
	AdvanceStringNull:       {Name: "ADVANCE_STR_NUL", ProducesValue: true},
	Rewind:                  {Name: "REWIND_STR", Operands: 1, ProducesValue: true},

	Push:      {Name: "PUSH"},
	PushFrame: {Name: "PUSH_FRAME"},
	DebugBreak: {Name: "DEBUGBREAK"},

	Unused1: {Name: "UNUSED1", Class: ClassUnused},
	Unused2: {Name: "UNUSED2", Class: ClassUnused},
}

// String returns the opcode's mnemonic, or "unknown" for an
// out-of-range or never-assigned value.
func (c Code) String() string {
	if c >= 0 && int(c) < len(infoTable) && infoTable[c].Name != "" {
		return infoTable[c].Name
	}
	return "unknown"
}

// Valid reports whether c is a recognized opcode.
func (c Code) Valid() bool {
	return c >= 0 && int(c) < len(infoTable) && infoTable[c].Name != ""
}

// Info returns the static metadata for c. Callers should check Valid
// first; an invalid code returns the zero Info.
func (c Code) Info() Info {
	if c.Valid() {
		return infoTable[c]
	}
	return Info{}
}

// IsJump reports whether c terminates a block with one or two
// successor edges (see spec §4.2's leader/edge rules).
func (c Code) IsJump() bool { return c.Info().Class == ClassJump }

// IsUnconditional reports whether c is the unconditional jump. Every
// other jump class is conditional and therefore produces a
// fall-through edge in addition to its target edge.
func (c Code) IsUnconditional() bool { return c == Jmp }

// IsReturn reports whether c ends a block with no successor edge.
func (c Code) IsReturn() bool { return c.Info().Class == ClassReturn }

// IsFuncDecl reports whether c starts a function and ends the current
// block (main-script or a prior function body).
func (c Code) IsFuncDecl() bool { return c.Info().Class == ClassFuncDecl }

// IsUnused reports whether c is a filler opcode preserved as a no-op.
func (c Code) IsUnused() bool { return c.Info().Class == ClassUnused }

// ConvertTarget is the destination type of a ConvertToType instruction.
type ConvertTarget int

const (
	ConvertNone ConvertTarget = iota
	ConvertFloat
	ConvertUint
	ConvertString
)

func (t ConvertTarget) String() string {
	switch t {
	case ConvertFloat:
		return "float"
	case ConvertUint:
		return "uint"
	case ConvertString:
		return "string"
	default:
		return "none"
	}
}

// BranchKind distinguishes the seven branch instruction shapes from
// spec §3. Jmp is unconditional; the _Np variants do not pop their
// operand off the evaluation stack.
type BranchKind int

const (
	BranchJmp BranchKind = iota
	BranchJmpIf
	BranchJmpIff
	BranchJmpIfNot
	BranchJmpIffNot
	BranchJmpIfNp
	BranchJmpIfNotNp
)

// Invert follows the fall-through and branch-target condition
// inversion rule from spec §4.4: JmpIfNot/JmpIffNot put the
// fall-through on the "then" side; JmpIf/JmpIff put the branch
// target there.
func (k BranchKind) Invert() bool {
	switch k {
	case BranchJmpIfNot, BranchJmpIffNot, BranchJmpIfNotNp:
		return true
	default:
		return false
	}
}

// BranchKindOf maps a jump opcode to its BranchKind. The opcode must
// satisfy c.IsJump().
func BranchKindOf(c Code) BranchKind {
	switch c {
	case JmpIf:
		return BranchJmpIf
	case JmpIff:
		return BranchJmpIff
	case JmpIfNot:
		return BranchJmpIfNot
	case JmpIffNot:
		return BranchJmpIffNot
	case JmpIfNp:
		return BranchJmpIfNp
	case JmpIfNotNp:
		return BranchJmpIfNotNp
	default:
		return BranchJmp
	}
}
