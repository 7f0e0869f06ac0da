// Package ast lifts a collapsed virtual-region tree (internal/region)
// into an expression/statement tree and a token stream a printer can
// serialize into TorqueScript text (spec §4.5).
package ast

import (
	"github.com/torquescript/dsodecompile/internal/disasm"
	"github.com/torquescript/dsodecompile/internal/opcode"
)

// Kind tags a Node variant. As with disasm.Instruction and
// region.VirtualRegion, expressions and statements share one tagged
// struct rather than an interface hierarchy (design note §9): dispatch
// on Kind, keep per-variant fields on Node.
type Kind int

const (
	// Expressions.
	KindConstUint Kind = iota
	KindConstFloat
	KindConstString
	KindConstTag
	KindVarRef
	KindFieldRef
	KindBinary
	KindUnary
	KindStringCompare
	KindConcat
	KindCall
	KindAssign

	// Statements.
	KindExprStmt
	KindBlock
	KindIf
	KindWhile
	KindReturn
	KindBreak
	KindContinue
	KindGoto
	KindFuncDecl
	KindObjectDecl
)

// IncDecKind distinguishes the `x++`/`x--` printed form of a compound
// assignment from its general `x op= value` form (spec §4.5's
// assignment pretty-printing rule).
type IncDecKind int

const (
	NotIncDec IncDecKind = iota
	Inc
	Dec
)

// Node is one AST node. Only the fields relevant to Kind are
// meaningful.
type Node struct {
	Kind Kind

	// ConstUint
	UintV uint32
	// ConstFloat
	FloatV float64
	// ConstString / ConstTag: the literal text. VarRef / FieldRef: the
	// variable or field name, %local/$global prefix included verbatim.
	// Call: function name. FuncDecl: function name. Goto: label name.
	Text string

	// VarRef (Index optional: array element access)
	Index *Node

	// FieldRef: Object is the addressed object (nil = implicit current
	// object, e.g. inside an ObjectDecl body); Field name is Text;
	// Index is optional.
	Object *Node

	// Binary / StringCompare
	Op  opcode.Code
	LHS *Node
	RHS *Node

	// compoundTargetKey is set on a Binary node whose LHS was a fresh
	// Load of the currently addressed var/field target. Save*
	// instructions compare it against their own target to recognize
	// the op-compound assignment pattern from spec §4.5. Not printed.
	compoundTargetKey string

	// Unary
	Operand *Node

	// Concat: Parts are literal/expression fragments joined by
	// AdvanceString/Rewind (spec §4.5). Tagged distinguishes '...'
	// (Rewind{terminate:true}) from "...".
	Parts  []*Node
	Tagged bool

	// Call
	Namespace string
	CallType  disasm.CallKind
	Args      []*Node

	// Assign: Target is a VarRef or FieldRef. CompoundOp is
	// opcode.Invalid for a plain assignment. IncDec overrides both
	// when the value is a compound `+= 1`/`-= 1`.
	Target     *Node
	Value      *Node
	CompoundOp opcode.Code
	IncDec     IncDecKind

	// ExprStmt
	Expr *Node

	// Block / FuncDecl body / ObjectDecl fields
	Stmts []*Node

	// If
	Cond *Node
	Then []*Node
	Else []*Node

	// While
	Body     []*Node
	Infinite bool

	// FuncDecl
	FuncArgs []string

	// ObjectDecl
	ParentName  string
	IsDatablock bool
	Children    []*Node
}
