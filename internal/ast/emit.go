package ast

import (
	"fmt"
	"strconv"

	"github.com/torquescript/dsodecompile/internal/opcode"
)

// Emit walks nodes (a function's body, or the main script's top-level
// statements) and produces a flat token stream for internal/printer to
// serialize. It threads two pieces of context down through the
// recursion by argument rather than by field on a stateful visitor
// (design note §9, grounded on the teacher's emitter.go/print.go
// style): the current indent level, for statements, and whether an
// expression is nested inside another expression, for parenthesization.
func Emit(nodes []*Node) []Token {
	e := &emitter{}
	e.stmts(nodes, 0)
	return e.toks
}

type emitter struct {
	toks []Token
}

func (e *emitter) kw(s string)     { e.toks = append(e.toks, Token{Kind: TokKeyword, Text: s}) }
func (e *emitter) id(s string)     { e.toks = append(e.toks, Token{Kind: TokIdent, Text: s}) }
func (e *emitter) num(s string)    { e.toks = append(e.toks, Token{Kind: TokNumber, Text: s}) }
func (e *emitter) str(s string)    { e.toks = append(e.toks, Token{Kind: TokString, Text: s}) }
func (e *emitter) op(s string)     { e.toks = append(e.toks, Token{Kind: TokOp, Text: s}) }
func (e *emitter) punct(s string)  { e.toks = append(e.toks, Token{Kind: TokPunct, Text: s}) }
func (e *emitter) nl(level int)    { e.toks = append(e.toks, Token{Kind: TokNewline, Level: level}) }

func (e *emitter) stmts(nodes []*Node, indent int) {
	for _, n := range nodes {
		e.stmt(n, indent)
	}
}

func (e *emitter) stmt(n *Node, indent int) {
	e.nl(indent)
	switch n.Kind {
	case KindExprStmt:
		e.expr(n.Expr, false)
		e.punct(";")

	case KindIf:
		e.kw("if")
		e.punct("(")
		e.expr(n.Cond, false)
		e.punct(")")
		e.block(n.Then, indent)
		if len(n.Else) > 0 {
			e.nl(indent)
			e.kw("else")
			e.block(n.Else, indent)
		}

	case KindWhile:
		e.kw("while")
		e.punct("(")
		if n.Infinite || n.Cond == nil {
			e.num("1")
		} else {
			e.expr(n.Cond, false)
		}
		e.punct(")")
		e.block(n.Body, indent)

	case KindReturn:
		e.kw("return")
		if n.Value != nil {
			e.expr(n.Value, false)
		}
		e.punct(";")

	case KindBreak:
		e.kw("break")
		e.punct(";")

	case KindContinue:
		e.kw("continue")
		e.punct(";")

	case KindGoto:
		e.kw("goto")
		e.id(n.Text)
		e.punct(";")

	case KindFuncDecl:
		e.kw("function")
		e.id(n.Text)
		e.punct("(")
		for i, arg := range n.FuncArgs {
			if i > 0 {
				e.punct(",")
			}
			e.id(arg)
		}
		e.punct(")")
		e.block(n.Stmts, indent)

	case KindObjectDecl:
		e.kw("new")
		if n.IsDatablock {
			e.id("Datablock")
		}
		e.id(n.ParentName)
		e.punct("(")
		if n.Text != "" {
			e.id(n.Text)
		}
		e.punct(")")
		e.punct("{")
		for _, s := range n.Stmts {
			e.stmt(s, indent+1)
		}
		for _, c := range n.Children {
			e.nl(indent + 1)
			e.stmt(c, indent+1)
		}
		e.nl(indent)
		e.punct("}")
		e.punct(";")

	case KindBlock:
		e.block(n.Stmts, indent)

	default:
		// Any expression reaching here directly (e.g. a bare Assign
		// produced outside liftBlock's ExprStmt wrapping) is still
		// printable as a statement.
		e.expr(n, false)
		e.punct(";")
	}
}

// block prints a brace-delimited statement list at indent+1, matching
// the teacher's emitLine-style explicit indent-by-argument threading.
func (e *emitter) block(stmts []*Node, indent int) {
	e.punct("{")
	for _, s := range stmts {
		e.stmt(s, indent+1)
	}
	e.nl(indent)
	e.punct("}")
}

func (e *emitter) expr(n *Node, nested bool) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KindConstUint:
		e.num(strconv.FormatUint(uint64(n.UintV), 10))

	case KindConstFloat:
		e.num(strconv.FormatFloat(n.FloatV, 'g', -1, 64))

	case KindConstString:
		e.str(quoteString(n.Text))

	case KindConstTag:
		e.str(quoteTag(n.Text))

	case KindVarRef:
		e.id(n.Text)
		e.index(n.Index)

	case KindFieldRef:
		if n.Object != nil {
			e.expr(n.Object, true)
			e.punct(".")
		}
		e.id(n.Text)
		e.index(n.Index)

	case KindBinary, KindStringCompare:
		if nested {
			e.punct("(")
		}
		e.expr(n.LHS, true)
		e.op(binaryOpText(n.Op))
		e.expr(n.RHS, true)
		if nested {
			e.punct(")")
		}

	case KindUnary:
		e.op(unaryOpText(n.Op))
		e.expr(n.Operand, true)

	case KindConcat:
		if nested {
			e.punct("(")
		}
		for i, p := range n.Parts {
			if i > 0 {
				e.op("@")
			}
			e.expr(p, true)
		}
		if nested {
			e.punct(")")
		}

	case KindCall:
		e.call(n)

	case KindAssign:
		if n.IncDec != NotIncDec {
			e.expr(n.Target, false)
			if n.IncDec == Inc {
				e.op("++")
			} else {
				e.op("--")
			}
			return
		}
		e.expr(n.Target, false)
		if n.CompoundOp != opcode.Invalid {
			e.op(binaryOpText(n.CompoundOp) + "=")
		} else {
			e.op("=")
		}
		e.expr(n.Value, false)

	case KindObjectDecl:
		// An object literal used as a value (EndObject.value): print
		// the declaration inline rather than as its own statement.
		e.stmtAsExpr(n)

	default:
		e.id("?")
	}
}

// stmtAsExpr prints an ObjectDecl in expression position (no leading
// newline/indent, no trailing statement semicolon beyond the literal's
// own closing brace).
func (e *emitter) stmtAsExpr(n *Node) {
	e.kw("new")
	if n.IsDatablock {
		e.id("Datablock")
	}
	e.id(n.ParentName)
	e.punct("(")
	if n.Text != "" {
		e.id(n.Text)
	}
	e.punct(")")
	e.punct("{")
	for _, s := range n.Stmts {
		e.stmt(s, 1)
	}
	for _, c := range n.Children {
		e.stmt(c, 1)
	}
	e.nl(0)
	e.punct("}")
}

func (e *emitter) index(idx *Node) {
	if idx == nil {
		return
	}
	e.punct("[")
	e.expr(idx, false)
	e.punct("]")
}

func (e *emitter) call(n *Node) {
	if n.Namespace != "" {
		e.id(n.Namespace)
		e.punct("::")
	}
	e.id(n.Text)
	e.punct("(")
	for i, arg := range n.Args {
		if i > 0 {
			e.punct(",")
		}
		e.expr(arg, false)
	}
	e.punct(")")
}

func quoteString(s string) string { return `"` + s + `"` }
func quoteTag(s string) string    { return "'" + s + "'" }

func binaryOpText(op opcode.Code) string {
	switch op {
	case opcode.Add:
		return "+"
	case opcode.Sub:
		return "-"
	case opcode.Mul:
		return "*"
	case opcode.Div:
		return "/"
	case opcode.Mod:
		return "%"
	case opcode.BitAnd:
		return "&"
	case opcode.BitOr:
		return "|"
	case opcode.Xor:
		return "^"
	case opcode.Shl:
		return "<<"
	case opcode.Shr:
		return ">>"
	case opcode.Cmp:
		return "=="
	case opcode.StringCompare:
		return "$="
	default:
		return fmt.Sprintf("<op%d>", op)
	}
}

func unaryOpText(op opcode.Code) string {
	switch op {
	case opcode.Neg:
		return "-"
	case opcode.Not, opcode.NotF:
		return "!"
	case opcode.OnesCompl:
		return "~"
	default:
		return "?"
	}
}

