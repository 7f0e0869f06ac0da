// Package printer serializes an internal/ast token stream into
// TorqueScript source text (spec §6's "final token-stream pretty
// printer" external interface), grounded on the teacher's
// syntax.Fprint/Sprint indent-tracking style.
package printer

import (
	"strings"

	"github.com/torquescript/dsodecompile/internal/ast"
)

const indentUnit = "    "

// noSpaceAfter holds punctuation text that the following token always
// hugs: an opening bracket/paren or a member-access dot never leaves a
// gap before whatever comes next.
var noSpaceAfter = map[string]bool{"(": true, "[": true, ".": true, "::": true, ",": true}

// noSpaceBefore holds token text that never gets a separating space
// from whatever preceded it: opening/closing brackets, statement and
// argument separators, and the two operators that print glued to
// their operand.
var noSpaceBefore = map[string]bool{
	")": true, "]": true, "[": true, ";": true, ",": true, ".": true, "::": true,
	"++": true, "--": true,
}

// Sprint renders toks as TorqueScript source text.
func Sprint(toks []ast.Token) string {
	var b strings.Builder
	prevKind := ast.TokNewline // sentinel: "start of line", never needs a leading space
	prevText := ""

	for _, t := range toks {
		if t.Kind == ast.TokNewline {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat(indentUnit, t.Level))
			prevKind = ast.TokNewline
			prevText = ""
			continue
		}

		if needsSpaceBefore(t, prevKind, prevText) {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
		prevKind = t.Kind
		prevText = t.Text
	}

	return strings.TrimPrefix(b.String(), "\n")
}

// Fprint is Sprint's token-stream-from-AST convenience wrapper (spec
// §6): emit nodes to a token stream with ast.Emit, then render it.
func Fprint(nodes []*ast.Node) string {
	return Sprint(ast.Emit(nodes))
}

func needsSpaceBefore(t ast.Token, prevKind ast.TokenKind, prevText string) bool {
	if prevKind == ast.TokNewline {
		return false
	}
	if noSpaceAfter[prevText] {
		return false
	}
	if t.Kind == ast.TokPunct {
		if noSpaceBefore[t.Text] {
			return false
		}
		// "(" hugs a preceding identifier (a call target, a namespace-
		// qualified name, or an object literal's class/instance name);
		// anywhere else — after a keyword, an operator, or another
		// token — it opens a grouping and gets a leading space.
		if t.Text == "(" {
			return prevKind != ast.TokIdent
		}
		return true
	}
	if t.Kind == ast.TokOp && noSpaceBefore[t.Text] {
		return false
	}
	return true
}
