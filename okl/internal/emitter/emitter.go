// Copyright 2025 EngFlow Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package emitter pretty-prints the transformed statement tree as
// backend-targeted source text. Indentation follows statement depth;
// operator spacing follows conventional C style. OKL marker statements are
// emitted as bare identifiers followed by their body braces so the backend
// headers can #define them to the appropriate construct.
package emitter

import (
	"strings"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// Emit renders the whole program.
func Emit(prog *parser.Program) string {
	e := &emitter{prog: prog}
	for _, id := range prog.Stmt(prog.Global()).Children {
		e.stmt(id, 0)
	}
	return e.sb.String()
}

type emitter struct {
	prog *parser.Program
	sb   strings.Builder
}

const indentStep = "  "

func (e *emitter) line(indent int, text string) {
	for range indent {
		e.sb.WriteString(indentStep)
	}
	e.sb.WriteString(text)
	e.sb.WriteByte('\n')
}

func (e *emitter) stmt(id parser.StmtID, indent int) {
	s := e.prog.Stmt(id)
	switch s.Kind {
	case parser.StmtEmpty:
		e.line(indent, ";")

	case parser.StmtDeclare:
		e.line(indent, declarationText(s.Vars)+";")

	case parser.StmtUpdate:
		e.line(indent, s.Expr.String()+";")

	case parser.StmtFlow:
		text := s.Text
		if s.Expr != nil && s.Expr.Kind != ast.Empty {
			text += " " + s.Expr.String()
		}
		e.line(indent, text+";")

	case parser.StmtGoto:
		e.line(indent, "goto "+s.Text+";")

	case parser.StmtLabel:
		e.line(max(indent-1, 0), s.Text+":")

	case parser.StmtCase:
		if s.Text == "default" {
			e.line(indent, "default:")
		} else {
			e.line(indent, "case "+s.Expr.String()+":")
		}

	case parser.StmtPragma:
		e.line(indent, "#pragma "+s.Text)

	case parser.StmtSource:
		for line := range strings.Lines(s.Text) {
			e.line(indent, strings.TrimRight(line, "\n"))
		}

	case parser.StmtBlock:
		e.line(indent, "{")
		for _, c := range s.Children {
			e.stmt(c, indent+1)
		}
		e.line(indent, "}")

	case parser.StmtIf:
		e.controlWithBody(id, indent, "if ("+s.Expr.String()+")")
	case parser.StmtElseIf:
		e.controlWithBody(id, indent, "else if ("+s.Expr.String()+")")
	case parser.StmtElse:
		e.controlWithBody(id, indent, "else")
	case parser.StmtWhile:
		e.controlWithBody(id, indent, "while ("+s.Expr.String()+")")
	case parser.StmtSwitch:
		e.controlWithBody(id, indent, "switch ("+s.Expr.String()+")")

	case parser.StmtDoWhile:
		e.line(indent, "do {")
		e.bodyChildren(id, indent+1)
		e.line(indent, "} while ("+s.Expr.String()+");")

	case parser.StmtFor:
		e.controlWithBody(id, indent, "for ("+forHeaderText(s)+")")

	case parser.StmtMarker:
		if len(s.Children) == 0 {
			e.line(indent, s.Marker)
			return
		}
		e.line(indent, s.Marker+" {")
		for _, c := range s.Children {
			e.stmt(c, indent+1)
		}
		e.line(indent, "}")

	case parser.StmtFunctionDef:
		e.line(indent, functionHeadText(s.Fn)+" {")
		for _, c := range s.Children {
			e.stmt(c, indent+1)
		}
		e.line(indent, "}")

	case parser.StmtFunctionProto:
		e.line(indent, functionHeadText(s.Fn)+";")

	case parser.StmtStruct:
		e.structStmt(id, indent)

	case parser.StmtTypedef:
		e.line(indent, "typedef "+renderTokenRun(s.Tokens)+";")

	case parser.StmtGlobal:
		for _, c := range s.Children {
			e.stmt(c, indent)
		}
	}
}

// controlWithBody prints `head { ... }` when the body is a block (or to
// normalize multi-statement bodies) and `head stmt` inline otherwise.
func (e *emitter) controlWithBody(id parser.StmtID, indent int, head string) {
	s := e.prog.Stmt(id)
	if len(s.Children) == 1 && e.prog.Stmt(s.Children[0]).Kind != parser.StmtBlock {
		e.line(indent, head)
		e.stmt(s.Children[0], indent+1)
		return
	}
	e.line(indent, head+" {")
	e.bodyChildren(id, indent+1)
	e.line(indent, "}")
}

// bodyChildren prints the children of a control statement, unwrapping a
// single block child.
func (e *emitter) bodyChildren(id parser.StmtID, indent int) {
	children := e.prog.Stmt(id).Children
	if len(children) == 1 && e.prog.Stmt(children[0]).Kind == parser.StmtBlock {
		for _, c := range e.prog.Stmt(children[0]).Children {
			e.stmt(c, indent)
		}
		return
	}
	for _, c := range children {
		e.stmt(c, indent)
	}
}

func (e *emitter) structStmt(id parser.StmtID, indent int) {
	s := e.prog.Stmt(id)
	head := s.Text
	if s.Type != nil {
		head += " " + s.Type.Name
	}
	if s.Kind == parser.StmtStruct && s.Text == "enum" {
		body := ""
		if s.Expr != nil {
			body = s.Expr.String()
		}
		tail := declaratorListText(s.Vars)
		e.line(indent, head+" { "+body+" }"+tail+";")
		return
	}
	e.line(indent, head+" {")
	for _, c := range s.Children {
		e.stmt(c, indent+1)
	}
	e.line(indent, "}"+declaratorListText(s.Vars)+";")
}

// declaratorListText renders trailing struct instances (" a, *b").
func declaratorListText(vars []*ast.Var) string {
	if len(vars) == 0 {
		return ""
	}
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = declaratorText(v)
	}
	return " " + strings.Join(parts, ", ")
}

// declarationText renders a full declaration statement: the shared
// qualifier/type prefix of the first declarator, then each declarator.
func declarationText(vars []*ast.Var) string {
	if len(vars) == 0 {
		return ""
	}
	var sb strings.Builder
	first := vars[0]
	for _, attr := range first.Attrs {
		sb.WriteString(attr)
		sb.WriteByte(' ')
	}
	for _, q := range first.LeftQualifiers {
		sb.WriteString(q)
		sb.WriteByte(' ')
	}
	sb.WriteString(first.BaseType)
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = declaratorText(v)
	}
	sb.WriteString(strings.Join(parts, ","))
	return sb.String()
}

// declaratorText renders one declarator: stars, pointer qualifiers, name,
// right qualifiers, dimensions, initializer.
func declaratorText(v *ast.Var) string {
	var sb strings.Builder
	sb.WriteByte(' ')
	for range v.PointerCount {
		sb.WriteByte('*')
	}
	for _, q := range v.PointerQualifiers {
		sb.WriteString(q)
		sb.WriteByte(' ')
	}
	if v.Reference {
		sb.WriteByte('&')
	}
	sb.WriteString(v.Name)
	for _, q := range v.RightQualifiers {
		sb.WriteByte(' ')
		sb.WriteString(q)
	}
	for _, dim := range v.StackDims {
		sb.WriteByte('[')
		if dim != nil && dim.Kind != ast.Empty {
			sb.WriteString(dim.String())
		}
		sb.WriteByte(']')
	}
	if v.Init != nil {
		sb.WriteString(" = ")
		sb.WriteString(v.Init.String())
	}
	return sb.String()
}

// argumentText renders one formal argument. A bare name (occaKernelInfoArg)
// has no type prefix.
func argumentText(v *ast.Var) string {
	if v.BaseType == "" {
		return v.Name
	}
	var sb strings.Builder
	for _, attr := range v.Attrs {
		sb.WriteString(attr)
		sb.WriteByte(' ')
	}
	for _, q := range v.LeftQualifiers {
		sb.WriteString(q)
		sb.WriteByte(' ')
	}
	sb.WriteString(v.BaseType)
	sb.WriteString(declaratorText(v))
	return sb.String()
}

func functionHeadText(fn *ast.Var) string {
	var sb strings.Builder
	for _, attr := range fn.Attrs {
		sb.WriteString(attr)
		sb.WriteByte(' ')
	}
	for _, q := range fn.LeftQualifiers {
		sb.WriteString(q)
		sb.WriteByte(' ')
	}
	sb.WriteString(fn.BaseType)
	sb.WriteByte(' ')
	for range fn.PointerCount {
		sb.WriteByte('*')
	}
	sb.WriteString(fn.Name)
	sb.WriteByte('(')
	parts := make([]string, len(fn.Args))
	for i, arg := range fn.Args {
		parts[i] = strings.TrimSpace(argumentText(arg))
	}
	sb.WriteString(strings.Join(parts, ", "))
	sb.WriteByte(')')
	return sb.String()
}

// forHeaderText renders an untransformed for-loop header, tag included for
// native passthrough.
func forHeaderText(s *parser.Stmt) string {
	parts := make([]string, 0, len(s.ForHeader))
	if len(s.Vars) > 0 {
		parts = append(parts, declarationText(s.Vars))
	} else if len(s.ForHeader) > 0 {
		parts = append(parts, exprText(s.ForHeader[0]))
	}
	for i := 1; i < len(s.ForHeader); i++ {
		parts = append(parts, exprText(s.ForHeader[i]))
	}
	return strings.Join(parts, "; ")
}

func exprText(n *ast.Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}

// renderTokenRun prints a raw token run with single spaces, keeping the
// token sequence intact.
func renderTokenRun(ts []token.Token) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}
