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

// Package parser builds the statement tree of a preprocessed token stream.
// Statements are classified by their first significant token and local
// structure; each statement owns a header expression tree built by the
// shunting-yard expression parser and an ordered list of child statements.
//
// A parse error skips the enclosing statement to the next `;` or `}` and
// continues, so one run can report several problems.
package parser

import (
	"strings"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// TokenStream is the pull interface the statement parser drives. The
// preprocessor implements it; tests feed slices.
type TokenStream interface {
	Next() token.Token
}

// SliceStream adapts a token slice to the TokenStream interface.
type SliceStream struct {
	Tokens []token.Token
	pos    int
}

func (s *SliceStream) Next() token.Token {
	if s.pos >= len(s.Tokens) {
		return token.Token{Kind: token.EOF}
	}
	t := s.Tokens[s.pos]
	s.pos++
	return t
}

type stmtParser struct {
	stream TokenStream
	d      *dialect.Dialect
	sink   diag.Sink
	prog   *Program

	buf []token.Token
}

// Parse consumes the stream and returns the statement tree rooted at the
// global scope. Diagnostics go to the sink; the returned Program is usable
// even when errors were reported (erroneous statements are skipped).
func Parse(stream TokenStream, d *dialect.Dialect, sink diag.Sink) *Program {
	p := &stmtParser{stream: stream, d: d, sink: sink, prog: NewProgram(d)}
	p.parseInto(p.prog.Global(), false)
	return p.prog
}

// next returns the next significant token, newlines skipped.
func (p *stmtParser) next() token.Token {
	if len(p.buf) > 0 {
		t := p.buf[len(p.buf)-1]
		p.buf = p.buf[:len(p.buf)-1]
		return t
	}
	for {
		t := p.stream.Next()
		if t.Kind == token.Newline {
			continue
		}
		return t
	}
}

func (p *stmtParser) unread(t token.Token) {
	p.buf = append(p.buf, t)
}

func (p *stmtParser) peek() token.Token {
	t := p.next()
	p.unread(t)
	return t
}

func (p *stmtParser) errorf(at token.Token, format string, args ...any) {
	diag.Errorf(p.sink, at.Origin, format, args...)
}

// skipStatement recovers from a parse error: discard to the next `;` at
// depth zero or the end of the enclosing brace.
func (p *stmtParser) skipStatement() {
	depth := 0
	for {
		t := p.next()
		switch {
		case t.Kind == token.EOF:
			return
		case t.HasCode(token.PairStart):
			depth++
		case t.HasCode(token.PairEnd):
			if depth == 0 {
				p.unread(t)
				return
			}
			depth--
		case t.IsOp(";") && depth == 0:
			return
		}
	}
}

// collectBalanced accumulates tokens until stop matches at pair depth zero.
// The stopping token is consumed but not included.
func (p *stmtParser) collectBalanced(stop func(token.Token) bool) ([]token.Token, bool) {
	var tokens []token.Token
	depth := 0
	for {
		t := p.next()
		if t.Kind == token.EOF {
			return tokens, false
		}
		if depth == 0 && stop(t) {
			return tokens, true
		}
		switch {
		case t.HasCode(token.PairStart):
			depth++
		case t.HasCode(token.PairEnd):
			if depth == 0 {
				// Unbalanced close belongs to the caller.
				p.unread(t)
				return tokens, false
			}
			depth--
		}
		tokens = append(tokens, t)
	}
}

// collectParen consumes a balanced `( ... )` region and returns the inner
// tokens.
func (p *stmtParser) collectParen() ([]token.Token, bool) {
	open := p.next()
	if !open.IsOp("(") {
		p.errorf(open, "expected '(', found %s", open)
		p.unread(open)
		return nil, false
	}
	return p.collectBalanced(func(t token.Token) bool { return t.IsOp(")") })
}

// parseInto parses statements as children of parent until EOF or, when
// insideBrace, the closing `}` (which is consumed).
func (p *stmtParser) parseInto(parent StmtID, insideBrace bool) {
	for {
		t := p.peek()
		switch {
		case t.Kind == token.EOF:
			if insideBrace {
				p.errorf(t, "missing '}'")
			}
			return
		case t.IsOp("}"):
			p.next()
			if !insideBrace {
				p.errorf(t, "unmatched '}'")
				continue
			}
			return
		}
		if id := p.parseStatement(parent); id != NoStmt {
			p.prog.AddChild(parent, id)
		}
	}
}

// parseStatement parses one statement and returns its ID, or NoStmt when the
// statement was erroneous and skipped.
func (p *stmtParser) parseStatement(parent StmtID) StmtID {
	t := p.next()

	switch t.Kind {
	case token.Pragma:
		id := p.prog.NewStmt(StmtPragma, parent)
		s := p.prog.Stmt(id)
		s.Origin = t.Origin
		s.Text = t.Lexeme
		return id

	case token.Operator:
		switch {
		case t.IsOp(";"):
			id := p.prog.NewStmt(StmtEmpty, parent)
			p.prog.Stmt(id).Origin = t.Origin
			return id
		case t.IsOp("{"):
			id := p.prog.NewStmt(StmtBlock, parent)
			p.prog.Stmt(id).Origin = t.Origin
			p.parseInto(id, true)
			return id
		default:
			p.unread(t)
			return p.parseUpdate(parent)
		}

	case token.Identifier:
		return p.parseIdentStatement(parent, t)

	default:
		p.unread(t)
		return p.parseUpdate(parent)
	}
}

func (p *stmtParser) parseIdentStatement(parent StmtID, t token.Token) StmtID {
	switch t.Lexeme {
	case "if":
		return p.parseIf(parent, t, StmtIf)
	case "else":
		next := p.peek()
		if next.IsIdent("if") {
			p.next()
			return p.parseIf(parent, t, StmtElseIf)
		}
		id := p.prog.NewStmt(StmtElse, parent)
		p.prog.Stmt(id).Origin = t.Origin
		p.parseBody(id)
		return id
	case "for":
		return p.parseFor(parent, t)
	case "while":
		return p.parseWhile(parent, t)
	case "do":
		return p.parseDoWhile(parent, t)
	case "switch":
		return p.parseSwitch(parent, t)
	case "case", "default":
		return p.parseCase(parent, t)
	case "return", "break", "continue":
		return p.parseFlow(parent, t)
	case "goto":
		return p.parseGoto(parent, t)
	case "typedef":
		return p.parseTypedef(parent, t)
	case "struct", "class", "union", "enum":
		// A type keyword inside a declaration ("struct point p;") is
		// handled by the declaration parser; a definition with a brace
		// body is a struct statement.
		return p.parseStructOrDecl(parent, t)
	}

	// Already-lowered loop markers re-parse as marker statements, which
	// keeps translation idempotent.
	if isParallelMarkerName(t.Lexeme) {
		id := p.prog.NewStmt(StmtMarker, parent)
		s := p.prog.Stmt(id)
		s.Origin = t.Origin
		s.Marker = t.Lexeme
		return id
	}
	if isLoopMarkerName(t.Lexeme) && p.peek().IsOp("{") {
		p.next()
		id := p.prog.NewStmt(StmtMarker, parent)
		s := p.prog.Stmt(id)
		s.Origin = t.Origin
		s.Marker = t.Lexeme
		p.parseInto(id, true)
		return id
	}

	// Labels: `name:` where name is not a keyword.
	if p.peek().IsOp(":") && !p.d.Keywords.Contains(t.Lexeme) {
		p.next()
		id := p.prog.NewStmt(StmtLabel, parent)
		s := p.prog.Stmt(id)
		s.Origin = t.Origin
		s.Text = t.Lexeme
		return id
	}

	if p.startsDeclaration(parent, t) {
		p.unread(t)
		return p.parseDeclaration(parent)
	}

	p.unread(t)
	return p.parseUpdate(parent)
}

func isLoopMarkerName(name string) bool {
	for _, prefix := range []string{"occaOuterFor", "occaInnerFor"} {
		if strings.HasPrefix(name, prefix) && len(name) == len(prefix)+1 &&
			name[len(prefix)] >= '0' && name[len(prefix)] <= '2' {
			return true
		}
	}
	return false
}

func isParallelMarkerName(name string) bool {
	const prefix = "occaParallelFor"
	return strings.HasPrefix(name, prefix) && len(name) == len(prefix)+1 &&
		name[len(prefix)] >= '0' && name[len(prefix)] <= '2'
}

// startsDeclaration decides whether an identifier opens a declaration:
// a qualifier, attribute or type keyword of the dialect, or a typedef name
// visible in scope followed by another identifier or a pointer star.
func (p *stmtParser) startsDeclaration(scope StmtID, t token.Token) bool {
	if p.d.StartsDeclaration(t.Lexeme) || strings.HasPrefix(t.Lexeme, "@") {
		return true
	}
	if typ, _ := p.prog.LookupType(scope, t.Lexeme); typ != nil {
		next := p.peek()
		return next.Kind == token.Identifier || next.IsOp("*") || next.IsOp("&")
	}
	return false
}

// parseBody parses the single statement (possibly a block) forming the body
// of a control statement, as a child of parent.
func (p *stmtParser) parseBody(parent StmtID) {
	if id := p.parseStatement(parent); id != NoStmt {
		p.prog.AddChild(parent, id)
	}
}

func (p *stmtParser) parseCondExpr(at token.Token) *ast.Node {
	tokens, ok := p.collectParen()
	if !ok {
		p.errorf(at, "malformed condition")
		return &ast.Node{Kind: ast.Empty, Origin: at.Origin}
	}
	expr, err := ParseExpr(tokens, p.d, p.sink)
	if err != nil {
		return &ast.Node{Kind: ast.Empty, Origin: at.Origin}
	}
	return expr
}

func (p *stmtParser) parseIf(parent StmtID, t token.Token, kind StmtKind) StmtID {
	id := p.prog.NewStmt(kind, parent)
	cond := p.parseCondExpr(t)
	s := p.prog.Stmt(id)
	s.Origin = t.Origin
	s.Expr = cond
	p.parseBody(id)
	return id
}

func (p *stmtParser) parseWhile(parent StmtID, t token.Token) StmtID {
	id := p.prog.NewStmt(StmtWhile, parent)
	cond := p.parseCondExpr(t)
	s := p.prog.Stmt(id)
	s.Origin = t.Origin
	s.Expr = cond
	p.parseBody(id)
	return id
}

func (p *stmtParser) parseDoWhile(parent StmtID, t token.Token) StmtID {
	id := p.prog.NewStmt(StmtDoWhile, parent)
	p.prog.Stmt(id).Origin = t.Origin
	p.parseBody(id)

	kw := p.next()
	if !kw.IsIdent("while") {
		p.errorf(kw, "expected 'while' after do-body, found %s", kw)
		p.unread(kw)
		p.skipStatement()
		return id
	}
	cond := p.parseCondExpr(kw)
	p.prog.Stmt(id).Expr = cond
	if semi := p.next(); !semi.IsOp(";") {
		p.errorf(semi, "expected ';' after do-while, found %s", semi)
		p.unread(semi)
	}
	return id
}

func (p *stmtParser) parseSwitch(parent StmtID, t token.Token) StmtID {
	id := p.prog.NewStmt(StmtSwitch, parent)
	cond := p.parseCondExpr(t)
	s := p.prog.Stmt(id)
	s.Origin = t.Origin
	s.Expr = cond
	p.parseBody(id)
	return id
}

func (p *stmtParser) parseCase(parent StmtID, t token.Token) StmtID {
	id := p.prog.NewStmt(StmtCase, parent)
	p.prog.Stmt(id).Origin = t.Origin
	p.prog.Stmt(id).Text = t.Lexeme
	if t.Lexeme == "case" {
		tokens, ok := p.collectBalanced(func(tok token.Token) bool { return tok.IsOp(":") })
		if !ok {
			p.errorf(t, "case label missing ':'")
			return id
		}
		expr, err := ParseExpr(tokens, p.d, p.sink)
		if err == nil {
			p.prog.Stmt(id).Expr = expr
		}
		return id
	}
	if colon := p.next(); !colon.IsOp(":") {
		p.errorf(colon, "expected ':' after 'default', found %s", colon)
		p.unread(colon)
	}
	return id
}

func (p *stmtParser) parseFlow(parent StmtID, t token.Token) StmtID {
	id := p.prog.NewStmt(StmtFlow, parent)
	p.prog.Stmt(id).Origin = t.Origin
	p.prog.Stmt(id).Text = t.Lexeme
	tokens, ok := p.collectBalanced(func(tok token.Token) bool { return tok.IsOp(";") })
	if !ok {
		p.errorf(t, "missing ';' after '%s'", t.Lexeme)
		return id
	}
	if len(tokens) > 0 {
		if expr, err := ParseExpr(tokens, p.d, p.sink); err == nil {
			p.prog.Stmt(id).Expr = expr
		}
	}
	return id
}

func (p *stmtParser) parseGoto(parent StmtID, t token.Token) StmtID {
	id := p.prog.NewStmt(StmtGoto, parent)
	p.prog.Stmt(id).Origin = t.Origin
	label := p.next()
	if label.Kind != token.Identifier {
		p.errorf(label, "expected label after 'goto', found %s", label)
		p.skipStatement()
		return id
	}
	p.prog.Stmt(id).Text = label.Lexeme
	if semi := p.next(); !semi.IsOp(";") {
		p.errorf(semi, "expected ';' after goto label, found %s", semi)
		p.unread(semi)
	}
	return id
}

func (p *stmtParser) parseUpdate(parent StmtID) StmtID {
	first := p.peek()
	tokens, ok := p.collectBalanced(func(tok token.Token) bool { return tok.IsOp(";") })
	if !ok {
		p.errorf(first, "statement is missing ';'")
		p.skipStatement()
		return NoStmt
	}
	expr, err := ParseExpr(tokens, p.d, p.sink)
	if err != nil {
		return NoStmt
	}
	id := p.prog.NewStmt(StmtUpdate, parent)
	s := p.prog.Stmt(id)
	s.Origin = first.Origin
	s.Expr = expr
	return id
}
