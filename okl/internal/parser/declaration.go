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

package parser

import (
	"strings"

	"github.com/EngFlow/okl_cc/internal/collections"
	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// tokCursor scans a collected token slice without further stream access.
type tokCursor struct {
	ts []token.Token
	i  int
}

func (c *tokCursor) done() bool { return c.i >= len(c.ts) }

func (c *tokCursor) at() token.Token {
	if c.done() {
		return token.Token{Kind: token.EOF}
	}
	return c.ts[c.i]
}

func (c *tokCursor) advance() token.Token {
	t := c.at()
	c.i++
	return t
}

// collectPair consumes a balanced pair region starting at the current
// opening token and returns the inner tokens.
func (c *tokCursor) collectPair() []token.Token {
	c.advance() // the opening token
	depth := 0
	start := c.i
	for !c.done() {
		t := c.at()
		switch {
		case t.HasCode(token.PairStart):
			depth++
		case t.HasCode(token.PairEnd):
			if depth == 0 {
				inner := c.ts[start:c.i]
				c.i++
				return inner
			}
			depth--
		}
		c.i++
	}
	return c.ts[start:c.i]
}

// collectUntil consumes tokens up to (not including) the first top-level
// token matching stop.
func (c *tokCursor) collectUntil(stop func(token.Token) bool) []token.Token {
	depth := 0
	start := c.i
	for !c.done() {
		t := c.at()
		if depth == 0 && stop(t) {
			break
		}
		switch {
		case t.HasCode(token.PairStart):
			depth++
		case t.HasCode(token.PairEnd):
			depth--
		}
		c.i++
	}
	return c.ts[start:c.i]
}

// splitTopLevel splits tokens on top-level separators.
func splitTopLevel(ts []token.Token, sep string) [][]token.Token {
	var out [][]token.Token
	depth, start := 0, 0
	for i, t := range ts {
		switch {
		case t.HasCode(token.PairStart):
			depth++
		case t.HasCode(token.PairEnd):
			depth--
		case depth == 0 && t.IsOp(sep):
			out = append(out, ts[start:i])
			start = i + 1
		}
	}
	return append(out, ts[start:])
}

// declPrefix is the parsed qualifier/attribute/type prefix shared by all
// declarators of one declaration.
type declPrefix struct {
	attrs    []string
	quals    []string
	baseType string
}

var typeModifierWords = map[string]bool{
	"signed": true, "unsigned": true, "long": true, "short": true,
}

// parseDeclPrefix consumes qualifiers, attributes and the base type name.
func (p *stmtParser) parseDeclPrefix(c *tokCursor, scope StmtID) (declPrefix, bool) {
	var d declPrefix
	var typeWords []string
	for !c.done() {
		t := c.at()
		if t.Kind != token.Identifier {
			break
		}
		name := t.Lexeme
		switch {
		case strings.HasPrefix(name, "@"):
			d.attrs = append(d.attrs, name)
			c.advance()
		case typeModifierWords[name]:
			typeWords = append(typeWords, name)
			c.advance()
		case p.d.Qualifiers.Contains(name):
			d.quals = append(d.quals, name)
			c.advance()
		case p.d.TypeKeywords.Contains(name):
			typeWords = append(typeWords, name)
			c.advance()
		case name == "struct" || name == "class" || name == "union" || name == "enum":
			c.advance()
			words := name
			if tag := c.at(); tag.Kind == token.Identifier {
				words += " " + tag.Lexeme
				c.advance()
			}
			typeWords = append(typeWords, words)
		default:
			typ, _ := p.prog.LookupType(scope, name)
			if len(typeWords) == 0 && typ != nil {
				typeWords = append(typeWords, name)
				c.advance()
				continue
			}
			// Unknown identifier: if no type yet and a declarator
			// plausibly follows, take it as the base type.
			if len(typeWords) == 0 {
				next := c.i + 1
				if next < len(c.ts) && (c.ts[next].Kind == token.Identifier ||
					c.ts[next].IsOp("*") || c.ts[next].IsOp("&")) {
					typeWords = append(typeWords, name)
					c.advance()
					continue
				}
			}
			goto prefixDone
		}
	}
prefixDone:
	if len(typeWords) == 0 {
		// `occaKernel *nestedKernels` style: the last qualifier names
		// the type.
		if len(d.quals) == 0 {
			return d, false
		}
		d.baseType = d.quals[len(d.quals)-1]
		d.quals = d.quals[:len(d.quals)-1]
		return d, true
	}
	d.baseType = strings.Join(typeWords, " ")
	return d, true
}

// parseDeclarator consumes one declarator: pointer stars, name, array
// dimensions, a parameter list for functions and an initializer.
func (p *stmtParser) parseDeclarator(c *tokCursor, prefix declPrefix, scope StmtID) (*ast.Var, bool) {
	v := &ast.Var{
		BaseType:       prefix.baseType,
		LeftQualifiers: append([]string(nil), prefix.quals...),
		Attrs:          append([]string(nil), prefix.attrs...),
	}
	for !c.done() {
		t := c.at()
		switch {
		case t.IsOp("*"):
			v.PointerCount++
			c.advance()
		case t.IsOp("&"):
			v.Reference = true
			c.advance()
		case t.Kind == token.Identifier && strings.HasPrefix(t.Lexeme, "@"):
			v.Attrs = append(v.Attrs, t.Lexeme)
			c.advance()
		case t.Kind == token.Identifier && p.d.Qualifiers.Contains(t.Lexeme):
			v.LeftQualifiers = append(v.LeftQualifiers, t.Lexeme)
			c.advance()
		default:
			goto name
		}
	}
name:
	if t := c.at(); t.Kind == token.Identifier {
		v.Name = t.Lexeme
		c.advance()
	}

	// Right qualifiers follow the name (`const int N occaVariable`).
	for c.at().Kind == token.Identifier && p.d.Qualifiers.Contains(c.at().Lexeme) {
		v.AppendRightQualifier(c.advance().Lexeme)
	}

	for c.at().IsOp("[") {
		inner := c.collectPair()
		dim, err := ParseExpr(inner, p.d, p.sink)
		if err != nil {
			return nil, false
		}
		v.StackDims = append(v.StackDims, dim)
	}

	if c.at().IsOp("(") {
		inner := c.collectPair()
		args, ok := p.parseParams(inner, scope)
		if !ok {
			return nil, false
		}
		v.IsFunction = true
		v.Args = args
	}

	// Trailing attributes bind to the declarator: `float *x @restrict`.
	for c.at().Kind == token.Identifier && strings.HasPrefix(c.at().Lexeme, "@") {
		v.Attrs = append(v.Attrs, c.advance().Lexeme)
	}

	if eq := c.at(); eq.IsOp("=") {
		c.advance()
		init := c.collectUntil(func(t token.Token) bool { return t.IsOp(",") })
		if len(init) == 0 {
			p.errorf(eq, "declaration of %q is missing its initializer", v.Name)
			return nil, false
		}
		expr, err := ParseExpr(init, p.d, p.sink)
		if err != nil {
			return nil, false
		}
		v.Init = expr
	}
	return v, true
}

// parseParams parses a formal parameter list.
func (p *stmtParser) parseParams(ts []token.Token, scope StmtID) ([]*ast.Var, bool) {
	var args []*ast.Var
	for _, region := range splitTopLevel(ts, ",") {
		if len(region) == 0 {
			continue
		}
		if len(region) == 1 && region[0].IsIdent("void") {
			continue
		}
		// The kernel-info formal is a bare name with no type.
		if len(region) == 1 && region[0].IsIdent("occaKernelInfoArg") {
			args = append(args, &ast.Var{Name: "occaKernelInfoArg"})
			continue
		}
		c := &tokCursor{ts: region}
		prefix, ok := p.parseDeclPrefix(c, scope)
		if !ok {
			p.errorf(region[0], "malformed parameter declaration")
			return nil, false
		}
		arg, ok := p.parseDeclarator(c, prefix, scope)
		if !ok {
			return nil, false
		}
		args = append(args, arg)
	}
	return args, true
}

// collectDecl gathers the tokens of one declaration up to its terminating
// `;` or, for function definitions, the opening `{` (both consumed). Braces
// that belong to initializers are balanced, not terminators.
func (p *stmtParser) collectDecl() (ts []token.Token, isFunctionBody bool, ok bool) {
	depth := 0
	seenAssign := false
	for {
		t := p.next()
		switch {
		case t.Kind == token.EOF:
			return ts, false, false
		case depth == 0 && t.IsOp(";"):
			return ts, false, true
		case depth == 0 && t.IsOp("{") && !seenAssign:
			return ts, true, true
		case t.HasCode(token.PairStart):
			depth++
		case t.HasCode(token.PairEnd):
			if depth == 0 {
				p.unread(t)
				return ts, false, false
			}
			depth--
		case depth == 0 && t.IsOp("="):
			seenAssign = true
		}
		ts = append(ts, t)
	}
}

// parseDeclaration parses a declaration, function prototype or function
// definition statement.
func (p *stmtParser) parseDeclaration(parent StmtID) StmtID {
	first := p.peek()
	ts, isFunctionBody, ok := p.collectDecl()
	if !ok {
		p.errorf(first, "malformed declaration")
		p.skipStatement()
		return NoStmt
	}

	c := &tokCursor{ts: ts}
	prefix, prefOk := p.parseDeclPrefix(c, parent)
	if !prefOk {
		p.errorf(first, "expected a type in declaration")
		return NoStmt
	}

	var vars []*ast.Var
	for {
		v, declOk := p.parseDeclarator(c, prefix, parent)
		if !declOk {
			return NoStmt
		}
		vars = append(vars, v)
		if !c.at().IsOp(",") {
			break
		}
		c.advance()
	}
	if !c.done() {
		p.errorf(c.at(), "unexpected %s in declaration", c.at())
		return NoStmt
	}

	if len(vars) > 0 && vars[0].IsFunction {
		fn := vars[0]
		names := collections.FilterSlice(
			collections.MapSlice(fn.Args, func(v *ast.Var) string { return v.Name }),
			func(name string) bool { return name != "" })
		if dups := collections.FindDuplicates(names); len(dups) > 0 {
			p.errorf(first, "duplicate parameter %q in declaration of %q", dups[0], fn.Name)
			return NoStmt
		}
		kind := StmtFunctionProto
		if isFunctionBody {
			kind = StmtFunctionDef
		}
		id := p.prog.NewStmt(kind, parent)
		s := p.prog.Stmt(id)
		s.Origin = first.Origin
		s.Fn = fn
		s.Attrs = append([]string(nil), fn.Attrs...)
		p.prog.DeclareVar(parent, fn)
		if isFunctionBody {
			for _, arg := range fn.Args {
				if arg.Name != "" {
					p.prog.DeclareVar(id, arg)
				}
			}
			p.parseInto(id, true)
		}
		return id
	}

	if isFunctionBody {
		p.errorf(first, "unexpected '{' after declaration")
		p.skipStatement()
		return NoStmt
	}

	id := p.prog.NewStmt(StmtDeclare, parent)
	s := p.prog.Stmt(id)
	s.Origin = first.Origin
	s.Vars = vars
	s.Attrs = append([]string(nil), prefix.attrs...)
	for _, v := range vars {
		if v.Name != "" {
			p.prog.DeclareVar(parent, v)
		}
	}
	return id
}

// parseFor parses a for statement. OKL loops carry a fourth header region
// holding the `@outer`/`@inner`/`@tile` tag.
func (p *stmtParser) parseFor(parent StmtID, t token.Token) StmtID {
	inner, ok := p.collectParen()
	if !ok {
		p.errorf(t, "malformed for-loop header")
		p.skipStatement()
		return NoStmt
	}

	id := p.prog.NewStmt(StmtFor, parent)
	p.prog.Stmt(id).Origin = t.Origin

	regions := splitTopLevel(inner, ";")
	if len(regions) != 3 && len(regions) != 4 {
		p.errorf(t, "for-loop header has %d expressions, expected 3 (or 4 with an OKL tag)", len(regions))
		p.skipStatement()
		return NoStmt
	}

	header := make([]*ast.Node, len(regions))

	// The init region may declare the iterator; it then belongs to the
	// for-statement's own scope, not the enclosing one.
	init := regions[0]
	if len(init) > 0 && init[0].Kind == token.Identifier && p.startsDeclaration(id, init[0]) {
		c := &tokCursor{ts: init}
		prefix, prefOk := p.parseDeclPrefix(c, id)
		if prefOk {
			for {
				v, declOk := p.parseDeclarator(c, prefix, id)
				if !declOk {
					break
				}
				s := p.prog.Stmt(id)
				s.Vars = append(s.Vars, v)
				p.prog.DeclareVar(id, v)
				if !c.at().IsOp(",") {
					break
				}
				c.advance()
			}
		}
	} else if expr, err := ParseExpr(init, p.d, p.sink); err == nil {
		header[0] = expr
	}

	for i, region := range regions[1:] {
		if expr, err := ParseExpr(region, p.d, p.sink); err == nil {
			header[i+1] = expr
		}
	}

	if len(regions) == 4 && header[3] != nil {
		tag := header[3]
		switch {
		case tag.Kind == ast.Ident:
			p.prog.Stmt(id).AddAttr(tag.Lexeme)
		case tag.Kind == ast.Call && tag.Left() != nil:
			p.prog.Stmt(id).AddAttr(tag.Left().RefName())
		}
	}

	p.prog.Stmt(id).ForHeader = header
	p.parseBody(id)
	return id
}

// parseStructOrDecl handles struct/class/union/enum keywords at statement
// position: a definition with a brace body becomes a struct statement, a
// plain `struct name var;` is re-dispatched as a declaration.
func (p *stmtParser) parseStructOrDecl(parent StmtID, t token.Token) StmtID {
	var name token.Token
	hasName := false
	if next := p.peek(); next.Kind == token.Identifier {
		name = p.next()
		hasName = true
	}

	if !p.peek().IsOp("{") {
		if hasName {
			p.unread(name)
		}
		p.unread(t)
		return p.parseDeclaration(parent)
	}
	p.next() // consume '{'

	id := p.prog.NewStmt(StmtStruct, parent)
	s := p.prog.Stmt(id)
	s.Origin = t.Origin
	s.Text = t.Lexeme
	if hasName {
		typ := &ast.Type{Name: name.Lexeme}
		p.prog.Stmt(id).Type = typ
		p.prog.DeclareType(parent, typ)
	}

	if t.Lexeme == "enum" {
		// Enumerator lists are a comma chain, not statements.
		body, ok := p.collectBalanced(func(tok token.Token) bool { return tok.IsOp("}") })
		if !ok {
			p.errorf(t, "unterminated enum body")
			return id
		}
		if expr, err := ParseExpr(body, p.d, p.sink); err == nil {
			p.prog.Stmt(id).Expr = expr
		}
	} else {
		p.parseInto(id, true)
	}

	// Optional instance declarators: `struct point { ... } origin;`
	trailing, ok := p.collectBalanced(func(tok token.Token) bool { return tok.IsOp(";") })
	if !ok {
		p.errorf(t, "missing ';' after %s definition", t.Lexeme)
		return id
	}
	if len(trailing) > 0 {
		baseType := t.Lexeme
		if hasName {
			baseType += " " + name.Lexeme
		}
		c := &tokCursor{ts: trailing}
		for {
			v, declOk := p.parseDeclarator(c, declPrefix{baseType: baseType}, parent)
			if !declOk {
				break
			}
			if v.Name != "" {
				s := p.prog.Stmt(id)
				s.Vars = append(s.Vars, v)
				p.prog.DeclareVar(parent, v)
			}
			if !c.at().IsOp(",") {
				break
			}
			c.advance()
		}
	}
	return id
}

// parseTypedef records a typedef: the alias is registered as a scope type
// and the raw token run is kept for emission.
func (p *stmtParser) parseTypedef(parent StmtID, t token.Token) StmtID {
	ts, ok := p.collectBalanced(func(tok token.Token) bool { return tok.IsOp(";") })
	if !ok {
		p.errorf(t, "missing ';' after typedef")
		p.skipStatement()
		return NoStmt
	}

	// The alias is the last identifier of the declaration.
	alias := ""
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].Kind == token.Identifier {
			alias = ts[i].Lexeme
			break
		}
	}
	if alias == "" {
		p.errorf(t, "typedef declares no name")
		return NoStmt
	}

	id := p.prog.NewStmt(StmtTypedef, parent)
	s := p.prog.Stmt(id)
	s.Origin = t.Origin
	s.Tokens = ts
	target := ""
	if len(ts) > 0 && ts[0].Kind == token.Identifier {
		target = ts[0].Lexeme
	}
	typ := &ast.Type{Name: alias}
	if target != "" && target != alias {
		typ.Typedef = &ast.Type{Name: target}
	}
	s.Type = typ
	p.prog.DeclareType(parent, typ)
	return id
}
