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
	"fmt"
	"strings"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// prevClass is the lexical context used to disambiguate `+ - * & ++ --`:
// what the previous significant token was.
type prevClass int

const (
	classNothing prevClass = iota
	classValue
	classOperator
)

type entryKind int

const (
	entryOperator entryKind = iota
	entryPair
	entryCast
	entryKeyword // new, delete, throw, prefix sizeof
	entryTernaryColon
)

type opEntry struct {
	kind entryKind
	op   *token.Op
	tok  token.Token

	// arity is fixed at push time: ambiguous operator descriptors carry
	// several arity bits, only the parse-time resolution decides.
	arity int

	// Pair entries remember the context before the opening token and the
	// output-stack height at the time, so the close can tell calls from
	// grouping and harvest the inner expression.
	beforeClass prevClass
	outHeight   int

	// Cast entries carry the parenthesized type.
	castType *ast.Type

	// Keyword entries carry the keyword and, for delete, the [] marker.
	keyword       string
	isArrayDelete bool
}

// exprParser is one shunting-yard run over a flat token slice.
type exprParser struct {
	tokens []token.Token
	d      *dialect.Dialect
	sink   diag.Sink

	out  []*ast.Node
	ops  []opEntry
	prev prevClass

	prevTok token.Token
}

// ParseExpr parses one expression region with the shunting-yard algorithm
// and returns the root node. An empty region parses to an Empty node.
func ParseExpr(tokens []token.Token, d *dialect.Dialect, sink diag.Sink) (*ast.Node, error) {
	p := &exprParser{tokens: tokens, d: d, sink: sink}
	return p.run()
}

func (p *exprParser) errorf(at token.Token, format string, args ...any) error {
	diag.Errorf(p.sink, at.Origin, format, args...)
	return fmt.Errorf(format, args...)
}

func (p *exprParser) push(n *ast.Node) {
	p.out = append(p.out, n)
}

func (p *exprParser) pop() *ast.Node {
	n := p.out[len(p.out)-1]
	p.out = p.out[:len(p.out)-1]
	return n
}

func (p *exprParser) run() (*ast.Node, error) {
	for i := 0; i < len(p.tokens); i++ {
		tok := p.tokens[i]
		switch tok.Kind {
		case token.Newline:
			continue

		case token.Identifier:
			if tok.Lexeme == "delete" && p.peekAfter(i).IsOp("[") {
				if i+2 < len(p.tokens) && p.tokens[i+2].IsOp("]") {
					p.ops = append(p.ops, opEntry{kind: entryKeyword, tok: tok, keyword: "delete", isArrayDelete: true})
					p.prev = classOperator
					p.prevTok = tok
					i += 2
					continue
				}
			}
			if err := p.onIdentifier(tok, p.peekAfter(i)); err != nil {
				return nil, err
			}

		case token.Primitive:
			p.pushLeaf(ast.Primitive, tok, tok.Lexeme)
		case token.Char:
			p.pushLeaf(ast.CharLit, tok, tok.Encoding+tok.Lexeme)
		case token.String:
			p.pushLeaf(ast.StringLit, tok, tok.Encoding+tok.Lexeme)

		case token.Operator:
			consumed, err := p.onOperator(tok, i)
			if err != nil {
				return nil, err
			}
			i += consumed

		default:
			return nil, p.errorf(tok, "unexpected %s in expression", tok)
		}
	}
	return p.finish()
}

func (p *exprParser) pushLeaf(kind ast.Kind, tok token.Token, lexeme string) {
	p.push(ast.NewLeaf(kind, tok.Origin, lexeme))
	p.prev = classValue
	p.prevTok = tok
}

func (p *exprParser) onIdentifier(tok token.Token, next token.Token) error {
	switch tok.Lexeme {
	case "new", "throw":
		p.ops = append(p.ops, opEntry{kind: entryKeyword, tok: tok, keyword: tok.Lexeme})
		p.prev = classOperator
		p.prevTok = tok
		return nil
	case "delete":
		p.ops = append(p.ops, opEntry{kind: entryKeyword, tok: tok, keyword: tok.Lexeme})
		p.prev = classOperator
		p.prevTok = tok
		return nil
	case "sizeof":
		if !next.IsOp("(") {
			p.ops = append(p.ops, opEntry{kind: entryKeyword, tok: tok, keyword: tok.Lexeme})
			p.prev = classOperator
			p.prevTok = tok
			return nil
		}
		// sizeof(...) goes through the call machinery and is converted
		// when the pair closes.
	}
	p.pushLeaf(ast.Ident, tok, tok.Lexeme)
	return nil
}

// peekAfter returns the next non-newline token after index i, or EOF.
func (p *exprParser) peekAfter(i int) token.Token {
	for j := i + 1; j < len(p.tokens); j++ {
		if p.tokens[j].Kind != token.Newline {
			return p.tokens[j]
		}
	}
	return token.Token{Kind: token.EOF}
}

// onOperator dispatches one operator token. Returns how many extra input
// tokens were consumed (non-zero only for cast prefixes).
func (p *exprParser) onOperator(tok token.Token, i int) (int, error) {
	op := tok.Op
	switch {
	case op.Is(token.Semicolon):
		return 0, p.errorf(tok, "unexpected ';' in expression")

	case op.Is(token.PairStart):
		if op.Lexeme == "(" {
			if n, castType := p.scanCast(i); n > 0 {
				p.ops = append(p.ops, opEntry{kind: entryCast, op: op, tok: tok, castType: castType})
				p.prev = classOperator
				p.prevTok = tok
				return n, nil
			}
		}
		p.ops = append(p.ops, opEntry{
			kind:        entryPair,
			op:          op,
			tok:         tok,
			beforeClass: p.prev,
			outHeight:   len(p.out),
		})
		p.prev = classNothing
		p.prevTok = tok
		return 0, nil

	case op.Is(token.PairEnd):
		return 0, p.closePair(tok)

	case op.Is(token.Ternary) && op.Lexeme == "?":
		p.reduce(op)
		p.ops = append(p.ops, opEntry{kind: entryOperator, op: op, tok: tok})
		p.prev = classOperator
		p.prevTok = tok
		return 0, nil

	case op.Is(token.Colon):
		return 0, p.onColon(tok)

	case op.Is(token.Ambiguous):
		return p.onAmbiguous(tok, i)

	case op.Is(token.Binary):
		p.reduce(op)
		p.ops = append(p.ops, opEntry{kind: entryOperator, op: op, tok: tok, arity: 2})
		p.prev = classOperator
		p.prevTok = tok
		return 0, nil

	case op.Is(token.LeftUnary):
		p.ops = append(p.ops, opEntry{kind: entryOperator, op: op, tok: tok, arity: 1})
		p.prev = classOperator
		p.prevTok = tok
		return 0, nil

	default:
		return 0, p.errorf(tok, "unexpected operator %q in expression", op.Lexeme)
	}
}

// scanCast checks whether the parenthesized region starting at the `(` at
// index i spells a cast: qualifiers, a builtin type name, optional pointer
// stars, `)`, followed by something a cast can apply to. Returns the number
// of tokens to skip (from after the `(` through the `)`) and the type.
func (p *exprParser) scanCast(i int) (int, *ast.Type) {
	j := i + 1
	var quals []string
	var typeWords []string
	for ; j < len(p.tokens); j++ {
		tok := p.tokens[j]
		if tok.Kind != token.Identifier {
			break
		}
		switch {
		case p.d.Qualifiers.Contains(tok.Lexeme) && !p.d.TypeKeywords.Contains(tok.Lexeme):
			quals = append(quals, tok.Lexeme)
		case p.d.TypeKeywords.Contains(tok.Lexeme):
			typeWords = append(typeWords, tok.Lexeme)
		default:
			return 0, nil
		}
	}
	if len(typeWords) == 0 && len(quals) == 0 {
		return 0, nil
	}
	pointers := 0
	for ; j < len(p.tokens) && p.tokens[j].IsOp("*"); j++ {
		pointers++
	}
	if j >= len(p.tokens) || !p.tokens[j].IsOp(")") {
		return 0, nil
	}
	after := p.peekAfter(j)
	applicable := after.Kind == token.Identifier || after.Kind == token.Primitive ||
		after.Kind == token.Char || after.Kind == token.String || after.IsOp("(")
	if !applicable {
		return 0, nil
	}
	name := strings.Join(typeWords, " ")
	if name == "" {
		// `(const)` alone is not a cast.
		return 0, nil
	}
	for range pointers {
		name += " *"
	}
	return j - i, &ast.Type{Name: name, LeftQualifiers: quals}
}

func (p *exprParser) onAmbiguous(tok token.Token, i int) (int, error) {
	op := tok.Op
	increment := op.Is(token.Increment | token.Decrement)

	if increment && p.prevTok.Kind == token.Operator && p.prevTok.Op.Is(token.Increment|token.Decrement) {
		return 0, p.errorf(tok, "ambiguous chained %q", op.Lexeme)
	}

	if p.prev == classValue {
		if increment {
			// Postfix: applies immediately to the last value.
			if len(p.out) == 0 {
				return 0, p.errorf(tok, "operator %q has no operand", op.Lexeme)
			}
			operand := p.pop()
			p.push(ast.NewOp(ast.RightUnary, tok.Origin, token.RightUnaryOf(op), operand))
			p.prev = classValue
			p.prevTok = tok
			return 0, nil
		}
		// After a value, + - * & are binary.
		p.reduce(op)
		p.ops = append(p.ops, opEntry{kind: entryOperator, op: op, tok: tok, arity: 2})
		p.prev = classOperator
		p.prevTok = tok
		return 0, nil
	}

	// Prefix position: require something for the operator to apply to.
	next := p.peekAfter(i)
	prefixable := next.Kind == token.Identifier || next.Kind == token.Primitive ||
		next.Kind == token.Char || next.Kind == token.String ||
		next.IsOp("(") || (next.Kind == token.Operator && next.Op.Is(token.LeftUnary|token.Ambiguous))
	if !prefixable {
		return 0, p.errorf(tok, "cannot resolve operator %q here", op.Lexeme)
	}
	unary := token.LeftUnaryOf(op)
	p.ops = append(p.ops, opEntry{kind: entryOperator, op: unary, tok: tok, arity: 1})
	p.prev = classOperator
	p.prevTok = tok
	return 0, nil
}

func (p *exprParser) onColon(tok token.Token) error {
	for len(p.ops) > 0 {
		top := &p.ops[len(p.ops)-1]
		if top.kind == entryPair {
			return p.errorf(tok, "':' outside of a ternary expression")
		}
		if top.kind == entryOperator && top.op.Lexeme == "?" {
			top.kind = entryTernaryColon
			p.prev = classOperator
			p.prevTok = tok
			return nil
		}
		if err := p.applyTop(); err != nil {
			return err
		}
	}
	return p.errorf(tok, "':' outside of a ternary expression")
}

// reduce pops and applies stacked operators that bind at least as tightly as
// op (taking associativity into account).
func (p *exprParser) reduce(op *token.Op) {
	for len(p.ops) > 0 {
		top := p.ops[len(p.ops)-1]
		if top.kind == entryPair {
			return
		}
		topPrec := p.entryPrec(top)
		if topPrec > op.Prec || (topPrec == op.Prec && !op.RightAssoc) {
			if err := p.applyTop(); err != nil {
				return
			}
			continue
		}
		return
	}
}

func (p *exprParser) entryPrec(e opEntry) int {
	switch e.kind {
	case entryCast, entryKeyword:
		return token.PrecUnary
	case entryTernaryColon:
		return token.PrecTernary
	default:
		return e.op.Prec
	}
}

// applyTop pops the top operator entry and applies it to the output stack.
func (p *exprParser) applyTop() error {
	e := p.ops[len(p.ops)-1]
	p.ops = p.ops[:len(p.ops)-1]

	need := 1
	switch {
	case e.kind == entryTernaryColon:
		need = 3
	case e.kind == entryOperator && e.op.Lexeme == "?":
		return p.errorf(e.tok, "'?' without matching ':'")
	case e.kind == entryOperator:
		need = e.arity
	case e.kind == entryKeyword && e.keyword == "throw" && len(p.out) == 0:
		need = 0
	}
	if len(p.out) < need {
		return p.errorf(e.tok, "operator %q is missing operands", e.tok.Lexeme)
	}

	operands := make([]*ast.Node, need)
	for i := need - 1; i >= 0; i-- {
		operands[i] = p.pop()
	}

	switch e.kind {
	case entryCast:
		n := ast.NewNode(ast.Cast, e.tok.Origin, operands[0])
		n.Type = e.castType
		p.push(n)
	case entryKeyword:
		p.push(p.keywordNode(e, operands))
	case entryTernaryColon:
		p.push(ast.NewNode(ast.Ternary, e.tok.Origin, operands...))
	default:
		kind := ast.Binary
		if need == 1 {
			kind = ast.LeftUnary
		}
		p.push(ast.NewOp(kind, e.tok.Origin, e.op, operands...))
	}
	return nil
}

func (p *exprParser) keywordNode(e opEntry, operands []*ast.Node) *ast.Node {
	operand := &ast.Node{Kind: ast.Empty, Origin: e.tok.Origin}
	if len(operands) > 0 {
		operand = operands[0]
	}
	switch e.keyword {
	case "new":
		return ast.NewNode(ast.New, e.tok.Origin, operand)
	case "delete":
		n := ast.NewNode(ast.Delete, e.tok.Origin, operand)
		n.IsArrayDelete = e.isArrayDelete
		return n
	case "throw":
		return ast.NewNode(ast.Throw, e.tok.Origin, operand)
	default:
		return ast.NewNode(ast.Sizeof, e.tok.Origin, operand)
	}
}

// closePair pops operators to the matching pair start and builds the call,
// subscript, CUDA-launch, grouping or tuple node it delimits.
func (p *exprParser) closePair(tok token.Token) error {
	for len(p.ops) > 0 && p.ops[len(p.ops)-1].kind != entryPair {
		if err := p.applyTop(); err != nil {
			return err
		}
	}
	if len(p.ops) == 0 {
		return p.errorf(tok, "unbalanced %q", tok.Lexeme)
	}
	start := p.ops[len(p.ops)-1]
	p.ops = p.ops[:len(p.ops)-1]
	if start.op.Pair != tok.Lexeme {
		return p.errorf(tok, "mismatched pair: %q closed by %q", start.op.Lexeme, tok.Lexeme)
	}

	var inner *ast.Node
	switch len(p.out) - start.outHeight {
	case 0:
		inner = &ast.Node{Kind: ast.Empty, Origin: tok.Origin}
	case 1:
		inner = p.pop()
	default:
		return p.errorf(tok, "malformed expression inside %q pair", start.op.Lexeme)
	}

	callish := start.beforeClass == classValue
	switch start.op.Lexeme {
	case "(":
		if callish {
			callee := p.pop()
			if callee.IsIdent("sizeof") {
				p.push(ast.NewNode(ast.Sizeof, callee.Origin, inner))
				break
			}
			args := ast.FlattenCommas(inner)
			p.push(ast.NewNode(ast.Call, callee.Origin, append([]*ast.Node{callee}, args...)...))
			break
		}
		n := ast.NewNode(ast.Parens, start.tok.Origin, inner)
		n.Op = start.op
		p.push(n)
	case "[":
		if !callish {
			return p.errorf(tok, "subscript without a value to index")
		}
		base := p.pop()
		p.push(ast.NewNode(ast.Subscript, base.Origin, base, inner))
	case "{":
		p.push(ast.NewNode(ast.Tuple, start.tok.Origin, ast.FlattenCommas(inner)...))
	case "<<<":
		if !callish {
			return p.errorf(tok, "CUDA launch bounds without a callee")
		}
		dims := ast.FlattenCommas(inner)
		if len(dims) != 2 {
			return p.errorf(tok, "CUDA launch bounds expect blocks and threads, got %d expressions", len(dims))
		}
		callee := p.pop()
		p.push(ast.NewNode(ast.CudaCall, callee.Origin, callee, dims[0], dims[1]))
	}
	p.prev = classValue
	p.prevTok = tok
	return nil
}

// finish drains the operator stack; the output stack must hold exactly one
// node (or none, for an empty region).
func (p *exprParser) finish() (*ast.Node, error) {
	for len(p.ops) > 0 {
		if top := p.ops[len(p.ops)-1]; top.kind == entryPair {
			return nil, p.errorf(top.tok, "unbalanced %q", top.op.Lexeme)
		}
		if err := p.applyTop(); err != nil {
			return nil, err
		}
	}
	switch len(p.out) {
	case 0:
		return &ast.Node{Kind: ast.Empty}, nil
	case 1:
		return p.out[0], nil
	default:
		return nil, p.errorf(p.prevTok, "expression does not reduce to a single tree")
	}
}
