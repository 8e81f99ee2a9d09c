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

package preprocessor

import (
	"slices"
	"strconv"
	"strings"

	"github.com/EngFlow/okl_cc/internal/collections"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/internal/origin"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// Macro is one preprocessor macro. Source macros expand by parameter
// substitution followed by #/## handling and a rescan; builtins expand
// procedurally from the preprocessor state.
type Macro struct {
	Name       string
	IsFunction bool
	Params     []string
	Variadic   bool
	Body       []token.Token

	builtin func(pp *Preprocessor, at token.Token) []token.Token
}

func builtinMacros() map[string]*Macro {
	builtin := func(name string, fn func(pp *Preprocessor, at token.Token) []token.Token) *Macro {
		return &Macro{Name: name, builtin: fn}
	}
	return map[string]*Macro{
		"__FILE__": builtin("__FILE__", func(pp *Preprocessor, at token.Token) []token.Token {
			return []token.Token{{
				Kind:   token.String,
				Origin: at.Origin,
				Lexeme: strconv.Quote(pp.lx.CurrentPath()),
			}}
		}),
		"__LINE__": builtin("__LINE__", func(pp *Preprocessor, at token.Token) []token.Token {
			return []token.Token{{
				Kind:   token.Primitive,
				Origin: at.Origin,
				Lexeme: strconv.Itoa(at.Origin.Line),
			}}
		}),
		"__DATE__": builtin("__DATE__", func(pp *Preprocessor, at token.Token) []token.Token {
			return []token.Token{{
				Kind:   token.String,
				Origin: at.Origin,
				Lexeme: strconv.Quote(pp.now.Format("Jan _2 2006")),
			}}
		}),
		"__TIME__": builtin("__TIME__", func(pp *Preprocessor, at token.Token) []token.Token {
			return []token.Token{{
				Kind:   token.String,
				Origin: at.Origin,
				Lexeme: strconv.Quote(pp.now.Format("15:04:05")),
			}}
		}),
		"__COUNTER__": builtin("__COUNTER__", func(pp *Preprocessor, at token.Token) []token.Token {
			n := pp.counter
			pp.counter++
			return []token.Token{{
				Kind:   token.Primitive,
				Origin: at.Origin,
				Lexeme: strconv.Itoa(n),
			}}
		}),
	}
}

func (pp *Preprocessor) lookupMacro(name string) *Macro {
	if m, ok := pp.source[name]; ok {
		return m
	}
	return pp.compiler[name]
}

// defineFromFlag installs a -D style NAME or NAME=VALUE definition.
func (pp *Preprocessor) defineFromFlag(def string) {
	name, value, hasValue := strings.Cut(def, "=")
	if !hasValue {
		value = "1"
	}
	body := tokenizeFragment(value)
	pp.source[name] = &Macro{Name: name, Body: body}
}

// tokenizeFragment lexes a definition value that did not come from the
// source buffer (CLI -D flags).
func tokenizeFragment(text string) []token.Token {
	lx := newFragmentLexer(text)
	var ts []token.Token
	for {
		t := lx.Next()
		if t.Kind == token.EOF || t.Kind == token.Newline {
			return ts
		}
		ts = append(ts, t)
	}
}

// cloneAt copies a token, re-attributing it to the expansion site so that
// argument tokens may appear at several output positions without aliasing.
func cloneAt(t token.Token, at origin.Origin) token.Token {
	t.Origin = at
	return t
}

func cloneListAt(ts []token.Token, at origin.Origin) []token.Token {
	out := make([]token.Token, len(ts))
	for i, t := range ts {
		out[i] = cloneAt(t, at)
	}
	return out
}

// maybeExpand decides whether the identifier token starts a macro expansion.
// Function-like macros require the next significant token to be `(`; the
// lookahead is pushed back verbatim when it is not. The returned tokens are
// fully expanded and must not be rescanned.
func (pp *Preprocessor) maybeExpand(t token.Token) ([]token.Token, bool) {
	if pp.opts.DisableExpansion {
		return nil, false
	}
	m := pp.lookupMacro(t.Lexeme)
	if m == nil {
		return nil, false
	}
	if m.builtin != nil {
		return m.builtin(pp, t), true
	}
	hide := collections.Set[string]{}
	if !m.IsFunction {
		return pp.expandMacro(m, nil, t, hide), true
	}

	var skipped []token.Token
	next := pp.pull()
	for next.Kind == token.Newline {
		skipped = append(skipped, next)
		next = pp.pull()
	}
	if !next.IsOp("(") {
		pp.pushBack(append(skipped, next)...)
		return nil, false
	}
	args, ok := pp.collectCallArgs(t)
	if !ok {
		return nil, false
	}
	return pp.expandMacro(m, args, t, hide), true
}

// collectCallArgs reads the comma-separated argument token runs of a
// function-like macro call, respecting nested pairs. The opening `(` has
// already been consumed.
func (pp *Preprocessor) collectCallArgs(name token.Token) ([][]token.Token, bool) {
	var args [][]token.Token
	var current []token.Token
	depth := 0
	for {
		t := pp.pull()
		switch {
		case t.Kind == token.EOF:
			diag.Errorf(pp.sink, name.Origin, "unterminated call of macro %q", name.Lexeme)
			return nil, false
		case t.Kind == token.Newline:
			// Newlines inside an invocation are whitespace.
		case t.HasCode(token.PairStart):
			depth++
			current = append(current, t)
		case t.HasCode(token.PairEnd):
			if depth == 0 {
				if !t.IsOp(")") {
					diag.Errorf(pp.sink, t.Origin, "mismatched %q in macro arguments", t.Lexeme)
					return nil, false
				}
				args = append(args, current)
				if len(args) == 1 && len(args[0]) == 0 {
					args = nil // zero-argument call
				}
				return args, true
			}
			depth--
			current = append(current, t)
		case depth == 0 && t.IsOp(","):
			args = append(args, current)
			current = nil
		default:
			current = append(current, t)
		}
	}
}

// paramIndex maps a parameter name to its argument position, or -1.
// __VA_ARGS__ is not a parameter here; argTokens resolves it to the trailing
// arguments of a variadic macro.
func (m *Macro) paramIndex(name string) int {
	return slices.Index(m.Params, name)
}

func (m *Macro) argTokens(args [][]token.Token, name string) ([]token.Token, bool) {
	if i := m.paramIndex(name); i >= 0 {
		if i < len(args) {
			return args[i], true
		}
		return nil, true
	}
	if m.Variadic && name == "__VA_ARGS__" {
		var out []token.Token
		for i := len(m.Params); i < len(args); i++ {
			if i > len(m.Params) {
				out = append(out, token.Token{Kind: token.Operator, Lexeme: ",", Op: token.Lookup(",")})
			}
			out = append(out, args[i]...)
		}
		return out, true
	}
	return nil, false
}

// expandMacro substitutes parameters into the body, applies # and ##, and
// rescans the result. The macro's own name is hidden during the rescan so a
// macro is never expanded recursively on itself.
func (pp *Preprocessor) expandMacro(m *Macro, args [][]token.Token, use token.Token, hide collections.Set[string]) []token.Token {
	at := use.Origin

	if len(args) < len(m.Params) {
		diag.Errorf(pp.sink, at, "macro %q expects %d arguments, got %d", m.Name, len(m.Params), len(args))
		return nil
	}

	var subst []token.Token
	body := m.Body
	for i := 0; i < len(body); i++ {
		t := body[i]

		// Stringize: # param
		if t.IsOp("#") && i+1 < len(body) && body[i+1].Kind == token.Identifier {
			if raw, isParam := m.argTokens(args, body[i+1].Lexeme); isParam {
				subst = append(subst, stringize(raw, at))
				i++
				continue
			}
		}

		// Token paste: the ## joins the last output token with the first
		// token of the next substitution.
		if t.IsOp("##") {
			if len(subst) == 0 || i+1 >= len(body) {
				diag.Errorf(pp.sink, at, "'##' at the edge of the body of macro %q", m.Name)
				continue
			}
			i++
			rhs := []token.Token{body[i]}
			if raw, isParam := m.argTokens(args, body[i].Lexeme); isParam {
				rhs = raw
			}
			if len(rhs) == 0 {
				continue
			}
			glued, ok := pp.paste(subst[len(subst)-1], rhs[0], at)
			if ok {
				subst[len(subst)-1] = glued
			}
			subst = append(subst, cloneListAt(rhs[1:], at)...)
			continue
		}

		if t.Kind == token.Identifier {
			if raw, isParam := m.argTokens(args, t.Lexeme); isParam {
				// An argument pasted by a following ## stays raw;
				// otherwise it is fully expanded before insertion.
				if i+1 < len(body) && body[i+1].IsOp("##") {
					subst = append(subst, cloneListAt(raw, at)...)
				} else {
					subst = append(subst, pp.expandList(cloneListAt(raw, at), hide)...)
				}
				continue
			}
		}
		subst = append(subst, cloneAt(t, at))
	}

	rescanHide := collections.Set[string]{}.AddSeq(hide.All()).Add(m.Name)
	return pp.expandList(subst, rescanHide)
}

// expandList rescans a token list, expanding macros not in the hide set.
// Function-like invocations must be complete within the list.
func (pp *Preprocessor) expandList(ts []token.Token, hide collections.Set[string]) []token.Token {
	var out []token.Token
	for i := 0; i < len(ts); i++ {
		t := ts[i]
		if t.Kind != token.Identifier || hide.Contains(t.Lexeme) {
			out = append(out, t)
			continue
		}
		m := pp.lookupMacro(t.Lexeme)
		if m == nil {
			out = append(out, t)
			continue
		}
		if m.builtin != nil {
			out = append(out, m.builtin(pp, t)...)
			continue
		}
		if !m.IsFunction {
			out = append(out, pp.expandMacro(m, nil, t, hide)...)
			continue
		}
		// Function-like: the call must start right here in the list.
		if i+1 >= len(ts) || !ts[i+1].IsOp("(") {
			out = append(out, t)
			continue
		}
		args, consumed, ok := splitArgList(ts[i+2:])
		if !ok {
			out = append(out, t)
			continue
		}
		out = append(out, pp.expandMacro(m, args, t, hide)...)
		i += 1 + consumed
	}
	return out
}

// splitArgList splits `a, b, c)` prefix of ts into argument runs. Returns
// the runs and how many tokens were consumed including the closing paren.
func splitArgList(ts []token.Token) ([][]token.Token, int, bool) {
	var args [][]token.Token
	var current []token.Token
	depth := 0
	for i, t := range ts {
		switch {
		case t.HasCode(token.PairStart):
			depth++
			current = append(current, t)
		case t.HasCode(token.PairEnd):
			if depth == 0 {
				if !t.IsOp(")") {
					return nil, 0, false
				}
				args = append(args, current)
				if len(args) == 1 && len(args[0]) == 0 {
					args = nil
				}
				return args, i + 1, true
			}
			depth--
			current = append(current, t)
		case depth == 0 && t.IsOp(","):
			args = append(args, current)
			current = nil
		case t.Kind == token.Newline:
		default:
			current = append(current, t)
		}
	}
	return nil, 0, false
}

// stringize renders argument tokens as a C string literal, single spaces
// between tokens.
func stringize(ts []token.Token, at origin.Origin) token.Token {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return token.Token{
		Kind:   token.String,
		Origin: at,
		Lexeme: strconv.Quote(strings.Join(parts, " ")),
	}
}

// paste glues two tokens into one and classifies the result.
func (pp *Preprocessor) paste(l, r token.Token, at origin.Origin) (token.Token, bool) {
	glued := l.Lexeme + r.Lexeme
	ts := tokenizeFragment(glued)
	if len(ts) != 1 {
		diag.Errorf(pp.sink, at, "pasting %q and %q does not give a valid token", l.Lexeme, r.Lexeme)
		return token.Token{}, false
	}
	out := ts[0]
	out.Origin = at
	return out, true
}
