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
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/EngFlow/okl_cc/internal/collections"
	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

type discardSink struct{}

func (discardSink) Report(diag.Diagnostic) {}

func newFragmentLexer(text string) *lexer.Lexer {
	return lexer.New("<definition>", []byte(text), discardSink{})
}

// handleDirective dispatches one `#` line. hash is the already-consumed `#`
// token. Malformed directives report and discard the rest of the line.
func (pp *Preprocessor) handleDirective(hash token.Token) {
	name := pp.pull()
	if name.Kind == token.Newline || name.Kind == token.EOF {
		// A lone '#' line is allowed and ignored.
		pp.atLineStart = true
		return
	}
	if name.Kind != token.Identifier {
		diag.Errorf(pp.sink, name.Origin, "expected a directive name after '#', found %s", name)
		pp.readLine()
		return
	}

	// While ignoring, only the conditional directives are interpreted.
	if !pp.reading() {
		switch name.Lexeme {
		case "if", "ifdef", "ifndef", "elif", "else", "endif":
		default:
			pp.readLine()
			return
		}
	}

	switch name.Lexeme {
	case "if":
		pp.directiveIf(hash)
	case "ifdef":
		pp.directiveIfdef(hash, false)
	case "ifndef":
		pp.directiveIfdef(hash, true)
	case "elif":
		pp.directiveElif(hash)
	case "else":
		pp.directiveElse(hash)
	case "endif":
		pp.directiveEndif(hash)
	case "define":
		pp.directiveDefine(hash)
	case "undef":
		pp.directiveUndef(hash)
	case "include":
		pp.directiveInclude(hash)
	case "pragma":
		pp.directivePragma(hash)
	case "line":
		pp.directiveLine(hash)
	case "error":
		line := pp.readLine()
		diag.Errorf(pp.sink, hash.Origin, "#error %s", renderTokens(line))
	case "warning":
		line := pp.readLine()
		diag.Warnf(pp.sink, hash.Origin, "#warning %s", renderTokens(line))
	default:
		diag.Errorf(pp.sink, name.Origin, "unknown preprocessor directive #%s", name.Lexeme)
		pp.readLine()
	}
}

func renderTokens(ts []token.Token) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// warnExtraTokens reports tokens trailing a directive that takes none.
func (pp *Preprocessor) warnExtraTokens(directive string, ts []token.Token) {
	if len(ts) > 0 {
		diag.Warnf(pp.sink, ts[0].Origin, "extra tokens after #%s", directive)
	}
}

func (pp *Preprocessor) directiveIf(hash token.Token) {
	line := pp.readLine()
	if !pp.reading() {
		// Nested in an ignored region: track depth, never activate.
		pp.stack = append(pp.stack, status{finishedIf: true, at: hash})
		return
	}
	value := pp.evalCondition(line, hash)
	pp.stack = append(pp.stack, status{reading: value, finishedIf: value, at: hash})
}

func (pp *Preprocessor) directiveIfdef(hash token.Token, negate bool) {
	line := pp.readLine()
	if !pp.reading() {
		pp.stack = append(pp.stack, status{finishedIf: true, at: hash})
		return
	}
	if len(line) == 0 || line[0].Kind != token.Identifier {
		diag.Errorf(pp.sink, hash.Origin, "expected an identifier after #ifdef/#ifndef")
		pp.stack = append(pp.stack, status{at: hash})
		return
	}
	pp.warnExtraTokens("ifdef", line[1:])
	value := pp.lookupMacro(line[0].Lexeme) != nil
	if negate {
		value = !value
	}
	pp.stack = append(pp.stack, status{reading: value, finishedIf: value, at: hash})
}

func (pp *Preprocessor) directiveElif(hash token.Token) {
	line := pp.readLine()
	if len(pp.stack) == 1 {
		diag.Errorf(pp.sink, hash.Origin, "#elif without a matching #if")
		return
	}
	top := &pp.stack[len(pp.stack)-1]
	if top.foundElse {
		diag.Errorf(pp.sink, hash.Origin, "#elif after #else")
		return
	}
	if !pp.parentReading() || top.finishedIf {
		top.reading = false
		return
	}
	value := pp.evalCondition(line, hash)
	top.reading = value
	top.finishedIf = value
}

func (pp *Preprocessor) directiveElse(hash token.Token) {
	line := pp.readLine()
	pp.warnExtraTokens("else", line)
	if len(pp.stack) == 1 {
		diag.Errorf(pp.sink, hash.Origin, "#else without a matching #if")
		return
	}
	top := &pp.stack[len(pp.stack)-1]
	if top.foundElse {
		diag.Errorf(pp.sink, hash.Origin, "#else after #else")
		return
	}
	top.foundElse = true
	top.reading = pp.parentReading() && !top.finishedIf
	top.finishedIf = true
}

func (pp *Preprocessor) directiveEndif(hash token.Token) {
	line := pp.readLine()
	pp.warnExtraTokens("endif", line)
	if len(pp.stack) == 1 {
		diag.Errorf(pp.sink, hash.Origin, "#endif without a matching #if")
		return
	}
	pp.stack = pp.stack[:len(pp.stack)-1]
}

// directiveDefine parses an object-like or function-like definition. A
// definition is function-like only when the `(` hugs the macro name.
func (pp *Preprocessor) directiveDefine(hash token.Token) {
	line := pp.readLine()
	if len(line) == 0 || line[0].Kind != token.Identifier {
		diag.Errorf(pp.sink, hash.Origin, "expected a macro name after #define")
		return
	}
	name := line[0]
	m := &Macro{Name: name.Lexeme}
	rest := line[1:]

	if len(rest) > 0 && rest[0].IsOp("(") &&
		rest[0].Origin.Start == name.Origin.End && rest[0].Origin.Path == name.Origin.Path {
		m.IsFunction = true
		i := 1
		for ; i < len(rest); i++ {
			t := rest[i]
			if t.IsOp(")") {
				i++
				break
			}
			switch {
			case t.Kind == token.Identifier:
				m.Params = append(m.Params, t.Lexeme)
			case t.IsOp(","):
			case t.IsOp("..."):
				m.Variadic = true
			default:
				diag.Errorf(pp.sink, t.Origin, "unexpected %s in macro parameter list", t)
				return
			}
		}
		m.Body = rest[i:]
	} else {
		m.Body = rest
	}

	if old := pp.source[m.Name]; old != nil && pp.opts.StrictRedefine {
		same := old.IsFunction == m.IsFunction && old.Variadic == m.Variadic &&
			slices.Equal(old.Params, m.Params) &&
			slices.EqualFunc(old.Body, m.Body, func(a, b token.Token) bool {
				return a.Kind == b.Kind && a.Lexeme == b.Lexeme && a.Encoding == b.Encoding
			})
		if !same {
			diag.Warnf(pp.sink, name.Origin, "macro %q redefined", m.Name)
		}
	}
	pp.source[m.Name] = m
}

func (pp *Preprocessor) directiveUndef(hash token.Token) {
	line := pp.readLine()
	if len(line) == 0 || line[0].Kind != token.Identifier {
		diag.Errorf(pp.sink, hash.Origin, "expected a macro name after #undef")
		return
	}
	pp.warnExtraTokens("undef", line[1:])
	delete(pp.source, line[0].Lexeme)
}

func (pp *Preprocessor) directivePragma(hash token.Token) {
	line := pp.readLine()
	pp.expandedOut = append(pp.expandedOut, token.Token{
		Kind:   token.Pragma,
		Origin: hash.Origin,
		Lexeme: renderTokens(line),
	})
}

func (pp *Preprocessor) directiveLine(hash token.Token) {
	line := pp.readLine()
	if len(line) == 0 || line[0].Kind != token.Primitive {
		diag.Errorf(pp.sink, hash.Origin, "expected a line number after #line")
		return
	}
	value, ok := ast.ParseNumber(line[0].Lexeme)
	if !ok || value.IsFloat {
		diag.Errorf(pp.sink, line[0].Origin, "invalid line number %q", line[0].Lexeme)
		return
	}
	path := ""
	if len(line) > 1 {
		if line[1].Kind != token.String {
			diag.Errorf(pp.sink, line[1].Origin, "expected a file name string after the #line number")
			return
		}
		path = strings.Trim(line[1].Lexeme, "\"")
	}
	pp.lx.OverrideOrigin(int(value.Int), path)
}

// directiveInclude resolves the header against the search path and splices
// the file in through the tokenizer's source stack. The include origin is
// restored automatically at the included file's EOF.
func (pp *Preprocessor) directiveInclude(hash token.Token) {
	pp.lx.SetHeaderMode(true)
	header := pp.pull()
	pp.lx.SetHeaderMode(false)

	var name string
	var system bool
	switch header.Kind {
	case token.Header:
		name, system = header.Lexeme, true
	case token.String:
		name = strings.Trim(header.Lexeme, "\"")
	default:
		diag.Errorf(pp.sink, header.Origin, "expected a header name after #include, found %s", header)
		pp.readLine()
		return
	}
	rest := pp.readLine()
	if len(rest) > 0 {
		diag.Warnf(pp.sink, rest[0].Origin, "extra tokens after #include")
	}

	path, found := pp.resolveInclude(name, system)
	if !found {
		diag.Errorf(pp.sink, header.Origin, "cannot find include file %q", name)
		return
	}
	if pp.opts.SkipIncludes {
		pp.deps.Add(path)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		diag.Errorf(pp.sink, header.Origin, "cannot read include file %q: %v", path, err)
		return
	}
	pp.deps.Add(path)
	pp.lx.PushSource(path, data)
}

// resolveInclude searches the include path for name. Quoted includes try the
// including file's directory first; search entries holding glob metacharacters
// match several directories via doublestar.
func (pp *Preprocessor) resolveInclude(name string, system bool) (string, bool) {
	var dirs []string
	if !system {
		dirs = append(dirs, filepath.Dir(pp.lx.IncludedPath()))
	}
	for _, entry := range pp.opts.IncludePaths {
		if strings.ContainsAny(entry, "*?[{") {
			matches, err := doublestar.FilepathGlob(entry)
			if err != nil {
				continue
			}
			dirs = append(dirs, matches...)
			continue
		}
		dirs = append(dirs, entry)
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// hasInclude implements __has_include for #if lines.
func (pp *Preprocessor) hasInclude(arg string) bool {
	arg = strings.TrimSpace(arg)
	system := strings.HasPrefix(arg, "<")
	name := strings.Trim(arg, "<>\"")
	_, found := pp.resolveInclude(name, system)
	return found
}

// evalCondition evaluates a #if/#elif condition: defined() and
// __has_include() resolve first (without expanding their operand), macros
// expand next, leftover identifiers become 0, and the expression parser
// folds the result. A non-constant condition is an error and reads as false.
func (pp *Preprocessor) evalCondition(line []token.Token, hash token.Token) bool {
	resolved := pp.resolveDefinedOperators(line)
	expanded := pp.expandList(resolved, collections.Set[string]{})

	// C semantics: any identifier surviving expansion evaluates to 0.
	for i, t := range expanded {
		if t.Kind == token.Identifier {
			value := "0"
			if t.Lexeme == "true" {
				value = "1"
			}
			expanded[i] = token.Token{Kind: token.Primitive, Origin: t.Origin, Lexeme: value}
		}
	}

	expr, err := parser.ParseExpr(expanded, pp.d, pp.sink)
	if err != nil {
		return false
	}
	value, ok := expr.Evaluate()
	if !ok {
		diag.Errorf(pp.sink, hash.Origin, "#if condition is not a compile-time constant")
		return false
	}
	return value.AsBool()
}

// resolveDefinedOperators rewrites `defined X`, `defined(X)` and
// `__has_include(...)` occurrences to 1/0 before macro expansion.
func (pp *Preprocessor) resolveDefinedOperators(line []token.Token) []token.Token {
	var out []token.Token
	for i := 0; i < len(line); i++ {
		t := line[i]
		switch {
		case t.IsIdent("defined"):
			name, consumed, ok := definedOperand(line[i+1:])
			if !ok {
				diag.Errorf(pp.sink, t.Origin, "expected an identifier after 'defined'")
				out = append(out, t)
				continue
			}
			value := "0"
			if pp.lookupMacro(name) != nil {
				value = "1"
			}
			out = append(out, token.Token{Kind: token.Primitive, Origin: t.Origin, Lexeme: value})
			i += consumed

		case t.IsIdent("__has_include"):
			if i+1 >= len(line) || !line[i+1].IsOp("(") {
				diag.Errorf(pp.sink, t.Origin, "expected '(' after '__has_include'")
				out = append(out, t)
				continue
			}
			depth := 0
			j := i + 1
			var parts []string
		scan:
			for ; j < len(line); j++ {
				switch {
				case line[j].HasCode(token.PairStart):
					depth++
					if depth > 1 {
						parts = append(parts, line[j].Lexeme)
					}
				case line[j].HasCode(token.PairEnd):
					depth--
					if depth == 0 {
						break scan
					}
					parts = append(parts, line[j].Lexeme)
				default:
					parts = append(parts, line[j].String())
				}
			}
			value := "0"
			if pp.hasInclude(strings.Join(parts, "")) {
				value = "1"
			}
			out = append(out, token.Token{Kind: token.Primitive, Origin: t.Origin, Lexeme: value})
			i = j

		default:
			out = append(out, t)
		}
	}
	return out
}

// definedOperand extracts X from `X` or `(X)`.
func definedOperand(ts []token.Token) (string, int, bool) {
	if len(ts) == 0 {
		return "", 0, false
	}
	if ts[0].Kind == token.Identifier {
		return ts[0].Lexeme, 1, true
	}
	if ts[0].IsOp("(") && len(ts) >= 3 && ts[1].Kind == token.Identifier && ts[2].IsOp(")") {
		return ts[1].Lexeme, 3, true
	}
	return "", 0, false
}
