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

// Package lexer turns a UTF-8 byte buffer into a lazy stream of tokens. It
// recognizes, in order of precedence: whitespace and line continuations,
// comments (consumed, but they still advance the origin), character and
// string literals with C escapes and encoding prefixes, numeric primitives,
// identifiers (OKL attributes like `@outer0` are a single identifier token),
// and multi-character operators by longest match against the operator table.
//
// A newline token is emitted at every logical line break so the preprocessor
// can detect directive boundaries. PushSource saves the current read state
// and reads from a new buffer until its EOF, which is how `#include` splices
// files in.
package lexer

import (
	"strings"

	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/internal/origin"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

type frame struct {
	path   string
	data   string
	cursor origin.Cursor

	// #line adjustments, applied when reporting origins.
	lineOffset   int
	pathOverride string
}

func (f *frame) reportedPath() string {
	if f.pathOverride != "" {
		return f.pathOverride
	}
	return f.path
}

func (f *frame) originAt(cursor origin.Cursor, text string) origin.Origin {
	o := cursor.Spanning(f.reportedPath(), text)
	o.Line += f.lineOffset
	return o
}

// Lexer is the translator's tokenizer. It is not safe for concurrent use.
type Lexer struct {
	frames     []*frame
	sink       diag.Sink
	headerMode bool
	failed     bool
}

// New returns a Lexer reading from data, attributing origins to path.
func New(path string, data []byte, sink diag.Sink) *Lexer {
	return &Lexer{
		frames: []*frame{{path: path, data: string(data), cursor: origin.CursorInit}},
		sink:   sink,
	}
}

// PushSource saves the current read state and starts reading from a new
// buffer. At its EOF the lexer returns to the saved state. Used by #include.
func (lx *Lexer) PushSource(path string, data []byte) {
	lx.frames = append(lx.frames, &frame{path: path, data: string(data), cursor: origin.CursorInit})
}

// SetHeaderMode toggles header-name tokenization. While enabled, `<...>`
// spans are returned as Header tokens; quoted names still arrive as String
// tokens. The preprocessor enables it only while scanning an #include line.
func (lx *Lexer) SetHeaderMode(on bool) { lx.headerMode = on }

// OverrideOrigin implements #line: tokens on the current (not yet consumed)
// physical line of this file report the given line number and, when path is
// non-empty, the given file name. The preprocessor calls it after consuming
// the directive's newline, so the line following `#line N` reports N.
func (lx *Lexer) OverrideOrigin(line int, path string) {
	f := lx.top()
	if f == nil {
		return
	}
	f.lineOffset = line - f.cursor.Line
	if path != "" {
		f.pathOverride = path
	}
}

// Origin returns the position the next token will start at.
func (lx *Lexer) Origin() origin.Origin {
	f := lx.top()
	if f == nil {
		return origin.Origin{}
	}
	return f.originAt(f.cursor, "")
}

// CurrentPath returns the logical path of the file being read, #line
// overrides applied. The preprocessor uses it for __FILE__ and for resolving
// quoted includes relative to the including file.
func (lx *Lexer) CurrentPath() string {
	if f := lx.top(); f != nil {
		return f.reportedPath()
	}
	return ""
}

// IncludedPath returns the on-disk path of the file being read, ignoring
// #line overrides.
func (lx *Lexer) IncludedPath() string {
	if f := lx.top(); f != nil {
		return f.path
	}
	return ""
}

func (lx *Lexer) top() *frame {
	if len(lx.frames) == 0 {
		return nil
	}
	return lx.frames[len(lx.frames)-1]
}

func (f *frame) rest() string { return f.data[f.cursor.Offset:] }

// consume advances the cursor past text and returns the origin it covered.
func (f *frame) consume(text string) origin.Origin {
	o := f.originAt(f.cursor, text)
	f.cursor = f.cursor.AdvancedBy(text)
	return o
}

func (lx *Lexer) fatalf(at origin.Origin, format string, args ...any) token.Token {
	diag.Fatalf(lx.sink, at, format, args...)
	lx.failed = true
	return token.Token{Kind: token.EOF, Origin: at}
}

func isIdentStart(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func isIdentByte(b byte) bool {
	return isIdentStart(b) || isDigit(b)
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

func identLength(data string) int {
	n := 0
	for n < len(data) && isIdentByte(data[n]) {
		n++
	}
	return n
}

// skipBlanks consumes whitespace (except newlines), comments and line
// continuations. Returns false on an unterminated block comment.
func (lx *Lexer) skipBlanks(f *frame) bool {
	for {
		rest := f.rest()
		switch {
		case rest == "":
			return true
		case rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\v' || rest[0] == '\f' || rest[0] == '\r':
			n := 1
			for n < len(rest) && strings.ContainsRune(" \t\v\f\r", rune(rest[n])) {
				n++
			}
			f.consume(rest[:n])
		case strings.HasPrefix(rest, "\\\n"):
			f.consume(rest[:2])
		case strings.HasPrefix(rest, "//"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}
			f.consume(rest[:end]) // the newline still becomes a token
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest, "*/")
			if end < 0 {
				lx.fatalf(f.originAt(f.cursor, rest[:2]), "unterminated block comment")
				return false
			}
			f.consume(rest[:end+2])
		default:
			return true
		}
	}
}

// Next returns the next token. After the last token of the outermost source
// (or after a fatal lex error) it returns EOF tokens forever.
func (lx *Lexer) Next() token.Token {
	for {
		f := lx.top()
		if f == nil || lx.failed {
			return token.Token{Kind: token.EOF, Origin: lx.Origin()}
		}
		if !lx.skipBlanks(f) {
			continue
		}
		rest := f.rest()
		if rest == "" {
			if len(lx.frames) == 1 {
				return token.Token{Kind: token.EOF, Origin: lx.Origin()}
			}
			// End of an included file: restore the outer state. The
			// synthetic newline keeps directives from spanning files.
			at := f.originAt(f.cursor, "")
			lx.frames = lx.frames[:len(lx.frames)-1]
			return token.Token{Kind: token.Newline, Origin: at, Lexeme: "\n"}
		}

		switch b := rest[0]; {
		case b == '\n':
			return token.Token{Kind: token.Newline, Origin: f.consume(rest[:1]), Lexeme: "\n"}

		case lx.headerMode && b == '<':
			return lx.scanHeader(f, rest)

		case b == '"' || b == '\'':
			return lx.scanLiteral(f, rest, "")

		case isDigit(b) || (b == '.' && len(rest) > 1 && isDigit(rest[1])):
			return lx.scanNumber(f, rest)

		case isIdentStart(b):
			n := identLength(rest)
			name := rest[:n]
			// Literal encoding prefixes stick to the literal that
			// follows them.
			if n < len(rest) && (rest[n] == '"' || rest[n] == '\'') {
				switch name {
				case "u8", "u", "U", "L":
					f.consume(name)
					return lx.scanLiteral(f, f.rest(), name)
				}
			}
			return token.Token{Kind: token.Identifier, Origin: f.consume(name), Lexeme: name}

		case b == '@':
			if n := identLength(rest[1:]); n > 0 {
				name := rest[:1+n]
				return token.Token{Kind: token.Identifier, Origin: f.consume(name), Lexeme: name}
			}
			return lx.fatalf(f.originAt(f.cursor, rest[:1]), "stray '@' in program")

		default:
			if op := token.Match(rest); op != nil {
				return token.Token{Kind: token.Operator, Origin: f.consume(op.Lexeme), Lexeme: op.Lexeme, Op: op}
			}
			return lx.fatalf(f.originAt(f.cursor, rest[:1]), "stray %q in program", rest[0])
		}
	}
}

// scanHeader reads a `<path>` header-name. Quoted headers reach the
// preprocessor as regular string tokens.
func (lx *Lexer) scanHeader(f *frame, rest string) token.Token {
	end := strings.IndexAny(rest, ">\n")
	if end < 0 || rest[end] != '>' {
		return lx.fatalf(f.originAt(f.cursor, rest[:1]), "unterminated header name")
	}
	full := rest[:end+1]
	return token.Token{
		Kind:         token.Header,
		Origin:       f.consume(full),
		Lexeme:       full[1 : len(full)-1],
		SystemHeader: true,
	}
}

// scanLiteral reads a string or character literal, honoring C escape
// sequences and escaped-newline splices.
func (lx *Lexer) scanLiteral(f *frame, rest string, encoding string) token.Token {
	quote := rest[0]
	i := 1
	for i < len(rest) {
		switch rest[i] {
		case '\\':
			if i+1 >= len(rest) {
				i = len(rest)
				continue
			}
			i += 2
		case '\n':
			i = len(rest)
		case quote:
			lexeme := rest[:i+1]
			kind := token.String
			if quote == '\'' {
				kind = token.Char
			}
			return token.Token{Kind: kind, Origin: f.consume(lexeme), Lexeme: lexeme, Encoding: encoding}
		default:
			i++
		}
	}
	what := "string"
	if quote == '\'' {
		what = "character"
	}
	return lx.fatalf(f.originAt(f.cursor, rest[:1]), "unterminated %s literal", what)
}

// scanNumber reads an integer or floating-point literal, base prefix and
// suffix included. The lexeme keeps the exact spelling; numeric evaluation
// happens later and only where required.
func (lx *Lexer) scanNumber(f *frame, rest string) token.Token {
	i := 0
	isFloat := false

	digits := "0123456789"
	if strings.HasPrefix(rest, "0x") || strings.HasPrefix(rest, "0X") {
		i = 2
		digits = "0123456789abcdefABCDEF"
	} else if strings.HasPrefix(rest, "0b") || strings.HasPrefix(rest, "0B") {
		i = 2
		digits = "01"
	}

	for i < len(rest) {
		b := rest[i]
		switch {
		case strings.IndexByte(digits, b) >= 0:
			i++
		case b == '.' && digits[len(digits)-1] == '9' && !isFloat:
			isFloat = true
			i++
		case (b == 'e' || b == 'E') && digits[len(digits)-1] == '9':
			if i+1 < len(rest) && (isDigit(rest[i+1]) || ((rest[i+1] == '+' || rest[i+1] == '-') && i+2 < len(rest) && isDigit(rest[i+2]))) {
				isFloat = true
				i++
				if rest[i] == '+' || rest[i] == '-' {
					i++
				}
			} else {
				return lx.numberTail(f, rest, i)
			}
		default:
			return lx.numberTail(f, rest, i)
		}
	}
	return lx.numberTail(f, rest, i)
}

// numberTail validates and attaches the literal suffix.
func (lx *Lexer) numberTail(f *frame, rest string, i int) token.Token {
	suffixStart := i
	for i < len(rest) && strings.ContainsRune("uUlLfF", rune(rest[i])) {
		i++
	}
	if i < len(rest) && isIdentByte(rest[i]) {
		return lx.fatalf(f.originAt(f.cursor, rest[:i+1]), "invalid numeric literal suffix %q", rest[suffixStart:i+1])
	}
	lexeme := rest[:i]
	return token.Token{Kind: token.Primitive, Origin: f.consume(lexeme), Lexeme: lexeme}
}
