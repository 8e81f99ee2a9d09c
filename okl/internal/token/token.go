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

// Package token defines the token variants produced by the tokenizer and the
// operator descriptor table shared by the lexer, the preprocessor and the
// expression parser. The table is built once at package initialization and is
// never mutated, so concurrent translator sessions can share it.
package token

import "github.com/EngFlow/okl_cc/internal/origin"

// Kind discriminates the token variants.
type Kind int

const (
	EOF Kind = iota

	// Identifier names: keywords, variables, types and OKL attribute
	// lexemes such as `@outer0` (the leading '@' is part of the lexeme).
	Identifier

	// Primitive is a numeric literal, integer or floating point, with its
	// base prefix and suffix still attached to the lexeme.
	Primitive

	// Char is a character literal including quotes; the encoding prefix is
	// stored separately, as for String.
	Char

	// String is a string literal including quotes; the encoding prefix is
	// stored separately so that macro stringizing can re-attach it.
	String

	// Operator is any entry of the operator table.
	Operator

	// Newline marks a logical line break. The preprocessor needs it to
	// delimit directives; the statement parser skips it.
	Newline

	// Pragma carries the body of a `#pragma` line.
	Pragma

	// Header is an include header-name, produced only while the tokenizer
	// is in header mode (within an `#include` directive).
	Header
)

// Token is one lexical element tagged with its origin. Tokens are owned by
// the stream that produced them; the preprocessor clones tokens when
// expanding macros so argument tokens may appear at several output positions
// without aliasing.
type Token struct {
	Kind   Kind
	Origin origin.Origin

	// Lexeme is the token text. For strings and chars it includes the
	// quotes but not the encoding prefix.
	Lexeme string

	// Op is the operator descriptor, set only for Operator tokens.
	Op *Op

	// Encoding is the literal encoding prefix (u8, u, U, L) of a string or
	// char token, empty for plain literals.
	Encoding string

	// SystemHeader is true for Header tokens spelled with angle brackets.
	SystemHeader bool
}

// IsOp reports whether the token is the operator with the given lexeme.
func (t Token) IsOp(lexeme string) bool {
	return t.Kind == Operator && t.Lexeme == lexeme
}

// HasCode reports whether the token is an operator carrying any of the given
// code bits.
func (t Token) HasCode(code Code) bool {
	return t.Kind == Operator && t.Op != nil && t.Op.Code&code != 0
}

// IsIdent reports whether the token is the identifier with the given name.
func (t Token) IsIdent(name string) bool {
	return t.Kind == Identifier && t.Lexeme == name
}

func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return "<eof>"
	case Newline:
		return "\\n"
	case String:
		return t.Encoding + t.Lexeme
	case Char:
		return t.Encoding + t.Lexeme
	case Header:
		if t.SystemHeader {
			return "<" + t.Lexeme + ">"
		}
		return "\"" + t.Lexeme + "\""
	default:
		return t.Lexeme
	}
}
