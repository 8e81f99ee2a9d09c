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

package token

import (
	"slices"
	"strings"
)

// Code is a bit set describing what an operator can be. Bits are disjoint
// within a category (arity, pairing, lexical class) and OR-able across
// categories; `-` for example carries Binary|LeftUnary|Minus|Ambiguous until
// the expression parser resolves its final arity.
type Code uint32

const (
	LeftUnary Code = 1 << iota
	RightUnary
	Binary
	Ternary
	Assignment
	PairStart
	PairEnd
	Comma
	Scope
	Member
	Increment
	Decrement
	Plus
	Minus
	Asterisk
	Ampersand
	Ambiguous
	Preprocessor
	Colon
	Semicolon
	CudaPair
)

// Expression-operator precedence levels, higher binds tighter. Values follow
// the C grammar; the two unary levels are used once the parser has resolved
// an ambiguous operator.
const (
	PrecNone           = 0
	PrecComma          = 1
	PrecAssignment     = 2
	PrecTernary        = 3
	PrecLogicalOr      = 4
	PrecLogicalAnd     = 5
	PrecBitOr          = 6
	PrecBitXor         = 7
	PrecBitAnd         = 8
	PrecEquality       = 9
	PrecRelational     = 10
	PrecShift          = 11
	PrecAdditive       = 12
	PrecMultiplicative = 13
	PrecUnary          = 14
	PrecPostfix        = 15
	PrecMember         = 16
	PrecScope          = 17
)

// Op describes one operator: its spelling, its capability bits, the binary
// (or only) precedence and associativity, and for pair operators the lexeme
// of the matching end.
type Op struct {
	Lexeme     string
	Code       Code
	Prec       int
	RightAssoc bool
	Pair       string
}

// Is reports whether the descriptor carries any of the given code bits.
func (op *Op) Is(code Code) bool { return op != nil && op.Code&code != 0 }

var table = []*Op{
	{Lexeme: "::", Code: Scope | Binary, Prec: PrecScope},

	{Lexeme: ".", Code: Member | Binary, Prec: PrecMember},
	{Lexeme: "->", Code: Member | Binary, Prec: PrecMember},
	{Lexeme: ".*", Code: Member | Binary, Prec: PrecMember},
	{Lexeme: "->*", Code: Member | Binary, Prec: PrecMember},

	{Lexeme: "++", Code: Increment | LeftUnary | RightUnary | Ambiguous, Prec: PrecPostfix},
	{Lexeme: "--", Code: Decrement | LeftUnary | RightUnary | Ambiguous, Prec: PrecPostfix},

	{Lexeme: "+", Code: Plus | Binary | LeftUnary | Ambiguous, Prec: PrecAdditive},
	{Lexeme: "-", Code: Minus | Binary | LeftUnary | Ambiguous, Prec: PrecAdditive},
	{Lexeme: "*", Code: Asterisk | Binary | LeftUnary | Ambiguous, Prec: PrecMultiplicative},
	{Lexeme: "&", Code: Ampersand | Binary | LeftUnary | Ambiguous, Prec: PrecBitAnd},

	{Lexeme: "!", Code: LeftUnary, Prec: PrecUnary, RightAssoc: true},
	{Lexeme: "~", Code: LeftUnary, Prec: PrecUnary, RightAssoc: true},

	{Lexeme: "/", Code: Binary, Prec: PrecMultiplicative},
	{Lexeme: "%", Code: Binary, Prec: PrecMultiplicative},

	{Lexeme: "<<", Code: Binary, Prec: PrecShift},
	{Lexeme: ">>", Code: Binary, Prec: PrecShift},

	{Lexeme: "<", Code: Binary, Prec: PrecRelational},
	{Lexeme: "<=", Code: Binary, Prec: PrecRelational},
	{Lexeme: ">", Code: Binary, Prec: PrecRelational},
	{Lexeme: ">=", Code: Binary, Prec: PrecRelational},

	{Lexeme: "==", Code: Binary, Prec: PrecEquality},
	{Lexeme: "!=", Code: Binary, Prec: PrecEquality},

	{Lexeme: "^", Code: Binary, Prec: PrecBitXor},
	{Lexeme: "|", Code: Binary, Prec: PrecBitOr},
	{Lexeme: "&&", Code: Binary, Prec: PrecLogicalAnd},
	{Lexeme: "||", Code: Binary, Prec: PrecLogicalOr},

	{Lexeme: "?", Code: Ternary, Prec: PrecTernary, RightAssoc: true},
	{Lexeme: ":", Code: Colon | Ternary, Prec: PrecTernary, RightAssoc: true},

	{Lexeme: "=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "+=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "-=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "*=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "/=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "%=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "<<=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: ">>=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "&=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "^=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},
	{Lexeme: "|=", Code: Assignment | Binary, Prec: PrecAssignment, RightAssoc: true},

	{Lexeme: ",", Code: Comma | Binary, Prec: PrecComma},
	{Lexeme: ";", Code: Semicolon},

	{Lexeme: "(", Code: PairStart, Pair: ")"},
	{Lexeme: ")", Code: PairEnd, Pair: "("},
	{Lexeme: "[", Code: PairStart, Pair: "]"},
	{Lexeme: "]", Code: PairEnd, Pair: "["},
	{Lexeme: "{", Code: PairStart, Pair: "}"},
	{Lexeme: "}", Code: PairEnd, Pair: "{"},
	{Lexeme: "<<<", Code: PairStart | CudaPair, Pair: ">>>"},
	{Lexeme: ">>>", Code: PairEnd | CudaPair, Pair: "<<<"},

	{Lexeme: "#", Code: Preprocessor | LeftUnary},
	{Lexeme: "##", Code: Preprocessor | Binary},

	{Lexeme: "..."},
}

// Unary variants of the ambiguous operators. Once the expression parser has
// decided an arity, it swaps the table descriptor for one of these so the
// chosen precedence and code stick.
var unaryTable = map[string][2]*Op{
	// [left-unary (prefix), right-unary (postfix)]
	"+":  {{Lexeme: "+", Code: Plus | LeftUnary, Prec: PrecUnary, RightAssoc: true}, nil},
	"-":  {{Lexeme: "-", Code: Minus | LeftUnary, Prec: PrecUnary, RightAssoc: true}, nil},
	"*":  {{Lexeme: "*", Code: Asterisk | LeftUnary, Prec: PrecUnary, RightAssoc: true}, nil},
	"&":  {{Lexeme: "&", Code: Ampersand | LeftUnary, Prec: PrecUnary, RightAssoc: true}, nil},
	"++": {{Lexeme: "++", Code: Increment | LeftUnary, Prec: PrecUnary, RightAssoc: true}, {Lexeme: "++", Code: Increment | RightUnary, Prec: PrecPostfix}},
	"--": {{Lexeme: "--", Code: Decrement | LeftUnary, Prec: PrecUnary, RightAssoc: true}, {Lexeme: "--", Code: Decrement | RightUnary, Prec: PrecPostfix}},
}

var (
	byLexeme = map[string]*Op{}
	// Operator lexemes ordered longest first so the tokenizer can take the
	// longest match.
	byLength []*Op
)

func init() {
	for _, op := range table {
		byLexeme[op.Lexeme] = op
	}
	byLength = slices.Clone(table)
	slices.SortStableFunc(byLength, func(l, r *Op) int {
		return len(r.Lexeme) - len(l.Lexeme)
	})
}

// Lookup returns the descriptor for an operator lexeme, or nil when the
// lexeme is not an operator.
func Lookup(lexeme string) *Op {
	return byLexeme[lexeme]
}

// Match returns the longest operator that is a prefix of data, or nil.
func Match(data string) *Op {
	for _, op := range byLength {
		if strings.HasPrefix(data, op.Lexeme) {
			return op
		}
	}
	return nil
}

// LeftUnaryOf returns the prefix variant of an ambiguous operator, or nil if
// the operator has none.
func LeftUnaryOf(op *Op) *Op {
	if variants, ok := unaryTable[op.Lexeme]; ok {
		return variants[0]
	}
	return nil
}

// RightUnaryOf returns the postfix variant of an ambiguous operator, or nil
// if the operator has none.
func RightUnaryOf(op *Op) *Op {
	if variants, ok := unaryTable[op.Lexeme]; ok {
		return variants[1]
	}
	return nil
}
