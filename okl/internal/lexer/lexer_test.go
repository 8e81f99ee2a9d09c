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

package lexer

import (
	"testing"

	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, input string) ([]token.Token, *diag.Collector) {
	t.Helper()
	sink := &diag.Collector{}
	lx := New("test.okl", []byte(input), sink)
	var tokens []token.Token
	for {
		tok := lx.Next()
		if tok.Kind == token.EOF {
			return tokens, sink
		}
		tokens = append(tokens, tok)
	}
}

func lexemes(tokens []token.Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.String()
	}
	return out
}

func TestBasicTokens(t *testing.T) {
	testCases := []struct {
		input    string
		expected []string
	}{
		{"int a;", []string{"int", "a", ";"}},
		{"a+b", []string{"a", "+", "b"}},
		{"a += b", []string{"a", "+=", "b"}},
		{"i <<= 1", []string{"i", "<<=", "1"}},
		{"x<<<a, b>>>", []string{"x", "<<<", "a", ",", "b", ">>>"}},
		{"p->q.r", []string{"p", "->", "q", ".", "r"}},
		{"@kernel void f()", []string{"@kernel", "void", "f", "(", ")"}},
		{"for(int i=0;i<N;++i; @outer0)", []string{
			"for", "(", "int", "i", "=", "0", ";", "i", "<", "N", ";", "++", "i", ";", "@outer0", ")"}},
		{"a # ## b", []string{"a", "#", "##", "b"}},
		{"x...y", []string{"x", "...", "y"}},
	}
	for _, tc := range testCases {
		tokens, sink := lexAll(t, tc.input)
		assert.Zero(t, sink.Errors(), "input %q", tc.input)
		assert.Equal(t, tc.expected, lexemes(tokens), "input %q", tc.input)
	}
}

func TestLiterals(t *testing.T) {
	testCases := []struct {
		input    string
		kind     token.Kind
		lexeme   string
		encoding string
	}{
		{`"ab c"`, token.String, `"ab c"`, ""},
		{`"a\"b"`, token.String, `"a\"b"`, ""},
		{`u8"x"`, token.String, `"x"`, "u8"},
		{`L'x'`, token.Char, `'x'`, "L"},
		{`'\n'`, token.Char, `'\n'`, ""},
		{"42", token.Primitive, "42", ""},
		{"0x1F", token.Primitive, "0x1F", ""},
		{"0b101", token.Primitive, "0b101", ""},
		{"10ull", token.Primitive, "10ull", ""},
		{"1.5e-3f", token.Primitive, "1.5e-3f", ""},
		{".25", token.Primitive, ".25", ""},
	}
	for _, tc := range testCases {
		tokens, sink := lexAll(t, tc.input)
		require.Zero(t, sink.Errors(), "input %q", tc.input)
		require.Len(t, tokens, 1, "input %q", tc.input)
		assert.Equal(t, tc.kind, tokens[0].Kind, "input %q", tc.input)
		assert.Equal(t, tc.lexeme, tokens[0].Lexeme, "input %q", tc.input)
		assert.Equal(t, tc.encoding, tokens[0].Encoding, "input %q", tc.input)
	}
}

func TestNewlinesAndComments(t *testing.T) {
	tokens, sink := lexAll(t, "a // trailing\nb /* inline */ c\n/* multi\nline */ d")
	assert.Zero(t, sink.Errors())
	assert.Equal(t, []string{"a", "\\n", "b", "c", "\\n", "d"}, lexemes(tokens))
}

func TestLineContinuation(t *testing.T) {
	tokens, sink := lexAll(t, "ab \\\ncd")
	assert.Zero(t, sink.Errors())
	// The continuation joins the physical lines: no newline token.
	assert.Equal(t, []string{"ab", "cd"}, lexemes(tokens))
}

func TestOrigins(t *testing.T) {
	tokens, _ := lexAll(t, "a\n  b")
	require.Len(t, tokens, 3)
	assert.Equal(t, "test.okl:1:1", tokens[0].Origin.String())
	assert.Equal(t, "test.okl:2:3", tokens[2].Origin.String())
}

func TestLexFailures(t *testing.T) {
	testCases := []struct {
		input   string
		message string
	}{
		{`"abc`, "unterminated string literal"},
		{`'a`, "unterminated character literal"},
		{"/* abc", "unterminated block comment"},
		{"1.5q", "invalid numeric literal suffix"},
		{"a $ b", "stray"},
	}
	for _, tc := range testCases {
		_, sink := lexAll(t, tc.input)
		require.NotZero(t, sink.Errors(), "input %q", tc.input)
		assert.Contains(t, sink.Diagnostics[0].Message, tc.message, "input %q", tc.input)
	}
}

func TestPushSource(t *testing.T) {
	sink := &diag.Collector{}
	lx := New("outer.okl", []byte("a b"), sink)

	tok := lx.Next()
	assert.Equal(t, "a", tok.Lexeme)

	lx.PushSource("inner.okl", []byte("x"))
	tok = lx.Next()
	assert.Equal(t, "x", tok.Lexeme)
	assert.Equal(t, "inner.okl:1:1", tok.Origin.String())

	// End of the include produces a synthetic newline, then the outer
	// source resumes.
	assert.Equal(t, token.Newline, lx.Next().Kind)
	tok = lx.Next()
	assert.Equal(t, "b", tok.Lexeme)
	assert.Equal(t, "outer.okl", tok.Origin.Path)
}

func TestOverrideOrigin(t *testing.T) {
	sink := &diag.Collector{}
	lx := New("a.okl", []byte("x\ny"), sink)
	assert.Equal(t, "x", lx.Next().Lexeme)
	assert.Equal(t, token.Newline, lx.Next().Kind)
	lx.OverrideOrigin(100, "other.c")
	tok := lx.Next()
	assert.Equal(t, "other.c:100:1", tok.Origin.String())
}

func TestHeaderMode(t *testing.T) {
	sink := &diag.Collector{}
	lx := New("a.okl", []byte("<occa/base.h>"), sink)
	lx.SetHeaderMode(true)
	tok := lx.Next()
	assert.Equal(t, token.Header, tok.Kind)
	assert.Equal(t, "occa/base.h", tok.Lexeme)
	assert.True(t, tok.SystemHeader)
}
