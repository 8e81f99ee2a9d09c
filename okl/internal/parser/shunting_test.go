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
	"testing"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexFragment tokenizes one expression region for tests.
func lexFragment(t *testing.T, input string) []token.Token {
	t.Helper()
	sink := &diag.Collector{}
	lx := lexer.New("expr.okl", []byte(input), sink)
	var ts []token.Token
	for {
		tok := lx.Next()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Kind != token.Newline {
			ts = append(ts, tok)
		}
	}
	require.Zero(t, sink.Errors(), "lexing %q", input)
	return ts
}

func parseExprString(t *testing.T, input string) (*ast.Node, *diag.Collector) {
	t.Helper()
	sink := &diag.Collector{}
	node, err := ParseExpr(lexFragment(t, input), dialect.C(), sink)
	if err != nil {
		return nil, sink
	}
	return node, sink
}

func TestExpressionRoundTrip(t *testing.T) {
	// The printer normalizes spacing, so these inputs are already in
	// conventional C style and must survive parse → print untouched.
	testCases := []string{
		"a + b * c",
		"(a + b) * c",
		"a = b = c",
		"c[i] = a[i] + b[i]",
		"f(a, b)",
		"f()",
		"g(f(x), 1)",
		"a.b->c",
		"x ? y : z",
		"a && b || !c",
		"-x + +y",
		"*p = &v",
		"i++",
		"++i",
		"a % 3 == 0",
		"x << 2 | y >> 1",
		"s::t",
		"sizeof(x)",
		"a[i][j]",
		"kernel<<<blocks, threads>>>(x)",
		"(int) x",
		"(const float *) p",
		"throw err",
		"new T",
	}
	for _, input := range testCases {
		node, sink := parseExprString(t, input)
		require.NotNil(t, node, "input %q", input)
		assert.Zero(t, sink.Errors(), "input %q", input)
		assert.Equal(t, input, node.String(), "input %q", input)
	}
}

func TestExpressionShapes(t *testing.T) {
	node, _ := parseExprString(t, "a + b * c")
	require.Equal(t, ast.Binary, node.Kind)
	assert.Equal(t, "+", node.Op.Lexeme)
	assert.Equal(t, ast.Binary, node.Right().Kind)
	assert.Equal(t, "*", node.Right().Op.Lexeme)

	node, _ = parseExprString(t, "c[i] = a[i] + b[i]")
	require.Equal(t, ast.Binary, node.Kind)
	assert.Equal(t, "=", node.Op.Lexeme)
	assert.Equal(t, ast.Subscript, node.Left().Kind)

	node, _ = parseExprString(t, "f(a, b)")
	require.Equal(t, ast.Call, node.Kind)
	require.Len(t, node.Children, 3)
	assert.Equal(t, "f", node.Left().Lexeme)

	node, _ = parseExprString(t, "kernel<<<g, b>>>(x)")
	require.Equal(t, ast.Call, node.Kind)
	assert.Equal(t, ast.CudaCall, node.Left().Kind)

	node, _ = parseExprString(t, "(int) x")
	require.Equal(t, ast.Cast, node.Kind)
	assert.Equal(t, "int", node.Type.Name)

	node, _ = parseExprString(t, "")
	assert.Equal(t, ast.Empty, node.Kind)
}

func TestAmbiguousOperators(t *testing.T) {
	// (prev, next) decide the arity of + - * & and ++ --.
	testCases := []struct {
		input string
		kind  ast.Kind
	}{
		{"-x", ast.LeftUnary},
		{"a - x", ast.Binary},
		{"*p", ast.LeftUnary},
		{"a * p", ast.Binary},
		{"&v", ast.LeftUnary},
		{"a & v", ast.Binary},
		{"++i", ast.LeftUnary},
		{"i++", ast.RightUnary},
	}
	for _, tc := range testCases {
		node, sink := parseExprString(t, tc.input)
		require.NotNil(t, node, "input %q", tc.input)
		require.Zero(t, sink.Errors(), "input %q", tc.input)
		assert.Equal(t, tc.kind, node.Kind, "input %q", tc.input)
	}
}

func TestExpressionErrors(t *testing.T) {
	testCases := []struct {
		input   string
		message string
	}{
		{"x ++ ++ y", "ambiguous"},
		{"(a + b", "unbalanced"},
		{"a + b)", "unbalanced"},
		{"a +", "missing operands"},
		{"x ? y", "without matching"},
		{"a : b", "outside of a ternary"},
	}
	for _, tc := range testCases {
		sink := &diag.Collector{}
		_, err := ParseExpr(lexFragment(t, tc.input), dialect.C(), sink)
		require.Error(t, err, "input %q", tc.input)
		require.NotZero(t, sink.Errors(), "input %q", tc.input)
		assert.Contains(t, sink.Diagnostics[0].Message, tc.message, "input %q", tc.input)
	}
}

func TestErrorsCarryOrigins(t *testing.T) {
	sink := &diag.Collector{}
	_, err := ParseExpr(lexFragment(t, "x ++ ++ y"), dialect.C(), sink)
	require.Error(t, err)
	assert.Equal(t, "expr.okl:1:6", sink.Diagnostics[0].Origin.String())
}
