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

package ast

import (
	"testing"

	"github.com/EngFlow/okl_cc/internal/origin"
	"github.com/EngFlow/okl_cc/okl/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	testCases := []struct {
		lexeme   string
		expected Value
	}{
		{"42", IntValue(42)},
		{"0x1F", IntValue(31)},
		{"0b101", IntValue(5)},
		{"017", IntValue(15)},
		{"0", IntValue(0)},
		{"10u", IntValue(10)},
		{"10ull", IntValue(10)},
		{"1.5", Value{IsFloat: true, Float: 1.5}},
		{"2e3", Value{IsFloat: true, Float: 2000}},
		{"1.5e-1f", Value{IsFloat: true, Float: 0.15}},
		{"3f", Value{IsFloat: true, Float: 3}},
	}
	for _, tc := range testCases {
		v, ok := ParseNumber(tc.lexeme)
		require.True(t, ok, "lexeme %q", tc.lexeme)
		assert.Equal(t, tc.expected, v, "lexeme %q", tc.lexeme)
	}

	_, ok := ParseNumber("")
	assert.False(t, ok)
}

func lit(lexeme string) *Node {
	return NewLeaf(Primitive, origin.Origin{}, lexeme)
}

func bin(op string, l, r *Node) *Node {
	return NewOp(Binary, origin.Origin{}, token.Lookup(op), l, r)
}

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		node     *Node
		expected int64
	}{
		{bin("+", lit("1"), lit("2")), 3},
		{bin("*", lit("3"), bin("-", lit("5"), lit("2"))), 9},
		{bin("==", bin("+", lit("1"), lit("1")), lit("2")), 1},
		{bin("&&", lit("1"), lit("0")), 0},
		{bin("||", lit("0"), lit("2")), 1},
		{bin("<<", lit("1"), lit("4")), 16},
		{bin("%", lit("7"), lit("3")), 1},
		{NewOp(LeftUnary, origin.Origin{}, token.Lookup("!"), lit("0")), 1},
		{NewNode(Ternary, origin.Origin{}, lit("1"), lit("10"), lit("20")), 10},
		{NewNode(Parens, origin.Origin{}, bin("-", lit("5"), lit("8"))), -3},
		{NewLeaf(CharLit, origin.Origin{}, "'A'"), 65},
	}
	for _, tc := range testCases {
		v, ok := tc.node.Evaluate()
		require.True(t, ok, "expr %s", tc.node)
		assert.Equal(t, tc.expected, v.AsInt(), "expr %s", tc.node)
	}
}

func TestNotEvaluable(t *testing.T) {
	notConstant := []*Node{
		NewIdent(origin.Origin{}, "x"),
		bin("+", lit("1"), NewIdent(origin.Origin{}, "x")),
		bin("/", lit("1"), lit("0")),
	}
	for _, node := range notConstant {
		assert.False(t, node.CanEvaluate(), "expr %s", node)
	}
}

func TestCloneDetaches(t *testing.T) {
	tree := bin("+", lit("1"), lit("2"))
	clone := tree.Clone()
	require.NotSame(t, tree, clone)
	assert.Equal(t, tree.String(), clone.String())

	clone.Children[0].Lexeme = "9"
	assert.Equal(t, "1 + 2", tree.String())
	assert.Equal(t, "9 + 2", clone.String())
}

func TestReplace(t *testing.T) {
	l, r := lit("1"), lit("2")
	tree := bin("+", l, r)
	repl := lit("7")
	assert.True(t, tree.Replace(r, repl))
	assert.Equal(t, "1 + 7", tree.String())
	assert.Same(t, tree, repl.Parent)
	assert.False(t, tree.Replace(r, repl))
}
