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
	"github.com/EngFlow/okl_cc/okl/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, input string) (*Program, *diag.Collector) {
	t.Helper()
	sink := &diag.Collector{}
	stream := &SliceStream{Tokens: lexFragment(t, input)}
	return Parse(stream, dialect.C(), sink), sink
}

func topKinds(prog *Program) []StmtKind {
	var kinds []StmtKind
	for _, id := range prog.Stmt(prog.Global()).Children {
		kinds = append(kinds, prog.Stmt(id).Kind)
	}
	return kinds
}

func TestStatementClassification(t *testing.T) {
	testCases := []struct {
		input    string
		expected []StmtKind
	}{
		{"int a;", []StmtKind{StmtDeclare}},
		{"int a = 1, b;", []StmtKind{StmtDeclare}},
		{"a = 1;", []StmtKind{StmtUpdate}},
		{"f(1);", []StmtKind{StmtUpdate}},
		{"void f(int x);", []StmtKind{StmtFunctionProto}},
		{"void f(int x) { return; }", []StmtKind{StmtFunctionDef}},
		{"typedef unsigned int uint;", []StmtKind{StmtTypedef}},
		{"struct point { int x; int y; };", []StmtKind{StmtStruct}},
		{"{ int a; }", []StmtKind{StmtBlock}},
		{";", []StmtKind{StmtEmpty}},
		{"if (a) b = 1; else if (c) b = 2; else b = 3;", []StmtKind{StmtIf, StmtElseIf, StmtElse}},
		{"while (a) { b(); }", []StmtKind{StmtWhile}},
		{"do { b(); } while (a);", []StmtKind{StmtDoWhile}},
		{"for (i = 0; i < n; ++i) f(i);", []StmtKind{StmtFor}},
		{"switch (a) { case 1: break; default: break; }", []StmtKind{StmtSwitch}},
		{"goto done; done: return;", []StmtKind{StmtGoto, StmtLabel, StmtFlow}},
	}
	for _, tc := range testCases {
		prog, sink := parseString(t, tc.input)
		assert.Zero(t, sink.Errors(), "input %q", tc.input)
		assert.Equal(t, tc.expected, topKinds(prog), "input %q", tc.input)
	}
}

func TestDeclarationShapes(t *testing.T) {
	prog, sink := parseString(t, "const float *a, b[10];")
	require.Zero(t, sink.Errors())
	s := prog.Stmt(prog.Stmt(prog.Global()).Children[0])
	require.Len(t, s.Vars, 2)

	a, b := s.Vars[0], s.Vars[1]
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "float", a.BaseType)
	assert.Equal(t, []string{"const"}, a.LeftQualifiers)
	assert.Equal(t, 1, a.PointerCount)
	assert.True(t, a.IsPointer())

	assert.Equal(t, "b", b.Name)
	assert.Equal(t, 0, b.PointerCount)
	require.Len(t, b.StackDims, 1)
	assert.Equal(t, "10", b.StackDims[0].String())
}

func TestFunctionDefinition(t *testing.T) {
	prog, sink := parseString(t, `
float dot(const float *x, const float *y, const int n) {
  float sum = 0;
  for (int i = 0; i < n; ++i) {
    sum += x[i] * y[i];
  }
  return sum;
}`)
	require.Zero(t, sink.Errors())
	id := prog.Stmt(prog.Global()).Children[0]
	s := prog.Stmt(id)
	require.Equal(t, StmtFunctionDef, s.Kind)
	require.NotNil(t, s.Fn)
	assert.Equal(t, "dot", s.Fn.Name)
	assert.Equal(t, "float", s.Fn.BaseType)
	require.Len(t, s.Fn.Args, 3)
	assert.Equal(t, "x", s.Fn.Args[0].Name)
	assert.True(t, s.Fn.Args[0].IsPointer())
	assert.Equal(t, "n", s.Fn.Args[2].Name)
	assert.False(t, s.Fn.Args[2].IsPointer())

	// The function is registered in the global scope, arguments in the
	// function's own scope.
	fn, scope := prog.LookupVar(prog.Global(), "dot")
	require.NotNil(t, fn)
	assert.Equal(t, prog.Global(), scope)
	arg, scope := prog.LookupVar(id, "x")
	require.NotNil(t, arg)
	assert.Equal(t, id, scope)
}

func TestOklForHeader(t *testing.T) {
	prog, sink := parseString(t, `
void add(int n) {
  for (int i = 0; i < n; ++i; @outer0) {
    f(i);
  }
}`)
	require.Zero(t, sink.Errors())
	fn := prog.Stmt(prog.Global()).Children[0]

	var forID StmtID = NoStmt
	prog.Walk(fn, func(id StmtID) bool {
		if prog.Stmt(id).Kind == StmtFor {
			forID = id
		}
		return true
	})
	require.NotEqual(t, NoStmt, forID)
	s := prog.Stmt(forID)
	require.Len(t, s.ForHeader, 4)
	assert.True(t, s.HasAttr("@outer0"))
	require.Len(t, s.Vars, 1)
	assert.Equal(t, "i", s.Vars[0].Name)

	// The iterator belongs to the for-statement's scope, not the
	// enclosing one.
	_, scope := prog.LookupVar(forID, "i")
	assert.Equal(t, forID, scope)
	v, _ := prog.LookupVar(fn, "i")
	assert.Nil(t, v)
}

func TestScopeChain(t *testing.T) {
	prog, sink := parseString(t, `
int g;
void f(int a) {
  int b;
  {
    int c;
    c = a + b + g;
  }
}`)
	require.Zero(t, sink.Errors())
	prog.Resolve(sink)
	assert.Zero(t, sink.Errors())
	assert.Zero(t, sink.Warnings())

	// Scope soundness: every VarRef resolves through an ancestor scope.
	prog.Walk(prog.Global(), func(id StmtID) bool {
		for _, root := range prog.Stmt(id).Exprs() {
			root.Walk(func(n *ast.Node) bool {
				if n.Kind == ast.VarRef {
					v, at := prog.LookupVar(id, n.Var.Name)
					assert.Same(t, n.Var, v)
					assert.LessOrEqual(t, prog.Stmt(at).Depth, prog.Stmt(id).Depth)
				}
				return true
			})
		}
		return true
	})
}

func TestResolveBuildsUseMaps(t *testing.T) {
	prog, sink := parseString(t, "int x;\nvoid f() { x = 1; x = 2; }")
	require.Zero(t, sink.Errors())
	prog.Resolve(sink)

	x, _ := prog.LookupVar(prog.Global(), "x")
	require.NotNil(t, x)
	assert.Equal(t, prog.Global(), prog.VarOrigin[x])
	assert.Len(t, prog.VarUses[x], 2)
}

func TestUnresolvedOutsideKernelWarns(t *testing.T) {
	prog, sink := parseString(t, "void f() { undeclared(1); }")
	require.Zero(t, sink.Errors())
	prog.Resolve(sink)
	assert.Zero(t, sink.Errors())
	assert.Equal(t, 1, sink.Warnings())
}

func TestUnresolvedInsideKernelFails(t *testing.T) {
	prog, sink := parseString(t, `
void bad(int n) {
  for (int i = 0; i < n; ++i; @outer0) {
    mystery[i] = 0;
  }
}`)
	require.Zero(t, sink.Errors())
	prog.Resolve(sink)
	assert.NotZero(t, sink.Errors())
}

func TestTypedefRegistersType(t *testing.T) {
	prog, sink := parseString(t, "typedef unsigned int uint;\nuint counter;")
	require.Zero(t, sink.Errors())
	assert.Equal(t, []StmtKind{StmtTypedef, StmtDeclare}, topKinds(prog))

	s := prog.Stmt(prog.Stmt(prog.Global()).Children[1])
	require.Len(t, s.Vars, 1)
	assert.Equal(t, "uint", s.Vars[0].BaseType)
}

func TestDuplicateParameterFails(t *testing.T) {
	_, sink := parseString(t, "void f(int a, float a);")
	require.NotZero(t, sink.Errors())
	assert.Contains(t, sink.Diagnostics[0].Message, "duplicate parameter")
}

func TestParseErrorRecovers(t *testing.T) {
	prog, sink := parseString(t, "int a = ;\nint b;")
	assert.NotZero(t, sink.Errors())
	// The malformed statement is skipped, the next one still parses.
	kinds := topKinds(prog)
	require.NotEmpty(t, kinds)
	assert.Equal(t, StmtDeclare, kinds[len(kinds)-1])
}

func TestPragmaStatement(t *testing.T) {
	sink := &diag.Collector{}
	ts := lexFragment(t, "int a;")
	// Pragma tokens arrive from the preprocessor; fake one in between.
	ts = append(ts, token.Token{Kind: token.Pragma, Origin: ts[len(ts)-1].Origin, Lexeme: "unroll 4"})
	ts = append(ts, lexFragment(t, "int b;")...)
	prog := Parse(&SliceStream{Tokens: ts}, dialect.C(), sink)
	require.Zero(t, sink.Errors())
	children := prog.Stmt(prog.Global()).Children
	require.Len(t, children, 3)
	assert.Equal(t, StmtPragma, prog.Stmt(children[1]).Kind)
	assert.Equal(t, "unroll 4", prog.Stmt(children[1]).Text)
}
