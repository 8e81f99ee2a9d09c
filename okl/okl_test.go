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

package okl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translate(t *testing.T, input string) Result {
	t.Helper()
	result, err := Translate("test.okl", []byte(input), DefaultOptions())
	require.NoError(t, err)
	return result
}

// tokenSequence reduces source text to its token spellings, which is the
// "syntactically equivalent modulo whitespace" comparison of the round-trip
// property.
func tokenSequence(t *testing.T, input string) []string {
	t.Helper()
	sink := &diag.Collector{}
	lx := lexer.New("seq.okl", []byte(input), sink)
	var out []string
	for {
		tok := lx.Next()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Kind != token.Newline {
			out = append(out, tok.String())
		}
	}
	require.Zero(t, sink.Errors())
	return out
}

func TestRoundTripIdentity(t *testing.T) {
	// Inputs without OKL tags or CUDA references re-emit the same token
	// sequence.
	testCases := []string{
		"int a;",
		"const float *p = 0;",
		"int a[3];",
		"int f(int x);",
		"int f(int x) { return x + 1; }",
		"void g() { for (int i = 0; i < 10; ++i) { f(i); } }",
		"void g() { if (a) { b(); } else { c(); } }",
		"void g() { while (a) b(); }",
		"void g() { do { b(); } while (a); }",
		"void g() { switch (a) { case 1: break; default: break; } }",
		"typedef unsigned int uint;",
		"struct point { int x; int y; };",
	}
	for _, input := range testCases {
		result := translate(t, input)
		assert.Equal(t, tokenSequence(t, input), tokenSequence(t, result.Source), "input %q", input)
	}
}

func TestIdempotentTranslation(t *testing.T) {
	inputs := []string{
		`@kernel void add(const int N, const float *a, const float *b, float *c){
  for(int i=0;i<N;++i; @outer0){ c[i]=a[i]+b[i]; }
}`,
		`@kernel void sweep(const int N, float *a){
  for(int o=0;o<N;o+=16; @outer0){
    @shared float tile[16];
    for(int i=0;i<16;++i; @inner0){ tile[i] = a[o + i]; }
    for(int i=0;i<16;++i; @inner0){ a[o + i] = tile[15 - i]; }
  }
}`,
		"int plain(int x) { return x * 2; }",
	}
	for _, input := range inputs {
		once := translate(t, input)
		twice, err := Translate("test.okl", []byte(once.Source), DefaultOptions())
		require.NoError(t, err, "second translation of %q", input)
		assert.Equal(t, tokenSequence(t, once.Source), tokenSequence(t, twice.Source), "input %q", input)
	}
}

func TestScenarioObjectMacro(t *testing.T) {
	result := translate(t, "#define N 3\nint a[N];")
	assert.Contains(t, result.Source, "int a[3];")
}

func TestScenarioConditional(t *testing.T) {
	result := translate(t, "#define A 1\n#if A+1==2\nint x;\n#else\nint y;\n#endif\n")
	assert.Contains(t, result.Source, "int x;")
	assert.NotContains(t, result.Source, "int y;")
}

func TestScenarioStringize(t *testing.T) {
	result := translate(t, "#define S(x) #x\nconst char *p = S(ab c);")
	assert.Contains(t, result.Source, `"ab c"`)
}

func TestScenarioKernelSummary(t *testing.T) {
	input := `@kernel void add(const int N, const float *a, const float *b, float *c){
  for(int i=0;i<N;++i; @outer0){ c[i]=a[i]+b[i]; }
}`
	result := translate(t, input)
	require.Len(t, result.Kernels, 1)
	assert.Equal(t, "add", result.Kernels[0].Name)
	assert.Equal(t, 0, result.Kernels[0].NestedKernels)

	assert.Equal(t, 1, strings.Count(result.Source, "occaOuterFor0 {"))
	assert.Equal(t, 1, strings.Count(result.Source, "occaParallelFor0"))
	assert.Contains(t, result.Source, "add(occaKernelInfoArg,")
}

func TestScenarioFissionSummary(t *testing.T) {
	input := `@kernel void pipe(const int N, float *a){
  for(int i=0;i<N;++i; @outer0){ a[i] = i; }
  for(int i=0;i<N;++i; @outer0){ a[i] += 1; }
}`
	result := translate(t, input)
	require.Len(t, result.Kernels, 1)
	assert.Equal(t, "pipe", result.Kernels[0].Name)
	assert.Equal(t, 2, result.Kernels[0].NestedKernels)
	assert.Contains(t, result.Source, "void pipe0(")
	assert.Contains(t, result.Source, "void pipe1(")
}

func TestTranslationFailureEmitsNothing(t *testing.T) {
	input := `@kernel void bad(const int N, float *a){
  for(int i=0;i!=N;++i; @outer0){ a[i]=0; }
}`
	result, err := Translate("test.okl", []byte(input), DefaultOptions())
	require.Error(t, err)
	assert.Empty(t, result.Source)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestWarningsDoNotBlockEmission(t *testing.T) {
	input := "void f() { undeclared(); }"
	result, err := Translate("test.okl", []byte(input), DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Source)
	require.NotEmpty(t, result.Diagnostics)
	assert.Equal(t, diag.Warning, result.Diagnostics[0].Severity)
}

func TestDependenciesReported(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "sizes.h")
	require.NoError(t, os.WriteFile(header, []byte("#define W 8\n"), 0o644))

	opts := DefaultOptions()
	opts.IncludePaths = []string{dir}
	result, err := Translate("test.okl", []byte("#include <sizes.h>\nint a[W];"), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{header}, result.Dependencies)
	assert.Contains(t, result.Source, "int a[8];")
}

func TestTokensView(t *testing.T) {
	lines, err := Tokens("test.okl", []byte("#define N 2\nint a[N];"), DefaultOptions())
	require.NoError(t, err)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "int")
	assert.Contains(t, joined, "2")
	assert.NotContains(t, joined, "define")
}

func TestCustomSinkReceivesDiagnostics(t *testing.T) {
	collector := &diag.Collector{}
	opts := DefaultOptions()
	opts.Sink = collector
	_, err := Translate("test.okl", []byte("#error boom\n"), opts)
	require.Error(t, err)
	require.NotEmpty(t, collector.Diagnostics)
	assert.Contains(t, collector.Diagnostics[0].Message, "boom")
}
