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
	"strings"
	"testing"

	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preprocess(t *testing.T, input string, opts Options) (*Preprocessor, []token.Token, *diag.Collector) {
	t.Helper()
	sink := &diag.Collector{}
	lx := lexer.New("test.okl", []byte(input), sink)
	pp := New(lx, dialect.C(), opts, sink)
	var out []token.Token
	for {
		tok := pp.Next()
		if tok.Kind == token.EOF {
			return pp, out, sink
		}
		if tok.Kind == token.Newline {
			continue
		}
		out = append(out, tok)
	}
}

func rendered(out []token.Token) string {
	parts := make([]string, len(out))
	for i, tok := range out {
		parts[i] = tok.String()
	}
	return strings.Join(parts, " ")
}

func TestObjectMacro(t *testing.T) {
	_, out, sink := preprocess(t, "#define N 3\nint a[N];", Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int a [ 3 ] ;", rendered(out))
}

func TestConditional(t *testing.T) {
	input := "#define A 1\n#if A+1==2\nint x;\n#else\nint y;\n#endif\n"
	pp, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	text := rendered(out)
	assert.Contains(t, text, "int x ;")
	assert.NotContains(t, text, "int y ;")
	// The status stack is balanced again: only the implicit frame remains.
	assert.Equal(t, 1, pp.ConditionalDepth())
}

func TestStringize(t *testing.T) {
	_, out, sink := preprocess(t, "#define S(x) #x\nconst char *p = S(ab c);", Options{})
	assert.Zero(t, sink.Errors())
	assert.Contains(t, rendered(out), `"ab c"`)
}

func TestTokenPaste(t *testing.T) {
	_, out, sink := preprocess(t, "#define GLUE(a, b) a##b\nint GLUE(var, 7) = GLUE(1, 2);", Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int var7 = 12 ;", rendered(out))
}

func TestFunctionMacroNested(t *testing.T) {
	input := "#define ADD(a, b) ((a) + (b))\n#define TWICE(x) ADD(x, x)\nint v = TWICE(3);"
	_, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int v = ( ( 3 ) + ( 3 ) ) ;", rendered(out))
}

func TestRecursiveMacroStops(t *testing.T) {
	_, out, sink := preprocess(t, "#define A A\nint A;", Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int A ;", rendered(out))
}

func TestFunctionMacroWithoutParens(t *testing.T) {
	// A function-like macro name not followed by '(' stays as-is.
	_, out, sink := preprocess(t, "#define F(x) x\nint F;", Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int F ;", rendered(out))
}

func TestConditionalChain(t *testing.T) {
	input := `#define MODE 2
#if MODE == 1
int one;
#elif MODE == 2
int two;
#elif MODE == 2 + 1
int three;
#else
int other;
#endif
`
	_, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int two ;", rendered(out))
}

func TestNestedConditionals(t *testing.T) {
	input := `#ifdef MISSING
#ifdef ALSO_MISSING
int a;
#endif
int b;
#else
int c;
#endif
`
	_, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int c ;", rendered(out))
}

func TestDefinedOperator(t *testing.T) {
	input := "#define X 0\n#if defined(X) && !defined(Y)\nint yes;\n#endif\n"
	_, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int yes ;", rendered(out))
}

func TestUndef(t *testing.T) {
	input := "#define X 1\n#undef X\n#ifdef X\nint a;\n#else\nint b;\n#endif\n"
	_, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int b ;", rendered(out))
}

func TestStrictRedefine(t *testing.T) {
	input := "#define X 1\n#define X 2\nint a = X;"
	_, out, sink := preprocess(t, input, Options{StrictRedefine: true})
	assert.Equal(t, 1, sink.Warnings())
	assert.Equal(t, "int a = 2 ;", rendered(out))

	_, out, sink = preprocess(t, input, Options{})
	assert.Zero(t, sink.Warnings())
	assert.Equal(t, "int a = 2 ;", rendered(out))
}

func TestLineBuiltin(t *testing.T) {
	_, out, sink := preprocess(t, "int a = __LINE__;\nint b = __LINE__;", Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int a = 1 ; int b = 2 ;", rendered(out))
}

func TestCounterBuiltin(t *testing.T) {
	_, out, sink := preprocess(t, "int a = __COUNTER__; int b = __COUNTER__;", Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int a = 0 ; int b = 1 ;", rendered(out))
}

func TestFileBuiltin(t *testing.T) {
	_, out, sink := preprocess(t, "const char *f = __FILE__;", Options{})
	assert.Zero(t, sink.Errors())
	assert.Contains(t, rendered(out), `"test.okl"`)
}

func TestLineDirective(t *testing.T) {
	sink := &diag.Collector{}
	lx := lexer.New("test.okl", []byte("#line 100 \"gen.c\"\nint a = __LINE__;"), sink)
	pp := New(lx, dialect.C(), Options{}, sink)
	var out []token.Token
	for {
		tok := pp.Next()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Kind != token.Newline {
			out = append(out, tok)
		}
	}
	require.Zero(t, sink.Errors())
	assert.Equal(t, "int a = 100 ;", rendered(out))
	assert.Equal(t, "gen.c", out[0].Origin.Path)
}

func TestErrorAndWarningDirectives(t *testing.T) {
	_, _, sink := preprocess(t, "#error boom\n#warning careful\nint a;", Options{})
	assert.Equal(t, 1, sink.Errors())
	assert.Equal(t, 1, sink.Warnings())
	assert.Contains(t, sink.Diagnostics[0].Message, "boom")
	assert.Contains(t, sink.Diagnostics[1].Message, "careful")
}

func TestUnknownDirectiveRecovers(t *testing.T) {
	_, out, sink := preprocess(t, "#frobnicate all the things\nint a;", Options{})
	assert.Equal(t, 1, sink.Errors())
	assert.Equal(t, "int a ;", rendered(out))
}

func TestUnbalancedConditional(t *testing.T) {
	_, _, sink := preprocess(t, "#if 1\nint a;", Options{})
	assert.Equal(t, 1, sink.Errors())
	assert.Contains(t, sink.Diagnostics[0].Message, "unterminated conditional")
}

func TestPragmaPassThrough(t *testing.T) {
	_, out, sink := preprocess(t, "#pragma unroll 4\nint a;", Options{})
	assert.Zero(t, sink.Errors())
	require.NotEmpty(t, out)
	assert.Equal(t, token.Pragma, out[0].Kind)
	assert.Equal(t, "unroll 4", out[0].Lexeme)
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "defs.h")
	require.NoError(t, os.WriteFile(header, []byte("#define WIDTH 16\n"), 0o644))

	input := "#include \"defs.h\"\nint a[WIDTH];"
	sink := &diag.Collector{}
	lx := lexer.New(filepath.Join(dir, "main.okl"), []byte(input), sink)
	pp := New(lx, dialect.C(), Options{}, sink)
	var out []token.Token
	for {
		tok := pp.Next()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Kind != token.Newline {
			out = append(out, tok)
		}
	}
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int a [ 16 ] ;", rendered(out))
	assert.Equal(t, []string{header}, pp.Dependencies())
}

func TestIncludeSearchPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "include")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "sizes.h"), []byte("#define N 8\n"), 0o644))

	_, out, sink := preprocess(t, "#include <sizes.h>\nint a[N];", Options{IncludePaths: []string{sub}})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int a [ 8 ] ;", rendered(out))
}

func TestMissingIncludeRecovers(t *testing.T) {
	_, out, sink := preprocess(t, "#include \"nope.h\"\nint a;", Options{})
	assert.Equal(t, 1, sink.Errors())
	assert.Equal(t, "int a ;", rendered(out))
}

func TestHasInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "here.h"), []byte(""), 0o644))

	input := "#if __has_include(<here.h>)\nint found;\n#else\nint missing;\n#endif\n"
	_, out, sink := preprocess(t, input, Options{IncludePaths: []string{dir}})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int found ;", rendered(out))
}

func TestDefinesOption(t *testing.T) {
	_, out, sink := preprocess(t, "int a = FOO + BAR;", Options{Defines: []string{"FOO=41", "BAR"}})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "int a = 41 + 1 ;", rendered(out))
}

func TestVariadicMacro(t *testing.T) {
	input := "#define CALL(fn, ...) fn(__VA_ARGS__)\nCALL(f, 1, 2);"
	_, out, sink := preprocess(t, input, Options{})
	assert.Zero(t, sink.Errors())
	assert.Equal(t, "f ( 1 , 2 ) ;", rendered(out))
}
