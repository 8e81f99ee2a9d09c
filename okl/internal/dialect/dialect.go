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

// Package dialect captures everything about the input language the rest of
// the translator is parameterized over: keyword and qualifier tables, the
// names of primitive types, and the OKL attribute lexemes. The translator
// body is dialect-agnostic; today only the C dialect is complete.
package dialect

import (
	"errors"

	"github.com/EngFlow/okl_cc/internal/collections"
)

// Dialect is an immutable language policy. Construct one with C(); share it
// freely, nothing mutates it after construction.
type Dialect struct {
	Name string

	// Keywords that open statements the classifier must recognize.
	Keywords collections.Set[string]

	// Qualifiers may appear on either side of a type name in declarations.
	Qualifiers collections.Set[string]

	// TypeKeywords are the built-in type names; typedefs extend the set
	// per scope at parse time.
	TypeKeywords collections.Set[string]

	// Attributes are the recognized OKL tag lexemes, '@' included.
	Attributes collections.Set[string]
}

// ErrUnsupported is returned for dialects that are declared but not
// implemented.
var ErrUnsupported = errors.New("dialect not supported")

var cDialect = &Dialect{
	Name: "c",
	Keywords: collections.SetOf(
		"if", "else", "switch", "case", "default",
		"for", "while", "do",
		"break", "continue", "return", "goto",
		"typedef", "struct", "class", "union", "enum",
		"sizeof", "new", "delete", "throw",
		"namespace",
	),
	Qualifiers: collections.SetOf(
		"const", "constexpr", "restrict", "volatile", "register",
		"static", "extern", "inline", "mutable",
		"signed", "unsigned", "long", "short",
		"__restrict__", "__volatile__",
		// Emitted sentinels, so translated output re-parses cleanly.
		"occaKernel", "occaFunction", "occaPointer", "occaVariable",
		"occaShared", "occaConst", "occaConstant", "occaRestrict",
		"occaVolatile",
	),
	TypeKeywords: collections.SetOf(
		"void", "bool", "char", "short", "int", "long",
		"float", "double", "size_t", "ptrdiff_t",
		"int8_t", "int16_t", "int32_t", "int64_t",
		"uint8_t", "uint16_t", "uint32_t", "uint64_t",
	),
	Attributes: collections.SetOf(
		"@kernel", "@outer0", "@outer1", "@outer2",
		"@inner0", "@inner1", "@inner2", "@tile",
		"@shared", "@exclusive", "@restrict", "@constant", "@dim",
		"@barrier",
	),
}

// C returns the C/OKL dialect.
func C() *Dialect { return cDialect }

// Fortran is the OFL seam. The Fortran front end of the original system was
// never finished; callers must treat the error as "feature absent", not as a
// failure of the input.
func Fortran() (*Dialect, error) { return nil, ErrUnsupported }

// IsQualifier reports whether name is a declaration qualifier in this
// dialect, OKL attributes included.
func (d *Dialect) IsQualifier(name string) bool {
	return d.Qualifiers.Contains(name) || d.Attributes.Contains(name)
}

// StartsDeclaration reports whether an identifier can begin a declaration:
// a qualifier, a built-in type keyword, or an OKL attribute.
func (d *Dialect) StartsDeclaration(name string) bool {
	return d.IsQualifier(name) || d.TypeKeywords.Contains(name)
}
