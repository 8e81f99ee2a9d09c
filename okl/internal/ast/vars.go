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
	"slices"
	"strings"
)

// Var describes a declared variable or function. Qualifier slices are
// ordered because order is source-visible (`const int *` vs `int const *`).
type Var struct {
	Name     string
	BaseType string

	// LeftQualifiers appear before the base type, RightQualifiers after
	// the declarator name.
	LeftQualifiers  []string
	RightQualifiers []string

	PointerCount int

	// Reference marks C++ reference declarators (`int &x`).
	Reference bool

	// PointerQualifiers sit between the pointer stars and the name
	// (`float * occaRestrict a`).
	PointerQualifiers []string

	// StackDims holds one expression per array dimension.
	StackDims []*Node

	// Attrs are the OKL attributes attached to the declaration, '@'
	// included.
	Attrs []string

	// Init is the initializer expression, nil when absent.
	Init *Node

	// Function declarations carry their formal arguments.
	IsFunction bool
	Args       []*Var
}

// IsPointer reports whether the variable has pointer or array type.
func (v *Var) IsPointer() bool {
	return v.PointerCount > 0 || len(v.StackDims) > 0
}

// HasAttr reports whether the declaration carries the given OKL attribute.
func (v *Var) HasAttr(name string) bool {
	return slices.Contains(v.Attrs, name)
}

// AddAttr attaches an OKL attribute unless already present.
func (v *Var) AddAttr(name string) {
	if !v.HasAttr(name) {
		v.Attrs = append(v.Attrs, name)
	}
}

// RemoveAttr detaches an OKL attribute if present.
func (v *Var) RemoveAttr(name string) {
	v.Attrs = slices.DeleteFunc(v.Attrs, func(a string) bool { return a == name })
}

// PrependLeftQualifier inserts a qualifier at the front of the left list
// unless already present anywhere in it.
func (v *Var) PrependLeftQualifier(q string) {
	if !slices.Contains(v.LeftQualifiers, q) {
		v.LeftQualifiers = append([]string{q}, v.LeftQualifiers...)
	}
}

// AppendRightQualifier appends a qualifier to the right list unless already
// present.
func (v *Var) AppendRightQualifier(q string) {
	if !slices.Contains(v.RightQualifiers, q) {
		v.RightQualifiers = append(v.RightQualifiers, q)
	}
}

// TypeText renders the declared type without the name: qualifiers, base type
// and pointer stars.
func (v *Var) TypeText() string {
	var sb strings.Builder
	for _, q := range v.LeftQualifiers {
		sb.WriteString(q)
		sb.WriteByte(' ')
	}
	sb.WriteString(v.BaseType)
	for range v.PointerCount {
		sb.WriteString(" *")
	}
	return sb.String()
}

// Type describes a named type: a builtin, a struct/class/union/enum, or a
// typedef.
type Type struct {
	Name           string
	LeftQualifiers []string

	// Typedef points at the aliased type when this is a typedef.
	Typedef *Type
}

// Underlying chases typedef links to the base type.
func (t *Type) Underlying() *Type {
	for t.Typedef != nil {
		t = t.Typedef
	}
	return t
}
