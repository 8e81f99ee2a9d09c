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
	"slices"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/internal/origin"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// StmtKind classifies statements.
type StmtKind int

const (
	// StmtGlobal is the arena root holding the file scope.
	StmtGlobal StmtKind = iota
	StmtEmpty
	StmtDeclare
	StmtUpdate
	StmtFor
	StmtWhile
	StmtDoWhile
	StmtIf
	StmtElseIf
	StmtElse
	StmtSwitch
	StmtCase
	StmtGoto
	StmtLabel
	StmtFlow
	StmtFunctionDef
	StmtFunctionProto
	StmtStruct
	StmtTypedef
	StmtBlock
	StmtPragma

	// StmtMarker is an OKL marker introduced by the transform passes:
	// occaOuterFor0, occaParallelFor1, ... emitted as a bare identifier.
	StmtMarker

	// StmtSource is raw text synthesized by the transform passes, emitted
	// verbatim with indentation (launcher calls, occaPrivate lines).
	StmtSource
)

// StmtID indexes a statement inside its Program arena. Parent and sibling
// links are indices, so the tree has no pointer cycles and drops with the
// arena.
type StmtID int

// NoStmt is the null statement reference.
const NoStmt StmtID = -1

// Stmt is one statement node. The header expression trees (Expr, ForHeader,
// declaration initializers) are built by the expression parser; children are
// ordered sub-statements.
type Stmt struct {
	Kind   StmtKind
	Origin origin.Origin
	Depth  int
	Parent StmtID

	// Expr holds the statement's header expression: the condition of
	// if/while/switch, the expression of update/flow statements, the case
	// value.
	Expr *ast.Node

	// ForHeader holds the for-statement header regions in order:
	// init (nil when Vars carries an init declaration), test, update and,
	// for OKL loops, the tag.
	ForHeader []*ast.Node

	// Vars are the variables declared by this statement: declarators of a
	// declare statement, the iterator of a for, instances of a struct.
	Vars []*ast.Var

	// Fn is the declared function of a definition or prototype.
	Fn *ast.Var

	// Type is the type introduced by a struct or typedef statement.
	Type *ast.Type

	// ScopeVars and ScopeTypes map names declared in this statement's
	// scope. Lookups chase the parent chain.
	ScopeVars  map[string]*ast.Var
	ScopeTypes map[string]*ast.Type

	Children []StmtID

	// Attrs are OKL attributes attached to the statement ("@kernel" on a
	// function, the loop tag, "native" labels).
	Attrs []string

	// Marker is the OKL marker name for StmtMarker statements.
	Marker string

	// Text is the raw content of StmtSource and StmtPragma statements and
	// the label/goto target name.
	Text string

	// Tokens preserves the raw token run of statements the translator
	// carries through without a structured model (typedef bodies).
	Tokens []token.Token
}

// HasAttr reports whether the statement carries the given attribute.
func (s *Stmt) HasAttr(name string) bool {
	return slices.Contains(s.Attrs, name)
}

// AddAttr attaches an attribute unless present.
func (s *Stmt) AddAttr(name string) {
	if !s.HasAttr(name) {
		s.Attrs = append(s.Attrs, name)
	}
}

// Program is the arena-allocated statement tree plus the global maps built
// by the resolver.
type Program struct {
	Dialect *dialect.Dialect

	arena []Stmt

	// VarOrigin maps each variable to its defining statement; VarUses maps
	// it to the ordered statements referencing it.
	VarOrigin map[*ast.Var]StmtID
	VarUses   map[*ast.Var][]StmtID
}

// NewProgram returns a Program containing only the global scope statement.
func NewProgram(d *dialect.Dialect) *Program {
	p := &Program{
		Dialect:   d,
		VarOrigin: map[*ast.Var]StmtID{},
		VarUses:   map[*ast.Var][]StmtID{},
	}
	p.arena = append(p.arena, Stmt{Kind: StmtGlobal, Parent: NoStmt})
	return p
}

// Global returns the root statement ID.
func (p *Program) Global() StmtID { return 0 }

// Stmt resolves an ID to its node. The pointer stays valid until the next
// NewStmt call; re-resolve after growing the arena.
func (p *Program) Stmt(id StmtID) *Stmt {
	return &p.arena[id]
}

// NewStmt appends a fresh statement to the arena under parent. The new
// statement is not yet linked into the parent's children.
func (p *Program) NewStmt(kind StmtKind, parent StmtID) StmtID {
	depth := 0
	if parent != NoStmt {
		depth = p.arena[parent].Depth + 1
	}
	p.arena = append(p.arena, Stmt{Kind: kind, Parent: parent, Depth: depth})
	return StmtID(len(p.arena) - 1)
}

// AddChild appends child to parent's children.
func (p *Program) AddChild(parent, child StmtID) {
	s := p.Stmt(parent)
	s.Children = append(s.Children, child)
	p.Stmt(child).Parent = parent
}

// InsertChildBefore links child into parent's children right before the
// sibling `before`. When before is not found the child is appended.
func (p *Program) InsertChildBefore(parent, child, before StmtID) {
	s := p.Stmt(parent)
	at := slices.Index(s.Children, before)
	if at < 0 {
		at = len(s.Children)
	}
	s.Children = slices.Insert(s.Children, at, child)
	p.Stmt(child).Parent = parent
}

// RemoveChild unlinks child from parent's children.
func (p *Program) RemoveChild(parent, child StmtID) {
	s := p.Stmt(parent)
	s.Children = slices.DeleteFunc(s.Children, func(id StmtID) bool { return id == child })
}

// Reparent moves child under newParent (appending) and renumbers the depths
// of the moved subtree.
func (p *Program) Reparent(child, newParent StmtID) {
	if old := p.Stmt(child).Parent; old != NoStmt {
		p.RemoveChild(old, child)
	}
	p.AddChild(newParent, child)
	p.renumberDepth(child)
}

// RenumberDepth refreshes the depth of id and its subtree from its parent.
func (p *Program) RenumberDepth(id StmtID) { p.renumberDepth(id) }

func (p *Program) renumberDepth(id StmtID) {
	s := p.Stmt(id)
	if s.Parent != NoStmt {
		s.Depth = p.Stmt(s.Parent).Depth + 1
	}
	for _, c := range s.Children {
		p.renumberDepth(c)
	}
}

// Walk visits id and its descendants in statement order. Returning false
// stops descending below that statement.
func (p *Program) Walk(id StmtID, visit func(StmtID) bool) {
	if !visit(id) {
		return
	}
	for _, c := range p.Stmt(id).Children {
		p.Walk(c, visit)
	}
}

// DeclareVar registers v in the scope of stmt.
func (p *Program) DeclareVar(scope StmtID, v *ast.Var) {
	s := p.Stmt(scope)
	if s.ScopeVars == nil {
		s.ScopeVars = map[string]*ast.Var{}
	}
	s.ScopeVars[v.Name] = v
	p.VarOrigin[v] = scope
}

// DeclareType registers t in the scope of stmt.
func (p *Program) DeclareType(scope StmtID, t *ast.Type) {
	s := p.Stmt(scope)
	if s.ScopeTypes == nil {
		s.ScopeTypes = map[string]*ast.Type{}
	}
	s.ScopeTypes[t.Name] = t
}

// LookupVar resolves name starting at the scope of `from` and chasing the
// parent chain up to the global scope. Returns the variable and the
// statement whose scope declares it, or (nil, NoStmt).
func (p *Program) LookupVar(from StmtID, name string) (*ast.Var, StmtID) {
	for id := from; id != NoStmt; id = p.Stmt(id).Parent {
		if v, ok := p.Stmt(id).ScopeVars[name]; ok {
			return v, id
		}
	}
	return nil, NoStmt
}

// LookupType resolves a type name the same way LookupVar resolves variables.
func (p *Program) LookupType(from StmtID, name string) (*ast.Type, StmtID) {
	for id := from; id != NoStmt; id = p.Stmt(id).Parent {
		if t, ok := p.Stmt(id).ScopeTypes[name]; ok {
			return t, id
		}
	}
	return nil, NoStmt
}

// RecordUse appends stmt to the use list of v.
func (p *Program) RecordUse(v *ast.Var, stmt StmtID) {
	p.VarUses[v] = append(p.VarUses[v], stmt)
}

// Exprs returns every expression root attached to the statement: the header
// expression, for-header regions, declarator initializers and array
// dimensions.
func (s *Stmt) Exprs() []*ast.Node {
	var roots []*ast.Node
	if s.Expr != nil {
		roots = append(roots, s.Expr)
	}
	for _, e := range s.ForHeader {
		if e != nil {
			roots = append(roots, e)
		}
	}
	for _, v := range s.Vars {
		if v.Init != nil {
			roots = append(roots, v.Init)
		}
		for _, dim := range v.StackDims {
			if dim != nil {
				roots = append(roots, dim)
			}
		}
	}
	return roots
}
