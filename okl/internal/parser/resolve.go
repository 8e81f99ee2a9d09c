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
	"strings"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// OklLoopAttrs are the loop tags that make a for-loop transformable.
var OklLoopAttrs = []string{
	"@outer0", "@outer1", "@outer2",
	"@inner0", "@inner1", "@inner2",
	"@tile",
}

// HasOklLoop reports whether the subtree below id contains an OKL-tagged
// for-loop.
func (p *Program) HasOklLoop(id StmtID) bool {
	found := false
	p.Walk(id, func(s StmtID) bool {
		if found {
			return false
		}
		if p.Stmt(s).Kind == StmtFor {
			for _, attr := range OklLoopAttrs {
				if p.Stmt(s).HasAttr(attr) {
					found = true
					return false
				}
			}
		}
		return true
	})
	return found
}

// cudaBuiltins are names resolved by the backend headers, not by the
// program's own scopes.
var cudaBuiltins = map[string]bool{
	"threadIdx": true, "blockIdx": true, "blockDim": true, "gridDim": true,
	"barrier": true, "localMemFence": true, "globalMemFence": true,
	"sizeof": true, "new": true, "delete": true, "throw": true,
	"true": true, "false": true, "NULL": true,
}

// Resolve rewrites identifier leaves to variable and type references by
// chasing each statement's scope chain. Unresolved identifiers inside
// transformable kernels are errors; anywhere else they pass through with a
// warning, deferred to the external compiler.
func (p *Program) Resolve(sink diag.Sink) {
	kernels := map[StmtID]bool{}
	for _, id := range p.Stmt(p.Global()).Children {
		if p.Stmt(id).Kind == StmtFunctionDef && p.HasOklLoop(id) {
			kernels[id] = true
		}
	}

	p.Walk(p.Global(), func(id StmtID) bool {
		inKernel := false
		for fn := id; fn != NoStmt; fn = p.Stmt(fn).Parent {
			if kernels[fn] {
				inKernel = true
				break
			}
		}
		for _, root := range p.Stmt(id).Exprs() {
			p.resolveExpr(root, id, inKernel, sink)
		}
		return true
	})
}

func (p *Program) resolveExpr(root *ast.Node, at StmtID, inKernel bool, sink diag.Sink) {
	root.Walk(func(n *ast.Node) bool {
		if n.Kind != ast.Ident {
			return true
		}
		name := n.Lexeme
		if p.skipResolution(n, name) {
			return true
		}
		if v, _ := p.LookupVar(at, name); v != nil {
			n.Kind = ast.VarRef
			n.Var = v
			p.RecordUse(v, at)
			return true
		}
		if t, _ := p.LookupType(at, name); t != nil {
			n.Kind = ast.TypeRef
			n.Type = t
			return true
		}
		if inKernel {
			diag.Errorf(sink, n.Origin, "unresolved identifier %q in kernel", name)
		} else {
			diag.Warnf(sink, n.Origin, "unresolved identifier %q, leaving for the backend compiler", name)
		}
		return true
	})
}

// skipResolution filters identifier occurrences that are not variable uses:
// attributes, dialect keywords and types, backend builtins, and member names
// on the right of `.`/`->`.
func (p *Program) skipResolution(n *ast.Node, name string) bool {
	if strings.HasPrefix(name, "@") || strings.HasPrefix(name, "occa") {
		return true
	}
	if cudaBuiltins[name] || p.Dialect.Keywords.Contains(name) ||
		p.Dialect.TypeKeywords.Contains(name) || p.Dialect.Qualifiers.Contains(name) {
		return true
	}
	if parent := n.Parent; parent != nil && parent.Kind == ast.Binary &&
		parent.Op.Is(token.Member) && parent.Right() == n {
		return true
	}
	return false
}
