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

package transform

import (
	"fmt"
	"strings"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
)

func alreadyQualified(fn *ast.Var) bool {
	for _, q := range fn.LeftQualifiers {
		if q == "occaKernel" || q == "occaFunction" {
			return true
		}
	}
	return false
}

// qualifyKernelArgs rewrites kernel signatures for the backend headers:
// the kernel gains the occaKernel qualifier and an occaKernelInfoArg first
// formal, pointer arguments gain occaPointer, value arguments gain the
// occaVariable right qualifier and lose any reference. Remaining global
// functions gain occaFunction so backends can attribute them.
func (ctx *context) qualifyKernelArgs() error {
	for _, id := range ctx.prog.Stmt(ctx.prog.Global()).Children {
		s := ctx.prog.Stmt(id)
		if s.Kind != parser.StmtFunctionDef && s.Kind != parser.StmtFunctionProto {
			continue
		}
		if !s.HasAttr("@kernel") {
			// Helper functions in kernel files need the backend
			// attribute; units without kernels pass through untouched.
			if len(ctx.kernels) > 0 && !alreadyQualified(s.Fn) {
				s.Fn.PrependLeftQualifier("occaFunction")
			}
			continue
		}
		if s.HasAttr("native") {
			continue
		}

		fn := s.Fn
		fn.RemoveAttr("@kernel")
		fn.PrependLeftQualifier("occaKernel")

		for _, arg := range fn.Args {
			if arg.HasAttr("@restrict") {
				arg.RemoveAttr("@restrict")
				arg.PointerQualifiers = append(arg.PointerQualifiers, "occaRestrict")
			}
			if arg.HasAttr("@constant") {
				arg.RemoveAttr("@constant")
				arg.PrependLeftQualifier("occaConstant")
			}
			if arg.IsPointer() {
				arg.PrependLeftQualifier("occaPointer")
			} else {
				arg.Reference = false
				arg.AppendRightQualifier("occaVariable")
			}
		}
		fn.Args = append([]*ast.Var{{Name: "occaKernelInfoArg"}}, fn.Args...)
	}
	return nil
}

// floatShared moves @shared declarations to the top of the kernel body and
// rewrites @exclusive declarations to occaPrivate/occaPrivateArray, which
// keep their value across barriers within one outer iteration.
func (ctx *context) floatShared() error {
	for _, kernel := range ctx.kernels {
		if !ctx.transformable(kernel) {
			continue
		}

		type floated struct {
			id        parser.StmtID
			exclusive []*ast.Var
		}
		var floats []floated
		ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
			if id == kernel {
				return true
			}
			s := ctx.prog.Stmt(id)
			if s.Kind != parser.StmtDeclare {
				return true
			}
			var exclusive []*ast.Var
			shared := false
			for _, v := range s.Vars {
				if v.HasAttr("@exclusive") {
					exclusive = append(exclusive, v)
				}
				if v.HasAttr("@shared") {
					shared = true
				}
			}
			if shared || len(exclusive) > 0 {
				floats = append(floats, floated{id: id, exclusive: exclusive})
			}
			return true
		})

		// Floated declarations keep their source order at the top of the
		// kernel body; iterate in reverse so each prepend lands right.
		for i := len(floats) - 1; i >= 0; i-- {
			f := floats[i]
			if len(f.exclusive) > 0 {
				if err := ctx.rewriteExclusive(kernel, f.id, f.exclusive); err != nil {
					return err
				}
				continue
			}
			s := ctx.prog.Stmt(f.id)
			for _, v := range s.Vars {
				v.RemoveAttr("@shared")
				v.PrependLeftQualifier("occaShared")
			}
			s.Attrs = nil
			ctx.prog.RemoveChild(s.Parent, f.id)
			ctx.moveToKernelTop(kernel, f.id)
		}
	}
	return nil
}

// moveToKernelTop reattaches id as the first child of the kernel body.
func (ctx *context) moveToKernelTop(kernel, id parser.StmtID) {
	k := ctx.prog.Stmt(kernel)
	k.Children = append([]parser.StmtID{id}, k.Children...)
	ctx.prog.Stmt(id).Parent = kernel
	ctx.prog.RenumberDepth(id)
}

// rewriteExclusive replaces an @exclusive declaration with the
// occaPrivate/occaPrivateArray macro form at kernel scope.
func (ctx *context) rewriteExclusive(kernel, id parser.StmtID, vars []*ast.Var) error {
	var lines []string
	for _, v := range vars {
		if len(v.StackDims) > 1 {
			return ctx.fatalf(id, "exclusive variable %q may have at most one array dimension", v.Name)
		}
		v.RemoveAttr("@exclusive")
		typeText := strings.TrimSpace(v.TypeText())
		if len(v.StackDims) == 1 {
			lines = append(lines, fmt.Sprintf("occaPrivateArray(%s, %s, %s);", typeText, v.Name, v.StackDims[0].String()))
		} else {
			lines = append(lines, fmt.Sprintf("occaPrivate(%s, %s);", typeText, v.Name))
		}
	}

	s := ctx.prog.Stmt(id)
	at := s.Origin
	parent := s.Parent
	ctx.prog.RemoveChild(parent, id)

	src := ctx.prog.NewStmt(parser.StmtSource, kernel)
	ctx.prog.Stmt(src).Origin = at
	ctx.prog.Stmt(src).Text = strings.Join(lines, "\n")
	ctx.moveToKernelTop(kernel, src)
	return nil
}
