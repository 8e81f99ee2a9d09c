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

	"github.com/EngFlow/okl_cc/internal/collections"
	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
)

// splitKernels fissions every kernel holding more than one outer-loop group
// into independently launchable nested kernels. The original function
// becomes a launcher invoking each nested kernel in sequence through a
// handle array inserted into its formals right after occaKernelInfoArg.
func (ctx *context) splitKernels() error {
	for _, kernel := range ctx.kernels {
		if !ctx.transformable(kernel) {
			continue
		}
		groups := ctx.outerGroups(kernel)
		if len(groups) <= 1 {
			continue
		}
		ctx.info[kernel].NestedKernels = len(groups)
		ctx.fissionKernel(kernel, groups)
	}
	return nil
}

// outerGroups partitions the kernel body children into fission groups, each
// closed by a top-level outer-for nest. Statements after the last loop join
// the final group.
func (ctx *context) outerGroups(kernel parser.StmtID) [][]parser.StmtID {
	var groups [][]parser.StmtID
	var current []parser.StmtID
	loops := 0
	for _, c := range ctx.prog.Stmt(kernel).Children {
		current = append(current, c)
		if isOuterMarker(ctx.prog.Stmt(c)) {
			groups = append(groups, current)
			current = nil
			loops++
		}
	}
	if loops == 0 {
		return nil
	}
	if len(current) > 0 {
		groups[len(groups)-1] = append(groups[len(groups)-1], current...)
	}
	return groups
}

// nestedKernelName derives a globally unique name for the k-th nested
// kernel of base.
func (ctx *context) nestedKernelName(base string, k int) string {
	taken := collections.Set[string]{}
	for name := range ctx.prog.Stmt(ctx.prog.Global()).ScopeVars {
		taken.Add(name)
	}
	candidate := fmt.Sprintf("%s%d", base, k)
	for taken.Contains(candidate) {
		candidate = "_" + candidate
	}
	return candidate
}

func (ctx *context) fissionKernel(kernel parser.StmtID, groups [][]parser.StmtID) {
	fn := ctx.prog.Stmt(kernel).Fn

	// Launch arguments: every original formal except occaKernelInfoArg.
	callArgs := collections.MapSlice(
		collections.FilterSlice(fn.Args, func(arg *ast.Var) bool { return arg.Name != "occaKernelInfoArg" }),
		func(arg *ast.Var) string { return arg.Name })
	argsText := strings.Join(callArgs, ", ")

	var launcherBody []parser.StmtID
	for k, group := range groups {
		name := ctx.nestedKernelName(fn.Name, k)

		nestedFn := &ast.Var{
			Name:           name,
			BaseType:       fn.BaseType,
			LeftQualifiers: append([]string(nil), fn.LeftQualifiers...),
			IsFunction:     true,
			Args:           fn.Args,
		}

		nested := ctx.prog.NewStmt(parser.StmtFunctionDef, ctx.prog.Global())
		ns := ctx.prog.Stmt(nested)
		ns.Origin = ctx.prog.Stmt(kernel).Origin
		ns.Fn = nestedFn
		ctx.prog.InsertChildBefore(ctx.prog.Global(), nested, kernel)
		ctx.prog.DeclareVar(ctx.prog.Global(), nestedFn)
		for _, arg := range nestedFn.Args {
			if arg.Name != "" {
				ctx.prog.DeclareVar(nested, arg)
			}
		}
		for _, member := range group {
			ctx.prog.Reparent(member, nested)
		}

		call := ctx.prog.NewStmt(parser.StmtSource, kernel)
		cs := ctx.prog.Stmt(call)
		cs.Origin = ctx.prog.Stmt(kernel).Origin
		cs.Text = fmt.Sprintf("{\n  nestedKernels[%d](%s);\n}", k, argsText)
		launcherBody = append(launcherBody, call)
	}

	// The launcher keeps the original name and gains the nested-kernel
	// handle array right after occaKernelInfoArg.
	handles := &ast.Var{Name: "nestedKernels", BaseType: "occaKernel", PointerCount: 1}
	args := append([]*ast.Var(nil), fn.Args[:1]...)
	args = append(args, handles)
	fn.Args = append(args, fn.Args[1:]...)

	ks := ctx.prog.Stmt(kernel)
	ks.Children = nil
	for _, body := range launcherBody {
		ctx.prog.AddChild(kernel, body)
	}
}
