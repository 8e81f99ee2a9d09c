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

// Package transform lowers the parsed OKL program into backend-ready form.
// It is a strict ordered sequence of passes over the statement arena; later
// passes assume the invariants established by earlier ones:
//
//  1. mark kernel functions
//  2. label native kernels
//  3. lower CUDA-style index names
//  4. set up tagged for-loops and their counters
//  5. fix inner-loop ordering and insert barriers
//  6. add occaParallelFor markers
//  7. qualify kernel arguments
//  8. float shared/exclusive declarations
//  9. split multi-outer kernels
package transform

import (
	"fmt"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
)

// Options tunes the diagnostics of the lowering passes.
type Options struct {
	// WarnMissingBarriers reports inner-loop groups that needed an
	// implicit barrier. The barrier is synthesized either way.
	WarnMissingBarriers bool

	// WarnConditionalBarriers reports barriers nested inside
	// conditionals, where not every inner iteration may reach them.
	WarnConditionalBarriers bool
}

// KernelInfo summarizes one kernel after lowering.
type KernelInfo struct {
	// Name is the kernel's base name, before any fission suffixes.
	Name string

	// NestedKernels is the number of kernels split out of this one;
	// zero when the kernel had a single outer-loop group.
	NestedKernels int

	// OuterDims and InnerDims hold the iteration-count expression per
	// loop dimension, constant-folded when possible; "" for unused dims.
	OuterDims [3]string
	InnerDims [3]string
}

type context struct {
	prog *parser.Program
	opts Options
	sink diag.Sink

	// kernels in global-scope order, with their summaries.
	kernels []parser.StmtID
	info    map[parser.StmtID]*KernelInfo
}

// Run applies the OKL pipeline to the program. The returned summaries are in
// global-scope order. A structural error aborts the remaining passes.
func Run(prog *parser.Program, opts Options, sink diag.Sink) ([]KernelInfo, error) {
	ctx := &context{prog: prog, opts: opts, sink: sink, info: map[parser.StmtID]*KernelInfo{}}

	passes := []func() error{
		ctx.markKernels,
		ctx.labelNative,
		ctx.lowerCudaNames,
		ctx.setupOklFors,
		ctx.fixLoopOrder,
		ctx.addParallelFors,
		ctx.qualifyKernelArgs,
		ctx.floatShared,
		ctx.splitKernels,
	}
	for _, pass := range passes {
		if err := pass(); err != nil {
			return nil, err
		}
	}

	var out []KernelInfo
	for _, id := range ctx.kernels {
		out = append(out, *ctx.info[id])
	}
	return out, nil
}

func (ctx *context) fatalf(at parser.StmtID, format string, args ...any) error {
	diag.Fatalf(ctx.sink, ctx.prog.Stmt(at).Origin, format, args...)
	return fmt.Errorf(format, args...)
}

// transformable reports whether the kernel takes the lowering passes:
// marked @kernel and not native.
func (ctx *context) transformable(id parser.StmtID) bool {
	s := ctx.prog.Stmt(id)
	return s.HasAttr("@kernel") && !s.HasAttr("native")
}

// containsCudaRefs reports whether any expression below id references the
// CUDA index builtins.
func (ctx *context) containsCudaRefs(id parser.StmtID) bool {
	found := false
	ctx.prog.Walk(id, func(s parser.StmtID) bool {
		for _, root := range ctx.prog.Stmt(s).Exprs() {
			root.Walk(func(n *ast.Node) bool {
				if cudaMemberBase(n) != "" {
					found = true
				}
				return !found
			})
		}
		return !found
	})
	return found
}

// cudaMemberBase returns the CUDA builtin name of a `base.axis` member
// expression, or "".
func cudaMemberBase(n *ast.Node) string {
	if n.Kind != ast.Binary || n.Op == nil || n.Op.Lexeme != "." {
		return ""
	}
	base := n.Left().RefName()
	switch base {
	case "threadIdx", "blockIdx", "blockDim", "gridDim":
		axis := n.Right().RefName()
		if axis == "x" || axis == "y" || axis == "z" {
			return base
		}
	}
	return ""
}

// markKernels adds the @kernel qualifier to every top-level function whose
// body contains an OKL-tagged loop or CUDA-style outer markers.
func (ctx *context) markKernels() error {
	for _, id := range ctx.prog.Stmt(ctx.prog.Global()).Children {
		s := ctx.prog.Stmt(id)
		if s.Kind != parser.StmtFunctionDef {
			continue
		}
		if s.HasAttr("@kernel") || ctx.prog.HasOklLoop(id) || ctx.containsCudaRefs(id) {
			s.AddAttr("@kernel")
			s.Fn.AddAttr("@kernel")
			ctx.kernels = append(ctx.kernels, id)
			ctx.info[id] = &KernelInfo{Name: s.Fn.Name}
		}
	}
	return nil
}

// labelNative tags kernels without any OKL loop so the structural passes
// pass them through to the backend compiler untouched.
func (ctx *context) labelNative() error {
	for _, id := range ctx.kernels {
		if !ctx.prog.HasOklLoop(id) {
			ctx.prog.Stmt(id).AddAttr("native")
		}
	}
	return nil
}

var cudaNameTable = map[string]string{
	"threadIdx": "occaInnerId",
	"blockIdx":  "occaOuterId",
	"blockDim":  "occaInnerDim",
	"gridDim":   "occaOuterDim",
}

// lowerCudaNames rewrites threadIdx.x style references in transformable
// kernels to the backend-neutral occa identifiers.
func (ctx *context) lowerCudaNames() error {
	for _, id := range ctx.kernels {
		if !ctx.transformable(id) {
			continue
		}
		ctx.prog.Walk(id, func(s parser.StmtID) bool {
			for _, root := range ctx.prog.Stmt(s).Exprs() {
				root.Walk(func(n *ast.Node) bool {
					base := cudaMemberBase(n)
					if base == "" {
						return true
					}
					axis := n.Right().RefName()
					name := cudaNameTable[base] + string('0'+axis[0]-'x')
					n.Kind = ast.Ident
					n.Lexeme = name
					n.Op = nil
					n.Children = nil
					return false
				})
			}
			return true
		})
	}
	return nil
}
