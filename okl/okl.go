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

// Package okl is the OKL kernel source-to-source translator. It ingests an
// annotated C dialect expressing parallel loops with @outer/@inner tags and
// emits backend-neutral source in which the parallel structure is lowered to
// occa* sentinel identifiers that the per-backend headers redefine.
//
// Translation is a pure text-to-text function: tokenize, preprocess, parse,
// resolve, run the OKL lowering passes, emit. A translator instance holds no
// process-wide state; the shared keyword and operator tables are built once
// and never mutated, so concurrent translations are safe.
package okl

import (
	"errors"

	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/emitter"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
	"github.com/EngFlow/okl_cc/okl/internal/preprocessor"
	"github.com/EngFlow/okl_cc/okl/internal/transform"
)

// Options is the translator's recognized property bag.
type Options struct {
	// Backend selectors. They do not change the emitted structure (the
	// occa* sentinels are redefined per backend) but are reported back in
	// the Result for the build driver.
	Serial bool `yaml:"serial"`
	OpenMP bool `yaml:"openmp"`
	CUDA   bool `yaml:"cuda"`
	OpenCL bool `yaml:"opencl"`

	// IncludePaths is the ordered include search path; entries may be
	// glob patterns matching several directories.
	IncludePaths []string `yaml:"includePaths"`

	// Defines are initial macro definitions, NAME or NAME=VALUE.
	Defines []string `yaml:"defines"`

	WarnMissingBarriers     bool `yaml:"warnOnMissingBarriers"`
	WarnConditionalBarriers bool `yaml:"warnOnBarrierInConditional"`

	// InlineIncludes splices included files into the token stream. When
	// disabled, includes only contribute to the dependency list.
	InlineIncludes bool `yaml:"inlineIncludes"`

	// ExpandMacros enables macro expansion in the output.
	ExpandMacros bool `yaml:"expandMacros"`

	// StrictRedefine warns when a macro is silently replaced.
	StrictRedefine bool `yaml:"strictRedefine"`

	// Sink, when set, receives every diagnostic as it is reported, in
	// addition to the Result's collected list.
	Sink diag.Sink `yaml:"-"`
}

// DefaultOptions returns the options used when a flag is not specified:
// serial mode, inlined includes, macro expansion and barrier warnings on.
func DefaultOptions() Options {
	return Options{
		Serial:                  true,
		WarnMissingBarriers:     true,
		WarnConditionalBarriers: true,
		InlineIncludes:          true,
		ExpandMacros:            true,
	}
}

// KernelInfo re-exports the per-kernel summary of the transform pipeline.
type KernelInfo = transform.KernelInfo

// Result is the translator output.
type Result struct {
	// Source is the transformed program text; empty when errors were
	// reported.
	Source string

	// Dependencies lists every file spliced in by #include, sorted.
	Dependencies []string

	// Kernels summarizes each kernel found: base name, nested-kernel
	// count after fission and, where inferable, iteration bounds per dim.
	Kernels []KernelInfo

	// Diagnostics are all collected diagnostics in report order.
	Diagnostics []diag.Diagnostic
}

// ErrTranslationFailed is returned when any error-severity diagnostic was
// reported; Result.Diagnostics carries the details.
var ErrTranslationFailed = errors.New("translation failed")

// Translate runs the full pipeline over one source buffer. name is the
// logical file name used in diagnostics and __FILE__.
func Translate(name string, source []byte, opts Options) (Result, error) {
	collector := &diag.Collector{}
	var sink diag.Sink = collector
	if opts.Sink != nil {
		sink = diag.Tee{collector, opts.Sink}
	}

	d := dialect.C()
	lx := lexer.New(name, source, sink)
	pp := preprocessor.New(lx, d, preprocessor.Options{
		IncludePaths:     opts.IncludePaths,
		Defines:          opts.Defines,
		StrictRedefine:   opts.StrictRedefine,
		DisableExpansion: !opts.ExpandMacros,
		SkipIncludes:     !opts.InlineIncludes,
	}, sink)

	prog := parser.Parse(pp, d, sink)
	prog.Resolve(sink)

	result := Result{Dependencies: pp.Dependencies()}

	kernels, err := transform.Run(prog, transform.Options{
		WarnMissingBarriers:     opts.WarnMissingBarriers,
		WarnConditionalBarriers: opts.WarnConditionalBarriers,
	}, sink)
	result.Kernels = kernels
	result.Diagnostics = collector.Diagnostics

	if err != nil || collector.Errors() > 0 {
		return result, errors.Join(ErrTranslationFailed, collector.Err())
	}

	result.Source = emitter.Emit(prog)
	return result, nil
}
