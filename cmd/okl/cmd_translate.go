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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/EngFlow/okl_cc/okl"
	"github.com/EngFlow/okl_cc/internal/diag"
)

type translateCmd struct {
	opts    optionFlags
	output  string
	summary bool
}

func (*translateCmd) Name() string     { return "translate" }
func (*translateCmd) Synopsis() string { return "Translate OKL kernel sources to backend form" }
func (*translateCmd) Usage() string {
	return `translate [-I dir] [-D name=value] [-mode backend] [-o out] <source>...:
  Translate each OKL source and write the lowered text next to it
  (<source>.occa.c) or to -o when a single source is given.
`
}

func (c *translateCmd) SetFlags(f *flag.FlagSet) {
	c.opts.register(f)
	f.StringVar(&c.output, "o", "", "output file (single source only)")
	f.BoolVar(&c.summary, "summary", false, "print the kernel summary after translation")
}

func (c *translateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	sources, err := expandSources(f.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "no source files given")
		return subcommands.ExitUsageError
	}
	if c.output != "" && len(sources) > 1 {
		fmt.Fprintln(os.Stderr, "-o needs exactly one source file")
		return subcommands.ExitUsageError
	}

	opts, err := c.opts.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	opts.Sink = diag.Writer{W: os.Stderr}

	status := subcommands.ExitSuccess
	for _, source := range sources {
		data, err := os.ReadFile(source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", source, err)
			status = subcommands.ExitFailure
			continue
		}
		result, err := okl.Translate(source, data, opts)
		if err != nil {
			status = subcommands.ExitFailure
			continue
		}

		out := c.output
		if out == "" {
			out = source + ".occa.c"
		}
		if err := os.WriteFile(out, []byte(result.Source), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", out, err)
			status = subcommands.ExitFailure
			continue
		}
		if c.summary {
			printSummary(source, result)
		}
	}
	return status
}

func printSummary(source string, result okl.Result) {
	fmt.Printf("%s:\n", source)
	for _, k := range result.Kernels {
		fmt.Printf("  kernel %s (nested: %d)\n", k.Name, k.NestedKernels)
		for dim := range 3 {
			if k.OuterDims[dim] != "" || k.InnerDims[dim] != "" {
				fmt.Printf("    dim %d: outer=%s inner=%s\n", dim, orDash(k.OuterDims[dim]), orDash(k.InnerDims[dim]))
			}
		}
	}
	for _, dep := range result.Dependencies {
		fmt.Printf("  include %s\n", dep)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
