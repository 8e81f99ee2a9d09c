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

type tokensCmd struct {
	opts optionFlags
}

func (*tokensCmd) Name() string     { return "tokens" }
func (*tokensCmd) Synopsis() string { return "Dump the preprocessed token stream of a source" }
func (*tokensCmd) Usage() string {
	return `tokens [-I dir] [-D name=value] <source>:
  Print each preprocessed token with its origin, one per line.
`
}

func (c *tokensCmd) SetFlags(f *flag.FlagSet) { c.opts.register(f) }

func (c *tokensCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "tokens needs exactly one source file")
		return subcommands.ExitUsageError
	}
	opts, err := c.opts.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	opts.Sink = diag.Writer{W: os.Stderr}

	source := f.Arg(0)
	data, err := os.ReadFile(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", source, err)
		return subcommands.ExitFailure
	}
	lines, err := okl.Tokens(source, data, opts)
	for _, line := range lines {
		fmt.Println(line)
	}
	if err != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
