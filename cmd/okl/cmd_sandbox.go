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
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/EngFlow/okl_cc/okl"
	"github.com/EngFlow/okl_cc/internal/diag"
)

type sandboxCmd struct {
	opts optionFlags
}

func (*sandboxCmd) Name() string     { return "sandbox" }
func (*sandboxCmd) Synopsis() string { return "Interactively translate kernel snippets" }
func (*sandboxCmd) Usage() string {
	return `sandbox:
  Read a kernel snippet from stdin (finish with a blank line), print its
  translation. 'exit' quits.
`
}

func (c *sandboxCmd) SetFlags(f *flag.FlagSet) { c.opts.register(f) }

func (c *sandboxCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	opts, err := c.opts.build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	sandbox(os.Stdin, os.Stdout, opts)
	return subcommands.ExitSuccess
}

func sandbox(in io.Reader, out io.Writer, opts okl.Options) {
	opts.Sink = diag.Writer{W: out}
	scanner := bufio.NewScanner(in)
	var snippet strings.Builder

	fmt.Fprint(out, ">>> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "exit" {
			return
		}
		if line != "" {
			snippet.WriteString(line)
			snippet.WriteByte('\n')
			fmt.Fprint(out, "... ")
			continue
		}
		if snippet.Len() == 0 {
			fmt.Fprint(out, ">>> ")
			continue
		}
		result, err := okl.Translate("<sandbox>", []byte(snippet.String()), opts)
		if err == nil {
			fmt.Fprint(out, result.Source)
		}
		snippet.Reset()
		fmt.Fprint(out, ">>> ")
	}
}
