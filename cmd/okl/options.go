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
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/EngFlow/okl_cc/okl"
)

// stringList collects repeatable flags (-I, -D).
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// optionFlags is the flag set shared by the translate and tokens commands.
type optionFlags struct {
	includes stringList
	defines  stringList
	mode     string
	config   string
	strict   bool
}

func (of *optionFlags) register(f *flag.FlagSet) {
	f.Var(&of.includes, "I", "add a directory (or glob of directories) to the include search path")
	f.Var(&of.defines, "D", "define a macro, NAME or NAME=VALUE")
	f.StringVar(&of.mode, "mode", "serial", "target backend: serial, openmp, cuda or opencl")
	f.StringVar(&of.config, "config", "", "YAML file holding translator options")
	f.BoolVar(&of.strict, "strict-redefine", false, "warn when a macro definition is silently replaced")
}

// build merges defaults, the optional config file and the command line into
// the translator option bag.
func (of *optionFlags) build() (okl.Options, error) {
	opts := okl.DefaultOptions()
	if of.config != "" {
		data, err := os.ReadFile(of.config)
		if err != nil {
			return opts, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return opts, fmt.Errorf("parsing config %s: %w", of.config, err)
		}
	}
	opts.IncludePaths = append(opts.IncludePaths, of.includes...)
	opts.Defines = append(opts.Defines, of.defines...)
	opts.StrictRedefine = opts.StrictRedefine || of.strict

	opts.Serial, opts.OpenMP, opts.CUDA, opts.OpenCL = false, false, false, false
	switch of.mode {
	case "serial":
		opts.Serial = true
	case "openmp":
		opts.OpenMP = true
	case "cuda":
		opts.CUDA = true
	case "opencl":
		opts.OpenCL = true
	default:
		return opts, fmt.Errorf("unknown mode %q", of.mode)
	}
	return opts, nil
}

// expandSources resolves the positional arguments, allowing doublestar
// patterns like kernels/**/*.okl.
func expandSources(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			files = append(files, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matches no files", arg)
		}
		files = append(files, matches...)
	}
	return files, nil
}
