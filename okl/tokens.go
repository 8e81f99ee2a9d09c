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

package okl

import (
	"fmt"

	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/preprocessor"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// Tokens runs only the tokenizer and preprocessor and returns one
// "origin: token" line per preprocessed token. The CLI's tokens command uses
// it as a debugging view of the stream the parser would consume.
func Tokens(name string, source []byte, opts Options) ([]string, error) {
	collector := &diag.Collector{}
	var sink diag.Sink = collector
	if opts.Sink != nil {
		sink = diag.Tee{collector, opts.Sink}
	}

	lx := lexer.New(name, source, sink)
	pp := preprocessor.New(lx, dialect.C(), preprocessor.Options{
		IncludePaths:     opts.IncludePaths,
		Defines:          opts.Defines,
		StrictRedefine:   opts.StrictRedefine,
		DisableExpansion: !opts.ExpandMacros,
		SkipIncludes:     !opts.InlineIncludes,
	}, sink)

	var lines []string
	for {
		tok := pp.Next()
		if tok.Kind == token.EOF {
			break
		}
		if tok.Kind == token.Newline {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", tok.Origin, tok))
	}
	if collector.Errors() > 0 {
		return lines, collector.Err()
	}
	return lines, nil
}
