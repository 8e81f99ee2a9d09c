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

// Package preprocessor sits between the tokenizer and the parser as a lazy
// token-to-token transducer. It handles the conditional directives, macro
// definition and expansion, includes, #line rewrites and the #error/#warning
// reporting directives, and maintains the include dependency set.
//
// The parser pulls tokens with Next; nothing is pushed. Errors inside a
// directive discard the rest of the logical line and processing continues at
// the next newline, so one run surfaces as many diagnostics as possible.
package preprocessor

import (
	"cmp"
	"time"

	"github.com/EngFlow/okl_cc/internal/collections"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/dialect"
	"github.com/EngFlow/okl_cc/okl/internal/lexer"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// Options selects preprocessor behavior.
type Options struct {
	// IncludePaths is the ordered include search path. Entries may be
	// doublestar patterns matching several directories.
	IncludePaths []string

	// Defines are initial object-like macro definitions, NAME or
	// NAME=VALUE.
	Defines []string

	// StrictRedefine warns when a macro is redefined with a different
	// body. Default is the silent replace of the classic preprocessors.
	StrictRedefine bool

	// DisableExpansion passes macro names through unexpanded. Directive
	// handling, including #if evaluation, is unaffected.
	DisableExpansion bool

	// SkipIncludes records include dependencies without splicing the
	// files in.
	SkipIncludes bool
}

// status is one frame of the conditional-inclusion stack. reading and
// ignoring are mutually exclusive, so one bit suffices; finishedIf sticks
// from the first taken branch to the closing #endif.
type status struct {
	reading    bool
	foundElse  bool
	finishedIf bool
	at         token.Token
}

// Preprocessor is a pull-stream over a Lexer. It implements the parser's
// TokenStream.
type Preprocessor struct {
	lx   *lexer.Lexer
	d    *dialect.Dialect
	sink diag.Sink
	opts Options

	// compiler macros are frozen after construction; source macros mutate
	// under #define/#undef.
	compiler map[string]*Macro
	source   map[string]*Macro

	stack []status

	// pending holds lookahead pushbacks, drained before the lexer is
	// pulled again; expandedOut holds finished macro-expansion output that
	// must not be rescanned.
	pending     []token.Token
	expandedOut []token.Token

	atLineStart bool
	counter     int
	deps        collections.Set[string]

	now time.Time
}

// New builds a preprocessor over the lexer. Initial -D style definitions are
// installed as source macros.
func New(lx *lexer.Lexer, d *dialect.Dialect, opts Options, sink diag.Sink) *Preprocessor {
	pp := &Preprocessor{
		lx:          lx,
		d:           d,
		sink:        sink,
		opts:        opts,
		source:      map[string]*Macro{},
		stack:       []status{{reading: true}},
		atLineStart: true,
		deps:        collections.Set[string]{},
		now:         time.Now(),
	}
	pp.compiler = builtinMacros()
	for _, def := range opts.Defines {
		pp.defineFromFlag(def)
	}
	return pp
}

// Dependencies returns the sorted set of files spliced in by #include.
func (pp *Preprocessor) Dependencies() []string {
	return pp.deps.SortedValues(cmp.Compare)
}

// ConditionalDepth returns the number of unclosed conditional frames plus
// the implicit outer reading frame; 1 for a balanced source.
func (pp *Preprocessor) ConditionalDepth() int { return len(pp.stack) }

func (pp *Preprocessor) reading() bool {
	return pp.stack[len(pp.stack)-1].reading
}

// parentReading reports whether the frames enclosing the top one all read.
func (pp *Preprocessor) parentReading() bool {
	for _, st := range pp.stack[:len(pp.stack)-1] {
		if !st.reading {
			return false
		}
	}
	return true
}

// pull returns the next raw token, draining pushbacks first.
func (pp *Preprocessor) pull() token.Token {
	if len(pp.pending) > 0 {
		t := pp.pending[0]
		pp.pending = pp.pending[1:]
		return t
	}
	return pp.lx.Next()
}

// pushBack queues tokens to be delivered before the lexer is pulled again.
func (pp *Preprocessor) pushBack(ts ...token.Token) {
	pp.pending = append(ts, pp.pending...)
}

// Next returns the next preprocessed token. At EOF it reports any conditional
// frames left unclosed.
func (pp *Preprocessor) Next() token.Token {
	for {
		if len(pp.expandedOut) > 0 {
			t := pp.expandedOut[0]
			pp.expandedOut = pp.expandedOut[1:]
			return t
		}
		t := pp.pull()
		switch t.Kind {
		case token.EOF:
			if len(pp.stack) > 1 {
				top := pp.stack[len(pp.stack)-1]
				diag.Errorf(pp.sink, top.at.Origin, "unterminated conditional directive")
				pp.stack = pp.stack[:1]
			}
			return t

		case token.Newline:
			pp.atLineStart = true
			if pp.reading() {
				return t
			}

		case token.Operator:
			if t.IsOp("#") && pp.atLineStart {
				pp.handleDirective(t)
				continue
			}
			pp.atLineStart = false
			if pp.reading() {
				return t
			}

		case token.Identifier:
			pp.atLineStart = false
			if !pp.reading() {
				continue
			}
			if out, expanded := pp.maybeExpand(t); expanded {
				pp.expandedOut = append(pp.expandedOut, out...)
				continue
			}
			return t

		default:
			pp.atLineStart = false
			if pp.reading() {
				return t
			}
		}
	}
}

// readLine collects the remaining tokens of the current logical line. The
// terminating newline is consumed.
func (pp *Preprocessor) readLine() []token.Token {
	var ts []token.Token
	for {
		t := pp.pull()
		switch t.Kind {
		case token.EOF:
			pp.atLineStart = true
			return ts
		case token.Newline:
			pp.atLineStart = true
			return ts
		default:
			ts = append(ts, t)
		}
	}
}
