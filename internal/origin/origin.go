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

// Package origin tracks the provenance of tokens and AST nodes: the logical
// file name plus line, column and byte span within it. Origins are created by
// the tokenizer and copied, never mutated, through the later phases, so every
// diagnostic and every __FILE__/__LINE__ expansion can point back at the
// source text.
package origin

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Origin identifies a span of source text. Line and Column are 1-based, which
// is natural for humans; Start and End are byte offsets into the originating
// buffer with Start <= End.
type Origin struct {
	Path         string
	Line, Column int
	Start, End   int
}

func (o Origin) String() string {
	path := o.Path
	if path == "" {
		path = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", path, o.Line, o.Column)
}

// IsZero reports whether the origin carries no position information.
func (o Origin) IsZero() bool {
	return o == Origin{}
}

// Cursor is a position in the source being scanned. The tokenizer advances a
// cursor as it consumes bytes and snapshots it into token origins.
type Cursor struct {
	Line, Column int
	Offset       int
}

// CursorInit is the initial cursor position, at the beginning of a file.
var CursorInit = Cursor{Line: 1, Column: 1}

// AdvancedBy returns a new Cursor advanced past the given text. Assumes the
// current cursor points at the beginning of text and returns the position
// right after it.
//
// Newlines in text increment the line number and reset the column; other
// characters increment the column.
func (c Cursor) AdvancedBy(text string) Cursor {
	newlinesCount := strings.Count(text, "\n")
	tailBegin := 1 + strings.LastIndex(text, "\n")
	tailLength := utf8.RuneCountInString(text[tailBegin:])

	if newlinesCount == 0 {
		c.Column += tailLength
	} else {
		c.Line += newlinesCount
		c.Column = 1 + tailLength
	}
	c.Offset += len(text)

	return c
}

// Spanning returns the origin covering the text consumed between c and the
// cursor after it, attributed to path.
func (c Cursor) Spanning(path, text string) Origin {
	return Origin{
		Path:   path,
		Line:   c.Line,
		Column: c.Column,
		Start:  c.Offset,
		End:    c.Offset + len(text),
	}
}
