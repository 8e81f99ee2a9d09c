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
	"strconv"
	"strings"

	"github.com/EngFlow/okl_cc/okl/internal/ast"
	"github.com/EngFlow/okl_cc/internal/diag"
	"github.com/EngFlow/okl_cc/okl/internal/parser"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// loopTag describes the parsed OKL tag of a for-loop: outer/inner plus nest
// dimension, or a tile with its size expression.
type loopTag struct {
	ioLoop string // "Outer" or "Inner"
	dim    int
	tile   *ast.Node
}

func parseLoopTag(s *parser.Stmt) (loopTag, bool) {
	for _, attr := range s.Attrs {
		switch {
		case strings.HasPrefix(attr, "@outer"):
			if dim, err := strconv.Atoi(attr[len("@outer"):]); err == nil {
				return loopTag{ioLoop: "Outer", dim: dim}, true
			}
		case strings.HasPrefix(attr, "@inner"):
			if dim, err := strconv.Atoi(attr[len("@inner"):]); err == nil {
				return loopTag{ioLoop: "Inner", dim: dim}, true
			}
		case attr == "@tile":
			tag := s.ForHeader[3]
			if tag != nil && tag.Kind == ast.Call && len(tag.Children) == 2 {
				return loopTag{ioLoop: "Outer", tile: tag.Children[1]}, true
			}
			return loopTag{tile: nil, ioLoop: "Outer", dim: -1}, true
		}
	}
	return loopTag{}, false
}

// loopShape is the verified header of a tagged loop.
type loopShape struct {
	iter   *ast.Var
	start  *ast.Node
	bound  *ast.Node
	cmp    string
	stride *ast.Node // nil for unit stride
	down   bool      // true for -- / -=
}

// verifyLoopShape checks the four-expression header form:
// `T iter = start`, `iter CMP bound`, and a ++/--/+=/-= stride on iter.
func (ctx *context) verifyLoopShape(id parser.StmtID) (loopShape, error) {
	s := ctx.prog.Stmt(id)
	var shape loopShape

	if len(s.Vars) != 1 || s.Vars[0].Init == nil {
		return shape, ctx.fatalf(id, "tagged for-loop must declare a single initialized iterator")
	}
	shape.iter = s.Vars[0]
	shape.start = s.Vars[0].Init

	test := s.ForHeader[1]
	if test == nil || test.Kind != ast.Binary {
		return shape, ctx.fatalf(id, "tagged for-loop needs an iterator bound comparison")
	}
	switch test.Op.Lexeme {
	case "<", "<=", ">", ">=":
		shape.cmp = test.Op.Lexeme
	default:
		return shape, ctx.fatalf(id, "tagged for-loop comparison must be one of < <= > >=, found %q", test.Op.Lexeme)
	}
	switch {
	case test.Left().RefName() == shape.iter.Name:
		shape.bound = test.Right()
	case test.Right().RefName() == shape.iter.Name:
		shape.bound = test.Left()
	default:
		return shape, ctx.fatalf(id, "tagged for-loop comparison does not test iterator %q", shape.iter.Name)
	}

	update := s.ForHeader[2]
	if update == nil {
		return shape, ctx.fatalf(id, "tagged for-loop is missing its stride update")
	}
	switch update.Kind {
	case ast.LeftUnary, ast.RightUnary:
		if update.Left().RefName() != shape.iter.Name {
			return shape, ctx.fatalf(id, "stride update does not step iterator %q", shape.iter.Name)
		}
		switch {
		case update.Op.Is(token.Increment):
		case update.Op.Is(token.Decrement):
			shape.down = true
		default:
			return shape, ctx.fatalf(id, "unsupported stride update %q", update.Op.Lexeme)
		}
	case ast.Binary:
		if update.Left().RefName() != shape.iter.Name {
			return shape, ctx.fatalf(id, "stride update does not step iterator %q", shape.iter.Name)
		}
		switch update.Op.Lexeme {
		case "+=":
			shape.stride = update.Right()
		case "-=":
			shape.stride = update.Right()
			shape.down = true
		default:
			return shape, ctx.fatalf(id, "unsupported stride update %q", update.Op.Lexeme)
		}
	default:
		return shape, ctx.fatalf(id, "unsupported stride update")
	}
	return shape, nil
}

// iterationsText renders the loop trip count:
// ((bound) - (start) + ((stride) - 1)) / (stride), constant-folded whenever
// the three parts are compile-time constants.
func (shape loopShape) iterationsText() string {
	strideText := "1"
	if shape.stride != nil {
		strideText = shape.stride.String()
	}
	lo, hi := shape.start, shape.bound
	if shape.down {
		lo, hi = shape.bound, shape.start
	}

	if loV, ok := lo.Evaluate(); ok {
		if hiV, ok := hi.Evaluate(); ok {
			stride := int64(1)
			strideConst := true
			if shape.stride != nil {
				sv, sok := shape.stride.Evaluate()
				strideConst = sok
				if sok {
					stride = sv.AsInt()
				}
			}
			if strideConst && stride > 0 {
				span := hiV.AsInt() - loV.AsInt()
				return strconv.FormatInt((span+stride-1)/stride, 10)
			}
		}
	}
	if strideText == "1" {
		return fmt.Sprintf("((%s) - (%s))", hi.String(), lo.String())
	}
	return fmt.Sprintf("(((%s) - (%s) + ((%s) - 1)) / (%s))", hi.String(), lo.String(), strideText, strideText)
}

func binOp(lexeme string) *token.Op { return token.Lookup(lexeme) }

// iteratorInit builds `start +/- occa<IO>Id<dim>` or
// `start +/- (occa<IO>Id<dim> * (stride))`.
func iteratorInit(shape loopShape, ioLoop string, dim int) *ast.Node {
	at := shape.start.Origin
	idRef := ast.NewIdent(at, fmt.Sprintf("occa%sId%d", ioLoop, dim))

	var step *ast.Node = idRef
	if shape.stride != nil {
		paren := ast.NewNode(ast.Parens, at, shape.stride.Clone())
		step = ast.NewOp(ast.Binary, at, binOp("*"), idRef, paren)
		step = ast.NewNode(ast.Parens, at, step)
	}

	op := "+"
	if shape.down {
		op = "-"
	}
	return ast.NewOp(ast.Binary, at, binOp(op), shape.start.Clone(), step)
}

// adoptBody flattens a single block body into the marker's child list.
func (ctx *context) adoptBody(id parser.StmtID) {
	s := ctx.prog.Stmt(id)
	if len(s.Children) == 1 && ctx.prog.Stmt(s.Children[0]).Kind == parser.StmtBlock {
		block := s.Children[0]
		children := append([]parser.StmtID(nil), ctx.prog.Stmt(block).Children...)
		s.Children = nil
		for _, c := range children {
			ctx.prog.Reparent(c, id)
		}
		// Block scope entries move with the marker.
		for _, v := range ctx.prog.Stmt(block).ScopeVars {
			ctx.prog.DeclareVar(id, v)
		}
	}
}

// convertToMarker rewrites the verified for-loop into an OKL marker whose
// body re-derives the iterator from the occa index identifiers.
func (ctx *context) convertToMarker(id parser.StmtID, shape loopShape, ioLoop string, dim int) {
	marker := fmt.Sprintf("occa%sFor%d", ioLoop, dim)

	ctx.adoptBody(id)

	iter := shape.iter
	iter.Init = iteratorInit(shape, ioLoop, dim)
	iter.PrependLeftQualifier("const")

	declID := ctx.prog.NewStmt(parser.StmtDeclare, id)
	decl := ctx.prog.Stmt(declID)
	decl.Origin = ctx.prog.Stmt(id).Origin
	decl.Vars = []*ast.Var{iter}

	s := ctx.prog.Stmt(id)
	s.Kind = parser.StmtMarker
	s.Marker = marker
	s.Text = shape.iterationsText()
	s.ForHeader = nil
	s.Vars = nil
	s.Children = append([]parser.StmtID{declID}, s.Children...)
	ctx.prog.Stmt(declID).Parent = id
	ctx.prog.DeclareVar(id, iter)
}

// lowerTile expands a `@tile(S)` loop into an outer loop over tiles and an
// inner loop within each tile, guarded against the tail.
func (ctx *context) lowerTile(id parser.StmtID, shape loopShape) error {
	if shape.stride != nil || shape.down {
		return ctx.fatalf(id, "tile loops require a unit ascending stride")
	}
	tag := ctx.prog.Stmt(id).ForHeader[3]
	tile := tag.Children[1]
	at := ctx.prog.Stmt(id).Origin

	// Outer: `const T <iter>Tile = start + ((S) * occaOuterId0);`
	iter := shape.iter
	tileVar := &ast.Var{
		Name:           iter.Name + "Tile",
		BaseType:       iter.BaseType,
		LeftQualifiers: append([]string(nil), iter.LeftQualifiers...),
	}
	tileVar.PrependLeftQualifier("const")
	tileStep := ast.NewOp(ast.Binary, tag.Origin, binOp("*"),
		ast.NewNode(ast.Parens, tag.Origin, tile.Clone()),
		ast.NewIdent(tag.Origin, "occaOuterId0"))
	tileVar.Init = ast.NewOp(ast.Binary, tag.Origin, binOp("+"),
		shape.start.Clone(), ast.NewNode(ast.Parens, tag.Origin, tileStep))

	ctx.adoptBody(id)
	bodyChildren := append([]parser.StmtID(nil), ctx.prog.Stmt(id).Children...)

	s := ctx.prog.Stmt(id)
	s.Kind = parser.StmtMarker
	s.Marker = "occaOuterFor0"
	outerShape := shape
	outerShape.stride = tile
	s.Text = outerShape.iterationsText()
	s.ForHeader = nil
	s.Vars = nil
	s.Children = nil

	tileDeclID := ctx.prog.NewStmt(parser.StmtDeclare, id)
	ctx.prog.Stmt(tileDeclID).Origin = at
	ctx.prog.Stmt(tileDeclID).Vars = []*ast.Var{tileVar}
	ctx.prog.AddChild(id, tileDeclID)
	ctx.prog.DeclareVar(id, tileVar)

	// Inner: `const T iter = <iter>Tile + occaInnerId0; if (iter CMP bound) { body }`
	innerID := ctx.prog.NewStmt(parser.StmtMarker, id)
	inner := ctx.prog.Stmt(innerID)
	inner.Origin = at
	inner.Marker = "occaInnerFor0"
	inner.Text = tile.String()
	ctx.prog.AddChild(id, innerID)

	iter.Init = ast.NewOp(ast.Binary, at, binOp("+"),
		ast.NewIdent(at, tileVar.Name), ast.NewIdent(at, "occaInnerId0"))
	iter.PrependLeftQualifier("const")
	iterDeclID := ctx.prog.NewStmt(parser.StmtDeclare, innerID)
	ctx.prog.Stmt(iterDeclID).Origin = at
	ctx.prog.Stmt(iterDeclID).Vars = []*ast.Var{iter}
	ctx.prog.AddChild(innerID, iterDeclID)
	ctx.prog.DeclareVar(innerID, iter)

	guardID := ctx.prog.NewStmt(parser.StmtIf, innerID)
	guard := ctx.prog.Stmt(guardID)
	guard.Origin = at
	guard.Expr = ast.NewOp(ast.Binary, at, binOp(shape.cmp),
		ast.NewIdent(at, iter.Name), shape.bound.Clone())
	ctx.prog.AddChild(innerID, guardID)

	guardBody := ctx.prog.NewStmt(parser.StmtBlock, guardID)
	ctx.prog.Stmt(guardBody).Origin = at
	ctx.prog.AddChild(guardID, guardBody)
	for _, c := range bodyChildren {
		ctx.prog.Reparent(c, guardBody)
	}
	return nil
}

// setupOklFors verifies and lowers every four-expression tagged loop inside
// the transformable kernels.
func (ctx *context) setupOklFors() error {
	for _, kernel := range ctx.kernels {
		if !ctx.transformable(kernel) {
			continue
		}
		// Collect first: the conversion mutates the tree.
		var loops []parser.StmtID
		ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
			s := ctx.prog.Stmt(id)
			if s.Kind == parser.StmtFor && len(s.ForHeader) == 4 {
				loops = append(loops, id)
			}
			return true
		})
		for _, id := range loops {
			tag, ok := parseLoopTag(ctx.prog.Stmt(id))
			if !ok {
				return ctx.fatalf(id, "four-expression for-loop carries no OKL tag")
			}
			shape, err := ctx.verifyLoopShape(id)
			if err != nil {
				return err
			}
			if tag.tile != nil || tag.dim < 0 {
				if tag.tile == nil {
					return ctx.fatalf(id, "tile loop is missing its tile size")
				}
				if err := ctx.lowerTile(id, shape); err != nil {
					return err
				}
				continue
			}
			if tag.dim > 2 {
				return ctx.fatalf(id, "loop dimension %d is out of range", tag.dim)
			}
			ctx.convertToMarker(id, shape, tag.ioLoop, tag.dim)
		}
	}
	return nil
}

// markerDim extracts the dimension digit of an occa loop marker name.
func markerDim(marker string) int {
	if marker == "" {
		return -1
	}
	return int(marker[len(marker)-1] - '0')
}

func isOuterMarker(s *parser.Stmt) bool {
	return s.Kind == parser.StmtMarker && strings.HasPrefix(s.Marker, "occaOuterFor")
}

func isInnerMarker(s *parser.Stmt) bool {
	return s.Kind == parser.StmtMarker && strings.HasPrefix(s.Marker, "occaInnerFor")
}

// isBarrierStmt recognizes explicit and synthesized barrier statements.
func (ctx *context) isBarrierStmt(id parser.StmtID) bool {
	s := ctx.prog.Stmt(id)
	switch s.Kind {
	case parser.StmtSource:
		return strings.Contains(s.Text, "occaBarrier")
	case parser.StmtUpdate:
		if s.Expr != nil && s.Expr.Kind == ast.Call {
			callee := s.Expr.Left().RefName()
			return callee == "occaBarrier" || callee == "barrier"
		}
	}
	return false
}

// normalizeBarriers rewrites `barrier(localMemFence)` style calls into the
// emitted sentinel spelling.
func (ctx *context) normalizeBarriers(kernel parser.StmtID) {
	renames := map[string]string{
		"barrier":        "occaBarrier",
		"localMemFence":  "occaLocalMemFence",
		"globalMemFence": "occaGlobalMemFence",
	}
	ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
		if !ctx.isBarrierStmt(id) {
			return true
		}
		s := ctx.prog.Stmt(id)
		if s.Expr == nil {
			return true
		}
		s.Expr.Walk(func(n *ast.Node) bool {
			if name := n.RefName(); name != "" {
				if to, ok := renames[name]; ok {
					n.Kind = ast.Ident
					n.Lexeme = to
					n.Var = nil
				}
			}
			return true
		})
		return true
	})
}

// innerChain returns the maximal unambiguous chain of directly nested inner
// markers starting at top.
func (ctx *context) innerChain(top parser.StmtID) []parser.StmtID {
	chain := []parser.StmtID{top}
	current := top
	for {
		var nested []parser.StmtID
		for _, c := range ctx.prog.Stmt(current).Children {
			if isInnerMarker(ctx.prog.Stmt(c)) {
				nested = append(nested, c)
			}
		}
		if len(nested) != 1 {
			return chain
		}
		chain = append(chain, nested[0])
		current = nested[0]
	}
}

// renumberInnerChain forces descending dims from the outermost chain link
// down to dim 0, rewriting marker names and their occaInnerId references.
func (ctx *context) renumberInnerChain(chain []parser.StmtID) error {
	size := len(chain)
	seen := map[int]bool{}
	for _, id := range chain {
		dim := markerDim(ctx.prog.Stmt(id).Marker)
		if dim < 0 || dim >= size || seen[dim] {
			return ctx.fatalf(chain[0], "inner loops have duplicate or out-of-range dimensions")
		}
		seen[dim] = true
	}
	for k, id := range chain {
		s := ctx.prog.Stmt(id)
		oldDim := markerDim(s.Marker)
		newDim := size - 1 - k
		if oldDim == newDim {
			continue
		}
		s.Marker = fmt.Sprintf("occaInnerFor%d", newDim)
		oldName := fmt.Sprintf("occaInnerId%d", oldDim)
		newName := fmt.Sprintf("occaInnerId%d", newDim)
		for _, c := range s.Children {
			for _, root := range ctx.prog.Stmt(c).Exprs() {
				root.Walk(func(n *ast.Node) bool {
					if n.Kind == ast.Ident && n.Lexeme == oldName {
						n.Lexeme = newName
					}
					return true
				})
			}
		}
	}
	return nil
}

// insertBarriers synthesizes a local memory fence between adjacent inner
// loop groups that lack an explicit one.
func (ctx *context) insertBarriers(kernel parser.StmtID) {
	var parents []parser.StmtID
	ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
		parents = append(parents, id)
		return true
	})
	for _, parent := range parents {
		children := append([]parser.StmtID(nil), ctx.prog.Stmt(parent).Children...)
		prevWasInner := false
		for _, c := range children {
			s := ctx.prog.Stmt(c)
			switch {
			case isInnerMarker(s):
				if prevWasInner {
					if ctx.opts.WarnMissingBarriers {
						diag.Warnf(ctx.sink, s.Origin, "inserting an implicit occaBarrier between inner loops")
					}
					barrier := ctx.prog.NewStmt(parser.StmtSource, parent)
					ctx.prog.Stmt(barrier).Origin = s.Origin
					ctx.prog.Stmt(barrier).Text = "occaBarrier(occaLocalMemFence);"
					ctx.prog.InsertChildBefore(parent, barrier, c)
				}
				prevWasInner = true
			case ctx.isBarrierStmt(c):
				prevWasInner = false
			case s.Kind == parser.StmtEmpty:
				// Empty statements do not separate groups.
			default:
				prevWasInner = false
			}
		}
	}
}

// warnConditionalBarriers flags barriers below a conditional, where inner
// iterations may disagree about reaching the fence.
func (ctx *context) warnConditionalBarriers(kernel parser.StmtID) {
	ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
		if !ctx.isBarrierStmt(id) {
			return true
		}
		for up := id; up != kernel && up != parser.NoStmt; up = ctx.prog.Stmt(up).Parent {
			switch ctx.prog.Stmt(up).Kind {
			case parser.StmtIf, parser.StmtElseIf, parser.StmtElse, parser.StmtSwitch:
				diag.Warnf(ctx.sink, ctx.prog.Stmt(id).Origin, "barrier inside a conditional")
				return true
			}
		}
		return true
	})
}

// collectLoopInfo records per-dimension iteration counts into the kernel
// summary, after any renumbering settled the dims.
func (ctx *context) collectLoopInfo(kernel parser.StmtID) error {
	info := ctx.info[kernel]
	var fail error
	ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
		s := ctx.prog.Stmt(id)
		if s.Kind != parser.StmtMarker || s.Text == "" {
			return true
		}
		dim := markerDim(s.Marker)
		switch {
		case isOuterMarker(s):
			if info.OuterDims[dim] == "" {
				info.OuterDims[dim] = s.Text
			}
		case isInnerMarker(s):
			if info.InnerDims[dim] != "" && info.InnerDims[dim] != s.Text {
				fail = ctx.fatalf(id, "conflicting iteration counts for inner dimension %d", dim)
				return false
			}
			info.InnerDims[dim] = s.Text
		}
		return true
	})
	return fail
}

// fixLoopOrder renumbers inner-loop nests into descending dim order,
// normalizes barrier spellings, inserts missing barriers between adjacent
// inner groups and collects the loop summaries.
func (ctx *context) fixLoopOrder() error {
	for _, kernel := range ctx.kernels {
		if !ctx.transformable(kernel) {
			continue
		}
		ctx.normalizeBarriers(kernel)

		// Chain tops: inner markers whose parent chain reaches an outer
		// marker before another inner one.
		var tops, orphans []parser.StmtID
		ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
			s := ctx.prog.Stmt(id)
			if !isInnerMarker(s) {
				return true
			}
			for parent := s.Parent; parent != parser.NoStmt; parent = ctx.prog.Stmt(parent).Parent {
				ps := ctx.prog.Stmt(parent)
				if isInnerMarker(ps) {
					return true // not a top
				}
				if isOuterMarker(ps) {
					tops = append(tops, id)
					return true
				}
				if parent == kernel {
					break
				}
			}
			orphans = append(orphans, id)
			return true
		})
		if len(orphans) > 0 {
			return ctx.fatalf(orphans[0], "inner loop has no enclosing outer loop")
		}
		for _, top := range tops {
			if err := ctx.renumberInnerChain(ctx.innerChain(top)); err != nil {
				return err
			}
		}

		ctx.insertBarriers(kernel)
		if ctx.opts.WarnConditionalBarriers {
			ctx.warnConditionalBarriers(kernel)
		}
		if err := ctx.collectLoopInfo(kernel); err != nil {
			return err
		}
	}
	return nil
}

// addParallelFors inserts the occaParallelFor marker before every top-level
// outer loop nest.
func (ctx *context) addParallelFors() error {
	for _, kernel := range ctx.kernels {
		if !ctx.transformable(kernel) {
			continue
		}
		var tops []parser.StmtID
		ctx.prog.Walk(kernel, func(id parser.StmtID) bool {
			s := ctx.prog.Stmt(id)
			if !isOuterMarker(s) {
				return true
			}
			for up := s.Parent; up != parser.NoStmt && up != kernel; up = ctx.prog.Stmt(up).Parent {
				if isOuterMarker(ctx.prog.Stmt(up)) {
					return true // nested in another outer loop
				}
			}
			tops = append(tops, id)
			return true
		})
		for _, top := range tops {
			parent := ctx.prog.Stmt(top).Parent
			dim := markerDim(ctx.prog.Stmt(top).Marker)
			at := ctx.prog.Stmt(top).Origin
			parallel := ctx.prog.NewStmt(parser.StmtMarker, parent)
			ps := ctx.prog.Stmt(parallel)
			ps.Origin = at
			ps.Marker = fmt.Sprintf("occaParallelFor%d", dim)
			ctx.prog.InsertChildBefore(parent, parallel, top)
		}
	}
	return nil
}
