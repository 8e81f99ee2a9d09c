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

package ast

import (
	"strings"

	"github.com/EngFlow/okl_cc/internal/collections"
	"github.com/EngFlow/okl_cc/okl/internal/token"
)

// String renders the subtree in conventional C style: no space between a
// unary operator and its operand, single spaces around binary operators,
// comma followed by a space, member and scope operators tight, no space
// inside [].
func (n *Node) String() string {
	var sb strings.Builder
	n.print(&sb)
	return sb.String()
}

func (n *Node) print(sb *strings.Builder) {
	if n == nil {
		return
	}
	switch n.Kind {
	case Empty:
	case Primitive, Ident:
		sb.WriteString(n.Lexeme)
	case CharLit, StringLit:
		sb.WriteString(n.Lexeme)
	case VarRef:
		sb.WriteString(n.Var.Name)
	case TypeRef:
		sb.WriteString(n.Type.Name)
	case LeftUnary:
		sb.WriteString(n.Op.Lexeme)
		n.Left().print(sb)
	case RightUnary:
		n.Left().print(sb)
		sb.WriteString(n.Op.Lexeme)
	case Binary:
		n.printBinary(sb)
	case Ternary:
		n.child(0).print(sb)
		sb.WriteString(" ? ")
		n.child(1).print(sb)
		sb.WriteString(" : ")
		n.child(2).print(sb)
	case Subscript:
		n.child(0).print(sb)
		sb.WriteByte('[')
		n.child(1).print(sb)
		sb.WriteByte(']')
	case Call:
		n.child(0).print(sb)
		sb.WriteByte('(')
		printList(sb, n.Children[1:])
		sb.WriteByte(')')
	case New:
		sb.WriteString("new ")
		n.Left().print(sb)
	case Delete:
		sb.WriteString("delete ")
		if n.IsArrayDelete {
			sb.WriteString("[] ")
		}
		n.Left().print(sb)
	case Throw:
		sb.WriteString("throw")
		if n.Left() != nil && n.Left().Kind != Empty {
			sb.WriteByte(' ')
			n.Left().print(sb)
		}
	case Sizeof:
		sb.WriteString("sizeof(")
		n.Left().print(sb)
		sb.WriteByte(')')
	case Cast:
		sb.WriteByte('(')
		sb.WriteString(n.castTypeText())
		sb.WriteString(") ")
		n.Left().print(sb)
	case Parens:
		sb.WriteByte('(')
		n.Left().print(sb)
		sb.WriteByte(')')
	case Tuple:
		sb.WriteByte('{')
		printList(sb, n.Children)
		sb.WriteByte('}')
	case CudaCall:
		n.child(0).print(sb)
		sb.WriteString("<<<")
		n.child(1).print(sb)
		sb.WriteString(", ")
		n.child(2).print(sb)
		sb.WriteString(">>>")
	}
}

func (n *Node) castTypeText() string {
	if n.Type == nil {
		return ""
	}
	var parts []string
	parts = append(parts, n.Type.LeftQualifiers...)
	parts = append(parts, n.Type.Name)
	return strings.Join(parts, " ")
}

func (n *Node) printBinary(sb *strings.Builder) {
	switch {
	case n.Op.Is(token.Member | token.Scope):
		n.Left().print(sb)
		sb.WriteString(n.Op.Lexeme)
		n.Right().print(sb)
	case n.Op.Is(token.Comma):
		n.Left().print(sb)
		sb.WriteString(", ")
		n.Right().print(sb)
	default:
		n.Left().print(sb)
		sb.WriteByte(' ')
		sb.WriteString(n.Op.Lexeme)
		sb.WriteByte(' ')
		n.Right().print(sb)
	}
}

func printList(sb *strings.Builder, nodes []*Node) {
	sb.WriteString(strings.Join(collections.MapSlice(nodes, (*Node).String), ", "))
}

// FlattenCommas returns the comma-chain elements of a subtree in source
// order: for `a, b, c` it yields [a b c]; for any other tree, the tree
// itself. Used to harvest call and declaration argument lists.
func FlattenCommas(n *Node) []*Node {
	if n == nil || n.Kind == Empty {
		return nil
	}
	if n.Kind == Binary && n.Op.Is(token.Comma) {
		return append(FlattenCommas(n.Left()), FlattenCommas(n.Right())...)
	}
	return []*Node{n}
}
