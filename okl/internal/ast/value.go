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
	"strconv"
	"strings"
)

// Value is the result of constant-folding a subtree: an integer or a float.
// The preprocessor folds `#if` conditions with it; general parsing never
// folds.
type Value struct {
	IsFloat bool
	Int     int64
	Float   float64
}

// IntValue makes an integer Value.
func IntValue(i int64) Value { return Value{Int: i} }

// BoolValue makes 1 or 0.
func BoolValue(b bool) Value {
	if b {
		return Value{Int: 1}
	}
	return Value{}
}

// AsBool reports C truthiness.
func (v Value) AsBool() bool {
	if v.IsFloat {
		return v.Float != 0
	}
	return v.Int != 0
}

// AsFloat widens to float64.
func (v Value) AsFloat() float64 {
	if v.IsFloat {
		return v.Float
	}
	return float64(v.Int)
}

// AsInt truncates to int64.
func (v Value) AsInt() int64 {
	if v.IsFloat {
		return int64(v.Float)
	}
	return v.Int
}

// ParseNumber interprets a numeric literal lexeme, base prefix and suffix
// included.
func ParseNumber(lexeme string) (Value, bool) {
	body := strings.TrimRight(lexeme, "uUlL")
	floatSuffix := false
	if f := strings.TrimRight(body, "fF"); f != body && !strings.HasPrefix(body, "0x") && !strings.HasPrefix(body, "0X") {
		body = f
		floatSuffix = true
	}
	if body == "" {
		return Value{}, false
	}

	isFloat := floatSuffix || strings.ContainsAny(body, ".")
	if !strings.HasPrefix(body, "0x") && !strings.HasPrefix(body, "0X") {
		isFloat = isFloat || strings.ContainsAny(body, "eE")
	}
	if isFloat {
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return Value{}, false
		}
		return Value{IsFloat: true, Float: f}, true
	}

	base := 10
	switch {
	case strings.HasPrefix(body, "0x"), strings.HasPrefix(body, "0X"):
		base, body = 16, body[2:]
	case strings.HasPrefix(body, "0b"), strings.HasPrefix(body, "0B"):
		base, body = 2, body[2:]
	case len(body) > 1 && body[0] == '0':
		base, body = 8, body[1:]
	}
	i, err := strconv.ParseInt(body, base, 64)
	if err != nil {
		return Value{}, false
	}
	return Value{Int: i}, true
}

// parseCharLexeme evaluates a character literal (quotes included) to its
// integer value. Multi-character and wide literals are not evaluable.
func parseCharLexeme(lexeme string) (Value, bool) {
	s, err := strconv.Unquote(lexeme)
	if err != nil {
		return Value{}, false
	}
	runes := []rune(s)
	if len(runes) != 1 {
		return Value{}, false
	}
	return IntValue(int64(runes[0])), true
}

// CanEvaluate reports whether the subtree folds to a constant. Scope, member
// access, dereference and address-of are never evaluable.
func (n *Node) CanEvaluate() bool {
	_, ok := n.Evaluate()
	return ok
}

// Evaluate constant-folds the subtree. The boolean result is false when any
// part of the tree is not a compile-time constant.
func (n *Node) Evaluate() (Value, bool) {
	if n == nil {
		return Value{}, false
	}
	switch n.Kind {
	case Primitive:
		return ParseNumber(n.Lexeme)
	case CharLit:
		return parseCharLexeme(n.Lexeme)
	case Parens:
		return n.Left().Evaluate()
	case LeftUnary:
		return n.evalLeftUnary()
	case Binary:
		return n.evalBinary()
	case Ternary:
		cond, ok := n.child(0).Evaluate()
		if !ok {
			return Value{}, false
		}
		if cond.AsBool() {
			return n.child(1).Evaluate()
		}
		return n.child(2).Evaluate()
	case Cast:
		return n.evalCast()
	default:
		return Value{}, false
	}
}

func (n *Node) evalLeftUnary() (Value, bool) {
	v, ok := n.Left().Evaluate()
	if !ok || n.Op == nil {
		return Value{}, false
	}
	switch n.Op.Lexeme {
	case "+":
		return v, true
	case "-":
		if v.IsFloat {
			return Value{IsFloat: true, Float: -v.Float}, true
		}
		return IntValue(-v.Int), true
	case "!":
		return BoolValue(!v.AsBool()), true
	case "~":
		if v.IsFloat {
			return Value{}, false
		}
		return IntValue(^v.Int), true
	default:
		// Dereference, address-of, increment: not evaluable.
		return Value{}, false
	}
}

func (n *Node) evalBinary() (Value, bool) {
	if n.Op == nil {
		return Value{}, false
	}
	l, ok := n.Left().Evaluate()
	if !ok {
		return Value{}, false
	}
	// Short-circuit forms only need the left side when it decides.
	switch n.Op.Lexeme {
	case "&&":
		if !l.AsBool() {
			return BoolValue(false), true
		}
	case "||":
		if l.AsBool() {
			return BoolValue(true), true
		}
	}
	r, ok := n.Right().Evaluate()
	if !ok {
		return Value{}, false
	}

	if l.IsFloat || r.IsFloat {
		return evalFloatBinary(n.Op.Lexeme, l.AsFloat(), r.AsFloat())
	}
	return evalIntBinary(n.Op.Lexeme, l.Int, r.Int)
}

func evalIntBinary(op string, l, r int64) (Value, bool) {
	switch op {
	case "+":
		return IntValue(l + r), true
	case "-":
		return IntValue(l - r), true
	case "*":
		return IntValue(l * r), true
	case "/":
		if r == 0 {
			return Value{}, false
		}
		return IntValue(l / r), true
	case "%":
		if r == 0 {
			return Value{}, false
		}
		return IntValue(l % r), true
	case "<<":
		return IntValue(l << uint(r)), true
	case ">>":
		return IntValue(l >> uint(r)), true
	case "&":
		return IntValue(l & r), true
	case "|":
		return IntValue(l | r), true
	case "^":
		return IntValue(l ^ r), true
	case "&&":
		return BoolValue(l != 0 && r != 0), true
	case "||":
		return BoolValue(l != 0 || r != 0), true
	case "==":
		return BoolValue(l == r), true
	case "!=":
		return BoolValue(l != r), true
	case "<":
		return BoolValue(l < r), true
	case "<=":
		return BoolValue(l <= r), true
	case ">":
		return BoolValue(l > r), true
	case ">=":
		return BoolValue(l >= r), true
	default:
		return Value{}, false
	}
}

func evalFloatBinary(op string, l, r float64) (Value, bool) {
	switch op {
	case "+":
		return Value{IsFloat: true, Float: l + r}, true
	case "-":
		return Value{IsFloat: true, Float: l - r}, true
	case "*":
		return Value{IsFloat: true, Float: l * r}, true
	case "/":
		if r == 0 {
			return Value{}, false
		}
		return Value{IsFloat: true, Float: l / r}, true
	case "&&":
		return BoolValue(l != 0 && r != 0), true
	case "||":
		return BoolValue(l != 0 || r != 0), true
	case "==":
		return BoolValue(l == r), true
	case "!=":
		return BoolValue(l != r), true
	case "<":
		return BoolValue(l < r), true
	case "<=":
		return BoolValue(l <= r), true
	case ">":
		return BoolValue(l > r), true
	case ">=":
		return BoolValue(l >= r), true
	default:
		return Value{}, false
	}
}

var floatTypes = map[string]bool{"float": true, "double": true}

func (n *Node) evalCast() (Value, bool) {
	v, ok := n.Left().Evaluate()
	if !ok || n.Type == nil {
		return Value{}, false
	}
	if floatTypes[n.Type.Underlying().Name] {
		return Value{IsFloat: true, Float: v.AsFloat()}, true
	}
	return IntValue(v.AsInt()), true
}
