/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Scenario values are cty values restricted to three types: cty.Number
// (integers as written in scripts), cty.Bool and cty.String. Operations are
// defined only between values of the same type; a mismatch is reported to the
// caller, never fatal.

// Variables is the flat global variable store of one running scenario.
type Variables map[string]cty.Value

// Clone returns an independent copy of the store. cty values are immutable,
// so a shallow map copy is sufficient.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ParseLiteral infers a typed value from raw script text: integer first,
// then boolean, then the raw text itself.
func ParseLiteral(raw string) cty.Value {
	if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
		return cty.NumberIntVal(n)
	}
	switch strings.TrimSpace(raw) {
	case "true":
		return cty.True
	case "false":
		return cty.False
	}
	return cty.StringVal(raw)
}

// FormatValue renders a value the way scripts write literals.
func FormatValue(v cty.Value) string {
	if v == cty.NilVal {
		return ""
	}
	switch v.Type() {
	case cty.Number:
		i, _ := v.AsBigFloat().Int(nil)
		return i.String()
	case cty.Bool:
		return strconv.FormatBool(v.True())
	default:
		return v.AsString()
	}
}

// TypeName returns the scenario-facing name of a value's type.
func TypeName(v cty.Value) string {
	switch v.Type() {
	case cty.Number:
		return "int"
	case cty.Bool:
		return "bool"
	default:
		return "text"
	}
}

// Comparator is one of the six ordering operators of JUMP_IF.
type Comparator int

const (
	CompEq Comparator = iota
	CompNe
	CompLt
	CompLte
	CompGt
	CompGte
)

var comparatorNames = map[string]Comparator{
	"eq": CompEq, "ne": CompNe,
	"lt": CompLt, "lte": CompLte,
	"gt": CompGt, "gte": CompGte,
}

// ParseComparator converts an op= token into a Comparator.
func ParseComparator(s string) (Comparator, bool) {
	c, ok := comparatorNames[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

func (c Comparator) String() string {
	for name, v := range comparatorNames {
		if v == c {
			return name
		}
	}
	return fmt.Sprintf("comparator(%d)", int(c))
}

// Compare evaluates a comparator between two values. Numbers support all six
// operators. Booleans and text support only eq/ne; any other comparator on
// them evaluates to false. A type mismatch also evaluates to false. This
// permissiveness is deliberate: condition checks degrade instead of aborting
// a running scenario.
func Compare(a cty.Value, c Comparator, b cty.Value) bool {
	if a == cty.NilVal || b == cty.NilVal {
		return false
	}
	if !a.Type().Equals(b.Type()) {
		return false
	}
	if a.Type() == cty.Number {
		cmp := a.AsBigFloat().Cmp(b.AsBigFloat())
		switch c {
		case CompEq:
			return cmp == 0
		case CompNe:
			return cmp != 0
		case CompLt:
			return cmp < 0
		case CompLte:
			return cmp <= 0
		case CompGt:
			return cmp > 0
		case CompGte:
			return cmp >= 0
		}
		return false
	}
	switch c {
	case CompEq:
		return a.RawEquals(b)
	case CompNe:
		return !a.RawEquals(b)
	}
	return false
}

// ArithOp is a MODIFY operator.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
)

var arithNames = map[string]ArithOp{
	"add": OpAdd, "sub": OpSub, "mul": OpMul, "div": OpDiv,
}

// ParseArithOp converts an op= token into an ArithOp.
func ParseArithOp(s string) (ArithOp, bool) {
	op, ok := arithNames[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

func (op ArithOp) String() string {
	for name, v := range arithNames {
		if v == op {
			return name
		}
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ErrDivideByZero reports a rejected division; the engine turns it into a no-op.
var ErrDivideByZero = errors.New("divide by zero")

// Apply evaluates cur op operand. Both values must be numbers. Numbers are
// always integers (ParseLiteral and the snapshot decoder admit nothing else),
// so arithmetic is integer arithmetic and division truncates toward zero.
func Apply(cur cty.Value, op ArithOp, operand cty.Value) (cty.Value, error) {
	if cur == cty.NilVal || operand == cty.NilVal {
		return cty.NilVal, errors.New("missing operand")
	}
	if cur.Type() != cty.Number || operand.Type() != cty.Number {
		return cty.NilVal, fmt.Errorf("type mismatch: %s %s %s", TypeName(cur), op, TypeName(operand))
	}
	a, _ := cur.AsBigFloat().Int(nil)
	b, _ := operand.AsBigFloat().Int(nil)
	r := new(big.Int)
	switch op {
	case OpAdd:
		r.Add(a, b)
	case OpSub:
		r.Sub(a, b)
	case OpMul:
		r.Mul(a, b)
	case OpDiv:
		if b.Sign() == 0 {
			return cty.NilVal, ErrDivideByZero
		}
		r.Quo(a, b)
	}
	return cty.NumberVal(new(big.Float).SetInt(r)), nil
}
