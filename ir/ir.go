// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir defines the value and address types shared by every stage of
// the SSA construction and transformation pipeline: the width/kind pair
// that labels every SSA value, the opcode set the lifter and the classical
// passes operate on, and the (byte, micro) address pair that locates an
// operation within the original instruction stream.
package ir

import "fmt"

// WidthSpec is a bit width, or UnknownWidth while a value's width has not
// yet been resolved.
type WidthSpec int

// UnknownWidth marks a ValueType whose width has not been resolved yet.
const UnknownWidth WidthSpec = -1

// RefKind classifies what a value's bits mean.
type RefKind uint8

const (
	Scalar RefKind = iota
	Reference
	Unresolved
)

func (k RefKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Reference:
		return "reference"
	case Unresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("RefKind(%d)", uint8(k))
	}
}

// ValueType is the width-plus-kind label carried by every SSA value.
type ValueType struct {
	Width WidthSpec
	Kind  RefKind
}

func NewScalar(w WidthSpec) ValueType     { return ValueType{w, Scalar} }
func NewReference(w WidthSpec) ValueType  { return ValueType{w, Reference} }
func NewUnresolved(w WidthSpec) ValueType { return ValueType{w, Unresolved} }

func (vt ValueType) String() string {
	if vt.Width == UnknownWidth {
		return fmt.Sprintf("%v?", vt.Kind)
	}
	return fmt.Sprintf("%v%d", vt.Kind, vt.Width)
}

// Opcode enumerates the SSA operations §3 of the spec lists: binary
// arithmetic/logic, unary, comparisons, memory, control and Const.
type Opcode struct {
	Name string
	// Width is used by the resizing opcodes (Narrow, SignExt, ZeroExt,
	// Widen); it is the target width of the resize, not the opcode's own
	// result width (those are computed the same way as any other op).
	Width WidthSpec
	// Imm is the immediate operand of Const.
	Imm uint64
}

var (
	OpAdd = Opcode{Name: "add"}
	OpSub = Opcode{Name: "sub"}
	OpMul = Opcode{Name: "mul"}
	OpDiv = Opcode{Name: "div"}
	OpMod = Opcode{Name: "mod"}
	OpAnd = Opcode{Name: "and"}
	OpOr  = Opcode{Name: "or"}
	OpXor = Opcode{Name: "xor"}
	OpLsl = Opcode{Name: "lsl"}
	OpLsr = Opcode{Name: "lsr"}
	OpNot = Opcode{Name: "not"}

	OpEq = Opcode{Name: "eq"}
	OpGt = Opcode{Name: "gt"}
	OpLt = Opcode{Name: "lt"}

	OpLoad  = Opcode{Name: "load"}
	OpStore = Opcode{Name: "store"}
	OpCall  = Opcode{Name: "call"}
	OpITE   = Opcode{Name: "ite"}
)

// OpNarrow, OpSignExt, OpZeroExt and OpWiden are resize opcodes; each
// instance carries its own target width, so they are constructors rather
// than package-level values.
func OpNarrow(w WidthSpec) Opcode  { return Opcode{Name: "narrow", Width: w} }
func OpSignExt(w WidthSpec) Opcode { return Opcode{Name: "signext", Width: w} }
func OpZeroExt(w WidthSpec) Opcode { return Opcode{Name: "zeroext", Width: w} }
func OpWiden(w WidthSpec) Opcode   { return Opcode{Name: "widen", Width: w} }
func OpConst(v uint64) Opcode      { return Opcode{Name: "const", Imm: v} }

// IsResize reports whether op is one of Narrow/SignExt/ZeroExt/Widen.
func (op Opcode) IsResize() bool {
	switch op.Name {
	case "narrow", "signext", "zeroext", "widen":
		return true
	}
	return false
}

// IsConst reports whether op is Const.
func (op Opcode) IsConst() bool { return op.Name == "const" }

// IsCommutative reports whether op's two operands may be reordered without
// changing the value computed — used by CSE's canonicalization (open
// question resolved in SPEC_FULL.md §6.2).
func (op Opcode) IsCommutative() bool {
	switch op.Name {
	case "add", "mul", "and", "or", "xor", "eq":
		return true
	}
	return false
}

// Arity is the number of Data operands a pure Op of this opcode takes. It
// does not apply to Call (variable arity) or Phi (variable arity).
func (op Opcode) Arity() int {
	switch op.Name {
	case "not", "narrow", "signext", "zeroext", "widen":
		return 1
	case "load":
		return 2 // memory, address
	case "store":
		return 3 // memory, address, value
	case "ite":
		return 3 // condition, true-comment, false-comment
	case "const":
		return 0
	default:
		return 2
	}
}

func (op Opcode) String() string {
	if op.IsResize() {
		return fmt.Sprintf("%s(%d)", op.Name, op.Width)
	}
	if op.IsConst() {
		return fmt.Sprintf("const(%#x)", op.Imm)
	}
	return op.Name
}

// MAddress pairs a machine instruction's byte offset with a micro-offset
// that disambiguates multiple IR operations lifted from one instruction.
type MAddress struct {
	Offset uint64
	Micro  uint64
}

func NewMAddress(offset, micro uint64) MAddress { return MAddress{offset, micro} }

// Less gives MAddress a total order: by Offset, then by Micro.
func (a MAddress) Less(b MAddress) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.Micro < b.Micro
}

func (a MAddress) String() string {
	return fmt.Sprintf("%#x.%d", a.Offset, a.Micro)
}
