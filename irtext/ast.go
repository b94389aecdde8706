// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package irtext is the textual IR writer and reader §6 of the design
// names as the SSA graph's outbound format and "the companion reader".
// Grounded on original_source/src/middle/ir_reader/lowering.rs: a simple
// AST is parsed from text, then lowered into a *ssagraph.Graph exactly as
// LowerSsa::lower_function/lower_basicblock/lower_operation do, translated
// from Rust's enum-driven AST into a small tagged-struct AST idiomatic in
// Go. The writer is new (the original radeco source only documents the
// reader's grammar; no printer was among the retrieved files) and emits
// exactly the grammar the reader accepts, so write(lift(ops)) -> read
// round-trips per §8's IR round-trip property.
package irtext

import "github.com/aclements/ssalift/ir"

// ValueRef is a textual IR value reference — the integer written after a
// '%' sigil. It does not necessarily match any ssagraph.NodeID; the
// lowerer builds its own mapping, exactly as LowerSsa does with its
// `values: HashMap<sast::ValueRef, SSAValue>`.
type ValueRef int

// ExprKind tags the expression on the right of a statement's '='.
type ExprKind uint8

const (
	ExprConst ExprKind = iota
	ExprInfix
	ExprPrefix
	ExprLoad
	ExprStore
	ExprResize
	ExprITE
	ExprCall
	ExprComment
	ExprUndefined
	ExprPhi
)

// Expr is one statement's right-hand side. Which fields are meaningful
// depends on Kind; see Write/Lower for the exact correspondence to §3's
// opcodes.
type Expr struct {
	Kind  ExprKind
	Op    string // infix/prefix/resize opcode name ("add", "not", "narrow", ...)
	Width ir.WidthSpec
	Imm   uint64
	Text  string     // ExprComment
	Args  []ValueRef // operand refs; meaning is kind-specific (see Write)
}

// Statement is one "%ref = type expr" line.
type Statement struct {
	Ref  ValueRef
	Type ir.ValueType
	Expr Expr
}

// JumpKind distinguishes a basic block's two possible terminators (§6: a
// block always ends in an unconditional jump or a conditional one in this
// module's printed form — the "none = fallthrough" shorthand §6 mentions
// is not emitted by Write, which always prints an explicit edge).
type JumpKind uint8

const (
	JumpUncond JumpKind = iota
	JumpCond
)

// Jump is a basic block's terminator.
type Jump struct {
	Kind JumpKind

	// JumpUncond
	Target ir.MAddress

	// JumpCond
	Sel        ValueRef
	IfTarget   ir.MAddress
	ElseTarget ir.MAddress
}

// BasicBlock is one "bb <addr>" section: its statements in the order they
// must be lowered (phis first, matching the Braun construction's
// convention that a block's phis are logically concurrent with each
// other and with the block's entry), then the terminator.
type BasicBlock struct {
	Addr  ir.MAddress
	Stmts []Statement
	Jump  Jump
}

// RegBinding is one line of the exit register-state block: "reg <- %ref".
type RegBinding struct {
	Reg string // whole register name, or "mem"
	Ref ValueRef
}

// Function is the top-level parsed/printed unit: a register list, the
// function's basic blocks, and the final register state read at the exit
// node (§6's "Exit node register state").
type Function struct {
	Registers []string
	Blocks    []BasicBlock
	ExitState []RegBinding
}
