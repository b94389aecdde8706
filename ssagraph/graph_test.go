// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ssagraph

import (
	"testing"

	"github.com/aclements/ssalift/ir"
)

func TestBasicBlockRoundTrip(t *testing.T) {
	g := New()
	addr := ir.NewMAddress(0x100, 0)
	b := g.AddBasicBlock(addr)
	if got, ok := g.BlockAt(addr); !ok || got != b {
		t.Fatalf("BlockAt(%v) = %v, %v; want %v, true", addr, got, ok, b)
	}
	if g.Kind(b) != KindBasicBlock {
		t.Fatalf("Kind = %v, want BasicBlock", g.Kind(b))
	}
}

func TestDataOperandsDense(t *testing.T) {
	g := New()
	block := g.AddBasicBlock(ir.NewMAddress(0, 0))
	c1 := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	c2 := g.AddOp(ir.OpConst(2), ir.NewScalar(64), nil)
	add := g.AddOp(ir.OpAdd, ir.NewScalar(64), nil)
	g.SetContainedInBB(add, block, ir.NewMAddress(0, 0))
	g.AddDataEdge(add, 0, c1)
	g.AddDataEdge(add, 1, c2)

	ops := g.DataOperands(add)
	if len(ops) != 2 || ops[0] != c1 || ops[1] != c2 {
		t.Fatalf("DataOperands = %v, want [%v %v]", ops, c1, c2)
	}
}

func TestReplacedByResolves(t *testing.T) {
	g := New()
	a := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	b := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	c := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	g.AddReplacedBy(a, b)
	g.AddReplacedBy(b, c)

	if got := g.Resolve(a); got != c {
		t.Fatalf("Resolve(a) = %v, want %v", got, c)
	}
}

func TestRemoveBlockCascades(t *testing.T) {
	g := New()
	block := g.AddBasicBlock(ir.NewMAddress(0, 0))
	op := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	g.SetContainedInBB(op, block, ir.NewMAddress(0, 0))
	other := g.AddBasicBlock(ir.NewMAddress(4, 0))
	g.AddControlEdge(block, other, Uncond)

	g.RemoveNode(block)

	if g.Valid(block) {
		t.Fatal("block should be tombstoned")
	}
	if g.Valid(op) {
		t.Fatal("contained op should be tombstoned")
	}
	if succs := g.ControlSuccessors(block); len(succs) != 0 {
		t.Fatalf("ControlSuccessors after removal = %v, want none", succs)
	}
}

func TestCheckInvariantsCatchesMissingOperand(t *testing.T) {
	g := New()
	entry := g.AddBasicBlock(ir.NewMAddress(0, 0))
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, Uncond)

	add := g.AddOp(ir.OpAdd, ir.NewScalar(64), nil)
	g.SetContainedInBB(add, entry, ir.NewMAddress(0, 0))
	c1 := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	g.SetContainedInBB(c1, entry, ir.NewMAddress(0, 0))
	g.AddDataEdge(add, 0, c1)
	// Operand 1 intentionally missing.

	violations := g.CheckInvariants()
	found := false
	for _, v := range violations {
		if v.Rule == "dense-operands" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a dense-operands violation, got %v", violations)
	}
}
