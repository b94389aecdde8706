// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cse

import (
	"testing"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

func addOp(g *ssagraph.Graph, block ssagraph.NodeID, micro uint64, op ir.Opcode, vt ir.ValueType, operands ...ssagraph.NodeID) ssagraph.NodeID {
	n := g.AddOp(op, vt, nil)
	g.SetContainedInBB(n, block, ir.MAddress{Micro: micro})
	for i, o := range operands {
		g.AddDataEdge(n, i, o)
	}
	return n
}

// TestIdenticalAddsForwardToTheFirst checks plain syntactic CSE within one
// block: two identical Add nodes over the same operands collapse to one.
func TestIdenticalAddsForwardToTheFirst(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	x := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	y := g.AddOp(ir.OpConst(2), ir.NewScalar(64), nil)
	first := addOp(g, entry, 0, ir.OpAdd, ir.NewScalar(64), x, y)
	second := addOp(g, entry, 1, ir.OpAdd, ir.NewScalar(64), x, y)

	n := Run(g)
	if n != 1 {
		t.Fatalf("Run forwarded %d nodes, want 1", n)
	}
	if g.Resolve(second) != g.Resolve(first) {
		t.Fatalf("second add did not forward to first: %v != %v", g.Resolve(second), g.Resolve(first))
	}
}

// TestCommutativeOperandOrderStillMatches checks that Add(x,y) and Add(y,x)
// hash to the same key, per the commutativity canonicalization §6.2 of the
// design settles.
func TestCommutativeOperandOrderStillMatches(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	x := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	y := g.AddOp(ir.OpConst(2), ir.NewScalar(64), nil)
	first := addOp(g, entry, 0, ir.OpAdd, ir.NewScalar(64), x, y)
	second := addOp(g, entry, 1, ir.OpAdd, ir.NewScalar(64), y, x)

	Run(g)
	if g.Resolve(second) != g.Resolve(first) {
		t.Fatal("Add(x,y) and Add(y,x) should value-number to the same node")
	}
}

// TestSubIsNotCommutative checks that Sub(x,y) and Sub(y,x) are kept
// distinct.
func TestSubIsNotCommutative(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	x := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	y := g.AddOp(ir.OpConst(2), ir.NewScalar(64), nil)
	first := addOp(g, entry, 0, ir.OpSub, ir.NewScalar(64), x, y)
	second := addOp(g, entry, 1, ir.OpSub, ir.NewScalar(64), y, x)

	n := Run(g)
	if n != 0 {
		t.Fatalf("Run forwarded %d nodes, want 0 (Sub is not commutative)", n)
	}
	if g.Resolve(second) == g.Resolve(first) {
		t.Fatal("Sub(x,y) and Sub(y,x) should not value-number together")
	}
}

// TestLoadsAreNeverEliminated checks that two syntactically identical Loads
// are left alone even when they share a block.
func TestLoadsAreNeverEliminated(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	mem := g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "mem")
	addr := g.AddOp(ir.OpConst(0x10), ir.NewScalar(64), nil)
	addOp(g, entry, 0, ir.OpLoad, ir.NewScalar(64), mem, addr)
	addOp(g, entry, 1, ir.OpLoad, ir.NewScalar(64), mem, addr)

	if n := Run(g); n != 0 {
		t.Fatalf("Run forwarded %d load nodes, want 0", n)
	}
}
