// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dce

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

// TestDeadArithmeticIsSwept checks that an Op with no path to a root (no
// Store/Call consumer, not part of any register-state tuple) is removed.
func TestDeadArithmeticIsSwept(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	x := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	y := g.AddOp(ir.OpConst(2), ir.NewScalar(64), nil)
	dead := addOp(g, entry, 0, ir.OpAdd, ir.NewScalar(64), x, y)

	swept := Run(g)
	if swept == 0 {
		t.Fatal("expected at least the dead add to be swept")
	}
	if g.Valid(dead) {
		t.Fatal("dead add should have been removed")
	}
}

// TestStoreRootKeepsItsOperandsAlive checks that an Op feeding a Store is
// kept, along with the chain of Ops feeding it.
func TestStoreRootKeepsItsOperandsAlive(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	mem := g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "mem")
	addr := g.AddOp(ir.OpConst(0x10), ir.NewScalar(64), nil)
	val := addOp(g, entry, 0, ir.OpAdd, ir.NewScalar(64), addr, addr)
	store := addOp(g, entry, 1, ir.OpStore, ir.NewUnresolved(ir.UnknownWidth), mem, addr, val)

	Run(g)
	if !g.Valid(store) {
		t.Fatal("store should never be swept")
	}
	if !g.Valid(val) {
		t.Fatal("the store's value operand should be kept alive")
	}
}

// TestRegisterStateRootKeepsItsSlotsAlive checks that a register-state
// tuple's bound values survive even with no other users.
func TestRegisterStateRootKeepsItsSlotsAlive(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	x := g.AddOp(ir.OpConst(1), ir.NewScalar(64), nil)
	tuple := g.AddRegisterState()
	g.AddRegisterStateEdge(tuple, 0, x)

	Run(g)
	if !g.Valid(x) {
		t.Fatal("a value bound into a register-state tuple should survive DCE")
	}
}
