// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sccp

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

func TestConstantFoldsPureArithmetic(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	c4 := g.AddOp(ir.OpConst(4), ir.NewScalar(64), nil)
	c5 := g.AddOp(ir.OpConst(5), ir.NewScalar(64), nil)
	add := addOp(g, entry, 0, ir.OpAdd, ir.NewScalar(64), c4, c5)

	r := Analyze(g)
	v := r.Value(add)
	if !v.IsConst() || v.Imm != 9 {
		t.Fatalf("Value(add) = %+v, want Const(9)", v)
	}
}

func TestBranchWithConstantConditionExecutesOnlyTakenEdge(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{Offset: 0})
	g.SetEntry(entry)
	trueB := g.AddBasicBlock(ir.MAddress{Offset: 1})
	falseB := g.AddBasicBlock(ir.MAddress{Offset: 2})
	exit := g.AddDynamicAction()
	g.SetExit(exit)

	cond := g.AddOp(ir.OpConst(1), ir.NewScalar(1), nil)
	g.AddSelectorEdge(entry, cond)
	trueEdge := g.AddControlEdge(entry, trueB, ssagraph.True)
	falseEdge := g.AddControlEdge(entry, falseB, ssagraph.False)
	g.AddControlEdge(trueB, exit, ssagraph.Uncond)
	g.AddControlEdge(falseB, exit, ssagraph.Uncond)

	r := Analyze(g)
	if !r.EdgeExecuted(trueEdge) {
		t.Fatal("true edge should be executed when the selector is Const(1)")
	}
	if r.EdgeExecuted(falseEdge) {
		t.Fatal("false edge should stay unexecuted when the selector is Const(1)")
	}

	Rewrite(g, r)
	for _, e := range g.ControlSuccessorEdges(entry) {
		if g.EdgeDst(e) == falseB {
			t.Fatal("Rewrite should have removed the unexecuted false edge")
		}
	}
}

func TestPhiMergesToBottomAcrossDivergentConstants(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{Offset: 0})
	g.SetEntry(entry)
	a := g.AddBasicBlock(ir.MAddress{Offset: 1})
	b := g.AddBasicBlock(ir.MAddress{Offset: 2})
	join := g.AddBasicBlock(ir.MAddress{Offset: 3})
	exit := g.AddDynamicAction()
	g.SetExit(exit)

	g.AddControlEdge(entry, a, ssagraph.Uncond)
	g.AddControlEdge(entry, b, ssagraph.Uncond)
	g.AddControlEdge(a, join, ssagraph.Uncond)
	g.AddControlEdge(b, join, ssagraph.Uncond)
	g.AddControlEdge(join, exit, ssagraph.Uncond)

	c5 := g.AddOp(ir.OpConst(5), ir.NewScalar(64), nil)
	c9 := g.AddOp(ir.OpConst(9), ir.NewScalar(64), nil)

	phi := g.AddPhi(ir.NewUnresolved(ir.UnknownWidth))
	g.SetContainedInBB(phi, join, ir.MAddress{})
	g.AddPhiOperand(phi, c5)
	g.AddPhiOperand(phi, c9)

	r := Analyze(g)
	v := r.Value(phi)
	if !v.IsBottom() {
		t.Fatalf("Value(phi) = %+v, want Bottom (divergent constants)", v)
	}
}

func TestCallResultIsBottom(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{})
	g.SetEntry(entry)
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	g.AddControlEdge(entry, exit, ssagraph.Uncond)

	call := addOp(g, entry, 0, ir.OpCall, ir.NewUnresolved(ir.UnknownWidth))

	r := Analyze(g)
	if !r.Value(call).IsBottom() {
		t.Fatalf("Value(call) = %+v, want Bottom", r.Value(call))
	}
}
