// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memssa

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

func TestClassifyConstantInRange(t *testing.T) {
	g := ssagraph.New()
	addr := g.AddOp(ir.OpConst(0x10), ir.NewScalar(64), nil)
	ranges := Ranges{Locals: []AddrRange{{Low: 0, High: 0x100}}}
	classes := Classify(g, addr, ranges)
	if len(classes) != 1 || classes[0] != ClassLocals {
		t.Fatalf("Classify = %v, want [locals]", classes)
	}
}

func TestClassifyUnknownAddressIsConservative(t *testing.T) {
	g := ssagraph.New()
	notConst := g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "x")
	classes := Classify(g, notConst, Ranges{})
	if len(classes) != len(AllClasses) {
		t.Fatalf("Classify(non-const) = %v, want all classes", classes)
	}
}

// TestStoreThenLoadChainsDirectly checks that a load immediately following
// a store to an overlapping address resolves to that store as its class's
// reaching definition.
func TestStoreThenLoadChainsDirectly(t *testing.T) {
	g := ssagraph.New()
	block := g.AddBasicBlock(ir.MAddress{})

	mem := g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "mem")
	addr := addOp(g, block, 0, ir.OpConst(0x10), ir.NewScalar(64))
	val := addOp(g, block, 1, ir.OpConst(99), ir.NewScalar(64))
	store := addOp(g, block, 2, ir.OpStore, ir.NewUnresolved(ir.UnknownWidth), mem, addr, val)
	load := addOp(g, block, 3, ir.OpLoad, ir.NewScalar(64), mem, addr)

	ranges := Ranges{Locals: []AddrRange{{Low: 0, High: 0x100}}}
	m, touched := Build(g, []ssagraph.NodeID{block}, ranges)

	if cs := touched[store]; len(cs) != 1 || cs[0] != ClassLocals {
		t.Fatalf("store classes = %v, want [locals]", cs)
	}
	if cs := touched[load]; len(cs) != 1 || cs[0] != ClassLocals {
		t.Fatalf("load classes = %v, want [locals]", cs)
	}
	if got := m.ReadVariable(block, ClassLocals); got != store {
		t.Fatalf("ReadVariable(locals) = %v, want the store %v", got, store)
	}
}

// TestDiamondMergesIntoPhi checks that a load in a join block, fed by two
// stores to the same class on different branches, observes a live phi.
func TestDiamondMergesIntoPhi(t *testing.T) {
	g := ssagraph.New()
	entry := g.AddBasicBlock(ir.MAddress{Offset: 0})
	a := g.AddBasicBlock(ir.MAddress{Offset: 1})
	b := g.AddBasicBlock(ir.MAddress{Offset: 2})
	join := g.AddBasicBlock(ir.MAddress{Offset: 3})
	g.AddControlEdge(entry, a, ssagraph.True)
	g.AddControlEdge(entry, b, ssagraph.False)
	g.AddControlEdge(a, join, ssagraph.Uncond)
	g.AddControlEdge(b, join, ssagraph.Uncond)

	mem := g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "mem")
	addr := addOp(g, entry, 0, ir.OpConst(0x10), ir.NewScalar(64))
	valA := addOp(g, a, 0, ir.OpConst(1), ir.NewScalar(64))
	valB := addOp(g, b, 0, ir.OpConst(2), ir.NewScalar(64))
	storeA := addOp(g, a, 1, ir.OpStore, ir.NewUnresolved(ir.UnknownWidth), mem, addr, valA)
	storeB := addOp(g, b, 1, ir.OpStore, ir.NewUnresolved(ir.UnknownWidth), mem, addr, valB)
	_ = storeA
	_ = storeB
	load := addOp(g, join, 0, ir.OpLoad, ir.NewScalar(64), mem, addr)
	_ = load

	ranges := Ranges{Locals: []AddrRange{{Low: 0, High: 0x100}}}
	m, _ := Build(g, []ssagraph.NodeID{entry, a, b, join}, ranges)

	got := m.ReadVariable(join, ClassLocals)
	if g.Kind(got) != ssagraph.KindPhi {
		t.Fatalf("ReadVariable(join, locals) = %v (kind %v), want a live phi", got, g.Kind(got))
	}
}
