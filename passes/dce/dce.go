// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dce implements the dead-code elimination pass of §4.6: two-phase
// mark-and-sweep rooted at the exit node, every Store and Call, every
// block's register-state tuple, and everything reachable via Selector
// edges, walking Data edges backwards.
package dce

import "github.com/aclements/ssalift/ssagraph"

// Run marks every node reachable (backwards, through Data edges) from
// DCE's roots, then removes every unmarked Op, Phi or Comment. Basic
// blocks are never removed. It returns the number of nodes swept.
func Run(g *ssagraph.Graph) int {
	g.ResetMarks()

	var worklist []ssagraph.NodeID
	mark := func(n ssagraph.NodeID) {
		if n == ssagraph.InvalidNode || g.Marked(n) {
			return
		}
		g.Mark(n)
		worklist = append(worklist, n)
	}

	if exit := g.Exit(); exit != ssagraph.InvalidNode {
		mark(exit)
	}
	for _, n := range g.ValidNodesOfKind(ssagraph.KindOp) {
		switch g.Opcode(n).Name {
		case "store", "call":
			mark(n)
		}
	}
	for _, block := range g.ValidNodesOfKind(ssagraph.KindBasicBlock) {
		if sel, ok := g.Selector(block); ok {
			mark(sel)
		}
	}
	for _, tuple := range g.ValidNodesOfKind(ssagraph.KindRegisterState) {
		mark(tuple)
		for _, slot := range g.RegisterStateSlots(tuple) {
			mark(slot.Value)
		}
	}

	for len(worklist) > 0 {
		n := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		switch g.Kind(n) {
		case ssagraph.KindOp, ssagraph.KindPhi:
			for _, operand := range g.DataOperands(n) {
				mark(operand)
			}
		}
		if block, _, ok := g.ContainingBlock(n); ok {
			mark(block)
		}
	}

	swept := 0
	for _, kind := range []ssagraph.NodeKind{ssagraph.KindOp, ssagraph.KindPhi, ssagraph.KindComment} {
		for _, n := range g.ValidNodesOfKind(kind) {
			if !g.Marked(n) {
				g.RemoveNode(n)
				swept++
			}
		}
	}
	return swept
}
