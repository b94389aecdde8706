// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cse implements the value-numbering common-subexpression pass of
// §4.8: one hash map per basic block, visited in reverse-postorder, keyed
// by (opcode, operands, width) with commutative opcodes canonicalizing
// their operand order first. Purely syntactic and intra-block; loads and
// stores are never eliminated.
package cse

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

// Run walks g's reachable blocks in reverse-postorder and forwards every
// redundant pure Op, within its own block, to the first equivalent one seen
// (via ReplacedBy). It returns the number of nodes forwarded.
func Run(g *ssagraph.Graph) int {
	count := 0
	for _, block := range reversePostorder(g) {
		seen := make(map[string]ssagraph.NodeID)
		for _, n := range opsInAddressOrder(g, block) {
			op := g.Opcode(n)
			if op.Name == "load" || op.Name == "store" || op.Name == "call" || op.Name == "ite" {
				continue
			}
			key := hashKey(g, n, op)
			if existing, ok := seen[key]; ok {
				g.AddReplacedBy(n, existing)
				count++
				continue
			}
			seen[key] = n
		}
	}
	return count
}

// hashKey builds the (opcode, operands, width) key of §4.8, sorting the
// operand ids of commutative opcodes first.
func hashKey(g *ssagraph.Graph, n ssagraph.NodeID, op ir.Opcode) string {
	operands := append([]ssagraph.NodeID(nil), g.DataOperands(n)...)
	if op.IsCommutative() && len(operands) == 2 {
		slices.Sort(operands)
	}
	return fmt.Sprintf("%s:%d:%d:%d:%v", op.Name, op.Width, op.Imm, g.Type(n).Width, operands)
}

// opsInAddressOrder returns block's Op nodes ordered by the instruction
// address each was lifted from.
func opsInAddressOrder(g *ssagraph.Graph, block ssagraph.NodeID) []ssagraph.NodeID {
	var ops []ssagraph.NodeID
	addrs := make(map[ssagraph.NodeID]ir.MAddress)
	for _, n := range g.ValidNodesOfKind(ssagraph.KindOp) {
		b, addr, ok := g.ContainingBlock(n)
		if !ok || b != block {
			continue
		}
		ops = append(ops, n)
		addrs[n] = addr
	}
	slices.SortFunc(ops, func(a, b ssagraph.NodeID) bool { return addrs[a].Less(addrs[b]) })
	return ops
}

// reversePostorder returns every basic block reachable from g's entry, in
// reverse postorder, via a plain DFS over control edges.
func reversePostorder(g *ssagraph.Graph) []ssagraph.NodeID {
	entry := g.Entry()
	if entry == ssagraph.InvalidNode {
		return nil
	}
	visited := make(map[ssagraph.NodeID]bool)
	var post []ssagraph.NodeID

	var visit func(ssagraph.NodeID)
	visit = func(n ssagraph.NodeID) {
		if visited[n] || g.Kind(n) != ssagraph.KindBasicBlock {
			return
		}
		visited[n] = true
		for _, succ := range g.ControlSuccessors(n) {
			visit(succ.Dst)
		}
		post = append(post, n)
	}
	visit(entry)

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
