// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irtext

import (
	"fmt"
	"strings"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/regfile"
	"github.com/aclements/ssalift/ssagraph"
)

// Write serializes g's entire SSA graph into the textual IR §6 describes:
// a function header naming rf's registers, one "bb <addr>" section per
// basic block (statements in Phi-then-address order, then a jmp/if
// terminator), and a final "exit" section binding every whole register
// (and "mem") to the value live at g's exit node.
func Write(g *ssagraph.Graph, rf *regfile.File) (string, error) {
	w := &writer{g: g, rf: rf, ids: make(map[ssagraph.NodeID]ValueRef)}
	w.assignRefs()

	var sb strings.Builder

	regNames := make([]string, rf.NumWhole())
	for i := range regNames {
		regNames[i], _ = rf.GetName(i)
	}
	fmt.Fprintf(&sb, "function registers=%s\n", strings.Join(regNames, ","))

	for _, block := range w.blocks {
		if block == g.Exit() {
			continue
		}
		fmt.Fprintf(&sb, "\nbb %s\n", g.Addr(block))
		for _, n := range w.nodesOf[block] {
			if err := w.writeStatement(&sb, n); err != nil {
				return "", err
			}
		}
		if err := w.writeJump(&sb, block); err != nil {
			return "", err
		}
	}

	sb.WriteString("\nexit\n")
	if err := w.writeExitState(&sb); err != nil {
		return "", err
	}

	return sb.String(), nil
}

type writer struct {
	g  *ssagraph.Graph
	rf *regfile.File

	blocks  []ssagraph.NodeID                    // every BasicBlock + the exit DynamicAction, in print order
	nodesOf map[ssagraph.NodeID][]ssagraph.NodeID // block -> its Op/Phi/Comment/Undefined nodes, phis first
	ids     map[ssagraph.NodeID]ValueRef
}

// assignRefs computes the deterministic node visitation order the whole
// writer uses: basic blocks sorted by address (the exit DynamicAction
// last, since it has none), and within each block its Phi nodes before
// its other nodes, each group ordered by NodeID (creation order) for a
// stable tie-break among same-address nodes (e.g. a Widen inserted next
// to the op it feeds). Nodes bound to no block (the lifter's register and
// branch-target comments, Undefined placeholders) are listed in the entry
// block; nodes forwarded by a ReplacedBy edge are skipped, since every
// reference to them prints as their replacement. Every node that will ever
// be referenced — by an operand, a jump selector, or an exit binding — thus
// gets its ValueRef here, in one pass, so Args can freely point forward
// (loop-header phis read values defined later in program order; see
// DESIGN.md).
func (w *writer) assignRefs() {
	g := w.g
	w.nodesOf = make(map[ssagraph.NodeID][]ssagraph.NodeID)

	var normal []ssagraph.NodeID
	for _, b := range g.ValidNodesOfKind(ssagraph.KindBasicBlock) {
		normal = append(normal, b)
	}
	sortByAddr(g, normal)
	w.blocks = append(normal, g.Exit())

	for _, b := range w.blocks {
		var phis, others []ssagraph.NodeID
		for _, kind := range []ssagraph.NodeKind{ssagraph.KindOp, ssagraph.KindPhi, ssagraph.KindComment, ssagraph.KindUndefined} {
			for _, n := range g.ValidNodesOfKind(kind) {
				if g.Resolve(n) != n {
					continue
				}
				block, _, ok := g.ContainingBlock(n)
				if !ok {
					block = g.Entry()
				}
				if block != b {
					continue
				}
				if kind == ssagraph.KindPhi {
					phis = append(phis, n)
				} else {
					others = append(others, n)
				}
			}
		}
		sortByID(phis)
		sortByAddrThenID(g, others)
		w.nodesOf[b] = append(phis, others...)
	}

	for _, b := range w.blocks {
		for _, n := range w.nodesOf[b] {
			w.ref(n)
		}
	}
}

func sortByID(ns []ssagraph.NodeID) {
	for i := 1; i < len(ns); i++ {
		for j := i; j > 0 && ns[j] < ns[j-1]; j-- {
			ns[j], ns[j-1] = ns[j-1], ns[j]
		}
	}
}

func sortByAddr(g *ssagraph.Graph, ns []ssagraph.NodeID) {
	for i := 1; i < len(ns); i++ {
		for j := i; j > 0 && g.Addr(ns[j]).Less(g.Addr(ns[j-1])); j-- {
			ns[j], ns[j-1] = ns[j-1], ns[j]
		}
	}
}

func sortByAddrThenID(g *ssagraph.Graph, ns []ssagraph.NodeID) {
	addrOf := func(n ssagraph.NodeID) ir.MAddress {
		_, addr, _ := g.ContainingBlock(n)
		return addr
	}
	for i := 1; i < len(ns); i++ {
		for j := i; j > 0; j-- {
			a, b := ns[j], ns[j-1]
			if addrOf(a).Less(addrOf(b)) || (!addrOf(b).Less(addrOf(a)) && a < b) {
				ns[j], ns[j-1] = ns[j-1], ns[j]
			} else {
				break
			}
		}
	}
}

// ref returns n's (resolved) stable ValueRef, assigning the next free one
// on first sight.
func (w *writer) ref(n ssagraph.NodeID) ValueRef {
	n = w.g.Resolve(n)
	if r, ok := w.ids[n]; ok {
		return r
	}
	r := ValueRef(len(w.ids))
	w.ids[n] = r
	return r
}

func (w *writer) writeStatement(sb *strings.Builder, n ssagraph.NodeID) error {
	g := w.g
	ref := w.ref(n)
	vt := g.Type(n)

	switch g.Kind(n) {
	case ssagraph.KindComment:
		fmt.Fprintf(sb, "%%%d = %s comment %q\n", ref, vt, g.Text(n))
		return nil
	case ssagraph.KindUndefined:
		fmt.Fprintf(sb, "%%%d = %s undefined\n", ref, vt)
		return nil
	case ssagraph.KindPhi:
		fmt.Fprintf(sb, "%%%d = %s phi", ref, vt)
		for _, op := range g.PhiOperands(n) {
			fmt.Fprintf(sb, " %%%d", w.ref(op))
		}
		sb.WriteString("\n")
		return nil
	case ssagraph.KindOp:
		return w.writeOp(sb, n, ref, vt)
	}
	return &StorageError{Reason: fmt.Sprintf("node %d has no textual form", n)}
}

func (w *writer) writeOp(sb *strings.Builder, n ssagraph.NodeID, ref ValueRef, vt ir.ValueType) error {
	g := w.g
	op := g.Opcode(n)
	operands := g.DataOperands(n)
	refOf := func(i int) string {
		if i >= len(operands) || operands[i] == ssagraph.InvalidNode {
			return "-"
		}
		return fmt.Sprintf("%%%d", w.ref(operands[i]))
	}

	switch {
	case op.IsConst():
		fmt.Fprintf(sb, "%%%d = %s const %#x\n", ref, vt, op.Imm)
	case op.IsResize():
		fmt.Fprintf(sb, "%%%d = %s resize %s %d %s\n", ref, vt, op.Name, op.Width, refOf(0))
	case op.Name == "not":
		fmt.Fprintf(sb, "%%%d = %s prefix %s %s\n", ref, vt, op.Name, refOf(0))
	case op.Name == "load":
		fmt.Fprintf(sb, "%%%d = %s load %s %s\n", ref, vt, refOf(0), refOf(1))
	case op.Name == "store":
		fmt.Fprintf(sb, "%%%d = %s store %s %s %s\n", ref, vt, refOf(0), refOf(1), refOf(2))
	case op.Name == "ite":
		fmt.Fprintf(sb, "%%%d = %s ite %s %s %s\n", ref, vt, refOf(0), refOf(1), refOf(2))
	case op.Name == "call":
		fmt.Fprintf(sb, "%%%d = %s call", ref, vt)
		for i := range operands {
			fmt.Fprintf(sb, " %s", refOf(i))
		}
		sb.WriteString("\n")
	default:
		fmt.Fprintf(sb, "%%%d = %s infix %s %s %s\n", ref, vt, op.Name, refOf(0), refOf(1))
	}
	return nil
}

func (w *writer) label(block ssagraph.NodeID) string {
	if block == w.g.Exit() {
		return "exit"
	}
	return w.g.Addr(block).String()
}

func (w *writer) writeJump(sb *strings.Builder, block ssagraph.NodeID) error {
	g := w.g
	succs := g.ControlSuccessors(block)
	if sel, ok := g.Selector(block); ok {
		var ifAddr, elseAddr string
		for _, s := range succs {
			switch s.Tag {
			case ssagraph.True:
				ifAddr = w.label(s.Dst)
			case ssagraph.False:
				elseAddr = w.label(s.Dst)
			}
		}
		fmt.Fprintf(sb, "if %%%d then %s else %s\n", w.ref(sel), ifAddr, elseAddr)
		return nil
	}
	if len(succs) == 0 {
		return &StorageError{Reason: fmt.Sprintf("block %d has no outgoing control edge", block)}
	}
	fmt.Fprintf(sb, "jmp %s\n", w.label(succs[0].Dst))
	return nil
}

func (w *writer) writeExitState(sb *strings.Builder) error {
	g := w.g
	tuples := g.ContainedNodes(g.Exit(), ssagraph.KindRegisterState)
	if len(tuples) == 0 {
		return nil
	}
	slots := g.RegisterStateSlots(tuples[0])
	byIdx := make(map[int]ssagraph.NodeID, len(slots))
	for _, s := range slots {
		byIdx[s.Slot] = s.Value
	}
	for i := 0; i < w.rf.NumWhole(); i++ {
		name, _ := w.rf.GetName(i)
		if v, ok := byIdx[i]; ok {
			fmt.Fprintf(sb, "%s <- %%%d\n", name, w.ref(v))
		}
	}
	if v, ok := byIdx[w.rf.NumWhole()]; ok {
		fmt.Fprintf(sb, "mem <- %%%d\n", w.ref(v))
	}
	return nil
}
