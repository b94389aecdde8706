// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sccp implements sparse conditional constant propagation (§4.7):
// a per-value lattice of Top/Const/Bottom and a per-edge lattice of
// Unexecuted/Executed, driven by a value worklist and an edge worklist,
// followed by an emit_ssa rewrite that folds Const-valued nodes into Const
// ops via ReplacedBy and drops edges that never became executable.
package sccp

import (
	"golang.org/x/tools/container/intsets"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

// status is a value's position in the Top -> Const -> Bottom lattice.
type status uint8

const (
	top status = iota
	constSt
	bottom
)

// Value is one node's lattice value.
type Value struct {
	status status
	Width  ir.WidthSpec
	Imm    uint64
}

func (v Value) IsConst() bool  { return v.status == constSt }
func (v Value) IsBottom() bool { return v.status == bottom }
func (v Value) IsTop() bool    { return v.status == top }

func topValue() Value                       { return Value{status: top} }
func bottomValue() Value                    { return Value{status: bottom} }
func constValue(w ir.WidthSpec, v uint64) Value { return Value{status: constSt, Width: w, Imm: mask(w, v)} }

// meet implements Top ⊓ x = x; Const(a) ⊓ Const(a) = Const(a); else Bottom.
func meet(a, b Value) Value {
	if a.status == top {
		return b
	}
	if b.status == top {
		return a
	}
	if a.status == bottom || b.status == bottom {
		return bottomValue()
	}
	if a.Width == b.Width && a.Imm == b.Imm {
		return a
	}
	return bottomValue()
}

func mask(w ir.WidthSpec, v uint64) uint64 {
	if w <= 0 || w >= 64 {
		return v
	}
	return v & ((uint64(1) << uint(w)) - 1)
}

// Result is the fixed point of an Analyze run: every node's lattice value
// and every control edge's executable status.
type Result struct {
	values   map[ssagraph.NodeID]Value
	executed intsets.Sparse
}

// Value returns n's lattice value, Top if n was never visited.
func (r *Result) Value(n ssagraph.NodeID) Value {
	if v, ok := r.values[n]; ok {
		return v
	}
	return topValue()
}

// EdgeExecuted reports whether a control edge was ever marked Executed.
func (r *Result) EdgeExecuted(e ssagraph.EdgeID) bool { return r.executed.Has(int(e)) }

type analyzer struct {
	g             *ssagraph.Graph
	values        map[ssagraph.NodeID]Value
	executed      intsets.Sparse // edge ids
	blockExecuted map[ssagraph.NodeID]bool
	selectorOf    map[ssagraph.NodeID]ssagraph.NodeID // cond node -> its block

	edgeWork  []ssagraph.EdgeID
	valueWork []ssagraph.NodeID
	queued    intsets.Sparse // node ids already on valueWork
}

// Analyze runs SCCP to a fixed point over g and returns the result without
// mutating the graph.
func Analyze(g *ssagraph.Graph) *Result {
	a := &analyzer{
		g:             g,
		values:        make(map[ssagraph.NodeID]Value),
		blockExecuted: make(map[ssagraph.NodeID]bool),
		selectorOf:    make(map[ssagraph.NodeID]ssagraph.NodeID),
	}
	for _, b := range g.ValidNodesOfKind(ssagraph.KindBasicBlock) {
		if sel, ok := g.Selector(b); ok {
			a.selectorOf[sel] = b
		}
	}

	// Every Const op is reachable regardless of block execution: evaluateOp
	// recognizes IsConst() before consulting the containing block's
	// executed state, since a constant's value never depends on reaching
	// the block it happened to be created in (see lift.constNode).
	for _, n := range g.ValidNodesOfKind(ssagraph.KindOp) {
		if g.Opcode(n).IsConst() {
			a.pushValue(n)
		}
	}

	// The entry block is executed from the start: its ops and phis are
	// evaluated, and its outgoing edges follow the same selector rule as
	// any other block's.
	if entry := g.Entry(); entry != ssagraph.InvalidNode {
		a.blockExecuted[entry] = true
		for _, kind := range []ssagraph.NodeKind{ssagraph.KindOp, ssagraph.KindPhi} {
			for _, n := range g.ValidNodesOfKind(kind) {
				if b, _, ok := g.ContainingBlock(n); ok && b == entry {
					a.pushValue(n)
				}
			}
		}
		a.evaluateBlockExits(entry)
	}

	for len(a.edgeWork) > 0 || len(a.valueWork) > 0 {
		for len(a.edgeWork) > 0 {
			e := a.edgeWork[len(a.edgeWork)-1]
			a.edgeWork = a.edgeWork[:len(a.edgeWork)-1]
			a.visitEdge(e)
		}
		for len(a.valueWork) > 0 {
			n := a.valueWork[len(a.valueWork)-1]
			a.valueWork = a.valueWork[:len(a.valueWork)-1]
			a.queued.Remove(int(n))
			a.visitValue(n)
		}
	}

	return &Result{values: a.values, executed: a.executed}
}

func (a *analyzer) pushValue(n ssagraph.NodeID) {
	if a.queued.Has(int(n)) {
		return
	}
	a.queued.Insert(int(n))
	a.valueWork = append(a.valueWork, n)
}

func (a *analyzer) markEdge(e ssagraph.EdgeID) {
	if a.executed.Has(int(e)) {
		return
	}
	a.executed.Insert(int(e))
	a.edgeWork = append(a.edgeWork, e)
}

// visitEdge handles an edge newly becoming Executed: the first executable
// edge into a block makes every op it contains live, and any edge into a
// block re-evaluates that block's phis (a new operand may now be reachable).
func (a *analyzer) visitEdge(e ssagraph.EdgeID) {
	dst := a.g.EdgeDst(e)
	first := !a.blockExecuted[dst]
	if first {
		a.blockExecuted[dst] = true
		for _, n := range a.g.ValidNodesOfKind(ssagraph.KindOp) {
			if b, _, ok := a.g.ContainingBlock(n); ok && b == dst {
				a.pushValue(n)
			}
		}
	}
	for _, n := range a.g.ValidNodesOfKind(ssagraph.KindPhi) {
		if b, _, ok := a.g.ContainingBlock(n); ok && b == dst {
			a.pushValue(n)
		}
	}
	if first {
		a.evaluateBlockExits(dst)
	}
}

// evaluateBlockExits marks dst's outgoing control edges executable: all of
// them for an unconditional block, or only the edge matching a resolved
// selector for a conditional one.
func (a *analyzer) evaluateBlockExits(block ssagraph.NodeID) {
	succs := a.g.ControlSuccessorEdges(block)
	sel, ok := a.g.Selector(block)
	if !ok {
		for _, e := range succs {
			a.markEdge(e)
		}
		return
	}
	v := a.value(sel)
	switch {
	case v.status == bottom:
		for _, e := range succs {
			a.markEdge(e)
		}
	case v.status == constSt:
		want := ssagraph.False
		if v.Imm != 0 {
			want = ssagraph.True
		}
		for _, e := range succs {
			if a.g.ControlEdgeTag(e) == want {
				a.markEdge(e)
			}
		}
	}
}

func (a *analyzer) value(n ssagraph.NodeID) Value {
	if v, ok := a.values[n]; ok {
		return v
	}
	return topValue()
}

func (a *analyzer) visitValue(n ssagraph.NodeID) {
	newVal := a.evaluate(n)
	old, had := a.values[n]
	if had && old == newVal {
		return
	}
	a.values[n] = newVal

	for _, eid := range a.g.Uses(n) {
		switch a.g.EdgeKindOf(eid) {
		case ssagraph.EdgeData:
			a.pushValue(a.g.EdgeDst(eid))
		case ssagraph.EdgeSelector:
			a.evaluateBlockExits(a.g.EdgeDst(eid))
		}
	}
	if block, ok := a.selectorOf[n]; ok {
		a.evaluateBlockExits(block)
	}
}

func (a *analyzer) evaluate(n ssagraph.NodeID) Value {
	switch a.g.Kind(n) {
	case ssagraph.KindPhi:
		return a.evaluatePhi(n)
	case ssagraph.KindOp:
		return a.evaluateOp(n)
	default:
		return bottomValue()
	}
}

func (a *analyzer) evaluatePhi(phi ssagraph.NodeID) Value {
	block, _, ok := a.g.ContainingBlock(phi)
	if !ok {
		return bottomValue()
	}
	preds := a.g.ControlPredecessors(block)
	operands := a.g.PhiOperands(phi)
	succEdges := make(map[ssagraph.NodeID]ssagraph.EdgeID, len(preds))
	for _, e := range a.predecessorEdges(block) {
		succEdges[a.g.EdgeSrc(e)] = e
	}

	val := topValue()
	for i, pred := range preds {
		if i >= len(operands) {
			break
		}
		e, ok := succEdges[pred]
		if !ok || !a.executed.Has(int(e)) {
			continue
		}
		val = meet(val, a.value(operands[i]))
	}
	return val
}

// predecessorEdges returns block's incoming control edges.
func (a *analyzer) predecessorEdges(block ssagraph.NodeID) []ssagraph.EdgeID {
	var out []ssagraph.EdgeID
	for _, pred := range a.g.ControlPredecessors(block) {
		for _, e := range a.g.ControlSuccessorEdges(pred) {
			if a.g.EdgeDst(e) == block {
				out = append(out, e)
			}
		}
	}
	return out
}

func (a *analyzer) evaluateOp(n ssagraph.NodeID) Value {
	op := a.g.Opcode(n)
	if op.IsConst() {
		return constValue(a.g.Type(n).Width, op.Imm)
	}
	if block, _, ok := a.g.ContainingBlock(n); ok && !a.blockExecuted[block] {
		return topValue()
	}

	switch op.Name {
	case "load", "store", "call", "ite":
		return bottomValue()
	}

	operands := a.g.DataOperands(n)
	operandVals := make([]Value, len(operands))
	for i, o := range operands {
		operandVals[i] = a.value(o)
	}
	for _, v := range operandVals {
		if v.status == bottom {
			return bottomValue()
		}
	}
	for _, v := range operandVals {
		if v.status == top {
			return topValue()
		}
	}

	if op.IsResize() {
		return foldResize(op, operandVals[0])
	}
	return foldPure(op, a.g.Type(n).Width, operandVals)
}

// foldResize constant-folds Narrow/SignExt/ZeroExt/Widen given the single
// already-Const operand.
func foldResize(op ir.Opcode, v Value) Value {
	switch op.Name {
	case "narrow", "zeroext":
		return constValue(op.Width, v.Imm)
	case "widen":
		return constValue(op.Width, v.Imm)
	case "signext":
		if v.Width > 0 && v.Width < 64 {
			signBit := uint64(1) << uint(v.Width-1)
			if v.Imm&signBit != 0 {
				return constValue(op.Width, v.Imm|^((signBit<<1)-1))
			}
		}
		return constValue(op.Width, v.Imm)
	}
	return bottomValue()
}

// foldPure constant-folds every non-resize, non-memory opcode once all of
// its operands are Const and their widths agree.
func foldPure(op ir.Opcode, resultWidth ir.WidthSpec, vals []Value) Value {
	if len(vals) >= 2 && vals[0].Width != vals[1].Width {
		return bottomValue()
	}
	a := vals[0].Imm
	var b uint64
	if len(vals) >= 2 {
		b = vals[1].Imm
	}
	switch op.Name {
	case "add":
		return constValue(resultWidth, a+b)
	case "sub":
		return constValue(resultWidth, a-b)
	case "mul":
		return constValue(resultWidth, a*b)
	case "div":
		if b == 0 {
			return bottomValue()
		}
		return constValue(resultWidth, a/b)
	case "mod":
		if b == 0 {
			return bottomValue()
		}
		return constValue(resultWidth, a%b)
	case "and":
		return constValue(resultWidth, a&b)
	case "or":
		return constValue(resultWidth, a|b)
	case "xor":
		return constValue(resultWidth, a^b)
	case "lsl":
		return constValue(resultWidth, a<<uint(b))
	case "lsr":
		return constValue(resultWidth, a>>uint(b))
	case "not":
		return constValue(resultWidth, ^a)
	case "eq":
		if a == b {
			return constValue(resultWidth, 1)
		}
		return constValue(resultWidth, 0)
	case "gt":
		if a > b {
			return constValue(resultWidth, 1)
		}
		return constValue(resultWidth, 0)
	case "lt":
		if a < b {
			return constValue(resultWidth, 1)
		}
		return constValue(resultWidth, 0)
	}
	return bottomValue()
}

// Rewrite is emit_ssa: every Const-valued Op/Phi is forwarded (via
// ReplacedBy) to a fresh Const node, and every control edge that never
// became Executed is removed. It returns the number of nodes rewritten.
func Rewrite(g *ssagraph.Graph, r *Result) int {
	rewritten := 0
	for _, kind := range []ssagraph.NodeKind{ssagraph.KindOp, ssagraph.KindPhi} {
		for _, n := range g.ValidNodesOfKind(kind) {
			v := r.Value(n)
			if !v.IsConst() {
				continue
			}
			if kind == ssagraph.KindOp && g.Opcode(n).IsConst() {
				continue
			}
			replacement := g.AddOp(ir.OpConst(v.Imm), ir.NewScalar(v.Width), nil)
			if block, addr, ok := g.ContainingBlock(n); ok {
				g.SetContainedInBB(replacement, block, addr)
			}
			g.AddReplacedBy(n, replacement)
			rewritten++
		}
	}

	for _, b := range g.ValidNodes() {
		for _, e := range g.ControlSuccessorEdges(b) {
			if !r.EdgeExecuted(e) {
				g.RemoveEdge(e)
			}
		}
	}

	return rewritten
}

// Run analyzes g and rewrites it to the fixed point in one step.
func Run(g *ssagraph.Graph) int {
	return Rewrite(g, Analyze(g))
}
