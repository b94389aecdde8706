// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lift turns a linear stream of per-instruction stack-machine
// expressions into SSA form over a *ssagraph.Graph, using a phiplacer.
// PhiPlacer for variable versioning and a regfile.File for register
// layout (§4.4 of the design). The expression grammar is the same
// comma-separated postfix notation radare2's ESIL uses, simplified to the
// operator set §4.4 actually needs.
package lift

import (
	"fmt"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/phiplacer"
	"github.com/aclements/ssalift/regfile"
	"github.com/aclements/ssalift/ssagraph"
)

// OperationRecord is one disassembled instruction: its address and the
// postfix expression describing its effect. Class, when "call", triggers
// the call-clobbers-everything handling in §4.4.
type OperationRecord struct {
	Address    uint64
	Expression string
	Class      string
}

// pendingITE is one entry on the nesting stack: an open If whose false
// branch has not been resolved yet.
type pendingITE struct {
	ite      ssagraph.NodeID
	srcBlock ssagraph.NodeID
}

// Lifter drives Braun-style SSA construction from a postfix instruction
// stream, per §4.4.
type Lifter struct {
	g  *ssagraph.Graph
	pp *phiplacer.PhiPlacer
	rf *regfile.File

	memVar int // phiplacer variable id reserved for the memory pseudo-register

	constants map[uint64]ssagraph.NodeID
	stack     []value
	intermediates []ssagraph.NodeID

	nesting []pendingITE

	needsNewBlock bool
	curBlock      ssagraph.NodeID
	curAddr       ir.MAddress
	blocks        []ssagraph.NodeID

	entry ssagraph.NodeID
	exit  ssagraph.NodeID
}

// New creates a Lifter that will build SSA into g using rf's register
// layout. g should be freshly constructed.
func New(g *ssagraph.Graph, rf *regfile.File) (*Lifter, error) {
	if rf.NumWhole() > maxRegisters {
		return nil, &InvalidInputError{Reason: fmt.Sprintf("register file has %d whole registers, limit is %d", rf.NumWhole(), maxRegisters)}
	}
	l := &Lifter{
		g:         g,
		rf:        rf,
		memVar:    rf.NumWhole(),
		constants: make(map[uint64]ssagraph.NodeID),
	}
	varType := func(v int) ir.ValueType {
		if v == l.memVar {
			return ir.NewUnresolved(ir.UnknownWidth)
		}
		w, _ := rf.GetWidth(v)
		return ir.NewScalar(ir.WidthSpec(w))
	}
	l.pp = phiplacer.New(g, rf.NumWhole()+1, varType)
	return l, nil
}

// Blocks returns every basic block created so far, in creation order —
// the order phiplacer.Finish wants for sealing (§6.2).
func (l *Lifter) Blocks() []ssagraph.NodeID { return l.blocks }

func (l *Lifter) errf(format string, args ...interface{}) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...), Addr: l.curAddr.String()}
}

// initBlocks creates the function's entry block, writes every whole
// register and the memory pseudo-variable with a Comment placeholder (the
// unknown incoming state), and seals the entry block immediately since it
// can never gain another predecessor. It also creates the function's sole
// DynamicAction exit node. Grounded on SSAConstruct::init_blocks.
func (l *Lifter) initBlocks() {
	start := l.pp.AddBlock(ir.MAddress{})
	l.g.SetEntry(start)
	l.entry = start
	l.blocks = append(l.blocks, start)

	for i := 0; i < l.rf.NumWhole(); i++ {
		name, _ := l.rf.GetName(i)
		width, _ := l.rf.GetWidth(i)
		c := l.g.AddComment(ir.NewScalar(ir.WidthSpec(width)), name)
		l.pp.WriteVariable(start, i, c)
	}
	memC := l.g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "mem")
	l.pp.WriteVariable(start, l.memVar, memC)
	l.pp.SealBlock(start)

	l.exit = l.g.AddDynamicAction()
	l.g.SetExit(l.exit)

	l.curBlock = start
	l.curAddr = ir.MAddress{}
	l.needsNewBlock = true // the first instruction always starts its own block
}

// Run lifts every operation record in order and returns the graph's entry
// block. Each record is processed independently; a malformed expression
// aborts the whole run (§7: per-function, not per-instruction, isolation —
// callers isolate per function by calling Run once per function).
func (l *Lifter) Run(ops []OperationRecord) (ssagraph.NodeID, error) {
	l.initBlocks()

	for _, rec := range ops {
		if err := l.step(rec); err != nil {
			return ssagraph.InvalidNode, fmt.Errorf("lift: address %#x: %w", rec.Address, err)
		}
	}

	l.g.AddControlEdge(l.curBlock, l.exit, ssagraph.Uncond)
	// Every block is sealed here rather than as soon as it's first visited.
	// §4.4's instruction stream never produces a backward control edge (GOTO
	// is rejected by processOp as unimplemented), so no block can ever gain a
	// predecessor after the fact — sealing at Finish is equivalent to
	// sealing on first visit and avoids tracking which blocks are still
	// missing predecessors from not-yet-seen If false-edges.
	l.pp.Finish(l.blocks)
	for _, b := range l.blocks {
		l.pp.SyncRegisterState(b)
	}
	// The exit node is a pseudo-block (a DynamicAction, not one of l.blocks)
	// reached by every return path; seal it last and sync its register
	// state too, so a reader can round-trip "every whole register (and
	// mem) at the exit block" per §6.
	l.pp.SealBlock(l.exit)
	l.pp.SyncRegisterState(l.exit)
	return l.entry, nil
}

func (l *Lifter) step(rec OperationRecord) error {
	nextAddr := ir.MAddress{Offset: rec.Address}

	if l.needsNewBlock {
		l.needsNewBlock = false
		block := l.pp.AddBlock(nextAddr)
		l.blocks = append(l.blocks, block)
		l.g.AddControlEdge(l.curBlock, block, ssagraph.Uncond)
		l.curBlock = block
	}
	l.curAddr = nextAddr

	if err := l.resolvePendingFalseEdges(); err != nil {
		return err
	}

	if rec.Class == "call" {
		return l.processCall(rec)
	}

	items, err := tokenize(rec.Expression)
	if err != nil {
		return err
	}
	l.stack = l.stack[:0]
	for _, it := range items {
		switch it.kind {
		case tokPush:
			l.stack = append(l.stack, it.push)
		case tokOp:
			if err := l.processOp(it.op); err != nil {
				return err
			}
		}
		l.curAddr.Micro++
	}
	return nil
}

// resolvePendingFalseEdges creates the false-branch block for every If left
// open by the previous instruction, at the current (i.e. next real
// instruction's) address, and connects the still-current block (the tail of
// the true branch, or wherever execution has reached since) into it by
// fallthrough. Grounded on §4.4's "resolving pending conditional
// false-edges"; the explicit true-branch fallthrough is this
// implementation's resolution of that section's otherwise-unspecified
// reconvergence.
func (l *Lifter) resolvePendingFalseEdges() error {
	if len(l.nesting) == 0 {
		return nil
	}
	pending := l.nesting
	l.nesting = nil
	for i := len(pending) - 1; i >= 0; i-- {
		p := pending[i]
		falseBlock := l.pp.AddBlock(l.curAddr)
		l.blocks = append(l.blocks, falseBlock)
		l.g.AddControlEdge(p.srcBlock, falseBlock, ssagraph.False)
		falseComment := l.g.AddComment(ir.NewUnresolved(ir.UnknownWidth), fmt.Sprintf("F: %s", l.curAddr))
		l.g.AddDataEdge(p.ite, 2, falseComment)
		if l.curBlock != falseBlock {
			l.g.AddControlEdge(l.curBlock, falseBlock, ssagraph.Uncond)
		}
		l.curBlock = falseBlock
	}
	return nil
}

// constNode returns the (deduplicated) Const node for v, creating it bound
// to the current block on first sight. A constant discovered in one block
// but consumed from another is still perfectly valid SSA — Data edges are
// not restricted to a single block — so sharing the cache across the whole
// function is safe and keeps the graph from growing one Const per use.
func (l *Lifter) constNode(v uint64) ssagraph.NodeID {
	if n, ok := l.constants[v]; ok {
		return n
	}
	n := l.g.AddOp(ir.OpConst(v), ir.NewScalar(64), nil)
	l.g.SetContainedInBB(n, l.curBlock, l.curAddr)
	l.constants[v] = n
	return n
}

func (l *Lifter) emitOp(op ir.Opcode, vt ir.ValueType, operands ...ssagraph.NodeID) ssagraph.NodeID {
	addr := l.curAddr
	n := l.g.AddOp(op, vt, &addr)
	l.g.SetContainedInBB(n, l.curBlock, l.curAddr)
	for i, operand := range operands {
		l.g.AddDataEdge(n, i, operand)
	}
	return n
}

func (l *Lifter) pop() (value, error) {
	if len(l.stack) == 0 {
		return value{}, &InvalidInputError{Reason: errStackUnderflowMsg, Addr: l.curAddr.String()}
	}
	v := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return v, nil
}

func (l *Lifter) push(n ssagraph.NodeID) {
	idx := len(l.intermediates)
	l.intermediates = append(l.intermediates, n)
	l.stack = append(l.stack, value{isEntry: true, entry: idx})
}

// resolve converts an operand-stack value into its graph node, reading a
// register through the partial-register contract if needed.
func (l *Lifter) resolve(v value) (ssagraph.NodeID, error) {
	if v.isEntry {
		return l.intermediates[v.entry], nil
	}
	switch v.kind {
	case pushRegister, pushIdentifier:
		return l.readRegister(v.name)
	case pushConstant:
		return l.constNode(v.imm), nil
	case pushAddress:
		return l.constNode(l.curAddr.Offset), nil
	}
	return ssagraph.InvalidNode, l.errf("bad operand")
}
