// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package irtext

import (
	"fmt"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/regfile"
	"github.com/aclements/ssalift/ssagraph"
)

// Read parses text and lowers it into a fresh *ssagraph.Graph, the
// companion reader §6 promises alongside Write.
func Read(text string) (*ssagraph.Graph, *regfile.File, error) {
	fn, err := Parse(text)
	if err != nil {
		return nil, nil, err
	}
	return Lower(fn)
}

// Lower builds a *ssagraph.Graph (and the regfile.File naming its exit
// register bindings) from a parsed Function, grounded on lowering.rs's
// LowerSsa::lower_function: a first pass creates every node a statement
// declares (so later statements can reference values defined in
// lexically-later blocks, exactly as a loop header's phi refers to a
// value written in the loop body), then a second pass wires up the data,
// phi, selector, control and register-state edges those placeholders
// could not yet carry.
func Lower(fn *Function) (*ssagraph.Graph, *regfile.File, error) {
	rf := registerFileOf(fn.Registers)
	regIndex := make(map[string]int, len(fn.Registers))
	for i, name := range fn.Registers {
		regIndex[name] = i
	}

	g := ssagraph.New()
	l := &lowerer{fn: fn, g: g, rf: rf, regIndex: regIndex, nodeOf: make(map[ValueRef]ssagraph.NodeID), blockOf: make(map[ir.MAddress]ssagraph.NodeID)}

	for i, bb := range fn.Blocks {
		id := g.AddBasicBlock(bb.Addr)
		l.blockOf[bb.Addr] = id
		if i == 0 {
			g.SetEntry(id)
		}
	}
	exit := g.AddDynamicAction()
	g.SetExit(exit)
	l.exit = exit

	for _, bb := range fn.Blocks {
		block := l.blockOf[bb.Addr]
		for _, stmt := range bb.Stmts {
			n, err := l.createNode(stmt)
			if err != nil {
				return nil, nil, err
			}
			l.nodeOf[stmt.Ref] = n
			g.SetContainedInBB(n, block, bb.Addr)
		}
	}

	for _, bb := range fn.Blocks {
		block := l.blockOf[bb.Addr]
		for _, stmt := range bb.Stmts {
			if err := l.wireStatement(stmt); err != nil {
				return nil, nil, err
			}
		}
		if err := l.wireJump(block, bb.Jump); err != nil {
			return nil, nil, err
		}
	}

	if err := l.wireExitState(); err != nil {
		return nil, nil, err
	}

	return g, rf, nil
}

// registerFileOf synthesizes a regfile.File from a bare register-name
// list: the textual IR's header carries names only (see Write), so each
// name becomes its own non-overlapping 64-bit whole register. Round
// tripping through irtext never needs sub-register slicing — that
// contract belongs to lift, which runs before the graph ever reaches
// this package — so a flat one-descriptor-per-name file is sufficient.
func registerFileOf(names []string) *regfile.File {
	descs := make([]regfile.Descriptor, len(names))
	for i, name := range names {
		descs[i] = regfile.Descriptor{Name: name, ShiftBits: i * 64, WidthBits: 64}
	}
	return regfile.New(descs)
}

type lowerer struct {
	fn       *Function
	g        *ssagraph.Graph
	rf       *regfile.File
	regIndex map[string]int

	nodeOf  map[ValueRef]ssagraph.NodeID
	blockOf map[ir.MAddress]ssagraph.NodeID
	exit    ssagraph.NodeID
}

func (l *lowerer) createNode(stmt Statement) (ssagraph.NodeID, error) {
	g := l.g
	e := stmt.Expr
	switch e.Kind {
	case ExprConst:
		return g.AddOp(ir.OpConst(e.Imm), stmt.Type, nil), nil
	case ExprInfix, ExprPrefix:
		op, ok := opByName(e.Op)
		if !ok {
			return ssagraph.InvalidNode, &InvalidASTError{Reason: fmt.Sprintf("unknown opcode %q", e.Op)}
		}
		return g.AddOp(op, stmt.Type, nil), nil
	case ExprResize:
		op, ok := resizeOpByName(e.Op, e.Width)
		if !ok {
			return ssagraph.InvalidNode, &InvalidASTError{Reason: fmt.Sprintf("unknown resize opcode %q", e.Op)}
		}
		return g.AddOp(op, stmt.Type, nil), nil
	case ExprLoad:
		return g.AddOp(ir.OpLoad, stmt.Type, nil), nil
	case ExprStore:
		return g.AddOp(ir.OpStore, stmt.Type, nil), nil
	case ExprITE:
		return g.AddOp(ir.OpITE, stmt.Type, nil), nil
	case ExprCall:
		return g.AddOp(ir.OpCall, stmt.Type, nil), nil
	case ExprComment:
		return g.AddComment(stmt.Type, e.Text), nil
	case ExprUndefined:
		return g.AddUndefined(stmt.Type), nil
	case ExprPhi:
		return g.AddPhi(stmt.Type), nil
	}
	return ssagraph.InvalidNode, &InvalidASTError{Reason: fmt.Sprintf("unknown expression kind %d", e.Kind)}
}

func (l *lowerer) wireStatement(stmt Statement) error {
	switch stmt.Expr.Kind {
	case ExprConst, ExprComment, ExprUndefined:
		return nil
	case ExprPhi:
		for _, arg := range stmt.Expr.Args {
			v, err := l.refNode(arg)
			if err != nil {
				return err
			}
			l.g.AddPhiOperand(l.nodeOf[stmt.Ref], v)
		}
		return nil
	default:
		n := l.nodeOf[stmt.Ref]
		for i, arg := range stmt.Expr.Args {
			if arg == noRef {
				continue
			}
			v, err := l.refNode(arg)
			if err != nil {
				return err
			}
			l.g.AddDataEdge(n, i, v)
		}
		return nil
	}
}

func (l *lowerer) wireJump(block ssagraph.NodeID, j Jump) error {
	switch j.Kind {
	case JumpUncond:
		dst, err := l.resolveLabel(j.Target)
		if err != nil {
			return err
		}
		l.g.AddControlEdge(block, dst, ssagraph.Uncond)
		return nil
	case JumpCond:
		sel, err := l.refNode(j.Sel)
		if err != nil {
			return err
		}
		ifDst, err := l.resolveLabel(j.IfTarget)
		if err != nil {
			return err
		}
		elseDst, err := l.resolveLabel(j.ElseTarget)
		if err != nil {
			return err
		}
		l.g.AddSelectorEdge(block, sel)
		l.g.AddControlEdge(block, ifDst, ssagraph.True)
		l.g.AddControlEdge(block, elseDst, ssagraph.False)
		return nil
	}
	return &InvalidASTError{Reason: fmt.Sprintf("unknown jump kind %d", j.Kind)}
}

func (l *lowerer) wireExitState() error {
	if len(l.fn.ExitState) == 0 {
		return nil
	}
	tuple := l.g.AddRegisterState()
	l.g.SetContainedInBB(tuple, l.exit, ir.MAddress{})
	for _, rb := range l.fn.ExitState {
		v, err := l.refNode(rb.Ref)
		if err != nil {
			return err
		}
		var slot int
		if rb.Reg == "mem" {
			slot = len(l.fn.Registers)
		} else {
			idx, ok := l.regIndex[rb.Reg]
			if !ok {
				return &InvalidASTError{Reason: fmt.Sprintf("exit binding names unknown register %q", rb.Reg)}
			}
			slot = idx
		}
		l.g.AddRegisterStateEdge(tuple, slot, v)
	}
	return nil
}

func (l *lowerer) refNode(r ValueRef) (ssagraph.NodeID, error) {
	n, ok := l.nodeOf[r]
	if !ok {
		return ssagraph.InvalidNode, &InvalidASTError{Reason: fmt.Sprintf("undeclared value ref %%%d", r)}
	}
	return n, nil
}

func (l *lowerer) resolveLabel(addr ir.MAddress) (ssagraph.NodeID, error) {
	if addr.Offset == exitSentinelOffset {
		return l.exit, nil
	}
	id, ok := l.blockOf[addr]
	if !ok {
		return ssagraph.InvalidNode, &InvalidASTError{Reason: fmt.Sprintf("jump to undeclared block %s", addr)}
	}
	return id, nil
}

func opByName(name string) (ir.Opcode, bool) {
	switch name {
	case "add":
		return ir.OpAdd, true
	case "sub":
		return ir.OpSub, true
	case "mul":
		return ir.OpMul, true
	case "div":
		return ir.OpDiv, true
	case "mod":
		return ir.OpMod, true
	case "and":
		return ir.OpAnd, true
	case "or":
		return ir.OpOr, true
	case "xor":
		return ir.OpXor, true
	case "lsl":
		return ir.OpLsl, true
	case "lsr":
		return ir.OpLsr, true
	case "not":
		return ir.OpNot, true
	case "eq":
		return ir.OpEq, true
	case "gt":
		return ir.OpGt, true
	case "lt":
		return ir.OpLt, true
	}
	return ir.Opcode{}, false
}

func resizeOpByName(name string, w ir.WidthSpec) (ir.Opcode, bool) {
	switch name {
	case "narrow":
		return ir.OpNarrow(w), true
	case "signext":
		return ir.OpSignExt(w), true
	case "zeroext":
		return ir.OpZeroExt(w), true
	case "widen":
		return ir.OpWiden(w), true
	}
	return ir.Opcode{}, false
}
