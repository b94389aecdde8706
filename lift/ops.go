// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lift

import (
	"fmt"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

// processOp applies one decoded operator to the operand stack, per the
// token dispatch table in §4.4 (grounded on SSAConstruct::process_op).
func (l *Lifter) processOp(op operator) error {
	switch op.name {
	case "nop", "endif":
		return nil
	case "rol", "ror", "goto", "break":
		return &UnimplementedError{Token: op.name, Addr: l.curAddr.String()}
	case "assign":
		return l.processAssign()
	case "if":
		return l.processIf()
	case "poke":
		return l.processPoke()
	case "peek":
		return l.processPeek(op.width)
	case "neg":
		return l.processUnary(ir.OpNot)
	case "cmp":
		return l.processBinary(ir.OpSub, 0)
	case "lt":
		return l.processBinary(ir.OpLt, 1)
	case "gt":
		return l.processBinary(ir.OpGt, 1)
	case "add":
		return l.processBinary(ir.OpAdd, 0)
	case "sub":
		return l.processBinary(ir.OpSub, 0)
	case "mul":
		return l.processBinary(ir.OpMul, 0)
	case "div":
		return l.processBinary(ir.OpDiv, 0)
	case "mod":
		return l.processBinary(ir.OpMod, 0)
	case "and":
		return l.processBinary(ir.OpAnd, 0)
	case "or":
		return l.processBinary(ir.OpOr, 0)
	case "xor":
		return l.processBinary(ir.OpXor, 0)
	case "lsl":
		return l.processBinary(ir.OpLsl, 0)
	case "lsr":
		return l.processBinary(ir.OpLsr, 0)
	}
	return l.errf("unknown operator %q", op.name)
}

// processBinary pops two operands (lhs = most recently pushed, rhs =
// pushed before it, per §4.4's fetch-operands convention), normalizes their
// widths by inserting a Widen on the narrower side, emits op, and pushes
// the result. resultWidth overrides the normalized width when non-zero
// (used for the width-1 comparisons).
func (l *Lifter) processBinary(op ir.Opcode, resultWidth ir.WidthSpec) error {
	lhsVal, err := l.pop()
	if err != nil {
		return err
	}
	rhsVal, err := l.pop()
	if err != nil {
		return err
	}
	lhs, err := l.resolve(lhsVal)
	if err != nil {
		return err
	}
	rhs, err := l.resolve(rhsVal)
	if err != nil {
		return err
	}
	lhs, rhs, width := l.normalizeWidths(lhs, rhs)
	if resultWidth != 0 {
		width = resultWidth
	}
	result := l.emitOp(op, ir.NewScalar(width), lhs, rhs)
	l.push(result)
	return nil
}

func (l *Lifter) processUnary(op ir.Opcode) error {
	v, err := l.pop()
	if err != nil {
		return err
	}
	n, err := l.resolve(v)
	if err != nil {
		return err
	}
	result := l.emitOp(op, l.g.Type(n), n)
	l.push(result)
	return nil
}

// normalizeWidths widens whichever of lhs/rhs is narrower up to the other's
// width, per §4.4's width-normalization rule.
func (l *Lifter) normalizeWidths(lhs, rhs ssagraph.NodeID) (ssagraph.NodeID, ssagraph.NodeID, ir.WidthSpec) {
	lw, rw := l.g.Type(lhs).Width, l.g.Type(rhs).Width
	target := lw
	if rw > target {
		target = rw
	}
	if lw < target {
		lhs = l.emitOp(ir.OpWiden(target), ir.NewScalar(target), lhs)
	}
	if rw < target {
		rhs = l.emitOp(ir.OpWiden(target), ir.NewScalar(target), rhs)
	}
	return lhs, rhs, target
}

// processAssign implements the Eq token: "lhs = rhs". If lhs is the PC
// alias and rhs is a literal constant, this is an unconditional jump:
// target a new block at that address instead of writing a register. If lhs
// is any other register, write it through the partial-register contract. If
// lhs names no register at all (it's a computed address), it's a memory
// store.
func (l *Lifter) processAssign() error {
	lhsVal, err := l.pop()
	if err != nil {
		return err
	}
	rhsVal, err := l.pop()
	if err != nil {
		return err
	}

	if lhsVal.kind == pushRegister || lhsVal.kind == pushIdentifier {
		if pc, ok := l.rf.GetNameByAlias("PC"); ok && pc == lhsVal.name && rhsVal.kind == pushConstant && !rhsVal.isEntry {
			target := ir.MAddress{Offset: rhsVal.imm}
			targetBlock := l.pp.AddBlock(target)
			l.blocks = append(l.blocks, targetBlock)
			l.g.AddControlEdge(l.curBlock, targetBlock, ssagraph.Uncond)
			l.needsNewBlock = true
			return nil
		}
		rhs, err := l.resolve(rhsVal)
		if err != nil {
			return err
		}
		return l.writeRegister(lhsVal.name, rhs)
	}

	addr, err := l.resolve(lhsVal)
	if err != nil {
		return err
	}
	rhs, err := l.resolve(rhsVal)
	if err != nil {
		return err
	}
	mem := l.pp.ReadVariable(l.curBlock, l.memVar)
	newMem := l.emitOp(ir.OpStore, ir.NewUnresolved(ir.UnknownWidth), mem, addr, rhs)
	l.pp.WriteVariable(l.curBlock, l.memVar, newMem)
	return nil
}

// processIf implements the If token: emit ITE(cond), mark cond as the
// block's Selector (so SCCP and DCE can find the branch condition from the
// block alone), open a true-branch block with a TRUE edge from the current
// block, and record the pending false edge for resolvePendingFalseEdges to
// close once the next instruction's address is known.
func (l *Lifter) processIf() error {
	condVal, err := l.pop()
	if err != nil {
		return err
	}
	cond, err := l.resolve(condVal)
	if err != nil {
		return err
	}

	ite := l.emitOp(ir.OpITE, ir.NewScalar(1), cond)
	srcBlock := l.curBlock
	l.g.AddSelectorEdge(srcBlock, cond)

	trueAddr := ir.MAddress{Offset: l.curAddr.Offset, Micro: l.curAddr.Micro + 1}
	trueBlock := l.pp.AddBlock(trueAddr)
	l.blocks = append(l.blocks, trueBlock)
	l.g.AddControlEdge(srcBlock, trueBlock, ssagraph.True)
	trueComment := l.g.AddComment(ir.NewUnresolved(ir.UnknownWidth), "T: "+trueAddr.String())
	l.g.AddDataEdge(ite, 1, trueComment)

	l.nesting = append(l.nesting, pendingITE{ite: ite, srcBlock: srcBlock})
	l.curBlock = trueBlock
	return nil
}

// processPoke implements Poke(n): lhs is the address, rhs the value, per
// the "42,0x1000,=[8]" convention.
func (l *Lifter) processPoke() error {
	addrVal, err := l.pop()
	if err != nil {
		return err
	}
	valVal, err := l.pop()
	if err != nil {
		return err
	}
	addr, err := l.resolve(addrVal)
	if err != nil {
		return err
	}
	val, err := l.resolve(valVal)
	if err != nil {
		return err
	}
	mem := l.pp.ReadVariable(l.curBlock, l.memVar)
	newMem := l.emitOp(ir.OpStore, ir.NewUnresolved(ir.UnknownWidth), mem, addr, val)
	l.pp.WriteVariable(l.curBlock, l.memVar, newMem)
	return nil
}

// processPeek implements Peek(n): the sole operand is the address; the
// result has width n and is pushed for later tokens to consume.
func (l *Lifter) processPeek(width int) error {
	addrVal, err := l.pop()
	if err != nil {
		return err
	}
	addr, err := l.resolve(addrVal)
	if err != nil {
		return err
	}
	mem := l.pp.ReadVariable(l.curBlock, l.memVar)
	result := l.emitOp(ir.OpLoad, ir.NewScalar(ir.WidthSpec(width)), mem, addr)
	l.push(result)
	return nil
}

// processCall models a call instruction as reading and writing every
// register (§4.4 "Calls"): a Comment names the call's mnemonic, an OpCall
// node takes the call target in operand slot 0 when the expression resolves
// to one (shifting the per-register operands up by one slot so the operand
// list stays dense), or otherwise starts the pre-call value of register r_i
// at slot i, and every register is then rewritten to a fresh Comment
// "r_i@addr" — calls are opaque, so no more precise a definition is
// available.
func (l *Lifter) processCall(rec OperationRecord) error {
	mnemonic := rec.Expression
	if mnemonic == "" {
		mnemonic = "call"
	}
	comment := l.g.AddComment(ir.NewUnresolved(ir.UnknownWidth), mnemonic)
	l.g.SetContainedInBB(comment, l.curBlock, l.curAddr)

	call := l.emitOp(ir.OpCall, ir.NewUnresolved(ir.UnknownWidth))

	slot := 0
	if rec.Expression != "" {
		items, err := tokenize(rec.Expression)
		if err != nil {
			return err
		}
		if len(items) > 0 && items[len(items)-1].kind == tokPush {
			target, err := l.resolve(items[len(items)-1].push)
			if err != nil {
				return err
			}
			l.g.AddDataEdge(call, slot, target)
			slot++
		}
	}

	for i := 0; i < l.rf.NumWhole(); i++ {
		old := l.pp.ReadVariable(l.curBlock, i)
		l.g.AddDataEdge(call, slot+i, old)
	}
	for i := 0; i < l.rf.NumWhole(); i++ {
		name, _ := l.rf.GetName(i)
		width, _ := l.rf.GetWidth(i)
		fresh := l.g.AddComment(ir.NewScalar(ir.WidthSpec(width)), fmt.Sprintf("%s@%s", name, l.curAddr))
		l.pp.WriteVariable(l.curBlock, i, fresh)
	}
	return nil
}
