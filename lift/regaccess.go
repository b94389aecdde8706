// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lift

import (
	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

// readRegister implements §4.2's partial-register read contract: read the
// whole register's current SSA value, then, if name names a sub-register,
// shift the field down (Lsr) and truncate it (Narrow).
func (l *Lifter) readRegister(name string) (ssagraph.NodeID, error) {
	sub, ok := l.rf.GetSubregister(name)
	if !ok {
		return ssagraph.InvalidNode, l.errf("unknown register %q", name)
	}
	wholeWidth, _ := l.rf.GetWidth(sub.Whole)
	value := l.pp.ReadVariable(l.curBlock, sub.Whole)

	if sub.Shift > 0 {
		shiftConst := l.constNode(uint64(sub.Shift))
		value = l.emitOp(ir.OpLsr, ir.NewScalar(ir.WidthSpec(wholeWidth)), value, shiftConst)
	}
	if sub.Width < wholeWidth {
		value = l.emitOp(ir.OpNarrow(ir.WidthSpec(sub.Width)), ir.NewScalar(ir.WidthSpec(sub.Width)), value)
	}
	return value, nil
}

// writeRegister implements §4.2's partial-register write contract: widen the
// new value up to the whole register's width, shift it into position, mask
// it against the complement of the sub-register's bit range, and OR it into
// the whole register's previous value. A full-width write skips the
// mask/OR step entirely.
func (l *Lifter) writeRegister(name string, newValue ssagraph.NodeID) error {
	sub, ok := l.rf.GetSubregister(name)
	if !ok {
		return l.errf("unknown register %q", name)
	}
	wholeWidth, _ := l.rf.GetWidth(sub.Whole)
	wholeType := ir.NewScalar(ir.WidthSpec(wholeWidth))

	if int(l.g.Type(newValue).Width) < wholeWidth {
		newValue = l.emitOp(ir.OpWiden(ir.WidthSpec(wholeWidth)), wholeType, newValue)
	}
	if sub.Shift > 0 {
		shiftConst := l.constNode(uint64(sub.Shift))
		newValue = l.emitOp(ir.OpLsl, wholeType, newValue, shiftConst)
	}

	if sub.Width < wholeWidth {
		mask := fieldMask(sub.Shift, sub.Width, wholeWidth)
		old := l.pp.ReadVariable(l.curBlock, sub.Whole)
		notMask := l.constNode(^mask & fullMask(wholeWidth))
		cleared := l.emitOp(ir.OpAnd, wholeType, old, notMask)
		newValue = l.emitOp(ir.OpOr, wholeType, cleared, newValue)
	}

	l.pp.WriteVariable(l.curBlock, sub.Whole, newValue)
	return nil
}

func fullMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

func fieldMask(shift, width, wholeWidth int) uint64 {
	return (fullMask(width) << uint(shift)) & fullMask(wholeWidth)
}
