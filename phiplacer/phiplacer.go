// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package phiplacer implements Braun, Buchwald, Hack, Leißa, Mehofer and
// Zwinkau's on-the-fly SSA construction algorithm (§4.3 of the design):
// per-block, per-variable versioning with lazy phi insertion and trivial
// phi elimination as soon as a predecessor is sealed.
package phiplacer

import (
	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

// VarType resolves a variable id (a whole register index, or the
// designated memory variable id) to the ValueType new phis for that
// variable should carry.
type VarType func(v int) ir.ValueType

type key struct {
	block ssagraph.NodeID
	v     int
}

// PhiPlacer tracks current definitions, sealed blocks and incomplete phis
// for one function's variables over a shared *ssagraph.Graph.
type PhiPlacer struct {
	g       *ssagraph.Graph
	varType VarType

	def        map[key]ssagraph.NodeID
	sealed     map[ssagraph.NodeID]bool
	incomplete map[ssagraph.NodeID]map[int]ssagraph.NodeID // block -> var -> phi

	regTuple map[ssagraph.NodeID]ssagraph.NodeID // block -> RegisterState node
	numVars  int
}

func New(g *ssagraph.Graph, numVars int, varType VarType) *PhiPlacer {
	return &PhiPlacer{
		g:          g,
		varType:    varType,
		numVars:    numVars,
		def:        make(map[key]ssagraph.NodeID),
		sealed:     make(map[ssagraph.NodeID]bool),
		incomplete: make(map[ssagraph.NodeID]map[int]ssagraph.NodeID),
		regTuple:   make(map[ssagraph.NodeID]ssagraph.NodeID),
	}
}

// NumVars returns the number of tracked variables.
func (p *PhiPlacer) NumVars() int { return p.numVars }

// AddBlock creates a new, initially unsealed, basic block at addr.
func (p *PhiPlacer) AddBlock(addr ir.MAddress) ssagraph.NodeID {
	return p.g.AddBasicBlock(addr)
}

// WriteVariable records node as the current definition of v in block.
func (p *PhiPlacer) WriteVariable(block ssagraph.NodeID, v int, node ssagraph.NodeID) {
	p.def[key{block, v}] = node
}

// ReadVariable returns the current definition of v visible at the end of
// block, creating phis as necessary.
func (p *PhiPlacer) ReadVariable(block ssagraph.NodeID, v int) ssagraph.NodeID {
	if n, ok := p.def[key{block, v}]; ok {
		return p.g.Resolve(n)
	}
	return p.readVariableRecursive(block, v)
}

func (p *PhiPlacer) readVariableRecursive(block ssagraph.NodeID, v int) ssagraph.NodeID {
	var val ssagraph.NodeID

	if !p.sealed[block] {
		val = p.newPhi(block, v)
		if p.incomplete[block] == nil {
			p.incomplete[block] = make(map[int]ssagraph.NodeID)
		}
		p.incomplete[block][v] = val
	} else if preds := p.g.ControlPredecessors(block); len(preds) == 1 {
		val = p.ReadVariable(preds[0], v)
	} else {
		val = p.newPhi(block, v)
		// Write before recursing so a cycle back to this block sees val,
		// not another recursive call.
		p.WriteVariable(block, v, val)
		val = p.addPhiOperands(block, v, val)
	}

	p.WriteVariable(block, v, val)
	return val
}

func (p *PhiPlacer) newPhi(block ssagraph.NodeID, v int) ssagraph.NodeID {
	phi := p.g.AddPhi(p.varType(v))
	p.g.SetContainedInBB(phi, block, p.blockAddr(block))
	return phi
}

func (p *PhiPlacer) blockAddr(block ssagraph.NodeID) ir.MAddress {
	if p.g.Kind(block) == ssagraph.KindBasicBlock {
		return p.g.Addr(block)
	}
	return ir.MAddress{}
}

func (p *PhiPlacer) addPhiOperands(block ssagraph.NodeID, v int, phi ssagraph.NodeID) ssagraph.NodeID {
	for _, pred := range p.g.ControlPredecessors(block) {
		p.g.AddPhiOperand(phi, p.ReadVariable(pred, v))
	}
	return p.tryRemoveTrivialPhi(phi)
}

// SealBlock marks block as having its complete predecessor set, resolving
// every phi left incomplete while it was open.
func (p *PhiPlacer) SealBlock(block ssagraph.NodeID) {
	if p.sealed[block] {
		return
	}
	for v, phi := range p.incomplete[block] {
		p.addPhiOperands(block, v, phi)
	}
	delete(p.incomplete, block)
	p.sealed[block] = true
}

// Sealed reports whether block has been sealed.
func (p *PhiPlacer) Sealed(block ssagraph.NodeID) bool { return p.sealed[block] }

// tryRemoveTrivialPhi collapses phi via ReplacedBy if all of its non-self
// operands are identical (or it has none), and recurses into every phi
// that used it, per §4.3.
func (p *PhiPlacer) tryRemoveTrivialPhi(phi ssagraph.NodeID) ssagraph.NodeID {
	var same ssagraph.NodeID = ssagraph.InvalidNode
	trivial := true
	for _, op := range p.g.PhiOperands(phi) {
		if op == phi || op == same {
			continue
		}
		if same != ssagraph.InvalidNode {
			trivial = false
			break
		}
		same = op
	}
	if !trivial {
		return phi
	}

	users := phiUsers(p.g, phi)

	var replacement ssagraph.NodeID
	if same == ssagraph.InvalidNode {
		replacement = p.g.AddUndefined(p.g.Type(phi))
	} else {
		replacement = same
	}
	p.g.AddReplacedBy(phi, replacement)

	for _, user := range users {
		if user == phi {
			continue
		}
		p.tryRemoveTrivialPhi(user)
	}
	return replacement
}

// phiUsers returns the distinct Phi nodes that use n as an operand.
func phiUsers(g *ssagraph.Graph, n ssagraph.NodeID) []ssagraph.NodeID {
	seen := make(map[ssagraph.NodeID]bool)
	var users []ssagraph.NodeID
	for _, eid := range g.Uses(n) {
		dst := g.EdgeDst(eid)
		if g.Kind(dst) != ssagraph.KindPhi {
			continue
		}
		if !seen[dst] {
			seen[dst] = true
			users = append(users, dst)
		}
	}
	return users
}

// Finish seals every block in blocks that is not yet sealed, in the order
// given — the loop back-edge sealing order is left to the caller per the
// open question resolved in SPEC_FULL.md §6.2 (any order yields equivalent
// SSA up to phi identity).
func (p *PhiPlacer) Finish(blocks []ssagraph.NodeID) {
	for _, b := range blocks {
		p.SealBlock(b)
	}
}

// RegisterStateTuple returns (creating if necessary) the RegisterState
// node attached to block. The tuple is bound to block via a ContainedInBB
// edge (the same mechanism Op/Phi nodes use) so that callers with only a
// *ssagraph.Graph in hand — the textual IR writer, in particular — can
// find a block's register state without going through the phi placer.
func (p *PhiPlacer) RegisterStateTuple(block ssagraph.NodeID) ssagraph.NodeID {
	if t, ok := p.regTuple[block]; ok {
		return t
	}
	t := p.g.AddRegisterState()
	p.g.SetContainedInBB(t, block, p.blockAddr(block))
	p.regTuple[block] = t
	return t
}

// SyncRegisterState reads the current definition of every variable
// 0..NumVars-1 at block and binds it into block's RegisterState tuple.
func (p *PhiPlacer) SyncRegisterState(block ssagraph.NodeID) ssagraph.NodeID {
	tuple := p.RegisterStateTuple(block)
	for v := 0; v < p.numVars; v++ {
		p.g.AddRegisterStateEdge(tuple, v, p.ReadVariable(block, v))
	}
	return tuple
}
