// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memssa versions the memory effects of an already-lifted SSA
// graph by alias class (§4.5 of the design): every load observes the
// current definition of every class its address may touch, and every
// store introduces a new definition for each class it may touch. The
// resulting per-class SSA is kept beside the scalar SSA the lifter built
// and shares its block structure, rather than replacing it.
package memssa

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/aclements/ssalift/ir"
	"github.com/aclements/ssalift/ssagraph"
)

// AliasClass names one of the three alias partitions §6 of the design
// lists: the frontend's datarefs (globals), locals (stack frame) and
// call_ctx (argument memory).
type AliasClass string

const (
	ClassDataRefs AliasClass = "datarefs"
	ClassLocals   AliasClass = "locals"
	ClassCallCtx  AliasClass = "call_ctx"
)

// AllClasses is every alias class memssa tracks, in a fixed order.
var AllClasses = []AliasClass{ClassDataRefs, ClassLocals, ClassCallCtx}

// AddrRange is a half-open [Low, High) byte range belonging to one class.
type AddrRange struct{ Low, High uint64 }

func (r AddrRange) contains(v uint64) bool { return v >= r.Low && v < r.High }

// Ranges maps each alias class to the address ranges the frontend reported
// for it. A class with no ranges never matches a constant address.
type Ranges struct {
	DataRefs []AddrRange
	Locals   []AddrRange
	CallCtx  []AddrRange
}

func (r Ranges) rangesFor(c AliasClass) []AddrRange {
	switch c {
	case ClassDataRefs:
		return r.DataRefs
	case ClassLocals:
		return r.Locals
	case ClassCallCtx:
		return r.CallCtx
	}
	return nil
}

// Classify decides which alias classes a load or store's address operand
// may touch. A constant address matches every class whose range contains
// it; if it matches none of them, or the address isn't a compile-time
// constant at all, the access conservatively may touch every class.
func Classify(g *ssagraph.Graph, addr ssagraph.NodeID, ranges Ranges) []AliasClass {
	op := g.Opcode(addr)
	if !op.IsConst() {
		return AllClasses
	}
	var classes []AliasClass
	for _, c := range AllClasses {
		for _, r := range ranges.rangesFor(c) {
			if r.contains(op.Imm) {
				classes = append(classes, c)
				break
			}
		}
	}
	if len(classes) == 0 {
		return AllClasses
	}
	return classes
}

type key struct {
	block ssagraph.NodeID
	class AliasClass
}

// SSA tracks, per alias class, a Braun-style def map over the same blocks
// the scalar SSA uses. It is deliberately a self-contained re-implementation
// of the phiplacer algorithm rather than a reuse of phiplacer.PhiPlacer: §2
// of the design keeps memssa's dependencies to ir and ssagraph only, so that
// memory-SSA construction cannot be coupled to the scalar lifter's specific
// per-register variable numbering.
type SSA struct {
	g *ssagraph.Graph

	def        map[key]ssagraph.NodeID
	sealed     map[ssagraph.NodeID]bool
	incomplete map[ssagraph.NodeID]map[AliasClass]ssagraph.NodeID
}

// New creates an empty per-class SSA over g.
func New(g *ssagraph.Graph) *SSA {
	return &SSA{
		g:          g,
		def:        make(map[key]ssagraph.NodeID),
		sealed:     make(map[ssagraph.NodeID]bool),
		incomplete: make(map[ssagraph.NodeID]map[AliasClass]ssagraph.NodeID),
	}
}

// WriteVariable records node as class's current definition at the end of
// block.
func (m *SSA) WriteVariable(block ssagraph.NodeID, class AliasClass, node ssagraph.NodeID) {
	m.def[key{block, class}] = node
}

// ReadVariable returns class's reaching definition at the end of block,
// inserting phis as necessary.
func (m *SSA) ReadVariable(block ssagraph.NodeID, class AliasClass) ssagraph.NodeID {
	if n, ok := m.def[key{block, class}]; ok {
		return m.g.Resolve(n)
	}
	return m.readVariableRecursive(block, class)
}

func (m *SSA) readVariableRecursive(block ssagraph.NodeID, class AliasClass) ssagraph.NodeID {
	var val ssagraph.NodeID

	if !m.sealed[block] {
		val = m.newPhi(block)
		if m.incomplete[block] == nil {
			m.incomplete[block] = make(map[AliasClass]ssagraph.NodeID)
		}
		m.incomplete[block][class] = val
	} else if preds := m.g.ControlPredecessors(block); len(preds) == 1 {
		val = m.ReadVariable(preds[0], class)
	} else {
		val = m.newPhi(block)
		m.WriteVariable(block, class, val)
		val = m.addPhiOperands(block, class, val)
	}

	m.WriteVariable(block, class, val)
	return val
}

func (m *SSA) newPhi(block ssagraph.NodeID) ssagraph.NodeID {
	phi := m.g.AddPhi(ir.NewUnresolved(ir.UnknownWidth))
	addr := ir.MAddress{}
	if m.g.Kind(block) == ssagraph.KindBasicBlock {
		addr = m.g.Addr(block)
	}
	m.g.SetContainedInBB(phi, block, addr)
	return phi
}

func (m *SSA) addPhiOperands(block ssagraph.NodeID, class AliasClass, phi ssagraph.NodeID) ssagraph.NodeID {
	for _, pred := range m.g.ControlPredecessors(block) {
		m.g.AddPhiOperand(phi, m.ReadVariable(pred, class))
	}
	return m.tryRemoveTrivialPhi(phi)
}

// SealBlock marks block as having its complete predecessor set, resolving
// every phi left incomplete while it was open.
func (m *SSA) SealBlock(block ssagraph.NodeID) {
	if m.sealed[block] {
		return
	}
	for class, phi := range m.incomplete[block] {
		m.addPhiOperands(block, class, phi)
	}
	delete(m.incomplete, block)
	m.sealed[block] = true
}

// Finish seals every block in blocks, in the order given.
func (m *SSA) Finish(blocks []ssagraph.NodeID) {
	for _, b := range blocks {
		m.SealBlock(b)
	}
}

func (m *SSA) tryRemoveTrivialPhi(phi ssagraph.NodeID) ssagraph.NodeID {
	var same ssagraph.NodeID = ssagraph.InvalidNode
	trivial := true
	for _, op := range m.g.PhiOperands(phi) {
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

	var users []ssagraph.NodeID
	seen := make(map[ssagraph.NodeID]bool)
	for _, eid := range m.g.Uses(phi) {
		dst := m.g.EdgeDst(eid)
		if m.g.Kind(dst) == ssagraph.KindPhi && !seen[dst] {
			seen[dst] = true
			users = append(users, dst)
		}
	}

	var replacement ssagraph.NodeID
	if same == ssagraph.InvalidNode {
		replacement = m.g.AddUndefined(m.g.Type(phi))
	} else {
		replacement = same
	}
	m.g.AddReplacedBy(phi, replacement)

	for _, u := range users {
		if u != phi {
			m.tryRemoveTrivialPhi(u)
		}
	}
	return replacement
}

// Build scans every load and store contained in blocks (visited in the
// order given, each block's own ops in address order) and threads them
// through a fresh per-class SSA: a load reads the reaching definition of
// every class its address may touch; a store becomes the new definition for
// every class its address may touch. It returns the constructed SSA and,
// for every load/store node visited, the classes it was resolved against.
func Build(g *ssagraph.Graph, blocks []ssagraph.NodeID, ranges Ranges) (*SSA, map[ssagraph.NodeID][]AliasClass) {
	m := New(g)
	touched := make(map[ssagraph.NodeID][]AliasClass)

	for _, block := range blocks {
		for _, n := range opsInAddressOrder(g, block) {
			op := g.Opcode(n)
			operands := g.DataOperands(n)
			switch op.Name {
			case "load":
				if len(operands) < 2 {
					continue
				}
				classes := Classify(g, operands[1], ranges)
				touched[n] = classes
				for _, c := range classes {
					m.ReadVariable(block, c)
				}
			case "store":
				if len(operands) < 2 {
					continue
				}
				classes := Classify(g, operands[1], ranges)
				touched[n] = classes
				for _, c := range classes {
					m.WriteVariable(block, c, n)
				}
			}
		}
	}

	m.Finish(blocks)
	return m, touched
}

// opsInAddressOrder returns every Op node contained in block, ordered by
// the machine address it was lifted from (its ContainedInBB address).
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

// SortedClassNames returns the classes present as keys in state, sorted for
// deterministic iteration — used when presenting a block's final per-class
// state for debugging or testing.
func SortedClassNames(state map[AliasClass]ssagraph.NodeID) []AliasClass {
	keys := maps.Keys(state)
	slices.Sort(keys)
	return keys
}
