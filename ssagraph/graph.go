// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ssagraph is the typed node/edge multigraph that backs one
// function's SSA form: control-flow blocks, data-flow operations, phi
// nodes, comments and the auxiliary edges that bind them together (§4.1 of
// the design). It is the single mutable store every other package in this
// module borrows by pointer for the lifetime of a function.
package ssagraph

import (
	"fmt"

	"github.com/aclements/ssalift/ir"
	"golang.org/x/exp/slices"
	"golang.org/x/tools/container/intsets"
)

// NodeID is a stable identifier for a node. Once returned by a mutator it
// remains valid (though possibly tombstoned) for the life of the Graph.
type NodeID int32

// EdgeID is a stable identifier for an edge, same lifetime guarantee as
// NodeID.
type EdgeID int32

const invalidID = -1

// InvalidNode is returned by queries that found nothing.
const InvalidNode NodeID = invalidID

type NodeKind uint8

const (
	KindBasicBlock NodeKind = iota
	KindDynamicAction
	KindOp
	KindPhi
	KindComment
	KindUndefined
	KindRegisterState
)

func (k NodeKind) String() string {
	switch k {
	case KindBasicBlock:
		return "BasicBlock"
	case KindDynamicAction:
		return "DynamicAction"
	case KindOp:
		return "Op"
	case KindPhi:
		return "Phi"
	case KindComment:
		return "Comment"
	case KindUndefined:
		return "Undefined"
	case KindRegisterState:
		return "RegisterState"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// ControlTag distinguishes the three kinds of control edge.
type ControlTag uint8

const (
	False ControlTag = 0
	True  ControlTag = 1
	Uncond ControlTag = 2
)

func (t ControlTag) String() string {
	switch t {
	case False:
		return "FALSE"
	case True:
		return "TRUE"
	case Uncond:
		return "UNCOND"
	default:
		return fmt.Sprintf("ControlTag(%d)", uint8(t))
	}
}

type EdgeKind uint8

const (
	EdgeControl EdgeKind = iota
	EdgeData
	EdgeSelector
	EdgeContainedInBB
	EdgeRegisterState
	EdgeReplacedBy
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeControl:
		return "Control"
	case EdgeData:
		return "Data"
	case EdgeSelector:
		return "Selector"
	case EdgeContainedInBB:
		return "ContainedInBB"
	case EdgeRegisterState:
		return "RegisterState"
	case EdgeReplacedBy:
		return "ReplacedBy"
	default:
		return fmt.Sprintf("EdgeKind(%d)", uint8(k))
	}
}

// node is the tagged-variant payload for a single vertex. Only the fields
// relevant to Kind are meaningful; see §9 of the design for why this is a
// single struct rather than an interface hierarchy.
type node struct {
	id   NodeID
	kind NodeKind

	// BasicBlock
	addr ir.MAddress

	// Op / Phi / Comment / Undefined / RegisterState
	vt   ir.ValueType
	op   ir.Opcode     // Op only
	opAt *ir.MAddress  // Op only, optional instruction address
	text string        // Comment only

	tombstoned bool
}

type edge struct {
	id   EdgeID
	kind EdgeKind
	src  NodeID
	dst  NodeID
	// Index is the Data operand index, the ControlTag (as int), or the
	// RegisterState slot. Unused (0) for Selector/ReplacedBy.
	index int
	// addr is the intra-block address a ContainedInBB edge is tagged
	// with.
	addr ir.MAddress

	tombstoned bool
}

// Graph is the multigraph storage for one function's SSA. The zero value
// is not ready for use; call New.
type Graph struct {
	nodes    map[NodeID]*node
	edges    map[EdgeID]*edge
	nextNode NodeID
	nextEdge EdgeID

	out map[NodeID][]EdgeID // outgoing edges, insertion order, by src
	in  map[NodeID][]EdgeID // incoming edges, insertion order, by dst

	blockAt map[ir.MAddress]NodeID

	entry NodeID
	exit  NodeID

	marks intsets.Sparse
}

func New() *Graph {
	return &Graph{
		nodes:   make(map[NodeID]*node),
		edges:   make(map[EdgeID]*edge),
		out:     make(map[NodeID][]EdgeID),
		in:      make(map[NodeID][]EdgeID),
		blockAt: make(map[ir.MAddress]NodeID),
		entry:   InvalidNode,
		exit:    InvalidNode,
	}
}

func (g *Graph) addNode(n *node) NodeID {
	id := g.nextNode
	g.nextNode++
	n.id = id
	g.nodes[id] = n
	return id
}

// AddBasicBlock inserts a control-flow vertex at addr. It is an error to
// add two blocks at the same address.
func (g *Graph) AddBasicBlock(addr ir.MAddress) NodeID {
	id := g.addNode(&node{kind: KindBasicBlock, addr: addr})
	g.blockAt[addr] = id
	return id
}

// AddDynamicAction inserts the sentinel exit vertex.
func (g *Graph) AddDynamicAction() NodeID {
	return g.addNode(&node{kind: KindDynamicAction})
}

// AddOp inserts a pure or effectful SSA operation. addr is optional (nil
// for operations with no associated instruction address).
func (g *Graph) AddOp(op ir.Opcode, vt ir.ValueType, addr *ir.MAddress) NodeID {
	return g.addNode(&node{kind: KindOp, op: op, vt: vt, opAt: addr})
}

// AddPhi inserts a join node.
func (g *Graph) AddPhi(vt ir.ValueType) NodeID {
	return g.addNode(&node{kind: KindPhi, vt: vt})
}

// AddComment inserts a labelled opaque value.
func (g *Graph) AddComment(vt ir.ValueType, text string) NodeID {
	return g.addNode(&node{kind: KindComment, vt: vt, text: text})
}

// AddUndefined inserts a placeholder for an unresolved operand.
func (g *Graph) AddUndefined(vt ir.ValueType) NodeID {
	return g.addNode(&node{kind: KindUndefined, vt: vt})
}

// AddRegisterState inserts the per-block register/memory tuple node.
func (g *Graph) AddRegisterState() NodeID {
	return g.addNode(&node{kind: KindRegisterState})
}

// BlockAt returns the block created at addr, if any.
func (g *Graph) BlockAt(addr ir.MAddress) (NodeID, bool) {
	id, ok := g.blockAt[addr]
	return id, ok
}

// Kind returns n's node kind. It panics if n is unknown; callers that
// aren't sure n exists should use Valid first.
func (g *Graph) Kind(n NodeID) NodeKind {
	return g.mustNode(n).kind
}

// Valid reports whether n refers to a live (non-tombstoned) node.
func (g *Graph) Valid(n NodeID) bool {
	nd, ok := g.nodes[n]
	return ok && !nd.tombstoned
}

func (g *Graph) mustNode(n NodeID) *node {
	nd, ok := g.nodes[n]
	if !ok || nd.tombstoned {
		panic(fmt.Sprintf("ssagraph: invalid node %d", n))
	}
	return nd
}

// Addr returns a BasicBlock's address.
func (g *Graph) Addr(n NodeID) ir.MAddress { return g.mustNode(n).addr }

// Type returns the ValueType of an Op/Phi/Comment/Undefined node.
func (g *Graph) Type(n NodeID) ir.ValueType { return g.mustNode(n).vt }

// SetType overwrites the ValueType of a node.
func (g *Graph) SetType(n NodeID, vt ir.ValueType) { g.mustNode(n).vt = vt }

// Opcode returns an Op node's opcode.
func (g *Graph) Opcode(n NodeID) ir.Opcode { return g.mustNode(n).op }

// OpAddr returns an Op node's optional instruction address.
func (g *Graph) OpAddr(n NodeID) (ir.MAddress, bool) {
	nd := g.mustNode(n)
	if nd.opAt == nil {
		return ir.MAddress{}, false
	}
	return *nd.opAt, true
}

// SetOpAddr sets (or overwrites) an Op node's instruction address.
func (g *Graph) SetOpAddr(n NodeID, addr ir.MAddress) {
	nd := g.mustNode(n)
	nd.opAt = &addr
}

// Text returns a Comment node's label.
func (g *Graph) Text(n NodeID) string { return g.mustNode(n).text }

// SetEntry/SetExit/Entry/Exit designate (and retrieve) the function's
// unique entry and exit vertices (invariant 1 of §3).
func (g *Graph) SetEntry(n NodeID) { g.entry = n }
func (g *Graph) SetExit(n NodeID)  { g.exit = n }
func (g *Graph) Entry() NodeID     { return g.entry }
func (g *Graph) Exit() NodeID      { return g.exit }

func (g *Graph) addEdge(e *edge) EdgeID {
	id := g.nextEdge
	g.nextEdge++
	e.id = id
	g.edges[id] = e
	g.out[e.src] = append(g.out[e.src], id)
	g.in[e.dst] = append(g.in[e.dst], id)
	return id
}

// AddControlEdge adds a basic-block successor edge.
func (g *Graph) AddControlEdge(src, dst NodeID, tag ControlTag) EdgeID {
	return g.addEdge(&edge{kind: EdgeControl, src: src, dst: dst, index: int(tag)})
}

// AddDataEdge makes src operand number index of op. Per invariant 3,
// callers must keep indices dense (0..arity-1) for a given op.
func (g *Graph) AddDataEdge(op NodeID, index int, src NodeID) EdgeID {
	return g.addEdge(&edge{kind: EdgeData, src: src, dst: op, index: index})
}

// AddSelectorEdge marks cond as the ITE condition of block.
func (g *Graph) AddSelectorEdge(block, cond NodeID) EdgeID {
	return g.addEdge(&edge{kind: EdgeSelector, src: cond, dst: block})
}

// SetContainedInBB binds an Op/Phi node to the block it lives in, tagged
// with its intra-block address (invariant 2 of §3).
func (g *Graph) SetContainedInBB(n, block NodeID, addr ir.MAddress) EdgeID {
	return g.addEdge(&edge{kind: EdgeContainedInBB, src: n, dst: block, addr: addr})
}

// AddRegisterStateEdge links a RegisterState tuple node to the value live
// in slot (a whole-register index, or the memory slot).
func (g *Graph) AddRegisterStateEdge(tuple NodeID, slot int, value NodeID) EdgeID {
	return g.addEdge(&edge{kind: EdgeRegisterState, src: value, dst: tuple, index: slot})
}

// AddReplacedBy forwards old to new: every query dereferences through
// ReplacedBy edges (invariant 6 of §3).
func (g *Graph) AddReplacedBy(old, new NodeID) EdgeID {
	return g.addEdge(&edge{kind: EdgeReplacedBy, src: old, dst: new})
}

// Resolve follows ReplacedBy edges from n until it reaches a node with
// none, per invariant 6. It is bounded by the total number of nodes to
// detect (and panic on) an accidental cycle rather than loop forever.
func (g *Graph) Resolve(n NodeID) NodeID {
	steps := 0
	limit := len(g.nodes) + 1
	for {
		next := InvalidNode
		for _, eid := range g.out[n] {
			e := g.edges[eid]
			if e.tombstoned || e.kind != EdgeReplacedBy {
				continue
			}
			next = e.dst
			break
		}
		if next == InvalidNode {
			return n
		}
		n = next
		steps++
		if steps > limit {
			panic("ssagraph: ReplacedBy cycle detected")
		}
	}
}

// DataOperands returns the dense operand list of an Op node, resolved
// through ReplacedBy.
func (g *Graph) DataOperands(op NodeID) []NodeID {
	arity := 0
	for _, eid := range g.in[op] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeData {
			continue
		}
		if e.index+1 > arity {
			arity = e.index + 1
		}
	}
	operands := make([]NodeID, arity)
	for i := range operands {
		operands[i] = InvalidNode
	}
	for _, eid := range g.in[op] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeData {
			continue
		}
		operands[e.index] = g.Resolve(e.src)
	}
	return operands
}

// PhiOperands returns a phi's operands in the order they were added
// (predecessor order, per §4.3's ordering rule), resolved through
// ReplacedBy.
func (g *Graph) PhiOperands(phi NodeID) []NodeID {
	var operands []NodeID
	for _, eid := range g.in[phi] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeData {
			continue
		}
		operands = append(operands, g.Resolve(e.src))
	}
	return operands
}

// AddPhiOperand appends one more operand to a phi node (phis, unlike Ops,
// are not required to keep dense indices — they grow one predecessor at a
// time).
func (g *Graph) AddPhiOperand(phi, value NodeID) EdgeID {
	n := len(g.PhiOperands(phi))
	return g.AddDataEdge(phi, n, value)
}

// ReplacePhiOperand rewrites the value at position i of phi in place,
// leaving the order of the other operands unchanged.
func (g *Graph) ReplacePhiOperand(phi NodeID, i int, value NodeID) {
	count := -1
	for _, eid := range g.in[phi] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeData {
			continue
		}
		count++
		if count == i {
			e.src = value
			return
		}
	}
	panic(fmt.Sprintf("ssagraph: phi %d has no operand %d", phi, i))
}

// ContainingBlock returns the block an Op/Phi node is bound to via its
// ContainedInBB edge, and the intra-block address it was tagged with.
func (g *Graph) ContainingBlock(n NodeID) (block NodeID, addr ir.MAddress, ok bool) {
	for _, eid := range g.out[n] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeContainedInBB {
			continue
		}
		return e.dst, e.addr, true
	}
	return InvalidNode, ir.MAddress{}, false
}

// ControlSuccessors returns block's outgoing control edges in insertion
// order, each paired with its tag.
func (g *Graph) ControlSuccessors(block NodeID) []struct {
	Dst NodeID
	Tag ControlTag
} {
	var out []struct {
		Dst NodeID
		Tag ControlTag
	}
	for _, eid := range g.out[block] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeControl {
			continue
		}
		out = append(out, struct {
			Dst NodeID
			Tag ControlTag
		}{e.dst, ControlTag(e.index)})
	}
	return out
}

// ControlPredecessors returns block's control predecessors, in the order
// their edges were added — this is the order the phi placer uses to
// contribute phi operands (§4.3's ordering rule).
func (g *Graph) ControlPredecessors(block NodeID) []NodeID {
	var preds []NodeID
	for _, eid := range g.in[block] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeControl {
			continue
		}
		preds = append(preds, e.src)
	}
	return preds
}

// Selector returns the ITE condition node marked for block, if any.
func (g *Graph) Selector(block NodeID) (NodeID, bool) {
	for _, eid := range g.in[block] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeSelector {
			continue
		}
		return g.Resolve(e.src), true
	}
	return InvalidNode, false
}

// RegisterStateSlots returns the (slot, value) pairs bound to a
// RegisterState tuple node, in insertion order.
func (g *Graph) RegisterStateSlots(tuple NodeID) []struct {
	Slot  int
	Value NodeID
} {
	var out []struct {
		Slot  int
		Value NodeID
	}
	for _, eid := range g.in[tuple] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeRegisterState {
			continue
		}
		out = append(out, struct {
			Slot  int
			Value NodeID
		}{e.index, g.Resolve(e.src)})
	}
	return out
}

// ContainedNodes returns every node of kind bound to block via a
// ContainedInBB edge — the reverse direction of ContainingBlock, used to
// look up e.g. the RegisterState tuple attached to a given block.
func (g *Graph) ContainedNodes(block NodeID, kind NodeKind) []NodeID {
	var out []NodeID
	for _, eid := range g.in[block] {
		e := g.edges[eid]
		if e.tombstoned || e.kind != EdgeContainedInBB {
			continue
		}
		if src, ok := g.nodes[e.src]; ok && !src.tombstoned && src.kind == kind {
			out = append(out, e.src)
		}
	}
	return out
}

// EdgeKindOf, EdgeSrc and EdgeDst expose an edge's kind and endpoints to
// callers (e.g. the phi placer) that need to inspect edges returned by
// Uses without reaching into graph internals.
func (g *Graph) EdgeKindOf(e EdgeID) EdgeKind { return g.edges[e].kind }
func (g *Graph) EdgeSrc(e EdgeID) NodeID      { return g.edges[e].src }
func (g *Graph) EdgeDst(e EdgeID) NodeID      { return g.edges[e].dst }

// ControlEdgeTag returns the ControlTag (False/True/Uncond) a control edge
// was added with. Only meaningful when EdgeKindOf(e) == EdgeControl.
func (g *Graph) ControlEdgeTag(e EdgeID) ControlTag { return ControlTag(g.edges[e].index) }

// ControlSuccessorEdges returns block's outgoing control edge ids, in
// insertion order — the edge-id counterpart of ControlSuccessors, for
// callers (SCCP) that track per-edge executable state by id.
func (g *Graph) ControlSuccessorEdges(block NodeID) []EdgeID {
	var out []EdgeID
	for _, eid := range g.out[block] {
		if e := g.edges[eid]; !e.tombstoned && e.kind == EdgeControl {
			out = append(out, eid)
		}
	}
	return out
}

// Uses returns every Data/Selector edge that reads n (after resolving
// ReplacedBy forwarding on the source side), i.e. n's users. Used by the
// phi placer, memory SSA and SCCP.
func (g *Graph) Uses(n NodeID) []EdgeID {
	n = g.Resolve(n)
	var uses []EdgeID
	for id, e := range g.edges {
		if e.tombstoned {
			continue
		}
		if (e.kind == EdgeData || e.kind == EdgeSelector) && g.Resolve(e.src) == n {
			uses = append(uses, id)
		}
	}
	return uses
}

// RemoveEdge tombstones e.
func (g *Graph) RemoveEdge(e EdgeID) {
	if ed, ok := g.edges[e]; ok {
		ed.tombstoned = true
	}
}

// RemoveNode tombstones n. Removing a BasicBlock also removes its
// contained Op/Phi nodes and its outgoing control edges, per §4.1.
func (g *Graph) RemoveNode(n NodeID) {
	nd, ok := g.nodes[n]
	if !ok || nd.tombstoned {
		return
	}
	if nd.kind == KindBasicBlock {
		for _, eid := range append([]EdgeID(nil), g.in[n]...) {
			e := g.edges[eid]
			if e.tombstoned || e.kind != EdgeContainedInBB {
				continue
			}
			g.RemoveNode(e.src)
		}
		for _, eid := range append([]EdgeID(nil), g.out[n]...) {
			e := g.edges[eid]
			if e.tombstoned || e.kind != EdgeControl {
				continue
			}
			g.RemoveEdge(eid)
		}
	}
	nd.tombstoned = true
}

// Mark/Unmark/Marked/ResetMarks expose the mark set DCE uses,
// backed by a sparse int set (golang.org/x/tools/container/intsets) since
// node ids are small dense integers — the same representation go/pointer
// uses for points-to sets over ssa.Value ids.
func (g *Graph) Mark(n NodeID)       { g.marks.Insert(int(n)) }
func (g *Graph) Unmark(n NodeID)     { g.marks.Remove(int(n)) }
func (g *Graph) Marked(n NodeID) bool { return g.marks.Has(int(n)) }
func (g *Graph) ResetMarks()         { g.marks.Clear() }

// ValidNodes returns every non-tombstoned node id, in id order — the
// "valid-nodes projection" of §4.1.
func (g *Graph) ValidNodes() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id, nd := range g.nodes {
		if !nd.tombstoned {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ValidNodesOfKind filters ValidNodes by kind.
func (g *Graph) ValidNodesOfKind(kind NodeKind) []NodeID {
	var ids []NodeID
	for _, id := range g.ValidNodes() {
		if g.nodes[id].kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}
