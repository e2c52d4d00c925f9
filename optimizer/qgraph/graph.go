// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// graph.go implements spec §4.3: the two walks of the parse tree that
// size, then fill, the query graph.
package qgraph

import (
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/parsetree"
)

// isAlwaysFalseExpr detects the literal-false shape spec §9's open
// question is about: an ON-cond conjunct that can never be true. Both
// the size walk and the fill walk call this same predicate so their
// term-count bookkeeping never diverges.
func isAlwaysFalseExpr(e parsetree.Expr) bool {
	lit, ok := e.(*parsetree.Literal)
	if !ok {
		return false
	}
	b, ok := lit.Value.(bool)
	return ok && !b
}

// isOuterJoinSpec reports whether spec's join to its predecessor is
// LEFT or RIGHT OUTER (the only kinds that get a reserved dummy join
// term, spec §4.3).
func isOuterJoinSpec(jt parsetree.JoinType) bool {
	return jt == parsetree.JoinLeftOuter || jt == parsetree.JoinRightOuter
}

// sizeSelect is the size walk of spec §4.2/§4.3: it counts nodes,
// segments, and terms (including the reserved dummy-join and
// always-false-ON slots) without allocating any of the real structures.
func sizeSelect(tree *parsetree.Select) (Sizes, error) {
	var s Sizes

	s.Nodes = len(tree.From)
	if s.Nodes > maxNodes {
		return s, qoerr.ErrTooManyNodes.New(s.Nodes, maxNodes)
	}

	for _, spec := range tree.From {
		if spec.Derived == nil {
			s.Segs++ // OID segment
		}
		s.Segs += len(spec.Referenced)

		s.Terms += len(spec.OnCond)
		for _, c := range spec.OnCond {
			if isAlwaysFalseExpr(c) {
				s.Terms += 2 // the two single-node SARGs, spec §9
			}
		}
		if isOuterJoinSpec(spec.JoinType) && len(spec.OnCond) == 0 {
			s.Terms++ // reserved dummy join term, spec §4.3
		}
	}

	s.Terms += len(tree.Where)

	subs := collectSubqueries(tree)
	s.Subqueries = len(subs)

	return s, nil
}

// collectSubqueries walks every WHERE/ON/HAVING/select-item expression
// and returns the level-1 *parsetree.Subquery nodes found, in a stable
// traversal order. It does not recurse into a subquery's own tree —
// only the top level is this env's concern (spec §3 "level-1 correlated
// sub-query").
func collectSubqueries(tree *parsetree.Select) []*parsetree.Subquery {
	var out []*parsetree.Subquery
	seen := map[*parsetree.Subquery]bool{}
	add := func(e parsetree.Expr) {
		walkForSubqueries(e, func(sq *parsetree.Subquery) {
			if !seen[sq] {
				seen[sq] = true
				out = append(out, sq)
			}
		})
	}
	for _, c := range tree.Where {
		add(c)
	}
	for _, spec := range tree.From {
		for _, c := range spec.OnCond {
			add(c)
		}
	}
	for _, it := range tree.Items {
		add(it.Expr)
	}
	for _, c := range tree.Having {
		add(c)
	}
	return out
}

// walkForSubqueries walks e via Children(), invoking visit on every
// *parsetree.Subquery encountered, without descending into it.
func walkForSubqueries(e parsetree.Expr, visit func(*parsetree.Subquery)) {
	if e == nil {
		return
	}
	if sq, ok := e.(*parsetree.Subquery); ok {
		visit(sq)
		return
	}
	for _, c := range e.Children() {
		walkForSubqueries(c, visit)
	}
}

// buildGraph is the fill walk of spec §4.3: one node per SPEC, its OID
// and referenced-attribute segments, and one Term per ON/WHERE
// conjunct (including reserved dummy-join and always-false-ON terms).
func buildGraph(env *Env, tree *parsetree.Select) error {
	for _, spec := range tree.From {
		if err := addSpecNode(env, spec); err != nil {
			return err
		}
	}
	markSargability(env)

	env.nodeBySpec = make(map[parsetree.SpecID]NodeID, len(env.nodes))
	for _, n := range env.nodes {
		env.nodeBySpec[n.Spec.ID] = n.ID
	}

	for i, spec := range tree.From {
		if isOuterJoinSpec(spec.JoinType) && len(spec.OnCond) == 0 && i > 0 {
			addDummyJoinTerm(env, NodeID(i-1), NodeID(i), i+1, spec.JoinType)
		}
		head, tail := Invalid, Invalid
		if i > 0 {
			head, tail = i-1, i
		}
		for _, c := range spec.OnCond {
			addOnCondTerm(env, c, i+1, NodeID(head), NodeID(tail))
		}
	}
	for _, c := range tree.Where {
		env.addTerm(&Term{
			Expr:     c,
			Location: 0,
			Head:     Invalid,
			Tail:     Invalid,
			Segs:     env.newSegBitset(),
			Nodes:    env.newNodeBitset(),
			Subqueries: env.newSubqueryBitset(),
		})
	}

	env.names = env.buildNameIndex()
	fillSubqueries(env, tree)
	return nil
}

func addSpecNode(env *Env, spec *parsetree.Spec) error {
	n := &Node{
		Spec:       spec,
		Name:       spec.RangeVar,
		JoinType:   spec.JoinType,
		UsingIndex: spec.UsingIndex,
		Hint:       spec.Hint,
		OIDSeg:     Invalid,
		Sargable:   true,
	}
	n = env.addNode(n)
	n.Segs = env.newSegBitset()
	n.Sargs = env.newTermBitset()
	n.DepSet = env.newNodeBitset()
	n.OuterDepSet = env.newNodeBitset()

	if spec.Derived == nil {
		if len(spec.Entities) > 0 {
			if ci, ok := env.Catalog.Class(spec.Entities[0].ClassName); ok {
				n.Info = ci
				n.NCard = ci.NCard
				n.TCard = ci.TCard
			}
		}
		if n.Info == nil {
			n.NCard, n.TCard = 1, 1
		}
		oid := env.addSegment(&Segment{Head: n.ID, IsOID: true, Attr: "@oid", IndexTerms: env.newTermBitset()})
		n.OIDSeg = oid.ID
		n.Segs.Add(int(oid.ID))
	} else {
		n.NCard = projectedCardinality(spec.Derived)
		n.TCard = projectedCardinality(spec.Derived)/10 + 1
	}

	for _, name := range spec.Referenced {
		seg := &Segment{Head: n.ID, Name: name, Attr: name.Attr, IndexTerms: env.newTermBitset()}
		if n.Info != nil {
			if ai, ok := n.Info.AttrByName(name.Attr); ok {
				a := ai
				seg.AttrInfo = &a
			}
		}
		seg = env.addSegment(seg)
		n.Segs.Add(int(seg.ID))
	}
	return nil
}

// projectedCardinality is the derived-table cardinality fallback spec
// §4.3 names ("derived-table nodes cache their sub-plan's cardinality...
// as ncard/tcard"). It always returns a fixed order-of-magnitude guess of
// 100: Build does not optimize the derived sub-select, and no sub-plan
// row count is passed in.
func projectedCardinality(sel *parsetree.Select) float64 { return 100 }

func markSargability(env *Env) {
	for i, n := range env.nodes {
		switch n.JoinType {
		case parsetree.JoinLeftOuter:
			n.Sargable = false
		case parsetree.JoinRightOuter:
			if i > 0 {
				env.nodes[i-1].Sargable = false
			}
		}
	}
}

func addDummyJoinTerm(env *Env, head, tail NodeID, location int, jt parsetree.JoinType) *Term {
	t := &Term{
		Expr:     nil,
		Location: location,
		Class:    ClassDummyJoin,
		JoinType: joinTermTypeOf(jt),
		Head:     head,
		Tail:     tail,
		Segs:     env.newSegBitset(),
		Nodes:    env.newNodeBitset(),
		Subqueries: env.newSubqueryBitset(),
	}
	t.Nodes.Add(int(head))
	t.Nodes.Add(int(tail))
	return env.addTerm(t)
}

func joinTermTypeOf(jt parsetree.JoinType) TermJoinType {
	switch jt {
	case parsetree.JoinLeftOuter:
		return JoinTermLeft
	case parsetree.JoinRightOuter:
		return JoinTermRight
	case parsetree.JoinInner:
		return JoinTermInner
	default:
		return JoinTermNone
	}
}

// addOnCondTerm adds the term for one ON-cond conjunct, plus — when the
// conjunct is syntactically always-false — the two single-node SARG
// terms spec §9's open question describes: "the source adds a second
// SARG on the always-false value node to each side of the join... a
// rewrite should model the resulting three-term configuration... don't
// try to simplify it away."
func addOnCondTerm(env *Env, c parsetree.Expr, location int, head, tail NodeID) {
	env.addTerm(&Term{
		Expr:       c,
		Location:   location,
		Head:       Invalid,
		Tail:       Invalid,
		Segs:       env.newSegBitset(),
		Nodes:      env.newNodeBitset(),
		Subqueries: env.newSubqueryBitset(),
	})
	if !isAlwaysFalseExpr(c) || head == Invalid {
		return
	}
	// Both extra terms carry the same always-false literal so the
	// classifier and access-spec lowering see an unsatisfiable SARG on
	// each side, preserving the join's shape without ever reporting a
	// row (spec §9).
	for _, side := range [2]NodeID{head, tail} {
		nodes := env.newNodeBitset()
		nodes.Add(int(side))
		env.addTerm(&Term{
			Expr:       c,
			Location:   location,
			Class:      ClassSarg,
			Head:       Invalid,
			Tail:       Invalid,
			Segs:       env.newSegBitset(),
			Nodes:      nodes,
			Subqueries: env.newSubqueryBitset(),
		})
	}
}

// fillSubqueries attaches every level-1 subquery found anywhere in the
// statement to the env, and records which terms contain which
// subqueries (spec §3 Subquery descriptor "terms: back-edges").
func fillSubqueries(env *Env, tree *parsetree.Select) {
	subs := collectSubqueries(tree)
	idOf := make(map[*parsetree.Subquery]SubqueryID, len(subs))
	for _, sq := range subs {
		sd := env.addSubquery(&Subquery{
			Expr:  sq,
			Segs:  env.newSegBitset(),
			Nodes: env.newNodeBitset(),
			Terms: env.newTermBitset(),
		})
		idOf[sq] = sd.ID
	}
	for _, t := range env.terms {
		if t.Expr == nil {
			continue
		}
		walkForSubqueries(t.Expr, func(sq *parsetree.Subquery) {
			id, ok := idOf[sq]
			if !ok {
				return
			}
			t.Subqueries.Add(int(id))
			sd := env.subqueries[id]
			sd.Terms.Add(int(t.ID))
			for _, n := range freeNames(sq) {
				if segID, ok := env.names.lookup(n.Spec, n.Attr); ok {
					sd.Segs.Add(int(segID))
					sd.Nodes.Add(int(env.segs[segID].Head))
				}
			}
		})
	}
}

// nameIndex maps (SpecID, attribute name) to the segment that owns it,
// built once after the fill walk so later phases (term analysis,
// subquery free-variable resolution, index discovery) can resolve a
// parsetree.Name without a linear scan.
type nameIndex struct {
	m map[parsetree.SpecID]map[string]SegID
}

func (idx nameIndex) lookup(spec parsetree.SpecID, attr string) (SegID, bool) {
	byAttr, ok := idx.m[spec]
	if !ok {
		return 0, false
	}
	id, ok := byAttr[attr]
	return id, ok
}

func (e *Env) buildNameIndex() nameIndex {
	idx := nameIndex{m: make(map[parsetree.SpecID]map[string]SegID)}
	for _, seg := range e.segs {
		if seg.Name == nil {
			continue
		}
		byAttr, ok := idx.m[seg.Name.Spec]
		if !ok {
			byAttr = make(map[string]SegID)
			idx.m[seg.Name.Spec] = byAttr
		}
		byAttr[seg.Name.Attr] = seg.ID
	}
	return idx
}

// freeNames returns every Name referenced anywhere inside sq's own
// select (its WHERE, ON-conds, and select items), without attempting to
// decide which are actually correlated (free w.r.t. the subquery's own
// FROM list) — that distinction is made by whoever consumes Subquery.Segs
// against the subquery's own node set, following the same pattern as
// spec §9's correlation-level normalization note.
func freeNames(sq *parsetree.Subquery) []*parsetree.Name {
	var out []*parsetree.Name
	var walk func(parsetree.Expr)
	walk = func(e parsetree.Expr) {
		if e == nil {
			return
		}
		if n, ok := e.(*parsetree.Name); ok {
			out = append(out, n)
			return
		}
		if _, ok := e.(*parsetree.Subquery); ok {
			return // level-1 only; don't descend into nested subqueries
		}
		for _, c := range e.Children() {
			walk(c)
		}
	}
	for _, c := range sq.Select.Where {
		walk(c)
	}
	for _, spec := range sq.Select.From {
		for _, c := range spec.OnCond {
			walk(c)
		}
	}
	for _, it := range sq.Select.Items {
		walk(it.Expr)
	}
	return out
}
