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

// term.go implements the term analyzer (spec §4.4): classification,
// indexability, rank assignment, and selectivity estimation for every
// term the graph builder produced.
package qgraph

import (
	"context"

	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/parsetree"
)

// Rank buckets, cheapest first (spec §4.4 "cost-model bucket"). Rank is
// recorded on each term; the edge reorder sorts by selectivity, not rank.
const (
	RankNameOrValue = 0
	RankLight       = 1
	RankMedium      = 2
	RankHeavy       = 3
	RankFunction    = 4
	RankQuery       = 8
)

// analyzeTerms fills in every Term's Segs/Nodes bitsets (from the
// already-computed name index), its Head/Tail for JOIN-shaped terms, its
// class, indexability, rank, and selectivity.
func analyzeTerms(ctx context.Context, env *Env) error {
	for _, t := range env.terms {
		// A term whose Nodes bitset is already populated was fully
		// specified by the graph builder itself (a dummy join term, or
		// one of the two single-node SARGs an always-false ON conjunct
		// gets on each side, spec §9) and must not be reclassified.
		if t.Nodes.Cardinality() == 0 {
			collectTermRefs(env, t)
			classifyTerm(env, t)
		}
		if err := rankAndEstimate(ctx, env, t); err != nil {
			return err
		}
		attachSarg(env, t)
	}
	return nil
}

// collectTermRefs walks t.Expr, resolving every Name to its owning
// segment and node, and records both in t.Segs/t.Nodes. A term whose
// expression is nil (a dummy join term) is left untouched.
func collectTermRefs(env *Env, t *Term) {
	if t.Expr == nil {
		return
	}
	for _, n := range collectNames(t.Expr) {
		nodeID, ok := env.nodeBySpec[n.Spec]
		if !ok {
			continue
		}
		t.Nodes.Add(int(nodeID))
		if n.OID {
			if oid := env.nodes[nodeID].OIDSeg; oid != Invalid {
				t.Segs.Add(int(oid))
			}
			continue
		}
		if segID, ok := env.names.lookup(n.Spec, n.Attr); ok {
			t.Segs.Add(int(segID))
		}
	}
}

// collectNames returns every Name referenced directly inside e, not
// descending into a nested subquery (its free variables are the
// Subquery descriptor's own concern, spec §3).
func collectNames(e parsetree.Expr) []*parsetree.Name {
	var out []*parsetree.Name
	var walk func(parsetree.Expr)
	walk = func(x parsetree.Expr) {
		if x == nil {
			return
		}
		switch v := x.(type) {
		case *parsetree.Name:
			out = append(out, v)
			return
		case *parsetree.Subquery:
			return
		default:
			for _, c := range x.Children() {
				walk(c)
			}
		}
	}
	walk(e)
	return out
}

// classifyTerm assigns t's TermClass and, for a two-node term, its
// Head/Tail (spec §3 classification table, §4.4). Outer-join-driven
// reclassification happens later, in classifyOuterJoins (spec §4.5).
func classifyTerm(env *Env, t *Term) {
	if t.Expr == nil {
		return
	}
	if containsPseudo(t.Expr, parsetree.OpOrderbyNum) {
		t.Class = ClassTotallyAfterJoin
		return
	}
	if containsPseudo(t.Expr, parsetree.OpRowNum) {
		t.Class = ClassAfterJoin
		return
	}

	n := t.Nodes.Cardinality()
	switch {
	case n == 0:
		t.Class = ClassOther
	case n == 1:
		if t.Location > 0 {
			// A single-table ON-cond restriction must still run at join
			// time: pushing it into the scan would change an outer
			// join's null-padded rows (spec §4.4).
			t.Class = ClassDuringJoin
		} else {
			t.Class = ClassSarg
		}
	case n == 2:
		setJoinEndpoints(t)
		t.Class = ClassJoin
	default:
		t.Class = ClassOther
	}
}

// setJoinEndpoints assigns Head/Tail from t.Nodes, preserving the
// Head < Tail invariant (spec §3, §8 I2).
func setJoinEndpoints(t *Term) {
	lo, hi := Invalid, Invalid
	for id := t.Nodes.First(); id >= 0; id = t.Nodes.Next(id) {
		if lo == Invalid {
			lo = id
		} else {
			hi = id
		}
	}
	t.Head, t.Tail = NodeID(lo), NodeID(hi)
}

func containsPseudo(e parsetree.Expr, op parsetree.Op) bool {
	if e == nil {
		return false
	}
	if p, ok := e.(*parsetree.Pseudo); ok && p.Op == op {
		return true
	}
	if _, ok := e.(*parsetree.Subquery); ok {
		return false
	}
	for _, c := range e.Children() {
		if containsPseudo(c, op) {
			return true
		}
	}
	return false
}

// rankAndEstimate computes t's indexability, rank, and selectivity.
func rankAndEstimate(ctx context.Context, env *Env, t *Term) error {
	if t.Expr == nil {
		t.Rank = RankLight
		t.Selectivity = 1
		return nil
	}

	shape, rank := classifyShape(env, t)
	t.Rank = rank

	ncard := 1.0
	if t.Head != Invalid {
		ncard = env.nodes[t.Tail].NCard
	} else if id := t.Nodes.First(); id >= 0 {
		ncard = env.nodes[id].NCard
	}

	sel, err := env.Estimator.Selectivity(ctx, shape, ncard)
	if err != nil {
		return err
	}
	t.Selectivity = sel
	return nil
}

// classifyShape derives the cost.TermShape and rank bucket for t's
// top-level operator, canonicalizing `const op attr` to `attr op const`
// along the way (spec §4.4 canonicalization) and setting CanUseIndex /
// IndexSeg for a SARG or JOIN term whose left side is a plain column.
func classifyShape(env *Env, t *Term) (cost.TermShape, int) {
	op, left, rangeLen := topLevelShape(t.Expr)

	name, isName := left.(*parsetree.Name)
	if !isName {
		if bin, ok := t.Expr.(*parsetree.BinaryExpr); ok {
			if rn, ok := bin.Right.(*parsetree.Name); ok {
				if conv, reversible := bin.Op.Converse(); reversible {
					name, isName = rn, true
					op = conv
				}
			}
		}
	}

	shape := cost.TermShape{Op: op, RangeListLen: rangeLen}
	if isName {
		if segID, ok := env.names.lookup(name.Spec, name.Attr); ok {
			seg := env.segs[segID]
			shape.Attr = seg.AttrInfo
			if op.LHSIndexable() && name.Collation == "" {
				t.CanUseIndex = 1
				t.IndexSeg[0] = segID
				t.IndexSeg[1] = Invalid
			}
		}
	}

	return shape, rankOf(op)
}

// topLevelShape strips a term's expression down to (operator, indexable
// left operand, IN/RANGE-list length), independent of which concrete
// Expr type carries the operator.
func topLevelShape(e parsetree.Expr) (op parsetree.Op, left parsetree.Expr, rangeLen int) {
	switch v := e.(type) {
	case *parsetree.BinaryExpr:
		return v.Op, v.Left, 0
	case *parsetree.UnaryExpr:
		return v.Op, v.Operand, 0
	case *parsetree.Between:
		return parsetree.OpBetween, v.Arg, 0
	case *parsetree.Range:
		return parsetree.OpRange, v.Arg, len(v.Legs)
	case *parsetree.In:
		return parsetree.OpIn, v.Arg, len(v.Items)
	case *parsetree.InSubquery:
		return parsetree.OpInSub, v.Arg, 0
	case *parsetree.Like:
		op := parsetree.OpLike
		if v.RLike {
			op = parsetree.OpRLike
		}
		return op, v.Arg, 0
	default:
		return parsetree.OpInvalid, nil, 0
	}
}

func rankOf(op parsetree.Op) int {
	switch op {
	case parsetree.OpEq:
		return RankNameOrValue
	case parsetree.OpLt, parsetree.OpLe, parsetree.OpGt, parsetree.OpGe, parsetree.OpNe:
		return RankLight
	case parsetree.OpBetween, parsetree.OpRange, parsetree.OpIn:
		return RankMedium
	case parsetree.OpLike, parsetree.OpRLike, parsetree.OpIsNull, parsetree.OpIsNotNull:
		return RankHeavy
	case parsetree.OpInSub:
		return RankQuery
	case parsetree.OpFuncCall, parsetree.OpCase:
		return RankFunction
	default:
		return RankMedium
	}
}

// attachSarg records a single-node term against its owning node's Sargs
// bitset (spec §3 Node "sargs"), skipping a node marked unsargable
// (the nullable side of an outer join, spec §3/§4.3).
func attachSarg(env *Env, t *Term) {
	if t.Class != ClassSarg {
		return
	}
	id := t.Nodes.First()
	if id < 0 {
		return
	}
	n := env.nodes[id]
	if !n.Sargable {
		return
	}
	n.Sargs.Add(int(t.ID))
}
