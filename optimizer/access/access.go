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

// Package access implements access-spec lowering (spec §4.11):
// sequential, index, and list (sub-query) scans, index key-range
// construction, and key-limit fusion including pt_instnum_to_key_limit.
package access

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ryesql/qo/optimizer/planchoice"
	"github.com/ryesql/qo/optimizer/pred"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/parsetree"
)

var log = logrus.WithField("component", "access")

// ScanType names the access-path shape.
type ScanType int

const (
	ScanSequential ScanType = iota
	ScanIndex
	ScanList
)

// RangeKind names an index key-range's shape (spec §4.11).
type RangeKind int

const (
	RangeKeyList   RangeKind = iota // R_KEYLIST: one F_IDXKEY key row per equality-bound prefix
	RangeRangeList                  // R_RANGELIST: a single ranged column, others equality-bound
	RangeGeneral                    // one two-bound comparison key
	RangeFull                       // degenerate, unrestricted full range
)

// KeyRange is one constructed index key range.
type KeyRange struct {
	Kind RangeKind

	Keys []*regu.Var // RangeKeyList (one F_IDXKEY row) / RangeRangeList (one RANGE func node)

	Lo, Hi     *regu.Var    // RangeGeneral/RangeFull bounds; nil means unbounded on that side
	LoOp, HiOp parsetree.Op // comparison shape the bound was built from
}

// IndexAccess is the index-scan-specific part of a Spec.
type IndexAccess struct {
	Entry  *qgraph.IndexEntry
	Ranges []KeyRange

	Coverage     bool // index-only scan: no heap fetch needed
	UseDescIndex bool
	OrderbySkip  bool
	GroupbySkip  bool

	KeyLimitLower, KeyLimitUpper *regu.Var
}

// Spec is one ACCESS_SPEC (spec §4.11): the lowered access path for one
// class or one sub-query-as-table.
type Spec struct {
	Type ScanType
	Node qgraph.NodeID

	PredAttrs []qgraph.SegID // segments the scan predicate touches
	RestAttrs []qgraph.SegID // segments only needed for projection

	Pred *pred.Pred // WHERE-clause sarg predicate evaluated during the scan

	Index *IndexAccess // non-nil iff Type == ScanIndex

	Subquery qgraph.SubqueryID // valid iff Type == ScanList
}

// Build lowers node n's chosen access path into an ACCESS_SPEC (spec
// §4.11). choice.Index nil selects a sequential scan. limit/offset, if
// non-nil, are the enclosing query's LIMIT/OFFSET clauses, fused into an
// index key-limit when this node's access path is chosen to carry it.
func Build(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, n *qgraph.Node, choice planchoice.NodeChoice, limit, offset parsetree.Expr) (*Spec, error) {
	predAttrs, restAttrs := splitAttrs(env, n)
	p, err := lowerNodePred(ctx, r, env, n)
	if err != nil {
		return nil, err
	}

	spec := &Spec{Node: n.ID, PredAttrs: predAttrs, RestAttrs: restAttrs, Pred: p}

	if choice.Index == nil {
		spec.Type = ScanSequential
		log.WithField("node", int(n.ID)).Debug("sequential access spec built")
		return spec, nil
	}

	spec.Type = ScanIndex
	ia, err := buildIndexAccess(ctx, env, r, n, choice, limit, offset)
	if err != nil {
		return nil, err
	}
	spec.Index = ia

	if spec.Index.KeyLimitUpper == nil {
		if rewritten, lim, ok := PtInstNumToKeyLimit(spec.Pred, spec.Index.KeyLimitUpper); ok {
			spec.Pred = rewritten
			spec.Index.KeyLimitUpper = lim
		}
	}

	log.WithFields(logrus.Fields{"node": int(n.ID), "index": ia.Entry.Constraint.Name}).Debug("index access spec built")
	return spec, nil
}

// BuildList builds one access spec per node of cp, in join order.
func BuildList(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, cp *planchoice.ChosenPlan, limit, offset parsetree.Expr) ([]*Spec, error) {
	specs := make([]*Spec, len(env.Nodes()))
	for _, n := range env.Nodes() {
		choice := cp.ForNode(n.ID)
		s, err := Build(ctx, env, r, n, choice, limit, offset)
		if err != nil {
			return nil, err
		}
		specs[choice.JoinOrder] = s
	}
	return specs, nil
}

func splitAttrs(env *qgraph.Env, n *qgraph.Node) (predAttrs, restAttrs []qgraph.SegID) {
	predSet := map[qgraph.SegID]bool{}
	for id := n.Sargs.First(); id >= 0; id = n.Sargs.Next(id) {
		t := env.Term(qgraph.TermID(id))
		for s := t.Segs.First(); s >= 0; s = t.Segs.Next(s) {
			predSet[qgraph.SegID(s)] = true
		}
	}
	for id := n.Segs.First(); id >= 0; id = n.Segs.Next(id) {
		seg := qgraph.SegID(id)
		if predSet[seg] {
			predAttrs = append(predAttrs, seg)
		} else {
			restAttrs = append(restAttrs, seg)
		}
	}
	return predAttrs, restAttrs
}

func lowerNodePred(ctx context.Context, r *regu.Lowerer, env *qgraph.Env, n *qgraph.Node) (*pred.Pred, error) {
	var exprs []parsetree.Expr
	for id := n.Sargs.First(); id >= 0; id = n.Sargs.Next(id) {
		t := env.Term(qgraph.TermID(id))
		exprs = append(exprs, t.Expr)
	}
	if len(exprs) == 0 {
		return nil, nil
	}
	return pred.Build(ctx, r, exprs)
}

func buildIndexAccess(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, n *qgraph.Node, choice planchoice.NodeChoice, limit, offset parsetree.Expr) (*IndexAccess, error) {
	ie := choice.Index

	boundCols := 0
	for _, seg := range ie.SegIdx {
		if seg == qgraph.SegID(qgraph.Invalid) {
			break
		}
		boundCols++
	}

	ia := &IndexAccess{
		Entry:        ie,
		Coverage:     ie.CoverSegments,
		UseDescIndex: ie.UseDescending,
		OrderbySkip:  choice.OrderbySkip,
		GroupbySkip:  choice.GroupbySkip,
	}

	var (
		kr  KeyRange
		err error
	)
	switch {
	case ie.RangelistSegIdx != qgraph.Invalid:
		kr, err = buildRangelistKey(ctx, env, r, ie)
	case boundCols == 0:
		kr = KeyRange{Kind: RangeFull}
	case allEquality(ie, boundCols):
		kr, err = buildKeyListKey(ctx, env, r, ie, boundCols)
	default:
		kr, err = buildGeneralKey(ctx, env, r, ie, boundCols)
	}
	if err != nil {
		return nil, err
	}
	ia.Ranges = []KeyRange{kr}

	lo, hi, err := buildKeyLimit(ctx, r, limit, offset, ie.KeyLimit)
	if err != nil {
		return nil, err
	}
	ia.KeyLimitLower, ia.KeyLimitUpper = lo, hi

	return ia, nil
}

func allEquality(ie *qgraph.IndexEntry, boundCols int) bool {
	for k := 0; k < boundCols; k++ {
		if ie.SegEqualTerms[k].IsEmpty() {
			return false
		}
	}
	return true
}

func buildKeyListKey(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, ie *qgraph.IndexEntry, boundCols int) (KeyRange, error) {
	args := make([]*regu.Var, 0, boundCols)
	for k := 0; k < boundCols; k++ {
		tid := ie.SegEqualTerms[k].First()
		if tid < 0 {
			return KeyRange{}, qoerr.ErrAssertion.New("equality-bound index column has no binding term")
		}
		t := env.Term(qgraph.TermID(tid))
		v, err := r.Lower(ctx, comparisonOperand(t))
		if err != nil {
			return KeyRange{}, err
		}
		args = append(args, v)
	}
	key := &regu.Var{Kind: regu.KindFunc, FuncName: "F_IDXKEY", FuncArgs: args}
	return KeyRange{Kind: RangeKeyList, Keys: []*regu.Var{key}}, nil
}

func buildRangelistKey(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, ie *qgraph.IndexEntry) (KeyRange, error) {
	k := ie.RangelistSegIdx
	tid := ie.SegOtherTerms[k].First()
	if tid < 0 {
		return KeyRange{}, qoerr.ErrAssertion.New("rangelist index column has no binding term")
	}
	t := env.Term(qgraph.TermID(tid))

	var rangeExpr *parsetree.Range
	switch v := t.Expr.(type) {
	case *parsetree.Range:
		rangeExpr = v
	case *parsetree.In:
		rangeExpr = inToRange(v)
	default:
		return KeyRange{}, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf("rangelist term shape %T", t.Expr))
	}

	v, err := r.Lower(ctx, rangeExpr)
	if err != nil {
		return KeyRange{}, err
	}
	return KeyRange{Kind: RangeRangeList, Keys: []*regu.Var{v}}, nil
}

func inToRange(in *parsetree.In) *parsetree.Range {
	legs := make([]parsetree.BetweenAndLeg, len(in.Items))
	for i, it := range in.Items {
		legs[i] = parsetree.BetweenAndLeg{Kind: parsetree.RangeEqNA, Lo: it}
	}
	return &parsetree.Range{Arg: in.Arg, Legs: legs, RangeList: true}
}

func buildGeneralKey(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, ie *qgraph.IndexEntry, boundCols int) (KeyRange, error) {
	last := boundCols - 1
	tid := ie.SegOtherTerms[last].First()
	if tid < 0 {
		tid = ie.SegEqualTerms[last].First()
	}
	if tid < 0 {
		return KeyRange{}, qoerr.ErrAssertion.New("last bound index column has no binding term")
	}
	t := env.Term(qgraph.TermID(tid))
	lo, hi, loOp, hiOp, err := comparisonBounds(ctx, r, t)
	if err != nil {
		return KeyRange{}, err
	}
	return KeyRange{Kind: RangeGeneral, Lo: lo, Hi: hi, LoOp: loOp, HiOp: hiOp}, nil
}

// comparisonOperand returns the non-attribute operand of a term's
// top-level comparison — the value side bound into an equality key.
func comparisonOperand(t *qgraph.Term) parsetree.Expr {
	bin, ok := t.Expr.(*parsetree.BinaryExpr)
	if !ok {
		return t.Expr
	}
	if _, isName := bin.Left.(*parsetree.Name); isName {
		return bin.Right
	}
	return bin.Left
}

// canonicalOp returns a binary comparison's operator as if its
// attribute operand were always on the left (spec §4.4 canonicalization
// of `const op attr` to `attr op const`).
func canonicalOp(b *parsetree.BinaryExpr) parsetree.Op {
	if _, isName := b.Left.(*parsetree.Name); isName {
		return b.Op
	}
	if conv, ok := b.Op.Converse(); ok {
		return conv
	}
	return b.Op
}

func comparisonBounds(ctx context.Context, r *regu.Lowerer, t *qgraph.Term) (lo, hi *regu.Var, loOp, hiOp parsetree.Op, err error) {
	switch v := t.Expr.(type) {
	case *parsetree.Between:
		lo, err = r.Lower(ctx, v.Lo)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		hi, err = r.Lower(ctx, v.Hi)
		return lo, hi, parsetree.OpGe, parsetree.OpLe, err

	case *parsetree.BinaryExpr:
		val, lowerErr := r.Lower(ctx, comparisonOperand(t))
		if lowerErr != nil {
			return nil, nil, 0, 0, lowerErr
		}
		switch canonicalOp(v) {
		case parsetree.OpEq:
			return val, val, parsetree.OpGe, parsetree.OpLe, nil
		case parsetree.OpLt:
			return nil, val, parsetree.OpInvalid, parsetree.OpLt, nil
		case parsetree.OpLe:
			return nil, val, parsetree.OpInvalid, parsetree.OpLe, nil
		case parsetree.OpGt:
			return val, nil, parsetree.OpGt, parsetree.OpInvalid, nil
		case parsetree.OpGe:
			return val, nil, parsetree.OpGe, parsetree.OpInvalid, nil
		}
	}
	return nil, nil, 0, 0, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf("index key bound shape %T", t.Expr))
}

// buildKeyLimit fuses the query's LIMIT/OFFSET with a per-index
// key-limit hint (spec §4.11). The hint supplies only an upper bound, so
// the lower comes from OFFSET alone. The hint becomes the upper when the
// query has no LIMIT, or when both are constants and the hint is the
// smaller; a non-constant pair is not combined into a LEAST, and the
// query's LIMIT is kept.
func buildKeyLimit(ctx context.Context, r *regu.Lowerer, limit, offset, hint parsetree.Expr) (lo, hi *regu.Var, err error) {
	if limit != nil {
		hi, err = r.Lower(ctx, limit)
		if err != nil {
			return nil, nil, err
		}
	}
	if offset != nil {
		lo, err = r.Lower(ctx, offset)
		if err != nil {
			return nil, nil, err
		}
	}
	if hint == nil {
		return lo, hi, nil
	}
	hv, err := r.Lower(ctx, hint)
	if err != nil {
		return nil, nil, err
	}
	if hi == nil {
		return lo, hv, nil
	}
	// Fusing two non-constant uppers correctly needs a runtime LEAST,
	// which this static construction step does not build; keep the
	// query's own LIMIT in that case and only fold constants here.
	if hi.Kind == regu.KindDBVal && hv.Kind == regu.KindDBVal && lessValue(hv.Value, hi.Value) {
		hi = hv
	}
	return lo, hi, nil
}

func lessValue(a, b any) bool {
	af, aerr := cast.ToFloat64E(a)
	bf, berr := cast.ToFloat64E(b)
	if aerr != nil || berr != nil {
		return false
	}
	return af < bf
}

// PtInstNumToKeyLimit rewrites a simple `INST_NUM <= N` / `INST_NUM < N`
// predicate into an index key-limit, replacing the post-scan row filter
// with a pre-scan cutoff (spec §4.11's pt_instnum_to_key_limit). It only
// fires when p is exactly that shape and no key-limit is already set; the
// `<` form additionally needs a constant N, which becomes a key-limit of
// N-1. Otherwise it returns p and hi unchanged with ok=false, leaving the
// original filter in place. The rewritten filter and the key-limit it
// replaces accept exactly the same rows (spec §8 L2).
func PtInstNumToKeyLimit(p *pred.Pred, hi *regu.Var) (rewritten *pred.Pred, limit *regu.Var, ok bool) {
	if hi != nil || p == nil || p.Type != pred.TypeTerm || p.Kind != pred.TermComparison {
		return p, hi, false
	}
	if p.Lhs == nil || p.Lhs.Kind != regu.KindInArith || p.Lhs.Op != parsetree.OpInstNum {
		return p, hi, false
	}
	switch p.Op {
	case parsetree.OpLe:
		return nil, p.Rhs, true
	case parsetree.OpLt:
		if p.Rhs != nil && p.Rhs.Kind == regu.KindDBVal {
			if n, err := cast.ToInt64E(p.Rhs.Value); err == nil {
				return nil, &regu.Var{Kind: regu.KindDBVal, Domain: p.Rhs.Domain, Value: n - 1}, true
			}
		}
		return p, hi, false
	default:
		return p, hi, false
	}
}
