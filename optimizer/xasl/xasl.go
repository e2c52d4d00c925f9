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

// Package xasl implements XASL proc assembly (spec §4.12): picking the
// top-level proc shape for a statement and filling in its outptr/val/
// spec/groupby/sort lists from the already-lowered access specs,
// predicates, and regu-variables.
package xasl

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ryesql/qo/optimizer/access"
	"github.com/ryesql/qo/optimizer/pred"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/parsetree"
)

var log = logrus.WithField("component", "xasl")

// ProcType names the top-level XASL proc shape (spec §4.12 table).
type ProcType int

const (
	ProcBuildValue ProcType = iota
	ProcBuildList
	ProcUnion
	ProcDifference
	ProcIntersection
	ProcUpdate
	ProcDelete
	ProcInsert
)

func (p ProcType) String() string {
	switch p {
	case ProcBuildValue:
		return "BUILDVALUE_PROC"
	case ProcBuildList:
		return "BUILDLIST_PROC"
	case ProcUnion:
		return "UNION_PROC"
	case ProcDifference:
		return "DIFFERENCE_PROC"
	case ProcIntersection:
		return "INTERSECTION_PROC"
	case ProcUpdate:
		return "UPDATE_PROC"
	case ProcDelete:
		return "DELETE_PROC"
	case ProcInsert:
		return "INSERT_PROC"
	default:
		return "?"
	}
}

// AggFunc names an aggregate function code.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggGroupConcat
)

// AggDescriptor is one aggregate accumulator (spec §4.12): function
// code, operand, result holder, and a slot for the MIN/MAX/COUNT(*)
// b-tree shortcut. buildAggList never fills that slot, so every
// aggregate is computed from the scan.
type AggDescriptor struct {
	Func     AggFunc
	Operand  *regu.Var
	Result   *regu.Var
	Distinct bool

	// BTreeIndex, when non-nil, lets MIN/MAX/COUNT(*) read the extreme
	// key directly off the index rather than scanning (spec §4.12).
	BTreeIndex *qgraph.IndexEntry

	// GroupConcatSeparator/OrderBy are only meaningful for AggGroupConcat.
	GroupConcatSeparator string
	GroupConcatOrderBy   []SortItem

	Value, Value2 *regu.Var // accumulator pair, e.g. AVG's (sum, count)
}

// SortItem is one positional ORDER BY / GROUP BY entry (spec §4.12):
// 0-based position into the owning outptr list, matched during
// assembly by node equivalence, alias, or integer position.
type SortItem struct {
	Pos        int
	Desc       bool
	NullsFirst bool
}

// Proc is one assembled XASL proc (spec §4.12). Only the fields
// relevant to Type are meaningful for the non-SELECT shapes; the rest
// are the zero value.
type Proc struct {
	Type ProcType

	OutptrList []*regu.Var
	ValList    []*regu.Var
	SpecList   []*access.Spec

	OrderbyList  []SortItem
	InstnumPred  *pred.Pred
	OrdbynumPred *pred.Pred
	// DataFilterPred holds every WHERE conjunct that does not reference
	// INST_NUM/ROWNUM/ORDERBY_NUM, evaluated once per output row after
	// the join is complete. Conjuncts an access spec already applies as
	// a sarg are included again here.
	DataFilterPred *pred.Pred

	// AptrList holds uncorrelated sub-queries, evaluated once; DptrList
	// holds sub-queries correlated to the current scope, re-evaluated
	// per row (spec §4.12).
	AptrList []*Proc
	DptrList []*Proc

	GroupbyList []SortItem
	GOutptrList []*regu.Var
	GValList    []*regu.Var
	GHavingPred *pred.Pred
	GAggList    []*AggDescriptor
	GWithRollup bool

	// Left/Right are the child procs of a UNION/DIFFERENCE/INTERSECTION
	// proc (spec §4.12).
	Left, Right *Proc

	// ModifyTargets/ModifyAptr carry an UPDATE/DELETE's per-class
	// {class_oid, instance_oid, old-values, new-values} layout and the
	// constraint predicate guarding it (spec §4.12).
	ModifyTargets []ModifyTarget
	ModifyAptr    *Proc

	// InsertRows holds one outptr list per VALUES row, already permuted
	// into declared-attribute order (spec §4.12); InsertSelect holds the
	// inner SELECT for INSERT ... SELECT. Exactly one is set.
	InsertInto   *ClassTarget
	InsertRows   [][]*regu.Var
	InsertSelect *Proc
}

// ClassTarget names an INSERT statement's destination class.
type ClassTarget struct {
	Node qgraph.NodeID
}

// ModifyTarget is one class-to-modify slot of an UPDATE/DELETE aptr
// (spec §4.12): {class_oid, instance_oid, old-values, new-values} plus
// the per-attribute IS NOT NULL constraint, short-circuited by an outer
// join's null row via an `OID IS NULL OR ...` guard.
type ModifyTarget struct {
	Node          qgraph.NodeID
	ClassOID      *regu.Var
	InstanceOID   *regu.Var
	OldValues     []*regu.Var
	NewValues     []*regu.Var
	Constraint    *pred.Pred
	OuterJoinGate *regu.Var // non-nil OID-IS-NULL guard when Node sits under an outer join
}

// AssembleSelect builds a BUILDVALUE_PROC or BUILDLIST_PROC for sel
// (spec §4.12 table row 1-2): BUILDVALUE_PROC iff sel aggregates with no
// GROUP BY, BUILDLIST_PROC otherwise.
func AssembleSelect(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, specs []*access.Spec, sel *parsetree.Select) (*Proc, error) {
	outptr := make([]*regu.Var, 0, len(sel.Items))
	hasAgg := false
	for _, it := range sel.Items {
		if fc, ok := it.Expr.(*parsetree.FuncCall); ok && fc.IsAggregate {
			hasAgg = true
		}
	}

	proc := &Proc{SpecList: specs}
	if hasAgg && len(sel.GroupBy) == 0 {
		proc.Type = ProcBuildValue
	} else {
		proc.Type = ProcBuildList
	}

	aggs, err := buildAggList(ctx, r, sel.Items)
	if err != nil {
		return nil, err
	}

	for _, it := range sel.Items {
		if fc, ok := it.Expr.(*parsetree.FuncCall); ok && fc.IsAggregate {
			ag := aggs[it.Expr]
			outptr = append(outptr, ag.Result)
			continue
		}
		v, err := r.Lower(ctx, it.Expr)
		if err != nil {
			return nil, err
		}
		outptr = append(outptr, v)
	}
	proc.OutptrList = outptr

	if len(sel.Where) > 0 {
		instnum, rest := splitNumberingPred(sel.Where)
		// rest is evaluated once all per-node access-spec sargs and joins
		// have run: it holds every non-numbering conjunct, including
		// those a scan already applied as a sarg.
		if len(rest) > 0 {
			p, err := pred.Build(ctx, r, rest)
			if err != nil {
				return nil, err
			}
			proc.DataFilterPred = p
		}
		if len(instnum) > 0 {
			p, err := pred.Build(ctx, r, instnum)
			if err != nil {
				return nil, err
			}
			proc.InstnumPred = p
		}
	}

	if len(sel.GroupBy) > 0 {
		gb, err := buildSortList(sel.GroupBy, sel.Items)
		if err != nil {
			return nil, err
		}
		proc.GroupbyList = gb
		proc.GWithRollup = sel.WithRollup
		proc.GOutptrList = outptr
		list := make([]*AggDescriptor, 0, len(aggs))
		for _, it := range sel.Items {
			if ag, ok := aggs[it.Expr]; ok {
				list = append(list, ag)
			}
		}
		proc.GAggList = list
		if len(sel.Having) > 0 {
			hp, err := pred.Build(ctx, r, sel.Having)
			if err != nil {
				return nil, err
			}
			proc.GHavingPred = hp
		}
	}

	if len(sel.OrderBy) > 0 {
		ob, err := buildSortList(sel.OrderBy, sel.Items)
		if err != nil {
			return nil, err
		}
		proc.OrderbyList = ob
	}

	log.WithField("type", proc.Type.String()).Debug("select proc assembled")
	return proc, nil
}

func buildAggList(ctx context.Context, r *regu.Lowerer, items []parsetree.SelectItem) (map[parsetree.Expr]*AggDescriptor, error) {
	out := map[parsetree.Expr]*AggDescriptor{}
	for _, it := range items {
		fc, ok := it.Expr.(*parsetree.FuncCall)
		if !ok || !fc.IsAggregate {
			continue
		}
		fn, err := aggFunc(fc.Name)
		if err != nil {
			return nil, err
		}
		ag := &AggDescriptor{Func: fn, Distinct: fc.Distinct}
		if len(fc.Args) > 0 {
			v, err := r.Lower(ctx, fc.Args[0])
			if err != nil {
				return nil, err
			}
			ag.Operand = v
		}
		ag.Result = &regu.Var{Kind: regu.KindDBVal, Domain: "numeric"}
		if fn == AggAvg {
			ag.Value = &regu.Var{Kind: regu.KindDBVal, Domain: "numeric"}
			ag.Value2 = &regu.Var{Kind: regu.KindDBVal, Domain: "int"}
		}
		if fn == AggGroupConcat {
			ag.GroupConcatSeparator = fc.Separator
			for _, s := range fc.OrderBy {
				pos, err := positionOf(s, items)
				if err != nil {
					return nil, err
				}
				ag.GroupConcatOrderBy = append(ag.GroupConcatOrderBy, SortItem{Pos: pos, Desc: s.Desc, NullsFirst: s.NullsFirst})
			}
		}
		out[it.Expr] = ag
	}
	return out, nil
}

func aggFunc(name string) (AggFunc, error) {
	switch name {
	case "COUNT":
		return AggCount, nil
	case "SUM":
		return AggSum, nil
	case "AVG":
		return AggAvg, nil
	case "MIN":
		return AggMin, nil
	case "MAX":
		return AggMax, nil
	case "GROUP_CONCAT":
		return AggGroupConcat, nil
	default:
		return 0, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf("aggregate function %s", name))
	}
}

// buildSortList resolves each sort spec to a 0-based position in items,
// matching by node equivalence, alias, or an explicit integer position
// (spec §4.12).
func buildSortList(specs []*parsetree.SortSpec, items []parsetree.SelectItem) ([]SortItem, error) {
	out := make([]SortItem, 0, len(specs))
	for _, s := range specs {
		pos, err := positionOf(s, items)
		if err != nil {
			return nil, err
		}
		out = append(out, SortItem{Pos: pos, Desc: s.Desc, NullsFirst: s.NullsFirst})
	}
	return out, nil
}

func positionOf(s *parsetree.SortSpec, items []parsetree.SelectItem) (int, error) {
	if s.Pos > 0 {
		if s.Pos > len(items) {
			return 0, qoerr.ErrAssertion.New(fmt.Sprintf("sort position %d exceeds select list length %d", s.Pos, len(items)))
		}
		return s.Pos - 1, nil
	}
	if n, ok := s.Expr.(*parsetree.Name); ok {
		for i, it := range items {
			if it.Alias != "" && it.Alias == n.Attr {
				return i, nil
			}
		}
	}
	for i, it := range items {
		if sameShape(it.Expr, s.Expr) {
			return i, nil
		}
	}
	return 0, qoerr.ErrAssertion.New("sort expression matches no select-list item by position, alias, or shape")
}

// sameShape is a shallow node-equivalence check (spec §4.12): same Go
// type and same String() rendering. The parse tree carries no node ids,
// so this is the only equivalence test available without re-walking
// both subtrees structurally.
func sameShape(a, b parsetree.Expr) bool {
	return fmt.Sprintf("%T:%s", a, a.String()) == fmt.Sprintf("%T:%s", b, b.String())
}

func splitNumberingPred(where []parsetree.Expr) (numbering, rest []parsetree.Expr) {
	for _, e := range where {
		if referencesNumbering(e) {
			numbering = append(numbering, e)
		} else {
			rest = append(rest, e)
		}
	}
	return numbering, rest
}

func referencesNumbering(e parsetree.Expr) bool {
	if p, ok := e.(*parsetree.Pseudo); ok {
		return p.Op == parsetree.OpInstNum || p.Op == parsetree.OpRowNum || p.Op == parsetree.OpOrderbyNum
	}
	for _, c := range e.Children() {
		if referencesNumbering(c) {
			return true
		}
	}
	return false
}

// AssembleUnion builds a UNION_PROC/DIFFERENCE_PROC/INTERSECTION_PROC
// over two already-assembled child procs (spec §4.12).
func AssembleUnion(op parsetree.SetOp, left, right *Proc) *Proc {
	p := &Proc{Left: left, Right: right}
	switch op {
	case parsetree.SetOpDifference:
		p.Type = ProcDifference
	case parsetree.SetOpIntersection:
		p.Type = ProcIntersection
	default:
		p.Type = ProcUnion
	}
	log.WithField("type", p.Type.String()).Debug("set-operation proc assembled")
	return p
}

// AssembleUpdate builds an UPDATE_PROC over inner, an already-assembled
// BUILDLIST proc producing one row per class-to-modify (spec §4.12).
func AssembleUpdate(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, inner *Proc, upd *parsetree.Update) (*Proc, error) {
	targets, err := buildModifyTargets(ctx, env, r, upd.From, upd.Assignments)
	if err != nil {
		return nil, err
	}
	return &Proc{Type: ProcUpdate, ModifyAptr: inner, ModifyTargets: targets}, nil
}

// AssembleDelete builds a DELETE_PROC over inner (spec §4.12).
func AssembleDelete(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, inner *Proc, del *parsetree.Delete) (*Proc, error) {
	targets, err := buildModifyTargets(ctx, env, r, del.From, nil)
	if err != nil {
		return nil, err
	}
	filtered := targets[:0]
	for _, t := range targets {
		for _, want := range del.Targets {
			if env.Node(t.Node).Spec != nil && env.Node(t.Node).Spec.ID == want {
				filtered = append(filtered, t)
				break
			}
		}
	}
	return &Proc{Type: ProcDelete, ModifyAptr: inner, ModifyTargets: filtered}, nil
}

func buildModifyTargets(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, from []*parsetree.Spec, assigns []parsetree.Assignment) ([]ModifyTarget, error) {
	byName := map[string][]parsetree.Assignment{}
	for _, a := range assigns {
		byName[a.Target.Attr] = append(byName[a.Target.Attr], a)
	}

	targets := make([]ModifyTarget, 0, len(from))
	for _, n := range env.Nodes() {
		if n.Spec == nil {
			continue
		}
		mt := ModifyTarget{Node: n.ID, InstanceOID: &regu.Var{Kind: regu.KindOID, Node: n.ID}}
		if n.Info != nil {
			mt.ClassOID = &regu.Var{Kind: regu.KindDBVal, Value: n.Info.OID}
		}
		var constraints []parsetree.Expr
		for id := n.Segs.First(); id >= 0; id = n.Segs.Next(id) {
			seg := env.Segment(qgraph.SegID(id))
			if seg.IsOID {
				continue
			}
			old := regu.AttrRef(n.ID, seg.ID, seg.AttrInfo.Domain)
			mt.OldValues = append(mt.OldValues, old)

			newVal := old
			if as, ok := byName[seg.Name.Attr]; ok {
				v, err := r.Lower(ctx, as[0].Value)
				if err != nil {
					return nil, err
				}
				newVal = v
			}
			mt.NewValues = append(mt.NewValues, newVal)

			if !seg.AttrInfo.Nullable {
				constraints = append(constraints, &parsetree.UnaryExpr{Op: parsetree.OpIsNotNull, Operand: seg.Name})
			}
		}
		if len(constraints) > 0 {
			cp, err := pred.Build(ctx, r, constraints)
			if err != nil {
				return nil, err
			}
			if n.JoinType == parsetree.JoinLeftOuter || n.JoinType == parsetree.JoinRightOuter {
				gate := &regu.Var{Kind: regu.KindOID, Node: n.ID}
				mt.OuterJoinGate = gate
				cp = &pred.Pred{
					Type:  pred.TypeOr,
					Left:  &pred.Pred{Type: pred.TypeTerm, Kind: pred.TermIs, Op: parsetree.OpIsNull, Lhs: gate},
					Right: cp,
				}
			}
			mt.Constraint = cp
		}
		targets = append(targets, mt)
	}
	return targets, nil
}

// AssembleInsertValues builds an INSERT_PROC for INSERT ... VALUES (spec
// §4.12): one outptr list per row literal, permuted from ins's explicit
// column list into declared-attribute order. Attributes absent from the
// column list lower to nil, left for the storage layer to fill with
// their declared default.
func AssembleInsertValues(ctx context.Context, env *qgraph.Env, r *regu.Lowerer, node *qgraph.Node, ins *parsetree.Insert) (*Proc, error) {
	colPos := map[string]int{}
	for i, c := range ins.Columns {
		colPos[c.Attr] = i
	}

	rows := make([][]*regu.Var, 0, len(ins.Rows))
	for _, row := range ins.Rows {
		out := make([]*regu.Var, 0, len(node.Info.Attrs))
		for _, attr := range node.Info.Attrs {
			i, ok := colPos[attr.Name]
			if !ok {
				out = append(out, nil)
				continue
			}
			if i >= len(row.Values) {
				return nil, qoerr.ErrAssertion.New(fmt.Sprintf("insert row has %d values, column list names %d", len(row.Values), len(ins.Columns)))
			}
			v, err := r.Lower(ctx, row.Values[i])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		rows = append(rows, out)
	}

	return &Proc{
		Type:       ProcInsert,
		InsertInto: &ClassTarget{Node: node.ID},
		InsertRows: rows,
	}, nil
}

// AssembleInsertSelect builds an INSERT_PROC for INSERT ... SELECT over
// an already-assembled inner SELECT proc (spec §4.12).
func AssembleInsertSelect(node *qgraph.Node, inner *Proc) *Proc {
	return &Proc{Type: ProcInsert, InsertInto: &ClassTarget{Node: node.ID}, InsertSelect: inner}
}
