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

// Package regu implements regu-variable lowering (spec §4.9): a
// typed, interpretable evaluator tree whose result is a DB-value,
// built by a large case-split over every parse-tree operator. Regu-vars
// are tree-shaped and never cyclic, and are never accessed after the
// owning Env is torn down.
package regu

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/optimizer/symtab"
	"github.com/ryesql/qo/parsetree"
)

var log = logrus.WithField("component", "regu")

// Kind is a regu-variable's node kind (spec §4.9).
type Kind int

const (
	KindDBVal Kind = iota
	KindPosValue
	KindConstant
	KindAttrID
	KindOID
	KindInArith
	KindFunc
	KindListID
	KindPosition
	KindOrderbyNum
)

func (k Kind) String() string {
	switch k {
	case KindDBVal:
		return "TYPE_DBVAL"
	case KindPosValue:
		return "TYPE_POS_VALUE"
	case KindConstant:
		return "TYPE_CONSTANT"
	case KindAttrID:
		return "TYPE_ATTR_ID"
	case KindOID:
		return "TYPE_OID"
	case KindInArith:
		return "TYPE_INARITH"
	case KindFunc:
		return "TYPE_FUNC"
	case KindListID:
		return "TYPE_LIST_ID"
	case KindPosition:
		return "TYPE_POSITION"
	case KindOrderbyNum:
		return "TYPE_ORDERBY_NUM"
	default:
		return "?"
	}
}

// Var is one regu-variable node (spec §4.9). Only the fields relevant to
// Kind are meaningful; the rest are the zero value.
type Var struct {
	Kind   Kind
	Domain string

	Value    any // KindDBVal
	Position int // KindPosValue (host-variable position) / KindPosition (list-file tuple offset)

	Holder *symtab.Holder // KindConstant

	Node qgraph.NodeID // KindAttrID / KindOID
	Seg  qgraph.SegID  // KindAttrID

	Op               parsetree.Op // KindInArith
	Arg1, Arg2, Arg3 *Var

	FuncName string // KindFunc
	FuncArgs []*Var // KindFunc

	Subquery qgraph.SubqueryID // KindListID / KindPosition

	// ContinuesNumbering is set on operators that may block row-by-row
	// evaluation (LIKE, RLIKE, IN, subquery, spec §4.9) so predicate
	// lowering keeps inst_num/ordby_num numbering alive past them, and
	// is propagated upward through every node that wraps one.
	ContinuesNumbering bool
}

func (v *Var) String() string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%v)", v.Kind, v.Op)
}

// children returns v's direct regu-variable operands, for tree walks
// (acyclicity checking, debug dumps).
func (v *Var) children() []*Var {
	var out []*Var
	for _, c := range []*Var{v.Arg1, v.Arg2, v.Arg3} {
		if c != nil {
			out = append(out, c)
		}
	}
	return append(out, v.FuncArgs...)
}

// Acyclic reports whether v's operand tree contains no cycle (spec
// §4.9, §8 I7): Lower only ever builds bottom-up, so a cycle can only
// arise from a construction bug that reuses a node as its own ancestor.
func Acyclic(v *Var) bool {
	return walkAcyclic(v, map[*Var]bool{})
}

func walkAcyclic(v *Var, onStack map[*Var]bool) bool {
	if v == nil {
		return true
	}
	if onStack[v] {
		return false
	}
	onStack[v] = true
	for _, c := range v.children() {
		if !walkAcyclic(c, onStack) {
			return false
		}
	}
	delete(onStack, v)
	return true
}

// AttrRef builds a TYPE_ATTR_ID regu-var referencing node's segment
// directly, bypassing any scan-filled holder (spec §4.9: "attribute
// descriptor, for index-scan key-construction and for raw heap
// access"). UPDATE/DELETE assembly in optimizer/xasl uses this for its
// old-value slots instead of routing through Lower/Lowerer.lowerName,
// which produces a TYPE_CONSTANT reference into a post-scan holder (or
// TYPE_OID for an OID name).
func AttrRef(node qgraph.NodeID, seg qgraph.SegID, domain string) *Var {
	return &Var{Kind: KindAttrID, Node: node, Seg: seg, Domain: domain}
}

// Lowerer lowers parse-tree scalar expressions into regu-variable trees,
// resolving Name references against a symbol-table frame stack (spec
// §4.8/§4.9).
type Lowerer struct {
	Env   *qgraph.Env
	Stack *symtab.Stack
}

// New returns a Lowerer over env, resolving names through stack.
func New(env *qgraph.Env, stack *symtab.Stack) *Lowerer {
	log.Debug("regu-variable lowerer attached to environment")
	return &Lowerer{Env: env, Stack: stack}
}

// Lower recursively lowers e (spec §4.9). The case-split is faithful:
// every operator the grammar exposes has an entry here, never a silent
// default.
func (l *Lowerer) Lower(ctx context.Context, e parsetree.Expr) (*Var, error) {
	switch n := e.(type) {
	case *parsetree.Literal:
		return l.lowerLiteral(n)
	case *parsetree.HostVar:
		return &Var{Kind: KindPosValue, Position: n.Position}, nil
	case *parsetree.Name:
		return l.lowerName(n)
	case *parsetree.Pseudo:
		return l.lowerPseudo(n)
	case *parsetree.BinaryExpr:
		return l.lowerBinary(ctx, n)
	case *parsetree.UnaryExpr:
		return l.lowerUnary(ctx, n)
	case *parsetree.Between:
		return l.lowerBetween(ctx, n)
	case *parsetree.Range:
		return l.lowerRange(ctx, n)
	case *parsetree.In:
		return l.lowerIn(ctx, n)
	case *parsetree.InSubquery:
		return l.lowerInSubquery(ctx, n)
	case *parsetree.Like:
		return l.lowerLike(ctx, n)
	case *parsetree.FuncCall:
		return l.lowerFunc(ctx, n)
	case *parsetree.CaseExpr:
		return l.lowerCase(ctx, n)
	case *parsetree.Subquery:
		return l.lowerSubquery(n)
	default:
		return nil, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf("%T", e))
	}
}

func (l *Lowerer) lowerLiteral(lit *parsetree.Literal) (*Var, error) {
	v, err := coerceToDomain(lit.Domain, lit.Value)
	if err != nil {
		return nil, qoerr.ErrUnsupportedConjunct.New(err.Error())
	}
	return &Var{Kind: KindDBVal, Domain: lit.Domain, Value: v}, nil
}

// coerceToDomain loosely coerces a literal's Go value to its declared
// domain (spec §4.9's TYPE_DBVAL construction), matching the teacher's
// use of cast for loose type coercion at expression boundaries.
func coerceToDomain(domain string, v any) (any, error) {
	switch domain {
	case "int", "integer", "bigint", "smallint", "tinyint":
		return cast.ToInt64E(v)
	case "float", "double", "real", "numeric", "decimal":
		return cast.ToFloat64E(v)
	case "varchar", "char", "string", "text":
		return cast.ToStringE(v)
	case "bool", "boolean":
		return cast.ToBoolE(v)
	default:
		return v, nil
	}
}

func (l *Lowerer) lowerName(n *parsetree.Name) (*Var, error) {
	h, node, _, err := l.Stack.Resolve(n)
	if err != nil {
		return nil, err
	}
	if n.OID {
		return &Var{Kind: KindOID, Node: node}, nil
	}
	return &Var{Kind: KindConstant, Holder: h}, nil
}

func (l *Lowerer) lowerPseudo(p *parsetree.Pseudo) (*Var, error) {
	switch p.Op {
	case parsetree.OpOrderbyNum:
		return &Var{Kind: KindOrderbyNum, Domain: "int", ContinuesNumbering: true}, nil
	case parsetree.OpInstNum, parsetree.OpRowNum:
		// INST_NUM/ROWNUM have no stored holder of their own; they are
		// counted by the predicate/scan evaluator and referenced here
		// as an immediate arithmetic placeholder the predicate layer
		// recognizes by Op (spec §4.9/§4.10).
		return &Var{Kind: KindInArith, Op: p.Op, Domain: "int", ContinuesNumbering: true}, nil
	default:
		return nil, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf("pseudo column %s", p.Op))
	}
}

func (l *Lowerer) lowerBinary(ctx context.Context, b *parsetree.BinaryExpr) (*Var, error) {
	lhs, err := l.Lower(ctx, b.Left)
	if err != nil {
		return nil, err
	}
	rhs, err := l.Lower(ctx, b.Right)
	if err != nil {
		return nil, err
	}
	return &Var{
		Kind:               KindInArith,
		Op:                 b.Op,
		Arg1:               lhs,
		Arg2:               rhs,
		Domain:             binaryResultDomain(b.Op, lhs),
		ContinuesNumbering: lhs.ContinuesNumbering || rhs.ContinuesNumbering,
	}, nil
}

func binaryResultDomain(op parsetree.Op, lhs *Var) string {
	switch op {
	case parsetree.OpEq, parsetree.OpLt, parsetree.OpLe, parsetree.OpGt, parsetree.OpGe, parsetree.OpNe,
		parsetree.OpAnd, parsetree.OpOr:
		return "bool"
	default:
		return lhs.Domain
	}
}

func (l *Lowerer) lowerUnary(ctx context.Context, u *parsetree.UnaryExpr) (*Var, error) {
	arg, err := l.Lower(ctx, u.Operand)
	if err != nil {
		return nil, err
	}
	return &Var{Kind: KindInArith, Op: u.Op, Arg1: arg, Domain: "bool", ContinuesNumbering: arg.ContinuesNumbering}, nil
}

func (l *Lowerer) lowerBetween(ctx context.Context, b *parsetree.Between) (*Var, error) {
	arg, err := l.Lower(ctx, b.Arg)
	if err != nil {
		return nil, err
	}
	lo, err := l.Lower(ctx, b.Lo)
	if err != nil {
		return nil, err
	}
	hi, err := l.Lower(ctx, b.Hi)
	if err != nil {
		return nil, err
	}
	return &Var{Kind: KindInArith, Op: parsetree.OpBetween, Arg1: arg, Arg2: lo, Arg3: hi, Domain: "bool",
		ContinuesNumbering: arg.ContinuesNumbering || lo.ContinuesNumbering || hi.ContinuesNumbering}, nil
}

func (l *Lowerer) lowerRange(ctx context.Context, r *parsetree.Range) (*Var, error) {
	arg, err := l.Lower(ctx, r.Arg)
	if err != nil {
		return nil, err
	}
	args := []*Var{arg}
	continues := arg.ContinuesNumbering
	for _, leg := range r.Legs {
		if leg.Lo != nil {
			lo, err := l.Lower(ctx, leg.Lo)
			if err != nil {
				return nil, err
			}
			args = append(args, lo)
			continues = continues || lo.ContinuesNumbering
		}
		if leg.Hi != nil {
			hi, err := l.Lower(ctx, leg.Hi)
			if err != nil {
				return nil, err
			}
			args = append(args, hi)
			continues = continues || hi.ContinuesNumbering
		}
	}
	return &Var{Kind: KindFunc, FuncName: "RANGE", FuncArgs: args, Domain: "bool", ContinuesNumbering: continues}, nil
}

func (l *Lowerer) lowerIn(ctx context.Context, in *parsetree.In) (*Var, error) {
	arg, err := l.Lower(ctx, in.Arg)
	if err != nil {
		return nil, err
	}
	items := make([]*Var, 0, len(in.Items))
	for _, it := range in.Items {
		v, err := l.Lower(ctx, it)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return &Var{Kind: KindFunc, FuncName: "IN", Arg1: arg, FuncArgs: items, Domain: "bool", ContinuesNumbering: true}, nil
}

func (l *Lowerer) lowerInSubquery(ctx context.Context, in *parsetree.InSubquery) (*Var, error) {
	arg, err := l.Lower(ctx, in.Arg)
	if err != nil {
		return nil, err
	}
	sub, err := l.lowerSubquery(in.Sub)
	if err != nil {
		return nil, err
	}
	return &Var{Kind: KindFunc, FuncName: "IN_SUBQUERY", Arg1: arg, Arg2: sub, Domain: "bool", ContinuesNumbering: true}, nil
}

func (l *Lowerer) lowerLike(ctx context.Context, lk *parsetree.Like) (*Var, error) {
	arg, err := l.Lower(ctx, lk.Arg)
	if err != nil {
		return nil, err
	}
	pat, err := l.Lower(ctx, lk.Pattern)
	if err != nil {
		return nil, err
	}
	v := &Var{Kind: KindFunc, FuncName: "LIKE", Arg1: arg, Arg2: pat, Domain: "bool", ContinuesNumbering: true}
	if lk.RLike {
		v.FuncName = "RLIKE"
	}
	if lk.Escape != nil {
		esc, err := l.Lower(ctx, lk.Escape)
		if err != nil {
			return nil, err
		}
		v.Arg3 = esc
	}
	return v, nil
}

func (l *Lowerer) lowerFunc(ctx context.Context, f *parsetree.FuncCall) (*Var, error) {
	if f.IsAggregate {
		return nil, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf(
			"aggregate function %s reached scalar regu-variable lowering; aggregates lower through optimizer/xasl's aggregate-descriptor path", f.Name))
	}
	args := make([]*Var, 0, len(f.Args))
	continues := false
	for _, a := range f.Args {
		v, err := l.Lower(ctx, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		continues = continues || v.ContinuesNumbering
	}
	return &Var{Kind: KindFunc, FuncName: f.Name, FuncArgs: args, ContinuesNumbering: continues}, nil
}

func (l *Lowerer) lowerCase(ctx context.Context, c *parsetree.CaseExpr) (*Var, error) {
	args := make([]*Var, 0, len(c.Whens)*2+1)
	continues := false
	for _, w := range c.Whens {
		condExpr := w.Cond
		if c.Operand.Cond != nil {
			condExpr = &parsetree.BinaryExpr{Op: parsetree.OpEq, Left: c.Operand.Cond, Right: w.Cond}
		}
		cond, err := l.Lower(ctx, condExpr)
		if err != nil {
			return nil, err
		}
		then, err := l.Lower(ctx, w.Then)
		if err != nil {
			return nil, err
		}
		args = append(args, cond, then)
		continues = continues || cond.ContinuesNumbering || then.ContinuesNumbering
	}
	if c.Else != nil {
		els, err := l.Lower(ctx, c.Else)
		if err != nil {
			return nil, err
		}
		args = append(args, els)
		continues = continues || els.ContinuesNumbering
	}
	return &Var{Kind: KindFunc, FuncName: "CASE", FuncArgs: args, ContinuesNumbering: continues}, nil
}

func (l *Lowerer) lowerSubquery(sq *parsetree.Subquery) (*Var, error) {
	sid, ok := subqueryID(l.Env, sq)
	if !ok {
		return nil, qoerr.ErrAssertion.New("subquery expression not found in query graph environment")
	}
	return &Var{Kind: KindListID, Subquery: sid, ContinuesNumbering: true}, nil
}

func subqueryID(env *qgraph.Env, sq *parsetree.Subquery) (qgraph.SubqueryID, bool) {
	for _, s := range env.Subqueries() {
		if s.Expr == sq {
			return s.ID, true
		}
	}
	return qgraph.SubqueryID(qgraph.Invalid), false
}

// PositionRef builds a TYPE_POSITION regu-var: a positional reference
// into a sub-query's list-file tuple (spec §4.9), used by list-scan
// predicates.
func PositionRef(sq qgraph.SubqueryID, pos int, domain string) *Var {
	return &Var{Kind: KindPosition, Subquery: sq, Position: pos, Domain: domain}
}
