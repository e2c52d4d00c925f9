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

// Package pred implements predicate lowering (spec §4.10): a binary
// tree of AND/OR/NOT internal nodes over {comparison, some-all, like,
// rlike, is, not-term} leaves. The input is a CNF list of conjuncts,
// each itself a right-linear chain of DNF disjuncts; both the conjunct
// list and each disjunct chain are folded in reverse order to
// reconstruct the right-linear shape the evaluator expects.
package pred

import (
	"context"
	"fmt"

	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/parsetree"
)

// Type is a predicate node's shape.
type Type int

const (
	TypeAnd Type = iota
	TypeOr
	TypeNot
	TypeTerm
)

// TermKind names which of the leaf shapes spec §4.10 lists a TypeTerm
// node is.
type TermKind int

const (
	TermComparison TermKind = iota
	TermSomeAll
	TermLike
	TermRLike
	TermIs
	TermNotTerm
)

func (k TermKind) String() string {
	switch k {
	case TermComparison:
		return "comparison"
	case TermSomeAll:
		return "some-all"
	case TermLike:
		return "like"
	case TermRLike:
		return "rlike"
	case TermIs:
		return "is"
	default:
		return "not-term"
	}
}

// Pred is one PRED_EXPR node (spec §4.10).
type Pred struct {
	Type        Type
	Left, Right *Pred // AND/OR, right-linear: Right is the rest of the chain
	Operand     *Pred // NOT

	Kind     TermKind
	Op       parsetree.Op
	Lhs, Rhs *regu.Var

	// Continue is set when this subtree contains an
	// INST_NUM/ROWNUM/ORDERBY_NUM reference (spec §4.10): the scan
	// evaluator must not short-circuit past the numbering side effect.
	Continue bool
}

func (p *Pred) String() string {
	if p == nil {
		return "<nil>"
	}
	switch p.Type {
	case TypeAnd:
		return fmt.Sprintf("(%s AND %s)", p.Left, p.Right)
	case TypeOr:
		return fmt.Sprintf("(%s OR %s)", p.Left, p.Right)
	case TypeNot:
		return fmt.Sprintf("NOT(%s)", p.Operand)
	default:
		return fmt.Sprintf("%s(%s %s %s)", p.Kind, p.Lhs, p.Op, p.Rhs)
	}
}

// Build lowers a CNF list of conjuncts into a right-linear AND-tree of
// right-linear OR-chains (spec §4.10). Each expr is one conjunct, itself
// possibly an OR-shaped disjunction.
func Build(ctx context.Context, r *regu.Lowerer, terms []parsetree.Expr) (*Pred, error) {
	var chain *Pred
	for i := len(terms) - 1; i >= 0; i-- {
		leaf, err := buildDisjunction(ctx, r, terms[i])
		if err != nil {
			return nil, err
		}
		if chain == nil {
			chain = leaf
			continue
		}
		chain = &Pred{Type: TypeAnd, Left: leaf, Right: chain, Continue: leaf.Continue || chain.Continue}
	}
	return chain, nil
}

func buildDisjunction(ctx context.Context, r *regu.Lowerer, e parsetree.Expr) (*Pred, error) {
	disjuncts := flattenOr(e)
	var chain *Pred
	for i := len(disjuncts) - 1; i >= 0; i-- {
		leaf, err := buildLeaf(ctx, r, disjuncts[i])
		if err != nil {
			return nil, err
		}
		if chain == nil {
			chain = leaf
			continue
		}
		chain = &Pred{Type: TypeOr, Left: leaf, Right: chain, Continue: leaf.Continue || chain.Continue}
	}
	return chain, nil
}

func flattenOr(e parsetree.Expr) []parsetree.Expr {
	b, ok := e.(*parsetree.BinaryExpr)
	if !ok || b.Op != parsetree.OpOr {
		return []parsetree.Expr{e}
	}
	return append(flattenOr(b.Left), flattenOr(b.Right)...)
}

func buildLeaf(ctx context.Context, r *regu.Lowerer, e parsetree.Expr) (*Pred, error) {
	switch n := e.(type) {
	case *parsetree.UnaryExpr:
		if n.Op == parsetree.OpNot {
			inner, err := buildLeaf(ctx, r, n.Operand)
			if err != nil {
				return nil, err
			}
			return &Pred{Type: TypeNot, Operand: inner, Continue: inner.Continue}, nil
		}
		operand, err := r.Lower(ctx, n.Operand)
		if err != nil {
			return nil, err
		}
		return &Pred{Type: TypeTerm, Kind: TermIs, Op: n.Op, Lhs: operand, Continue: operand.ContinuesNumbering}, nil

	case *parsetree.BinaryExpr:
		switch n.Op {
		case parsetree.OpAnd:
			left, err := buildLeaf(ctx, r, n.Left)
			if err != nil {
				return nil, err
			}
			right, err := buildLeaf(ctx, r, n.Right)
			if err != nil {
				return nil, err
			}
			return &Pred{Type: TypeAnd, Left: left, Right: right, Continue: left.Continue || right.Continue}, nil
		case parsetree.OpOr:
			return buildDisjunction(ctx, r, n)
		case parsetree.OpEq, parsetree.OpLt, parsetree.OpLe, parsetree.OpGt, parsetree.OpGe, parsetree.OpNe:
			lhs, err := r.Lower(ctx, n.Left)
			if err != nil {
				return nil, err
			}
			rhs, err := r.Lower(ctx, n.Right)
			if err != nil {
				return nil, err
			}
			return &Pred{
				Type: TypeTerm, Kind: TermComparison, Op: n.Op, Lhs: lhs, Rhs: rhs,
				Continue: lhs.ContinuesNumbering || rhs.ContinuesNumbering || isNumberingPseudo(n.Left) || isNumberingPseudo(n.Right),
			}, nil
		default:
			return nil, qoerr.ErrUnsupportedConjunct.New(fmt.Sprintf("operator %s in predicate position", n.Op))
		}

	case *parsetree.Like:
		arg, err := r.Lower(ctx, n.Arg)
		if err != nil {
			return nil, err
		}
		pat, err := r.Lower(ctx, n.Pattern)
		if err != nil {
			return nil, err
		}
		kind := TermLike
		if n.RLike {
			kind = TermRLike
		}
		return &Pred{Type: TypeTerm, Kind: kind, Lhs: arg, Rhs: pat, Continue: true}, nil

	case *parsetree.Between:
		lowered, err := r.Lower(ctx, n)
		if err != nil {
			return nil, err
		}
		return &Pred{Type: TypeTerm, Kind: TermComparison, Op: parsetree.OpBetween, Lhs: lowered, Continue: lowered.ContinuesNumbering}, nil

	case *parsetree.Range, *parsetree.In, *parsetree.InSubquery:
		lowered, err := r.Lower(ctx, n)
		if err != nil {
			return nil, err
		}
		return &Pred{Type: TypeTerm, Kind: TermSomeAll, Lhs: lowered, Continue: true}, nil

	default:
		lowered, err := r.Lower(ctx, n)
		if err != nil {
			return nil, err
		}
		return &Pred{Type: TypeTerm, Kind: TermNotTerm, Lhs: lowered, Continue: lowered.ContinuesNumbering}, nil
	}
}

func isNumberingPseudo(e parsetree.Expr) bool {
	p, ok := e.(*parsetree.Pseudo)
	return ok && (p.Op == parsetree.OpInstNum || p.Op == parsetree.OpRowNum || p.Op == parsetree.OpOrderbyNum)
}
