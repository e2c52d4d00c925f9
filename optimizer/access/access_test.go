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

package access_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryesql/qo/catalog/catalogtest"
	"github.com/ryesql/qo/optimizer/access"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/planchoice"
	"github.com/ryesql/qo/optimizer/pred"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/optimizer/symtab"
	"github.com/ryesql/qo/parsetree"
)

func buildEnv(t *testing.T, where []parsetree.Expr) (*qgraph.Env, *regu.Lowerer) {
	t.Helper()
	cat := catalogtest.New()
	cat.AddClass(catalogtest.NewClass("t1", 1, 100).
		Attr(1, "id", "int", false, 100).
		Attr(2, "name", "varchar", true, 50).
		PrimaryKey(1, 1).
		Build())
	tree := &parsetree.Select{
		From: []*parsetree.Spec{{
			ID: 1, RangeVar: "t1",
			Entities:   []parsetree.ClassRef{{ClassName: "t1"}},
			Referenced: []*parsetree.Name{{Spec: 1, Attr: "id"}, {Spec: 1, Attr: "name"}},
		}},
		Where: where,
	}
	env, err := qgraph.Build(context.Background(), cat, cost.NewDefault(), tree)
	require.NoError(t, err)

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))
	return env, regu.New(env, stack)
}

func idEq(v int64) parsetree.Expr {
	return &parsetree.BinaryExpr{Op: parsetree.OpEq, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: v, Domain: "int"}}
}

func TestBuildSequentialScanWhenNoIndexChosen(t *testing.T) {
	env, r := buildEnv(t, nil)
	defer env.Free()

	n := env.Node(0)
	spec, err := access.Build(context.Background(), env, r, n, planchoice.NodeChoice{Node: n.ID}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, access.ScanSequential, spec.Type)
	require.Nil(t, spec.Index)
}

func TestBuildIndexEqualityProducesKeyListRange(t *testing.T) {
	env, r := buildEnv(t, []parsetree.Expr{idEq(7)})
	defer env.Free()

	n := env.Node(0)
	require.NotEmpty(t, n.Indexes, "the PK equality predicate must bind the primary-key constraint")

	choice := planchoice.NodeChoice{Node: n.ID, Index: n.Indexes[0]}
	spec, err := access.Build(context.Background(), env, r, n, choice, nil, nil)
	require.NoError(t, err)

	require.Equal(t, access.ScanIndex, spec.Type)
	require.Len(t, spec.Index.Ranges, 1)
	require.Equal(t, access.RangeKeyList, spec.Index.Ranges[0].Kind)
	require.Len(t, spec.Index.Ranges[0].Keys, 1)
	require.Equal(t, "F_IDXKEY", spec.Index.Ranges[0].Keys[0].FuncName)
	require.False(t, spec.Index.Coverage, "name is referenced but is not a PK column, so the scan is not covering")
}

func TestBuildListAssignsOneSpecPerJoinOrderSlot(t *testing.T) {
	env, r := buildEnv(t, nil)
	defer env.Free()

	cp := planchoice.Sequential(env)
	specs, err := access.BuildList(context.Background(), env, r, cp, nil, nil)
	require.NoError(t, err)
	require.Len(t, specs, len(env.Nodes()))
	for _, s := range specs {
		require.NotNil(t, s)
	}
}

func TestPtInstNumToKeyLimitRewritesLeToUpperLimit(t *testing.T) {
	lim := &regu.Var{Kind: regu.KindDBVal, Value: int64(10)}
	instnum := &regu.Var{Kind: regu.KindInArith, Op: parsetree.OpInstNum}
	p := &pred.Pred{Type: pred.TypeTerm, Kind: pred.TermComparison, Op: parsetree.OpLe, Lhs: instnum, Rhs: lim}

	rewritten, hi, ok := access.PtInstNumToKeyLimit(p, nil)
	require.True(t, ok)
	require.Nil(t, rewritten, "the row-filter form is fully subsumed by the key-limit and drops out (spec 8 L2)")
	require.Same(t, lim, hi)
}

func TestPtInstNumToKeyLimitLeavesOtherPredicatesUntouched(t *testing.T) {
	p := &pred.Pred{Type: pred.TypeTerm, Kind: pred.TermComparison, Op: parsetree.OpEq,
		Lhs: &regu.Var{Kind: regu.KindAttrID}, Rhs: &regu.Var{Kind: regu.KindDBVal, Value: int64(1)}}

	rewritten, hi, ok := access.PtInstNumToKeyLimit(p, nil)
	require.False(t, ok)
	require.Same(t, p, rewritten)
	require.Nil(t, hi)
}

func TestPtInstNumToKeyLimitSkipsWhenLimitAlreadySet(t *testing.T) {
	existing := &regu.Var{Kind: regu.KindDBVal, Value: int64(5)}
	instnum := &regu.Var{Kind: regu.KindInArith, Op: parsetree.OpInstNum}
	p := &pred.Pred{Type: pred.TypeTerm, Kind: pred.TermComparison, Op: parsetree.OpLe, Lhs: instnum,
		Rhs: &regu.Var{Kind: regu.KindDBVal, Value: int64(10)}}

	rewritten, hi, ok := access.PtInstNumToKeyLimit(p, existing)
	require.False(t, ok)
	require.Same(t, p, rewritten)
	require.Same(t, existing, hi)
}
