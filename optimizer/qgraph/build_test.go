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

package qgraph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryesql/qo/catalog/catalogtest"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/parsetree"
)

func twoClassCatalog() *catalogtest.Catalog {
	cat := catalogtest.New()
	cat.AddClass(catalogtest.NewClass("t1", 1, 1000).
		Attr(1, "id", "int", false, 1000).
		Attr(2, "name", "varchar", true, 200).
		PrimaryKey(1, 1).
		Build())
	cat.AddClass(catalogtest.NewClass("t2", 2, 5000).
		Attr(1, "id", "int", false, 5000).
		Attr(2, "col", "int", true, 50).
		PrimaryKey(1, 1).
		Build())
	return cat
}

func innerJoinTree() *parsetree.Select {
	t1 := &parsetree.Spec{
		ID:         1,
		RangeVar:   "t1",
		Entities:   []parsetree.ClassRef{{ClassName: "t1"}},
		JoinType:   parsetree.JoinNone,
		Referenced: []*parsetree.Name{{Spec: 1, Attr: "id"}, {Spec: 1, Attr: "name"}},
	}
	t2 := &parsetree.Spec{
		ID:       2,
		RangeVar: "t2",
		Entities: []parsetree.ClassRef{{ClassName: "t2"}},
		JoinType: parsetree.JoinInner,
		OnCond: []parsetree.Expr{
			&parsetree.BinaryExpr{Op: parsetree.OpEq,
				Left:  &parsetree.Name{Spec: 1, Attr: "id"},
				Right: &parsetree.Name{Spec: 2, Attr: "id"}},
		},
		Referenced: []*parsetree.Name{{Spec: 2, Attr: "id"}},
	}
	return &parsetree.Select{
		From: []*parsetree.Spec{t1, t2},
		Where: []parsetree.Expr{
			&parsetree.BinaryExpr{Op: parsetree.OpEq,
				Left:  &parsetree.Name{Spec: 1, Attr: "name"},
				Right: &parsetree.Literal{Value: "x", Domain: "varchar"}},
		},
	}
}

func TestBuildInnerJoinClassifiesSargAndJoinTerms(t *testing.T) {
	env, err := qgraph.Build(context.Background(), twoClassCatalog(), cost.NewDefault(), innerJoinTree())
	require.NoError(t, err)
	defer env.Free()

	require.Equal(t, 2, env.NNodes())
	require.Equal(t, 1, env.NPartitions())

	var sargs, joins int
	for _, term := range env.Terms() {
		switch term.Class {
		case qgraph.ClassSarg:
			sargs++
		case qgraph.ClassJoin:
			joins++
			require.Less(t, term.Head, term.Tail, "JOIN term Head must be < Tail (spec I2)")
		}
	}
	require.Equal(t, 1, sargs)
	require.Equal(t, 1, joins)

	require.Equal(t, 1, env.Node(0).Sargs.Cardinality())
}

func TestBuildLeftOuterJoinDefersWhereTermToAfterJoin(t *testing.T) {
	t1 := &parsetree.Spec{
		ID:         1,
		RangeVar:   "t1",
		Entities:   []parsetree.ClassRef{{ClassName: "t1"}},
		JoinType:   parsetree.JoinNone,
		Referenced: []*parsetree.Name{{Spec: 1, Attr: "id"}},
	}
	t2 := &parsetree.Spec{
		ID:       2,
		RangeVar: "t2",
		Entities: []parsetree.ClassRef{{ClassName: "t2"}},
		JoinType: parsetree.JoinLeftOuter,
		OnCond: []parsetree.Expr{
			&parsetree.BinaryExpr{Op: parsetree.OpEq,
				Left:  &parsetree.Name{Spec: 1, Attr: "id"},
				Right: &parsetree.Name{Spec: 2, Attr: "id"}},
		},
		Referenced: []*parsetree.Name{{Spec: 2, Attr: "id"}, {Spec: 2, Attr: "col"}},
	}
	tree := &parsetree.Select{
		From: []*parsetree.Spec{t1, t2},
		Where: []parsetree.Expr{
			&parsetree.BinaryExpr{Op: parsetree.OpEq,
				Left:  &parsetree.Name{Spec: 2, Attr: "col"},
				Right: &parsetree.Literal{Value: int64(5), Domain: "int"}},
		},
	}

	env, err := qgraph.Build(context.Background(), twoClassCatalog(), cost.NewDefault(), tree)
	require.NoError(t, err)
	defer env.Free()

	require.False(t, env.Node(1).Sargable, "nullable side of a LEFT OUTER JOIN must not be sargable")

	var found bool
	for _, term := range env.Terms() {
		if term.Location == 0 && term.Expr != nil {
			found = true
			require.Equal(t, qgraph.ClassAfterJoin, term.Class,
				"a WHERE term touching the nullable side of an outer join must run after the join")
		}
	}
	require.True(t, found, "expected to find the WHERE-clause term")
}

func TestBuildRejectsTooManyNodes(t *testing.T) {
	from := make([]*parsetree.Spec, 65)
	for i := range from {
		from[i] = &parsetree.Spec{ID: parsetree.SpecID(i + 1), RangeVar: "t", Entities: []parsetree.ClassRef{{ClassName: "t1"}}}
	}
	tree := &parsetree.Select{From: from}

	_, err := qgraph.Build(context.Background(), twoClassCatalog(), cost.NewDefault(), tree)
	require.Error(t, err)
}

func TestBuildAlwaysFalseOnCondProducesThreeTermConfiguration(t *testing.T) {
	t1 := &parsetree.Spec{ID: 1, RangeVar: "t1", Entities: []parsetree.ClassRef{{ClassName: "t1"}}}
	t2 := &parsetree.Spec{
		ID:       2,
		RangeVar: "t2",
		Entities: []parsetree.ClassRef{{ClassName: "t2"}},
		JoinType: parsetree.JoinLeftOuter,
		OnCond:   []parsetree.Expr{&parsetree.Literal{Value: false, Domain: "bool"}},
	}
	tree := &parsetree.Select{From: []*parsetree.Spec{t1, t2}}

	env, err := qgraph.Build(context.Background(), twoClassCatalog(), cost.NewDefault(), tree)
	require.NoError(t, err)
	defer env.Free()

	var sargCount int
	for _, term := range env.Terms() {
		if term.Location == 2 && term.Class == qgraph.ClassSarg {
			sargCount++
		}
	}
	require.Equal(t, 2, sargCount, "an always-false ON conjunct gets one single-node SARG per side (spec open question)")
}
