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

package optimizer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryesql/qo/catalog/catalogtest"
	"github.com/ryesql/qo/optimizer"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/paramsvc"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/optimizer/xasl"
	"github.com/ryesql/qo/parsetree"
)

func twoClassCatalog() *catalogtest.Catalog {
	cat := catalogtest.New()
	cat.AddClass(catalogtest.NewClass("customer", 1, 1000).
		Attr(1, "id", "int", false, 1000).
		Attr(2, "name", "varchar", true, 1000).
		PrimaryKey(1, 1).
		Build())
	cat.AddClass(catalogtest.NewClass("orders", 2, 5000).
		Attr(1, "id", "int", false, 5000).
		Attr(2, "customer_id", "int", false, 1000).
		Attr(3, "total", "int", false, 5000).
		PrimaryKey(1, 1).
		Build())
	return cat
}

func customerNameSelect(where []parsetree.Expr) *parsetree.Select {
	return &parsetree.Select{
		From: []*parsetree.Spec{{
			ID: 1, RangeVar: "customer",
			Entities:   []parsetree.ClassRef{{ClassName: "customer"}},
			Referenced: []*parsetree.Name{{Spec: 1, Attr: "id"}, {Spec: 1, Attr: "name"}},
		}},
		Items: []parsetree.SelectItem{
			{Expr: &parsetree.Name{Spec: 1, Attr: "id"}},
			{Expr: &parsetree.Name{Spec: 1, Attr: "name"}},
		},
		Where: where,
	}
}

// TestOptimizeScenarioPointQuery covers spec §8 scenario 1: a single
// bare equality scan over a class's primary key.
func TestOptimizeScenarioPointQuery(t *testing.T) {
	cat := twoClassCatalog()
	sel := customerNameSelect([]parsetree.Expr{
		&parsetree.BinaryExpr{Op: parsetree.OpEq, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: int64(42), Domain: "int"}},
	})

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	require.Equal(t, xasl.ProcBuildList, proc.Type)
	require.Len(t, proc.SpecList, 1)
	require.Len(t, proc.OutptrList, 2)
}

// TestOptimizeScenarioJoin covers spec §8 scenario 2: a two-class inner
// join exercises both the qgraph join-term classification and access
// spec lowering for more than one node.
func TestOptimizeScenarioJoin(t *testing.T) {
	cat := twoClassCatalog()
	sel := &parsetree.Select{
		From: []*parsetree.Spec{
			{ID: 1, RangeVar: "customer", Entities: []parsetree.ClassRef{{ClassName: "customer"}},
				Referenced: []*parsetree.Name{{Spec: 1, Attr: "id"}, {Spec: 1, Attr: "name"}}},
			{ID: 2, RangeVar: "orders", Entities: []parsetree.ClassRef{{ClassName: "orders"}}, JoinType: parsetree.JoinInner,
				OnCond: []parsetree.Expr{&parsetree.BinaryExpr{Op: parsetree.OpEq,
					Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Name{Spec: 2, Attr: "customer_id"}}},
				Referenced: []*parsetree.Name{{Spec: 2, Attr: "customer_id"}, {Spec: 2, Attr: "total"}}},
		},
		Items: []parsetree.SelectItem{
			{Expr: &parsetree.Name{Spec: 1, Attr: "name"}},
			{Expr: &parsetree.Name{Spec: 2, Attr: "total"}},
		},
	}

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	require.Len(t, proc.SpecList, 2)
}

// TestOptimizeScenarioAggregate covers spec §8 scenario 3: a bare
// aggregate with no GROUP BY lowers to BUILDVALUE_PROC.
func TestOptimizeScenarioAggregate(t *testing.T) {
	cat := twoClassCatalog()
	sel := &parsetree.Select{
		From: []*parsetree.Spec{{ID: 1, RangeVar: "orders", Entities: []parsetree.ClassRef{{ClassName: "orders"}},
			Referenced: []*parsetree.Name{{Spec: 1, Attr: "total"}}}},
		Items: []parsetree.SelectItem{
			{Expr: &parsetree.FuncCall{Name: "SUM", IsAggregate: true, Args: []parsetree.Expr{&parsetree.Name{Spec: 1, Attr: "total"}}}},
		},
	}

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	require.Equal(t, xasl.ProcBuildValue, proc.Type)
}

// TestOptimizeScenarioGroupBy covers spec §8 scenario 4: GROUP BY forces
// BUILDLIST_PROC even with an aggregate present.
func TestOptimizeScenarioGroupBy(t *testing.T) {
	cat := twoClassCatalog()
	sel := &parsetree.Select{
		From: []*parsetree.Spec{{ID: 1, RangeVar: "orders", Entities: []parsetree.ClassRef{{ClassName: "orders"}},
			Referenced: []*parsetree.Name{{Spec: 1, Attr: "customer_id"}, {Spec: 1, Attr: "total"}}}},
		Items: []parsetree.SelectItem{
			{Expr: &parsetree.Name{Spec: 1, Attr: "customer_id"}},
			{Expr: &parsetree.FuncCall{Name: "SUM", IsAggregate: true, Args: []parsetree.Expr{&parsetree.Name{Spec: 1, Attr: "total"}}}},
		},
		GroupBy: []*parsetree.SortSpec{{Pos: 1}},
	}

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	require.Equal(t, xasl.ProcBuildList, proc.Type)
	require.Len(t, proc.GroupbyList, 1)
	require.Len(t, proc.GAggList, 1)
}

// TestOptimizeScenarioOrderByLimit covers spec §8 scenario 5: ORDER BY
// with LIMIT/OFFSET.
func TestOptimizeScenarioOrderByLimit(t *testing.T) {
	cat := twoClassCatalog()
	sel := customerNameSelect(nil)
	sel.OrderBy = []*parsetree.SortSpec{{Pos: 2, Desc: true}}
	sel.Limit = &parsetree.Literal{Value: int64(10), Domain: "int"}
	sel.Offset = &parsetree.Literal{Value: int64(5), Domain: "int"}

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	require.Len(t, proc.OrderbyList, 1)
	require.True(t, proc.OrderbyList[0].Desc)
}

// TestOptimizeScenarioInstNumLimit covers spec §8 scenario 6 and L2: an
// INST_NUM cutoff in WHERE.
func TestOptimizeScenarioInstNumLimit(t *testing.T) {
	cat := twoClassCatalog()
	sel := customerNameSelect([]parsetree.Expr{
		&parsetree.BinaryExpr{Op: parsetree.OpLe, Left: &parsetree.Pseudo{Op: parsetree.OpInstNum}, Right: &parsetree.Literal{Value: int64(5), Domain: "int"}},
	})

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	require.NotNil(t, proc.InstnumPred)
}

// TestOptimizeIsDeterministic exercises spec §8 L1: running Optimize
// twice over identical inputs produces structurally equal XASL.
func TestOptimizeIsDeterministic(t *testing.T) {
	cat := twoClassCatalog()
	sel := customerNameSelect([]parsetree.Expr{
		&parsetree.BinaryExpr{Op: parsetree.OpEq, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: int64(1), Domain: "int"}},
	})

	p1, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	p2, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)

	require.Equal(t, p1.Type, p2.Type)
	require.Equal(t, len(p1.SpecList), len(p2.SpecList))
	require.Equal(t, p1.SpecList[0].Type, p2.SpecList[0].Type)
	require.Equal(t, p1.SpecList[0].Index, p2.SpecList[0].Index)
	require.Equal(t, len(p1.OutptrList), len(p2.OutptrList))
	for i := range p1.OutptrList {
		require.Equal(t, p1.OutptrList[i].Kind, p2.OutptrList[i].Kind)
	}
}

// TestOptimizeOutptrIsAcyclic ties spec §8 I7 to the full pipeline: every
// regu-var the assembled proc exposes at its top level must be acyclic.
func TestOptimizeOutptrIsAcyclic(t *testing.T) {
	cat := twoClassCatalog()
	sel := customerNameSelect([]parsetree.Expr{
		&parsetree.BinaryExpr{Op: parsetree.OpAnd,
			Left:  &parsetree.BinaryExpr{Op: parsetree.OpGt, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: int64(0), Domain: "int"}},
			Right: &parsetree.BinaryExpr{Op: parsetree.OpLt, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: int64(100), Domain: "int"}},
		},
	})

	proc, err := optimizer.Optimize(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, sel)
	require.NoError(t, err)
	for _, v := range proc.OutptrList {
		require.True(t, regu.Acyclic(v))
	}
}

func TestOptimizeUpdateAssemblesModifyTarget(t *testing.T) {
	cat := twoClassCatalog()
	upd := &parsetree.Update{
		From: []*parsetree.Spec{{ID: 1, RangeVar: "customer", Entities: []parsetree.ClassRef{{ClassName: "customer"}},
			Referenced: []*parsetree.Name{{Spec: 1, Attr: "id"}, {Spec: 1, Attr: "name"}}}},
		Assignments: []parsetree.Assignment{
			{Target: &parsetree.Name{Spec: 1, Attr: "name"}, Value: &parsetree.Literal{Value: "new", Domain: "varchar"}},
		},
		Where: []parsetree.Expr{
			&parsetree.BinaryExpr{Op: parsetree.OpEq, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: int64(1), Domain: "int"}},
		},
	}

	proc, err := optimizer.OptimizeUpdate(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, upd)
	require.NoError(t, err)
	require.Equal(t, xasl.ProcUpdate, proc.Type)
	require.Len(t, proc.ModifyTargets, 1)
}

func TestOptimizeInsertValuesPermutesColumnOrder(t *testing.T) {
	cat := twoClassCatalog()
	ins := &parsetree.Insert{
		Into:    &parsetree.Spec{ID: 1, RangeVar: "customer", Entities: []parsetree.ClassRef{{ClassName: "customer"}}},
		Columns: []*parsetree.Name{{Spec: 1, Attr: "name"}, {Spec: 1, Attr: "id"}},
		Rows: []parsetree.InsertRow{
			{Values: []parsetree.Expr{&parsetree.Literal{Value: "alice", Domain: "varchar"}, &parsetree.Literal{Value: int64(9), Domain: "int"}}},
		},
	}

	proc, err := optimizer.OptimizeInsert(context.Background(), cat, cost.NewDefault(), paramsvc.Default(), nil, ins)
	require.NoError(t, err)
	require.Equal(t, xasl.ProcInsert, proc.Type)
	require.Len(t, proc.InsertRows, 1)
	require.Equal(t, int64(9), proc.InsertRows[0][0].Value, "column id must land in declared position 0 despite being listed second")
	require.Equal(t, "alice", proc.InsertRows[0][1].Value)
}
