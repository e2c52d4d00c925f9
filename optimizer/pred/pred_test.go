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

package pred_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryesql/qo/catalog/catalogtest"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/pred"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/optimizer/symtab"
	"github.com/ryesql/qo/parsetree"
)

func oneClassLowerer(t *testing.T) (*qgraph.Env, *regu.Lowerer) {
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
	}
	env, err := qgraph.Build(context.Background(), cat, cost.NewDefault(), tree)
	require.NoError(t, err)

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))
	return env, regu.New(env, stack)
}

func eq(attr string, v int64) parsetree.Expr {
	return &parsetree.BinaryExpr{Op: parsetree.OpEq, Left: &parsetree.Name{Spec: 1, Attr: attr}, Right: &parsetree.Literal{Value: v, Domain: "int"}}
}

func TestBuildFoldsConjunctsRightLinear(t *testing.T) {
	env, r := oneClassLowerer(t)
	defer env.Free()

	p, err := pred.Build(context.Background(), r, []parsetree.Expr{eq("id", 1), eq("id", 2), eq("id", 3)})
	require.NoError(t, err)

	require.Equal(t, pred.TypeAnd, p.Type)
	require.Equal(t, int64(1), p.Left.Rhs.Value)
	require.Equal(t, pred.TypeAnd, p.Right.Type)
	require.Equal(t, int64(2), p.Right.Left.Rhs.Value)
	require.Equal(t, pred.TypeTerm, p.Right.Right.Type)
	require.Equal(t, int64(3), p.Right.Right.Rhs.Value)
}

func TestBuildFoldsDisjunctsRightLinear(t *testing.T) {
	env, r := oneClassLowerer(t)
	defer env.Free()

	or := &parsetree.BinaryExpr{Op: parsetree.OpOr, Left: eq("id", 1),
		Right: &parsetree.BinaryExpr{Op: parsetree.OpOr, Left: eq("id", 2), Right: eq("id", 3)}}

	p, err := pred.Build(context.Background(), r, []parsetree.Expr{or})
	require.NoError(t, err)

	require.Equal(t, pred.TypeOr, p.Type)
	require.Equal(t, int64(1), p.Left.Rhs.Value)
	require.Equal(t, pred.TypeOr, p.Right.Type)
	require.Equal(t, int64(2), p.Right.Left.Rhs.Value)
	require.Equal(t, int64(3), p.Right.Right.Rhs.Value)
}

func TestBuildPropagatesNumberingContinueFlag(t *testing.T) {
	env, r := oneClassLowerer(t)
	defer env.Free()

	instnum := &parsetree.BinaryExpr{Op: parsetree.OpLe, Left: &parsetree.Pseudo{Op: parsetree.OpInstNum}, Right: &parsetree.Literal{Value: int64(10), Domain: "int"}}

	p, err := pred.Build(context.Background(), r, []parsetree.Expr{eq("id", 1), instnum})
	require.NoError(t, err)
	require.True(t, p.Continue, "a conjunct referencing INST_NUM must set the continue bit on the whole chain")
	require.False(t, p.Left.Continue, "a plain equality leaf carries no continue bit of its own")
}

func TestBuildRejectsUnsupportedTopLevelOperator(t *testing.T) {
	env, r := oneClassLowerer(t)
	defer env.Free()

	bad := &parsetree.BinaryExpr{Op: parsetree.OpPlus, Left: &parsetree.Name{Spec: 1, Attr: "id"}, Right: &parsetree.Literal{Value: int64(1), Domain: "int"}}
	_, err := pred.Build(context.Background(), r, []parsetree.Expr{bad})
	require.Error(t, err)
}
