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

// Package optimizer ties the Query Graph Builder (package qgraph) and
// Plan Lowering (packages symtab, regu, pred, access, xasl) into one
// entry point: Optimize takes a parse tree and a chosen plan and
// returns an assembled XASL proc, the query optimizer's sole externally
// visible product (spec §1, §4).
package optimizer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ryesql/qo/catalog"
	"github.com/ryesql/qo/optimizer/access"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/paramsvc"
	"github.com/ryesql/qo/optimizer/planchoice"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/regu"
	"github.com/ryesql/qo/optimizer/symtab"
	"github.com/ryesql/qo/optimizer/xasl"
	"github.com/ryesql/qo/parsetree"
)

var log = logrus.WithField("component", "optimizer")

// Optimize runs the full core pipeline (spec §2, §4) over a SELECT
// statement: it builds the query graph, pushes one symbol-table frame,
// lowers the chosen plan's access specs and predicates, and assembles
// the top-level XASL proc. plan may be nil, in which case every node
// falls back to a sequential scan (planchoice.Sequential).
//
// Optimize is deterministic: the same (cat, est, params, plan, tree)
// always produces an XASL tree equal by structural comparison (spec §8
// L1), since every phase it calls is itself a pure function of its
// inputs plus the single arena each qgraph.Env owns for the duration of
// one call.
func Optimize(ctx context.Context, cat catalog.Statistics, est cost.Estimator, params paramsvc.Params, plan *planchoice.ChosenPlan, tree *parsetree.Select) (*xasl.Proc, error) {
	if params.Level.Disabled() {
		return nil, nil
	}

	env, err := qgraph.Build(ctx, cat, est, tree)
	if err != nil {
		return nil, err
	}
	defer env.Free()

	if plan == nil {
		plan = planchoice.Sequential(env)
	}

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))
	r := regu.New(env, stack)

	specs, err := access.BuildList(ctx, env, r, plan, tree.Limit, tree.Offset)
	if err != nil {
		return nil, err
	}

	proc, err := xasl.AssembleSelect(ctx, env, r, specs, tree)
	if err != nil {
		return nil, err
	}

	log.WithField("proc", proc.Type.String()).Debug("plan lowered to XASL")
	return proc, nil
}

// OptimizeUpdate runs the core pipeline over an UPDATE statement (spec
// §4.12): the statement's WHERE/FROM lower exactly as a SELECT's would,
// and the result is wrapped in an UPDATE_PROC over that inner BUILDLIST.
func OptimizeUpdate(ctx context.Context, cat catalog.Statistics, est cost.Estimator, params paramsvc.Params, plan *planchoice.ChosenPlan, upd *parsetree.Update) (*xasl.Proc, error) {
	inner, env, r, err := optimizeInner(ctx, cat, est, params, plan, upd.From, upd.Where, upd.OrderBy, upd.Limit, nil)
	if err != nil {
		return nil, err
	}
	defer env.Free()
	return xasl.AssembleUpdate(ctx, env, r, inner, upd)
}

// OptimizeDelete runs the core pipeline over a DELETE statement (spec
// §4.12).
func OptimizeDelete(ctx context.Context, cat catalog.Statistics, est cost.Estimator, params paramsvc.Params, plan *planchoice.ChosenPlan, del *parsetree.Delete) (*xasl.Proc, error) {
	inner, env, r, err := optimizeInner(ctx, cat, est, params, plan, del.From, del.Where, del.OrderBy, del.Limit, nil)
	if err != nil {
		return nil, err
	}
	defer env.Free()
	return xasl.AssembleDelete(ctx, env, r, inner, del)
}

// OptimizeInsert runs the core pipeline over an INSERT statement (spec
// §4.12): INSERT ... VALUES permutes each row literal into
// declared-attribute order directly; INSERT ... SELECT lowers the inner
// SELECT through the ordinary pipeline first.
func OptimizeInsert(ctx context.Context, cat catalog.Statistics, est cost.Estimator, params paramsvc.Params, plan *planchoice.ChosenPlan, ins *parsetree.Insert) (*xasl.Proc, error) {
	env, err := qgraph.Build(ctx, cat, est, &parsetree.Select{From: []*parsetree.Spec{ins.Into}})
	if err != nil {
		return nil, err
	}
	defer env.Free()
	node := env.Nodes()[0]

	if ins.Select != nil {
		inner, err := Optimize(ctx, cat, est, params, plan, ins.Select)
		if err != nil {
			return nil, err
		}
		return xasl.AssembleInsertSelect(node, inner), nil
	}

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))
	r := regu.New(env, stack)

	return xasl.AssembleInsertValues(ctx, env, r, node, ins)
}

// optimizeInner lowers the FROM/WHERE/ORDER BY/LIMIT shared by UPDATE
// and DELETE through the same access-spec and BUILDLIST assembly path a
// SELECT uses (spec §4.12: "UPDATE_PROC over an inner SELECT
// BUILDLIST"), returning the live Env and Lowerer so the caller can
// lower its own assignment/target expressions against the same symbol
// table.
func optimizeInner(ctx context.Context, cat catalog.Statistics, est cost.Estimator, params paramsvc.Params, plan *planchoice.ChosenPlan, from []*parsetree.Spec, where []parsetree.Expr, orderBy []*parsetree.SortSpec, limit parsetree.Expr, items []parsetree.SelectItem) (*xasl.Proc, *qgraph.Env, *regu.Lowerer, error) {
	sel := &parsetree.Select{From: from, Where: where, OrderBy: orderBy, Limit: limit, Items: items}

	env, err := qgraph.Build(ctx, cat, est, sel)
	if err != nil {
		return nil, nil, nil, err
	}

	if plan == nil {
		plan = planchoice.Sequential(env)
	}

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))
	r := regu.New(env, stack)

	specs, err := access.BuildList(ctx, env, r, plan, sel.Limit, sel.Offset)
	if err != nil {
		env.Free()
		return nil, nil, nil, err
	}

	proc, err := xasl.AssembleSelect(ctx, env, r, specs, sel)
	if err != nil {
		env.Free()
		return nil, nil, nil, err
	}
	return proc, env, r, nil
}
