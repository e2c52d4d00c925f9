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

package symtab_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ryesql/qo/catalog/catalogtest"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/symtab"
	"github.com/ryesql/qo/parsetree"
)

func oneClassEnv(t *testing.T) *qgraph.Env {
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
	return env
}

func TestFrameBuildsOneHolderPerSegment(t *testing.T) {
	env := oneClassEnv(t)
	defer env.Free()

	f := symtab.NewFrame(env)
	ti, ok := f.TableInfo(env.Node(0).ID)
	require.True(t, ok)
	require.Len(t, ti.Holders, env.Node(0).Segs.Cardinality())
}

func TestStackResolveFindsCurrentFrameUncorrelated(t *testing.T) {
	env := oneClassEnv(t)
	defer env.Free()

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))

	h, node, level, err := stack.Resolve(&parsetree.Name{Spec: 1, Attr: "name"})
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, env.Node(0).ID, node)
	require.Equal(t, 0, level, "a reference into the current frame is uncorrelated")
}

func TestStackResolveWalksOutwardForCorrelatedReference(t *testing.T) {
	env := oneClassEnv(t)
	defer env.Free()

	cat := catalogtest.New()
	cat.AddClass(catalogtest.NewClass("t2", 2, 10).Attr(1, "k", "int", false, 10).Build())
	sub, err := qgraph.Build(context.Background(), cat, cost.NewDefault(), &parsetree.Select{
		From: []*parsetree.Spec{{
			ID: 2, RangeVar: "t2",
			Entities:   []parsetree.ClassRef{{ClassName: "t2"}},
			Referenced: []*parsetree.Name{{Spec: 2, Attr: "k"}},
		}},
	})
	require.NoError(t, err)
	defer sub.Free()

	outer := symtab.NewStack()
	outer.Push(symtab.NewFrame(env))
	outer.Push(symtab.NewFrame(sub)) // the nested sub-query's own frame, which has no spec 1

	_, _, level, err := outer.Resolve(&parsetree.Name{Spec: 1, Attr: "id"})
	require.NoError(t, err)
	require.Equal(t, 1, level, "spec 1 is found one frame out, so the reference is correlated")
}

func TestStackResolveUnknownSpecFails(t *testing.T) {
	env := oneClassEnv(t)
	defer env.Free()

	stack := symtab.NewStack()
	stack.Push(symtab.NewFrame(env))

	_, _, _, err := stack.Resolve(&parsetree.Name{Spec: 99, Attr: "id"})
	require.Error(t, err)
}
