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

// Package planchoice defines the minimal input contract access-spec and
// XASL assembly consume from the plan search/costing engine, which spec
// §1 places entirely out of scope ("the plan search itself is
// considered external"). This models the "[planner: external]" box in
// the pipeline: the optimizer core never produces a ChosenPlan, only
// consumes one.
package planchoice

import "github.com/ryesql/qo/optimizer/qgraph"

// JoinMethod names how a node is attached to the nodes before it in
// join order.
type JoinMethod int

const (
	JoinMethodNone JoinMethod = iota
	JoinMethodNestedLoop
)

// NodeChoice is one node's slice of a chosen plan: which index (if
// any), its position in join order, its join method, and the
// orderby/groupby-skip and key-limit annotations access-spec lowering
// reads (spec §4.11).
type NodeChoice struct {
	Node       qgraph.NodeID
	Index      *qgraph.IndexEntry // nil selects a sequential scan
	JoinOrder  int
	JoinMethod JoinMethod

	OrderbySkip bool
	GroupbySkip bool
}

// ChosenPlan is the external plan-search contract: one NodeChoice per
// query-graph node.
type ChosenPlan struct {
	Nodes []NodeChoice
}

// ForNode returns the choice for id, or the zero-value choice
// (sequential scan, no annotations, join order 0) if the plan supplied
// none.
func (p *ChosenPlan) ForNode(id qgraph.NodeID) NodeChoice {
	if p != nil {
		for _, c := range p.Nodes {
			if c.Node == id {
				return c
			}
		}
	}
	return NodeChoice{Node: id}
}

// Sequential returns a trivial ChosenPlan selecting a sequential scan
// for every node of env, in FROM-list order — the fallback a caller uses
// when no real plan search has run yet.
func Sequential(env *qgraph.Env) *ChosenPlan {
	cp := &ChosenPlan{}
	for i, n := range env.Nodes() {
		cp.Nodes = append(cp.Nodes, NodeChoice{Node: n.ID, JoinOrder: i})
	}
	return cp
}
