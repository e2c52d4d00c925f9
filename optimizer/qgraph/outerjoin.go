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

// outerjoin.go implements the outer-join classifier (spec §4.5): it
// computes each nullable node's dependency closure and reclassifies any
// WHERE-clause term that reaches a nullable node, since such a term can
// only be evaluated after that node's outer join has padded its
// unmatched rows with NULLs — evaluating it as a pre-join SARG or as an
// ordinary JOIN edge would silently turn the outer join into an inner
// one.
package qgraph

import "github.com/ryesql/qo/parsetree"

// classifyOuterJoins fills in Node.DepSet/OuterDepSet and reclassifies
// WHERE terms that reach a nullable node to ClassAfterJoin (spec §8 I5:
// DepSet only grows as nodes are added, never shrinks).
func classifyOuterJoins(env *Env) {
	nullable := env.newNodeBitset()
	for i, n := range env.nodes {
		if !n.Sargable {
			nullable.Add(i)
		}
	}

	for i, n := range env.nodes {
		if n.Sargable {
			continue
		}
		preserving := preservingSide(env, i)
		if preserving == Invalid {
			continue
		}
		n.DepSet.Add(int(preserving))
		n.DepSet.Union(env.nodes[preserving].DepSet)
		n.OuterDepSet = n.DepSet.Clone()
	}

	for _, t := range env.terms {
		if t.Location != 0 {
			continue // ON-cond terms are handled by DURING-JOIN classification, not here
		}
		if !t.Nodes.IntersectsTest(nullable) {
			continue
		}
		if t.Class == ClassAfterJoin || t.Class == ClassTotallyAfterJoin {
			continue // a pseudo-column term already needs to run at least this late
		}
		t.Class = ClassAfterJoin
		t.DepSet = env.newNodeBitset()
		for id := t.Nodes.First(); id >= 0; id = t.Nodes.Next(id) {
			if nullable.Test(id) {
				t.DepSet.Union(env.nodes[id].DepSet)
			}
		}
	}
}

// preservingSide returns the node id a nullable node n (at index i)
// depends on not being null-padded away, or Invalid if n is not
// actually nullable. LEFT OUTER makes the spec itself nullable, so its
// preserving side is its predecessor; RIGHT OUTER makes the predecessor
// nullable, so the predecessor's preserving side is this spec.
func preservingSide(env *Env, i int) NodeID {
	if env.nodes[i].JoinType == parsetree.JoinLeftOuter && i > 0 {
		return NodeID(i - 1)
	}
	// n is nullable because its successor declared RIGHT OUTER against
	// it (markSargability), never because n itself is RIGHT OUTER.
	if i+1 < len(env.nodes) && env.nodes[i+1].JoinType == parsetree.JoinRightOuter {
		return NodeID(i + 1)
	}
	return Invalid
}
