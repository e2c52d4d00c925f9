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

// partition.go implements edge and partition discovery (spec §4.6): it
// simplifies away always-true conjuncts, groups JOIN-class terms into
// edges sorted by selectivity, reorders the term array exactly once
// around that grouping, and unions connected nodes into partitions via
// union-find.
package qgraph

import (
	"sort"

	"github.com/ryesql/qo/optimizer/bitset"
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/parsetree"
)

// partitionWordOverhead is log2(sizeof(uintptr)) + 2: a partition's
// relative node index must fit a tagged word alongside a pointer-sized
// field elsewhere in the planner, the same packing constraint spec §3's
// Partition size note describes.
const partitionWordOverhead = 5

// maxPartitionNodes bounds one partition's member count so a
// partition-local bitset never needs more than one machine word.
const maxPartitionNodes = bitset.WordBits - partitionWordOverhead

func isAlwaysTrueExpr(e parsetree.Expr) bool {
	lit, ok := e.(*parsetree.Literal)
	if !ok {
		return false
	}
	b, ok := lit.Value.(bool)
	return ok && b
}

// discoverEdgesAndPartitions simplifies always-true terms, reorders the
// term array once around the JOIN-class edges, and unions connected
// nodes into partitions.
func discoverEdgesAndPartitions(env *Env) error {
	simplifyAlwaysTrueTerms(env)
	reorderTermsForEdges(env)
	return buildPartitions(env)
}

// simplifyAlwaysTrueTerms reclassifies a term proven always-true to
// ClassOther: it can neither restrict a scan as a SARG nor connect two
// nodes as a JOIN edge, so it is retired from both without being
// deleted (term indices never move except in reorderTermsForEdges,
// spec §9).
func simplifyAlwaysTrueTerms(env *Env) {
	for _, t := range env.terms {
		if t.Expr == nil || !isAlwaysTrueExpr(t.Expr) {
			continue
		}
		if t.Class == ClassSarg {
			if id := t.Nodes.First(); id >= 0 {
				env.nodes[id].Sargs.Remove(int(t.ID))
			}
		}
		t.Class = ClassOther
		t.Head, t.Tail = Invalid, Invalid
	}
}

// reorderTermsForEdges groups every JOIN/DUMMY-JOIN term at the front
// of the term array, sorted by descending selectivity (the least
// restrictive edges first), followed by every other term in its original
// relative order.
// This is the single term reorder spec §9 says happens exactly once;
// every bitset keyed by TermID is remapped through the same
// permutation so no caller ever observes a stale index.
func reorderTermsForEdges(env *Env) {
	if env.termsReordered {
		return
	}
	env.termsReordered = true

	n := len(env.terms)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta, tb := env.terms[order[a]], env.terms[order[b]]
		ea, eb := isEdgeTerm(ta), isEdgeTerm(tb)
		if ea != eb {
			return ea // edges sort before non-edges
		}
		if ea && eb {
			return ta.Selectivity > tb.Selectivity // descending
		}
		return false // stable: preserve relative order otherwise
	})

	oldToNew := make([]int, n)
	newTerms := make([]*Term, n)
	for newID, oldID := range order {
		oldToNew[oldID] = newID
		t := env.terms[oldID]
		t.ID = TermID(newID)
		newTerms[newID] = t
	}
	env.terms = newTerms

	for _, node := range env.nodes {
		node.Sargs = remapTermBitset(env, node.Sargs, oldToNew)
	}
	for _, sq := range env.subqueries {
		sq.Terms = remapTermBitset(env, sq.Terms, oldToNew)
	}
}

func isEdgeTerm(t *Term) bool {
	return t.Class == ClassJoin || t.Class == ClassDummyJoin
}

func remapTermBitset(env *Env, old bitset.Set, oldToNew []int) bitset.Set {
	out := env.newTermBitset()
	for id := old.First(); id >= 0; id = old.Next(id) {
		out.Add(oldToNew[id])
	}
	return out
}

// buildPartitions unions every pair of nodes joined by an edge term via
// union-find, then materializes one Partition per resulting component.
func buildPartitions(env *Env) error {
	parent := make([]int, len(env.nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, t := range env.terms {
		if isEdgeTerm(t) && t.Head != Invalid && t.Tail != Invalid {
			union(int(t.Head), int(t.Tail))
		}
	}

	byRoot := map[int][]int{}
	for i := range env.nodes {
		r := find(i)
		byRoot[r] = append(byRoot[r], i)
	}

	roots := make([]int, 0, len(byRoot))
	for r := range byRoot {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	for _, r := range roots {
		members := byRoot[r]
		if len(members) > maxPartitionNodes {
			return qoerr.ErrPartitionTooLarge.New(len(members), maxPartitionNodes)
		}
		p := &Partition{
			Nodes:        env.newNodeBitset(),
			Edges:        env.newTermBitset(),
			Dependencies: env.newNodeBitset(),
			RelIndex:     make(map[NodeID]int, len(members)),
		}
		for rel, nodeID := range members {
			p.Nodes.Add(nodeID)
			p.RelIndex[NodeID(nodeID)] = rel
			for id := env.nodes[nodeID].DepSet.First(); id >= 0; id = env.nodes[nodeID].DepSet.Next(id) {
				if !p.Nodes.Test(id) {
					p.Dependencies.Add(id)
				}
			}
		}
		for _, t := range env.terms {
			if isEdgeTerm(t) && t.Head != Invalid && p.Nodes.Test(int(t.Head)) && p.Nodes.Test(int(t.Tail)) {
				p.Edges.Add(int(t.ID))
			}
		}
		p.ID = PartitionID(len(env.partitions))
		env.partitions = append(env.partitions, p)
	}
	return nil
}
