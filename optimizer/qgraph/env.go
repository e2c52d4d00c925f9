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

package qgraph

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ryesql/qo/catalog"
	"github.com/ryesql/qo/optimizer/arena"
	"github.com/ryesql/qo/optimizer/bitset"
	"github.com/ryesql/qo/optimizer/cost"
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/parsetree"
)

var log = logrus.WithField("component", "qgraph")

// maxNodes is the hard cap spec §4.2 validate() enforces.
const maxNodes = 64

// Sizes is the result of the size walk (spec §4.2/§4.3): exact counts
// the fill walk must reproduce, used to preallocate fixed arrays once so
// no element is ever reallocated mid-build (spec §3 "indices are
// assigned at construction time and never reused").
type Sizes struct {
	Nodes, Segs, Terms, Subqueries int
}

// Env owns every node, segment, term, index, partition, and subquery
// built for one optimization call (spec §2.2, §3 Lifecycle). Its
// lifetime is bounded by that one call; Free releases the arena in bulk.
type Env struct {
	Arena     *arena.Arena
	Catalog   catalog.Statistics
	Estimator cost.Estimator

	// Infinity is computed once per Env (spec §9): a constant of the
	// selectivity/cost type used for comparisons, not process-wide
	// mutable state the way the source's QO_INFINITY global is.
	Infinity float64

	nodes      []*Node
	segs       []*Segment
	terms      []*Term
	partitions []*Partition
	subqueries []*Subquery

	sizes Sizes
	names      nameIndex                    // built once by buildGraph; resolves a Name to its segment
	nodeBySpec map[parsetree.SpecID]NodeID // built once by buildGraph

	// fill-pass counters, checked by checkFillComplete when the fill walk
	// ends: nodes must equal sizes.Nodes; segments and terms may fall
	// short of their reservations but never exceed them.
	filledNodes, filledSegs, filledTerms, filledSubqueries int

	termsReordered bool // discoverEdges (§4.6) runs exactly once
}

// NewEnv validates sizing for tree and allocates an Env with exactly the
// capacity the sizing pass computed (spec §4.2 new/validate/init). On
// failure, nothing is allocated — the caller's optimization attempt
// should return "no plan" without ever constructing an Env (spec §7,
// structural rejection).
func NewEnv(cat catalog.Statistics, est cost.Estimator, tree *parsetree.Select) (*Env, error) {
	sizes, err := sizeSelect(tree)
	if err != nil {
		return nil, err
	}

	env := &Env{
		Arena:      arena.New(),
		Catalog:    cat,
		Estimator:  est,
		Infinity:   1e18,
		sizes:      sizes,
		nodes:      make([]*Node, 0, sizes.Nodes),
		segs:       make([]*Segment, 0, sizes.Segs),
		terms:      make([]*Term, 0, sizes.Terms),
		subqueries: make([]*Subquery, 0, sizes.Subqueries),
	}
	log.WithFields(logrus.Fields{
		"nodes": sizes.Nodes, "segs": sizes.Segs, "terms": sizes.Terms, "subqueries": sizes.Subqueries,
	}).Debug("env sized")
	return env, nil
}

// Free releases everything the Env owns. It is safe to call more than
// once; the second call is a no-op the way a second catch_ escape on an
// already-torn-down Env would be.
func (e *Env) Free() {
	if e.Arena == nil {
		return
	}
	e.Arena.Reset()
	e.nodes = nil
	e.segs = nil
	e.terms = nil
	e.partitions = nil
	e.subqueries = nil
	e.Arena = nil
}

// NNodes, NSegs, NTerms, NPartitions, NSubqueries return the current
// live counts (spec §8 I1).
func (e *Env) NNodes() int       { return len(e.nodes) }
func (e *Env) NSegs() int        { return len(e.segs) }
func (e *Env) NTerms() int       { return len(e.terms) }
func (e *Env) NPartitions() int  { return len(e.partitions) }
func (e *Env) NSubqueries() int  { return len(e.subqueries) }

func (e *Env) Node(id NodeID) *Node           { return e.nodes[id] }
func (e *Env) Segment(id SegID) *Segment      { return e.segs[id] }
func (e *Env) Term(id TermID) *Term           { return e.terms[id] }
func (e *Env) Partition(id PartitionID) *Partition { return e.partitions[id] }
func (e *Env) Subquery(id SubqueryID) *Subquery    { return e.subqueries[id] }

func (e *Env) Nodes() []*Node            { return e.nodes }
func (e *Env) Segments() []*Segment      { return e.segs }
func (e *Env) Terms() []*Term            { return e.terms }
func (e *Env) Partitions() []*Partition  { return e.partitions }
func (e *Env) Subqueries() []*Subquery   { return e.subqueries }

// newBitset allocates a bitset sized to the element kind's sizing-pass
// capacity, so every Node/Term/Segment bitset is wide enough for every
// element the fill walk will ever add, with no reallocation.
func (e *Env) newNodeBitset() bitset.Set { return bitset.New(e.sizes.Nodes) }
func (e *Env) newSegBitset() bitset.Set  { return bitset.New(e.sizes.Segs) }
func (e *Env) newTermBitset() bitset.Set { return bitset.New(e.sizes.Terms) }
func (e *Env) newSubqueryBitset() bitset.Set { return bitset.New(e.sizes.Subqueries) }

// addNode appends a fully-formed node and assigns its ID. It enforces
// spec §3's FROM-list-order invariant: node ids are handed out in
// exactly the order addNode is called, which the graph builder calls in
// FROM-list order.
func (e *Env) addNode(n *Node) *Node {
	n.ID = NodeID(len(e.nodes))
	e.nodes = append(e.nodes, n)
	e.filledNodes++
	return n
}

func (e *Env) addSegment(s *Segment) *Segment {
	s.ID = SegID(len(e.segs))
	e.segs = append(e.segs, s)
	e.filledSegs++
	return s
}

func (e *Env) addTerm(t *Term) *Term {
	t.ID = TermID(len(e.terms))
	e.terms = append(e.terms, t)
	e.filledTerms++
	return t
}

func (e *Env) addSubquery(s *Subquery) *Subquery {
	s.ID = SubqueryID(len(e.subqueries))
	e.subqueries = append(e.subqueries, s)
	e.filledSubqueries++
	return s
}

// checkFillComplete is called once at the end of graph construction. It
// requires the filled node count to equal the sized one, and the filled
// segment and term counts to stay within their sized reservations (the
// reserved dummy-join and always-false slots are not always used).
// Subquery counts are not checked.
func (e *Env) checkFillComplete() error {
	if e.filledNodes != e.sizes.Nodes {
		return qoerr.ErrAssertion.New("fill pass produced a different node count than the size pass")
	}
	if e.filledSegs > e.sizes.Segs {
		return qoerr.ErrAssertion.New("fill pass produced more segments than the size pass reserved")
	}
	if e.filledTerms > e.sizes.Terms {
		return qoerr.ErrAssertion.New("fill pass produced more terms than the size pass reserved")
	}
	return nil
}

// Build runs the full Query Graph Builder pipeline of spec §2 over tree:
// graph construction, term classification, outer-join reclassification,
// edge & partition discovery, and index discovery. It is the one
// exported entry point callers (including the top-level optimizer
// package) use.
func Build(ctx context.Context, cat catalog.Statistics, est cost.Estimator, tree *parsetree.Select) (*Env, error) {
	env, err := NewEnv(cat, est, tree)
	if err != nil {
		return nil, err
	}

	if err := buildGraph(env, tree); err != nil {
		env.Free()
		return nil, err
	}
	if err := env.checkFillComplete(); err != nil {
		env.Free()
		return nil, err
	}
	if err := analyzeTerms(ctx, env); err != nil {
		env.Free()
		return nil, err
	}
	classifyOuterJoins(env)
	if err := discoverEdgesAndPartitions(env); err != nil {
		env.Free()
		return nil, err
	}
	if err := discoverIndexes(env); err != nil {
		env.Free()
		return nil, err
	}
	return env, nil
}
