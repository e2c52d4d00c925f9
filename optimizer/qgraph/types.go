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

// Package qgraph implements the Query Graph Builder half of the
// optimizer core (spec §2.2–§2.7): the Environment, the arena-of-structs
// graph it owns (nodes, segments, terms, indexes, partitions,
// subqueries), and the phases that populate it from a parse tree. These
// stay in one package, as they do in the source's single
// query_graph.c, because every phase after the first mutates state the
// earlier phases own (bitsets keyed by indices assigned during the fill
// walk) — splitting them across packages would just turn every
// cross-phase call into an import cycle.
package qgraph

import "github.com/ryesql/qo/optimizer/bitset"
import (
	"github.com/ryesql/qo/catalog"
	"github.com/ryesql/qo/parsetree"
)

// NodeID, SegID, TermID, PartitionID, and SubqueryID are the typed
// indices that replace the source's raw-pointer-plus-index duality
// (spec §9): every cross-reference in this package is one of these, never
// a Go pointer to another arena-owned struct, so a bitset can always be
// keyed directly off it.
type NodeID int
type SegID int
type TermID int
type PartitionID int
type SubqueryID int

// Invalid is the sentinel for "no such id," used the way the source uses
// a null QO_NODE*/QO_SEGMENT*/QO_TERM* pointer.
const Invalid = -1

// TermClass is the classification assigned by the term analyzer and
// revised by the outer-join classifier (spec §3 classification table).
type TermClass int

const (
	ClassSarg TermClass = iota
	ClassJoin
	ClassDuringJoin
	ClassAfterJoin
	ClassTotallyAfterJoin
	ClassOther
	ClassDummyJoin
)

func (c TermClass) String() string {
	switch c {
	case ClassSarg:
		return "SARG"
	case ClassJoin:
		return "JOIN"
	case ClassDuringJoin:
		return "DURING-JOIN"
	case ClassAfterJoin:
		return "AFTER-JOIN"
	case ClassTotallyAfterJoin:
		return "TOTALLY-AFTER-JOIN"
	case ClassOther:
		return "OTHER"
	case ClassDummyJoin:
		return "DUMMY-JOIN"
	default:
		return "?"
	}
}

// TermJoinType is a JOIN-class term's join kind (spec §3 Term
// "join_type"), independent of the owning node's pt_join_type.
type TermJoinType int

const (
	JoinTermNone TermJoinType = iota
	JoinTermInner
	JoinTermLeft
	JoinTermRight
	JoinTermOuter
)

// TermFlag is the small set of per-term boolean flags spec §3 names.
type TermFlag uint16

const (
	FlagSinglePred TermFlag = 1 << iota
	FlagEqualOp
	FlagRangeList
	FlagNonIdxSargColl
	FlagCopyPTExpr
)

func (f TermFlag) Has(bit TermFlag) bool { return f&bit != 0 }

// Term is one conjunct of an ON-cond or WHERE clause (spec §3 Term).
type Term struct {
	ID       TermID
	Expr     parsetree.Expr
	Location int // 0 for WHERE, n>0 for the ON-clause of the n-th spec

	Class    TermClass
	JoinType TermJoinType

	Segs  bitset.Set
	Nodes bitset.Set

	// Head and Tail are the two endpoint nodes for a JOIN-class term,
	// with Head < Tail always (spec §3 invariant, §8 I2). Both are
	// Invalid for any other class.
	Head, Tail NodeID

	Selectivity float64 // 0..1
	Rank        int     // cost-model bucket, spec §4.4

	// CanUseIndex is 0 (no), 1 (LHS only), or 2 (both sides indexable,
	// attr op attr).
	CanUseIndex int
	// IndexSeg names up to two candidate indexable segments; Invalid
	// where absent.
	IndexSeg [2]SegID

	Subqueries bitset.Set

	Flags TermFlag

	// DepSet is the outer-join dependency closure computed by the
	// outer-join classifier (spec §4.5, §8 I5); empty until that phase
	// runs.
	DepSet bitset.Set
}

// Node is one FROM-list SPEC (spec §3 Node).
type Node struct {
	ID       NodeID
	Spec     *parsetree.Spec
	Name     string // range-variable name
	Info     *catalog.ClassInfo // nil for a derived table
	OIDSeg   SegID              // Invalid if this node has no OID segment

	NCard, TCard float64

	Segs  bitset.Set
	Sargs bitset.Set

	DepSet, OuterDepSet bitset.Set

	// Sargable is false iff this node is the nullable side of an outer
	// join: its non-ON predicates must run AFTER the join, not as scan
	// sargs (spec §3 Node "sargable").
	Sargable bool

	JoinType parsetree.JoinType // pt_join_type

	Indexes    []*IndexEntry
	UsingIndex []parsetree.UsingIndexHint
	Hint       parsetree.NodeHint
}

// Segment is one referenced attribute column of a node, or its implicit
// OID column (spec §3 Segment).
type Segment struct {
	ID   SegID
	Head NodeID
	Name *parsetree.Name // nil for a synthetic OID segment with no explicit reference
	Attr string          // attribute name; "@oid" for the OID segment

	AttrInfo *catalog.AttrInfo // aggregated per-attribute statistics, nil if unavailable
	IsOID    bool

	IndexTerms bitset.Set
}

// IndexEntry is one applicable constraint on a node (spec §3 Index
// entry).
type IndexEntry struct {
	Constraint catalog.IndexConstraint
	Node       NodeID

	// SegIdx[k] is the segment index bound to column k of the
	// constraint, or Invalid if column k did not bind to any segment
	// of this node.
	SegIdx []SegID

	SegEqualTerms []bitset.Set // per column, terms restricting it by equality
	SegOtherTerms []bitset.Set // per column, terms restricting it by range

	// RangelistSegIdx is the column index (into SegIdx) carrying a
	// RANGE(...) list, or Invalid if none; at most one column may.
	RangelistSegIdx int

	Terms bitset.Set // union of terms using this index

	// CoverSegments is true iff every segment of this node other than
	// its OID segment is bound to one of this index's columns
	// (index-only scan candidate).
	CoverSegments bool

	UseDescending bool
	OrderbySkip   bool
	GroupbySkip   bool
	KeyLimit      parsetree.Expr
}

// Partition is a maximal set of nodes reachable via JOIN terms (spec §3
// Partition).
type Partition struct {
	ID           PartitionID
	Nodes        bitset.Set
	Edges        bitset.Set // term indices of class JOIN within this partition
	Dependencies bitset.Set // external node dependencies

	// RelIndex maps a member node's global NodeID to a partition-local,
	// contiguous relative index, so the planner can key a join-info
	// array by a partition-local bitset (spec §3 Partition).
	RelIndex map[NodeID]int
}

// Subquery is one level-1 correlated sub-query found under a term or
// spec (spec §3 Subquery descriptor).
type Subquery struct {
	ID    SubqueryID
	Expr  *parsetree.Subquery
	Segs  bitset.Set
	Nodes bitset.Set
	Terms bitset.Set // back-edges: terms containing this subquery
}
