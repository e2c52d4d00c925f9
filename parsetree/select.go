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

package parsetree

// JoinType enumerates a FROM-list entry's join relationship to the
// specs before it, matching QO_NODE.pt_join_type (spec §3).
type JoinType int

const (
	JoinNone JoinType = iota // first spec in the FROM list, or a cross-joined spec with no ON
	JoinInner
	JoinLeftOuter
	JoinRightOuter
	JoinCross
)

// ClassRef names a schema class a Spec resolves to (flat_entity_list in
// spec §6; normally length 1, >1 only for a class hierarchy reference).
type ClassRef struct {
	ClassName string
	// ClassInfo is filled in by the caller from the schema catalog
	// (package catalog); the optimizer core only ever reads it.
	ClassInfo any
}

// Spec is one FROM-list entry: a table, a derived table, or a
// sub-query-as-table.
type Spec struct {
	ID        SpecID
	RangeVar  string
	Entities  []ClassRef // nil for a derived table
	Derived   *Select    // nil for a base table
	JoinType  JoinType
	OnCond    []Expr // ON-clause conjuncts; spec §3 "location" n = this spec's 1-based position
	Referenced []*Name // referenced_attrs: every attribute actually projected or predicated

	// UsingIndex models the USING INDEX hint list (spec §4.7): NONE
	// suppresses all non-PK indexes; named hints restrict consideration
	// to those constraints, optionally paired with a key-limit.
	UsingIndex []UsingIndexHint

	// Hint carries node-level planner hints (ORDERED, USE_NL, USE_IDX);
	// the core only threads them through to the query graph (spec §3).
	Hint NodeHint
}

// UsingIndexHint is one entry of a USING INDEX clause.
type UsingIndexHint struct {
	IndexName string // "" for the bare NONE hint
	None      bool
	KeyLimit  Expr // nil if this mention carries no key-limit
}

// NodeHint mirrors the small set of node-level hints spec §3 names.
type NodeHint struct {
	Ordered bool
	UseNL   bool
	UseIdx  bool
}

// SortSpec is one ORDER BY / GROUP BY entry, matched against the select
// list by node equivalence, alias, or integer position (spec §4.12).
type SortSpec struct {
	Expr       Expr
	Pos        int // 1-based position in the select list if matched positionally, else 0
	Desc       bool
	NullsFirst bool
}

// SelectItem is one projected column or expression, with its optional
// alias (used for ORDER BY / GROUP BY alias matching).
type SelectItem struct {
	Expr  Expr
	Alias string
}

// Select is a PT_SELECT node: a FROM list, WHERE conjuncts, and the
// optional GROUP BY / HAVING / ORDER BY / LIMIT clauses.
type Select struct {
	From    []*Spec
	Items   []SelectItem
	Where   []Expr // WHERE conjuncts, "location" 0 (spec §3)
	GroupBy []*SortSpec
	Having  []Expr
	OrderBy []*SortSpec
	// Limit/Offset hold `LIMIT upper[, lower]`; both nil means no limit.
	Limit, Offset Expr
	Distinct      bool
	WithRollup    bool
}

// SetOp names the combinator of a UNION/DIFFERENCE/INTERSECTION
// statement (spec §4.12 proc table).
type SetOp int

const (
	SetOpUnion SetOp = iota
	SetOpDifference
	SetOpIntersection
)

// SetOpSelect is a UNION/DIFFERENCE/INTERSECTION of two statements.
type SetOpSelect struct {
	Op          SetOp
	All         bool
	Left, Right *Select
}

// Assignment is one `col = expr` of an UPDATE statement.
type Assignment struct {
	Target *Name
	Value  Expr
}

// Update is an UPDATE statement: possibly multi-table (spec §4.12 "for
// each class-to-modify").
type Update struct {
	From        []*Spec
	Assignments []Assignment
	Where       []Expr
	OrderBy     []*SortSpec
	Limit       Expr
}

// Delete is a DELETE statement, possibly multi-table.
type Delete struct {
	From    []*Spec
	Targets []SpecID // which FROM-list specs are actually deleted from
	Where   []Expr
	OrderBy []*SortSpec
	Limit   Expr
}

// InsertRow is one VALUES(...) row literal.
type InsertRow struct {
	Values []Expr
}

// Insert is an INSERT ... VALUES or INSERT ... SELECT statement.
type Insert struct {
	Into    *Spec
	Columns []*Name // explicit column list, in source order
	Rows    []InsertRow
	Select  *Select // non-nil for INSERT ... SELECT, mutually exclusive with Rows
}
