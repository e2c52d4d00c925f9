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

// Package cost defines the external cost-estimator seam the term
// analyzer and index discovery call into (spec §4.4: "selectivity is
// computed from an external cost estimator"; spec §1 places the
// planner/costing engine itself out of scope). It is grounded on
// sql/memo's Coster interface
// (aperturerobotics-go-mysql-server/sql/memo/memo.go:
// `EstimateCost(*sql.Context, RelExpr, sql.StatsProvider) (float64, error)`),
// adapted from "cost one physical operator" to "selectivity of one term
// / cost of one index," which is what this core's callers need.
package cost

import (
	"context"

	"github.com/ryesql/qo/catalog"
	"github.com/ryesql/qo/parsetree"
)

// TermShape is the minimal view of a term the Estimator needs to guess
// its selectivity, without depending on the qgraph package, whose term
// analyzer in turn depends on this one.
type TermShape struct {
	Op Op
	// Attr is the attribute statistics of the indexable column, or nil
	// if the term touches no single catalogued attribute (e.g. a
	// function-of-column comparison).
	Attr *catalog.AttrInfo
	// RangeListLen is the number of legs for an IN(...)-shaped RANGE;
	// 0 for anything else.
	RangeListLen int
}

// Op re-exports parsetree.Op so callers don't need to import parsetree
// just to build a TermShape.
type Op = parsetree.Op

// Estimator guesses selectivity and index access cost from catalog
// statistics. A real system plugs in a histogram-aware implementation;
// Default below is the fallback this module ships so it is runnable
// without one, matching the spec's own fallback language for derived
// table cardinality (spec §3 Node cardinalities).
type Estimator interface {
	// Selectivity estimates the fraction of rows a term passes, in
	// (0, 1]. Implementations should never return 0 (spec §4.6 clamps
	// a node's selectivity floor at 1/ncard, never lower).
	Selectivity(ctx context.Context, shape TermShape, ncard float64) (float64, error)

	// IndexCost estimates the row and page cost of a b-tree access
	// through idx given nEqualCols leading equality-bound columns and
	// whether the final bound is a range.
	IndexCost(ctx context.Context, ci *catalog.ClassInfo, idx catalog.IndexConstraint, nEqualCols int, hasRange bool) (rows, pages float64, err error)
}

// Default is a histogram-free Estimator: equality selectivity is
// 1/ndistinct when known, otherwise a fixed guess; ranges and LIKE get
// fixed fractions. This mirrors the kind of heuristic a cost-model
// fallback path uses when no real statistics are available, not a
// faithful reproduction of any particular optimizer's histogram math.
type Default struct {
	// UnknownEquality is used when Attr or its NDistinct is unavailable.
	UnknownEquality float64
	// RangeFraction is used for <,<=,>,>=, and BETWEEN.
	RangeFraction float64
	// LikeFraction is used for LIKE/RLIKE.
	LikeFraction float64
}

// NewDefault returns a Default estimator with the fixed fractions this
// module uses throughout its own tests: 1/10 for an unknown-cardinality
// equality, 1/3 for a range, 1/4 for a LIKE.
func NewDefault() *Default {
	return &Default{
		UnknownEquality: 0.1,
		RangeFraction:   1.0 / 3.0,
		LikeFraction:    0.25,
	}
}

func (d *Default) Selectivity(_ context.Context, shape TermShape, ncard float64) (float64, error) {
	floor := 1.0
	if ncard >= 1 {
		floor = 1.0 / ncard
	}

	var sel float64
	switch shape.Op {
	case parsetree.OpEq:
		if shape.Attr != nil && shape.Attr.NDistinct > 0 {
			sel = 1.0 / float64(shape.Attr.NDistinct)
		} else {
			sel = d.UnknownEquality
		}
	case parsetree.OpNe:
		sel = 1.0
		if shape.Attr != nil && shape.Attr.NDistinct > 0 {
			sel = 1.0 - 1.0/float64(shape.Attr.NDistinct)
		}
	case parsetree.OpLt, parsetree.OpLe, parsetree.OpGt, parsetree.OpGe, parsetree.OpBetween, parsetree.OpRange:
		sel = d.RangeFraction
	case parsetree.OpIn:
		n := shape.RangeListLen
		if n < 1 {
			n = 1
		}
		per := d.UnknownEquality
		if shape.Attr != nil && shape.Attr.NDistinct > 0 {
			per = 1.0 / float64(shape.Attr.NDistinct)
		}
		sel = per * float64(n)
		if sel > 1 {
			sel = 1
		}
	case parsetree.OpLike, parsetree.OpRLike:
		sel = d.LikeFraction
	case parsetree.OpIsNull:
		sel = d.UnknownEquality
	case parsetree.OpIsNotNull:
		sel = 1 - d.UnknownEquality
	default:
		sel = 1.0
	}

	if sel < floor {
		sel = floor
	}
	if sel > 1 {
		sel = 1
	}
	return sel, nil
}

func (d *Default) IndexCost(_ context.Context, ci *catalog.ClassInfo, idx catalog.IndexConstraint, nEqualCols int, hasRange bool) (rows, pages float64, err error) {
	rows = ci.NCard
	for i := 0; i < nEqualCols && i < len(idx.Attrs); i++ {
		if attr, ok := ci.AttrByID(idx.Attrs[i]); ok && attr.NDistinct > 0 {
			rows /= float64(attr.NDistinct)
		} else {
			rows *= d.UnknownEquality
		}
	}
	if hasRange {
		rows *= d.RangeFraction
	}
	if rows < 1 {
		rows = 1
	}
	pages = rows/50 + 2 // fixed fanout guess, matches the spec's NOMINAL_HEAP_SIZE-style rough page estimate
	return rows, pages, nil
}
