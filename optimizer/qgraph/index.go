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

// index.go implements index discovery (spec §4.7): binding a class's
// constraints to a node's segments, classifying which terms restrict
// each bound column by equality versus range, detecting an index-only
// (covering) scan, and applying USING INDEX hint precedence.
package qgraph

import (
	"github.com/ryesql/qo/catalog"
	"github.com/ryesql/qo/optimizer/bitset"
	"github.com/ryesql/qo/parsetree"
)

// discoverIndexes populates Node.Indexes for every non-derived node
// that has catalog info, honoring each node's USING INDEX hint list.
func discoverIndexes(env *Env) error {
	for _, n := range env.nodes {
		if n.Info == nil {
			continue
		}
		allowed, only := usingIndexFilter(n.UsingIndex)
		for _, c := range n.Info.Indexes {
			if !allowed && !c.PrimaryKey {
				continue // bare USING INDEX NONE: no non-PK index considered
			}
			if only != nil {
				if lim, ok := only[c.Name]; ok {
					n.Indexes = append(n.Indexes, bindIndex(env, n, c, lim))
				}
				continue
			}
			n.Indexes = append(n.Indexes, bindIndex(env, n, c, nil))
		}
	}
	return nil
}

// usingIndexFilter interprets a node's USING INDEX hint list (spec
// §4.7): a bare NONE suppresses every non-PK constraint; named hints
// restrict consideration to exactly those, each optionally paired with
// a key-limit expression. No hints at all means every constraint is a
// candidate.
func usingIndexFilter(hints []parsetree.UsingIndexHint) (allowNonPK bool, only map[string]parsetree.Expr) {
	if len(hints) == 0 {
		return true, nil
	}
	only = make(map[string]parsetree.Expr)
	for _, h := range hints {
		if h.None {
			return false, nil
		}
		only[h.IndexName] = h.KeyLimit
	}
	return true, only
}

// bindIndex binds one index constraint's ordered attribute list to n's
// segments, classifying which terms restrict each bound column by
// equality versus range, and detecting a rangelist (IN/RANGE) column
// and index-only coverage.
func bindIndex(env *Env, n *Node, c catalog.IndexConstraint, keyLimit parsetree.Expr) *IndexEntry {
	ie := &IndexEntry{
		Constraint:      c,
		Node:            n.ID,
		SegIdx:          make([]SegID, len(c.Attrs)),
		SegEqualTerms:   make([]bitset.Set, len(c.Attrs)),
		SegOtherTerms:   make([]bitset.Set, len(c.Attrs)),
		RangelistSegIdx: Invalid,
		Terms:           env.newTermBitset(),
		KeyLimit:        keyLimit,
	}

	boundSegs := env.newSegBitset()
	for k, attrID := range c.Attrs {
		ie.SegIdx[k] = Invalid
		ie.SegEqualTerms[k] = env.newTermBitset()
		ie.SegOtherTerms[k] = env.newTermBitset()

		attr, ok := n.Info.AttrByID(attrID)
		if !ok {
			continue
		}
		segID, ok := env.names.lookup(n.Spec.ID, attr.Name)
		if !ok {
			continue
		}
		ie.SegIdx[k] = segID
		boundSegs.Add(int(segID))

		for _, t := range termsOnSegment(env, n, segID) {
			ie.Terms.Add(int(t.ID))
			if isRangelistOp(topLevelOpOf(t)) {
				if ie.RangelistSegIdx == Invalid {
					ie.RangelistSegIdx = k
				}
				ie.SegOtherTerms[k].Add(int(t.ID))
				continue
			}
			if topLevelOpOf(t) == parsetree.OpEq {
				ie.SegEqualTerms[k].Add(int(t.ID))
			} else {
				ie.SegOtherTerms[k].Add(int(t.ID))
			}
		}
	}

	ie.CoverSegments = true
	for id := n.Segs.First(); id >= 0; id = n.Segs.Next(id) {
		if !boundSegs.Test(id) && SegID(id) != n.OIDSeg {
			ie.CoverSegments = false
			break
		}
	}

	return ie
}

// termsOnSegment returns every term usable against segID through node
// n: a SARG term on n whose indexable side resolved to segID, or a
// JOIN term with n as one endpoint that resolved the same way (an
// index-probe candidate for a nested-loop join).
func termsOnSegment(env *Env, n *Node, segID SegID) []*Term {
	var out []*Term
	for id := n.Sargs.First(); id >= 0; id = n.Sargs.Next(id) {
		t := env.terms[id]
		if t.CanUseIndex > 0 && t.IndexSeg[0] == segID {
			out = append(out, t)
		}
	}
	for _, t := range env.terms {
		if t.Class != ClassJoin || t.CanUseIndex == 0 || t.IndexSeg[0] != segID {
			continue
		}
		if t.Head == n.ID || t.Tail == n.ID {
			out = append(out, t)
		}
	}
	return out
}

func topLevelOpOf(t *Term) parsetree.Op {
	op, _, _ := topLevelShape(t.Expr)
	return op
}

func isRangelistOp(op parsetree.Op) bool {
	return op == parsetree.OpIn || op == parsetree.OpRange
}
