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

// Package symtab implements the symbol frame stack and table-info layer
// of spec §4.8: per FROM-spec value-holder lists (val_list), the
// contract between an access spec (which fills a holder during a scan)
// and the predicate/outptr expressions built on top of it (which read
// the holder as a TYPE_CONSTANT regu-variable). Correlated references
// resolve by walking the frame stack outward.
package symtab

import (
	"github.com/sirupsen/logrus"

	"github.com/ryesql/qo/optimizer/qgraph"
	"github.com/ryesql/qo/optimizer/qoerr"
	"github.com/ryesql/qo/parsetree"
)

var log = logrus.WithField("component", "symtab")

// Holder is one DB-value slot in a table-info's val_list (spec §4.8).
type Holder struct {
	ID   int
	Seg  qgraph.SegID
	Name string
}

// TableInfo is one FROM-spec's attribute list lowered to value holders.
type TableInfo struct {
	Node    qgraph.NodeID
	Holders []*Holder

	bySeg map[qgraph.SegID]*Holder
}

// Holder returns the value holder backing seg, if this table-info has
// one.
func (ti *TableInfo) Holder(seg qgraph.SegID) (*Holder, bool) {
	h, ok := ti.bySeg[seg]
	return h, ok
}

// Frame is one symbol-table frame: every table-info visible at one query
// nesting level (spec §4.8).
type Frame struct {
	Env    *qgraph.Env
	Tables map[qgraph.NodeID]*TableInfo

	nextID int
}

// NewFrame builds a frame with one value holder per segment of every
// node in env, the layer an access spec fills and a predicate/outptr
// expression reads from.
func NewFrame(env *qgraph.Env) *Frame {
	f := &Frame{Env: env, Tables: make(map[qgraph.NodeID]*TableInfo, env.NNodes())}
	for _, n := range env.Nodes() {
		ti := &TableInfo{Node: n.ID, bySeg: make(map[qgraph.SegID]*Holder)}
		for id := n.Segs.First(); id >= 0; id = n.Segs.Next(id) {
			seg := env.Segment(qgraph.SegID(id))
			h := &Holder{ID: f.nextID, Seg: seg.ID, Name: seg.Attr}
			f.nextID++
			ti.Holders = append(ti.Holders, h)
			ti.bySeg[seg.ID] = h
		}
		f.Tables[n.ID] = ti
	}
	log.WithField("holders", f.nextID).Debug("frame built")
	return f
}

// TableInfo returns the table-info for node n, if the frame has one.
func (f *Frame) TableInfo(n qgraph.NodeID) (*TableInfo, bool) {
	ti, ok := f.Tables[n]
	return ti, ok
}

// Stack is the per-query symbol-table frame stack (spec §4.8).
// Correlated references resolve by walking it outward from the
// innermost (current) frame until the owning node is found.
type Stack struct {
	frames []*Frame
}

// NewStack returns an empty frame stack.
func NewStack() *Stack { return &Stack{} }

// Push enters a new (innermost) frame, used when lowering descends into
// a sub-query.
func (s *Stack) Push(f *Frame) { s.frames = append(s.frames, f) }

// Pop leaves the innermost frame.
func (s *Stack) Pop() {
	if len(s.frames) == 0 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// Current returns the innermost frame, or nil if the stack is empty.
func (s *Stack) Current() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Resolve walks the frame stack outward from the innermost frame,
// returning the holder backing name, the node that owns it, and how
// many frames out it was found: 0 means the current (uncorrelated)
// frame, >0 means a correlated reference into an enclosing query (spec
// §4.8).
func (s *Stack) Resolve(name *parsetree.Name) (holder *Holder, node qgraph.NodeID, level int, err error) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		for nid, ti := range f.Tables {
			n := f.Env.Node(nid)
			if n.Spec == nil || n.Spec.ID != name.Spec {
				continue
			}
			for id := n.Segs.First(); id >= 0; id = n.Segs.Next(id) {
				seg := f.Env.Segment(qgraph.SegID(id))
				if name.OID != seg.IsOID {
					continue
				}
				if !name.OID && seg.Attr != name.Attr {
					continue
				}
				h, ok := ti.Holder(seg.ID)
				if !ok {
					continue
				}
				return h, nid, len(s.frames) - 1 - i, nil
			}
		}
	}
	return nil, qgraph.NodeID(qgraph.Invalid), 0, qoerr.ErrUnresolvedName.New(name.String())
}
