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

// Package catalogtest provides a tiny in-memory catalog.Statistics fake,
// used only by this module's own test suite. It plays the same role for
// the optimizer core that the teacher's `memory` package plays for
// `dolthub/go-mysql-server`'s engine tests: a real implementation of the
// interface, with none of the concerns (heap files, locking, durability)
// a production catalog would have.
package catalogtest

import "github.com/ryesql/qo/catalog"

// Catalog is a name-indexed in-memory catalog.Statistics.
type Catalog struct {
	classes map[string]*catalog.ClassInfo
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{classes: make(map[string]*catalog.ClassInfo)}
}

// AddClass registers a class, overwriting any previous registration of
// the same name.
func (c *Catalog) AddClass(ci *catalog.ClassInfo) {
	c.classes[ci.Name] = ci
}

// Class implements catalog.Statistics.
func (c *Catalog) Class(name string) (*catalog.ClassInfo, bool) {
	ci, ok := c.classes[name]
	return ci, ok
}

// Builder constructs a ClassInfo fluently for table-driven test fixtures.
type Builder struct {
	ci *catalog.ClassInfo
}

// NewClass starts building a class named n with oid, heap id, and row
// cardinality ncard (page cardinality tcard is derived as ncard/10+1, a
// fixed fallback ratio matching the spec's NOMINAL_HEAP_SIZE-style
// approximation when no real stats are supplied).
func NewClass(n string, oid catalog.OID, ncard float64) *Builder {
	return &Builder{ci: &catalog.ClassInfo{
		OID:   oid,
		Name:  n,
		Heap:  catalog.HeapID(oid),
		NCard: ncard,
		TCard: ncard/10 + 1,
	}}
}

// Attr adds an attribute.
func (b *Builder) Attr(id catalog.AttrID, name, domain string, nullable bool, ndistinct int64) *Builder {
	b.ci.Attrs = append(b.ci.Attrs, catalog.AttrInfo{
		ID:        id,
		Name:      name,
		Domain:    domain,
		Nullable:  nullable,
		NDistinct: ndistinct,
	})
	return b
}

// Index adds an index constraint over the named attribute ids, in order.
func (b *Builder) Index(btid catalog.BTID, name string, unique bool, attrs ...catalog.AttrID) *Builder {
	b.ci.Indexes = append(b.ci.Indexes, catalog.IndexConstraint{
		BTID:   btid,
		Name:   name,
		Attrs:  attrs,
		Unique: unique,
	})
	return b
}

// PrimaryKey adds a primary-key constraint over the named attribute ids.
func (b *Builder) PrimaryKey(btid catalog.BTID, attrs ...catalog.AttrID) *Builder {
	b.ci.Indexes = append(b.ci.Indexes, catalog.IndexConstraint{
		BTID:       btid,
		Name:       "pk",
		Attrs:      attrs,
		Unique:     true,
		PrimaryKey: true,
	})
	return b
}

// Build returns the constructed ClassInfo.
func (b *Builder) Build() *catalog.ClassInfo {
	return b.ci
}
