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

// Package catalog defines the read-only schema-catalog interfaces the
// optimizer core consumes (spec §1, §6). The core never mutates what
// these return and never retains a reference past one optimization; a
// real implementation (heap files, b-trees, locking) is out of scope —
// see catalog/catalogtest for the in-memory fake this module's own test
// suite is built on, grounded on the role `dolthub/go-mysql-server`'s
// `memory` package plays for that engine's own test harness.
package catalog

// OID identifies a persistent object (here, a class/table).
type OID uint64

// HeapID identifies a class's heap file.
type HeapID uint64

// BTID is a b-tree index identifier (volume+file+root-page in the
// source; opaque here).
type BTID uint64

// AttrID identifies one attribute (column) of a class.
type AttrID int

// AttrInfo describes one attribute: its id, declared domain, nullability,
// and the per-attribute b-tree statistics the term analyzer and cost
// estimator consult for selectivity (spec §3 Segment "attribute-info").
type AttrInfo struct {
	ID         AttrID
	Name       string
	Domain     string
	Nullable   bool
	Collation  string
	NDistinct  int64
	NullCount  int64
	Min, Max   any
}

// IndexConstraint describes one INDEX/UNIQUE/PRIMARY KEY constraint on a
// class: its BTID, ordered attribute list, and uniqueness (spec §3 Index
// entry, §4.7).
type IndexConstraint struct {
	BTID      BTID
	Name      string
	Attrs     []AttrID // ordered; column k of the index is Attrs[k]
	Unique    bool
	PrimaryKey bool
}

// ClassInfo is the schema info a graph Node attaches when it is not a
// derived table (spec §3 Node "info"): class identity, heap location,
// cardinality estimates, attributes, and constraints.
type ClassInfo struct {
	OID     OID
	Name    string
	Heap    HeapID
	NCard   float64 // row estimate
	TCard   float64 // page estimate
	Attrs   []AttrInfo
	Indexes []IndexConstraint
}

// AttrByName returns the attribute named n, or (AttrInfo{}, false).
func (c *ClassInfo) AttrByName(n string) (AttrInfo, bool) {
	for _, a := range c.Attrs {
		if a.Name == n {
			return a, true
		}
	}
	return AttrInfo{}, false
}

// AttrByID returns the attribute with the given id, or (AttrInfo{}, false).
func (c *ClassInfo) AttrByID(id AttrID) (AttrInfo, bool) {
	for _, a := range c.Attrs {
		if a.ID == id {
			return a, true
		}
	}
	return AttrInfo{}, false
}

// Statistics is the read-only accessor the cost estimator and term
// analyzer use to look up cardinality and attribute statistics (spec
// §6 "from schema: ... class statistics").
type Statistics interface {
	// Class returns the ClassInfo for a class by name, or false if it
	// does not exist (a derived table has no ClassInfo at all; this is
	// about base classes genuinely missing from the catalog).
	Class(name string) (*ClassInfo, bool)
}
