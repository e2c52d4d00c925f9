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

// Package arena provides the per-optimization allocation counter and
// interning cache that each qgraph.Env owns and resets in one bulk Reset
// when the Env is freed. The lowering packages (regu, pred, access, xasl)
// build their nodes with ordinary composite literals; those nodes are
// not allocated through or tracked by the arena.
package arena

import "github.com/zeebo/xxh3"

// Arena is a single-writer counter of optimization-scoped allocations
// plus an intern table; Alloc hands out ordinary Go heap objects. It
// never shrinks and is never safe for concurrent use from more
// than one goroutine, matching the single-threaded-per-optimization model
// of the core (see the package doc and spec §5).
type Arena struct {
	count  int
	intern map[uint64]uint32
	keys   [][]byte
}

// New returns an empty Arena ready to vend allocations.
func New() *Arena {
	return &Arena{intern: make(map[uint64]uint32)}
}

// Alloc counts one allocation and returns a new zero T; the count is
// exposed for diagnostics and tests. Go's
// garbage collector performs the actual storage management, and Reset
// severs the arena's own bookkeeping so the whole generation can be
// collected together.
func Alloc[T any](a *Arena) *T {
	a.count++
	return new(T)
}

// Count returns the number of objects vended since the last Reset.
func (a *Arena) Count() int {
	return a.count
}

// Reset bulk-frees the arena: its allocation counter and intern table are
// cleared. Objects already vended remain valid for any caller still
// holding a reference, but the arena stops tracking them; plan discard is
// expected to drop all such references at the same time it calls Reset.
func (a *Arena) Reset() {
	a.count = 0
	a.intern = make(map[uint64]uint32)
	a.keys = nil
}

// Intern deduplicates a canonicalized byte key (e.g. an index-entry
// binding signature, or a lowered-expression shape) against everything
// interned so far in this arena generation. It returns the stable id
// assigned to that key and whether the key was already present. This
// mirrors sql/memo's relKey-style dedup cache, but with a real hash
// instead of an ad hoc integer combination, so two unrelated keys cannot
// alias into the same id.
func (a *Arena) Intern(key []byte) (id uint32, existing bool) {
	h := xxh3.Hash(key)
	if id, ok := a.intern[h]; ok {
		return id, true
	}
	id = uint32(len(a.keys))
	a.keys = append(a.keys, append([]byte(nil), key...))
	a.intern[h] = id
	return id, false
}
