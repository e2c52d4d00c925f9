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

// Package bitset implements fixed-capacity bitsets keyed by small integer
// indices (node, segment, term, and partition indices throughout the
// optimizer). Every set operation is O(words); there is no dynamic
// growth, matching the arena's "sized once, never reallocated" lifetime.
package bitset

import "math/bits"

const wordBits = 64

// WordBits is the machine word size bitsets are packed into. Partition
// discovery bounds the number of nodes in one partition against this so
// the planner's per-subset info array fits a machine word.
const WordBits = wordBits

// Set is a fixed-capacity bitset over element indices [0, n). The zero
// value is not usable; construct with New.
type Set struct {
	words []uint64
	n     int
}

// New allocates a Set with capacity for n element indices.
func New(n int) Set {
	if n < 0 {
		n = 0
	}
	return Set{words: make([]uint64, (n+wordBits-1)/wordBits), n: n}
}

// Cap returns the set's element capacity.
func (s *Set) Cap() int { return s.n }

// Add inserts idx into the set.
func (s *Set) Add(idx int) {
	s.words[idx/wordBits] |= 1 << uint(idx%wordBits)
}

// Remove deletes idx from the set; a no-op if idx is absent.
func (s *Set) Remove(idx int) {
	s.words[idx/wordBits] &^= 1 << uint(idx%wordBits)
}

// Test reports whether idx is a member.
func (s *Set) Test(idx int) bool {
	return s.words[idx/wordBits]&(1<<uint(idx%wordBits)) != 0
}

// Clear empties the set in place.
func (s *Set) Clear() {
	for i := range s.words {
		s.words[i] = 0
	}
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Cardinality returns the number of members.
func (s *Set) Cardinality() int {
	c := 0
	for _, w := range s.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Union adds every member of other into s in place.
func (s *Set) Union(other Set) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] |= other.words[i]
		}
	}
}

// Difference removes every member of other from s in place.
func (s *Set) Difference(other Set) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] &^= other.words[i]
		}
	}
}

// Intersect leaves only members present in both sets.
func (s *Set) Intersect(other Set) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] &= other.words[i]
		} else {
			s.words[i] = 0
		}
	}
}

// IntersectsTest reports whether s and other share at least one member,
// without mutating either set.
func (s *Set) IntersectsTest(other Set) bool {
	for i := range s.words {
		if i >= len(other.words) {
			break
		}
		if s.words[i]&other.words[i] != 0 {
			return true
		}
	}
	return false
}

// Equivalent reports whether s and other have exactly the same members.
func (s *Set) Equivalent(other Set) bool {
	n := len(s.words)
	if len(other.words) > n {
		n = len(other.words)
	}
	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(s.words) {
			a = s.words[i]
		}
		if i < len(other.words) {
			b = other.words[i]
		}
		if a != b {
			return false
		}
	}
	return true
}

// Subset reports whether every member of s is also a member of other.
func (s *Set) Subset(other Set) bool {
	for i, w := range s.words {
		var o uint64
		if i < len(other.words) {
			o = other.words[i]
		}
		if w&^o != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of s.
func (s *Set) Clone() Set {
	words := make([]uint64, len(s.words))
	copy(words, s.words)
	return Set{words: words, n: s.n}
}

// Move swaps the contents of s and other without copying element data,
// mirroring the source's BITSET_MOVE exchange idiom used when terms are
// reordered in place during edge discovery.
func Move(dst, src *Set) {
	*dst, *src = *src, *dst
}

// First returns the lowest member index, or -1 if the set is empty.
func (s *Set) First() int {
	return s.Next(-1)
}

// Next returns the lowest member index strictly greater than after, or
// -1 if none remains. Iteration idiom:
//
//	for i := s.First(); i >= 0; i = s.Next(i) { ... }
func (s *Set) Next(after int) int {
	start := after + 1
	if start < 0 {
		start = 0
	}
	wi := start / wordBits
	if wi >= len(s.words) {
		return -1
	}
	bit := uint(start % wordBits)
	w := s.words[wi] >> bit
	if w != 0 {
		return start + bits.TrailingZeros64(w)
	}
	for wi++; wi < len(s.words); wi++ {
		if s.words[wi] != 0 {
			return wi*wordBits + bits.TrailingZeros64(s.words[wi])
		}
	}
	return -1
}

// Members returns the set's members in ascending order.
func (s *Set) Members() []int {
	out := make([]int, 0, s.Cardinality())
	for i := s.First(); i >= 0; i = s.Next(i) {
		out = append(out, i)
	}
	return out
}
