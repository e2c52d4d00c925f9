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

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddRemoveTest(t *testing.T) {
	s := New(130)
	require.True(t, s.IsEmpty())
	s.Add(0)
	s.Add(63)
	s.Add(64)
	s.Add(129)
	require.True(t, s.Test(0))
	require.True(t, s.Test(63))
	require.True(t, s.Test(64))
	require.True(t, s.Test(129))
	require.False(t, s.Test(1))
	require.Equal(t, 4, s.Cardinality())

	s.Remove(64)
	require.False(t, s.Test(64))
	require.Equal(t, 3, s.Cardinality())
}

func TestIterate(t *testing.T) {
	s := New(200)
	members := []int{2, 5, 63, 64, 65, 128, 199}
	for _, m := range members {
		s.Add(m)
	}
	var got []int
	for i := s.First(); i >= 0; i = s.Next(i) {
		got = append(got, i)
	}
	require.Equal(t, members, got)
	require.Equal(t, members, s.Members())
}

func TestSetOps(t *testing.T) {
	a := New(64)
	b := New(64)
	a.Add(1)
	a.Add(2)
	b.Add(2)
	b.Add(3)

	require.True(t, a.IntersectsTest(b))

	union := a.Clone()
	union.Union(b)
	require.Equal(t, []int{1, 2, 3}, union.Members())

	diff := a.Clone()
	diff.Difference(b)
	require.Equal(t, []int{1}, diff.Members())

	inter := a.Clone()
	inter.Intersect(b)
	require.Equal(t, []int{2}, inter.Members())

	require.True(t, diff.Subset(a))
	require.False(t, a.Subset(diff))
}

func TestEquivalent(t *testing.T) {
	a := New(10)
	b := New(10)
	require.True(t, a.Equivalent(b))
	a.Add(5)
	require.False(t, a.Equivalent(b))
	b.Add(5)
	require.True(t, a.Equivalent(b))
}

func TestMove(t *testing.T) {
	a := New(10)
	b := New(10)
	a.Add(3)
	b.Add(7)
	Move(&a, &b)
	require.True(t, a.Test(7))
	require.True(t, b.Test(3))
}

func TestClear(t *testing.T) {
	s := New(10)
	s.Add(1)
	s.Add(2)
	s.Clear()
	require.True(t, s.IsEmpty())
}
