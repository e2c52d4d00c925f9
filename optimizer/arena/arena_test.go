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

package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type reguVar struct {
	Kind int
}

func TestAllocCounts(t *testing.T) {
	a := New()
	r1 := Alloc[reguVar](a)
	r2 := Alloc[reguVar](a)
	require.NotSame(t, r1, r2)
	require.Equal(t, 2, a.Count())

	a.Reset()
	require.Equal(t, 0, a.Count())
}

func TestInternDedup(t *testing.T) {
	a := New()
	id1, existing1 := a.Intern([]byte("idx:t.a=1"))
	require.False(t, existing1)
	id2, existing2 := a.Intern([]byte("idx:t.a=1"))
	require.True(t, existing2)
	require.Equal(t, id1, id2)

	id3, existing3 := a.Intern([]byte("idx:t.b=2"))
	require.False(t, existing3)
	require.NotEqual(t, id1, id3)

	a.Reset()
	id4, existing4 := a.Intern([]byte("idx:t.a=1"))
	require.False(t, existing4)
	require.Equal(t, uint32(0), id4)
}
