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

// Package qoerr declares the three error kinds the optimizer core can
// surface (spec §7): resource exhaustion, structural rejection, and
// internal assertion failure. All three cause the caller to discard the
// half-built plan and fall back to "no plan" or a propagated semantic
// error; none of them is recoverable mid-phase.
package qoerr

import errors "gopkg.in/src-d/go-errors.v1"

var (
	// ErrOutOfMemory is the resource-exhaustion kind. Arena and bitset
	// allocation return no error, so no path in the core raises it.
	ErrOutOfMemory = errors.NewKind("query optimizer: out of memory allocating %s")

	// ErrTooManyNodes is raised by qgraph.NewEnv's sizing pass when the
	// FROM-list produces more than 64 nodes (spec §4.2, §8 I1).
	ErrTooManyNodes = errors.NewKind("query optimizer: query has %d FROM-list entries, exceeding the %d-node limit")

	// ErrUnsupportedConjunct is raised during lowering (regu, pred,
	// access, xasl) when an expression, operator or aggregate has no
	// lowering (spec §4.2).
	ErrUnsupportedConjunct = errors.NewKind("query optimizer: unsupported conjunct shape: %s")

	// ErrAssertion is raised when an internal invariant is violated.
	// In debug builds the caller is expected to abort at the call site
	// instead of handling this error; in release builds it propagates
	// like any other failure and the optimizer returns no plan.
	ErrAssertion = errors.NewKind("query optimizer: assertion failed: %s")

	// ErrPartitionTooLarge is raised by partition discovery when a
	// partition's node count would overflow the planner's per-subset
	// bitset word (spec §3 Partition size constraint).
	ErrPartitionTooLarge = errors.NewKind("query optimizer: partition of %d nodes exceeds the %d-node word-packing limit")

	// ErrUnresolvedName is raised by the symbol table when a Name's
	// spec id matches no table-info on any frame of the stack (spec
	// §4.8 correlated-reference resolution failing outward through
	// every enclosing query).
	ErrUnresolvedName = errors.NewKind("query optimizer: unresolved name reference: %s")
)

// Escape is the Go analogue of the source's catch_/QO_ABORT escape point:
// a single non-local exit per Env used only for out-of-memory and
// assertion failures. Go has no non-local exit primitive that composes
// well with deferred cleanup, so this is modeled as an ordinary error
// return threaded through every phase function, never as a panic/recover pair — the escape never crosses a
// phase boundary in the source either, so a local propagation is
// faithful (spec §9).
type Escape struct {
	Err error
}

func (e *Escape) Error() string { return e.Err.Error() }
func (e *Escape) Unwrap() error { return e.Err }
