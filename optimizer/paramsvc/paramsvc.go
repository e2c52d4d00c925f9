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

// Package paramsvc models the external "parameter service" of spec §6:
// global optimization parameters that the core reads but never mutates
// (spec §5). A real deployment backs this with a live config service;
// this package is just the typed contract, matching how
// dolthub/go-mysql-server threads a small typed config struct through
// sql.Context rather than reaching for global state.
package paramsvc

// OptimizationLevel is a bitfield read once per optimization (spec §6).
type OptimizationLevel uint32

const (
	// LevelDisable turns the optimizer off entirely; callers fall back
	// to interpretive execution.
	LevelDisable OptimizationLevel = 1 << iota
	// LevelSkipExecution builds the plan but does not execute it
	// (useful for EXPLAIN / plan-dump tooling).
	LevelSkipExecution
	// LevelDumpPlanBit0 and LevelDumpPlanBit1 together select one of
	// four plan-dump verbosity levels (spec §6 "dump-plan bits").
	LevelDumpPlanBit0
	LevelDumpPlanBit1
)

// DumpPlanVerbosity extracts the 2-bit dump-plan verbosity selector.
func (l OptimizationLevel) DumpPlanVerbosity() int {
	v := 0
	if l&LevelDumpPlanBit0 != 0 {
		v |= 1
	}
	if l&LevelDumpPlanBit1 != 0 {
		v |= 2
	}
	return v
}

// Disabled reports whether the optimizer should be bypassed entirely.
func (l OptimizationLevel) Disabled() bool { return l&LevelDisable != 0 }

// SkipExecution reports whether the plan should be built but not run.
func (l OptimizationLevel) SkipExecution() bool { return l&LevelSkipExecution != 0 }

// CostOverride lets an operator pin a specific plan shape's estimated
// cost for a named operation, bypassing the cost estimator for that one
// case (spec §6 "per-plan cost-function overrides").
type CostOverride struct {
	PlanKind string
	Cost     float64
}

// Params is the full set of parameter-service inputs the core consults.
type Params struct {
	Level             OptimizationLevel
	CostOverrides     []CostOverride
	XASLDebugDump     bool
	SortLimitMaxCount int
	QueryTraceFormat  string
}

// Default returns the parameter set used when nothing else is
// configured: optimizer enabled, no overrides, a generous sort-limit
// cap matching SORT_LIMIT_MAX_COUNT's role as a safety valve rather than
// a routinely-hit limit.
func Default() Params {
	return Params{
		SortLimitMaxCount: 1_000_000,
	}
}
