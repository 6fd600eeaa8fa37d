// Package satsolver defines the narrow interface the goal package uses to
// delegate dependency resolution to an external SAT solver, per spec.md §1
// ("solver core" is explicitly out of scope: "that's libsolv's job").
//
// This package carries no solving logic of its own — it's the seam
// described in spec.md's Non-goals, grounded on claircore's
// libvuln/updates.Manager pattern of depending on a narrow interface for a
// component deliberately kept external.
package satsolver

import "github.com/rpm-software-management/libdnf-sub004/pool"

// JobKind identifies what a [Job] asks the solver to do.
type JobKind int

// Defined job kinds, covering the Goal operations of spec.md §4.3.
const (
	JobInstall JobKind = iota
	JobErase
	JobUpgrade
	JobUpgradeAll
	JobDistupgrade
	JobDistupgradeAll
	JobLock
	JobFavor
	JobDisfavor
	JobUserinstalled
)

// Job is one resolver request, over a candidate set already narrowed by a
// selector or an explicit solvable id.
type Job struct {
	Kind       JobKind
	Candidates []pool.ID
	Strict     bool // install: strict means failing to find a candidate fails the whole goal
	CleanDeps  bool // erase: remove now-unneeded dependencies too
}

// Flags control solver policy for one [Solver.Run] call, per spec.md §4.3.
type Flags uint32

// Defined flags.
const (
	FlagAllowUninstall Flags = 1 << iota
	FlagForceBest
	FlagVerify
	FlagIgnoreWeakDeps
	FlagAllowDowngrade
)

// Has reports whether f includes bit.
func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Transition classifies one solvable's role in a solved transaction.
type Transition int

// Defined transitions.
const (
	TransitionInstall Transition = iota
	TransitionUpgrade
	TransitionDowngrade
	TransitionErase
	TransitionObsoleted
	TransitionReinstall
)

// Step is one entry of a solved transaction: a solvable and the role it
// plays, plus (for upgrade/downgrade/obsoleted) the id it replaces.
type Step struct {
	ID        pool.ID
	Kind      Transition
	Replaces  pool.ID
	HasReplace bool
}

// Problem is one formatted rule explaining why a goal could not be solved.
type Problem struct {
	Rule        string
	Description string
	ModuleInfo  string // shown by goal's DescribeProblemRules only when includeModules is set
}

// Result is the outcome of one [Solver.Run] call.
type Result struct {
	Solvable bool
	Steps    []Step
	Suggested []pool.ID
	Unneeded  []pool.ID
	Problems  []Problem
}

// Solver is the external dependency-resolution engine this package
// delegates to.
type Solver interface {
	// Run solves jobs against the pool, respecting protected (never
	// removed) ids; excluded holds the ids marked exclude-from-weak, which
	// weak dependencies don't pull in.
	Run(p *pool.Pool, jobs []Job, protected, excluded map[pool.ID]bool, flags Flags) (Result, error)
}
