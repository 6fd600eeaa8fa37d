// Package goal implements the Goal and Resolver Driver described in
// spec.md §4.3: translating jobs (installs, erasures, upgrades) into
// [satsolver.Job] inputs, running the external solver, and exposing typed
// accessors over the solved transaction steps. Grounded on claircore's
// libvuln driver pattern of "accumulate requests, delegate to an external
// engine, shape its output into a typed result."
package goal

import (
	"context"
	"fmt"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/internal/satsolver"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// Goal accumulates jobs against a sack and drives the external solver to
// resolve them.
//
// The zero Goal is not ready for use; construct one with [New].
type Goal struct {
	sk     *sack.Sack
	solver satsolver.Solver

	jobs      []satsolver.Job
	protected map[pool.ID]bool
	excludeFromWeak map[pool.ID]bool

	protectRunningKernel bool

	result   satsolver.Result
	hasRun   bool
}

// New returns an empty Goal over sk, delegating resolution to solver.
func New(sk *sack.Sack, solver satsolver.Solver) *Goal {
	return &Goal{sk: sk, solver: solver, protected: map[pool.ID]bool{}, excludeFromWeak: map[pool.ID]bool{}}
}

// SetProtectRunningKernel controls whether the currently running kernel is
// added to the protected set automatically by [Goal.Run].
func (g *Goal) SetProtectRunningKernel(v bool) { g.protectRunningKernel = v }

// Install adds an install job for candidates. If strict, failing to find
// any installable candidate fails the whole goal; otherwise it's dropped
// with a suggestion recorded.
func (g *Goal) Install(candidates []pool.ID, strict bool) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobInstall, Candidates: candidates, Strict: strict})
}

// Erase adds an erase job for candidates.
func (g *Goal) Erase(candidates []pool.ID, cleanDeps bool) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobErase, Candidates: candidates, CleanDeps: cleanDeps})
}

// Upgrade adds an upgrade job restricted to candidates; an empty
// candidates, as produced by an unfiltered selector, behaves like
// [Goal.UpgradeAll].
func (g *Goal) Upgrade(candidates []pool.ID) {
	if len(candidates) == 0 {
		g.UpgradeAll()
		return
	}
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobUpgrade, Candidates: candidates})
}

// UpgradeAll adds a whole-system upgrade job.
func (g *Goal) UpgradeAll() {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobUpgradeAll})
}

// Distupgrade adds a distro-sync job restricted to candidates.
func (g *Goal) Distupgrade(candidates []pool.ID) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobDistupgrade, Candidates: candidates})
}

// DistupgradeAll adds a whole-system distro-sync job.
func (g *Goal) DistupgradeAll() {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobDistupgradeAll})
}

// Lock adds a version-lock job: pkg's installed version is kept across
// upgrades.
func (g *Goal) Lock(candidates []pool.ID) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobLock, Candidates: candidates})
}

// Favor biases the solver toward installing candidates when a choice
// exists.
func (g *Goal) Favor(candidates []pool.ID) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobFavor, Candidates: candidates})
}

// Disfavor biases the solver against installing candidates when a choice
// exists.
func (g *Goal) Disfavor(candidates []pool.ID) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobDisfavor, Candidates: candidates})
}

// Userinstalled marks candidates as user-requested rather than
// dependency-pulled, affecting future "unneeded" computation.
func (g *Goal) Userinstalled(candidates []pool.ID) {
	g.jobs = append(g.jobs, satsolver.Job{Kind: satsolver.JobUserinstalled, Candidates: candidates})
}

// AddProtected marks ids as never-removable for this goal, in addition to
// the running kernel when [Goal.SetProtectRunningKernel] is set.
func (g *Goal) AddProtected(ids ...pool.ID) {
	for _, id := range ids {
		g.protected[id] = true
	}
}

// AddExcludeFromWeak excludes ids from being pulled in purely via weak
// dependencies (recommends/supplements), without excluding them from
// direct installs.
func (g *Goal) AddExcludeFromWeak(ids ...pool.ID) {
	for _, id := range ids {
		g.excludeFromWeak[id] = true
	}
}

// ResetExcludeFromWeak clears the weak-dependency exclude set.
func (g *Goal) ResetExcludeFromWeak() { g.excludeFromWeak = map[pool.ID]bool{} }

// RunningKernelProbe is passed through to [sack.Sack.RunningKernelID] when
// protect-running-kernel is enabled.
type RunningKernelProbe = sack.KernelProbe

// Run resolves every accumulated job against flags, returning true if the
// goal is solvable. On failure, callers inspect [Goal.CountProblems] and
// [Goal.DescribeProblemRules].
func (g *Goal) Run(ctx context.Context, flags satsolver.Flags, probe RunningKernelProbe) (bool, error) {
	protected := g.protected
	if g.protectRunningKernel && probe != nil {
		if id, ok, err := g.sk.RunningKernelID(ctx, probe); err == nil && ok {
			protected = cloneSet(protected)
			protected[id] = true
		}
	}

	res, err := g.solver.Run(g.sk.Pool(), g.jobs, protected, g.excludeFromWeak, flags)
	if err != nil {
		return false, &dnfcore.Error{Op: "goal.Goal.Run", Kind: dnfcore.ErrInternal, Inner: err}
	}
	g.result = res
	g.hasRun = true
	return res.Solvable, nil
}

func cloneSet(m map[pool.ID]bool) map[pool.ID]bool {
	c := make(map[pool.ID]bool, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// CountProblems returns the number of problem chains from the last
// unsolvable [Goal.Run].
func (g *Goal) CountProblems() int { return len(g.result.Problems) }

// DescribeProblemRules formats problem i's rule chain, optionally including
// module-related context.
func (g *Goal) DescribeProblemRules(i int, includeModules bool) string {
	if i < 0 || i >= len(g.result.Problems) {
		return ""
	}
	p := g.result.Problems[i]
	if includeModules && p.ModuleInfo != "" {
		return fmt.Sprintf("%s: %s (%s)", p.Rule, p.Description, p.ModuleInfo)
	}
	return fmt.Sprintf("%s: %s", p.Rule, p.Description)
}

func (g *Goal) steps(kind satsolver.Transition) []pool.ID {
	var out []pool.ID
	for _, s := range g.result.Steps {
		if s.Kind == kind {
			out = append(out, s.ID)
		}
	}
	return out
}

// ListInstalls returns ids of packages the solved goal installs fresh.
func (g *Goal) ListInstalls() []pool.ID { return g.steps(satsolver.TransitionInstall) }

// ListUpgrades returns ids of packages the solved goal upgrades.
func (g *Goal) ListUpgrades() []pool.ID { return g.steps(satsolver.TransitionUpgrade) }

// ListDowngrades returns ids of packages the solved goal downgrades.
func (g *Goal) ListDowngrades() []pool.ID { return g.steps(satsolver.TransitionDowngrade) }

// ListErasures returns ids of packages the solved goal removes.
func (g *Goal) ListErasures() []pool.ID { return g.steps(satsolver.TransitionErase) }

// ListObsoleted returns ids of packages the solved goal obsoletes.
func (g *Goal) ListObsoleted() []pool.ID { return g.steps(satsolver.TransitionObsoleted) }

// ListReinstalls returns ids of packages the solved goal reinstalls.
func (g *Goal) ListReinstalls() []pool.ID { return g.steps(satsolver.TransitionReinstall) }

// ListUnneeded returns ids of currently-installed packages the solver
// identified as no longer required by anything user-installed.
func (g *Goal) ListUnneeded() []pool.ID { return g.result.Unneeded }

// ListSuggested returns ids of weak-dependency packages the solver
// suggests but did not install.
func (g *Goal) ListSuggested() []pool.ID { return g.result.Suggested }

// ListObsoletedBy returns ids obsoleted specifically by pkg, among the
// solved transaction's obsoleted steps.
func (g *Goal) ListObsoletedBy(pkg pool.ID) []pool.ID {
	var out []pool.ID
	for _, s := range g.result.Steps {
		if s.Kind == satsolver.TransitionObsoleted && s.HasReplace && s.Replaces == pkg {
			out = append(out, s.ID)
		}
	}
	return out
}

// Steps returns every step of the last solved transaction, in solver
// order, for callers (transaction.Transaction) that need the full
// classification rather than one kind at a time.
func (g *Goal) Steps() []satsolver.Step {
	return append([]satsolver.Step(nil), g.result.Steps...)
}
