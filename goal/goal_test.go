package goal

import (
	"context"
	"testing"

	"github.com/rpm-software-management/libdnf-sub004/internal/satsolver"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

type fakeSolver struct {
	result satsolver.Result
	err    error

	gotJobs      []satsolver.Job
	gotProtected map[pool.ID]bool
}

func (f *fakeSolver) Run(p *pool.Pool, jobs []satsolver.Job, protected, excluded map[pool.ID]bool, flags satsolver.Flags) (satsolver.Result, error) {
	f.gotJobs = jobs
	f.gotProtected = protected
	return f.result, f.err
}

func TestRunReturnsSolvable(t *testing.T) {
	sk := sack.New()
	fs := &fakeSolver{result: satsolver.Result{Solvable: true, Steps: []satsolver.Step{
		{ID: 1, Kind: satsolver.TransitionInstall},
		{ID: 2, Kind: satsolver.TransitionUpgrade},
		{ID: 3, Kind: satsolver.TransitionErase},
	}}}
	g := New(sk, fs)
	g.Install([]pool.ID{1}, true)
	ok, err := g.Run(context.Background(), satsolver.FlagAllowUninstall, nil)
	if err != nil || !ok {
		t.Fatalf("Run() = (%v, %v)", ok, err)
	}
	if got := g.ListInstalls(); len(got) != 1 || got[0] != 1 {
		t.Errorf("ListInstalls() = %v, want [1]", got)
	}
	if got := g.ListUpgrades(); len(got) != 1 || got[0] != 2 {
		t.Errorf("ListUpgrades() = %v, want [2]", got)
	}
	if got := g.ListErasures(); len(got) != 1 || got[0] != 3 {
		t.Errorf("ListErasures() = %v, want [3]", got)
	}
}

func TestRunUnsolvableExposesProblems(t *testing.T) {
	sk := sack.New()
	fs := &fakeSolver{result: satsolver.Result{
		Solvable: false,
		Problems: []satsolver.Problem{{Rule: "conflict", Description: "foo conflicts with bar"}},
	}}
	g := New(sk, fs)
	ok, err := g.Run(context.Background(), 0, nil)
	if err != nil || ok {
		t.Fatalf("Run() = (%v, %v), want (false, nil)", ok, err)
	}
	if g.CountProblems() != 1 {
		t.Fatalf("CountProblems() = %d, want 1", g.CountProblems())
	}
	if desc := g.DescribeProblemRules(0, false); desc == "" {
		t.Fatal("DescribeProblemRules() should not be empty")
	}
}

func TestAddProtectedPassedToSolver(t *testing.T) {
	sk := sack.New()
	fs := &fakeSolver{result: satsolver.Result{Solvable: true}}
	g := New(sk, fs)
	g.AddProtected(7)
	if _, err := g.Run(context.Background(), 0, nil); err != nil {
		t.Fatal(err)
	}
	if !fs.gotProtected[7] {
		t.Fatal("protected id 7 was not passed through to the solver")
	}
}
