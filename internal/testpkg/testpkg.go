// Package testpkg provides shared solvable and sack fixtures for tests
// across this module, mirroring claircore's test.GenUniquePackages /
// test.GenDuplicatePackages shape: deterministic name/arch/evr generation by
// index rather than hand-typed literals in every _test.go file.
package testpkg

import (
	"fmt"

	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// MustNevra parses s, panicking on a malformed literal. Test fixtures are
// expected to hand-construct valid NEVRA strings; a parse failure here is a
// bug in the test, not a condition under test.
func MustNevra(s string) nevra.Nevra {
	n, _, err := nevra.Parse(s)
	if err != nil {
		panic(fmt.Sprintf("testpkg: malformed nevra literal %q: %v", s, err))
	}
	return n
}

// GenUniqueSolvables builds n solvables named pkg-0 .. pkg-(n-1), each at a
// distinct version, all on arch, with no relational dependencies set.
func GenUniqueSolvables(n int, arch string) []pool.Solvable {
	sv := make([]pool.Solvable, n)
	for i := range sv {
		sv[i] = pool.Solvable{
			NEVRA: MustNevra(fmt.Sprintf("pkg-%d-1.0.%d-1.%s", i, i, arch)),
			Kind:  pool.KindBinary,
		}
	}
	return sv
}

// GenVersionSeries builds n solvables all named name, at versions
// 1.0.0 .. 1.0.(n-1), ascending, all on arch. Useful for exercising
// latest()/latest_per_arch() and upgrade/downgrade classification.
func GenVersionSeries(name string, n int, arch string) []pool.Solvable {
	sv := make([]pool.Solvable, n)
	for i := range sv {
		sv[i] = pool.Solvable{
			NEVRA: MustNevra(fmt.Sprintf("%s-1.0.%d-1.%s", name, i, arch)),
			Kind:  pool.KindBinary,
		}
	}
	return sv
}

// Fixture is a ready-to-use sack with one non-system repo loaded from
// solvables.
type Fixture struct {
	Sack *sack.Sack
	Repo *sack.Repo
	IDs  []pool.ID
}

// NewFixture builds a [Fixture] over a single repo named reponame,
// containing solvables.
func NewFixture(reponame string, solvables []pool.Solvable) *Fixture {
	sk := sack.New()
	repo := sk.NewRepo(reponame, false, false, false)
	ids := sk.Pool().AddSolvables(repo.ID, solvables)
	sk.MakeConsideredReady()
	return &Fixture{Sack: sk, Repo: repo, IDs: ids}
}

// NewSystemFixture builds a [Fixture] whose repo is marked as the system
// (installed-package) repo, exempt from modular/repo/pkg excludes per
// spec.md §4.1.
func NewSystemFixture(solvables []pool.Solvable) *Fixture {
	sk := sack.New()
	repo := sk.NewRepo("@System", true, false, false)
	ids := sk.Pool().AddSolvables(repo.ID, solvables)
	sk.MakeConsideredReady()
	return &Fixture{Sack: sk, Repo: repo, IDs: ids}
}
