package selector

import (
	"errors"
	"testing"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/query"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

func mustNevra(t *testing.T, s string) nevra.Nevra {
	t.Helper()
	n, _, err := nevra.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestValidateRejectsMutuallyExclusive(t *testing.T) {
	s := New(
		Clause{Key: query.KeyProvides, Cmp: query.CmpEq, Value: "foo"},
		Clause{Key: query.KeyNevra, Cmp: query.CmpEq, Value: "foo-1-1.x86_64"},
	)
	err := s.Validate()
	if !errors.Is(err, dnfcore.ErrBadSelector) {
		t.Fatalf("Validate() = %v, want ErrBadSelector", err)
	}
}

func TestValidateAcceptsSingleKey(t *testing.T) {
	s := New(Clause{Key: query.KeyName, Cmp: query.CmpEq, Value: "foo"})
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestResolveTieBreakByEVR(t *testing.T) {
	sk := sack.New()
	r := sk.NewRepo("fedora", false, false, false)
	sv := []pool.Solvable{
		{NEVRA: mustNevra(t, "foo-1.0-1.x86_64")},
		{NEVRA: mustNevra(t, "foo-2.0-1.x86_64")},
	}
	ids := sk.Pool().AddSolvables(r.ID, sv)
	best, err := Resolve(sk.Pool(), ids, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sk.Pool().Solvable(best).NEVRA.Version != "2.0" {
		t.Fatalf("Resolve() picked %v, want the 2.0 build", sk.Pool().Solvable(best).NEVRA)
	}
}

func TestResolveTieBreakByArchPreference(t *testing.T) {
	sk := sack.New()
	r := sk.NewRepo("fedora", false, false, false)
	sv := []pool.Solvable{
		{NEVRA: mustNevra(t, "foo-1.0-1.noarch")},
		{NEVRA: mustNevra(t, "foo-1.0-1.x86_64")},
	}
	ids := sk.Pool().AddSolvables(r.ID, sv)
	best, err := Resolve(sk.Pool(), ids, nil, ArchPreference{"x86_64", "noarch"})
	if err != nil {
		t.Fatal(err)
	}
	if sk.Pool().Solvable(best).NEVRA.Arch != "x86_64" {
		t.Fatalf("Resolve() picked %v, want native x86_64 over noarch", sk.Pool().Solvable(best).NEVRA)
	}
}

func TestResolveEmptyCandidates(t *testing.T) {
	sk := sack.New()
	_, err := Resolve(sk.Pool(), nil, nil, nil)
	if !errors.Is(err, dnfcore.ErrPackageNotFound) {
		t.Fatalf("Resolve() = %v, want ErrPackageNotFound", err)
	}
}
