package subject

import (
	"context"
	"testing"

	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/pool"
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

func TestNevraPossibilitiesOrder(t *testing.T) {
	s := Subject("foo-1.0-1.x86_64")
	poss := s.NevraPossibilities(nil)
	if len(poss) == 0 {
		t.Fatal("expected at least one possibility")
	}
	if poss[0].Name != "foo" || poss[0].Version != "1.0" {
		t.Fatalf("first possibility = %+v, want the NEVRA-form parse", poss[0])
	}
}

func TestNevraPossibilitiesFilteredBySack(t *testing.T) {
	sk := sack.New()
	r := sk.NewRepo("fedora", false, false, false)
	sk.Pool().AddSolvables(r.ID, []pool.Solvable{{NEVRA: mustNevra(t, "foo-1.0-1.x86_64")}})

	s := Subject("bar-1.0-1.x86_64")
	poss := s.NevraPossibilities(sk)
	if len(poss) != 0 {
		t.Fatalf("NevraPossibilities() = %v, want none (name not in sack)", poss)
	}
}

func TestModuleFormPossibilities(t *testing.T) {
	s := Subject("httpd:2.4")
	poss := s.ModuleFormPossibilities()
	if len(poss) == 0 {
		t.Fatal("expected at least one module-form possibility")
	}
}

func TestGetBestSolutionEmptyWhenNoMatch(t *testing.T) {
	sk := sack.New()
	q, tier := GetBestSolution(context.Background(), Subject("nope"), sk, true, true, false, nil)
	if tier != TierNone {
		t.Fatalf("tier = %v, want TierNone", tier)
	}
	if len(q.Run()) != 0 {
		t.Fatal("expected empty query, not error, on no match")
	}
}

func TestGetBestSolutionNevraTier(t *testing.T) {
	sk := sack.New()
	r := sk.NewRepo("fedora", false, false, false)
	sk.Pool().AddSolvables(r.ID, []pool.Solvable{{NEVRA: mustNevra(t, "foo-1.0-1.x86_64")}})
	q, tier := GetBestSolution(context.Background(), Subject("foo-1.0-1.x86_64"), sk, true, false, false, nil)
	if tier != TierNevra {
		t.Fatalf("tier = %v, want TierNevra", tier)
	}
	if len(q.Run()) != 1 {
		t.Fatalf("Run() = %v, want 1 match", q.Run())
	}
}
