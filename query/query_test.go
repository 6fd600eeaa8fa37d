package query

import (
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

func newTestSack(t *testing.T) *sack.Sack {
	t.Helper()
	sk := sack.New()
	r := sk.NewRepo("fedora", false, false, false)
	sv := []pool.Solvable{
		{NEVRA: mustNevra(t, "foo-1.0-1.x86_64")},
		{NEVRA: mustNevra(t, "foo-2.0-1.x86_64")},
		{NEVRA: mustNevra(t, "foo-2.0-1.i686")},
		{NEVRA: mustNevra(t, "bar-1.0-1.x86_64")},
	}
	sk.Pool().AddSolvables(r.ID, sv)
	return sk
}

func TestFilterNameEq(t *testing.T) {
	sk := newTestSack(t)
	q := New(sk, nil)
	q.Filter(KeyName, CmpEq, "foo")
	ids := q.Run()
	if len(ids) != 3 {
		t.Fatalf("Run() = %v, want 3 foo packages", ids)
	}
}

func TestFilterCommutative(t *testing.T) {
	sk := newTestSack(t)
	a := New(sk, nil)
	a.Filter(KeyName, CmpEq, "foo")
	a.Filter(KeyArch, CmpEq, "x86_64")
	b := New(sk, nil)
	b.Filter(KeyArch, CmpEq, "x86_64")
	b.Filter(KeyName, CmpEq, "foo")
	ra, rb := a.Run(), b.Run()
	if len(ra) != len(rb) {
		t.Fatalf("filter order changed result: %v vs %v", ra, rb)
	}
	for i := range ra {
		if ra[i] != rb[i] {
			t.Fatalf("filter order changed result: %v vs %v", ra, rb)
		}
	}
}

func TestClone(t *testing.T) {
	sk := newTestSack(t)
	q := New(sk, nil)
	q.Filter(KeyName, CmpEq, "foo")
	c := q.Clone()
	c.Filter(KeyArch, CmpEq, "i686")
	if len(q.Run()) == len(c.Run()) {
		t.Fatal("clone should be independent of the original")
	}
}

func TestLatest(t *testing.T) {
	sk := newTestSack(t)
	q := New(sk, nil)
	q.Filter(KeyName, CmpEq, "foo")
	q.Latest()
	ids := q.Run()
	if len(ids) != 2 {
		t.Fatalf("Latest() = %v, want the 2 tied 2.0 builds (x86_64 + i686)", ids)
	}
	for _, id := range ids {
		if sk.Pool().Solvable(id).NEVRA.Version != "2.0" {
			t.Errorf("Latest() kept a non-latest version: %v", sk.Pool().Solvable(id).NEVRA)
		}
	}
}

func TestLatestPerArch(t *testing.T) {
	sk := newTestSack(t)
	q := New(sk, nil)
	q.LatestPerArch(1)
	ids := q.Run()
	if len(ids) != 3 {
		t.Fatalf("LatestPerArch(1) = %v, want 3 (foo.x86_64, foo.i686, bar.x86_64)", ids)
	}
}

func TestSetOps(t *testing.T) {
	a := []pool.ID{1, 2, 3}
	b := []pool.ID{2, 3, 4}
	if got := Union(a, b); len(got) != 4 {
		t.Errorf("Union = %v, want 4 elements", got)
	}
	if got := Intersection(a, b); len(got) != 2 {
		t.Errorf("Intersection = %v, want 2 elements", got)
	}
	if got := Difference(a, b); len(got) != 1 || got[0] != 1 {
		t.Errorf("Difference = %v, want [1]", got)
	}
}

func TestInvalidateAfterApply(t *testing.T) {
	sk := newTestSack(t)
	q := New(sk, nil)
	q.Filter(KeyName, CmpEq, "foo")
	first := q.Run()
	q.Filter(KeyArch, CmpEq, "i686")
	second := q.Run()
	if len(first) == len(second) {
		t.Fatal("adding a filter after Run should invalidate the cached result")
	}
}
