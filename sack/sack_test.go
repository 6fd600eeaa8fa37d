package sack

import (
	"context"
	"errors"
	"testing"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/pool"
)

type fakeReader struct {
	checksum string
	sv       []pool.Solvable
	missing  map[string]bool
	corrupt  map[string]bool
}

func (f *fakeReader) Checksum(ctx context.Context) (string, error) { return f.checksum, nil }
func (f *fakeReader) ReadPrimary(ctx context.Context) ([]pool.Solvable, error) {
	return f.sv, nil
}
func (f *fakeReader) ReadOptional(ctx context.Context, ext string) error {
	if f.missing[ext] {
		return &dnfcore.Error{Kind: dnfcore.ErrNoCapability}
	}
	if f.corrupt[ext] {
		return errors.New("corrupt")
	}
	return nil
}

func mustNevra(t *testing.T, s string) nevra.Nevra {
	t.Helper()
	n, _, err := nevra.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestLoadRepoBasic(t *testing.T) {
	s := New()
	if err := s.Setup(0); err != nil {
		t.Fatal(err)
	}
	r := s.NewRepo("fedora", false, false, false)
	fr := &fakeReader{
		checksum: "abc",
		sv: []pool.Solvable{
			{NEVRA: mustNevra(t, "foo-1-1.x86_64")},
			{NEVRA: mustNevra(t, "bar-1-1.x86_64")},
		},
	}
	if err := s.LoadRepo(context.Background(), r, fr, LoadFilelists); err != nil {
		t.Fatal(err)
	}
	ids := s.ConsideredIDs()
	if len(ids) != 2 {
		t.Fatalf("ConsideredIDs() = %v, want 2 entries", ids)
	}
}

func TestLoadRepoMissingOptionalIgnored(t *testing.T) {
	s := New()
	r := s.NewRepo("fedora", false, false, false)
	fr := &fakeReader{checksum: "abc", missing: map[string]bool{"filelists": true}}
	if err := s.LoadRepo(context.Background(), r, fr, LoadFilelists); err != nil {
		t.Fatalf("missing optional extension should not fail load: %v", err)
	}
}

func TestLoadRepoCorruptOptionalFatal(t *testing.T) {
	s := New()
	r := s.NewRepo("fedora", false, false, false)
	fr := &fakeReader{checksum: "abc", corrupt: map[string]bool{"filelists": true}}
	err := s.LoadRepo(context.Background(), r, fr, LoadFilelists)
	if !errors.Is(err, dnfcore.ErrFileInvalid) {
		t.Fatalf("LoadRepo() = %v, want ErrFileInvalid", err)
	}
}

func TestVisibilityExcludesAndIncludes(t *testing.T) {
	s := New()
	r := s.NewRepo("fedora", false, false, false)
	fr := &fakeReader{
		checksum: "abc",
		sv: []pool.Solvable{
			{NEVRA: mustNevra(t, "foo-1-1.x86_64")},
			{NEVRA: mustNevra(t, "bar-1-1.x86_64")},
			{NEVRA: mustNevra(t, "baz-1-1.x86_64")},
		},
	}
	if err := s.LoadRepo(context.Background(), r, fr, 0); err != nil {
		t.Fatal(err)
	}
	// 0=foo, 1=bar, 2=baz
	s.AddExcludes(1)
	ids := s.ConsideredIDs()
	if len(ids) != 2 {
		t.Fatalf("after exclude, ConsideredIDs() = %v, want 2 entries", ids)
	}
	for _, id := range ids {
		if id == 1 {
			t.Fatal("excluded id 1 (bar) should not be considered")
		}
	}

	s.SetIncludes(0)
	ids = s.ConsideredIDs()
	if len(ids) != 1 || ids[0] != 0 {
		t.Fatalf("after includes={0}, ConsideredIDs() = %v, want [0]", ids)
	}
}

func TestSystemRepoNeverExcludedByModularExcludes(t *testing.T) {
	s := New()
	sys := s.NewRepo("@System", true, false, false)
	fr := &fakeReader{checksum: "abc", sv: []pool.Solvable{{NEVRA: mustNevra(t, "kernel-5-1.x86_64")}}}
	if err := s.LoadSystemRepo(context.Background(), sys, fr, 0); err != nil {
		t.Fatal(err)
	}
	s.AddModuleExcludes(0)
	ids := s.ConsideredIDs()
	if len(ids) != 1 {
		t.Fatalf("system repo solvable should survive modular excludes, got %v", ids)
	}
}

func TestSystemRepoStillExcludedByExplicitAddExcludes(t *testing.T) {
	s := New()
	sys := s.NewRepo("@System", true, false, false)
	fr := &fakeReader{checksum: "abc", sv: []pool.Solvable{{NEVRA: mustNevra(t, "kernel-5-1.x86_64")}}}
	if err := s.LoadSystemRepo(context.Background(), sys, fr, 0); err != nil {
		t.Fatal(err)
	}
	s.AddExcludes(0)
	ids := s.ConsideredIDs()
	if len(ids) != 0 {
		t.Fatalf("explicit AddExcludes should remove a system solvable too, got %v", ids)
	}
}

func TestUseIncludesFalseBypassesRepoForIncludesFilter(t *testing.T) {
	s := New()
	r1 := s.NewRepo("fedora", false, false, false)
	fr1 := &fakeReader{checksum: "a", sv: []pool.Solvable{{NEVRA: mustNevra(t, "foo-1-1.x86_64")}}}
	if err := s.LoadRepo(context.Background(), r1, fr1, 0); err != nil {
		t.Fatal(err)
	}
	r2 := s.NewRepo("extras", false, false, false)
	fr2 := &fakeReader{checksum: "b", sv: []pool.Solvable{{NEVRA: mustNevra(t, "bar-1-1.x86_64")}}}
	if err := s.LoadRepo(context.Background(), r2, fr2, 0); err != nil {
		t.Fatal(err)
	}
	s.SetUseIncludes(r2, false)
	s.SetIncludes(0) // only "foo" explicitly included
	ids := s.ConsideredIDs()
	if len(ids) != 2 {
		t.Fatalf("ConsideredIDs() = %v, want both foo (included) and bar (use_includes=false)", ids)
	}
}

func TestRunningKernelIDMemoized(t *testing.T) {
	s := New()
	r := s.NewRepo("fedora", false, false, false)
	fr := &fakeReader{checksum: "abc", sv: []pool.Solvable{{NEVRA: mustNevra(t, "kernel-5.1-1.x86_64")}}}
	if err := s.LoadRepo(context.Background(), r, fr, 0); err != nil {
		t.Fatal(err)
	}
	calls := 0
	probe := func(ctx context.Context) (string, error) {
		calls++
		return "kernel-5.1-1.x86_64", nil
	}
	id, ok, err := s.RunningKernelID(context.Background(), probe)
	if err != nil || !ok || id != 0 {
		t.Fatalf("RunningKernelID() = (%v, %v, %v)", id, ok, err)
	}
	if _, _, err := s.RunningKernelID(context.Background(), probe); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("probe called %d times, want 1 (memoized)", calls)
	}
}

func TestOptsParseRejectsMissingCacheDir(t *testing.T) {
	o := &Opts{}
	if _, err := o.Parse(); !errors.Is(err, dnfcore.ErrInternal) {
		t.Fatalf("Parse() = %v, want ErrInternal for missing CacheDir", err)
	}
}

func TestOptsParseAppliesDefaults(t *testing.T) {
	o := &Opts{CacheDir: "/var/cache/dnf", InstallonlyNames: []string{"kernel"}, InstallonlyLimit: 3}
	sk, err := o.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if sk.rootDir != "/" {
		t.Fatalf("rootDir = %q, want default \"/\"", sk.rootDir)
	}
	if sk.InstallonlyLimit() != 3 {
		t.Fatalf("InstallonlyLimit() = %d, want 3", sk.InstallonlyLimit())
	}
	if got := sk.InstallonlyNames(); len(got) != 1 || got[0] != "kernel" {
		t.Fatalf("InstallonlyNames() = %v, want [kernel]", got)
	}
}
