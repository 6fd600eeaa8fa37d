package transaction

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/rpm-software-management/libdnf-sub004/goal"
	"github.com/rpm-software-management/libdnf-sub004/history"
	"github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn"
	"github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn/rpmtxnmock"
	"github.com/rpm-software-management/libdnf-sub004/internal/satsolver"
	"github.com/rpm-software-management/libdnf-sub004/lock"
	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/progress"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

func mustNevra(t *testing.T, s string) nevra.Nevra {
	t.Helper()
	n, _, err := nevra.Parse(s)
	if err != nil {
		t.Fatalf("nevra.Parse(%q): %v", s, err)
	}
	return n
}

type fakeSolver struct{ result satsolver.Result }

func (f *fakeSolver) Run(p *pool.Pool, jobs []satsolver.Job, protected, excluded map[pool.ID]bool, flags satsolver.Flags) (satsolver.Result, error) {
	return f.result, nil
}

type fakeSource struct {
	fetched map[pool.ID]int
}

func (f *fakeSource) Cached(ctx context.Context, id pool.ID) (string, bool, error) { return "", false, nil }
func (f *fakeSource) Size(ctx context.Context, id pool.ID) (int64, error)          { return 1024, nil }
func (f *fakeSource) Fetch(ctx context.Context, id pool.ID) (string, error) {
	if f.fetched == nil {
		f.fetched = map[pool.ID]int{}
	}
	f.fetched[id]++
	return fmt.Sprintf("/cache/%d.rpm", id), nil
}

type fakeSpace struct{ free int64 }

func (f *fakeSpace) FreeBytes(dir string) (int64, error) { return f.free, nil }

type fakeDB struct{ hash rpmtxn.VersionHash }

func (f *fakeDB) VersionHash(ctx context.Context) (rpmtxn.VersionHash, error) { return f.hash, nil }

type fakeSet struct {
	installed []string
	removed   []string
	testErr   []string
}

func (f *fakeSet) AddInstall(ctx context.Context, path string, allowUntrusted, isUpdate bool) error {
	f.installed = append(f.installed, path)
	return nil
}
func (f *fakeSet) AddRemove(ctx context.Context, nevra string) error {
	f.removed = append(f.removed, nevra)
	return nil
}
func (f *fakeSet) Test(ctx context.Context) ([]string, error) { return f.testErr, nil }
func (f *fakeSet) Run(ctx context.Context, cb func(nevra string)) ([]string, error) {
	for _, n := range f.installed {
		cb(n)
	}
	return nil, nil
}

func newFixtureSack(t *testing.T) (*sack.Sack, pool.ID) {
	t.Helper()
	sk := sack.New()
	repo := sk.NewRepo("base", false, false, false)
	repo.GpgCheck = true
	ids := sk.Pool().AddSolvables(repo.ID, []pool.Solvable{
		{NEVRA: mustNevra(t, "foo-1.0-1.x86_64"), RepoID: repo.ID, Kind: pool.KindBinary},
	})
	return sk, ids[0]
}

func newTestTxn(t *testing.T, solved satsolver.Result, keyVerified bool) (*Transaction, *fakeSet, *fakeSource) {
	t.Helper()
	sk, _ := newFixtureSack(t)
	g := goal.New(sk, &fakeSolver{result: solved})
	lockMgr := lock.New(t.TempDir())
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })

	fs := &fakeSet{}
	src := &fakeSource{}
	keys := rpmtxnmock.NewMockKeyStore(gomock.NewController(t))
	keys.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(keyVerified, "untrusted key", nil).AnyTimes()
	tx := New(sk, g, lockMgr, hist, &fakeDB{hash: "h0"}, keys,
		func() rpmtxn.Set { return fs }, src, &fakeSpace{free: 1 << 30},
		Config{CheckTransaction: true, OnlyTrusted: false, KeepCache: true})
	return tx, fs, src
}

func TestFullCommitSucceeds(t *testing.T) {
	_, pid := newFixtureSack(t)
	solved := satsolver.Result{Solvable: true, Steps: []satsolver.Step{{ID: pid, Kind: satsolver.TransitionInstall}}}
	tx, fs, _ := newTestTxn(t, solved, true)

	if err := tx.Depsolve(context.Background(), nil); err != nil {
		t.Fatalf("Depsolve: %v", err)
	}
	if tx.Phase() != PhasePlanned {
		t.Fatalf("Phase() = %v, want planned", tx.Phase())
	}
	if err := tx.CheckFreeSpace(t.TempDir()); err != nil {
		t.Fatalf("CheckFreeSpace: %v", err)
	}
	if err := tx.Download(context.Background()); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := tx.CheckUntrusted(context.Background()); err != nil {
		t.Fatalf("CheckUntrusted: %v", err)
	}
	st := progress.New(context.Background())
	if err := tx.Commit(context.Background(), st); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if tx.Phase() != PhaseDone {
		t.Fatalf("Phase() = %v, want done", tx.Phase())
	}
	if len(fs.installed) != 1 {
		t.Fatalf("len(installed) = %d, want 1", len(fs.installed))
	}
}

func TestCheckUntrustedFailsOnBadSignature(t *testing.T) {
	sk, pid := newFixtureSack(t)
	_ = sk
	solved := satsolver.Result{Solvable: true, Steps: []satsolver.Step{{ID: pid, Kind: satsolver.TransitionInstall}}}
	tx, _, _ := newTestTxn(t, solved, false)

	if err := tx.Depsolve(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Download(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := tx.CheckUntrusted(context.Background()); err == nil {
		t.Fatal("CheckUntrusted should fail against an unverified signature")
	}
}

func TestDepsolveFailsOnUnsolvableGoal(t *testing.T) {
	solved := satsolver.Result{Solvable: false, Problems: []satsolver.Problem{{Rule: "conflict", Description: "nope"}}}
	tx, _, _ := newTestTxn(t, solved, true)
	if err := tx.Depsolve(context.Background(), nil); err == nil {
		t.Fatal("Depsolve should fail for an unsolvable goal")
	}
}

func TestCheckFreeSpaceFailsWhenInsufficient(t *testing.T) {
	sk, pid := newFixtureSack(t)
	_ = sk
	solved := satsolver.Result{Solvable: true, Steps: []satsolver.Step{{ID: pid, Kind: satsolver.TransitionInstall}}}
	tx, _, _ := newTestTxn(t, solved, true)
	tx.space = &fakeSpace{free: 1}

	if err := tx.Depsolve(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.CheckFreeSpace(t.TempDir()); err == nil {
		t.Fatal("CheckFreeSpace should fail when free space is insufficient")
	}
}
