package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginAddItemEndRoundtrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	id, err := s.Begin(ctx, rpmtxn.VersionHash("pre-hash"), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("Begin returned empty id")
	}
	if err := s.AddItem(ctx, id, Item{NEVRA: "foo-1.0-1.x86_64", Action: ActionInstall, Repo: "base"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddItem(ctx, id, Item{NEVRA: "bar-2.0-1.x86_64", Action: ActionUpgraded, Replaces: "bar-1.0-1.x86_64", Repo: "base"}); err != nil {
		t.Fatal(err)
	}
	if err := s.End(ctx, id, StatusDone, rpmtxn.VersionHash("post-hash"), 2000, ""); err != nil {
		t.Fatal(err)
	}

	var found *Record
	for r, err := range s.List(ctx, ListFilter{}) {
		if err != nil {
			t.Fatal(err)
		}
		if r.ID == id {
			found = &r
			break
		}
	}
	if found == nil {
		t.Fatal("transaction not found in List")
	}
	if found.Status != StatusDone {
		t.Errorf("Status = %q, want done", found.Status)
	}
	if found.PreVersionHash != "pre-hash" || found.PostVersionHash != "post-hash" {
		t.Errorf("version hashes = (%q, %q)", found.PreVersionHash, found.PostVersionHash)
	}
	if len(found.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(found.Items))
	}
}

func TestEndFailedLeavesPostHashEmpty(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	id, err := s.Begin(ctx, rpmtxn.VersionHash("pre-hash"), 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.End(ctx, id, StatusFailed, "", 1500, "download verification failed"); err != nil {
		t.Fatal(err)
	}

	for r, err := range s.List(ctx, ListFilter{}) {
		if err != nil {
			t.Fatal(err)
		}
		if r.ID != id {
			continue
		}
		if r.Status != StatusFailed {
			t.Errorf("Status = %q, want failed", r.Status)
		}
		if r.PostVersionHash != "" {
			t.Errorf("PostVersionHash = %q, want empty", r.PostVersionHash)
		}
		if r.Comment == "" {
			t.Error("Comment should carry the failure reason")
		}
		return
	}
	t.Fatal("transaction not found")
}

func TestListOrdersMostRecentFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	first, err := s.Begin(ctx, "h0", 100)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Begin(ctx, "h1", 200)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for r, err := range s.List(ctx, ListFilter{}) {
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	if len(ids) != 2 || ids[0] != second || ids[1] != first {
		t.Fatalf("List() order = %v, want [%s %s]", ids, second, first)
	}
}

func TestListFilterByStatus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	ok, err := s.Begin(ctx, "h0", 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.End(ctx, ok, StatusDone, "post", 150, ""); err != nil {
		t.Fatal(err)
	}
	bad, err := s.Begin(ctx, "h1", 200)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.End(ctx, bad, StatusFailed, "", 250, "boom"); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for r, err := range s.List(ctx, ListFilter{Status: StatusFailed}) {
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	if len(ids) != 1 || ids[0] != bad {
		t.Fatalf("List(Status: failed) = %v, want [%s]", ids, bad)
	}
}

func TestListFilterBySince(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	old, err := s.Begin(ctx, "h0", 100)
	if err != nil {
		t.Fatal(err)
	}
	recent, err := s.Begin(ctx, "h1", 500)
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for r, err := range s.List(ctx, ListFilter{Since: 300}) {
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	if len(ids) != 1 || ids[0] != recent {
		t.Fatalf("List(Since: 300) = %v, want [%s], excluding %s", ids, recent, old)
	}
}
