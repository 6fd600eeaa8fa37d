// Package transaction implements the state machine described in spec.md
// §4.4: turning a resolved [goal.Goal] into a committed set of changes to
// the filesystem and RPM database. Grounded on claircore's libvuln update
// driver for the overall "resolve, verify, apply, record" shape, and on
// libdnf's dnf-transaction.cpp for the depsolve/download/verify/commit
// phase ordering itself.
package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/goal"
	"github.com/rpm-software-management/libdnf-sub004/history"
	"github.com/rpm-software-management/libdnf-sub004/internal/rpmtxn"
	"github.com/rpm-software-management/libdnf-sub004/internal/satsolver"
	"github.com/rpm-software-management/libdnf-sub004/lock"
	"github.com/rpm-software-management/libdnf-sub004/module"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/progress"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// Phase is a state in the transaction lifecycle of spec.md §4.4.
type Phase int

// Defined phases.
const (
	PhaseIdle Phase = iota
	PhasePlanned
	PhaseDownloaded
	PhaseDone
	PhaseFailed
)

// String implements [fmt.Stringer].
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlanned:
		return "planned"
	case PhaseDownloaded:
		return "downloaded"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Source is the external package-retrieval collaborator: repo metadata
// download and HTTP transport are a Non-goal of this core (spec.md §1), so
// the transaction depends on this narrow interface instead.
type Source interface {
	// Cached reports a previously downloaded file for id, if its on-disk
	// checksum still matches the repo metadata's recorded checksum.
	Cached(ctx context.Context, id pool.ID) (path string, ok bool, err error)
	// Size returns id's declared download size in bytes, from repo
	// metadata, without fetching the package itself.
	Size(ctx context.Context, id pool.ID) (int64, error)
	// Fetch downloads id's package file into the local cache, returning its
	// path.
	Fetch(ctx context.Context, id pool.ID) (path string, err error)
}

// FreeSpacer reports available disk space, used by check_free_space.
type FreeSpacer interface {
	FreeBytes(dir string) (int64, error)
}

// Config bundles the policy knobs of spec.md §4.4 and §7.
type Config struct {
	CheckTransaction bool // run set.Test before set.Run
	OnlyTrusted      bool // global "only trusted" flag; false relaxes gpgcheck=off repos only
	KeepCache        bool // false deletes downloaded files after a successful commit
}

// Transaction drives one depsolve/download/commit cycle against a sack.
//
// The zero Transaction is not usable; construct one with [New].
type Transaction struct {
	sk      *sack.Sack
	g       *goal.Goal
	lockMgr *lock.Manager
	hist    *history.Store
	db      rpmtxn.Database
	keys    rpmtxn.KeyStore
	newSet  func() rpmtxn.Set
	src     Source
	space   FreeSpacer
	modules *module.Container // optional; nil skips module state writes
	cfg     Config

	phase      Phase
	toDownload []pool.ID
	paths      map[pool.ID]string
	txnID      string
}

// New returns an idle Transaction over sk, driven by g, with newSet
// invoked once per commit to obtain a fresh RPM transaction set.
func New(sk *sack.Sack, g *goal.Goal, lockMgr *lock.Manager, hist *history.Store, db rpmtxn.Database, keys rpmtxn.KeyStore, newSet func() rpmtxn.Set, src Source, space FreeSpacer, cfg Config) *Transaction {
	return &Transaction{
		sk: sk, g: g, lockMgr: lockMgr, hist: hist, db: db, keys: keys, newSet: newSet,
		src: src, space: space, cfg: cfg, phase: PhaseIdle,
	}
}

// SetModules wires a module container whose enabled/disabled state is
// persisted to disk on a successful commit, per spec.md §5's "Module state
// files ... are written only from within transaction.commit on success."
func (t *Transaction) SetModules(c *module.Container) { t.modules = c }

// Phase returns the transaction's current lifecycle state.
func (t *Transaction) Phase() Phase { return t.phase }

// Depsolve resolves t's goal and computes the set of packages that need a
// fresh download: (install ∪ reinstall ∪ downgrade ∪ upgrade), filtered by
// any already-cached file with a matching checksum.
func (t *Transaction) Depsolve(ctx context.Context, probe goal.RunningKernelProbe) error {
	if t.phase != PhaseIdle {
		return &dnfcore.Error{Op: "transaction.Transaction.Depsolve", Kind: dnfcore.ErrInternal, Message: "depsolve called outside idle phase"}
	}
	ok, err := t.g.Run(ctx, satsolver.FlagAllowUninstall, probe)
	if err != nil {
		return err
	}
	if !ok {
		return &dnfcore.Error{Op: "transaction.Transaction.Depsolve", Kind: dnfcore.ErrNoSolution, Message: t.describeProblems()}
	}

	var need []pool.ID
	need = append(need, t.g.ListInstalls()...)
	need = append(need, t.g.ListReinstalls()...)
	need = append(need, t.g.ListDowngrades()...)
	need = append(need, t.g.ListUpgrades()...)

	t.paths = make(map[pool.ID]string, len(need))
	t.toDownload = t.toDownload[:0]
	for _, id := range need {
		if path, ok, err := t.src.Cached(ctx, id); err == nil && ok {
			t.paths[id] = path
			continue
		}
		t.toDownload = append(t.toDownload, id)
	}
	t.phase = PhasePlanned
	return nil
}

func (t *Transaction) describeProblems() string {
	var b strings.Builder
	for i := 0; i < t.g.CountProblems(); i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(t.g.DescribeProblemRules(i, true))
	}
	return b.String()
}

// CheckFreeSpace fails with [dnfcore.ErrNoSpace] if the cache filesystem
// doesn't have room for every package still pending download.
func (t *Transaction) CheckFreeSpace(cacheDir string) error {
	var total int64
	for _, id := range t.toDownload {
		size, err := t.src.Size(context.Background(), id)
		if err != nil {
			return &dnfcore.Error{Op: "transaction.Transaction.CheckFreeSpace", Kind: dnfcore.ErrCannotFetchSource, Inner: err}
		}
		total += size
	}
	free, err := t.space.FreeBytes(cacheDir)
	if err != nil {
		return &dnfcore.Error{Op: "transaction.Transaction.CheckFreeSpace", Kind: dnfcore.ErrInternal, Inner: err}
	}
	if free < total {
		return &dnfcore.Error{Op: "transaction.Transaction.CheckFreeSpace", Kind: dnfcore.ErrNoSpace,
			Message: fmt.Sprintf("need %d bytes, have %d", total, free)}
	}
	return nil
}

// Download fetches every package in the download set and records its
// local path, advancing to [PhaseDownloaded].
func (t *Transaction) Download(ctx context.Context) error {
	if t.phase != PhasePlanned {
		return &dnfcore.Error{Op: "transaction.Transaction.Download", Kind: dnfcore.ErrInternal, Message: "download called outside planned phase"}
	}
	for _, id := range t.toDownload {
		path, err := t.src.Fetch(ctx, id)
		if err != nil {
			return &dnfcore.Error{Op: "transaction.Transaction.Download", Kind: dnfcore.ErrCannotFetchSource, Inner: err}
		}
		t.paths[id] = path
	}
	t.phase = PhaseDownloaded
	return nil
}

// CheckUntrusted verifies every planned install against the trusted
// keyring, per spec.md §4.4: a repo with gpgcheck enabled must verify, and
// a missing/untrusted/corrupt signature is fatal unless the repo has
// gpgcheck disabled and the global OnlyTrusted flag is also off.
func (t *Transaction) CheckUntrusted(ctx context.Context) error {
	for _, id := range t.installSet() {
		sv := t.sk.Pool().Solvable(id)
		if sv == nil {
			continue
		}
		repo := t.sk.RepoByID(sv.RepoID)
		gpgcheck := repo != nil && repo.GpgCheck
		if !gpgcheck && !t.cfg.OnlyTrusted {
			continue
		}
		path, ok := t.paths[id]
		if !ok {
			continue
		}
		verified, reason, err := t.keys.Verify(ctx, path)
		if err != nil {
			return &dnfcore.Error{Op: "transaction.Transaction.CheckUntrusted", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
		if !verified {
			return &dnfcore.Error{Op: "transaction.Transaction.CheckUntrusted", Kind: dnfcore.ErrGpgSignatureInvalid,
				Message: fmt.Sprintf("%s: %s", sv.NEVRA.String(), reason)}
		}
	}
	return nil
}

func (t *Transaction) installSet() []pool.ID {
	var ids []pool.ID
	ids = append(ids, t.g.ListInstalls()...)
	ids = append(ids, t.g.ListReinstalls()...)
	ids = append(ids, t.g.ListDowngrades()...)
	ids = append(ids, t.g.ListUpgrades()...)
	return ids
}

// Commit acquires the rpmdb process lock, stages and runs the RPM
// transaction, and records it to history. The process lock is held until
// Commit returns, per spec.md §5, and cancellation is disabled for st.
func (t *Transaction) Commit(ctx context.Context, st *progress.State) error {
	if t.phase != PhaseDownloaded {
		return &dnfcore.Error{Op: "transaction.Transaction.Commit", Kind: dnfcore.ErrInternal, Message: "commit called outside downloaded phase"}
	}

	st.SetCancellable(false)
	st.ActionStart(progress.ActionCommit, "")
	defer st.ActionStop(progress.ActionCommit)

	tok, err := t.lockMgr.Take(ctx, lock.KindRPMDB, lock.ModeProcess)
	if err != nil {
		return &dnfcore.Error{Op: "transaction.Transaction.Commit", Kind: dnfcore.ErrCannotGetLock, Inner: err}
	}
	defer t.lockMgr.Release(tok)

	pre, err := t.db.VersionHash(ctx)
	if err != nil {
		return &dnfcore.Error{Op: "transaction.Transaction.Commit", Kind: dnfcore.ErrInternal, Inner: err}
	}
	t.txnID, err = t.hist.Begin(ctx, pre, time.Now().Unix())
	if err != nil {
		return err
	}

	set := t.newSet()
	steps := t.g.Steps()
	for _, s := range steps {
		if err := t.stageStep(ctx, set, s); err != nil {
			t.fail(ctx, err)
			return err
		}
	}

	if t.cfg.CheckTransaction {
		if probs, err := set.Test(ctx); err != nil {
			t.fail(ctx, err)
			return err
		} else if len(probs) > 0 {
			err := &dnfcore.Error{Op: "transaction.Transaction.Commit", Kind: dnfcore.ErrInternal, Message: strings.Join(probs, "; ")}
			t.fail(ctx, err)
			return err
		}
	}

	probs, err := set.Run(ctx, func(nevra string) {})
	if err != nil {
		t.fail(ctx, err)
		return err
	}
	if len(probs) > 0 {
		err := &dnfcore.Error{Op: "transaction.Transaction.Commit", Kind: dnfcore.ErrInternal, Message: strings.Join(probs, "; ")}
		t.fail(ctx, err)
		return err
	}

	for _, s := range steps {
		if err := t.hist.AddItem(ctx, t.txnID, stepToItem(t.sk, s)); err != nil {
			t.fail(ctx, err)
			return err
		}
	}

	post, err := t.db.VersionHash(ctx)
	if err != nil {
		t.fail(ctx, err)
		return err
	}
	if err := t.hist.End(ctx, t.txnID, history.StatusDone, post, time.Now().Unix(), ""); err != nil {
		return err
	}

	if t.modules != nil {
		if err := t.modules.Save(""); err != nil {
			return &dnfcore.Error{Op: "transaction.Transaction.Commit", Kind: dnfcore.ErrCannotWriteCache, Inner: err}
		}
	}

	t.sk.Invalidate()
	t.reset()
	t.phase = PhaseDone
	return nil
}

func (t *Transaction) fail(ctx context.Context, cause error) {
	t.hist.End(ctx, t.txnID, history.StatusFailed, "", time.Now().Unix(), cause.Error())
	t.reset()
	t.phase = PhaseFailed
}

func (t *Transaction) reset() {
	t.toDownload = nil
	t.paths = nil
	t.txnID = ""
}

func (t *Transaction) stageStep(ctx context.Context, set rpmtxn.Set, s satsolver.Step) error {
	sv := t.sk.Pool().Solvable(s.ID)
	if sv == nil {
		return &dnfcore.Error{Op: "transaction.Transaction.stageStep", Kind: dnfcore.ErrInternal, Message: "solved id not in pool"}
	}
	switch s.Kind {
	case satsolver.TransitionErase:
		return set.AddRemove(ctx, sv.NEVRA.String())
	case satsolver.TransitionInstall, satsolver.TransitionReinstall:
		path := t.paths[s.ID]
		return set.AddInstall(ctx, path, false, false)
	case satsolver.TransitionUpgrade, satsolver.TransitionDowngrade:
		path := t.paths[s.ID]
		return set.AddInstall(ctx, path, false, true)
	case satsolver.TransitionObsoleted:
		// obsoleted-by packages are removed as a side effect of the
		// obsoleting install; the RPM transaction set resolves this itself.
		return nil
	}
	return nil
}

// stepToItem classifies one solved step into a history.Item, per spec.md
// §4.4's action-classification rule. The solver already distinguishes
// upgrade/downgrade/obsoleted/erase/install/reinstall, so no separate
// name-matching pass is needed here: an obsoleted step that also appears as
// an upgrade step for the same name was already resolved to Upgrade by the
// solver, satisfying "upgrade wins."
func stepToItem(sk *sack.Sack, s satsolver.Step) history.Item {
	sv := sk.Pool().Solvable(s.ID)
	it := history.Item{Repo: ""}
	if sv != nil {
		it.NEVRA = sv.NEVRA.String()
		if repo := sk.RepoByID(sv.RepoID); repo != nil {
			it.Repo = repo.Name
		}
	}
	switch s.Kind {
	case satsolver.TransitionInstall:
		it.Action = history.ActionInstall
	case satsolver.TransitionUpgrade:
		it.Action = history.ActionUpgraded
	case satsolver.TransitionDowngrade:
		it.Action = history.ActionDowngraded
	case satsolver.TransitionObsoleted:
		it.Action = history.ActionObsoleted
	case satsolver.TransitionErase:
		it.Action = history.ActionErase
	case satsolver.TransitionReinstall:
		it.Action = history.ActionReinstall
	}
	if s.HasReplace {
		if rsv := sk.Pool().Solvable(s.Replaces); rsv != nil {
			it.Replaces = rsv.NEVRA.String()
		}
	}
	return it
}
