// Package sack implements the central data model described in spec.md §4.1:
// a pool of solvables plus the repository and visibility machinery layered
// over it. It is grounded on claircore's libindex.Libindex for the
// "owns a pool of backing resources, exposes setup/load operations, mutex
// guards mutable config" shape, and on pool for the identity model
// underneath it.
package sack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/pool"
)

// LoadFlags controls optional behavior of [Sack.LoadSystemRepo] and
// [Sack.LoadRepo].
type LoadFlags uint32

// Defined flags, per spec.md §4.1.
const (
	LoadBuildCache LoadFlags = 1 << iota
	LoadFilelists
	LoadOther
	LoadPrestodelta
	LoadUpdateinfo
)

// Has reports whether f includes bit.
func (f LoadFlags) Has(bit LoadFlags) bool { return f&bit != 0 }

// RepoReader is the external collaborator that reads a repository's
// metadata into solvables, standing in for the RPM/solv parsing internals
// this package treats as out of scope.
type RepoReader interface {
	// Checksum identifies the metadata currently on offer, used to decide
	// between a cache hit and a fresh parse.
	Checksum(ctx context.Context) (string, error)
	// ReadPrimary parses primary package metadata into solvables.
	ReadPrimary(ctx context.Context) ([]pool.Solvable, error)
	// ReadOptional parses one optional extension ("filelists", "other",
	// "prestodelta", "updateinfo"). Returns [dnfcore.ErrNoCapability] if the
	// repo doesn't carry that extension.
	ReadOptional(ctx context.Context, extension string) error
}

// SolvCache is the external collaborator for the binary solv-file cache:
// cache hit avoids a full metadata parse.
type SolvCache interface {
	// Load returns cached solvables if checksum matches what's on disk,
	// or (nil, false, nil) on a cache miss.
	Load(ctx context.Context, key, checksum string) ([]pool.Solvable, bool, error)
	// Store persists solvables under key, tagged with checksum.
	Store(ctx context.Context, key, checksum string, sv []pool.Solvable) error
}

// Repo is a named repository registered with a [Sack].
type Repo struct {
	Name        string
	ID          pool.RepoID
	System      bool
	Cmdline     bool
	Hotfix      bool
	UseIncludes bool
	// GpgCheck reports whether packages from this repo must verify against
	// the trusted keyring before they may be committed.
	GpgCheck bool
	// Priority orders this repo against others when a selector needs a
	// tie-break; lower wins, mirroring dnf.conf's repo priority.
	Priority int
}

// idSet is a plain set of pool solvable ids. The pack carries no bitset
// library, and a considered-map of this size (tens of thousands of entries
// at the high end for a full distro mirror) is well within what a Go map
// handles without needing a packed representation.
type idSet map[pool.ID]struct{}

func (s idSet) has(id pool.ID) bool { _, ok := s[id]; return ok }
func (s idSet) add(id pool.ID)      { s[id] = struct{}{} }
func (s idSet) del(id pool.ID)      { delete(s, id) }

func unionInto(dst idSet, src idSet) {
	for id := range src {
		dst[id] = struct{}{}
	}
}

// Sack owns the solvable pool and orchestrates its visibility, per
// spec.md §3's Sack type and §4.1's visibility algorithm.
//
// The zero Sack is not ready for use; construct one with [New].
type Sack struct {
	mu sync.Mutex

	pool *pool.Pool
	arch string

	cacheDir string
	rootDir  string

	repos    []Repo
	repoByID map[pool.RepoID]*Repo

	installonlyNames []string
	installonlyLimit int

	repoExcludes    idSet
	pkgExcludes     idSet
	pkgIncludes     idSet
	modularExcludes idSet
	modularIncludes idSet

	consideredMap   idSet
	consideredFresh bool

	runningKernelID    pool.ID
	runningKernelFound bool
	runningKernelKnown bool

	cache SolvCache
}

// New returns an empty Sack with an empty [pool.Pool].
func New() *Sack {
	return &Sack{
		pool:            pool.New(),
		repoByID:        make(map[pool.RepoID]*Repo),
		repoExcludes:    idSet{},
		pkgExcludes:     idSet{},
		pkgIncludes:     idSet{},
		modularExcludes: idSet{},
		modularIncludes: idSet{},
	}
}

// Opts configures a [Sack] at construction time, mirroring claircore's
// libindex.Opts.Parse pattern: fill in defaults, reject what's missing, so
// callers get one error at setup instead of a confusing failure deep inside
// a later operation.
type Opts struct {
	// CacheDir holds solv-caches. Required.
	CacheDir string
	// RootDir is the installroot used for cache-dir layout and module
	// persistence. Defaults to "/" if empty.
	RootDir string
	// Arch is the base architecture. Auto-detected from runtime.GOARCH via
	// [rpmArch] if empty.
	Arch string
	// InstallonlyNames lists package names exempt from replace-on-upgrade
	// (kernels, by convention).
	InstallonlyNames []string
	// InstallonlyLimit caps how many installonly versions are kept; 0 means
	// unlimited.
	InstallonlyLimit int
}

// Parse validates o, filling in defaults, and returns a ready-to-use Sack.
func (o *Opts) Parse() (*Sack, error) {
	if o.CacheDir == "" {
		return nil, &dnfcore.Error{Op: "sack.Opts.Parse", Kind: dnfcore.ErrInternal, Message: "CacheDir is required"}
	}
	if o.RootDir == "" {
		o.RootDir = "/"
	}
	sk := New()
	sk.SetCacheDir(o.CacheDir)
	sk.SetRootDir(o.RootDir)
	if o.Arch != "" {
		sk.SetArch(o.Arch)
	}
	if len(o.InstallonlyNames) > 0 {
		sk.SetInstallonlyNames(o.InstallonlyNames)
	}
	if o.InstallonlyLimit > 0 {
		sk.SetInstallonlyLimit(o.InstallonlyLimit)
	}
	return sk, nil
}

// Pool returns the sack's underlying solvable pool, for packages (query,
// module, goal) that need direct access to solvable data.
func (s *Sack) Pool() *pool.Pool { return s.pool }

// SetCacheDir sets the directory solv-caches are read from and written to.
func (s *Sack) SetCacheDir(dir string) { s.mu.Lock(); defer s.mu.Unlock(); s.cacheDir = dir }

// SetArch sets the sack's base architecture. If never called, [Sack.Setup]
// auto-detects via runtime.GOARCH translated to an RPM arch name.
func (s *Sack) SetArch(arch string) { s.mu.Lock(); defer s.mu.Unlock(); s.arch = arch }

// SetRootDir sets the installroot used for cache-dir creation and module
// persistence.
func (s *Sack) SetRootDir(dir string) { s.mu.Lock(); defer s.mu.Unlock(); s.rootDir = dir }

// SetSolvCache wires an external solv-cache implementation.
func (s *Sack) SetSolvCache(c SolvCache) { s.mu.Lock(); defer s.mu.Unlock(); s.cache = c }

// rpmArch maps the small set of GOARCH values this module cares about to
// their RPM arch name. Unknown values pass through unchanged: most RPM
// distros target x86_64/aarch64/ppc64le/s390x, and an unmapped GOARCH is
// more useful surfaced as-is than silently coerced.
var rpmArch = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
	"ppc64le": "ppc64le",
	"s390x": "s390x",
	"386":   "i686",
}

// Setup creates the sack's cache directory, auto-detecting arch if unset.
//
// Fails with [dnfcore.ErrFileInvalid] if cacheDir cannot be created.
func (s *Sack) Setup(flags LoadFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.arch == "" {
		if a, ok := rpmArch[runtime.GOARCH]; ok {
			s.arch = a
		} else {
			s.arch = runtime.GOARCH
		}
	}
	if s.cacheDir != "" {
		if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
			return &dnfcore.Error{Op: "sack.Sack.Setup", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
	}
	return nil
}

// NewRepo registers a repository with the sack and returns a handle to it.
// The repo's solvables are later attached via [Sack.LoadSystemRepo] or
// [Sack.LoadRepo].
func (s *Sack) NewRepo(name string, system, cmdline, hotfix bool) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Repo{Name: name, ID: s.pool.NewRepo(), System: system, Cmdline: cmdline, Hotfix: hotfix, UseIncludes: true}
	s.repos = append(s.repos, r)
	rp := &s.repos[len(s.repos)-1]
	s.repoByID[r.ID] = rp
	return rp
}

// RepoByID returns the repo registered under id, or nil if none is.
func (s *Sack) RepoByID(id pool.RepoID) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repoByID[id]
}

// LoadSystemRepo reads the installed RPM database via rr into the system
// repo, preferring a checksum-matching solv-cache when present.
//
// Fails with [dnfcore.ErrFileInvalid] if the database can't be read.
func (s *Sack) LoadSystemRepo(ctx context.Context, repo *Repo, rr RepoReader, flags LoadFlags) error {
	return s.loadInto(ctx, repo, rr, flags, "system")
}

// LoadRepo loads repo's primary metadata (and, per flags, optional
// extensions) via rr. A present-but-corrupt optional extension is fatal; an
// absent one (rr returns [dnfcore.ErrNoCapability]) is skipped and not
// reported to the caller.
func (s *Sack) LoadRepo(ctx context.Context, repo *Repo, rr RepoReader, flags LoadFlags) error {
	return s.loadInto(ctx, repo, rr, flags, "repo")
}

func (s *Sack) loadInto(ctx context.Context, repo *Repo, rr RepoReader, flags LoadFlags, cacheKind string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "sack.Sack", "repo", repo.Name)
	sum, err := rr.Checksum(ctx)
	if err != nil {
		return &dnfcore.Error{Op: "sack.Sack.loadInto", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}

	cacheKey := filepath.Join(s.cacheDirFor(), cacheKind+"-"+repo.Name+".solv")
	var sv []pool.Solvable
	if s.cache != nil {
		cached, hit, err := s.cache.Load(ctx, cacheKey, sum)
		if err != nil {
			zlog.Warn(ctx).Err(err).Msg("solv-cache read failed, falling back to full parse")
		}
		if hit {
			sv = cached
		}
	}
	if sv == nil {
		sv, err = rr.ReadPrimary(ctx)
		if err != nil {
			return &dnfcore.Error{Op: "sack.Sack.loadInto", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
		if flags.Has(LoadBuildCache) && s.cache != nil {
			if err := s.cache.Store(ctx, cacheKey, sum, sv); err != nil {
				zlog.Warn(ctx).Err(err).Msg("solv-cache write failed")
			}
		}
	}

	if err := s.loadOptionalExtensions(ctx, rr, flags); err != nil {
		return err
	}

	s.mu.Lock()
	s.pool.AddSolvables(repo.ID, sv)
	s.consideredFresh = false
	s.mu.Unlock()
	return nil
}

func (s *Sack) loadOptionalExtensions(ctx context.Context, rr RepoReader, flags LoadFlags) error {
	type ext struct {
		name string
		flag LoadFlags
	}
	exts := []ext{
		{"filelists", LoadFilelists},
		{"other", LoadOther},
		{"prestodelta", LoadPrestodelta},
		{"updateinfo", LoadUpdateinfo},
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range exts {
		if !flags.Has(e.flag) {
			continue
		}
		e := e
		g.Go(func() error {
			err := rr.ReadOptional(ctx, e.name)
			if err == nil {
				return nil
			}
			if de := (*dnfcore.Error)(nil); asNoCapability(err, &de) {
				zlog.Debug(ctx).Str("extension", e.name).Msg("optional extension not present, skipping")
				return nil
			}
			return &dnfcore.Error{Op: "sack.Sack.loadOptionalExtensions", Kind: dnfcore.ErrFileInvalid, Inner: err, Message: e.name}
		})
	}
	return g.Wait()
}

func asNoCapability(err error, target **dnfcore.Error) bool {
	de, ok := err.(*dnfcore.Error)
	if ok && de.Kind == dnfcore.ErrNoCapability {
		*target = de
		return true
	}
	return false
}

func (s *Sack) cacheDirFor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheDir
}

// AddExcludes adds ids to the global package-exclude set.
func (s *Sack) AddExcludes(ids ...pool.ID) { s.mutateSet(s.pkgExcludes, addOp, ids) }

// RemoveExcludes removes ids from the global package-exclude set.
func (s *Sack) RemoveExcludes(ids ...pool.ID) { s.mutateSet(s.pkgExcludes, delOp, ids) }

// SetExcludes replaces the global package-exclude set.
func (s *Sack) SetExcludes(ids ...pool.ID) { s.resetSet(&s.pkgExcludes, ids) }

// ResetExcludes clears the global package-exclude set.
func (s *Sack) ResetExcludes() { s.resetSet(&s.pkgExcludes, nil) }

// AddIncludes adds ids to the global package-include set.
func (s *Sack) AddIncludes(ids ...pool.ID) { s.mutateSet(s.pkgIncludes, addOp, ids) }

// RemoveIncludes removes ids from the global package-include set.
func (s *Sack) RemoveIncludes(ids ...pool.ID) { s.mutateSet(s.pkgIncludes, delOp, ids) }

// SetIncludes replaces the global package-include set.
func (s *Sack) SetIncludes(ids ...pool.ID) { s.resetSet(&s.pkgIncludes, ids) }

// ResetIncludes clears the global package-include set.
func (s *Sack) ResetIncludes() { s.resetSet(&s.pkgIncludes, nil) }

// AddModuleExcludes adds ids to the modular-exclude set, as computed by a
// module container's compute_rpm_filter.
func (s *Sack) AddModuleExcludes(ids ...pool.ID) { s.mutateSet(s.modularExcludes, addOp, ids) }

// RemoveModuleExcludes removes ids from the modular-exclude set.
func (s *Sack) RemoveModuleExcludes(ids ...pool.ID) { s.mutateSet(s.modularExcludes, delOp, ids) }

// SetModuleExcludes replaces the modular-exclude set.
func (s *Sack) SetModuleExcludes(ids ...pool.ID) { s.resetSet(&s.modularExcludes, ids) }

// ResetModuleExcludes clears the modular-exclude set.
func (s *Sack) ResetModuleExcludes() { s.resetSet(&s.modularExcludes, nil) }

// SetModuleIncludes replaces the modular-include set, as computed by a
// module container's compute_rpm_filter.
func (s *Sack) SetModuleIncludes(ids ...pool.ID) { s.resetSet(&s.modularIncludes, ids) }

type setOp int

const (
	addOp setOp = iota
	delOp
)

func (s *Sack) mutateSet(set idSet, op setOp, ids []pool.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if op == addOp {
			set.add(id)
		} else {
			set.del(id)
		}
	}
	s.consideredFresh = false
}

func (s *Sack) resetSet(set *idSet, ids []pool.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := make(idSet, len(ids))
	for _, id := range ids {
		ns.add(id)
	}
	*set = ns
	s.consideredFresh = false
}

// SetUseIncludes sets the per-repo flag controlling whether repo
// contributes only its pkg_includes-selected solvables (true) or all of its
// solvables regardless of the global includes map (false). A nil repo
// applies to every currently registered repo.
func (s *Sack) SetUseIncludes(repo *Repo, use bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if repo != nil {
		repo.UseIncludes = use
	} else {
		for i := range s.repos {
			s.repos[i].UseIncludes = use
		}
	}
	s.consideredFresh = false
}

// Invalidate marks the considered map stale, forcing the next
// [Sack.MakeConsideredReady] call to recompute it. Called by
// transaction.Transaction after a successful commit, since the installed
// package set (and therefore the system repo's solvables) has changed
// underneath the sack.
func (s *Sack) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consideredFresh = false
}

// MakeConsideredReady recomputes the considered map if stale, per the
// five-step algorithm in spec.md §4.1. Idempotent when already fresh.
func (s *Sack) MakeConsideredReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consideredFresh {
		return
	}
	s.recomputeConsidered()
	s.consideredFresh = true
}

// recomputeConsidered must be called with s.mu held.
func (s *Sack) recomputeConsidered() {
	all := s.pool.All()
	considered := make(idSet, len(all))
	for _, id := range all {
		considered.add(id)
	}

	isSystem := make(map[pool.ID]bool, len(all))
	for i := range s.repos {
		r := &s.repos[i]
		if !r.System {
			continue
		}
		start, end := s.pool.RepoRange(r.ID)
		for id := start; id < end; id++ {
			isSystem[id] = true
		}
	}

	subtract := func(set idSet, exemptSystem bool) {
		for id := range set {
			if exemptSystem && isSystem[id] {
				continue
			}
			considered.del(id)
		}
	}
	// The system repo passes through the automatic modular/repo exclude
	// mechanisms, but an explicit AddExcludes/SetExcludes call still
	// removes system ids.
	subtract(s.modularExcludes, true)
	subtract(s.repoExcludes, true)
	subtract(s.pkgExcludes, false)

	if len(s.pkgIncludes) > 0 {
		effective := make(idSet, len(s.pkgIncludes))
		unionInto(effective, s.pkgIncludes)
		for i := range s.repos {
			r := &s.repos[i]
			if r.UseIncludes {
				continue
			}
			start, end := s.pool.RepoRange(r.ID)
			for id := start; id < end; id++ {
				effective.add(id)
			}
		}
		for id := range considered {
			if isSystem[id] {
				continue
			}
			if !effective.has(id) {
				considered.del(id)
			}
		}
	}

	s.consideredMap = considered
}

// Considered reports whether id is currently visible, recomputing the
// considered map first if stale.
func (s *Sack) Considered(id pool.ID) bool {
	s.MakeConsideredReady()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consideredMap.has(id)
}

// ConsideredIDs returns every currently visible solvable id, in ascending
// order, recomputing the considered map first if stale.
func (s *Sack) ConsideredIDs() []pool.ID {
	s.MakeConsideredReady()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pool.ID, 0, len(s.consideredMap))
	for _, id := range s.pool.All() {
		if s.consideredMap.has(id) {
			out = append(out, id)
		}
	}
	return out
}

// KernelProbe detects the currently running kernel's NEVRA, supplied by the
// caller since this package has no way to introspect the host on its own.
type KernelProbe func(ctx context.Context) (string, error)

// RunningKernelID returns the pool id of the currently running kernel
// package among this sack's solvables, memoizing the result of probe.
//
// Returns (0, false) if the running kernel isn't present in any loaded
// repo, which is not itself an error: the caller decides whether that's
// fatal.
func (s *Sack) RunningKernelID(ctx context.Context, probe KernelProbe) (pool.ID, bool, error) {
	s.mu.Lock()
	if s.runningKernelKnown {
		id, found := s.runningKernelID, s.runningKernelFound
		s.mu.Unlock()
		return id, found, nil
	}
	s.mu.Unlock()

	nevraStr, err := probe(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("sack: running kernel probe: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.pool.All() {
		if s.pool.Solvable(id).NEVRA.String() == nevraStr {
			s.runningKernelID = id
			s.runningKernelFound = true
			s.runningKernelKnown = true
			return id, true, nil
		}
	}
	s.runningKernelKnown = true
	return 0, false, nil
}

// InstallonlyNames returns the configured install-only package names (e.g.
// "kernel", "kernel-core"), whose upgrades are installed alongside existing
// versions rather than replacing them, up to [Sack.InstallonlyLimit].
func (s *Sack) InstallonlyNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.installonlyNames...)
}

// SetInstallonlyNames sets the install-only package name list.
func (s *Sack) SetInstallonlyNames(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installonlyNames = append([]string(nil), names...)
}

// InstallonlyLimit returns the configured maximum number of install-only
// package versions kept installed at once; 0 means unlimited.
func (s *Sack) InstallonlyLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installonlyLimit
}

// SetInstallonlyLimit sets the install-only package version limit.
func (s *Sack) SetInstallonlyLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installonlyLimit = n
}
