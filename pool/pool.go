// Package pool implements the solvable arena described in spec.md §9: the
// sack owns a pool and owns repos by id, and everything else refers to
// solvables and modules by integer id rather than by pointer. This sidesteps
// the reference-cycle problem present in the original C object graph
// (sack ↔ repos ↔ module container ↔ goal) without changing semantics.
package pool

import (
	"path"

	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/reldep"
)

// ID is a dense, stable solvable identifier. IDs remain valid for the
// pool's lifetime and become invalid once the pool is freed; solvables are
// never mutated after interning (spec.md §3).
type ID int32

// RepoID identifies a repository's solvable range within the pool.
type RepoID int32

// Solvable is an interned package identity plus its dependency relations.
//
// A Solvable is never mutated after being added to a Pool: doing so would
// violate the stability guarantee every other component (considered maps,
// query results, module filters) relies on.
type Solvable struct {
	NEVRA   nevra.Nevra
	RepoID  RepoID
	Kind    string // "binary" or "source"; see [KindBinary]/[KindSource]

	Provides    []reldep.ID
	Requires    []reldep.ID
	Conflicts   []reldep.ID
	Obsoletes   []reldep.ID
	Recommends  []reldep.ID
	Suggests    []reldep.ID
	Supplements []reldep.ID
	Enhances    []reldep.ID

	// SourceRPM names the source package that built this binary, empty for
	// source packages themselves.
	SourceRPM string
}

// Solvable kinds.
const (
	KindBinary = "binary"
	KindSource = "source"
)

// Pool is the arena that owns every interned Solvable for a [sack.Sack].
//
// The zero Pool is ready for use; a Pool must not be copied after use.
type Pool struct {
	Reldeps    reldep.Pool
	solvables  []Solvable
	repoRanges []repoRange
}

type repoRange struct {
	start, end ID // [start, end)
}

// New returns an empty Pool.
func New() *Pool {
	return &Pool{}
}

// Len returns the number of interned solvables.
func (p *Pool) Len() int { return len(p.solvables) }

// Solvable returns the solvable for id.
//
// Panics if id is out of range, indicating a stale id from a freed or
// different pool.
func (p *Pool) Solvable(id ID) *Solvable {
	return &p.solvables[id]
}

// NewRepo reserves a fresh, initially-empty contiguous range for a
// repository and returns its id. Solvables are subsequently appended to the
// pool via [Pool.AddSolvables], which must target the most recently created,
// still-open repo range — repositories form contiguous ranges in the pool,
// per spec.md §3, which means solvables from different repos cannot be
// interleaved after the fact.
func (p *Pool) NewRepo() RepoID {
	start := ID(len(p.solvables))
	p.repoRanges = append(p.repoRanges, repoRange{start: start, end: start})
	return RepoID(len(p.repoRanges) - 1)
}

// AddSolvables appends solvables to the pool as belonging to repo, extending
// repo's contiguous range. Returns the ids assigned, in order.
//
// Panics if repo is not the most recently created repo with its range still
// open at the end of the pool — see [Pool.NewRepo].
func (p *Pool) AddSolvables(repo RepoID, sv []Solvable) []ID {
	rr := &p.repoRanges[repo]
	if rr.end != ID(len(p.solvables)) {
		panic("pool: AddSolvables called out of order: repo range is not open at the end of the pool")
	}
	ids := make([]ID, len(sv))
	for i := range sv {
		sv[i].RepoID = repo
		ids[i] = ID(len(p.solvables))
		p.solvables = append(p.solvables, sv[i])
	}
	rr.end = ID(len(p.solvables))
	return ids
}

// RepoRange returns the [start, end) half-open range of ids belonging to
// repo.
func (p *Pool) RepoRange(repo RepoID) (start, end ID) {
	rr := p.repoRanges[repo]
	return rr.start, rr.end
}

// All returns every solvable id currently interned, in ascending order.
func (p *Pool) All() []ID {
	ids := make([]ID, len(p.solvables))
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// ProvidesMatch reports whether solvable id provides a capability satisfying r.
func (p *Pool) ProvidesMatch(id ID, r reldep.Reldep) bool {
	sv := p.Solvable(id)
	for _, pid := range sv.Provides {
		prov := p.Reldeps.Lookup(pid)
		if !nameMatches(prov.Name, r.Name) {
			continue
		}
		if r.Op == reldep.Any {
			return true
		}
		if prov.Op == reldep.Any {
			// An unversioned provide cannot satisfy a versioned requirement.
			continue
		}
		if r.Satisfies(prov.EVR) {
			return true
		}
	}
	// Implicit self-provide: "name = evr".
	if nameMatches(sv.NEVRA.Name, r.Name) {
		if r.Op == reldep.Any {
			return true
		}
		return r.Satisfies(sv.NEVRA.EVR())
	}
	return false
}

// nameMatches reports whether "have" matches the (possibly glob) pattern
// "want", using shell-style glob semantics (*, ?, [...]) per spec.md §6's
// reldep grammar.
func nameMatches(have, want string) bool {
	if have == want {
		return true
	}
	ok, err := path.Match(want, have)
	return err == nil && ok
}
