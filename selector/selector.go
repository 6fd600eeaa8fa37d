// Package selector implements the well-formed package selector described
// in spec.md §4.3: a conjunction of filter keys identifying a set of
// candidate packages for a goal job, plus the tie-breaking rule used when a
// selector is ambiguous. Grounded on the query package's filter-key
// vocabulary and on claircore's matcher tie-breaking (highest-priority
// source wins, then version, per internal/matcher preference ordering).
package selector

import (
	"sort"

	rpmversion "github.com/knqyf263/go-rpm-version"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/query"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// mutuallyExclusive lists the filter-key groups that cannot be combined in
// one selector, per spec.md §4.3 ("provides and nevra together are an
// error").
var mutuallyExclusive = [][]query.Key{
	{query.KeyNevra, query.KeyNevraStrict, query.KeyProvides, query.KeyName},
}

// Clause is one key/cmp/value filter term in a selector.
type Clause struct {
	Key   query.Key
	Cmp   query.Cmp
	Value string
}

// Selector is a conjunction of filter clauses identifying candidate
// packages for a goal job.
//
// The zero Selector is a valid, always-matching selector (no clauses).
type Selector struct {
	clauses []Clause
}

// New returns a Selector with the given clauses, which must be
// well-formed; see [Selector.Validate].
func New(clauses ...Clause) *Selector {
	return &Selector{clauses: append([]Clause(nil), clauses...)}
}

// Validate reports whether the selector's clauses are well-formed: no two
// clauses use keys drawn from the same mutually-exclusive group.
//
// Returns [dnfcore.ErrBadSelector] if not. This failure is not
// user-recoverable mid-plan per spec.md §4.3: callers must reject the job
// outright rather than attempt a partial match.
func (s *Selector) Validate() error {
	present := map[query.Key]bool{}
	for _, c := range s.clauses {
		present[c.Key] = true
	}
	for _, group := range mutuallyExclusive {
		count := 0
		for _, k := range group {
			if present[k] {
				count++
			}
		}
		if count > 1 {
			return &dnfcore.Error{Op: "selector.Selector.Validate", Kind: dnfcore.ErrBadSelector,
				Message: "selector combines mutually exclusive filter keys"}
		}
	}
	return nil
}

// Query builds the [query.Query] matching this selector's clauses over sk.
//
// Fails with [dnfcore.ErrBadSelector] if the selector is ill-formed.
func (s *Selector) Query(sk *sack.Sack, reponame func(pool.RepoID) string) (*query.Query, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	q := query.New(sk, reponame)
	for _, c := range s.clauses {
		q.Filter(c.Key, c.Cmp, c.Value)
	}
	return q, nil
}

// RepoPriority resolves a repo's priority for tie-breaking; lower values
// win, matching dnf.conf's repo "priority" semantics. Callers without a
// notion of repo priority may pass a function that always returns 0.
type RepoPriority func(pool.RepoID) int

// ArchPreference orders architectures for tie-breaking: native first,
// then compatible, then noarch last. Index in the returned slice is rank
// (lower wins); an arch absent from the slice sorts after every listed
// arch.
type ArchPreference []string

// Resolve picks the single best match among candidates per spec.md §4.3's
// tie-break rule: highest-priority repo, then latest EVR, then arch
// preference order (native > compatible > noarch). Returns
// [dnfcore.ErrPackageNotFound] if candidates is empty.
func Resolve(p *pool.Pool, candidates []pool.ID, prio RepoPriority, archPref ArchPreference) (pool.ID, error) {
	if len(candidates) == 0 {
		return 0, &dnfcore.Error{Op: "selector.Resolve", Kind: dnfcore.ErrPackageNotFound}
	}
	archRank := make(map[string]int, len(archPref))
	for i, a := range archPref {
		archRank[a] = i
	}
	rank := func(arch string) int {
		if r, ok := archRank[arch]; ok {
			return r
		}
		return len(archPref)
	}

	best := candidates[0]
	for _, id := range candidates[1:] {
		if better(p, id, best, prio, rank) {
			best = id
		}
	}
	return best, nil
}

func better(p *pool.Pool, a, b pool.ID, prio RepoPriority, archRank func(string) int) bool {
	sa, sb := p.Solvable(a), p.Solvable(b)
	if prio != nil {
		pa, pb := prio(sa.RepoID), prio(sb.RepoID)
		if pa != pb {
			return pa < pb
		}
	}
	va, vb := rpmversion.NewVersion(sa.NEVRA.EVR()), rpmversion.NewVersion(sb.NEVRA.EVR())
	if c := va.Compare(vb); c != 0 {
		return c > 0
	}
	ra, rb := archRank(sa.NEVRA.Arch), archRank(sb.NEVRA.Arch)
	if ra != rb {
		return ra < rb
	}
	return sa.NEVRA.Name < sb.NEVRA.Name
}

// SortByPreference orders candidates best-first using the same rule as
// [Resolve], for callers (e.g. goal result accessors) that want the full
// ranked list rather than just the winner.
func SortByPreference(p *pool.Pool, candidates []pool.ID, prio RepoPriority, archPref ArchPreference) []pool.ID {
	out := append([]pool.ID(nil), candidates...)
	archRank := make(map[string]int, len(archPref))
	for i, a := range archPref {
		archRank[a] = i
	}
	rank := func(arch string) int {
		if r, ok := archRank[arch]; ok {
			return r
		}
		return len(archPref)
	}
	sort.Slice(out, func(i, j int) bool { return better(p, out[i], out[j], prio, rank) })
	return out
}
