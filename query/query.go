// Package query implements the lazy, composable, side-effect-free filter
// pipeline described in spec.md §4.5, grounded on claircore's
// datastore/postgres query-builder pattern (accumulate a filter chain, then
// materialize) as seen in libvuln's matcher query construction, adapted
// here to filter an in-memory [pool.Pool] rather than build SQL.
package query

import (
	"sort"

	rpmversion "github.com/knqyf263/go-rpm-version"

	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/reldep"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// Cmp is a comparison kind applied by a filter, per spec.md §4.5.
type Cmp int

// Defined comparison kinds.
const (
	CmpEq Cmp = iota
	CmpNeq
	CmpLt
	CmpGt
	CmpLe
	CmpGe
	CmpGlob
	CmpSubstr
)

// Key names a filterable solvable attribute.
type Key string

// Defined keys, per spec.md §4.5 (non-exhaustive set actually implemented).
const (
	KeyName       Key = "name"
	KeyArch       Key = "arch"
	KeyEpoch      Key = "epoch"
	KeyVersion    Key = "version"
	KeyRelease    Key = "release"
	KeyEVR        Key = "evr"
	KeyNevra      Key = "nevra"
	KeyNevraStrict Key = "nevra_strict"
	KeySourceRPM  Key = "sourcerpm"
	KeyReponame   Key = "reponame"
	KeyProvides   Key = "provides"
	KeyRequires   Key = "requires"
	KeyConflicts  Key = "conflicts"
	KeyObsoletes  Key = "obsoletes"
	KeyRecommends Key = "recommends"
	KeySuggests   Key = "suggests"
	KeySupplements Key = "supplements"
	KeyEnhances   Key = "enhances"
)

// filter is one step in the pipeline: either a per-id predicate (pred set)
// or a group-materializing transform (group set), applied in the order
// added.
type filter struct {
	pred  func(sk *sack.Sack, p *pool.Pool, id pool.ID, reponame func(pool.RepoID) string) bool
	group func(sk *sack.Sack, p *pool.Pool, ids []pool.ID) []pool.ID
}

// Query is a lazily-evaluated filter chain over a sack's considered
// solvables; adding a filter after [Query.Run] discards the cached result.
//
// The zero Query is not usable; construct one with [New]. Query values are
// not safe for concurrent mutation (AddFilter) from multiple goroutines,
// matching spec.md §5's "sole mutator" sack policy.
type Query struct {
	sk       *sack.Sack
	reponame func(pool.RepoID) string

	filters []filter

	cached    []pool.ID
	cacheDone bool
	icase     bool
}

// New returns a Query over sk's currently-considered solvables. reponame
// resolves a [pool.RepoID] to its name for reponame-keyed filters; pass nil
// if no such filter will be used.
func New(sk *sack.Sack, reponame func(pool.RepoID) string) *Query {
	return &Query{sk: sk, reponame: reponame}
}

// FromIDs returns a Query whose result is fixed to exactly ids, for callers
// (e.g. subject's file-path fallback tier) that locate candidates outside
// the filter-key vocabulary. Adding further filters still works: they're
// applied against this fixed starting set rather than the sack's
// considered set.
func FromIDs(sk *sack.Sack, reponame func(pool.RepoID) string, ids []pool.ID) *Query {
	sorted := append([]pool.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	q := New(sk, reponame)
	q.addGroup(func(sk *sack.Sack, p *pool.Pool, _ []pool.ID) []pool.ID { return sorted })
	return q
}

// Clone returns an independent Query with the same filter list and
// case-sensitivity setting, but no cached result, per spec.md §4.5's
// "clone() produces an independent query" law.
func (q *Query) Clone() *Query {
	nq := &Query{sk: q.sk, reponame: q.reponame, icase: q.icase}
	nq.filters = append(nq.filters, q.filters...)
	return nq
}

// IgnoreCase sets whether subsequently evaluated string comparisons ignore
// case. Changing it invalidates any cached result.
func (q *Query) IgnoreCase(v bool) *Query {
	q.icase = v
	q.invalidate()
	return q
}

func (q *Query) invalidate() {
	q.cached = nil
	q.cacheDone = false
}

func (q *Query) add(fn func(sk *sack.Sack, p *pool.Pool, id pool.ID, reponame func(pool.RepoID) string) bool) *Query {
	q.filters = append(q.filters, filter{pred: fn})
	q.invalidate()
	return q
}

func (q *Query) addGroup(fn func(sk *sack.Sack, p *pool.Pool, ids []pool.ID) []pool.ID) *Query {
	q.filters = append(q.filters, filter{group: fn})
	q.invalidate()
	return q
}

// Filter adds a predicate over key/cmp/value. Unknown keys match nothing
// (empty result), rather than panicking, since a caller-supplied key comes
// from outside this package's control (e.g. parsed from a selector string).
func (q *Query) Filter(key Key, cmp Cmp, value string) *Query {
	return q.add(func(sk *sack.Sack, p *pool.Pool, id pool.ID, reponame func(pool.RepoID) string) bool {
		sv := p.Solvable(id)
		switch key {
		case KeyName:
			return q.strMatch(sv.NEVRA.Name, cmp, value)
		case KeyArch:
			return q.strMatch(sv.NEVRA.Arch, cmp, value)
		case KeyEpoch:
			return q.strMatch(sv.NEVRA.Epoch.String(), cmp, value)
		case KeyVersion:
			return q.strMatch(sv.NEVRA.Version, cmp, value)
		case KeyRelease:
			return q.strMatch(sv.NEVRA.Release, cmp, value)
		case KeyEVR:
			return q.strMatch(sv.NEVRA.EVR(), cmp, value)
		case KeyNevra:
			return q.strMatch(sv.NEVRA.String(), cmp, value)
		case KeyNevraStrict:
			if cmp != CmpEq && cmp != CmpNeq {
				return false
			}
			eq := sv.NEVRA.String() == value
			if cmp == CmpNeq {
				return !eq
			}
			return eq
		case KeySourceRPM:
			return q.strMatch(sv.SourceRPM, cmp, value)
		case KeyReponame:
			if reponame == nil {
				return false
			}
			return q.strMatch(reponame(sv.RepoID), cmp, value)
		case KeyProvides, KeyRequires, KeyConflicts, KeyObsoletes, KeyRecommends, KeySuggests, KeySupplements, KeyEnhances:
			return q.matchReldeps(p, depList(sv, key), cmp, value)
		default:
			return false
		}
	})
}

func depList(sv *pool.Solvable, key Key) []reldep.ID {
	switch key {
	case KeyProvides:
		return sv.Provides
	case KeyRequires:
		return sv.Requires
	case KeyConflicts:
		return sv.Conflicts
	case KeyObsoletes:
		return sv.Obsoletes
	case KeyRecommends:
		return sv.Recommends
	case KeySuggests:
		return sv.Suggests
	case KeySupplements:
		return sv.Supplements
	case KeyEnhances:
		return sv.Enhances
	}
	return nil
}

func (q *Query) matchReldeps(p *pool.Pool, ids []reldep.ID, cmp Cmp, value string) bool {
	want, err := reldep.Parse(value)
	if err != nil {
		want = reldep.Reldep{Name: value}
	}
	for _, id := range ids {
		have := p.Reldeps.Lookup(id)
		if q.strMatch(have.Name, cmp, want.Name) {
			return true
		}
	}
	return false
}

func (q *Query) strMatch(have string, cmp Cmp, value string) bool {
	h, v := have, value
	if q.icase {
		h, v = lower(h), lower(v)
	}
	switch cmp {
	case CmpEq:
		return h == v
	case CmpNeq:
		return h != v
	case CmpLt:
		return h < v
	case CmpGt:
		return h > v
	case CmpLe:
		return h <= v
	case CmpGe:
		return h >= v
	case CmpGlob:
		return globMatch(v, h)
	case CmpSubstr:
		return contains(h, v)
	}
	return false
}

// Latest adds a filter keeping only solvables at the newest EVR per name
// (all architectures pooled together). Ties on EVR retain all tied
// packages, per spec.md §4.5.
func (q *Query) Latest() *Query { return q.latestBy(func(sv *pool.Solvable) string { return sv.NEVRA.Name }) }

// LatestPerArch adds a filter keeping the n newest EVRs grouped by
// (name, arch); ties on EVR retain all tied packages.
func (q *Query) LatestPerArch(n int) *Query {
	return q.latestNBy(n, func(sv *pool.Solvable) string { return sv.NEVRA.Name + "." + sv.NEVRA.Arch })
}

func (q *Query) latestBy(keyFn func(*pool.Solvable) string) *Query {
	return q.latestNBy(1, keyFn)
}

func (q *Query) latestNBy(n int, keyFn func(*pool.Solvable) string) *Query {
	return q.addGroup(func(sk *sack.Sack, p *pool.Pool, ids []pool.ID) []pool.ID {
		type group struct {
			evrs []string          // distinct EVRs seen, newest first
			byEVR map[string][]pool.ID
		}
		groups := make(map[string]*group)
		var order []string
		for _, id := range ids {
			sv := p.Solvable(id)
			k := keyFn(sv)
			g, ok := groups[k]
			if !ok {
				g = &group{byEVR: make(map[string][]pool.ID)}
				groups[k] = g
				order = append(order, k)
			}
			evr := sv.NEVRA.EVR()
			if _, seen := g.byEVR[evr]; !seen {
				g.evrs = append(g.evrs, evr)
			}
			g.byEVR[evr] = append(g.byEVR[evr], id)
		}
		var out []pool.ID
		for _, k := range order {
			g := groups[k]
			sort.Slice(g.evrs, func(i, j int) bool {
				vi, vj := rpmversion.NewVersion(g.evrs[i]), rpmversion.NewVersion(g.evrs[j])
				return vi.Compare(vj) > 0
			})
			keep := n
			if keep <= 0 || keep > len(g.evrs) {
				keep = len(g.evrs)
			}
			for _, evr := range g.evrs[:keep] {
				out = append(out, g.byEVR[evr]...)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	})
}

// Run materializes the filter chain against the sack's current considered
// set, applying filters in the order they were added. Per-id filters are
// independent of each other, so their relative order doesn't change the
// result. A group filter (Latest/LatestPerArch) works only on the ids that
// survive the filters added before it, so moving it within the chain can
// change the result.
func (q *Query) Run() []pool.ID {
	if q.cacheDone {
		return q.cached
	}
	ids := q.sk.ConsideredIDs()
	p := q.sk.Pool()
	for _, f := range q.filters {
		if f.group != nil {
			ids = f.group(q.sk, p, ids)
			continue
		}
		kept := ids[:0:0]
		for _, id := range ids {
			if f.pred(q.sk, p, id, q.reponame) {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	q.cached = ids
	q.cacheDone = true
	return ids
}

// Union returns the sorted union of a and b as sets. Union/Intersection/
// Difference operate on materialized results, per spec.md §4.5, and so
// return plain ID slices rather than further-composable Query values.
func Union(a, b []pool.ID) []pool.ID {
	seen := make(map[pool.ID]bool, len(a)+len(b))
	out := make([]pool.ID, 0, len(a)+len(b))
	for _, id := range append(append([]pool.ID(nil), a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Intersection returns the sorted intersection of a and b as sets.
func Intersection(a, b []pool.ID) []pool.ID {
	bset := toSet(b)
	return filterSorted(a, func(id pool.ID) bool { return bset[id] })
}

// Difference returns the sorted set a ∖ b.
func Difference(a, b []pool.ID) []pool.ID {
	bset := toSet(b)
	return filterSorted(a, func(id pool.ID) bool { return !bset[id] })
}

func toSet(ids []pool.ID) map[pool.ID]bool {
	s := make(map[pool.ID]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func filterSorted(a []pool.ID, keep func(pool.ID) bool) []pool.ID {
	seen := make(map[pool.ID]bool, len(a))
	out := make([]pool.ID, 0, len(a))
	for _, id := range a {
		if seen[id] || !keep(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(s, substr string) bool {
	return len(substr) == 0 || indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

func globMatch(pattern, s string) bool {
	// Minimal shell-style glob: '*' and '?' are wildcards; every other
	// character, '[' included, matches itself.
	return matchGlob(pattern, s)
}

func matchGlob(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if matchGlob(pattern[1:], s[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	}
}
