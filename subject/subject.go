// Package subject enumerates plausible structured interpretations of a raw
// user-supplied string, per spec.md §4.6: NEVRA possibilities, module-form
// possibilities, and the best-effort fallback chain used to resolve a CLI
// argument against a sack. Grounded on nevra's form parser and nsvcap's
// Possibilities iterator plus claircore's updater-registry "try each
// source in turn" fallback idiom.
package subject

import (
	"context"

	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/nsvcap"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/query"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// Subject is a raw user string awaiting structured interpretation.
type Subject string

// SackArches collects the distinct architectures present among sk's loaded
// solvables, the default "known arches" source for [Subject.NevraPossibilities].
func SackArches(sk *sack.Sack) map[string]bool {
	arches := map[string]bool{"src": true}
	for _, id := range sk.Pool().All() {
		arches[sk.Pool().Solvable(id).NEVRA.Arch] = true
	}
	return arches
}

// NevraPossibilities yields every [nevra.Nevra] interpretation of s whose
// form parses, in the most-specific-first order named in
// spec.md §4.6: NEVRA, NA, NAME, NEVR, NEV.
//
// If sk is non-nil, a candidate is kept only if its name exists in sk
// (glob-aware, per [query.CmpGlob]) and its arch is "src" or one of sk's
// known architectures.
func (s Subject) NevraPossibilities(sk *sack.Sack) []nevra.Nevra {
	var out []nevra.Nevra
	for _, form := range []nevra.Form{nevra.FormNEVRA, nevra.FormNA, nevra.FormNAME, nevra.FormNEVR, nevra.FormNEV} {
		n, ok := tryForm(string(s), form)
		if !ok {
			continue
		}
		if sk != nil && !nameAndArchKnown(sk, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func tryForm(s string, form nevra.Form) (nevra.Nevra, bool) {
	return nevra.ParseForm(s, form)
}

func nameAndArchKnown(sk *sack.Sack, n nevra.Nevra) bool {
	if n.Arch != "" && n.Arch != "src" {
		found := false
		for a := range SackArches(sk) {
			if a == n.Arch {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	q := query.New(sk, nil)
	q.Filter(query.KeyName, query.CmpGlob, n.Name)
	return len(q.Run()) > 0
}

// ModuleFormPossibilities yields every [nsvcap.Nsvcap] interpretation of s
// over the 16 module forms, most specific first.
func (s Subject) ModuleFormPossibilities() []nsvcap.Nsvcap {
	return nsvcap.Possibilities(string(s))
}

// FileChecker is the external collaborator used by [GetBestSolution]'s
// filename fallback tier, standing in for filesystem/RPM-payload access
// this package treats as out of scope.
type FileChecker interface {
	// HasFile reports whether any considered solvable owns path.
	HasFile(ctx context.Context, path string) ([]pool.ID, error)
}

// SolutionTier names which fallback tier of [GetBestSolution] produced a
// result, a libdnf-sourced supplement (spec.md's distillation omits this,
// but original_source's dnf_subject_get_best_solution exposes it via the
// out-parameter "form") that callers use for diagnostics and error
// messages ("no such package, and no package provides it either").
type SolutionTier int

// Defined tiers, in the order [GetBestSolution] tries them.
const (
	TierNone SolutionTier = iota
	TierNevra
	TierProvides
	TierFilename
)

// GetBestSolution tries s's NEVRA possibilities against sk, then (if
// withProvides) a provides-match, then (if withFilenames) a file-path
// match via fc. Returns an empty, non-nil query (never an error) if
// nothing matches, per spec.md §4.6.
func GetBestSolution(ctx context.Context, s Subject, sk *sack.Sack, withNevra, withProvides, withFilenames bool, fc FileChecker) (*query.Query, SolutionTier) {
	if withNevra {
		for _, n := range s.NevraPossibilities(sk) {
			q := query.New(sk, nil)
			q.Filter(query.KeyName, query.CmpGlob, n.Name)
			if n.Epoch.IsSet() {
				q.Filter(query.KeyEpoch, query.CmpEq, n.Epoch.String())
			}
			if n.Version != "" {
				q.Filter(query.KeyVersion, query.CmpEq, n.Version)
			}
			if n.Release != "" {
				q.Filter(query.KeyRelease, query.CmpEq, n.Release)
			}
			if n.Arch != "" {
				q.Filter(query.KeyArch, query.CmpEq, n.Arch)
			}
			if len(q.Run()) > 0 {
				return q, TierNevra
			}
		}
	}
	if withProvides {
		q := query.New(sk, nil)
		q.Filter(query.KeyProvides, query.CmpEq, string(s))
		if len(q.Run()) > 0 {
			return q, TierProvides
		}
	}
	if withFilenames && fc != nil {
		ids, err := fc.HasFile(ctx, string(s))
		if err == nil && len(ids) > 0 {
			return query.FromIDs(sk, nil, ids), TierFilename
		}
	}
	return query.FromIDs(sk, nil, nil), TierNone
}

// Explain describes, in one line, which NEVRA form a
// possibility string was parsed as, a libdnf-sourced supplement
// (dnf_subject_get_best_solution's human-readable diagnostic) used for
// "no match, here's what we tried" error messages.
func Explain(s Subject, n nevra.Nevra, form nevra.Form) string {
	return string(s) + " parsed as " + form.String() + ": " + n.String()
}
