// Package nevra implements parsing, rendering, and comparison of RPM
// NEVRA identities: (name, epoch, version, release, arch).
//
// Comparison is ported from RPM's rpmvercmp, the same algorithm used
// throughout the ecosystem (see github.com/knqyf263/go-rpm-version, which
// this package's [Compare] delegates to for the EVR segment comparison).
package nevra

import (
	"fmt"
	"strconv"
	"strings"

	rpmversion "github.com/knqyf263/go-rpm-version"
	"github.com/package-url/packageurl-go"
)

// Epoch is an optional numeric epoch.
//
// The zero value is "unset", which is distinct from an explicit epoch of 0:
// spec.md requires epoch to default to "unset" rather than being coerced to
// zero, since the two compare differently against each other than either
// does against an RPM EVR that always normalizes a missing epoch to "0".
type Epoch struct {
	value int64
	set   bool
}

// NewEpoch returns a set Epoch with the given value.
func NewEpoch(v int64) Epoch { return Epoch{value: v, set: true} }

// IsSet reports whether the epoch was present in the source string.
func (e Epoch) IsSet() bool { return e.set }

// Value returns the numeric epoch, or 0 if unset.
func (e Epoch) Value() int64 { return e.value }

// String renders the epoch, or the empty string if unset.
func (e Epoch) String() string {
	if !e.set {
		return ""
	}
	return strconv.FormatInt(e.value, 10)
}

// compare orders Epochs per spec.md §3: unset sorts below every set epoch
// when compared to another Nevra's epoch, but is treated as 0 when the
// comparison is against a rendered RPM EVR string (handled by [Nevra.EVR]
// always emitting "0" for an unset epoch).
func (e Epoch) compare(o Epoch) int {
	switch {
	case e.set && o.set:
		switch {
		case e.value < o.value:
			return -1
		case e.value > o.value:
			return 1
		default:
			return 0
		}
	case e.set && !o.set:
		return 1
	case !e.set && o.set:
		return -1
	default:
		return 0
	}
}

// Nevra is a parsed package identity: name, epoch, version, release,
// architecture. Any field may be absent except Name in a fully-specified
// identity; absence is represented with an empty string or the zero [Epoch].
type Nevra struct {
	Name    string
	Epoch   Epoch
	Version string
	Release string
	Arch    string
}

// String renders the canonical "name-epoch:version-release.arch" form,
// omitting the epoch colon when unset (matching RPM's own display
// convention, not the normalized EVR form used for comparison/storage).
func (n Nevra) String() string {
	var b strings.Builder
	b.WriteString(n.Name)
	b.WriteByte('-')
	if n.Epoch.IsSet() {
		b.WriteString(n.Epoch.String())
		b.WriteByte(':')
	}
	b.WriteString(n.Version)
	b.WriteByte('-')
	b.WriteString(n.Release)
	if n.Arch != "" {
		b.WriteByte('.')
		b.WriteString(n.Arch)
	}
	return b.String()
}

// EVR renders the normalized epoch:version-release string used for
// comparison delegation to [github.com/knqyf263/go-rpm-version]; a missing
// epoch is rendered as "0", per that library's expectations.
func (n Nevra) EVR() string {
	e := "0"
	if n.Epoch.IsSet() {
		e = n.Epoch.String()
	}
	return e + ":" + n.Version + "-" + n.Release
}

// PackageURL renders a "pkg:rpm/..." purl for the identity, for interop with
// SBOM-adjacent tooling. Arch, if present, becomes a qualifier.
func (n Nevra) PackageURL() string {
	var quals packageurl.Qualifiers
	if n.Arch != "" {
		quals = append(quals, packageurl.Qualifier{Key: "arch", Value: n.Arch})
	}
	p := packageurl.NewPackageURL(packageurl.TypeRPM, "", n.Name, n.EVR(), quals, "")
	return p.ToString()
}

// Compare orders two Nevras per spec.md §3: name lexicographic, then epoch
// (unset-aware), then version via rpmvercmp, then release via rpmvercmp,
// then arch lexicographic.
func Compare(a, b Nevra) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := a.Epoch.compare(b.Epoch); c != 0 {
		return c
	}
	av, bv := rpmversion.NewVersion(a.EVR()), rpmversion.NewVersion(b.EVR())
	if c := av.Compare(bv); c != 0 {
		return c
	}
	return strings.Compare(a.Arch, b.Arch)
}

// Equal reports whether two Nevras are identical including arch.
func Equal(a, b Nevra) bool { return Compare(a, b) == 0 }

// EVREqual reports whether two Nevras have the same name and EVR, ignoring
// arch — the comparison used to detect upgrade/downgrade relationships
// during transaction classification (spec.md §4.4).
func EVREqual(a, b Nevra) bool {
	if a.Name != b.Name {
		return false
	}
	av, bv := rpmversion.NewVersion(a.EVR()), rpmversion.NewVersion(b.EVR())
	return av.Compare(bv) == 0
}

// EVRCompare compares only the EVR portion (ignoring name and arch), used to
// order multiple builds of the same name.
func EVRCompare(a, b Nevra) int {
	av, bv := rpmversion.NewVersion(a.EVR()), rpmversion.NewVersion(b.EVR())
	return av.Compare(bv)
}

// knownArch lists the architectures recognized when parsing the five forms
// of spec.md §6.
//
// Release may contain dots; arch is recognized only if the trailing dotted
// token is a known architecture (including "src"), which disambiguates
// "foo-1.2-3.fc40" (no arch) from "foo-1.2-3.x86_64" (arch).
var knownArch = map[string]struct{}{
	"x86_64": {}, "i686": {}, "i386": {}, "noarch": {}, "src": {},
	"aarch64": {}, "ppc64le": {}, "s390x": {}, "armv7hl": {}, "riscv64": {},
}

// IsKnownArch reports whether s is a recognized architecture token,
// including the pseudo-arch "src" used for source packages.
func IsKnownArch(s string) bool {
	_, ok := knownArch[s]
	return ok
}

// Form identifies which subject grammar form produced a Nevra.
type Form int

// Defined forms, most specific first, matching spec.md §6.
const (
	FormNEVRA Form = iota
	FormNA
	FormNAME
	FormNEVR
	FormNEV
)

func (f Form) String() string {
	switch f {
	case FormNEVRA:
		return "NEVRA"
	case FormNA:
		return "NA"
	case FormNAME:
		return "NAME"
	case FormNEVR:
		return "NEVR"
	case FormNEV:
		return "NEV"
	default:
		return "unknown"
	}
}

// Parse attempts the forms that carry version information before falling
// back to the unadorned forms, and returns the first successful parse.
//
// Note this tries {NEVRA, NEVR, NEV, NA, NAME}, which is *not* the order
// spec.md prescribes for enumerating every plausible interpretation of a
// subject string (that order — NEVRA, NA, NAME, NEVR, NEV — is implemented
// by subject.Subject.NevraPossibilities, which yields every
// matching form instead of stopping at the first, since FormNAME matches
// almost anything and the real disambiguation there comes from checking
// candidate names against a sack). This function is a convenience for
// callers that already know they have a fully- or partially-versioned
// string and just want the most information-preserving parse of it.
func Parse(s string) (Nevra, Form, error) {
	for _, f := range []Form{FormNEVRA, FormNEVR, FormNEV, FormNA, FormNAME} {
		if n, ok := parseForm(s, f); ok {
			return n, f, nil
		}
	}
	return Nevra{}, 0, fmt.Errorf("nevra: %q: no form matched", s)
}

// ParseForm parses s assuming exactly the given form, returning false if it
// doesn't match that form's grammar.
func ParseForm(s string, f Form) (Nevra, bool) { return parseForm(s, f) }

func parseForm(s string, f Form) (Nevra, bool) {
	switch f {
	case FormNA:
		i := strings.LastIndexByte(s, '.')
		if i < 0 {
			return Nevra{}, false
		}
		name, arch := s[:i], s[i+1:]
		if name == "" || arch == "" || !IsKnownArch(arch) {
			return Nevra{}, false
		}
		return Nevra{Name: name, Arch: arch}, true
	case FormNAME:
		if s == "" || strings.ContainsAny(s, "/ \t") {
			return Nevra{}, false
		}
		return Nevra{Name: s}, true
	case FormNEVRA, FormNEVR:
		rest := s
		var arch string
		if f == FormNEVRA {
			i := strings.LastIndexByte(s, '.')
			if i < 0 {
				return Nevra{}, false
			}
			a := s[i+1:]
			if !IsKnownArch(a) {
				return Nevra{}, false
			}
			arch, rest = a, s[:i]
		}
		name, evr, ok := splitNameEVR(rest)
		if !ok {
			return Nevra{}, false
		}
		ep, ver, rel, ok := splitEVR(evr)
		if !ok || rel == "" {
			return Nevra{}, false
		}
		return Nevra{Name: name, Epoch: ep, Version: ver, Release: rel, Arch: arch}, true
	case FormNEV:
		name, evr, ok := splitNameEVR(s)
		if !ok {
			return Nevra{}, false
		}
		ep, ver, rel, ok := splitEVR(evr)
		if !ok || rel != "" {
			return Nevra{}, false
		}
		return Nevra{Name: name, Epoch: ep, Version: ver}, true
	default:
		return Nevra{}, false
	}
}

// splitNameEVR splits "name-version-release" (or "name-epoch:version") on
// the last '-' that leaves a non-empty name, the way RPM subject strings are
// conventionally delimited.
func splitNameEVR(s string) (name, evr string, ok bool) {
	i := strings.LastIndexByte(s, '-')
	if i <= 0 {
		return "", "", false
	}
	j := strings.LastIndexByte(s[:i], '-')
	if j < 0 {
		// Only one '-': s is "name-version" with an implicit empty release.
		return s[:i], s[i+1:], true
	}
	return s[:j], s[j+1:], true
}

// splitEVR splits "[epoch:]version[-release]" into its parts.
func splitEVR(s string) (Epoch, string, string, bool) {
	var ep Epoch
	ver := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		ev, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return Epoch{}, "", "", false
		}
		ep = NewEpoch(ev)
		ver = s[i+1:]
	}
	version, release, _ := strings.Cut(ver, "-")
	if version == "" {
		return Epoch{}, "", "", false
	}
	return ep, version, release, true
}
