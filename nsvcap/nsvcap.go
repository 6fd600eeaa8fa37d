// Package nsvcap parses module identifier strings of the form
// "name:stream:version:context:arch/profile" (and the fifteen other
// positional forms with trailing groups omitted), grounded on libdnf's
// Nsvcap type (nsvcap.hpp / nsvcap.cpp).
package nsvcap

import (
	"fmt"
	"regexp"
	"strconv"
)

// Nsvcap is a parsed module identifier. Every field but Name is optional;
// HasVer distinguishes an absent Version from zero.
type Nsvcap struct {
	Name    string
	Stream  string
	Version uint64
	HasVer  bool
	Context string
	Arch    string
	Profile string
}

// WithName returns a copy of n with Name set, for fluent construction of a
// selector without re-parsing a string.
func (n Nsvcap) WithName(v string) Nsvcap { n.Name = v; return n }

// WithStream returns a copy of n with Stream set.
func (n Nsvcap) WithStream(v string) Nsvcap { n.Stream = v; return n }

// WithVersion returns a copy of n with Version set and HasVer true.
func (n Nsvcap) WithVersion(v uint64) Nsvcap { n.Version = v; n.HasVer = true; return n }

// WithContext returns a copy of n with Context set.
func (n Nsvcap) WithContext(v string) Nsvcap { n.Context = v; return n }

// WithArch returns a copy of n with Arch set.
func (n Nsvcap) WithArch(v string) Nsvcap { n.Arch = v; return n }

// WithProfile returns a copy of n with Profile set.
func (n Nsvcap) WithProfile(v string) Nsvcap { n.Profile = v; return n }

// Reset returns the zero Nsvcap, the equivalent of libdnf's Nsvcap::clear.
func Reset() Nsvcap { return Nsvcap{} }

// String renders the canonical "name:stream:version:context:arch/profile"
// form, omitting trailing empty components.
func (n Nsvcap) String() string {
	s := n.Name
	parts := []string{n.Stream, verStr(n), n.Context, n.Arch}
	// Trim unset trailing parts, RPM-module-string style.
	last := -1
	for i, p := range parts {
		if p != "" {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		s += ":" + parts[i]
	}
	if n.Profile != "" {
		s += "/" + n.Profile
	}
	return s
}

func verStr(n Nsvcap) string {
	if !n.HasVer {
		return ""
	}
	return strconv.FormatUint(n.Version, 10)
}

const (
	nameRe    = `[-a-zA-Z0-9._]+`
	streamRe  = `[-a-zA-Z0-9._+]+`
	versionRe = `[0-9]+`
	contextRe = `[0-9a-f]+`
	archRe    = `[-a-zA-Z0-9._]+`
	profileRe = `[-a-zA-Z0-9._]+`
)

// The 16 positional forms named in spec.md §6, most specific first. Every
// trailing group after "name" is independently optional, which is what
// produces 2^4 = 16 combinations over {stream, version, context,
// arch/profile}.
var forms = []*regexp.Regexp{
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `):(?P<c>` + contextRe + `):(?P<a>` + archRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `):(?P<c>` + contextRe + `):(?P<a>` + archRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `):(?P<c>` + contextRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `):(?P<c>` + contextRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `)::(?P<a>` + archRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `)::(?P<a>` + archRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):(?P<v>` + versionRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `)::(?P<c>` + contextRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `)::(?P<c>` + contextRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):::(?P<a>` + archRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `):::(?P<a>` + archRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `):(?P<s>` + streamRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `)::::(?P<a>` + archRe + `)/(?P<p>` + profileRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `)::::(?P<a>` + archRe + `)$`),
	regexp.MustCompile(`^(?P<n>` + nameRe + `)$`),
}

// Parse tries each of the 16 module-identifier forms, most specific first,
// and returns the first match.
func Parse(s string) (Nsvcap, error) {
	for _, re := range forms {
		if n, ok := match(re, s); ok {
			return n, nil
		}
	}
	return Nsvcap{}, fmt.Errorf("nsvcap: %q: no module form matched", s)
}

// Possibilities returns every form that matches s, most specific first, the
// way [subject.Subject.ModuleFormPossibilities] iterates for disambiguation.
func Possibilities(s string) []Nsvcap {
	var out []Nsvcap
	for _, re := range forms {
		if n, ok := match(re, s); ok {
			out = append(out, n)
		}
	}
	return out
}

func match(re *regexp.Regexp, s string) (Nsvcap, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return Nsvcap{}, false
	}
	var n Nsvcap
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || m[i] == "" {
			continue
		}
		switch name {
		case "n":
			n.Name = m[i]
		case "s":
			n.Stream = m[i]
		case "v":
			v, err := strconv.ParseUint(m[i], 10, 64)
			if err != nil {
				return Nsvcap{}, false
			}
			n.Version, n.HasVer = v, true
		case "c":
			n.Context = m[i]
		case "a":
			n.Arch = m[i]
		case "p":
			n.Profile = m[i]
		}
	}
	return n, true
}
