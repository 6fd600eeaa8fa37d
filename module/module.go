// Package module implements the modular state machine described in
// spec.md §4.2: module metadata ingestion, the enable/disable/reset state
// machine, default resolution, and translation of module requests into RPM
// package filters over a [sack.Sack]. It is grounded on claircore's
// updater-registry pattern for "ingest documents, resolve into state,
// expose a narrow query surface" and on nsvcap for identifier parsing.
package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	"gopkg.in/yaml.v3"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
	"github.com/rpm-software-management/libdnf-sub004/nevra"
	"github.com/rpm-software-management/libdnf-sub004/nsvcap"
	"github.com/rpm-software-management/libdnf-sub004/pool"
	"github.com/rpm-software-management/libdnf-sub004/sack"
)

// State is a module's enablement state, per spec.md §3.
type State int

// Defined states.
const (
	StateUnknown State = iota
	StateEnabled
	StateDisabled
	StateDefault
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Artifact is one NEVRA produced by a module stream's build.
type Artifact struct {
	NEVRA nevra.Nevra
	ID    pool.ID
}

// Profile names a set of package names installed together under a stream.
type Profile struct {
	Name     string
	Packages []string
}

// Stream is one modulemd document: name:stream, with its contexts,
// dependencies, artifacts, and profiles.
type Stream struct {
	Name    string
	Stream  string
	Version uint64
	Context string
	Arch    string

	Requires  map[string]string // module name -> stream
	Artifacts []Artifact
	Profiles  []Profile
	Default   bool // this stream is the distro default for Name

	RepoID pool.RepoID
}

// Nsvca returns the stream's identity as an [nsvcap.Nsvcap] (no profile).
func (s *Stream) Nsvca() nsvcap.Nsvcap {
	return nsvcap.Nsvcap{}.
		WithName(s.Name).WithStream(s.Stream).
		WithVersion(s.Version).WithContext(s.Context).WithArch(s.Arch)
}

// modulemdDoc is the minimal subset of the modulemd YAML schema this
// package parses: name, stream, version, context, arch, dependencies and
// the artifact RPM list, enough to drive resolution without needing the
// full metadata surface (descriptions, licenses, etc. are left to callers
// that want to display them, via [Stream] fields this type doesn't carry).
type modulemdDoc struct {
	Data struct {
		Name    string `yaml:"name"`
		Stream  string `yaml:"stream"`
		Version uint64 `yaml:"version"`
		Context string `yaml:"context"`
		Arch    string `yaml:"arch"`
		Dependencies []struct {
			Requires map[string][]string `yaml:"requires"`
		} `yaml:"dependencies"`
		Artifacts struct {
			RPMs []string `yaml:"rpms"`
		} `yaml:"artifacts"`
		Profiles map[string]struct {
			RPMs []string `yaml:"rpms"`
		} `yaml:"profiles"`
	} `yaml:"data"`
}

// defaultsDoc is the minimal modulemd-defaults schema.
type defaultsDoc struct {
	Data struct {
		Module string `yaml:"module"`
		Stream string `yaml:"stream"`
	} `yaml:"data"`
}

type moduleEntry struct {
	name    string
	state   State
	stream  string // enabled/disabled stream, empty if unset
	defStrm string // distro default stream
	streams map[string]*Stream
}

// Container maintains the module state machine for one sack, per
// spec.md §4.2.
type Container struct {
	sk       *sack.Sack
	entries  map[string]*moduleEntry
	switched []switchedStream

	platform *Stream
}

type switchedStream struct {
	Name, From, To string
}

// New returns an empty Container over sk.
func New(sk *sack.Sack) *Container {
	return &Container{sk: sk, entries: make(map[string]*moduleEntry)}
}

func (c *Container) entry(name string) *moduleEntry {
	e, ok := c.entries[name]
	if !ok {
		e = &moduleEntry{name: name, streams: make(map[string]*Stream)}
		c.entries[name] = e
	}
	return e
}

// ModulemdSource supplies raw modulemd YAML documents harvested from a
// repo's metadata, standing in for the repo-metadata-download machinery
// this package treats as external.
type ModulemdSource interface {
	Modulemd(ctx context.Context) ([][]byte, error)
}

// AddFromSack harvests modulemd documents via src and records each
// document's stream, dependencies, artifacts and profiles in c. The sack's
// pool is not modified; artifact strings that don't parse as a NEVRA are
// dropped.
func (c *Container) AddFromSack(ctx context.Context, src ModulemdSource) error {
	docs, err := src.Modulemd(ctx)
	if err != nil {
		return &dnfcore.Error{Op: "module.Container.AddFromSack", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}
	for _, raw := range docs {
		var doc modulemdDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return &dnfcore.Error{Op: "module.Container.AddFromSack", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
		if doc.Data.Name == "" {
			continue
		}
		st := &Stream{
			Name: doc.Data.Name, Stream: doc.Data.Stream, Version: doc.Data.Version,
			Context: doc.Data.Context, Arch: doc.Data.Arch,
			Requires: map[string]string{},
		}
		for _, dep := range doc.Data.Dependencies {
			for mod, streams := range dep.Requires {
				if len(streams) > 0 {
					st.Requires[mod] = streams[0]
				}
			}
		}
		for _, p := range doc.Data.Artifacts.RPMs {
			n, _, err := nevra.Parse(p)
			if err != nil {
				continue
			}
			st.Artifacts = append(st.Artifacts, Artifact{NEVRA: n})
		}
		for name, prof := range doc.Data.Profiles {
			st.Profiles = append(st.Profiles, Profile{Name: name, Packages: prof.RPMs})
		}
		e := c.entry(doc.Data.Name)
		e.streams[doc.Data.Stream] = st
	}
	return nil
}

// AddDefaultsFromDisk harvests modulemd-defaults YAML files from dir.
func (c *Container) AddDefaultsFromDisk(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &dnfcore.Error{Op: "module.Container.AddDefaultsFromDisk", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".yaml") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return &dnfcore.Error{Op: "module.Container.AddDefaultsFromDisk", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
		var doc defaultsDoc
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return &dnfcore.Error{Op: "module.Container.AddDefaultsFromDisk", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
		if doc.Data.Module == "" {
			continue
		}
		c.entry(doc.Data.Module).defStrm = doc.Data.Stream
	}
	return nil
}

// AddPlatformPackage resolves the platform pseudo-module from an
// os-release-style file among paths, unless override is set.
func (c *Container) AddPlatformPackage(paths []string, override string) error {
	if override != "" {
		c.platform = &Stream{Name: "platform", Stream: override}
		return nil
	}
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(b), "\n") {
			if id, ok := strings.CutPrefix(line, "PLATFORM_ID="); ok {
				id = strings.Trim(id, `"`)
				// id looks like "platform:f39"
				if _, stream, ok := strings.Cut(id, ":"); ok {
					c.platform = &Stream{Name: "platform", Stream: stream}
					return nil
				}
			}
		}
	}
	return nil
}

// ResolveDefaults checks each harvested default stream against the known
// stream metadata and returns, sorted, one note per module whose default
// names a stream with no metadata; none of this is fatal. Defaults from
// different sources are not compared: [Container.AddDefaultsFromDisk] keeps
// the last default read for a module, so conflicting defaults produce no
// note.
func (c *Container) ResolveDefaults() []string {
	var notes []string
	for name, e := range c.entries {
		if e.defStrm == "" {
			continue
		}
		if _, ok := e.streams[e.defStrm]; !ok {
			notes = append(notes, fmt.Sprintf("module %s: default stream %q has no known stream metadata", name, e.defStrm))
		}
	}
	sort.Strings(notes)
	return notes
}

// Enable sets name's enabled stream. Fails with
// [dnfcore.ModuleErrCannotModifyMultipleTimes] wrapped as
// [dnfcore.ErrModule] if name is already enabled on a different stream and
// has not been reset.
func (c *Container) Enable(name, stream string) error {
	e := c.entry(name)
	if e.state == StateEnabled && e.stream != "" && e.stream != stream {
		c.switched = append(c.switched, switchedStream{Name: name, From: e.stream, To: stream})
		return &dnfcore.Error{
			Op: "module.Container.Enable", Kind: dnfcore.ErrModule,
			Inner:   dnfcore.ModuleErrCannotModifyMultipleTimes,
			Message: fmt.Sprintf("%s: already enabled on stream %q", name, e.stream),
		}
	}
	e.state = StateEnabled
	e.stream = stream
	return nil
}

// Disable marks name disabled, clearing any enabled stream.
func (c *Container) Disable(name string) {
	e := c.entry(name)
	e.state = StateDisabled
	e.stream = ""
}

// Reset clears name's explicit enable/disable state, returning it to
// StateUnknown (falling back to the distro default, if any, during
// resolution).
func (c *Container) Reset(name string) {
	e := c.entry(name)
	e.state = StateUnknown
	e.stream = ""
}

// GetSwitchedStreams returns every (name, from, to) pair recorded by a
// rejected [Container.Enable] call that would have silently switched
// streams. Callers inspect this after planning to refuse the plan outright
// unless the user explicitly reset first.
func (c *Container) GetSwitchedStreams() []switchedStream {
	return append([]switchedStream(nil), c.switched...)
}

// Install enables nsv.Name on nsv.Stream when nsv carries a stream, failing
// as [Container.Enable] does. profile is neither recorded nor used, and an
// nsv without a stream changes nothing.
func (c *Container) Install(nsv nsvcap.Nsvcap, profile string) error {
	if nsv.Stream != "" {
		if err := c.Enable(nsv.Name, nsv.Stream); err != nil {
			return err
		}
	}
	return nil
}

// activeStream returns the stream considered active for name: its enabled
// stream, the stream [Container.ResolveActive] chose for it as a dependency,
// or else the distro default if not disabled.
func (c *Container) activeStream(name string) (*Stream, bool) {
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	switch e.state {
	case StateDisabled:
		return nil, false
	case StateEnabled:
		s, ok := e.streams[e.stream]
		return s, ok
	default:
		if e.state == StateDefault && e.stream != "" {
			s, ok := e.streams[e.stream]
			return s, ok
		}
		if e.defStrm == "" {
			return nil, false
		}
		s, ok := e.streams[e.defStrm]
		return s, ok
	}
}

// ResolveActive computes the dependency closure of enabled+default modules,
// using semver-aware stream ordering for tie-breaks among candidate
// dependency streams, per spec.md §4.2's "active_modules is a closed set
// under the requires relation" invariant.
//
// Returns ([]problem descriptions, kind): kind is
// [dnfcore.ModuleErrNoError] on success.
func (c *Container) ResolveActive(debug bool) ([]string, dnfcore.ModuleErrorKind) {
	active := map[string]*Stream{}
	var problems []string

	var closure func(name string)
	visited := map[string]bool{}
	closure = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		st, ok := c.activeStream(name)
		if !ok {
			return
		}
		active[name] = st
		for reqName, reqStream := range st.Requires {
			e := c.entry(reqName)
			if e.state == StateUnknown && len(e.streams) > 0 {
				if _, ok := e.streams[reqStream]; ok {
					e.stream = reqStream
					e.state = StateDefault
				} else if best := latestStream(e.streams); best != "" {
					problems = append(problems, fmt.Sprintf("module %s requires %s:%s, using latest available %s:%s", name, reqName, reqStream, reqName, best))
					e.stream = best
					e.state = StateDefault
				}
			}
			closure(reqName)
		}
	}
	for name := range c.entries {
		closure(name)
	}

	if len(problems) > 0 {
		return problems, dnfcore.ModuleErrInfo
	}
	return nil, dnfcore.ModuleErrNoError
}

// latestStream picks the semver-greatest stream name among streams, for the
// dependency-resolution fallback in [Container.ResolveActive]. A stream that
// doesn't parse as semver is returned only when no stream parses, and which
// of several such streams is returned is not defined.
func latestStream(streams map[string]*Stream) string {
	var best string
	var bestV *semver.Version
	for name := range streams {
		v, err := semver.NewVersion(name)
		if err != nil {
			if best == "" {
				best = name
			}
			continue
		}
		if bestV == nil || v.GreaterThan(bestV) {
			bestV, best = v, name
		}
	}
	return best
}

// Query returns every stream matching the glob-aware n, s, v, c, a filter
// arguments; empty strings match anything.
func (c *Container) Query(n, s, v, ctxt, a string) []*Stream {
	var out []*Stream
	for name, e := range c.entries {
		if n != "" && !globMatch(n, name) {
			continue
		}
		for stream, st := range e.streams {
			if s != "" && !globMatch(s, stream) {
				continue
			}
			if v != "" && !globMatch(v, fmt.Sprint(st.Version)) {
				continue
			}
			if ctxt != "" && !globMatch(ctxt, st.Context) {
				continue
			}
			if a != "" && !globMatch(a, st.Arch) {
				continue
			}
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Stream < out[j].Stream
	})
	return out
}

func globMatch(pattern, s string) bool {
	ok, err := filepath.Match(pattern, s)
	return err == nil && ok
}

// Filter is the result of [Container.ComputeRPMFilter]: the rpm-level
// include and exclude sets a sack should apply to reflect modular
// visibility.
type Filter struct {
	Include         []pool.ID
	NameExclude     []pool.ID
	ProvidesExclude []pool.ID
}

// ComputeRPMFilter partitions module packages into active and inactive
// (spec.md §4.2) and derives the rpm-level filter from them. Include holds
// every solvable whose NEVRA is an artifact of an active stream. Of the
// other solvables, those in system, cmdline, hotfix or hotfixRepoIDs repos
// are left out; NameExclude holds the rest whose name is the name of any
// module artifact, active or inactive, and ProvidesExclude those that
// instead provide such a name.
func (c *Container) ComputeRPMFilter(hotfixRepoIDs map[pool.RepoID]bool) Filter {
	includeNevra := map[string]bool{}
	excludeNevra := map[string]bool{}

	for name, e := range c.entries {
		activeSt, isActive := c.activeStream(name)
		for _, st := range e.streams {
			target := excludeNevra
			if isActive && st == activeSt {
				target = includeNevra
			}
			for _, art := range st.Artifacts {
				target[art.NEVRA.String()] = true
			}
		}
	}

	names := map[string]bool{}
	for k := range includeNevra {
		names[nameOf(k)] = true
	}
	for k := range excludeNevra {
		names[nameOf(k)] = true
	}

	var f Filter
	for _, id := range c.sk.Pool().All() {
		sv := c.sk.Pool().Solvable(id)
		full := sv.NEVRA.String()
		if includeNevra[full] {
			f.Include = append(f.Include, id)
			continue
		}
		if hotfixRepoIDs[sv.RepoID] {
			continue
		}
		if r := c.sk.RepoByID(sv.RepoID); r != nil && (r.System || r.Cmdline || r.Hotfix) {
			continue
		}
		if names[sv.NEVRA.Name] {
			f.NameExclude = append(f.NameExclude, id)
			continue
		}
		for _, pid := range sv.Provides {
			if names[c.sk.Pool().Reldeps.Lookup(pid).Name] {
				f.ProvidesExclude = append(f.ProvidesExclude, id)
				break
			}
		}
	}
	return f
}

func nameOf(nevraStr string) string {
	n, _, err := nevra.Parse(nevraStr)
	if err != nil {
		return nevraStr
	}
	return n.Name
}

// Save writes one INI file per module whose state isn't StateUnknown into
// <installRoot>/etc/dnf/modules.d/<name>.module, atomically (temp file plus
// rename), per spec.md §5's module-state-file write policy.
func (c *Container) Save(installRoot string) error {
	dir := filepath.Join(installRoot, "etc", "dnf", "modules.d")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &dnfcore.Error{Op: "module.Container.Save", Kind: dnfcore.ErrFileInvalid, Inner: err}
	}
	for name, e := range c.entries {
		if e.state == StateUnknown {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%s]\n", name)
		fmt.Fprintf(&b, "name = %s\n", name)
		fmt.Fprintf(&b, "stream = %s\n", e.stream)
		fmt.Fprintf(&b, "state = %s\n", e.state)

		final := filepath.Join(dir, name+".module")
		tmp := final + ".tmp"
		if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
			return &dnfcore.Error{Op: "module.Container.Save", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
		if err := os.Rename(tmp, final); err != nil {
			return &dnfcore.Error{Op: "module.Container.Save", Kind: dnfcore.ErrFileInvalid, Inner: err}
		}
	}
	return nil
}
