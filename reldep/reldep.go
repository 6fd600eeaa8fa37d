// Package reldep implements interned relational dependency expressions:
// "name", or "name op evr", used for provides/requires matching and for the
// query package's reldep filters. Grounded on libdnf's dnf-reldep.h /
// RelationalDependencyContainer, generalized into a plain value type with a
// separate [Pool] doing the interning spec.md §3 calls for.
package reldep

import (
	"fmt"
	"strings"

	rpmversion "github.com/knqyf263/go-rpm-version"
)

// Op is a dependency comparison operator.
type Op int

// Defined operators.
const (
	Any Op = iota
	Eq
	Lt
	Gt
	Le
	Ge
	Ne
)

func (o Op) String() string {
	switch o {
	case Eq:
		return "="
	case Lt:
		return "<"
	case Gt:
		return ">"
	case Le:
		return "<="
	case Ge:
		return ">="
	case Ne:
		return "!="
	default:
		return ""
	}
}

// parseOp recognizes the operator tokens from spec.md §6: "=", "==", "<",
// "<=", ">", ">=", "!=".
func parseOp(s string) (Op, bool) {
	switch s {
	case "=", "==":
		return Eq, true
	case "<":
		return Lt, true
	case "<=":
		return Le, true
	case ">":
		return Gt, true
	case ">=":
		return Ge, true
	case "!=":
		return Ne, true
	default:
		return Any, false
	}
}

// Reldep is a single relational dependency: a bare capability name, or a
// name with a comparison against an EVR.
type Reldep struct {
	Name string
	Op   Op
	EVR  string
}

// String renders "name", or "name op evr" when Op is set.
func (r Reldep) String() string {
	if r.Op == Any {
		return r.Name
	}
	return r.Name + " " + r.Op.String() + " " + r.EVR
}

// IsGlob reports whether the name contains glob metacharacters, per spec.md
// §6's allowance for glob patterns in reldep names.
func (r Reldep) IsGlob() bool {
	return strings.ContainsAny(r.Name, "*?[")
}

// Parse parses "<name>(<op><evr>)?" as described in spec.md §6.
func Parse(s string) (Reldep, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reldep{}, fmt.Errorf("reldep: empty expression")
	}
	for _, tok := range []string{"==", "!=", ">=", "<=", "=", "<", ">"} {
		if i := strings.Index(s, tok); i > 0 {
			op, _ := parseOp(tok)
			name := strings.TrimSpace(s[:i])
			evr := strings.TrimSpace(s[i+len(tok):])
			if name == "" || evr == "" {
				return Reldep{}, fmt.Errorf("reldep: %q: malformed", s)
			}
			return Reldep{Name: name, Op: op, EVR: evr}, nil
		}
	}
	return Reldep{Name: s}, nil
}

// Satisfies reports whether a provided capability with EVR "haveEVR"
// satisfies this Reldep. A bare-name Reldep (Op == Any) is satisfied by any
// EVR, including an empty one (an unversioned Provides).
func (r Reldep) Satisfies(haveEVR string) bool {
	if r.Op == Any {
		return true
	}
	if haveEVR == "" {
		// An unversioned capability cannot satisfy a versioned requirement.
		return false
	}
	c := rpmversion.NewVersion(haveEVR).Compare(rpmversion.NewVersion(r.EVR))
	switch r.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Le:
		return c <= 0
	case Gt:
		return c > 0
	case Ge:
		return c >= 0
	default:
		return false
	}
}

// ID is the interned, dense identifier for a Reldep within a [Pool].
type ID int32

// Pool interns Reldeps so they can be addressed by dense integer id, the way
// spec.md §3 requires: "Used for dependencies and rich-provides matching."
//
// The zero Pool is ready for use; a Pool must not be copied after use.
type Pool struct {
	byValue map[Reldep]ID
	byID    []Reldep
}

// Intern returns the ID for r, allocating a new one if r hasn't been seen by
// this pool before.
func (p *Pool) Intern(r Reldep) ID {
	if p.byValue == nil {
		p.byValue = make(map[Reldep]ID)
	}
	if id, ok := p.byValue[r]; ok {
		return id
	}
	id := ID(len(p.byID))
	p.byID = append(p.byID, r)
	p.byValue[r] = id
	return id
}

// Lookup returns the Reldep for id.
//
// Panics if id is out of range, which indicates a programmer error (an id
// from a different pool, or the pool was reset): ids are expected to remain
// stable for the pool's lifetime per spec.md §3.
func (p *Pool) Lookup(id ID) Reldep {
	return p.byID[id]
}

// Len returns the number of interned Reldeps.
func (p *Pool) Len() int { return len(p.byID) }
