// Package dnfcore implements the core of an RPM-based package and module
// transaction engine: sack construction, module-state resolution, dependency
// solving, and transaction execution against a native RPM database.
//
// The package itself holds only the shared error domain; functionality lives
// in the subpackages (nevra, sack, query, module, goal, transaction, ...).
package dnfcore

import (
	"errors"
	"strings"
)

// Error is the dnfcore error domain type.
//
// Errors coming from dnfcore components should be inspectable as
// ([errors.As]) an *Error at some point in the error chain.
//
// Components should construct an Error at the system boundary (an unreadable
// file, a failed call into the RPM or solver adapter) and intermediate
// layers should prefer [fmt.Errorf] with a "%w" verb over wrapping in another
// Error, except to narrow the Kind.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind], not a specific *Error value.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against with
// [errors.Is].
//
// This is the taxonomy from the package specification: every error the core
// produces belongs to exactly one kind.
type ErrorKind string

// Error implements error, so an ErrorKind can be used directly as a
// sentinel with [errors.Is].
func (k ErrorKind) Error() string { return string(k) }

// Defined error kinds.
const (
	ErrInternal             = ErrorKind("internal")                // invariant violation, unexpected solver/rpm response
	ErrFileInvalid          = ErrorKind("file invalid")             // unreadable or malformed local file
	ErrFileNotFound         = ErrorKind("file not found")           // expected path absent
	ErrNoCapability         = ErrorKind("no capability")            // optional extension missing
	ErrCannotGetLock        = ErrorKind("cannot get lock")          // lock contested or stale
	ErrCannotFetchSource    = ErrorKind("cannot fetch source")      // external fetcher failure
	ErrRepoNotAvailable     = ErrorKind("repo not available")       // repo disabled or unreadable
	ErrCannotWriteCache     = ErrorKind("cannot write cache")       // cache write failed
	ErrGpgSignatureInvalid  = ErrorKind("gpg signature invalid")    // signature verification failed
	ErrBadSelector          = ErrorKind("bad selector")             // mutually exclusive selector filters
	ErrNoSolution           = ErrorKind("no solution")              // solver reports unsatisfiable
	ErrPackageNotFound      = ErrorKind("package not found")        // subject resolved to empty set
	ErrInvalidArchitecture  = ErrorKind("invalid architecture")     // unknown or unsupported arch
	ErrNoSpace              = ErrorKind("no space")                 // free space < download size
	ErrUnfinishedTransaction = ErrorKind("unfinished transaction")  // rpmdb in inconsistent state
	ErrRemovalOfProtectedPkg = ErrorKind("removal of protected package")
	ErrCancelled            = ErrorKind("cancelled") // cooperative cancellation at a step boundary
	ErrModule               = ErrorKind("module")    // see ModuleErrorKind for the sub-taxonomy
)

// ModuleErrorKind is the module-subsystem sub-taxonomy named in spec.md §7.
//
// A [*Error] with Kind [ErrModule] carries one of these as its Inner error
// (or wraps one further down the chain), letting callers do
// errors.Is(err, ModuleErrCannotResolveModules) for the specific case while
// errors.Is(err, ErrModule) still matches broadly.
type ModuleErrorKind string

// Error implements error.
func (k ModuleErrorKind) Error() string { return string(k) }

// Defined module error kinds.
const (
	ModuleErrNoError                        = ModuleErrorKind("no error")
	ModuleErrInfo                           = ModuleErrorKind("info")             // log and continue
	ModuleErrInDefaults                     = ModuleErrorKind("error in defaults") // log and continue
	ModuleErrError                          = ModuleErrorKind("error")
	ModuleErrCannotResolveModules           = ModuleErrorKind("cannot resolve modules")
	ModuleErrCannotResolveModuleSpec        = ModuleErrorKind("cannot resolve module spec")
	ModuleErrCannotEnableMultipleStreams    = ModuleErrorKind("cannot enable multiple streams")
	ModuleErrCannotModifyMultipleTimes      = ModuleErrorKind("cannot modify multiple times")
)

// Recoverable reports whether an error of this kind can be handled locally by
// the caller without aborting the overarching operation, per the taxonomy
// table in spec.md §7.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrNoCapability, ErrCannotWriteCache, ErrCancelled:
		return true
	default:
		return false
	}
}
