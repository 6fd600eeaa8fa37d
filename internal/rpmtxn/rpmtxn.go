// Package rpmtxn defines the narrow interface the transaction package uses
// to stage and execute an RPM transaction, per spec.md §1's Non-goal
// "RPM header/database library internals (treated as an external
// collaborator accessed through a narrow interface)". Grounded on
// claircore's indexer.Coalescer/indexer.Layer pattern of depending on a
// minimal collaborator interface rather than reimplementing the underlying
// library.
package rpmtxn

import "context"

// VersionHash identifies the installed-package-set version of an rpmdb, a
// SHA-1 over sorted per-header SHA-1s per spec.md §4.4.
type VersionHash string

// Database is the external RPM database adapter.
type Database interface {
	// VersionHash returns the current rpmdb version hash.
	VersionHash(ctx context.Context) (VersionHash, error)
}

// Set is one staged RPM transaction: a sequence of installs and removals
// ready to run, mirroring libdnf's rpmts.
type Set interface {
	// AddInstall stages installing the package at path. allowUntrusted
	// bypasses GPG verification for this entry only; isUpdate marks the
	// entry as replacing an existing install rather than a fresh one.
	AddInstall(ctx context.Context, path string, allowUntrusted, isUpdate bool) error
	// AddRemove stages removing the package named nevra.
	AddRemove(ctx context.Context, nevra string) error
	// Test runs the staged transaction in test mode (no filesystem
	// changes), returning the problems found, if any.
	Test(ctx context.Context) ([]string, error)
	// Run executes the staged transaction for real, invoking progress for
	// each RPM-reported step via cb, in the RPM transaction set's
	// topological order. Returns the problems found, if any.
	Run(ctx context.Context, cb func(nevra string)) ([]string, error)
}

// KeyStore is the external trusted-GPG-keyring adapter used by
// check_untrusted.
type KeyStore interface {
	// Verify reports whether the package at path verifies against the
	// trusted keyring. ok is false with a nil error for a structurally
	// valid but untrusted/missing-key/corrupt signature; err is reserved
	// for I/O failures reading path itself.
	Verify(ctx context.Context, path string) (ok bool, reason string, err error)
}
