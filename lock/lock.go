// Package lock implements the named, reference-counted, process-scope locks
// described in spec.md §4.8, grounded on libdnf's DnfLock
// (dnf-lock.h/dnf-lock.cpp: DnfLockType, DnfLockMode, dnf_lock_take,
// dnf_lock_release) and on claircore's locksource.ContextLock interface for
// the distributed-lock abstraction.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/quay/zlog"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
)

// Kind identifies which resource a lock protects.
type Kind int

// Defined kinds, matching libdnf's DnfLockType.
const (
	KindRPMDB Kind = iota
	KindRepo
	KindMetadata
	KindConfig
	kindLast
)

// String implements [fmt.Stringer], mirroring libdnf's dnf_lock_type_to_string.
func (k Kind) String() string {
	switch k {
	case KindRPMDB:
		return "rpmdb"
	case KindRepo:
		return "repo"
	case KindMetadata:
		return "metadata"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Mode controls whether a lock is scoped to the current process's threads,
// or to every process on the host.
type Mode int

// Defined modes, matching libdnf's DnfLockMode.
const (
	ModeThread Mode = iota
	ModeProcess
)

// Manager is the process-wide singleton mapping lock kind to held lock item,
// per spec.md §4.8. The zero Manager is not ready for use; construct one
// with [New].
type Manager struct {
	lockDir string

	// OnStateChange is invoked after every successful take or release,
	// supplementing libdnf's DnfLockClass.state_changed signal (recovered
	// from original_source/dnf-4/libdnf/dnf-lock.h). May be nil.
	OnStateChange func(kind Kind, held bool)

	mu    sync.Mutex
	items map[Kind]*item
	next  uint64
}

type item struct {
	kind      Kind
	mode      Mode
	ownerGID  int64 // goroutine-ish owner: we use the calling thread id surrogate
	refcount  int
	tokenIDs  map[uint64]struct{}
}

// Opts configures a [Manager] at construction time, mirroring claircore's
// libindex.Opts.Parse pattern.
type Opts struct {
	// LockDir holds process-mode lockfiles. Required.
	LockDir string
	// OnStateChange is wired directly to the resulting Manager's field.
	OnStateChange func(kind Kind, held bool)
}

// Parse validates o and returns a ready-to-use Manager.
func (o *Opts) Parse() (*Manager, error) {
	if o.LockDir == "" {
		return nil, &dnfcore.Error{Op: "lock.Opts.Parse", Kind: dnfcore.ErrInternal, Message: "LockDir is required"}
	}
	m := New(o.LockDir)
	m.OnStateChange = o.OnStateChange
	return m, nil
}

// New returns a Manager whose process-mode lockfiles live under lockDir.
func New(lockDir string) *Manager {
	return &Manager{lockDir: lockDir, items: make(map[Kind]*item)}
}

// Token identifies one successful [Manager.Take] call; pass it to
// [Manager.Release] to release exactly that acquisition.
type Token struct {
	id   uint64
	kind Kind
}

// Take acquires the named lock, per the algorithm in spec.md §4.8:
//
//   - If a matching item exists and the caller is its owner, bump refcount.
//   - If a matching item exists with a different owner, fail with
//     [dnfcore.ErrCannotGetLock], in either mode.
//   - Otherwise, for [ModeProcess], inspect the on-disk lockfile; if present
//     and the holder's /proc/<pid> still exists, fail with
//     [dnfcore.ErrCannotGetLock] naming the holder's cmdline; else claim it.
func (m *Manager) Take(ctx context.Context, kind Kind, mode Mode) (Token, error) {
	owner := ownerID()
	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.items[kind]; ok {
		if it.ownerGID == owner {
			it.refcount++
			id := m.nextID()
			it.tokenIDs[id] = struct{}{}
			return Token{id: id, kind: kind}, nil
		}
		return Token{}, &dnfcore.Error{
			Op: "lock.Manager.Take", Kind: dnfcore.ErrCannotGetLock,
			Message: fmt.Sprintf("%s lock held by another owner in this process", kind),
		}
	}

	if mode == ModeProcess {
		if holder, ok := m.staleCheck(kind); ok {
			return Token{}, &dnfcore.Error{
				Op: "lock.Manager.Take", Kind: dnfcore.ErrCannotGetLock,
				Message: fmt.Sprintf("%s lock held by pid %d (%s)", kind, holder.pid, holder.cmdline),
			}
		}
		if err := m.writeLockfile(kind); err != nil {
			return Token{}, &dnfcore.Error{Op: "lock.Manager.Take", Kind: dnfcore.ErrCannotGetLock, Inner: err}
		}
	}

	it := &item{kind: kind, mode: mode, ownerGID: owner, refcount: 1, tokenIDs: make(map[uint64]struct{})}
	id := m.nextID()
	it.tokenIDs[id] = struct{}{}
	m.items[kind] = it
	zlog.Debug(ctx).Str("kind", kind.String()).Str("mode", modeString(mode)).Msg("lock taken")
	if m.OnStateChange != nil {
		m.OnStateChange(kind, true)
	}
	return Token{id: id, kind: kind}, nil
}

func (m *Manager) nextID() uint64 {
	m.next++
	return m.next
}

func modeString(m Mode) string {
	if m == ModeProcess {
		return "process"
	}
	return "thread"
}

// Release decrements the refcount for t's lock; at zero, a process-mode
// lockfile is unlinked.
func (m *Manager) Release(t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[t.kind]
	if !ok {
		return nil
	}
	delete(it.tokenIDs, t.id)
	it.refcount--
	if it.refcount > 0 {
		return nil
	}
	delete(m.items, t.kind)
	if it.mode == ModeProcess {
		if err := os.Remove(m.lockfilePath(t.kind)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if m.OnStateChange != nil {
		m.OnStateChange(t.kind, false)
	}
	return nil
}

// ReleaseID is the uint64-keyed variant of [Manager.Release] that satisfies
// progress.LockReleaser, which doesn't know about the Token type.
func (m *Manager) ReleaseID(id uint64) error {
	m.mu.Lock()
	var kind Kind
	var found bool
	for k, it := range m.items {
		if _, ok := it.tokenIDs[id]; ok {
			kind, found = k, true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return nil
	}
	return m.Release(Token{id: id, kind: kind})
}

func (m *Manager) lockfilePath(kind Kind) string {
	return filepath.Join(m.lockDir, "dnf-"+kind.String()+".lock")
}

type holder struct {
	pid     int
	cmdline string
}

// staleCheck inspects the on-disk lockfile for kind. It returns (holder,
// true) if the file exists and names a pid that's still alive per
// /proc/<pid>/cmdline; returns (holder{}, false) if the lockfile is absent
// or stale (holder process gone), in which case the caller may proceed to
// claim the lock.
func (m *Manager) staleCheck(kind Kind) (holder, bool) {
	path := m.lockfilePath(kind)
	b, err := os.ReadFile(path)
	if err != nil {
		return holder{}, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		// Malformed lockfile: treat as stale rather than fatal.
		return holder{}, false
	}
	cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		// Process is gone: the lockfile is stale.
		return holder{}, false
	}
	return holder{pid: pid, cmdline: strings.ReplaceAll(strings.TrimRight(string(cmdline), "\x00"), "\x00", " ")}, true
}

func (m *Manager) writeLockfile(kind Kind) error {
	if err := os.MkdirAll(m.lockDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.lockfilePath(kind), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ownerID is a process-lifetime-stable, thread-ish owner identifier.
//
// Go doesn't expose a stable OS thread id from pure userspace without cgo,
// so we use the goroutine's runtime stack identity as a surrogate: it's
// stable for the life of a single synchronous call chain, which is the
// granularity spec.md's "thread owner" check needs (a single goroutine
// driving one Sack/Goal/Transaction, never handed off mid-operation per
// spec.md §5).
func ownerID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine N [running]:" is always the first line.
	line := string(buf[:n])
	var id int64
	fmt.Sscanf(line, "goroutine %d ", &id)
	return id
}
