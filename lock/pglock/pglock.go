// Package pglock is the distributed variant of [lock.Manager], backed by
// PostgreSQL advisory locks, for callers coordinating package-management
// operations across multiple hosts or processes sharing one database (for
// example, a fleet of mirrored build roots). It is adapted from claircore's
// locksource/pglock package, trimmed to the single-connection-per-Locker
// model that a command-line dnf invocation needs: one process takes a
// handful of named locks for the duration of a transaction, then exits.
package pglock

import (
	"context"
	"crypto/fnv"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quay/zlog"

	"github.com/rpm-software-management/libdnf-sub004/lock"
)

var (
	errLockFail = errors.New("pglock: lock acquisition failed")
	errClosed   = errors.New("pglock: locker closed")
)

// Locker hands out context-scoped locks backed by Postgres advisory locks,
// keyed by [lock.Kind].
//
// The zero Locker is not usable; construct one with [New]. Close must be
// called to release the held connection.
type Locker struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	cur    map[lock.Kind]struct{}
	closed bool
}

// New creates a Locker pulling a single connection from pool.
//
// The provided context is used only for the initial ping; Close must be
// called to release held resources.
func New(ctx context.Context, pool *pgxpool.Pool) (*Locker, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pglock: initial ping failed: %w", err)
	}
	l := &Locker{pool: pool, cur: make(map[lock.Kind]struct{})}
	_, file, line, _ := runtime.Caller(1)
	runtime.SetFinalizer(l, func(l *Locker) {
		panic(fmt.Sprintf("%s:%d: pglock.Locker not closed", file, line))
	})
	return l, nil
}

// Close releases the Locker's resources. It does not release any
// outstanding advisory locks; callers must unlock via the CancelFunc
// returned from [Locker.Lock]/[Locker.TryLock] first.
func (l *Locker) Close() error {
	runtime.SetFinalizer(l, nil)
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// keyify hashes a [lock.Kind] to the int64 key pg_advisory_lock expects.
func keyify(k lock.Kind) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "dnfcore-lock-%d", k)
	return int64(h.Sum64())
}

// TryLock attempts to acquire kind without blocking.
//
// On success, the returned Context is parented to ctx and canceled when the
// returned CancelFunc is called (which also releases the advisory lock). On
// failure, err is [errLockFail] (lock busy or already held by l),
// [errClosed], or a wrapped query error, and the returned Context is
// already canceled.
func (l *Locker) TryLock(ctx context.Context, kind lock.Kind) (context.Context, context.CancelFunc, error) {
	return l.acquire(ctx, kind, false)
}

// Lock blocks, with doubling backoff capped at 10s, until kind is acquired
// or ctx is done.
func (l *Locker) Lock(ctx context.Context, kind lock.Kind) (context.Context, context.CancelFunc, error) {
	return l.acquire(ctx, kind, true)
}

func (l *Locker) acquire(ctx context.Context, kind lock.Kind, retry bool) (context.Context, context.CancelFunc, error) {
	wait := 500 * time.Millisecond
	for {
		cctx, err := l.tryOnce(ctx, kind)
		if err == nil {
			child, cancel := context.WithCancel(ctx)
			return child, l.unlockFunc(kind, cancel), nil
		}
		if !retry {
			child, cancel := context.WithCancel(ctx)
			cancel()
			return child, cancel, err
		}
		zlog.Debug(ctx).Err(err).Str("kind", kind.String()).Msg("lock busy, retrying")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx, func() {}, ctx.Err()
		case <-t.C:
		}
		if wait *= 2; wait > 10*time.Second {
			wait = 10 * time.Second
		}
		_ = cctx
	}
}

func (l *Locker) tryOnce(ctx context.Context, kind lock.Kind) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errClosed
	}
	if _, ok := l.cur[kind]; ok {
		return nil, errLockFail
	}
	var got bool
	row := l.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, keyify(kind))
	if err := row.Scan(&got); err != nil {
		return nil, fmt.Errorf("pglock: %w", err)
	}
	if !got {
		return nil, errLockFail
	}
	l.cur[kind] = struct{}{}
	return ctx, nil
}

func (l *Locker) unlockFunc(kind lock.Kind, next context.CancelFunc) context.CancelFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			defer next()
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.closed {
				return
			}
			delete(l.cur, kind)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := l.pool.Exec(ctx, `SELECT pg_advisory_unlock($1)`, keyify(kind)); err != nil {
				zlog.Debug(ctx).Err(err).Str("kind", kind.String()).Msg("error during unlock")
			}
		})
	}
}
