// Package progress implements the hierarchical progress and cancellation
// tree threaded through every long-running dnfcore operation (spec.md
// §4.7), plus lock ownership bookkeeping and action reporting.
//
// The tree shape and step-weighting API are new to this core, but the
// tracing follows claircore's libindex/metrics.go pattern: a package-level
// otel Tracer registered once at init. The package exports no metrics.
package progress

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rpm-software-management/libdnf-sub004"
)

var tracer trace.Tracer

func init() {
	tracer = otel.Tracer("github.com/rpm-software-management/libdnf-sub004/progress")
}

// Action identifies a semantic phase of work, reported to observers via
// [State.ActionStart]/[State.ActionStop].
type Action string

// Defined actions, per spec.md §4.7.
const (
	ActionDownload   Action = "download"
	ActionTestCommit Action = "test_commit"
	ActionCommit     Action = "commit"
	ActionDepsolve   Action = "depsolve"
	ActionGpgCheck   Action = "gpgcheck"
)

// Observer receives action-transition notifications from a [State] tree.
//
// Observers are invoked synchronously from the calling goroutine and must
// not call back into the State or the library, mirroring claircore's policy
// for RPM/solver progress callbacks (spec.md §4 "Coroutine-like callbacks").
type Observer interface {
	ActionStart(action Action, hint string)
	ActionStop(action Action)
}

// LockReleaser matches the subset of lock.Manager's API a State needs to
// release held locks on teardown (lock.Manager.ReleaseID), without progress
// importing lock.
type LockReleaser interface {
	ReleaseID(id uint64) error
}

// State is a node in the progress/cancellation tree.
//
// The zero State is not usable; construct one with [New] or [State.GetChild].
type State struct {
	parent   *State
	children []*State

	mu          sync.Mutex
	weights     []int
	current     int
	obs         []Observer
	curChild    *State
	heldLocks   []heldLock
	lockRelease LockReleaser

	cancellable atomic.Bool
	cancelled   atomic.Bool

	ctx context.Context
}

type heldLock struct {
	id uint64
}

// New returns a root State. The provided Context is used for logging
// baggage only; cancellation is cooperative and tracked separately from
// ctx.Done, per spec.md §4.7's "cooperative, checked at done() boundaries"
// model — ctx cancellation does not by itself cancel a State, but canceling
// a State can be observed through [State.Check].
func New(ctx context.Context) *State {
	return &State{ctx: zlog.ContextWithValues(ctx, "component", "progress.State"), cancellable: atomic.Bool{}}
}

// SetLockReleaser wires the State to the lock manager so [State.ReleaseLocks]
// (called on teardown) can unwind any locks taken against this State.
func (s *State) SetLockReleaser(lr LockReleaser) { s.lockRelease = lr }

// AddObserver registers an observer for action transitions on this State
// and its descendants created after this call.
func (s *State) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = append(s.obs, o)
}

// SetNumberSteps divides this node into n equal-weight children, per
// spec.md §4.7.
func (s *State) SetNumberSteps(n int) {
	w := make([]int, n)
	base, rem := 100/n, 100%n
	for i := range w {
		w[i] = base
		if i < rem {
			w[i]++
		}
	}
	s.SetSteps(w...)
}

// SetSteps sets explicit step weights, which must sum to 100.
//
// Panics if the weights don't sum to 100: this is a programmer error caught
// at development time, not a runtime condition a caller recovers from.
func (s *State) SetSteps(weights ...int) {
	sum := 0
	for _, w := range weights {
		sum += w
	}
	if sum != 100 {
		panic("progress: step weights must sum to 100")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = weights
	s.current = 0
	s.curChild = nil
}

// GetChild returns a child node covering the current step's weight.
//
// Calling GetChild again before [State.Done] advances returns the same
// child, per spec.md §4.7.
func (s *State) GetChild() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curChild != nil {
		return s.curChild
	}
	c := &State{parent: s, ctx: s.ctx, obs: append([]Observer(nil), s.obs...)}
	c.cancellable.Store(s.cancellable.Load())
	s.children = append(s.children, c)
	s.curChild = c
	return c
}

// Done advances to the next step.
//
// Returns an [dnfcore.Error] of kind [dnfcore.ErrCancelled] if cancellation
// has been requested and is currently allowed at this node.
func (s *State) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled.Load() && s.cancellable.Load() {
		return &dnfcore.Error{Op: "progress.State.Done", Kind: dnfcore.ErrCancelled}
	}
	if s.current < len(s.weights) {
		s.current++
	}
	s.curChild = nil
	return nil
}

// Finished collapses any remaining steps immediately, used on early-success
// return paths per spec.md §4.7.
func (s *State) Finished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = len(s.weights)
	s.curChild = nil
}

// Progress returns the fraction of this node's work completed, in [0, 1].
func (s *State) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.weights) == 0 {
		return 0
	}
	done := 0
	for i := 0; i < s.current && i < len(s.weights); i++ {
		done += s.weights[i]
	}
	return float64(done) / 100
}

// SetCancellable enables or disables cancellation checks at this node and
// any children subsequently created via [State.GetChild].
func (s *State) SetCancellable(c bool) { s.cancellable.Store(c) }

// AllowCancel requests cancellation (true) or clears a pending request
// (false). Whether the request takes effect depends on [State.SetCancellable]
// at the node where [State.Done] is next called.
func (s *State) AllowCancel(c bool) { s.cancelled.Store(c) }

// Check reports whether cancellation has been requested and is currently
// allowed at this node, without advancing a step.
func (s *State) Check() bool {
	return s.cancelled.Load() && s.cancellable.Load()
}

// ActionStart emits a semantic action-start transition to every registered
// observer.
func (s *State) ActionStart(action Action, hint string) {
	_, span := tracer.Start(s.ctx, "progress.State.Action/"+string(action))
	span.End()
	zlog.Debug(s.ctx).
		Str("action", string(action)).
		Str("hint", hint).
		Msg("action start")
	s.mu.Lock()
	obs := append([]Observer(nil), s.obs...)
	s.mu.Unlock()
	for _, o := range obs {
		o.ActionStart(action, hint)
	}
}

// ActionStop emits a semantic action-stop transition to every registered
// observer.
func (s *State) ActionStop(action Action) {
	zlog.Debug(s.ctx).
		Str("action", string(action)).
		Msg("action stop")
	s.mu.Lock()
	obs := append([]Observer(nil), s.obs...)
	s.mu.Unlock()
	for _, o := range obs {
		o.ActionStop(action)
	}
}

// RecordLock notes that this State is responsible for releasing lock id on
// teardown.
func (s *State) RecordLock(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heldLocks = append(s.heldLocks, heldLock{id: id})
}

// ReleaseLocks releases every lock this State (not its children) has
// recorded via [State.RecordLock].
func (s *State) ReleaseLocks() error {
	s.mu.Lock()
	held := s.heldLocks
	s.heldLocks = nil
	lr := s.lockRelease
	s.mu.Unlock()
	if lr == nil {
		return nil
	}
	var firstErr error
	for _, h := range held {
		if err := lr.ReleaseID(h.id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
