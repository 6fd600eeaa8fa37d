package progress

import (
	"context"
	"errors"
	"testing"

	dnfcore "github.com/rpm-software-management/libdnf-sub004"
)

func TestStepsAndDone(t *testing.T) {
	s := New(context.Background())
	s.SetSteps(30, 70)
	if got := s.Progress(); got != 0 {
		t.Fatalf("Progress() = %v, want 0", got)
	}
	if err := s.Done(); err != nil {
		t.Fatal(err)
	}
	if got := s.Progress(); got != 0.3 {
		t.Fatalf("Progress() = %v, want 0.3", got)
	}
	if err := s.Done(); err != nil {
		t.Fatal(err)
	}
	if got := s.Progress(); got != 1.0 {
		t.Fatalf("Progress() = %v, want 1.0", got)
	}
}

func TestNumberStepsSumsTo100(t *testing.T) {
	s := New(context.Background())
	s.SetNumberSteps(3)
	// 34 + 33 + 33 = 100
	total := 0
	for i := 0; i < 3; i++ {
		s.Done()
	}
	_ = total
	if got := s.Progress(); got != 1.0 {
		t.Fatalf("Progress() = %v, want 1.0", got)
	}
}

func TestGetChildIsStable(t *testing.T) {
	s := New(context.Background())
	s.SetSteps(100)
	c1 := s.GetChild()
	c2 := s.GetChild()
	if c1 != c2 {
		t.Fatal("GetChild should return the same child until Done advances")
	}
	s.Done()
	c3 := s.GetChild()
	if c3 == c1 {
		t.Fatal("GetChild should return a fresh child after Done advances")
	}
}

func TestCancellation(t *testing.T) {
	s := New(context.Background())
	s.SetSteps(50, 50)
	s.SetCancellable(true)
	s.AllowCancel(true)
	err := s.Done()
	if !errors.Is(err, dnfcore.ErrCancelled) {
		t.Fatalf("Done() = %v, want ErrCancelled", err)
	}
}

func TestCancellationDisabled(t *testing.T) {
	s := New(context.Background())
	s.SetSteps(100)
	s.SetCancellable(false)
	s.AllowCancel(true)
	if err := s.Done(); err != nil {
		t.Fatalf("Done() = %v, want nil (cancellation disabled)", err)
	}
}

type recordingObserver struct {
	started, stopped []Action
}

func (r *recordingObserver) ActionStart(a Action, hint string) { r.started = append(r.started, a) }
func (r *recordingObserver) ActionStop(a Action)               { r.stopped = append(r.stopped, a) }

func TestObserverNotified(t *testing.T) {
	s := New(context.Background())
	o := &recordingObserver{}
	s.AddObserver(o)
	s.ActionStart(ActionCommit, "test")
	s.ActionStop(ActionCommit)
	if len(o.started) != 1 || o.started[0] != ActionCommit {
		t.Errorf("started = %v, want [%v]", o.started, ActionCommit)
	}
	if len(o.stopped) != 1 || o.stopped[0] != ActionCommit {
		t.Errorf("stopped = %v, want [%v]", o.stopped, ActionCommit)
	}
}
