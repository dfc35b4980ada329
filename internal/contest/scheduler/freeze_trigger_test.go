package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"arbiter/internal/contest/scheduler"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []int64
}

func (f *fireRecorder) fire(ctx context.Context, contestID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, contestID)
}

func (f *fireRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func (f *fireRecorder) waitFor(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.count() >= n {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("fired %d times, want %d", f.count(), n)
}

func TestTriggerFiresAtInstant(t *testing.T) {
	rec := &fireRecorder{}
	trigger, err := scheduler.NewFreezeTrigger(rec.fire)
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	defer trigger.Stop()

	if err := trigger.Schedule(1, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	rec.waitFor(t, 1, 5*time.Second)
}

func TestTriggerCancelPreventsFiring(t *testing.T) {
	rec := &fireRecorder{}
	trigger, err := scheduler.NewFreezeTrigger(rec.fire)
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	defer trigger.Stop()

	if err := trigger.Schedule(1, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := trigger.Cancel(1); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	time.Sleep(3 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("fired %d times after cancel, want 0", rec.count())
	}
}

func TestTriggerRescheduleReplacesPendingJob(t *testing.T) {
	rec := &fireRecorder{}
	trigger, err := scheduler.NewFreezeTrigger(rec.fire)
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	defer trigger.Stop()

	if err := trigger.Schedule(1, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := trigger.Schedule(1, time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	rec.waitFor(t, 1, 6*time.Second)
	// Only the replacing job fires.
	time.Sleep(2 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("fired %d times, want 1", rec.count())
	}
}

func TestTriggerRejectsInvalidContest(t *testing.T) {
	trigger, err := scheduler.NewFreezeTrigger(func(ctx context.Context, contestID int64) {})
	if err != nil {
		t.Fatalf("new trigger: %v", err)
	}
	defer trigger.Stop()

	if err := trigger.Schedule(0, time.Now()); err == nil {
		t.Fatal("expected error for contest id 0")
	}
	if err := trigger.Cancel(-1); err == nil {
		t.Fatal("expected error for negative contest id")
	}
}
