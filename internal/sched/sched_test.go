package sched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pinguard/pinguard/internal/pin"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeSubmit records submitted actions and can reject selected pins.
type fakeSubmit struct {
	mu     sync.Mutex
	calls  []submitted
	reject map[int]error
}

type submitted struct {
	pin   int
	value pin.Value
	at    time.Time
}

func (f *fakeSubmit) submit(pinID int, v pin.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reject[pinID]; err != nil {
		return err
	}
	f.calls = append(f.calls, submitted{pin: pinID, value: v, at: time.Now()})
	return nil
}

func (f *fakeSubmit) snapshot() []submitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitted(nil), f.calls...)
}

func (f *fakeSubmit) waitForCalls(t *testing.T, n int, timeout time.Duration) []submitted {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if calls := f.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d submissions, got %d", n, len(f.snapshot()))
	return nil
}

func TestRecurrenceNext(t *testing.T) {
	fireAt := time.Date(2026, 8, 1, 7, 30, 0, 0, time.UTC)

	t.Run("once never recurs", func(t *testing.T) {
		if _, ok := Once().next(fireAt, fireAt); ok {
			t.Error("once should not recur")
		}
	})

	t.Run("daily preserves wall time", func(t *testing.T) {
		now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
		next, ok := Daily().next(fireAt, now)
		if !ok {
			t.Fatal("daily should recur")
		}
		want := time.Date(2026, 8, 4, 7, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("weekly preserves wall time", func(t *testing.T) {
		now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
		next, ok := Weekly().next(fireAt, now)
		if !ok {
			t.Fatal("weekly should recur")
		}
		// Aug 1 2026 is a Saturday; first Saturday 07:30 after Aug 20 is Aug 22.
		want := time.Date(2026, 8, 22, 7, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("interval recomputes from now", func(t *testing.T) {
		rec, err := Every(30 * time.Second)
		if err != nil {
			t.Fatalf("Every: %v", err)
		}
		now := fireAt.Add(5 * time.Minute) // long after the original slot
		next, ok := rec.next(fireAt, now)
		if !ok {
			t.Fatal("interval should recur")
		}
		if !next.Equal(now.Add(30 * time.Second)) {
			t.Errorf("expected now+30s, got %v", next)
		}
	})

	t.Run("cron", func(t *testing.T) {
		rec, err := CronSpec("0 7 * * *")
		if err != nil {
			t.Fatalf("CronSpec: %v", err)
		}
		now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
		next, ok := rec.next(fireAt, now)
		if !ok {
			t.Fatal("cron should recur")
		}
		if next.Hour() != 7 || next.Minute() != 0 {
			t.Errorf("expected a 07:00 firing, got %v", next)
		}
		if !next.After(now) {
			t.Errorf("next firing %v not after now %v", next, now)
		}
	})

	t.Run("invalid inputs", func(t *testing.T) {
		if _, err := Every(0); err == nil {
			t.Error("Every(0) should fail")
		}
		if _, err := CronSpec("not a cron"); err == nil {
			t.Error("bad cron expression should fail")
		}
	})
}

func TestAddRequiresFireTimeForOneShot(t *testing.T) {
	s := New((&fakeSubmit{}).submit, testLogger)
	if _, err := s.Add(Action{Pin: 17, Value: pin.High}); err == nil {
		t.Fatal("one-shot action without fire time should fail")
	}
}

func TestAddComputesFirstFiringForRecurring(t *testing.T) {
	rec, _ := Every(time.Minute)
	s := New((&fakeSubmit{}).submit, testLogger)

	before := time.Now()
	id, err := s.Add(Action{Pin: 17, Value: pin.High, Recurrence: rec})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id != 1 {
		t.Errorf("expected id 1, got %d", id)
	}

	actions := s.Actions()
	if len(actions) != 1 {
		t.Fatalf("expected 1 pending action, got %d", len(actions))
	}
	if actions[0].FireAt.Before(before.Add(time.Minute).Add(-time.Second)) {
		t.Errorf("first firing too early: %v", actions[0].FireAt)
	}
}

func TestRemove(t *testing.T) {
	s := New((&fakeSubmit{}).submit, testLogger)
	id, _ := s.Add(Action{Pin: 17, Value: pin.High, FireAt: time.Now().Add(time.Hour)})

	if !s.Remove(id) {
		t.Error("Remove should find the action")
	}
	if s.Remove(id) {
		t.Error("second Remove should report not found")
	}
	if len(s.Actions()) != 0 {
		t.Error("heap should be empty")
	}
}

func TestDispatchFiresInOrder(t *testing.T) {
	fake := &fakeSubmit{}
	s := New(fake.submit, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	now := time.Now()
	s.Add(Action{Pin: 2, Value: pin.High, FireAt: now.Add(60 * time.Millisecond)})
	s.Add(Action{Pin: 1, Value: pin.High, FireAt: now.Add(20 * time.Millisecond)})

	calls := fake.waitForCalls(t, 2, 2*time.Second)
	if calls[0].pin != 1 || calls[1].pin != 2 {
		t.Errorf("expected pins [1 2], got [%d %d]", calls[0].pin, calls[1].pin)
	}

	cancel()
	<-done
	if len(s.Actions()) != 0 {
		t.Errorf("one-shot actions should be gone, %d left", len(s.Actions()))
	}
}

func TestDispatchCatchesUpPastDueActions(t *testing.T) {
	fake := &fakeSubmit{}
	s := New(fake.submit, testLogger)

	// Both fire times are already in the past when the loop starts, as
	// after a suspend. They must fire immediately, oldest first.
	now := time.Now()
	s.Add(Action{Pin: 2, Value: pin.High, FireAt: now.Add(-time.Minute)})
	s.Add(Action{Pin: 1, Value: pin.Low, FireAt: now.Add(-2 * time.Minute)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	calls := fake.waitForCalls(t, 2, 2*time.Second)
	if calls[0].pin != 1 || calls[1].pin != 2 {
		t.Errorf("expected catch-up order [1 2], got [%d %d]", calls[0].pin, calls[1].pin)
	}
}

func TestRecurringActionRefires(t *testing.T) {
	fake := &fakeSubmit{}
	s := New(fake.submit, testLogger)

	rec, _ := Every(30 * time.Millisecond)
	s.Add(Action{Pin: 17, Value: pin.High, FireAt: time.Now().Add(10 * time.Millisecond), Recurrence: rec})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	fake.waitForCalls(t, 3, 2*time.Second)

	if len(s.Actions()) != 1 {
		t.Errorf("recurring action should stay pending, got %d", len(s.Actions()))
	}
}

func TestRejectedActionIsSkippedNotRetried(t *testing.T) {
	fake := &fakeSubmit{reject: map[int]error{18: errors.New("cooling down")}}
	s := New(fake.submit, testLogger)

	now := time.Now()
	s.Add(Action{Pin: 18, Value: pin.High, FireAt: now.Add(10 * time.Millisecond)})
	s.Add(Action{Pin: 17, Value: pin.High, FireAt: now.Add(20 * time.Millisecond)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// The rejected action does not block the one behind it.
	calls := fake.waitForCalls(t, 1, 2*time.Second)
	if calls[0].pin != 17 {
		t.Errorf("expected pin 17 to fire, got %d", calls[0].pin)
	}

	// And it is not retried.
	time.Sleep(100 * time.Millisecond)
	for _, c := range fake.snapshot() {
		if c.pin == 18 {
			t.Error("rejected action was retried")
		}
	}
	if len(s.Actions()) != 0 {
		t.Errorf("rejected one-shot should be dropped, %d pending", len(s.Actions()))
	}
}

func TestEarlierInsertionWakesDispatcher(t *testing.T) {
	fake := &fakeSubmit{}
	s := New(fake.submit, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// The loop is asleep until tomorrow; an earlier action must still
	// fire promptly.
	s.Add(Action{Pin: 2, Value: pin.High, FireAt: time.Now().Add(24 * time.Hour)})
	time.Sleep(20 * time.Millisecond)
	s.Add(Action{Pin: 1, Value: pin.High, FireAt: time.Now().Add(30 * time.Millisecond)})

	start := time.Now()
	calls := fake.waitForCalls(t, 1, 2*time.Second)
	if calls[0].pin != 1 {
		t.Errorf("expected pin 1, got %d", calls[0].pin)
	}
	if time.Since(start) > time.Second {
		t.Error("dispatcher did not wake for the earlier action")
	}
}
