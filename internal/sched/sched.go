// Package sched fires time-triggered pin actions. A single dispatch loop
// pops due actions from a min-heap and submits each through the control
// facade exactly like a manual write, so the full safety path applies.
// Rejected actions are logged and skipped, never retried: retrying would
// defeat the cooldown.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pinguard/pinguard/internal/pin"
)

// Kind names a recurrence rule.
type Kind string

const (
	KindOnce     Kind = "once"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindInterval Kind = "interval"
	KindCron     Kind = "cron"
)

// Recurrence decides when an action fires again. The zero value is Once.
type Recurrence struct {
	Kind     Kind
	Interval time.Duration // KindInterval only
	Cron     string        // KindCron only, for display

	cronSched cron.Schedule
}

// Once fires a single time.
func Once() Recurrence { return Recurrence{Kind: KindOnce} }

// Daily fires at the same wall-clock time every day.
func Daily() Recurrence { return Recurrence{Kind: KindDaily} }

// Weekly fires at the same wall-clock time every week.
func Weekly() Recurrence { return Recurrence{Kind: KindWeekly} }

// Every fires at a fixed interval.
func Every(d time.Duration) (Recurrence, error) {
	if d <= 0 {
		return Recurrence{}, fmt.Errorf("interval must be positive, got %v", d)
	}
	return Recurrence{Kind: KindInterval, Interval: d}, nil
}

// CronSpec fires on a standard five-field cron expression.
func CronSpec(expr string) (Recurrence, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return Recurrence{}, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return Recurrence{Kind: KindCron, Cron: expr, cronSched: s}, nil
}

// next computes the firing after now. Daily and weekly step from the
// original fire time so the wall-clock time is preserved; intervals and
// cron recompute from now, so a missed wake never accumulates a backlog.
func (r Recurrence) next(fireAt, now time.Time) (time.Time, bool) {
	switch r.Kind {
	case KindDaily:
		return stepPast(fireAt, 24*time.Hour, now), true
	case KindWeekly:
		return stepPast(fireAt, 7*24*time.Hour, now), true
	case KindInterval:
		return now.Add(r.Interval), true
	case KindCron:
		return r.cronSched.Next(now), true
	default:
		return time.Time{}, false
	}
}

func stepPast(t time.Time, step time.Duration, now time.Time) time.Time {
	for !t.After(now) {
		t = t.Add(step)
	}
	return t
}

// Action is one pending scheduled write.
type Action struct {
	ID         int64
	Pin        int
	Value      pin.Value
	FireAt     time.Time
	Recurrence Recurrence
}

// SubmitFunc hands a due action to the control facade.
type SubmitFunc func(pinID int, v pin.Value) error

// Scheduler owns the pending-action heap and the dispatch loop.
type Scheduler struct {
	submit SubmitFunc
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	heap   actionHeap
	nextID int64

	wake chan struct{}
}

// Option adjusts scheduler construction.
type Option func(*Scheduler)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. Run must be started for actions to fire.
func New(submit SubmitFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		submit: submit,
		logger: logger,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add inserts an action and returns its id. An action with a zero FireAt
// and a recurring rule starts at the rule's first firing from now; a
// one-shot action must carry an explicit fire time.
func (s *Scheduler) Add(a Action) (int64, error) {
	now := s.now()
	if a.FireAt.IsZero() {
		next, ok := a.Recurrence.next(now, now)
		if !ok {
			return 0, errors.New("one-shot action requires a fire time")
		}
		a.FireAt = next
	}

	s.mu.Lock()
	s.nextID++
	a.ID = s.nextID
	heap.Push(&s.heap, &entry{Action: a})
	s.mu.Unlock()

	s.logger.Info("action scheduled",
		"id", a.ID, "pin", a.Pin, "value", int(a.Value),
		"fire_at", a.FireAt, "recurrence", string(a.Recurrence.Kind))
	s.nudge()
	return a.ID, nil
}

// Remove cancels a pending action.
func (s *Scheduler) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.heap {
		if e.Action.ID == id {
			heap.Remove(&s.heap, i)
			return true
		}
	}
	return false
}

// Actions returns the pending actions ordered by fire time.
func (s *Scheduler) Actions() []Action {
	s.mu.Lock()
	out := make([]Action, len(s.heap))
	for i, e := range s.heap {
		out[i] = e.Action
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// Run dispatches actions until ctx is done. It wakes at the next due time
// or when an earlier action is inserted. After a missed wake (suspend,
// clock skew) every past-due action fires in fire-time order and
// recurrences restart from now.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		due, wait := s.collectDue()

		for _, a := range due {
			if err := s.submit(a.Pin, a.Value); err != nil {
				s.logger.Warn("scheduled action rejected",
					"id", a.ID, "pin", a.Pin, "value", int(a.Value), "error", err)
				continue
			}
			s.logger.Info("scheduled action fired", "id", a.ID, "pin", a.Pin, "value", int(a.Value))
		}

		if wait < 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// collectDue pops all actions due now, re-inserting recurring ones, and
// returns the wait until the next pending action (negative when idle).
func (s *Scheduler) collectDue() ([]Action, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []Action
	for len(s.heap) > 0 && !s.heap[0].Action.FireAt.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		due = append(due, e.Action)

		if next, ok := e.Action.Recurrence.next(e.Action.FireAt, now); ok {
			repeat := e.Action
			repeat.FireAt = next
			heap.Push(&s.heap, &entry{Action: repeat})
		}
	}

	if len(s.heap) == 0 {
		return due, -1
	}
	return due, s.heap[0].Action.FireAt.Sub(now)
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

type entry struct {
	Action Action
}

type actionHeap []*entry

func (h actionHeap) Len() int { return len(h) }

func (h actionHeap) Less(i, j int) bool {
	return h[i].Action.FireAt.Before(h[j].Action.FireAt)
}

func (h actionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *actionHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *actionHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
