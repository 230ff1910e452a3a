// Package control is the single mutation surface for pin state. Every
// writer (GUI, API, scheduler, safety timers) funnels through SetState,
// which serializes per pin, applies the safety rules, drives the backend,
// updates the registry, and publishes exactly one change event per
// successful write.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pinguard/pinguard/internal/backend"
	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
	"github.com/pinguard/pinguard/internal/safety"
)

var (
	// ErrUnknownPin means the pin id is not in the loaded configuration.
	ErrUnknownPin = errors.New("unknown pin")

	// ErrDirectionMismatch means a write was attempted on an input pin.
	ErrDirectionMismatch = errors.New("cannot write to input pin")
)

// pinSlot bundles everything owned per pin. The mutex serializes writers
// for this pin only; writers for distinct pins never contend.
type pinSlot struct {
	mu    sync.Mutex
	cfg   config.Pin
	mon   *safety.Monitor
	timer *time.Timer // pending cutoff or cooldown-expiry timer
}

// Facade owns the registry and coordinates all pin mutation.
type Facade struct {
	cfg    *config.Config
	be     backend.Backend
	reg    *pin.Registry
	bus    *Bus
	logger *slog.Logger
	now    func() time.Time

	slots map[int]*pinSlot
}

// Option adjusts facade construction.
type Option func(*Facade)

// WithClock overrides the time source used for timestamps. Timer durations
// still run on the wall clock.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) { f.now = now }
}

// New builds the facade and seeds the registry from the backend's initial
// levels. Startup initialization is not a mutation: no events are
// published and safety monitors start Idle.
func New(cfg *config.Config, be backend.Backend, logger *slog.Logger, opts ...Option) (*Facade, error) {
	f := &Facade{
		cfg:    cfg,
		be:     be,
		bus:    newBus(),
		logger: logger,
		now:    time.Now,
		slots:  make(map[int]*pinSlot, len(cfg.Pins)),
	}
	for _, opt := range opts {
		opt(f)
	}

	start := f.now()
	initial := make([]pin.State, 0, len(cfg.Pins))
	for _, p := range cfg.Pins {
		v, err := be.Read(p.ID)
		if err != nil {
			return nil, fmt.Errorf("read initial state of pin %d: %w", p.ID, err)
		}
		initial = append(initial, pin.State{
			ID:          p.ID,
			Value:       v,
			LastChanged: start,
			Phase:       pin.PhaseIdle,
		})
		f.slots[p.ID] = &pinSlot{
			cfg: p,
			mon: safety.New(p.Safety),
		}
	}
	f.reg = pin.NewRegistry(initial)
	return f, nil
}

// Backend exposes the variant name for diagnostics only.
func (f *Facade) Backend() string {
	return f.be.Kind()
}

// Pin returns the static configuration for a pin.
func (f *Facade) Pin(id int) (config.Pin, bool) {
	return f.cfg.Pin(id)
}

// Pins returns the static configuration of every pin in document order.
func (f *Facade) Pins() []config.Pin {
	return f.cfg.Pins
}

// State returns a snapshot of one pin without blocking writers.
func (f *Facade) State(id int) (pin.State, error) {
	s, ok := f.reg.Snapshot(id)
	if !ok {
		return pin.State{}, fmt.Errorf("pin %d: %w", id, ErrUnknownPin)
	}
	return s, nil
}

// States returns snapshots of all pins ordered by id.
func (f *Facade) States() []pin.State {
	return f.reg.All()
}

// Subscribe registers a new change event subscriber. The subscriber sees
// only events published after this call.
func (f *Facade) Subscribe() *Subscription {
	return f.bus.subscribe(defaultSubscriberBuffer)
}

// SetState drives a pin to the given value. On success the registry holds
// the new state and exactly one ChangeEvent has been published. On failure
// the pin keeps its prior state and nothing is published.
func (f *Facade) SetState(id int, v pin.Value, cause pin.Cause) (pin.State, error) {
	slot, ok := f.slots[id]
	if !ok {
		return pin.State{}, fmt.Errorf("pin %d: %w", id, ErrUnknownPin)
	}
	if slot.cfg.Direction != config.Output {
		return pin.State{}, fmt.Errorf("pin %d: %w", id, ErrDirectionMismatch)
	}
	if err := backend.ValidateWrite(slot.cfg, v); err != nil {
		return pin.State{}, err
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	return f.applyLocked(slot, v, cause)
}

// applyLocked performs the serialized write. The slot mutex is held.
func (f *Facade) applyLocked(slot *pinSlot, v pin.Value, cause pin.Cause) (pin.State, error) {
	id := slot.cfg.ID

	if err := slot.mon.Authorize(cause); err != nil {
		return pin.State{}, fmt.Errorf("pin %d: %w", id, err)
	}

	if err := f.be.Write(id, v); err != nil {
		return pin.State{}, fmt.Errorf("pin %d: backend: %w", id, err)
	}

	now := f.now()
	old, _ := f.reg.Snapshot(id)
	arm := slot.mon.Commit(old.Value, v, now)
	f.armLocked(slot, arm)

	newState := pin.State{
		ID:          id,
		Value:       v,
		LastChanged: now,
		Phase:       slot.mon.Phase(),
		ActiveSince: slot.mon.ActiveSince(),
	}
	f.reg.Put(newState)

	// Published under the pin lock so events for one pin arrive in commit
	// order. The bus never blocks.
	f.bus.publish(pin.ChangeEvent{
		Pin:       id,
		Old:       old,
		New:       newState,
		Cause:     cause,
		Timestamp: now,
	})
	return newState, nil
}

// armLocked replaces the pending timer for the slot when the commit asks
// for one. A write that causes no phase transition arms nothing and must
// leave the pending cutoff timer untouched. A timer orphaned by a phase
// transition fails its generation check on firing and is a no-op.
func (f *Facade) armLocked(slot *pinSlot, arm safety.Arm) {
	if arm.Cutoff <= 0 && arm.Cooldown <= 0 {
		return
	}
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}

	id := slot.cfg.ID
	switch {
	case arm.Cutoff > 0:
		gen := arm.Gen
		slot.timer = time.AfterFunc(arm.Cutoff, func() { f.fireCutoff(slot, gen) })
		f.logger.Debug("armed cutoff", "pin", id, "after", arm.Cutoff)
	case arm.Cooldown > 0:
		gen := arm.Gen
		slot.timer = time.AfterFunc(arm.Cooldown, func() { f.expireCooldown(slot, gen) })
		f.logger.Debug("armed cooldown", "pin", id, "after", arm.Cooldown)
	}
}

// fireCutoff forces a pin off after exceeding its max on-time. A stale
// generation means the pin already left Active by another write; the timer
// then does nothing.
func (f *Facade) fireCutoff(slot *pinSlot, gen uint64) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if !slot.mon.CutoffDue(gen) {
		return
	}

	id := slot.cfg.ID
	state, err := f.applyLocked(slot, pin.Low, pin.CauseSafetyCutoff)
	if err != nil {
		// The pin may still be energized. Surface loudly; hardware
		// failures are never silently retried.
		f.logger.Error("safety cutoff failed", "pin", id, "error", err)
		return
	}
	f.logger.Warn("safety cutoff", "pin", id, "phase", string(state.Phase))
}

// expireCooldown returns a pin to Idle once its cooldown has elapsed. Not
// a mutation of the driven value, so no event is published; the registry
// phase is refreshed for readers.
func (f *Facade) expireCooldown(slot *pinSlot, gen uint64) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if !slot.mon.ExpireCooldown(gen) {
		return
	}

	id := slot.cfg.ID
	s, _ := f.reg.Snapshot(id)
	s.Phase = slot.mon.Phase()
	f.reg.Put(s)
	f.logger.Debug("cooldown expired", "pin", id)
}

// RefreshInputs re-reads every input pin from the backend and updates the
// registry. External signal edges are visible to readers on the next poll;
// they are observations, not mutations, so no events are published.
func (f *Facade) RefreshInputs() error {
	var firstErr error
	for _, p := range f.cfg.Pins {
		if p.Direction != config.Input {
			continue
		}
		v, err := f.be.Read(p.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("read pin %d: %w", p.ID, err)
			}
			continue
		}
		s, ok := f.reg.Snapshot(p.ID)
		if !ok || s.Value == v {
			continue
		}
		s.Value = v
		s.LastChanged = f.now()
		f.reg.Put(s)
	}
	return firstErr
}

// PollInputs refreshes input pins at the given interval until ctx is done.
func (f *Facade) PollInputs(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.RefreshInputs(); err != nil {
				f.logger.Warn("input poll", "error", err)
			}
		}
	}
}

// Close cancels pending safety timers and closes the notification bus.
// The backend is owned by the caller and closed separately.
func (f *Facade) Close() {
	for _, slot := range f.slots {
		slot.mu.Lock()
		if slot.timer != nil {
			slot.timer.Stop()
			slot.timer = nil
		}
		slot.mu.Unlock()
	}
	f.bus.close()
}
