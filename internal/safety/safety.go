// Package safety contains the per-pin timing state machine enforcing
// max-on-time and cooldown. It is pure decision logic: time is always
// passed in, and timer arming/firing is the caller's job. The caller holds
// the pin's write serialization around every method.
package safety

import (
	"errors"
	"time"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
)

// ErrCoolingDown rejects a write that arrives during the mandatory idle
// interval. The request never reaches the backend.
var ErrCoolingDown = errors.New("pin is cooling down")

// Monitor tracks the safety phase of one pin.
//
// Phases move Idle -> Active -> Cooldown -> Idle. Pins with unlimited
// on-time (MaxOn == 0) never enter Active but still serve a cooldown after
// turn-off when one is configured. Every phase change increments a
// generation counter; a timer armed for an older generation finds itself
// stale on firing and becomes a no-op, which is what makes concurrent
// cancellation race-free.
type Monitor struct {
	cfg config.Safety

	phase         pin.SafetyPhase
	activeSince   time.Time
	cooldownUntil time.Time
	gen           uint64
}

// New creates a monitor. A nil safety config means no thresholds: the pin
// stays Idle forever.
func New(cfg *config.Safety) *Monitor {
	m := &Monitor{phase: pin.PhaseIdle}
	if cfg != nil {
		m.cfg = *cfg
	}
	return m
}

// Phase returns the current safety phase.
func (m *Monitor) Phase() pin.SafetyPhase {
	return m.phase
}

// ActiveSince returns when the pin entered Active, or the zero time.
func (m *Monitor) ActiveSince() time.Time {
	return m.activeSince
}

// Generation returns the current phase generation.
func (m *Monitor) Generation() uint64 {
	return m.gen
}

// CooldownUntil returns when the current cooldown ends, or the zero time
// when the pin is not cooling down.
func (m *Monitor) CooldownUntil() time.Time {
	return m.cooldownUntil
}

// Authorize decides whether a write may proceed. Only the cutoff write that
// is itself transitioning the pin out of Active bypasses the cooldown
// rejection; it never arrives during Cooldown because the generation check
// invalidates stale cutoff timers first.
func (m *Monitor) Authorize(cause pin.Cause) error {
	if m.phase == pin.PhaseCooldown && cause != pin.CauseSafetyCutoff {
		return ErrCoolingDown
	}
	return nil
}

// Arm tells the caller which timer to schedule after a committed write.
// At most one of Cutoff/Cooldown is nonzero; Gen is the generation the
// timer must present when it fires.
type Arm struct {
	Cutoff   time.Duration
	Cooldown time.Duration
	Gen      uint64
}

// Commit records a successful write and returns the timer to arm, if any.
// Re-asserting the current on state does not restart Active and arms
// nothing; the original cutoff deadline stands.
func (m *Monitor) Commit(old, new pin.Value, now time.Time) Arm {
	switch {
	case !old.On() && new.On():
		if m.cfg.MaxOn <= 0 {
			// Unlimited on-time: stays Idle, no cutoff.
			return Arm{}
		}
		m.phase = pin.PhaseActive
		m.activeSince = now
		m.gen++
		return Arm{Cutoff: m.cfg.MaxOn, Gen: m.gen}

	case old.On() && !new.On():
		m.activeSince = time.Time{}
		m.gen++
		if m.cfg.Cooldown <= 0 {
			m.phase = pin.PhaseIdle
			return Arm{}
		}
		m.phase = pin.PhaseCooldown
		m.cooldownUntil = now.Add(m.cfg.Cooldown)
		return Arm{Cooldown: m.cfg.Cooldown, Gen: m.gen}
	}

	// on -> on or off -> off: no phase transition.
	return Arm{}
}

// CutoffDue reports whether a cutoff timer armed at gen is still the one
// that matters. False means the pin already left Active by another cause
// and the timer must do nothing.
func (m *Monitor) CutoffDue(gen uint64) bool {
	return m.phase == pin.PhaseActive && m.gen == gen
}

// ExpireCooldown ends the cooldown started at gen. Returns false if the
// timer is stale.
func (m *Monitor) ExpireCooldown(gen uint64) bool {
	if m.phase != pin.PhaseCooldown || m.gen != gen {
		return false
	}
	m.phase = pin.PhaseIdle
	m.cooldownUntil = time.Time{}
	m.gen++
	return true
}
