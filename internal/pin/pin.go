// Package pin defines the pin state data model shared by the registry,
// control facade, and event subscribers. It has no hardware dependencies.
package pin

import "time"

// Value is the driven level of a pin. Digital pins use Low (0) and High (1);
// PWM pins use a duty cycle percentage 0-100. Zero always means "off".
type Value int

const (
	Low  Value = 0
	High Value = 1

	// MaxDuty is the highest valid PWM duty cycle.
	MaxDuty Value = 100
)

// On reports whether the value energizes the pin. Any nonzero duty counts
// as on for safety purposes.
func (v Value) On() bool {
	return v > 0
}

// SafetyPhase is the position of a pin in the safety state machine.
type SafetyPhase string

const (
	PhaseIdle     SafetyPhase = "IDLE"
	PhaseActive   SafetyPhase = "ACTIVE"
	PhaseCooldown SafetyPhase = "COOLDOWN"
)

// Cause identifies the origin of a state mutation.
type Cause string

const (
	CauseManual       Cause = "MANUAL"
	CauseAPI          Cause = "API"
	CauseScheduled    Cause = "SCHEDULED"
	CauseSafetyCutoff Cause = "SAFETY_CUTOFF"
)

// State is a point-in-time view of a single pin. It is a value type, safe
// to hand out after the owning lock is released.
type State struct {
	ID          int
	Value       Value
	LastChanged time.Time
	Phase       SafetyPhase
	// ActiveSince is set while Phase is Active and zero otherwise.
	ActiveSince time.Time
}

// ChangeEvent describes one committed state mutation. Published exactly once
// per successful write, never persisted.
type ChangeEvent struct {
	Pin       int
	Old       State
	New       State
	Cause     Cause
	Timestamp time.Time
}
