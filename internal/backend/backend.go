// Package backend abstracts GPIO access behind one capability contract.
// The hardware implementation drives the Linux GPIO character device; the
// simulator keeps state in memory for development and tests. The rest of
// the daemon never branches on which variant is active.
package backend

import (
	"errors"
	"fmt"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
)

var (
	// ErrNotConfigured means the pin id is not part of the loaded pin list.
	ErrNotConfigured = errors.New("pin not configured")

	// ErrHardwareUnavailable means the GPIO interface could not be claimed
	// or did not respond within the I/O timeout. Reported upward, never
	// silently retried.
	ErrHardwareUnavailable = errors.New("hardware unavailable")

	// ErrInvalidValue means the value is outside the pin's valid range or
	// the pin is not writable.
	ErrInvalidValue = errors.New("invalid value")
)

// Backend is the capability contract both variants implement.
type Backend interface {
	// Read returns the current level of a digital pin or the duty cycle
	// of a PWM pin.
	Read(id int) (pin.Value, error)

	// Write drives a digital level (0/1) or a PWM duty cycle (0-100).
	Write(id int, v pin.Value) error

	// Close releases any claimed resources.
	Close() error

	// Kind names the variant for diagnostics ("hardware" or "simulator").
	Kind() string
}

// ValidateWrite checks a value against the pin's configuration. Both
// variants apply the same rules.
func ValidateWrite(p config.Pin, v pin.Value) error {
	if p.Direction != config.Output {
		return fmt.Errorf("pin %d is an input: %w", p.ID, ErrInvalidValue)
	}
	if p.IsPWM() {
		if v < 0 || v > pin.MaxDuty {
			return fmt.Errorf("duty %d outside 0-100: %w", v, ErrInvalidValue)
		}
		return nil
	}
	if v != pin.Low && v != pin.High {
		return fmt.Errorf("digital value %d must be 0 or 1: %w", v, ErrInvalidValue)
	}
	return nil
}

// Detect selects the backend once at startup: hardware when a GPIO chip is
// present, the simulator otherwise. A present but unclaimable chip is an
// error, not a silent fallback.
func Detect(pins []config.Pin) (Backend, error) {
	if Probe() {
		hw, err := NewHardware(pins)
		if err != nil {
			return nil, fmt.Errorf("init hardware backend: %w", err)
		}
		return hw, nil
	}
	return NewSimulator(pins), nil
}
