package backend

import (
	"fmt"
	"sync"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
)

// Simulator is the in-memory backend used when no GPIO hardware is present.
// It is deterministic and never fails on availability, only on invalid
// values.
type Simulator struct {
	mu     sync.Mutex
	cfg    map[int]config.Pin
	values map[int]pin.Value
}

// NewSimulator creates a simulator with every pin at its initial level:
// outputs low (or at the configured initial PWM duty), inputs at the level
// implied by their pull resistor.
func NewSimulator(pins []config.Pin) *Simulator {
	s := &Simulator{
		cfg:    make(map[int]config.Pin, len(pins)),
		values: make(map[int]pin.Value, len(pins)),
	}
	for _, p := range pins {
		s.cfg[p.ID] = p
		switch {
		case p.IsPWM():
			s.values[p.ID] = pin.Value(p.PWM.InitialDuty)
		case p.Direction == config.Input && p.Pull == config.PullUp:
			s.values[p.ID] = pin.High
		default:
			s.values[p.ID] = pin.Low
		}
	}
	return s
}

// Read returns the current simulated level or duty.
func (s *Simulator) Read(id int) (pin.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[id]
	if !ok {
		return 0, fmt.Errorf("pin %d: %w", id, ErrNotConfigured)
	}
	return v, nil
}

// Write stores the new level or duty after validation.
func (s *Simulator) Write(id int, v pin.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.cfg[id]
	if !ok {
		return fmt.Errorf("pin %d: %w", id, ErrNotConfigured)
	}
	if err := ValidateWrite(p, v); err != nil {
		return err
	}
	s.values[id] = v
	return nil
}

// SetInput drives a simulated input pin from the outside, standing in for
// a physical signal. Used by tests and development tooling.
func (s *Simulator) SetInput(id int, v pin.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.cfg[id]
	if !ok {
		return fmt.Errorf("pin %d: %w", id, ErrNotConfigured)
	}
	if p.Direction != config.Input {
		return fmt.Errorf("pin %d is not an input: %w", id, ErrInvalidValue)
	}
	if v != pin.Low && v != pin.High {
		return fmt.Errorf("digital value %d must be 0 or 1: %w", v, ErrInvalidValue)
	}
	s.values[id] = v
	return nil
}

// Close is a no-op for the simulator.
func (s *Simulator) Close() error {
	return nil
}

// Kind identifies the variant for diagnostics.
func (s *Simulator) Kind() string {
	return "simulator"
}
