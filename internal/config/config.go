// Package config loads and validates the pin-list document. Configuration
// is read once at startup; any malformed entry is fatal and names the
// offending pin. Reconfiguration requires a restart.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Direction is the signal direction of a pin.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Pull selects the internal pull resistor for input pins.
type Pull string

const (
	PullUp   Pull = "up"
	PullDown Pull = "down"
	PullNone Pull = "none"
)

// PWM holds pulse-width modulation parameters for a PWM output pin.
type PWM struct {
	FrequencyHz int `yaml:"frequency_hz"`
	InitialDuty int `yaml:"initial_duty"`
}

// Safety holds the timing thresholds enforced by the safety monitor.
// MaxOn zero means unlimited on-time; Cooldown zero disables the mandatory
// idle interval after turn-off.
type Safety struct {
	MaxOn    time.Duration
	Cooldown time.Duration
}

// The document encodes thresholds in seconds; fractional values are
// accepted so short intervals can be expressed.
func (s *Safety) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MaxOnSeconds    float64 `yaml:"max_on_seconds"`
		CooldownSeconds float64 `yaml:"cooldown_seconds"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.MaxOn = time.Duration(raw.MaxOnSeconds * float64(time.Second))
	s.Cooldown = time.Duration(raw.CooldownSeconds * float64(time.Second))
	return nil
}

// Pin is the immutable configuration of a single GPIO line.
type Pin struct {
	ID        int       `yaml:"id"`
	Name      string    `yaml:"name"`
	Direction Direction `yaml:"direction"`
	Pull      Pull      `yaml:"pull"`
	PWM       *PWM      `yaml:"pwm"`
	Safety    *Safety   `yaml:"safety"`
}

// IsPWM reports whether the pin drives a PWM duty cycle instead of a
// digital level.
func (p Pin) IsPWM() bool {
	return p.PWM != nil
}

// SafetyOrZero returns the safety thresholds, or the zero value when the
// pin has no safety block.
func (p Pin) SafetyOrZero() Safety {
	if p.Safety == nil {
		return Safety{}
	}
	return *p.Safety
}

// Config is the loaded pin-list document.
type Config struct {
	Pins []Pin `yaml:"pins"`

	byID map[int]Pin
}

// Error is a startup-fatal configuration problem tied to one pin entry.
type Error struct {
	Pin    int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: pin %d: %s", e.Pin, e.Reason)
}

// Load reads and validates the pin-list document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a pin-list document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.byID = make(map[int]Pin, len(cfg.Pins))
	for _, p := range cfg.Pins {
		cfg.byID[p.ID] = p
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Pins) == 0 {
		return fmt.Errorf("config: no pins defined")
	}

	seen := make(map[int]bool, len(c.Pins))
	for i := range c.Pins {
		p := &c.Pins[i]

		if p.ID < 0 {
			return &Error{Pin: p.ID, Reason: "negative pin id"}
		}
		if seen[p.ID] {
			return &Error{Pin: p.ID, Reason: "duplicate pin id"}
		}
		seen[p.ID] = true

		switch p.Direction {
		case Input, Output:
		default:
			return &Error{Pin: p.ID, Reason: fmt.Sprintf("invalid direction %q", p.Direction)}
		}

		if p.Pull == "" {
			p.Pull = PullNone
		}
		switch p.Pull {
		case PullUp, PullDown, PullNone:
		default:
			return &Error{Pin: p.ID, Reason: fmt.Sprintf("invalid pull %q", p.Pull)}
		}

		if p.PWM != nil {
			if p.Direction != Output {
				return &Error{Pin: p.ID, Reason: "pwm requires an output pin"}
			}
			if p.PWM.FrequencyHz <= 0 {
				return &Error{Pin: p.ID, Reason: fmt.Sprintf("pwm frequency %d Hz out of range", p.PWM.FrequencyHz)}
			}
			if p.PWM.InitialDuty < 0 || p.PWM.InitialDuty > 100 {
				return &Error{Pin: p.ID, Reason: fmt.Sprintf("pwm initial duty %d outside 0-100", p.PWM.InitialDuty)}
			}
		}

		if p.Safety != nil {
			if p.Direction != Output {
				return &Error{Pin: p.ID, Reason: "safety thresholds require an output pin"}
			}
			if p.Safety.MaxOn < 0 {
				return &Error{Pin: p.ID, Reason: "negative max_on_seconds"}
			}
			if p.Safety.Cooldown < 0 {
				return &Error{Pin: p.ID, Reason: "negative cooldown_seconds"}
			}
		}
	}
	return nil
}

// Pin returns the configuration for the given id.
func (c *Config) Pin(id int) (Pin, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// IDs returns all configured pin ids in document order.
func (c *Config) IDs() []int {
	ids := make([]int, len(c.Pins))
	for i, p := range c.Pins {
		ids[i] = p.ID
	}
	return ids
}
