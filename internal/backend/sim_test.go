package backend

import (
	"errors"
	"testing"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
)

func simPins() []config.Pin {
	return []config.Pin{
		{ID: 17, Name: "LED", Direction: config.Output, Pull: config.PullNone},
		{ID: 19, Name: "Button", Direction: config.Input, Pull: config.PullUp},
		{ID: 20, Name: "Switch", Direction: config.Input, Pull: config.PullDown},
		{ID: 12, Name: "Fan", Direction: config.Output, Pull: config.PullNone,
			PWM: &config.PWM{FrequencyHz: 800, InitialDuty: 25}},
	}
}

func TestSimulatorInitialLevels(t *testing.T) {
	s := NewSimulator(simPins())

	tests := []struct {
		id   int
		want pin.Value
	}{
		{17, pin.Low},   // output starts low
		{19, pin.High},  // pull-up input floats high
		{20, pin.Low},   // pull-down input floats low
		{12, 25},        // pwm starts at initial duty
	}
	for _, tt := range tests {
		got, err := s.Read(tt.id)
		if err != nil {
			t.Fatalf("Read(%d): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Read(%d): expected %d, got %d", tt.id, tt.want, got)
		}
	}
}

func TestSimulatorWriteRoundTrip(t *testing.T) {
	s := NewSimulator(simPins())

	if err := s.Write(17, pin.High); err != nil {
		t.Fatalf("Write: %v", err)
	}
	v, err := s.Read(17)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v != pin.High {
		t.Errorf("expected High after write, got %d", v)
	}

	if err := s.Write(12, 60); err != nil {
		t.Fatalf("Write duty: %v", err)
	}
	v, _ = s.Read(12)
	if v != 60 {
		t.Errorf("expected duty 60, got %d", v)
	}
}

func TestSimulatorRejectsInvalidWrites(t *testing.T) {
	s := NewSimulator(simPins())

	tests := []struct {
		name string
		id   int
		v    pin.Value
		want error
	}{
		{"unconfigured pin", 99, pin.High, ErrNotConfigured},
		{"write to input", 19, pin.High, ErrInvalidValue},
		{"digital value out of range", 17, 2, ErrInvalidValue},
		{"duty above 100", 12, 101, ErrInvalidValue},
		{"negative duty", 12, -1, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Write(tt.id, tt.v)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// Rejected writes leave state untouched.
	v, _ := s.Read(12)
	if v != 25 {
		t.Errorf("expected duty 25 after rejected writes, got %d", v)
	}
}

func TestSimulatorSetInput(t *testing.T) {
	s := NewSimulator(simPins())

	if err := s.SetInput(20, pin.High); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	v, _ := s.Read(20)
	if v != pin.High {
		t.Errorf("expected High, got %d", v)
	}

	if err := s.SetInput(17, pin.High); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetInput on output: expected ErrInvalidValue, got %v", err)
	}
	if err := s.SetInput(99, pin.High); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("SetInput on unknown pin: expected ErrNotConfigured, got %v", err)
	}
}

func TestSimulatorNeverUnavailable(t *testing.T) {
	s := NewSimulator(simPins())
	for i := 0; i < 100; i++ {
		if err := s.Write(17, pin.Value(i%2)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
