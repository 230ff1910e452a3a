//go:build linux

package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
)

// chipName is the default GPIO character device on Raspberry Pi class
// boards.
const chipName = "gpiochip0"

// ioTimeout bounds every call into the character device. A stuck kernel
// interface surfaces as ErrHardwareUnavailable instead of hanging a writer.
const ioTimeout = 2 * time.Second

// Hardware drives physical GPIO lines through the Linux character device.
// PWM pins get a software modulation loop; the kernel interface only
// exposes digital levels.
type Hardware struct {
	chip  *gpiocdev.Chip
	cfg   map[int]config.Pin
	lines map[int]*gpiocdev.Line
	pwm   map[int]*softPWM

	mu     sync.Mutex
	values map[int]pin.Value
}

// Probe reports whether a GPIO chip is present and openable.
func Probe() bool {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return false
	}
	chip.Close()
	return true
}

// NewHardware claims every configured line. A line that cannot be claimed
// (already reserved, missing chip) fails construction with
// ErrHardwareUnavailable; partial claims are released.
func NewHardware(pins []config.Pin) (*Hardware, error) {
	var chip *gpiocdev.Chip
	err := withTimeout(ioTimeout, func() error {
		var err error
		chip, err = gpiocdev.NewChip(chipName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", chipName, err, ErrHardwareUnavailable)
	}

	h := &Hardware{
		chip:   chip,
		cfg:    make(map[int]config.Pin, len(pins)),
		lines:  make(map[int]*gpiocdev.Line, len(pins)),
		pwm:    make(map[int]*softPWM),
		values: make(map[int]pin.Value, len(pins)),
	}

	for _, p := range pins {
		if err := h.claim(p); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

func (h *Hardware) claim(p config.Pin) error {
	var line *gpiocdev.Line
	err := withTimeout(ioTimeout, func() error {
		var err error
		switch {
		case p.Direction == config.Input:
			line, err = h.chip.RequestLine(p.ID, gpiocdev.AsInput, pullOption(p.Pull))
		case p.IsPWM():
			initial := 0
			if p.PWM.InitialDuty >= 100 {
				initial = 1
			}
			line, err = h.chip.RequestLine(p.ID, gpiocdev.AsOutput(initial))
		default:
			line, err = h.chip.RequestLine(p.ID, gpiocdev.AsOutput(0))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("request pin %d: %v: %w", p.ID, err, ErrHardwareUnavailable)
	}

	h.cfg[p.ID] = p
	h.lines[p.ID] = line

	if p.IsPWM() {
		duty := pin.Value(p.PWM.InitialDuty)
		sp := newSoftPWM(line, p.PWM.FrequencyHz, duty)
		h.pwm[p.ID] = sp
		h.values[p.ID] = duty
		return nil
	}
	h.values[p.ID] = pin.Low
	return nil
}

func pullOption(p config.Pull) gpiocdev.LineReqOption {
	switch p {
	case config.PullUp:
		return gpiocdev.WithPullUp
	case config.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// Read returns the line level for inputs and the last driven value for
// outputs. Output readback goes through the local table so software PWM
// reports its duty, not the instantaneous line level.
func (h *Hardware) Read(id int) (pin.Value, error) {
	h.mu.Lock()
	p, ok := h.cfg[id]
	v := h.values[id]
	line := h.lines[id]
	h.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("pin %d: %w", id, ErrNotConfigured)
	}
	if p.Direction != config.Input {
		return v, nil
	}

	var raw int
	err := withTimeout(ioTimeout, func() error {
		var err error
		raw, err = line.Value()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %v: %w", id, err, ErrHardwareUnavailable)
	}
	if raw == 0 {
		return pin.Low, nil
	}
	return pin.High, nil
}

// Write drives a digital level or updates the PWM duty cycle.
func (h *Hardware) Write(id int, v pin.Value) error {
	h.mu.Lock()
	p, ok := h.cfg[id]
	line := h.lines[id]
	sp := h.pwm[id]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d: %w", id, ErrNotConfigured)
	}
	if err := ValidateWrite(p, v); err != nil {
		return err
	}

	if sp != nil {
		sp.setDuty(v)
	} else {
		err := withTimeout(ioTimeout, func() error {
			return line.SetValue(int(v))
		})
		if err != nil {
			return fmt.Errorf("write pin %d: %v: %w", id, err, ErrHardwareUnavailable)
		}
	}

	h.mu.Lock()
	h.values[id] = v
	h.mu.Unlock()
	return nil
}

// Close stops PWM loops and releases all lines. Output lines are
// reconfigured to input before release so external circuits see the same
// state as after a fresh boot.
func (h *Hardware) Close() error {
	var errs []error

	for _, sp := range h.pwm {
		sp.stop()
	}
	for id, line := range h.lines {
		if h.cfg[id].Direction == config.Output {
			if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", id, err))
			}
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", id, err))
		}
	}
	if h.chip != nil {
		if err := h.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Kind identifies the variant for diagnostics.
func (h *Hardware) Kind() string {
	return "hardware"
}

// withTimeout runs op and gives up after d. The abandoned op goroutine is
// left to finish on its own; the kernel call it is stuck in holds no locks
// of ours.
func withTimeout(d time.Duration, op func() error) error {
	done := make(chan error, 1)
	go func() { done <- op() }()

	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return fmt.Errorf("timeout after %v: %w", d, ErrHardwareUnavailable)
	}
}
