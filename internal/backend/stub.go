//go:build !linux

package backend

import (
	"fmt"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
)

// Hardware is not available on non-Linux platforms; Detect always selects
// the simulator there.
type Hardware struct{}

// Probe reports no hardware on non-Linux platforms.
func Probe() bool {
	return false
}

// NewHardware fails on non-Linux platforms.
func NewHardware(pins []config.Pin) (*Hardware, error) {
	return nil, fmt.Errorf("gpio requires linux: %w", ErrHardwareUnavailable)
}

func (h *Hardware) Read(id int) (pin.Value, error) {
	return 0, ErrHardwareUnavailable
}

func (h *Hardware) Write(id int, v pin.Value) error {
	return ErrHardwareUnavailable
}

func (h *Hardware) Close() error {
	return nil
}

func (h *Hardware) Kind() string {
	return "hardware"
}
