//go:build linux

package backend

import (
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/pinguard/pinguard/internal/pin"
)

// softPWM modulates a digital line in software. Good enough for LEDs and
// small actuators; nowhere near hardware-PWM precision, which the character
// device does not expose.
type softPWM struct {
	line   *gpiocdev.Line
	period time.Duration

	mu   sync.Mutex
	duty pin.Value

	stopCh chan struct{}
	done   chan struct{}
}

func newSoftPWM(line *gpiocdev.Line, freqHz int, duty pin.Value) *softPWM {
	sp := &softPWM{
		line:   line,
		period: time.Second / time.Duration(freqHz),
		duty:   duty,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go sp.run()
	return sp
}

func (sp *softPWM) setDuty(d pin.Value) {
	sp.mu.Lock()
	sp.duty = d
	sp.mu.Unlock()
}

func (sp *softPWM) currentDuty() pin.Value {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.duty
}

func (sp *softPWM) run() {
	defer close(sp.done)

	for {
		select {
		case <-sp.stopCh:
			sp.line.SetValue(0)
			return
		default:
		}

		duty := sp.currentDuty()
		on := sp.period * time.Duration(duty) / 100
		off := sp.period - on

		if on > 0 {
			sp.line.SetValue(1)
			if !sp.sleep(on) {
				continue
			}
		}
		if off > 0 {
			sp.line.SetValue(0)
			sp.sleep(off)
		}
	}
}

// sleep waits for d unless the loop is being stopped. Returns false when
// interrupted.
func (sp *softPWM) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-sp.stopCh:
		return false
	}
}

func (sp *softPWM) stop() {
	close(sp.stopCh)
	<-sp.done
}
