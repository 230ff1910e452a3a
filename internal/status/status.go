// Package status provides a thread-safe status tracker for the pinguard
// daemon. It is read by the HTTP status endpoint and embedded in MQTT
// system payloads.
package status

import (
	"sync"
	"time"

	"github.com/pinguard/pinguard/internal/pin"
)

// Config contains daemon configuration for display.
type Config struct {
	ConfigPath string
	HTTPAddr   string
	Broker     string // empty = MQTT disabled
	PinCount   int
}

// EventCounts tracks committed state changes by cause since startup.
type EventCounts struct {
	Manual       int
	API          int
	Scheduled    int
	SafetyCutoff int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Backend       string
	Counts        EventCounts
	DroppedEvents uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, backend kind,
// and config.
func NewTracker(startTime time.Time, backendKind string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Backend:   backendKind,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordEvent counts one committed change event by cause.
func (t *Tracker) RecordEvent(cause pin.Cause) {
	t.mu.Lock()
	switch cause {
	case pin.CauseManual:
		t.snap.Counts.Manual++
	case pin.CauseAPI:
		t.snap.Counts.API++
	case pin.CauseScheduled:
		t.snap.Counts.Scheduled++
	case pin.CauseSafetyCutoff:
		t.snap.Counts.SafetyCutoff++
	}
	t.mu.Unlock()
}

// SetDroppedEvents records how many events the status subscriber has lost.
func (t *Tracker) SetDroppedEvents(n uint64) {
	t.mu.Lock()
	t.snap.DroppedEvents = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
