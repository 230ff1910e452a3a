// Package mqtt publishes pin change events and daemon lifecycle events to
// an MQTT broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/pinguard/pinguard/internal/pin"
)

// Topic is the MQTT topic for pin change events.
const Topic = "gpio/pinguard/events"

// TopicSystem is the MQTT topic for daemon lifecycle events.
const TopicSystem = "gpio/pinguard/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pin change event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event pin.ChangeEvent) error

	// PublishSystem sends a daemon lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a daemon lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message envelope for a pin change event.
type Payload struct {
	GPIO EventPayload `json:"gpio"`
}

// EventPayload contains the change event details.
type EventPayload struct {
	Timestamp string       `json:"timestamp"`
	Pin       int          `json:"pin"`
	Cause     string       `json:"cause"`
	Old       StatePayload `json:"old"`
	New       StatePayload `json:"new"`
}

// StatePayload is the wire form of one pin state.
type StatePayload struct {
	Value int    `json:"value"`
	Phase string `json:"phase"`
}

// FormatPayload creates the JSON payload for a pin change event.
func FormatPayload(event pin.ChangeEvent) ([]byte, error) {
	payload := Payload{
		GPIO: EventPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Pin:       event.Pin,
			Cause:     string(event.Cause),
			Old:       StatePayload{Value: int(event.Old.Value), Phase: string(event.Old.Phase)},
			New:       StatePayload{Value: int(event.New.Value), Phase: string(event.New.Phase)},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message envelope for lifecycle events that
// don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the lifecycle event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a lifecycle event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
