package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pinguard/pinguard/internal/pin"
)

func sampleEvent() pin.ChangeEvent {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return pin.ChangeEvent{
		Pin:       18,
		Cause:     pin.CauseSafetyCutoff,
		Timestamp: ts,
		Old:       pin.State{ID: 18, Value: pin.High, Phase: pin.PhaseActive},
		New:       pin.State{ID: 18, Value: pin.Low, Phase: pin.PhaseCooldown},
	}
}

func TestFormatPayload(t *testing.T) {
	data, err := FormatPayload(sampleEvent())
	if err != nil {
		t.Fatalf("FormatPayload: %v", err)
	}

	var decoded Payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	g := decoded.GPIO
	if g.Pin != 18 {
		t.Errorf("expected pin 18, got %d", g.Pin)
	}
	if g.Cause != "SAFETY_CUTOFF" {
		t.Errorf("expected SAFETY_CUTOFF, got %q", g.Cause)
	}
	if g.Timestamp != "2026-08-01T12:00:00Z" {
		t.Errorf("unexpected timestamp %q", g.Timestamp)
	}
	if g.Old.Value != 1 || g.Old.Phase != "ACTIVE" {
		t.Errorf("unexpected old state %+v", g.Old)
	}
	if g.New.Value != 0 || g.New.Phase != "COOLDOWN" {
		t.Errorf("unexpected new state %+v", g.New)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "terminated",
	}

	data, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}

	var decoded SystemPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.System.Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN, got %q", decoded.System.Event)
	}
	if decoded.System.Reason != "terminated" {
		t.Errorf("expected reason terminated, got %q", decoded.System.Reason)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"backend":"simulator"}}`)
	data, err := FormatSystemPayload(SystemEvent{RawPayload: raw})
	if err != nil {
		t.Fatalf("FormatSystemPayload: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("raw payload not passed through: %s", data)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if f.EventCount() != 1 {
		t.Errorf("expected 1 event, got %d", f.EventCount())
	}
	if len(f.Payloads) != 1 {
		t.Errorf("expected 1 payload, got %d", len(f.Payloads))
	}

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}
	if len(f.SystemEvents) != 1 {
		t.Errorf("expected 1 system event, got %d", len(f.SystemEvents))
	}

	f.Close()
	if !f.Closed {
		t.Error("Close should mark the publisher closed")
	}
}
