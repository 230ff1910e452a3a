package status

import (
	"encoding/json"
	"time"
)

// statusEnvelope is the top-level JSON envelope for MQTT status payloads.
type statusEnvelope struct {
	Status statusInner `json:"status"`
}

type statusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Backend       string     `json:"backend"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          mqttStatus `json:"mqtt"`
	Counts        countsJSON `json:"event_counts"`
	DroppedEvents uint64     `json:"dropped_events"`
	Config        configJSON `json:"config"`
}

type mqttStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

type countsJSON struct {
	Manual       int `json:"manual"`
	API          int `json:"api"`
	Scheduled    int `json:"scheduled"`
	SafetyCutoff int `json:"safety_cutoff"`
}

type configJSON struct {
	ConfigPath string `json:"config_path"`
	HTTPAddr   string `json:"http_addr"`
	Broker     string `json:"broker,omitempty"`
	PinCount   int    `json:"pin_count"`
}

// FormatStatusEvent returns the JSON status payload for an MQTT system
// event (STARTUP, SHUTDOWN).
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := statusInner{
		Event:         event,
		Reason:        reason,
		Backend:       snap.Backend,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          mqttStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: countsJSON{
			Manual:       snap.Counts.Manual,
			API:          snap.Counts.API,
			Scheduled:    snap.Counts.Scheduled,
			SafetyCutoff: snap.Counts.SafetyCutoff,
		},
		DroppedEvents: snap.DroppedEvents,
		Config: configJSON{
			ConfigPath: snap.Config.ConfigPath,
			HTTPAddr:   snap.Config.HTTPAddr,
			Broker:     snap.Config.Broker,
			PinCount:   snap.Config.PinCount,
		},
	}

	data, _ := json.Marshal(statusEnvelope{Status: inner})
	return data
}
