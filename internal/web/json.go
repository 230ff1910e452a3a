package web

import (
	"time"

	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/pin"
	"github.com/pinguard/pinguard/internal/sched"
	"github.com/pinguard/pinguard/internal/status"
)

// ErrorJSON is the error envelope for all failed requests.
type ErrorJSON struct {
	Error string `json:"error"`
}

// PinJSON is the JSON representation of one pin.
type PinJSON struct {
	Pin         int    `json:"pin"`
	Name        string `json:"name,omitempty"`
	Direction   string `json:"direction"`
	PWM         bool   `json:"pwm"`
	Value       int    `json:"value"`
	Phase       string `json:"phase"`
	LastChanged string `json:"last_changed"`
	ActiveSince string `json:"active_since,omitempty"`
}

// SetPinRequest is the body of POST /api/pins/{id}.
type SetPinRequest struct {
	Value int `json:"value"`
}

// ScheduleRequest is the body of POST /api/schedules.
type ScheduleRequest struct {
	Pin             int    `json:"pin"`
	Value           int    `json:"value"`
	FireAt          string `json:"fire_at,omitempty"` // RFC 3339; optional for recurring rules
	Recurrence      string `json:"recurrence,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	Cron            string `json:"cron,omitempty"`
}

// ScheduleJSON is the JSON representation of a pending action.
type ScheduleJSON struct {
	ID              int64  `json:"id"`
	Pin             int    `json:"pin"`
	Value           int    `json:"value"`
	FireAt          string `json:"fire_at"`
	Recurrence      string `json:"recurrence"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	Cron            string `json:"cron,omitempty"`
}

// EventJSON is the wire form of a change event on the websocket stream.
type EventJSON struct {
	Pin       int            `json:"pin"`
	Cause     string         `json:"cause"`
	Timestamp string         `json:"timestamp"`
	Old       EventStateJSON `json:"old"`
	New       EventStateJSON `json:"new"`
}

// EventStateJSON is the wire form of one side of a change event.
type EventStateJSON struct {
	Value int    `json:"value"`
	Phase string `json:"phase"`
}

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Backend       string     `json:"backend"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	DroppedEvents uint64     `json:"dropped_events"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of event counts by cause.
type CountsJSON struct {
	Manual       int `json:"manual"`
	API          int `json:"api"`
	Scheduled    int `json:"scheduled"`
	SafetyCutoff int `json:"safety_cutoff"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ConfigPath string `json:"config_path"`
	HTTPAddr   string `json:"http_addr"`
	Broker     string `json:"broker,omitempty"`
	PinCount   int    `json:"pin_count"`
}

func pinJSON(cfg config.Pin, st pin.State) PinJSON {
	out := PinJSON{
		Pin:         st.ID,
		Name:        cfg.Name,
		Direction:   string(cfg.Direction),
		PWM:         cfg.IsPWM(),
		Value:       int(st.Value),
		Phase:       string(st.Phase),
		LastChanged: st.LastChanged.UTC().Format(time.RFC3339),
	}
	if !st.ActiveSince.IsZero() {
		out.ActiveSince = st.ActiveSince.UTC().Format(time.RFC3339)
	}
	return out
}

func scheduleJSON(a sched.Action) ScheduleJSON {
	return ScheduleJSON{
		ID:              a.ID,
		Pin:             a.Pin,
		Value:           int(a.Value),
		FireAt:          a.FireAt.UTC().Format(time.RFC3339),
		Recurrence:      string(a.Recurrence.Kind),
		IntervalSeconds: int(a.Recurrence.Interval / time.Second),
		Cron:            a.Recurrence.Cron,
	}
}

func eventJSON(ev pin.ChangeEvent) EventJSON {
	return EventJSON{
		Pin:       ev.Pin,
		Cause:     string(ev.Cause),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Old:       EventStateJSON{Value: int(ev.Old.Value), Phase: string(ev.Old.Phase)},
		New:       EventStateJSON{Value: int(ev.New.Value), Phase: string(ev.New.Phase)},
	}
}

func statusJSON(snap status.Snapshot) StatusJSON {
	return StatusJSON{
		Status: StatusInner{
			Backend:       snap.Backend,
			UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
			StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
			Timestamp:     snap.Now.UTC().Format(time.RFC3339),
			MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
			Counts: CountsJSON{
				Manual:       snap.Counts.Manual,
				API:          snap.Counts.API,
				Scheduled:    snap.Counts.Scheduled,
				SafetyCutoff: snap.Counts.SafetyCutoff,
			},
			DroppedEvents: snap.DroppedEvents,
			Config: ConfigJSON{
				ConfigPath: snap.Config.ConfigPath,
				HTTPAddr:   snap.Config.HTTPAddr,
				Broker:     snap.Config.Broker,
				PinCount:   snap.Config.PinCount,
			},
		},
	}
}
