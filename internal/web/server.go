// Package web exposes the control facade over HTTP: a small JSON API for
// pin state and schedules, a status endpoint, and a websocket stream of
// change events. Authentication and rate limiting are left to whatever
// sits in front of the daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pinguard/pinguard/internal/backend"
	"github.com/pinguard/pinguard/internal/control"
	"github.com/pinguard/pinguard/internal/pin"
	"github.com/pinguard/pinguard/internal/safety"
	"github.com/pinguard/pinguard/internal/sched"
	"github.com/pinguard/pinguard/internal/status"
)

// Server serves the control API over HTTP.
type Server struct {
	httpServer *http.Server
	facade     *control.Facade
	sched      *sched.Scheduler
	tracker    *status.Tracker
	logger     *slog.Logger
}

// New creates a Server backed by the given facade, scheduler, and tracker.
func New(addr string, facade *control.Facade, scheduler *sched.Scheduler, tracker *status.Tracker, logger *slog.Logger) *Server {
	s := &Server{
		facade:  facade,
		sched:   scheduler,
		tracker: tracker,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/pins", s.handlePins)
	mux.HandleFunc("/api/pins/", s.handlePin)
	mux.HandleFunc("/api/schedules", s.handleSchedules)
	mux.HandleFunc("/api/schedules/", s.handleSchedule)
	mux.HandleFunc("/api/events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, statusJSON(s.tracker.Snapshot()))
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	states := s.facade.States()
	out := make([]PinJSON, 0, len(states))
	for _, st := range states {
		cfg, _ := s.facade.Pin(st.ID)
		out = append(out, pinJSON(cfg, st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r.URL.Path, "/api/pins/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		st, err := s.facade.State(id)
		if err != nil {
			writeControlError(w, err)
			return
		}
		cfg, _ := s.facade.Pin(id)
		writeJSON(w, http.StatusOK, pinJSON(cfg, st))

	case http.MethodPost:
		var req SetPinRequest
		if err := decodeBody(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		st, err := s.facade.SetState(id, pin.Value(req.Value), pin.CauseAPI)
		if err != nil {
			s.logger.Warn("api write rejected", "pin", id, "value", req.Value, "error", err)
			writeControlError(w, err)
			return
		}
		cfg, _ := s.facade.Pin(id)
		writeJSON(w, http.StatusOK, pinJSON(cfg, st))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		actions := s.sched.Actions()
		out := make([]ScheduleJSON, 0, len(actions))
		for _, a := range actions {
			out = append(out, scheduleJSON(a))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req ScheduleRequest
		if err := decodeBody(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		action, err := s.buildAction(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		id, err := s.sched.Add(action)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	if !s.sched.Remove(id) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// buildAction validates a schedule request against the pin configuration
// before it ever reaches the scheduler.
func (s *Server) buildAction(req ScheduleRequest) (sched.Action, error) {
	cfg, ok := s.facade.Pin(req.Pin)
	if !ok {
		return sched.Action{}, errors.New("unknown pin")
	}
	if err := backend.ValidateWrite(cfg, pin.Value(req.Value)); err != nil {
		return sched.Action{}, err
	}

	rec, err := parseRecurrence(req)
	if err != nil {
		return sched.Action{}, err
	}

	var fireAt time.Time
	if req.FireAt != "" {
		fireAt, err = time.Parse(time.RFC3339, req.FireAt)
		if err != nil {
			return sched.Action{}, errors.New("fire_at must be RFC 3339")
		}
	}

	return sched.Action{
		Pin:        req.Pin,
		Value:      pin.Value(req.Value),
		FireAt:     fireAt,
		Recurrence: rec,
	}, nil
}

func parseRecurrence(req ScheduleRequest) (sched.Recurrence, error) {
	switch sched.Kind(req.Recurrence) {
	case sched.KindOnce, "":
		return sched.Once(), nil
	case sched.KindDaily:
		return sched.Daily(), nil
	case sched.KindWeekly:
		return sched.Weekly(), nil
	case sched.KindInterval:
		return sched.Every(time.Duration(req.IntervalSeconds) * time.Second)
	case sched.KindCron:
		return sched.CronSpec(req.Cron)
	default:
		return sched.Recurrence{}, errors.New("unknown recurrence kind")
	}
}

func pathID(w http.ResponseWriter, path, prefix string) (int, bool) {
	raw := strings.TrimPrefix(path, prefix)
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pin id")
		return 0, false
	}
	return id, true
}

func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// writeControlError maps facade errors onto HTTP status codes.
func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrUnknownPin):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, control.ErrDirectionMismatch), errors.Is(err, backend.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, safety.ErrCoolingDown):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, backend.ErrHardwareUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorJSON{Error: msg})
}
