// Command pinguard exposes GPIO pins over a JSON API and scheduler while
// enforcing max-on-time and cooldown safety rules. It runs against real
// hardware when a GPIO chip is present and an in-memory simulator
// otherwise.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pinguard/pinguard/internal/backend"
	"github.com/pinguard/pinguard/internal/config"
	"github.com/pinguard/pinguard/internal/control"
	"github.com/pinguard/pinguard/internal/mqtt"
	"github.com/pinguard/pinguard/internal/pin"
	"github.com/pinguard/pinguard/internal/sched"
	"github.com/pinguard/pinguard/internal/status"
	"github.com/pinguard/pinguard/internal/web"
)

func main() {
	configPath := flag.String("config", "pins.yaml", "Pin list document")
	httpAddr := flag.String("http", ":8080", "HTTP API address (empty to disable)")
	broker := flag.String("broker", "", "MQTT broker address (empty to disable telemetry)")
	backendName := flag.String("backend", "auto", "Backend selection: auto, hardware, or simulator")
	pollInterval := flag.Duration("poll", time.Second, "Input pin polling interval (0 to disable)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath, *httpAddr, *broker, *backendName, *pollInterval); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath, httpAddr, broker, backendName string, pollInterval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	be, err := selectBackend(backendName, cfg.Pins)
	if err != nil {
		return err
	}
	defer be.Close()
	logger.Info("backend selected", "kind", be.Kind(), "pins", len(cfg.Pins))

	facade, err := control.New(cfg, be, logger)
	if err != nil {
		return fmt.Errorf("init facade: %w", err)
	}
	defer facade.Close()

	scheduler := sched.New(func(pinID int, v pin.Value) error {
		_, err := facade.SetState(pinID, v, pin.CauseScheduled)
		return err
	}, logger)

	tracker := status.NewTracker(time.Now(), be.Kind(), status.Config{
		ConfigPath: configPath,
		HTTPAddr:   httpAddr,
		Broker:     broker,
		PinCount:   len(cfg.Pins),
	})

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if broker != "" {
		real, err := mqtt.NewRealPublisher(broker)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer real.Close()
		publisher = real
		mqttStatus = real

		startup := mqtt.SystemEvent{
			Timestamp:  time.Now(),
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			logger.Warn("failed to publish startup event", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Capture the signal name for the shutdown event before cancelling.
	var shutdownReason string
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("shutting down", "signal", s.String())
		shutdownReason = s.String()
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(scheduler.Run(ctx))
	})

	if pollInterval > 0 {
		g.Go(func() error {
			return ignoreCancel(facade.PollInputs(ctx, pollInterval))
		})
	}

	// Fan change events out to the log, the status tracker, and MQTT.
	sub := facade.Subscribe()
	g.Go(func() error {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub.Events():
				if !ok {
					return nil
				}
				logger.Info("pin changed",
					"pin", ev.Pin, "cause", string(ev.Cause),
					"value", int(ev.New.Value), "phase", string(ev.New.Phase))
				tracker.RecordEvent(ev.Cause)
				tracker.SetDroppedEvents(sub.Dropped())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				if publisher != nil {
					if err := publisher.Publish(ev); err != nil {
						logger.Warn("mqtt publish failed", "error", err)
					}
				}
			}
		}
	})

	if httpAddr != "" {
		srv := web.New(httpAddr, facade, scheduler, tracker, logger)
		g.Go(func() error {
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Info("http api listening", "addr", httpAddr)
	}

	err = g.Wait()

	if publisher != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		shutdown := mqtt.SystemEvent{
			Timestamp:  time.Now(),
			Event:      "SHUTDOWN",
			Reason:     shutdownReason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", shutdownReason),
		}
		if perr := publisher.PublishSystem(shutdown); perr != nil {
			logger.Warn("failed to publish shutdown event", "error", perr)
		}
	}

	return err
}

func selectBackend(name string, pins []config.Pin) (backend.Backend, error) {
	switch name {
	case "auto":
		return backend.Detect(pins)
	case "hardware":
		hw, err := backend.NewHardware(pins)
		if err != nil {
			return nil, fmt.Errorf("init hardware backend: %w", err)
		}
		return hw, nil
	case "simulator":
		return backend.NewSimulator(pins), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
