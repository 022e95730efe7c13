// Command door-dictator gates a continuous speech recognition session and a
// periodic actuator pulse on a door sensor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/door-dictator/internal/config"
	"github.com/sweeney/door-dictator/internal/dictator"
	"github.com/sweeney/door-dictator/internal/gpio"
	"github.com/sweeney/door-dictator/internal/mqtt"
	"github.com/sweeney/door-dictator/internal/recognizer"
	"github.com/sweeney/door-dictator/internal/status"
	"github.com/sweeney/door-dictator/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "door-dictator",
		Short:         "Run dictation while the door is closed and pulse the dictator pin on silence",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.Level())
			log.Logger = logger

			if cfg.PrintState {
				return printState(cfg, cmd.OutOrStdout())
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := run(cfg, logger, sigCh); err != nil {
				logger.Error().Err(err).Msg("fatal")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (yaml, toml or json)")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// hardware is the door input and actuator output, real or simulated.
type hardware struct {
	door gpio.Input
	out  gpio.Output
	sim  web.DoorFunc
}

func (h hardware) close() error {
	return errors.Join(h.door.Close(), h.out.Close())
}

func openHardware(cfg config.Config) (hardware, error) {
	if cfg.DryRun {
		initial := gpio.Low
		if cfg.DryRunDoor == "open" {
			initial = gpio.High
		}
		in := gpio.NewFakeInput(initial)
		return hardware{
			door: in,
			out:  gpio.NewFakeOutput(),
			sim: func(open bool) {
				if open {
					in.Set(gpio.High)
				} else {
					in.Set(gpio.Low)
				}
			},
		}, nil
	}

	in, err := gpio.NewRealInput(cfg.Chip, cfg.DoorPin)
	if err != nil {
		return hardware{}, fmt.Errorf("init door input: %w", err)
	}
	inactive := gpio.NewActuator(nil, cfg.ActuatorActiveLow).InactiveLevel()
	out, err := gpio.NewRealOutput(cfg.Chip, cfg.ActuatorPin, inactive)
	if err != nil {
		in.Close()
		return hardware{}, fmt.Errorf("init actuator output: %w", err)
	}
	return hardware{door: in, out: out}, nil
}

func printState(cfg config.Config, w io.Writer) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.close()

	level, err := hw.door.Read()
	if err != nil {
		return fmt.Errorf("read door: %w", err)
	}
	door := "CLOSED"
	if level == gpio.High {
		door = "OPEN"
	}
	fmt.Fprintf(w, "door: %s (%s)\n", door, level)
	return nil
}

func run(cfg config.Config, logger zerolog.Logger, sig <-chan os.Signal) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.close()

	var (
		publisher mqtt.Publisher
		conn      mqtt.ConnectionStatus
		client    *mqtt.Client
	)
	if cfg.Broker != "" {
		will, err := offlineWill(time.Now())
		if err != nil {
			return err
		}
		client, err = mqtt.Dial(cfg.Broker, cfg.ClientID, mqtt.TopicSystem, will)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		rp := mqtt.NewRealPublisher(client)
		publisher, conn = rp, rp
	} else {
		lp := mqtt.NewLogPublisher(logger)
		publisher, conn = lp, lp
		logger.Warn().Msg("no broker configured, publishing to the log")
	}
	defer publisher.Close()

	newSession := func(sink recognizer.Sink) (recognizer.Session, error) {
		if client == nil || cfg.DryRun {
			return recognizer.NewFakeSession(sink), nil
		}
		b, err := recognizer.NewBridge(client, cfg.RecognizerTopic, sink, logger)
		if err != nil {
			return nil, fmt.Errorf("init recognizer bridge: %w", err)
		}
		return b, nil
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		DebounceMs:      cfg.Debounce.Milliseconds(),
		PulseIntervalMs: cfg.PulseInterval.Milliseconds(),
		PulseWidthMs:    cfg.PulseWidth.Milliseconds(),
		HeartbeatMs:     cfg.Heartbeat.Milliseconds(),
		DoorPin:         cfg.DoorPin,
		ActuatorPin:     cfg.ActuatorPin,
		ActiveLow:       cfg.ActuatorActiveLow,
		DryRun:          cfg.DryRun,
		Broker:          cfg.Broker,
		HTTPAddr:        cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(conn.IsConnected())

	runner := dictator.New(dictator.Options{
		Door:            hw.door,
		Actuator:        gpio.NewActuator(hw.out, cfg.ActuatorActiveLow),
		NewSession:      newSession,
		Publisher:       publisher,
		Connection:      conn,
		Tracker:         tracker,
		Debounce:        cfg.Debounce,
		PulseInterval:   cfg.PulseInterval,
		PulseWidth:      cfg.PulseWidth,
		StartRetry:      cfg.StartRetry,
		Heartbeat:       cfg.Heartbeat,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn().Err(err).Msg("failed to publish startup event")
	}

	if cfg.HTTPAddr != "" {
		opts := []web.Option{web.WithControls(runner), web.WithLogger(logger)}
		if hw.sim != nil {
			opts = append(opts, web.WithDoorSimulator(hw.sim))
		}
		srv := web.New(cfg.HTTPAddr, tracker, opts...)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	logger.Info().
		Str("broker", cfg.Broker).
		Int("door_pin", cfg.DoorPin).
		Int("actuator_pin", cfg.ActuatorPin).
		Bool("dry_run", cfg.DryRun).
		Msg("started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reasonCh := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			name := signalName(s)
			logger.Info().Str("signal", name).Msg("received signal")
			reasonCh <- name
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := runner.Run(ctx)
	cancel()

	reason := "UNKNOWN"
	select {
	case reason = <-reasonCh:
	default:
	}

	tracker.SetMQTTConnected(conn.IsConnected())
	snap = tracker.Snapshot()
	shutdown := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(shutdown); err != nil {
		logger.Warn().Err(err).Msg("failed to publish shutdown event")
	}

	if runErr != nil {
		return fmt.Errorf("run controller: %w", runErr)
	}
	return nil
}

// offlineWill is the retained system event the broker publishes if the connection drops.
func offlineWill(now time.Time) ([]byte, error) {
	will, err := mqtt.FormatSystemPayload(mqtt.SystemEvent{Timestamp: now, Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}
	return will, nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
