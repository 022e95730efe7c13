// Package config loads door-dictator settings from flags, an optional config
// file and DOOR_DICTATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/door-dictator/internal/gpio"
)

// EnvPrefix is prepended to every environment override, e.g. DOOR_DICTATOR_PULSE_INTERVAL.
const EnvPrefix = "DOOR_DICTATOR"

// Config holds all daemon settings. Keys match the command-line flag names.
type Config struct {
	Chip              string `mapstructure:"chip"`
	DoorPin           int    `mapstructure:"door-pin"`
	ActuatorPin       int    `mapstructure:"actuator-pin"`
	ActuatorActiveLow bool   `mapstructure:"actuator-active-low"`

	Debounce        time.Duration `mapstructure:"debounce"`
	PulseInterval   time.Duration `mapstructure:"pulse-interval"`
	PulseWidth      time.Duration `mapstructure:"pulse-width"`
	StartRetry      time.Duration `mapstructure:"start-retry"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`

	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client-id"`
	RecognizerTopic string `mapstructure:"recognizer-topic"`

	HTTPAddr string `mapstructure:"http"`

	DryRun     bool   `mapstructure:"dry-run"`
	DryRunDoor string `mapstructure:"dry-run-door"`
	LogLevel   string `mapstructure:"log-level"`
	PrintState bool   `mapstructure:"print-state"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Chip:              gpio.DefaultChip,
		DoorPin:           gpio.DefaultDoorPin,
		ActuatorPin:       gpio.DefaultActuatorPin,
		ActuatorActiveLow: true,
		Debounce:          250 * time.Millisecond,
		PulseInterval:     3 * time.Second,
		StartRetry:        5 * time.Second,
		ShutdownTimeout:   3 * time.Second,
		Heartbeat:         15 * time.Minute,
		Broker:            "tcp://192.168.1.200:1883",
		ClientID:          "door-dictator",
		RecognizerTopic:   "door-dictator/recognizer",
		HTTPAddr:          ":80",
		DryRunDoor:        "closed",
		LogLevel:          "info",
	}
}

// RegisterFlags defines a flag for every key, defaulting to Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("chip", d.Chip, "GPIO character device")
	fs.Int("door-pin", d.DoorPin, "BCM pin number of the door sensor (High = open)")
	fs.Int("actuator-pin", d.ActuatorPin, "BCM pin number of the dictator output")
	fs.Bool("actuator-active-low", d.ActuatorActiveLow, "drive the actuator Low to pulse")
	fs.Duration("debounce", d.Debounce, "door sensor debounce window")
	fs.Duration("pulse-interval", d.PulseInterval, "delay between end of sound and the actuator pulse")
	fs.Duration("pulse-width", d.PulseWidth, "release the pulse after this long (0 holds until speech or door open)")
	fs.Duration("start-retry", d.StartRetry, "retry delay after a failed session start (0 disables)")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "how long to wait for the session to stop on exit")
	fs.Duration("heartbeat", d.Heartbeat, "heartbeat interval (0 to disable)")
	fs.String("broker", d.Broker, "MQTT broker address (empty disables MQTT)")
	fs.String("client-id", d.ClientID, "MQTT client id")
	fs.String("recognizer-topic", d.RecognizerTopic, "MQTT topic prefix of the speech recognizer")
	fs.String("http", d.HTTPAddr, "HTTP status address (empty to disable)")
	fs.Bool("dry-run", d.DryRun, "use simulated GPIO and recognizer")
	fs.String("dry-run-door", d.DryRunDoor, "initial simulated door state: open or closed")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.Bool("print-state", d.PrintState, "print the door state and exit")
}

// Load merges defaults, the config file at path (if not empty), the
// environment and any flags set on fs, in increasing order of precedence.
func Load(fs *pflag.FlagSet, path string) (Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("chip", d.Chip)
	v.SetDefault("door-pin", d.DoorPin)
	v.SetDefault("actuator-pin", d.ActuatorPin)
	v.SetDefault("actuator-active-low", d.ActuatorActiveLow)
	v.SetDefault("debounce", d.Debounce)
	v.SetDefault("pulse-interval", d.PulseInterval)
	v.SetDefault("pulse-width", d.PulseWidth)
	v.SetDefault("start-retry", d.StartRetry)
	v.SetDefault("shutdown-timeout", d.ShutdownTimeout)
	v.SetDefault("heartbeat", d.Heartbeat)
	v.SetDefault("broker", d.Broker)
	v.SetDefault("client-id", d.ClientID)
	v.SetDefault("recognizer-topic", d.RecognizerTopic)
	v.SetDefault("http", d.HTTPAddr)
	v.SetDefault("dry-run", d.DryRun)
	v.SetDefault("dry-run-door", d.DryRunDoor)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("print-state", d.PrintState)

	// Example: DOOR_DICTATOR_PULSE_INTERVAL=5s
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("debounce must be positive, got %v", c.Debounce))
	}
	if c.PulseInterval <= 0 {
		errs = append(errs, fmt.Errorf("pulse-interval must be positive, got %v", c.PulseInterval))
	}
	if c.PulseWidth < 0 {
		errs = append(errs, fmt.Errorf("pulse-width must not be negative, got %v", c.PulseWidth))
	}
	if c.StartRetry < 0 {
		errs = append(errs, fmt.Errorf("start-retry must not be negative, got %v", c.StartRetry))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive, got %v", c.ShutdownTimeout))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.DoorPin < 0 || c.ActuatorPin < 0 {
		errs = append(errs, errors.New("pins must not be negative"))
	}
	if c.DoorPin == c.ActuatorPin {
		errs = append(errs, fmt.Errorf("door-pin and actuator-pin are both %d", c.DoorPin))
	}
	if c.DryRunDoor != "open" && c.DryRunDoor != "closed" {
		errs = append(errs, fmt.Errorf("dry-run-door must be open or closed, got %q", c.DryRunDoor))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log-level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
