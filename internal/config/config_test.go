package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaultIsValid(t *testing.T) {
	d := Default()
	require.NoError(t, d.Validate())
	assert.Equal(t, 17, d.DoorPin)
	assert.Equal(t, 24, d.ActuatorPin)
	assert.True(t, d.ActuatorActiveLow)
	assert.Equal(t, 3*time.Second, d.PulseInterval)
	assert.Zero(t, d.PulseWidth)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load(newFlags(t, "--pulse-interval=5s", "--door-pin=4", "--dry-run", "--http="), "")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PulseInterval)
	assert.Equal(t, 4, cfg.DoorPin)
	assert.True(t, cfg.DryRun)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DOOR_DICTATOR_PULSE_WIDTH", "500ms")
	t.Setenv("DOOR_DICTATOR_ACTUATOR_ACTIVE_LOW", "false")
	t.Setenv("DOOR_DICTATOR_BROKER", "tcp://broker.local:1883")

	cfg, err := Load(newFlags(t), "")
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.PulseWidth)
	assert.False(t, cfg.ActuatorActiveLow)
	assert.Equal(t, "tcp://broker.local:1883", cfg.Broker)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("DOOR_DICTATOR_DEBOUNCE", "1s")

	cfg, err := Load(newFlags(t, "--debounce=100ms"), "")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Debounce)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "door-dictator.yaml")
	data := "pulse-interval: 2s\nactuator-pin: 27\nrecognizer-topic: lab/asr\nlog-level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(newFlags(t), path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.PulseInterval)
	assert.Equal(t, 27, cfg.ActuatorPin)
	assert.Equal(t, "lab/asr", cfg.RecognizerTopic)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero debounce", func(c *Config) { c.Debounce = 0 }, "debounce"},
		{"negative interval", func(c *Config) { c.PulseInterval = -time.Second }, "pulse-interval"},
		{"negative width", func(c *Config) { c.PulseWidth = -time.Second }, "pulse-width"},
		{"negative retry", func(c *Config) { c.StartRetry = -time.Second }, "start-retry"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown-timeout"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Minute }, "heartbeat"},
		{"same pins", func(c *Config) { c.ActuatorPin = c.DoorPin }, "both 17"},
		{"negative pin", func(c *Config) { c.DoorPin = -1 }, "pins must not be negative"},
		{"bad dry run door", func(c *Config) { c.DryRunDoor = "ajar" }, "dry-run-door"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Debounce = 0
	cfg.PulseInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debounce")
	assert.Contains(t, err.Error(), "pulse-interval")
}

func TestLevelFallback(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = ""
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())

	cfg.LogLevel = "warn"
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())
}
