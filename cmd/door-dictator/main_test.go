package main

import (
	"bytes"
	"encoding/json"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/door-dictator/internal/config"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "wifi", info.Type)
	assert.Equal(t, "192.168.1.100", info.IP)
	assert.Equal(t, "connected", info.Status)
	assert.Equal(t, "192.168.1.1", info.Gateway)
	assert.Equal(t, "connected", info.WifiStatus)
	assert.Equal(t, "MyNetwork", info.SSID)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status)
	assert.Empty(t, info.IP)
}

func TestOfflineWill(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	will, err := offlineWill(now)
	require.NoError(t, err)

	var payload struct {
		System struct {
			Timestamp string `json:"timestamp"`
			Event     string `json:"event"`
		} `json:"system"`
	}
	require.NoError(t, json.Unmarshal(will, &payload))
	assert.Equal(t, "OFFLINE", payload.System.Event)
	assert.Equal(t, "2026-01-01T12:00:00Z", payload.System.Timestamp)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func dryRunConfig() config.Config {
	cfg := config.Default()
	cfg.DryRun = true
	cfg.Broker = ""
	cfg.HTTPAddr = ""
	cfg.Heartbeat = 0
	return cfg
}

func TestPrintState(t *testing.T) {
	tests := []struct {
		door string
		want string
	}{
		{"open", "door: OPEN (HIGH)\n"},
		{"closed", "door: CLOSED (LOW)\n"},
	}
	for _, tt := range tests {
		cfg := dryRunConfig()
		cfg.DryRunDoor = tt.door

		var out bytes.Buffer
		require.NoError(t, printState(cfg, &out))
		assert.Equal(t, tt.want, out.String())
	}
}

func TestRootCommandPrintState(t *testing.T) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--print-state", "--dry-run", "--dry-run-door=open", "--broker="})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "door: OPEN (HIGH)\n", out.String())
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--print-state", "--dry-run", "--door-pin=24", "--actuator-pin=24"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRunDryRunShutsDownOnSignal(t *testing.T) {
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- run(dryRunConfig(), zerolog.Nop(), sig) }()

	time.Sleep(50 * time.Millisecond)
	sig <- syscall.SIGTERM

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after SIGTERM")
	}
}
