// Package status provides a thread-safe status tracker for the door-dictator daemon.
// It is written by the controller loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/door-dictator/internal/logic"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DebounceMs      int64
	PulseIntervalMs int64
	PulseWidthMs    int64
	HeartbeatMs     int64
	DoorPin         int
	ActuatorPin     int
	ActiveLow       bool
	DryRun          bool
	Broker          string
	HTTPAddr        string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State          logic.Snapshot
	Counts         logic.Counts
	Ready          bool
	LastTranscript string
	LastDiscarded  string
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
	Version        uint64
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets controller state and counters. Called from the controller loop
// after every event.
func (t *Tracker) Update(state logic.Snapshot, counts logic.Counts) {
	t.mu.Lock()
	if t.snap.State != state || t.snap.Counts != counts || !t.snap.Ready {
		t.snap.Version++
	}
	t.snap.State = state
	t.snap.Counts = counts
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetTranscript records the most recently flushed transcript.
func (t *Tracker) SetTranscript(text string) {
	t.mu.Lock()
	t.snap.LastTranscript = text
	t.snap.Version++
	t.mu.Unlock()
}

// SetDiscarded records the preview of the most recently discarded result.
func (t *Tracker) SetDiscarded(text string) {
	t.mu.Lock()
	t.snap.LastDiscarded = text
	t.snap.Version++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	if t.snap.MQTTConnected != connected {
		t.snap.Version++
	}
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
