package mqtt

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf).Level(zerolog.InfoLevel))

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.PublishState(StateEvent{Timestamp: ts}))
	assert.Empty(t, buf.String(), "state payloads are debug only")

	require.NoError(t, p.PublishTranscript(Transcript{Timestamp: ts, Session: "s1", Text: "hello"}))
	assert.Contains(t, buf.String(), `"topic":"door-dictator/transcript"`)
	assert.Contains(t, buf.String(), `"text":"hello"`)

	buf.Reset()
	require.NoError(t, p.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP"}))
	assert.Contains(t, buf.String(), `"event":"STARTUP"`)

	assert.False(t, p.IsConnected())
	assert.NoError(t, p.Close())
}
