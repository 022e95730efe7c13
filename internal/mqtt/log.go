package mqtt

import (
	"github.com/rs/zerolog"
)

// LogPublisher writes payloads to a logger instead of a broker.
// It is used when no broker is configured.
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "mqtt-log").Logger()}
}

// PublishState logs the transition payload at debug level.
func (p *LogPublisher) PublishState(event StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	p.log.Debug().Str("topic", TopicState).RawJSON("payload", payload).Msg("publish")
	return nil
}

// PublishTranscript logs the transcript payload.
func (p *LogPublisher) PublishTranscript(t Transcript) error {
	payload, err := FormatTranscriptPayload(t)
	if err != nil {
		return err
	}
	p.log.Info().Str("topic", TopicTranscript).RawJSON("payload", payload).Msg("publish")
	return nil
}

// PublishSystem logs the system payload.
func (p *LogPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	p.log.Info().Str("topic", TopicSystem).RawJSON("payload", payload).Msg("publish")
	return nil
}

// IsConnected is always false.
func (p *LogPublisher) IsConnected() bool {
	return false
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
