package mqtt

import (
	"fmt"
)

// RealPublisher publishes to an actual MQTT broker through a shared Client.
type RealPublisher struct {
	client *Client
}

// NewRealPublisher creates a publisher on top of client.
func NewRealPublisher(client *Client) *RealPublisher {
	return &RealPublisher{client: client}
}

// PublishState sends a state transition. QoS 0, buffered while offline.
func (p *RealPublisher) PublishState(event StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.client.PublishOrBuffer(TopicState, 0, false, payload)
}

// PublishTranscript sends a transcript. QoS 1 so dictated text is not lost.
func (p *RealPublisher) PublishTranscript(t Transcript) error {
	payload, err := FormatTranscriptPayload(t)
	if err != nil {
		return fmt.Errorf("format transcript payload: %w", err)
	}
	return p.client.PublishOrBuffer(TopicTranscript, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.client.PublishOrBuffer(TopicSystem, 1, event.Retained, payload)
}

// IsConnected reports whether the underlying client is connected.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Close()
	return nil
}
