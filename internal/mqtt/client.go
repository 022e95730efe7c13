package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 256

// ErrNotConnected is returned by Publish while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// Client wraps a paho connection shared by the publisher and the recognizer bridge.
// Subscriptions are restored and buffered messages replayed on every (re)connect.
type Client struct {
	client paho.Client

	mu   sync.Mutex
	buf  *ringBuffer
	subs map[string]func([]byte)
}

// Dial connects to broker. The will message is published by the broker if the
// connection drops without a clean disconnect.
func Dial(broker, clientID string, willTopic string, will []byte) (*Client, error) {
	c := &Client{
		buf:  newRingBuffer(DefaultBufferSize),
		subs: make(map[string]func([]byte)),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		})
	if willTopic != "" {
		opts.SetBinaryWill(willTopic, will, 1, true)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// Connect keeps retrying in the background; messages are buffered meanwhile.
		log.Warn().Str("broker", broker).Msg("mqtt: connection timeout, retrying in background")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *Client) onConnect(pc paho.Client) {
	c.mu.Lock()
	subs := make(map[string]func([]byte), len(c.subs))
	for topic, fn := range c.subs {
		subs[topic] = fn
	}
	pending := c.buf.drainAll()
	c.mu.Unlock()

	for topic, fn := range subs {
		if err := c.subscribe(topic, fn); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("mqtt: resubscribe failed")
		}
	}

	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("mqtt: replaying buffered messages")
	}
	for _, m := range pending {
		if err := c.Publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt: replay failed")
		}
	}
}

// Publish sends payload and waits for the broker to acknowledge it.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishOrBuffer publishes payload, or keeps it for replay if disconnected.
func (c *Client) PublishOrBuffer(topic string, qos byte, retained bool, payload []byte) error {
	err := c.Publish(topic, qos, retained, payload)
	if err == nil {
		return nil
	}
	c.mu.Lock()
	c.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	c.mu.Unlock()
	return err
}

// Subscribe registers fn for topic. The subscription survives reconnects.
func (c *Client) Subscribe(topic string, fn func(payload []byte)) error {
	c.mu.Lock()
	c.subs[topic] = fn
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// onConnect subscribes once the connection is up.
		return nil
	}
	return c.subscribe(topic, fn)
}

func (c *Client) subscribe(topic string, fn func([]byte)) error {
	token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		fn(msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the connection to the broker is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection and the
// total dropped because the buffer was full.
func (c *Client) Buffered() (pending, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len(), c.buf.droppedTotal()
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(1000) // 1 second timeout
}
