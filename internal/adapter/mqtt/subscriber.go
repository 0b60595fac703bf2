// Package mqtt ingests snapshot messages from an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/weather-snapshot-cache/internal/config"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// ErrStopped is returned once Disconnect has been called.
var ErrStopped = errors.New("mqtt subscriber stopped")

const (
	qos        = byte(1)
	bufferSize = 256
)

// Subscriber buffers messages from one topic and hands them out in batches.
// It implements pipeline.BatchExtractor. Messages are acknowledged to the
// broker only when the pipeline commits them.
type Subscriber struct {
	client        pahomqtt.Client
	topic         string
	broker        string
	flushInterval time.Duration
	logger        *slog.Logger

	messages chan domain.RawEvent
	stopCh   chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	connected bool
}

// NewSubscriber configures the client. No connection is made until Connect.
func NewSubscriber(cfg *config.Config, logger *slog.Logger) *Subscriber {
	s := newSubscriber(cfg.MQTTTopic, cfg.BatchFlushInterval, logger)
	s.broker = fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.broker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)
	opts.SetAutoAckDisabled(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", s.broker)
		// Subscriptions do not survive a clean-session reconnect.
		if err := s.subscribe(c); err != nil {
			logger.Error("mqtt subscribe failed", "topic", s.topic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = pahomqtt.NewClient(opts)
	return s
}

func newSubscriber(topic string, flushInterval time.Duration, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		topic:         topic,
		flushInterval: flushInterval,
		logger:        logger,
		messages:      make(chan domain.RawEvent, bufferSize),
		stopCh:        make(chan struct{}),
	}
}

// Connect dials the broker and waits for the first connection. The topic is
// subscribed from the on-connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe(c pahomqtt.Client) error {
	token := c.Subscribe(s.topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		s.handleMessage(msg.Topic(), msg.MessageID(), msg.Payload(), msg.Ack)
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", qos)
	return nil
}

// handleMessage blocks while the buffer is full, which stalls the broker
// delivery goroutine until the pipeline catches up.
func (s *Subscriber) handleMessage(topic string, id uint16, payload []byte, ack func()) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))
	raw := domain.RawEvent{
		Value:     payload,
		Topic:     topic,
		Offset:    int64(id),
		Timestamp: time.Now().UTC(),
		Commit: func(context.Context) error {
			ack()
			return nil
		},
	}
	select {
	case s.messages <- raw:
	case <-s.stopCh:
	}
}

// ExtractBatch waits for the first buffered message, then drains up to
// batchSize messages within the flush interval.
func (s *Subscriber) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	select {
	case <-s.stopCh:
		return nil, ErrStopped
	default:
	}

	var first domain.RawEvent
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopCh:
		return nil, ErrStopped
	case first = <-s.messages:
	}

	batch := make([]domain.RawEvent, 0, batchSize)
	batch = append(batch, first)

	timer := time.NewTimer(s.flushInterval)
	defer timer.Stop()
	for len(batch) < batchSize {
		select {
		case raw := <-s.messages:
			batch = append(batch, raw)
		case <-timer.C:
			return batch, nil
		case <-ctx.Done():
			return batch, nil
		case <-s.stopCh:
			return batch, nil
		}
	}
	return batch, nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client != nil && s.client.IsConnected()
}

// Disconnect stops delivery and closes the connection. It is idempotent.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.client != nil {
		if s.IsConnected() {
			s.client.Unsubscribe(s.topic).WaitTimeout(2 * time.Second)
		}
		s.client.Disconnect(250)
	}
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
