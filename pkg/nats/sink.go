// Package nats publishes outbox events to NATS JetStream. The stream gives
// downstream consumers durable, at-least-once delivery; deduplication rides
// on the event id so relay retries do not produce duplicates.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/corebank/pkg/domain"
)

// Sink is a JetStream-backed messaging.EventSink.
type Sink struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
	mu         sync.RWMutex
}

// Config holds configuration for the NATS sink.
type Config struct {
	// URL is the NATS server URL
	URL string

	// StreamName is the JetStream stream name for events
	StreamName string

	// StreamSubjects are the subjects the stream captures (default: "events.>")
	StreamSubjects []string

	// MaxAge is how long to retain events in the stream
	MaxAge time.Duration

	// MaxBytes is the maximum bytes the stream can store
	MaxBytes int64
}

// DefaultConfig returns sensible defaults for the NATS sink.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "COREBANK_EVENTS",
		StreamSubjects: []string{"events.>"},
		MaxAge:         7 * 24 * time.Hour, // 7 days
		MaxBytes:       1024 * 1024 * 1024, // 1 GB
	}
}

// NewSink connects to NATS and ensures the stream exists.
func NewSink(config Config) (*Sink, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s := &Sink{
		nc:         nc,
		js:         js,
		streamName: config.StreamName,
	}

	if err := s.ensureStream(config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	return s, nil
}

// ensureStream creates or updates the JetStream stream.
func (s *Sink) ensureStream(config Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	stream, err := s.js.StreamInfo(config.StreamName)
	if err != nil {
		if _, err := s.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != config.MaxAge || stream.Config.MaxBytes != config.MaxBytes {
		if _, err := s.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to update stream: %w", err)
		}
	}

	return nil
}

// Publish serializes the event with the registered codec and publishes it to
// events.<event type>. The event id doubles as the JetStream message id, so
// redelivery by the relay deduplicates on the broker.
func (s *Sink) Publish(ctx context.Context, event domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, err := domain.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.EventID(), err)
	}

	subject := "events." + event.EventType()
	if _, err := s.js.Publish(subject, payload,
		nats.MsgId(event.EventID()),
		nats.Context(ctx),
	); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventID(), err)
	}

	return nil
}

// Close closes the NATS connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nc.Close()
	return nil
}
