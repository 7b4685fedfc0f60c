package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/contactsbook/identity/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

const (
	attrContentType    = "content-type"
	defaultContentType = "application/octet-stream"
)

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects to the broker selected in cfg.Queue.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	switch cfg.Queue.Backend {
	case config.QueueBackendRabbitMQ:
		backend, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	case config.QueueBackendPubSub:
		backend, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return New(backend), nil
	case config.QueueBackendMemory:
		return New(NewMemoryBackend(0)), nil
	default:
		return nil, fmt.Errorf("mail queue backend %q has no broker", cfg.Queue.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishJSON encodes value as JSON and sends it to the named channel.
func (m *MQ) PublishJSON(ctx context.Context, channel string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return m.backend.Publish(ctx, channel, data, map[string]string{attrContentType: "application/json"})
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// DecodeJSON unmarshals a message published with PublishJSON.
func DecodeJSON(msg Message, out any) error {
	if ct := msg.Attributes[attrContentType]; ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("unexpected content type %q", ct)
	}
	return json.Unmarshal(msg.Data, out)
}
