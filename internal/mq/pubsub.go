package mq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/contactsbook/identity/config"
)

const attrDeliveryAttempt = "delivery-attempt"

// PubSubClient wraps the Google Cloud Pub/Sub SDK client.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string
	ackDeadline        time.Duration
	minBackoff         time.Duration
	maxBackoff         time.Duration
	maxOutstanding     int
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	p := newPubSubClient(cfg)
	p.client = client
	return p, nil
}

func newPubSubClient(cfg config.PubSubConfig) *PubSubClient {
	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = "-sub"
	}
	return &PubSubClient{
		subscriptionSuffix: suffix,
		ackDeadline:        cfg.AckDeadline,
		minBackoff:         cfg.MinBackoff,
		maxBackoff:         cfg.MaxBackoff,
		maxOutstanding:     cfg.MaxOutstanding,
	}
}

// Publish sends a message to the named topic and waits for the server id.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return "", err
	}
	result := topic.Publish(ctx, toPubSubMessage(data, attrs))
	return result.Get(ctx)
}

// Subscribe consumes messages from the named channel. A handler error nacks
// the message and Pub/Sub redelivers it after the subscription's backoff.
// It returns ctx.Err() once ctx is done.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}
	if p.maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = p.maxOutstanding
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, fromPubSubMessage(msg)); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubClient) Close() error {
	return p.client.Close()
}

func (p *PubSubClient) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, name)
	}
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, p.subscriptionConfig(topic))
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionConfig(topic *pubsub.Topic) pubsub.SubscriptionConfig {
	cfg := pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: p.ackDeadline,
	}
	if p.minBackoff > 0 || p.maxBackoff > 0 {
		cfg.RetryPolicy = &pubsub.RetryPolicy{
			MinimumBackoff: p.minBackoff,
			MaximumBackoff: p.maxBackoff,
		}
	}
	return cfg
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}

// toPubSubMessage copies attrs so callers can reuse their map, and always
// sets a content type for DecodeJSON on the consuming side.
func toPubSubMessage(data []byte, attrs map[string]string) *pubsub.Message {
	out := make(map[string]string, len(attrs)+1)
	for key, value := range attrs {
		out[key] = value
	}
	if out[attrContentType] == "" {
		out[attrContentType] = defaultContentType
	}
	return &pubsub.Message{Data: data, Attributes: out}
}

func fromPubSubMessage(msg *pubsub.Message) Message {
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for key, value := range msg.Attributes {
		attrs[key] = value
	}
	if msg.DeliveryAttempt != nil {
		attrs[attrDeliveryAttempt] = strconv.Itoa(*msg.DeliveryAttempt)
	}
	return Message{
		ID:         msg.ID,
		Data:       msg.Data,
		Attributes: attrs,
	}
}
