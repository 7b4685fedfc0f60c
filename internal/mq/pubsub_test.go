package mq

import (
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsbook/identity/config"
)

func TestPubSubMessageCarriesContentType(t *testing.T) {
	attrs := map[string]string{attrContentType: "application/json", "trace": "abc"}
	out := toPubSubMessage([]byte(`{"to":["a@b.co"]}`), attrs)

	assert.Equal(t, "application/json", out.Attributes[attrContentType])
	assert.Equal(t, "abc", out.Attributes["trace"])

	out.Attributes["trace"] = "changed"
	assert.Equal(t, "abc", attrs["trace"])

	raw := toPubSubMessage([]byte("x"), nil)
	assert.Equal(t, defaultContentType, raw.Attributes[attrContentType])
}

func TestPubSubMessageRoundTripDecodesJSON(t *testing.T) {
	published := toPubSubMessage([]byte(`{"to":"a@b.co","link":"http://x/verify/1"}`), map[string]string{attrContentType: "application/json"})
	attempt := 3
	received := &pubsub.Message{
		ID:              "m-1",
		Data:            published.Data,
		Attributes:      published.Attributes,
		DeliveryAttempt: &attempt,
	}

	msg := fromPubSubMessage(received)
	assert.Equal(t, "m-1", msg.ID)
	assert.Equal(t, "3", msg.Attributes[attrDeliveryAttempt])
	_, leaked := received.Attributes[attrDeliveryAttempt]
	assert.False(t, leaked)

	var j job
	require.NoError(t, DecodeJSON(msg, &j))
	assert.Equal(t, "a@b.co", j.To)
}

func TestPubSubSubscriptionConfig(t *testing.T) {
	p := newPubSubClient(config.PubSubConfig{
		AckDeadline: 30 * time.Second,
		MinBackoff:  10 * time.Second,
		MaxBackoff:  10 * time.Minute,
	})

	cfg := p.subscriptionConfig(nil)
	assert.Equal(t, 30*time.Second, cfg.AckDeadline)
	require.NotNil(t, cfg.RetryPolicy)
	assert.Equal(t, 10*time.Second, cfg.RetryPolicy.MinimumBackoff)
	assert.Equal(t, 10*time.Minute, cfg.RetryPolicy.MaximumBackoff)
	assert.Equal(t, "mail.verification-sub", p.subscriptionName("mail.verification"))

	assert.Nil(t, newPubSubClient(config.PubSubConfig{}).subscriptionConfig(nil).RetryPolicy)
}
