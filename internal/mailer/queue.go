package mailer

import (
	"context"
	"fmt"

	"github.com/contactsbook/identity/internal/mq"
	"github.com/rs/zerolog"
)

// QueueSender publishes email to a broker channel instead of sending it.
// The worker command drains the channel with Consume.
type QueueSender struct {
	queue   *mq.MQ
	channel string
}

func NewQueueSender(queue *mq.MQ, channel string) *QueueSender {
	return &QueueSender{queue: queue, channel: channel}
}

func (q *QueueSender) Send(ctx context.Context, email Email) error {
	if _, err := q.queue.PublishJSON(ctx, q.channel, email); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// Consume delivers queued email through sender until ctx is done.
// Messages that fail to decode are dropped; send failures are nacked so the
// broker redelivers them.
func Consume(ctx context.Context, queue *mq.MQ, channel string, sender Sender, logger zerolog.Logger) error {
	return queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		var email Email
		if err := mq.DecodeJSON(msg, &email); err != nil {
			logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed mail job")
			return nil
		}
		if err := sender.Send(ctx, email); err != nil {
			logger.Warn().Err(err).Str("message_id", msg.ID).Str("subject", email.Subject).Msg("mail delivery failed")
			return err
		}
		logger.Info().Str("message_id", msg.ID).Str("subject", email.Subject).Msg("mail delivered")
		return nil
	})
}
