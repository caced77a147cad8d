package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trektide/apiserver/internal/mq"
)

// DefaultChannel is the queue channel mail jobs travel on.
const DefaultChannel = "mail"

// QueueSender defers delivery by publishing the message as a JSON job.
// The mail worker consumes the channel and delivers over SMTP.
type QueueSender struct {
	queue   *mq.MQ
	channel string
}

// NewQueueSender constructs a queue-backed sender. An empty channel uses
// DefaultChannel.
func NewQueueSender(queue *mq.MQ, channel string) *QueueSender {
	if channel == "" {
		channel = DefaultChannel
	}
	return &QueueSender{queue: queue, channel: channel}
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = q.queue.Publish(ctx, q.channel, data, map[string]string{"kind": string(msg.Kind)})
	return err
}

// RunWorker consumes mail jobs and delivers them with sender. It blocks
// until ctx is canceled. Malformed jobs are dropped (acked) after
// logging; delivery failures are returned to the broker for redelivery.
func RunWorker(ctx context.Context, queue *mq.MQ, channel string, sender Sender, logger *slog.Logger) error {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}

	return queue.Subscribe(ctx, channel, func(ctx context.Context, raw mq.Message) error {
		var msg Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			logger.Error("dropping malformed mail job", "id", raw.ID, "err", err)
			return nil
		}
		if err := sender.Send(ctx, msg); err != nil {
			logger.Warn("mail delivery failed", "id", raw.ID, "kind", msg.Kind, "err", err)
			return fmt.Errorf("deliver %s mail: %w", msg.Kind, err)
		}
		logger.Info("mail delivered", "id", raw.ID, "kind", msg.Kind, "to", msg.To)
		return nil
	})
}
