package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	mqotel "Kinship/pkg/mq"
)

// MessageHandler 处理单条消息；返回 SkipMessageError 时确认并丢弃
type MessageHandler func(ctx context.Context, d amqp.Delivery) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭。
// 处理失败的消息不重新入队，交给死信队列。
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivery channel closed for queue %s", opts.Queue)
			}
			handleDelivery(ctx, opts, msg)
		}
	}
}

func handleDelivery(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, finish := mqotel.StartConsumeSpan(ctx, opts.Queue, msg)
	err := opts.Handler(msgCtx, msg)

	var skip *pkgerrors.SkipMessageError
	switch {
	case err == nil:
		finish(nil)
		_ = msg.Ack(false)
	case errors.As(err, &skip):
		finish(nil)
		logger.Logger.Info("Message skipped",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.String("reason", skip.Reason),
		)
		_ = msg.Ack(false)
	default:
		finish(err)
		logger.Logger.Error("Failed to process message",
			zap.String("queue", opts.Queue),
			zap.String("consumer_tag", opts.ConsumerTag),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		_ = msg.Nack(false, false)
	}
}
