package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Kinship/internal/model"
	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/storage/mq"
)

// Deliverer 实际发送邮件，service.NotificationService 实现
type Deliverer interface {
	Deliver(ctx context.Context, msg *model.EmailMessage) error
}

// Guard 消息幂等标记，cache.MessageGuard 实现
type Guard interface {
	TryMarkProcessing(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Unmark(ctx context.Context, messageID string) error
}

// EmailConsumer 消费 notification.email 队列
type EmailConsumer struct {
	deliverer Deliverer
	guard     Guard
}

func NewEmailConsumer(deliverer Deliverer, guard Guard) *EmailConsumer {
	return &EmailConsumer{deliverer: deliverer, guard: guard}
}

// Handle 处理一条邮件消息。
// 重复消息返回 SkipMessageError；发送失败时撤销标记并返回错误，消息进入死信队列。
func (c *EmailConsumer) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg model.EmailMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal email message: %w", err)
	}
	if msg.MessageID == "" {
		msg.MessageID = d.MessageId
	}

	if c.guard != nil && msg.MessageID != "" {
		ok, err := c.guard.TryMarkProcessing(ctx, msg.MessageID)
		if err != nil {
			// 检查失败时继续处理，可能重复发送
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !ok {
			return errors.NewSkipMessageError(fmt.Sprintf("message %s already processed", msg.MessageID))
		}
	}

	if err := c.deliverer.Deliver(ctx, &msg); err != nil {
		if c.guard != nil && msg.MessageID != "" {
			if uerr := c.guard.Unmark(ctx, msg.MessageID); uerr != nil {
				logger.Logger.Warn("Failed to unmark message", zap.String("message_id", msg.MessageID), zap.Error(uerr))
			}
		}
		return err
	}

	if c.guard != nil && msg.MessageID != "" {
		if err := c.guard.MarkProcessed(ctx, msg.MessageID); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Start 阻塞消费直到 ctx 取消
func (c *EmailConsumer) Start(ctx context.Context) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueEmail,
		ConsumerTag:   "email_consumer",
		PrefetchCount: 10,
		Handler:       c.Handle,
	})
}

// StartAllConsumers 并发启动消费者，任一退出出错时取消其余
func StartAllConsumers(ctx context.Context, consumers ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, start := range consumers {
		start := start
		g.Go(func() error { return start(gctx) })
	}

	logger.Logger.Info("All consumers started", zap.Int("count", len(consumers)))
	return g.Wait()
}
