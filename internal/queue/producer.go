package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/pkg/logger"
	"Kinship/pkg/snowflake"
	"Kinship/storage/mq"
)

// PublishFunc 与 mq.PublishMessage 签名一致
type PublishFunc func(ctx context.Context, exchange, routingKey string, body any, opts mq.PublishOptions) error

// Producer 邮件任务生产者
type Producer struct {
	publish PublishFunc
	nextID  func() (int64, error)
}

func NewProducer() *Producer {
	return &Producer{publish: mq.PublishMessage, nextID: snowflake.NextID}
}

// PublishEmail 发布邮件投递消息，MessageID 为空时用 snowflake 生成
func (p *Producer) PublishEmail(ctx context.Context, msg *model.EmailMessage) error {
	if msg.MessageID == "" {
		id, err := p.nextID()
		if err != nil {
			logger.Logger.Error("Failed to generate message ID",
				zap.String("category", msg.Category),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = fmt.Sprintf("email_%d", id)
	}

	err := p.publish(ctx,
		mq.ExchangeNotification,
		mq.RoutingKeyEmail,
		msg,
		mq.PublishOptions{MessageID: msg.MessageID},
	)
	if err != nil {
		logger.Logger.Error("Failed to publish email message",
			zap.String("message_id", msg.MessageID),
			zap.String("category", msg.Category),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Debug("Published email message",
		zap.String("message_id", msg.MessageID),
		zap.String("category", msg.Category),
		zap.String("tenant_id", msg.TenantID),
	)
	return nil
}
