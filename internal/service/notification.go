package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/pkg/email"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
)

// EmailPublisher 把邮件任务投递到队列，internal/queue.Producer 实现
type EmailPublisher interface {
	PublishEmail(ctx context.Context, msg *model.EmailMessage) error
}

// NotificationService 邮件出口。配置了 publisher 时入队由 worker 发送，否则同步发送。
type NotificationService struct {
	client    email.Client
	publisher EmailPublisher
	newID     func() string
}

func NewNotificationService(client email.Client, publisher EmailPublisher, newID func() string) *NotificationService {
	if newID == nil {
		newID = uuid.NewString
	}
	return &NotificationService{client: client, publisher: publisher, newID: newID}
}

// Send 实现 Mailer
func (s *NotificationService) Send(ctx context.Context, msg *model.EmailMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = s.newID()
	}

	if s.publisher == nil {
		return s.Deliver(ctx, msg)
	}

	if err := s.publisher.PublishEmail(ctx, msg); err != nil {
		logger.Logger.Error("Failed to queue email",
			zap.String("message_id", msg.MessageID),
			zap.String("category", msg.Category),
			zap.Error(err),
		)
		return pkgerrors.Wrap(pkgerrors.EmailDeliveryFailed, err)
	}
	return nil
}

// Deliver 直接调用邮件服务商发送，worker 消费时也走这里
func (s *NotificationService) Deliver(ctx context.Context, msg *model.EmailMessage) error {
	if s.client == nil {
		return pkgerrors.Wrap(pkgerrors.EmailDeliveryFailed, errors.New("email client not configured"))
	}

	result, err := s.client.Send(ctx, msg.To, msg.Subject, msg.HTML)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.EmailDeliveryFailed, err)
	}

	logger.Logger.Info("Email delivered",
		zap.String("message_id", msg.MessageID),
		zap.String("category", msg.Category),
		zap.String("provider", result.Provider),
		zap.String("provider_message_id", result.MessageID),
	)
	return nil
}
