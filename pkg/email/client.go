package email

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/metrics"
)

// SendResult 邮件服务商的回执
type SendResult struct {
	MessageID string
	RequestID string
	Provider  string
}

// Client 邮件客户端接口
type Client interface {
	// Send 发送一封 HTML 邮件
	Send(ctx context.Context, to, subject, html string) (*SendResult, error)
}

var (
	emailClient Client
	emailOnce   sync.Once
	emailErr    error
)

// Init 初始化邮件客户端
func Init() error {
	emailOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.EmailProvider {
		case "aliyun":
			emailClient, emailErr = NewAliyunClient(cfg.EmailEndpoint, cfg.EmailAccountName, cfg.EmailFromAlias)
		case "mock":
			emailClient = NewMockClient()
		default:
			emailErr = fmt.Errorf("%w: %s", errors.ErrUnsupportedEmailProvider, cfg.EmailProvider)
		}

		if emailErr != nil {
			logger.Logger.Error("Failed to initialize email client", zap.Error(emailErr))
			return
		}

		logger.Logger.Info("Email client initialized successfully",
			zap.String("provider", cfg.EmailProvider),
		)
	})

	return emailErr
}

func GetClient() Client {
	if emailClient == nil {
		panic("Email client not initialized, call email.Init() first")
	}
	return emailClient
}

// Instrumented 为客户端加上耗时与结果指标
func Instrumented(c Client, provider string) Client {
	return &instrumentedClient{next: c, provider: provider}
}

type instrumentedClient struct {
	next     Client
	provider string
}

func (c *instrumentedClient) Send(ctx context.Context, to, subject, html string) (*SendResult, error) {
	start := time.Now()
	res, err := c.next.Send(ctx, to, subject, html)
	metrics.RecordEmailSend(ctx, c.provider, time.Since(start), err)
	return res, err
}

// Lookup 未初始化或初始化失败时返回 nil
func Lookup() Client {
	if emailErr != nil || emailClient == nil {
		return nil
	}
	return emailClient
}
