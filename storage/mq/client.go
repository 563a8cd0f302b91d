package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/pkg/logger"
)

// 通知相关的拓扑
const (
	ExchangeNotification = "notification.direct"
	ExchangeDeadLetter   = "notification.dlx"

	QueueEmail           = "notification.email"
	QueueEmailDeadLetter = "notification.email.dlq"

	RoutingKeyEmail = "notification.email"
)

var (
	conn     *amqp.Connection
	connMu   sync.RWMutex
	initOnce sync.Once
	initErr  error
)

// Init 建立连接并声明交换机与队列
func Init() error {
	initOnce.Do(func() {
		c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
		if err != nil {
			initErr = fmt.Errorf("dial rabbitmq: %w", err)
			return
		}

		if err := declareTopology(c); err != nil {
			_ = c.Close()
			initErr = err
			return
		}

		connMu.Lock()
		conn = c
		connMu.Unlock()

		logger.Logger.Info("RabbitMQ initialized",
			zap.String("addr", config.Cfg.RabbitMQAddr),
			zap.String("vhost", config.Cfg.RabbitMQVhost),
		)
	})
	return initErr
}

func declareTopology(c *amqp.Connection) error {
	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	for _, ex := range []string{ExchangeNotification, ExchangeDeadLetter} {
		if err := ch.ExchangeDeclare(ex, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	// 死信队列
	if _, err := ch.QueueDeclare(QueueEmailDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueEmailDeadLetter, err)
	}
	if err := ch.QueueBind(QueueEmailDeadLetter, RoutingKeyEmail, ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueEmailDeadLetter, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyEmail,
	}
	if _, err := ch.QueueDeclare(QueueEmail, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueEmail, err)
	}
	if err := ch.QueueBind(QueueEmail, RoutingKeyEmail, ExchangeNotification, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueEmail, err)
	}
	return nil
}

// Connection 返回当前连接，未初始化时为 nil
func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	connMu.Lock()
	c := conn
	conn = nil
	connMu.Unlock()

	closePublisher()

	if c == nil || c.IsClosed() {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
