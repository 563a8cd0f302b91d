package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "kinship.rabbitmq"

var (
	mqMessagesTotal   metric.Int64Counter
	mqMessageDuration metric.Float64Histogram
	mqPublishErrors   metric.Int64Counter
	mqConsumeErrors   metric.Int64Counter
)

// InitMQMetrics 初始化 RabbitMQ 指标
func InitMQMetrics(meter metric.Meter) error {
	var err error

	mqMessagesTotal, err = meter.Int64Counter(
		"mq.messages.total",
		metric.WithDescription("Total number of RabbitMQ messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	mqMessageDuration, err = meter.Float64Histogram(
		"mq.message.duration",
		metric.WithDescription("RabbitMQ publish / handle duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return err
	}

	mqPublishErrors, err = meter.Int64Counter(
		"mq.publish.errors",
		metric.WithDescription("Number of RabbitMQ publish errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	mqConsumeErrors, err = meter.Int64Counter(
		"mq.consume.errors",
		metric.WithDescription("Number of RabbitMQ consume errors"),
		metric.WithUnit("{error}"),
	)
	return err
}

// HeaderCarrier 把 amqp.Table 适配为 propagation.TextMapCarrier
type HeaderCarrier amqp.Table

func (h HeaderCarrier) Get(key string) string {
	if v, ok := h[key].(string); ok {
		return v
	}
	return ""
}

func (h HeaderCarrier) Set(key, value string) {
	h[key] = value
}

func (h HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

// InjectHeaders 把当前 trace 上下文写入消息头，返回新的 Table
func InjectHeaders(ctx context.Context, headers amqp.Table) amqp.Table {
	out := make(amqp.Table, len(headers)+2)
	for k, v := range headers {
		out[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(out))
	return out
}

// ExtractContext 从消息头恢复上游 trace 上下文
func ExtractContext(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, HeaderCarrier(headers))
}

// StartPublishSpan 开始发布 span，返回的 finish 负责结束 span 并记录指标
func StartPublishSpan(ctx context.Context, exchange, routingKey string) (context.Context, func(error)) {
	start := time.Now()
	spanName := "rabbitmq.publish"
	if exchange != "" {
		spanName += "." + exchange
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(exchange),
			semconv.MessagingRabbitmqDestinationRoutingKey(routingKey),
		),
	)

	return ctx, func(err error) {
		defer span.End()
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if mqPublishErrors != nil {
				mqPublishErrors.Add(ctx, 1)
			}
		}
		record(ctx, "publish", exchange, routingKey, status, time.Since(start))
	}
}

// StartConsumeSpan 为单条投递开始处理 span，父上下文取自消息头
func StartConsumeSpan(ctx context.Context, queue string, d amqp.Delivery) (context.Context, func(error)) {
	start := time.Now()
	ctx = ExtractContext(ctx, d.Headers)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "rabbitmq.process."+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(queue),
			semconv.MessagingRabbitmqDestinationRoutingKey(d.RoutingKey),
			semconv.MessagingMessageID(d.MessageId),
		),
	)

	return ctx, func(err error) {
		defer span.End()
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if mqConsumeErrors != nil {
				mqConsumeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("messaging.rabbitmq.queue", queue)))
			}
		}
		record(ctx, "process", d.Exchange, d.RoutingKey, status, time.Since(start))
	}
}

func record(ctx context.Context, op, exchange, routingKey, status string, d time.Duration) {
	if mqMessagesTotal == nil || mqMessageDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.operation", op),
		attribute.String("messaging.rabbitmq.exchange", exchange),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("messaging.status", status),
	)
	mqMessagesTotal.Add(ctx, 1, attrs)
	mqMessageDuration.Record(ctx, d.Seconds(), attrs)
}
