package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	redisCommandsTotal   metric.Int64Counter
	redisCommandDuration metric.Float64Histogram
	redisCacheHits       metric.Int64Counter
	redisCacheMisses     metric.Int64Counter
)

// InitRedisMetrics 初始化 Redis 指标，未调用时 hook 只记录 span
func InitRedisMetrics(meter metric.Meter) error {
	var err error

	if redisCommandsTotal, err = meter.Int64Counter("redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	); err != nil {
		return err
	}

	if redisCommandDuration, err = meter.Float64Histogram("redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	); err != nil {
		return err
	}

	if redisCacheHits, err = meter.Int64Counter("redis.cache.hits",
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	); err != nil {
		return err
	}

	redisCacheMisses, err = meter.Int64Counter("redis.cache.misses",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	return err
}

// TracingHook Redis 追踪 Hook；只记录命令名和脱敏后的 key，不记录值
type TracingHook struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func NewTracingHook(serviceName string, db int) *TracingHook {
	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		name := strings.ToUpper(cmd.Name())
		ctx, span := th.tracer.Start(ctx, "redis "+name,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
			trace.WithAttributes(semconv.DBOperation(name)),
		)
		defer span.End()

		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := "success"
		switch {
		case errors.Is(err, redis.Nil):
			status = "not_found"
		case err != nil:
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}

		labels := metric.WithAttributes(
			attribute.String("redis.command", name),
			attribute.String("redis.status", status),
		)
		if redisCommandsTotal != nil {
			redisCommandsTotal.Add(ctx, 1, labels)
			redisCommandDuration.Record(ctx, time.Since(start).Seconds(), labels)
		}
		if redisCacheHits != nil && name == "GET" {
			if status == "not_found" {
				redisCacheMisses.Add(ctx, 1)
			} else if err == nil {
				redisCacheHits.Add(ctx, 1)
			}
		}

		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
			trace.WithAttributes(attribute.Int("redis.pipeline.count", len(cmds))),
		)
		defer span.End()

		err := next(ctx, cmds)

		failed := 0
		for _, cmd := range cmds {
			if cmd.Err() != nil && !errors.Is(cmd.Err(), redis.Nil) {
				failed++
			}
		}
		span.SetAttributes(attribute.Int("redis.pipeline.error_count", failed))
		if err != nil && !errors.Is(err, redis.Nil) {
			span.SetStatus(codes.Error, err.Error())
		}
		if redisCommandsTotal != nil {
			redisCommandsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("redis.command", "PIPELINE")))
		}
		return err
	}
}

// extractKeys 取命令的第一个参数作为 key，最多记录 5 个
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	keys := make([]string, 0, 1)
	for i := 1; i < len(args) && len(keys) < 5; i++ {
		key, ok := args[i].(string)
		if !ok || !strings.Contains(key, ":") {
			continue
		}
		keys = append(keys, sanitizeKey(key))
	}
	return keys
}

// sanitizeKey 会话、令牌类 key 只保留前缀
func sanitizeKey(key string) string {
	for _, marker := range []string{"token", "session", "slider", "refresh"} {
		if strings.Contains(key, marker) {
			if i := strings.LastIndex(key, ":"); i > 0 {
				return key[:i] + ":***"
			}
			return "***"
		}
	}
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}

// InstrumentRedisClient 为 Redis 客户端添加 OpenTelemetry 支持
func InstrumentRedisClient(client *redis.Client, serviceName string, db int) {
	client.AddHook(NewTracingHook(serviceName, db))
}
