package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// HTTP 相关指标
	httpServerRequestTotal   metric.Int64Counter
	httpServerDuration       metric.Float64Histogram
	httpServerRequestSize    metric.Int64Histogram
	httpServerResponseSize   metric.Int64Histogram
	httpServerActiveRequests metric.Int64UpDownCounter
)

// toValidUTF8 路径与请求头由客户端控制，非法 UTF-8 会导致导出失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

// InitMetrics 初始化指标
func InitMetrics(meter metric.Meter) error {
	var err error

	httpServerRequestTotal, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	httpServerDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	httpServerRequestSize, err = meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("HTTP request size"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	httpServerResponseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	httpServerActiveRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// OpenTelemetryMiddleware 记录 HTTP 指标并补充引导相关的 span 属性。
// 已启用 hertz 服务端追踪时复用其 span，否则自行创建；InitMetrics 未调用时不记录指标。
func OpenTelemetryMiddleware() app.HandlerFunc {
	tracer := otel.Tracer("kinship-http")

	return func(ctx context.Context, c *app.RequestContext) {
		startTime := time.Now()
		recordMetrics := httpServerRequestTotal != nil

		if recordMetrics {
			httpServerActiveRequests.Add(ctx, 1)
			defer httpServerActiveRequests.Add(ctx, -1)
		}

		method := toValidUTF8(string(c.Method()))

		span := trace.SpanFromContext(ctx)
		spanCtx := ctx
		if !span.SpanContext().IsValid() {
			spanCtx, span = tracer.Start(ctx, method+" "+toValidUTF8(string(c.Path())), trace.WithAttributes(
				semconv.HTTPMethod(method),
				semconv.HTTPURL(toValidUTF8(c.Request.URI().String())),
				semconv.HTTPScheme(toValidUTF8(string(c.Request.URI().Scheme()))),
				attribute.String("http.host", toValidUTF8(string(c.Host()))),
				attribute.String("http.user_agent", toValidUTF8(string(c.UserAgent()))),
			))
			defer span.End()
		}

		if requestID := c.GetHeader("X-Request-Id"); len(requestID) > 0 {
			span.SetAttributes(attribute.String("http.request_id", toValidUTF8(string(requestID))))
		}

		c.Next(spanCtx)

		route := toValidUTF8(c.FullPath())
		statusCode := c.Response.StatusCode()
		duration := time.Since(startTime).Seconds()

		// 租户与认证中间件在本中间件之后执行
		attrs := []attribute.KeyValue{
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(statusCode),
		}
		if tenant := GetTenantID(c); tenant != "" {
			attrs = append(attrs, attribute.String("tenant.id", toValidUTF8(tenant)))
		}
		if userID, ok := GetUserID(spanCtx, c); ok {
			attrs = append(attrs, attribute.String("enduser.id", toValidUTF8(userID)))
		}
		if step := c.Param("step"); step != "" {
			attrs = append(attrs, attribute.String("onboarding.step", toValidUTF8(step)))
		}
		if field := c.Param("field"); field != "" {
			attrs = append(attrs, attribute.String("onboarding.upload_field", toValidUTF8(field)))
		}
		span.SetAttributes(attrs...)

		switch {
		case statusCode >= 500:
			span.SetStatus(codes.Error, "server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		case statusCode >= 400:
			// 4xx 为业务拒绝，span 状态保持 unset
			span.SetAttributes(attribute.Bool("http.rejected", true))
		}

		if !recordMetrics {
			return
		}

		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(statusCode),
		)
		httpServerRequestTotal.Add(ctx, 1, labels)
		httpServerDuration.Record(ctx, duration, labels)

		if requestSize := int64(c.Request.Header.ContentLength()); requestSize > 0 {
			httpServerRequestSize.Record(ctx, requestSize, labels)
		}
		if responseSize := int64(len(c.Response.Body())); responseSize > 0 {
			httpServerResponseSize.Record(ctx, responseSize, labels)
		}
	}
}

// NewServerTracerConfig 返回 hertz server 追踪选项和对应中间件，中间件需排在 OpenTelemetryMiddleware 之前
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
