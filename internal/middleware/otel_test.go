package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestOpenTelemetryMiddlewareAnnotatesOnboardingSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	e := newEngine()
	e.Use(OpenTelemetryMiddleware(), TenantMiddleware("default"))
	e.PUT("/v1/onboarding/progress/:step", func(ctx context.Context, c *app.RequestContext) {
		c.Status(http.StatusUnprocessableEntity)
	})

	w := ut.PerformRequest(e, http.MethodPut, "/v1/onboarding/progress/profile", nil,
		ut.Header{Key: TenantHeader, Value: "acme"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Result().StatusCode())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "profile", attrs["onboarding.step"].AsString())
	assert.Equal(t, "acme", attrs["tenant.id"].AsString())
	assert.Equal(t, "/v1/onboarding/progress/:step", attrs["http.route"].AsString())
	assert.True(t, attrs["http.rejected"].AsBool())
}
