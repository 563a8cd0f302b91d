package middleware

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 是否启用堆栈追踪
	EnableStackTrace bool
	// 堆栈追踪级别（full, simple, none）
	StackTraceLevel string
	// 是否记录请求详情；请求体只记录小于 1KB 的非文件内容
	LogRequestDetails bool
	// 是否在 span 中记录异常
	RecordInSpan bool
	// 严重错误回调函数（可用于发送告警）
	OnSevereError func(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte)
	// 生产环境不返回 panic 详情
	IsProduction bool
}

// NewRecoverConfig 创建 recover 配置
func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		EnableStackTrace:  true,
		StackTraceLevel:   "simple",
		LogRequestDetails: true,
		RecordInSpan:      true,
		IsProduction:      config.Cfg.IsProduction(),
	}
}

// RecoverMiddleware 创建 recover 中间件
func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

// RecoverMiddlewareWithConfig 带配置的 recover 中间件
func RecoverMiddlewareWithConfig(config RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, config)
			}
		}()

		c.Next(ctx)
	}
}

// handlePanic 处理 panic 并记录日志
func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, config RecoverConfig) {
	var stack []byte
	if config.EnableStackTrace {
		stack = getStackTrace(config.StackTraceLevel)
	}

	logPanic(ctx, c, err, stack, config)

	if config.OnSevereError != nil && isSeverePanic(err) {
		config.OnSevereError(ctx, c, err, stack)
	}

	writeErrorResponse(ctx, c, err, stack, config)
	c.Abort()
}

// writeErrorResponse 生产环境只返回通用错误
func writeErrorResponse(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte, config RecoverConfig) {
	if config.IsProduction {
		response.Error(ctx, c, errors.Internal)
		return
	}

	details := map[string]interface{}{
		"panic":     fmt.Sprintf("%v", err),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if config.EnableStackTrace {
		details["stack"] = string(stack)
	}
	response.ErrorWithDetails(ctx, c, errors.Internal, details)
}

// getStackTrace 获取堆栈追踪
func getStackTrace(level string) []byte {
	var buf bytes.Buffer

	switch level {
	case "full":
		buf.Write(debug.Stack())
	case "simple":
		buf.WriteString("goroutine panic:\n")
		skip := 3 // 跳过 runtime 和 recover 相关的函数
		for i := skip; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fn := runtime.FuncForPC(pc)
			if fn == nil {
				continue
			}
			fmt.Fprintf(&buf, "  %s:%d\n    %s\n", file, line, fn.Name())
		}
	}

	return buf.Bytes()
}

// getFormattedStack 去掉 runtime 内部的帧
func getFormattedStack(stack []byte) []byte {
	if len(stack) == 0 {
		return nil
	}

	lines := strings.Split(string(stack), "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, "/runtime/") || strings.Contains(line, "signal_unix.go") {
			continue
		}
		filtered = append(filtered, line)
	}

	return []byte(strings.Join(filtered, "\n"))
}

// logPanic 记录 panic 日志（包含请求详情）
func logPanic(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte, config RecoverConfig) {
	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("user_agent", string(c.UserAgent())),
		zap.String("tenant_id", GetTenantID(c)),
	}

	requestID := string(c.GetHeader("X-Request-ID"))
	if requestID == "" {
		requestID = string(c.GetHeader("X-Trace-ID"))
	}
	fields = append(fields, zap.String("request_id", requestID))

	if userID, exists := GetUserID(ctx, c); exists {
		fields = append(fields, zap.String("user_id", userID))
	}

	if config.LogRequestDetails {
		body := c.Request.Body()
		contentType := string(c.ContentType())
		if len(body) > 0 && len(body) < 1024 &&
			!strings.Contains(contentType, "multipart") &&
			!strings.Contains(contentType, "image") {
			fields = append(fields, zap.String("body", string(body)))
		}
	}

	if config.EnableStackTrace {
		fields = append(fields, zap.ByteString("stack", getFormattedStack(stack)))
	}

	if config.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", err))
		span.SetStatus(codes.Error, "panic recovered")
	}

	if isSeverePanic(err) {
		logger.Logger.Error("[SEVERE PANIC DETECTED]", fields...)
		return
	}
	logger.Logger.Error("[PANIC RECOVERED]", fields...)
}

var severePatterns = []string{
	"runtime: out of memory",
	"fatal error:",
	"concurrent map writes",
	"concurrent map read and map write",
	"runtime error: makeslice:",
	"all goroutines are asleep - deadlock!",
	"unexpected signal",
}

// isSeverePanic 判断是否为严重错误
func isSeverePanic(err interface{}) bool {
	if err == nil {
		return false
	}

	errStr := fmt.Sprintf("%v", err)
	for _, pattern := range severePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
