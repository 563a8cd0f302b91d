package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 向导相关指标
	WizardTransitions metric.Int64Counter
	WizardRejections  metric.Int64Counter
	WizardCompleted   metric.Int64Counter
	WizardSessions    metric.Int64UpDownCounter

	// 验证码相关指标
	VerificationIssued   metric.Int64Counter
	VerificationVerified metric.Int64Counter

	// 邮件相关指标
	EmailSentTotal    metric.Int64Counter
	EmailSendDuration metric.Float64Histogram

	// 上传
	UploadBytes metric.Int64Histogram
}

var (
	// 全局指标实例，未初始化时各 Record 函数为空操作
	metrics *OTelMetrics
	meter   = otel.Meter("kinship")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	m := &OTelMetrics{}
	var err error

	if m.WizardTransitions, err = meter.Int64Counter("wizard_transitions_total",
		metric.WithDescription("Wizard step transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return err
	}
	if m.WizardRejections, err = meter.Int64Counter("wizard_rejections_total",
		metric.WithDescription("Next requests rejected because the step was invalid"),
		metric.WithUnit("{rejection}"),
	); err != nil {
		return err
	}
	if m.WizardCompleted, err = meter.Int64Counter("wizard_completed_total",
		metric.WithDescription("Wizards completed"),
		metric.WithUnit("{wizard}"),
	); err != nil {
		return err
	}
	if m.WizardSessions, err = meter.Int64UpDownCounter("wizard_active_sessions",
		metric.WithDescription("Wizard sessions held in memory"),
		metric.WithUnit("{session}"),
	); err != nil {
		return err
	}
	if m.VerificationIssued, err = meter.Int64Counter("verification_codes_issued_total",
		metric.WithDescription("Email verification codes issued"),
		metric.WithUnit("{code}"),
	); err != nil {
		return err
	}
	if m.VerificationVerified, err = meter.Int64Counter("verification_attempts_total",
		metric.WithDescription("Email verification attempts by result"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return err
	}
	if m.EmailSentTotal, err = meter.Int64Counter("email_sent_total",
		metric.WithDescription("Emails handed to the provider"),
		metric.WithUnit("{email}"),
	); err != nil {
		return err
	}
	if m.EmailSendDuration, err = meter.Float64Histogram("email_send_duration_seconds",
		metric.WithDescription("Time spent sending email in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if m.UploadBytes, err = meter.Int64Histogram("upload_size_bytes",
		metric.WithDescription("Size of accepted uploads"),
		metric.WithUnit("By"),
	); err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordWizardTransition direction: next / previous
func RecordWizardTransition(ctx context.Context, step, direction string) {
	if m := metrics; m != nil {
		m.WizardTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", step),
			attribute.String("direction", direction),
		))
	}
}

func RecordWizardRejection(ctx context.Context, step string) {
	if m := metrics; m != nil {
		m.WizardRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
	}
}

func RecordWizardCompleted(ctx context.Context, tenantID string) {
	if m := metrics; m != nil {
		m.WizardCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenantID)))
	}
}

// AddWizardSessions delta 为正表示新建，为负表示回收
func AddWizardSessions(ctx context.Context, delta int64) {
	if m := metrics; m != nil {
		m.WizardSessions.Add(ctx, delta)
	}
}

func RecordVerificationIssued(ctx context.Context) {
	if m := metrics; m != nil {
		m.VerificationIssued.Add(ctx, 1)
	}
}

// RecordVerificationAttempt result 为错误码或 "verified"
func RecordVerificationAttempt(ctx context.Context, result string) {
	if m := metrics; m != nil {
		m.VerificationVerified.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func RecordEmailSend(ctx context.Context, provider string, duration time.Duration, err error) {
	m := metrics
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.EmailSentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.EmailSendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

func RecordUpload(ctx context.Context, kind string, size int64) {
	if m := metrics; m != nil {
		m.UploadBytes.Record(ctx, size, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
