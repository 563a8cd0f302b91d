package database

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	if dbQueriesTotal, err = meter.Int64Counter("db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	); err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram("db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	return err
}

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName  string
	MaxSQLLength int
}

// OTELPlugin gorm 追踪插件：每个操作一个 client span，语句中的字符串字面量被替换
type OTELPlugin struct {
	tracer trace.Tracer
	config PluginConfig
}

func NewOTELPlugin(config PluginConfig) *OTELPlugin {
	if config.ServiceName == "" {
		config.ServiceName = "kinship"
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}
	return &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}
}

func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 为 create/query/update/delete/row/raw 注册前后回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	register := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"insert", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"select", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, r := range register {
		if err := r.before("otel:before_"+r.op, p.before(r.op)); err != nil {
			return err
		}
		if err := r.after("otel:after_"+r.op, p.after(r.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, "db."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemPostgreSQL,
				semconv.DBOperation(op),
			),
		)
		db.InstanceSet(startKey, time.Now())
		db.InstanceSet(spanKey, span)
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(spanKey)
		if !ok {
			return
		}
		span, ok := v.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if table := db.Statement.Table; table != "" {
			span.SetAttributes(semconv.DBSQLTable(table))
		}
		span.SetAttributes(
			semconv.DBStatement(p.sanitizeSQL(db.Statement.SQL.String())),
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
		)

		status := "success"
		switch {
		case db.Error == nil:
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			status = "not_found"
		default:
			status = "error"
			span.SetStatus(codes.Error, db.Error.Error())
			span.RecordError(db.Error)
		}

		if start, ok := db.InstanceGet(startKey); ok {
			p.recordMetrics(db.Statement.Context, op, status, time.Since(start.(time.Time)).Seconds())
		}
	}
}

var quotedLiteral = regexp.MustCompile(`'(?:[^']|'')*'`)

// sanitizeSQL 替换字符串字面量并截断
func (p *OTELPlugin) sanitizeSQL(sql string) string {
	sql = quotedLiteral.ReplaceAllString(sql, "'?'")
	if len(sql) > p.config.MaxSQLLength {
		sql = sql[:p.config.MaxSQLLength] + "..."
	}
	return sql
}

func (p *OTELPlugin) recordMetrics(ctx context.Context, op, status string, seconds float64) {
	if dbQueriesTotal == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("db.operation", op),
		attribute.String("db.status", status),
	)
	dbQueriesTotal.Add(ctx, 1, labels)
	dbQueryDuration.Record(ctx, seconds, labels)
}

// WithDefaultOTELPlugin 使用默认配置添加 OpenTelemetry 插件
func WithDefaultOTELPlugin(db *gorm.DB, serviceName string) error {
	return db.Use(NewOTELPlugin(PluginConfig{ServiceName: serviceName}))
}
