package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	spanInstanceKey  = "otel:span"
	startInstanceKey = "otel:start"

	maxStatementLen = 500
)

// GORMTracingPlugin returns a GORM plugin that opens one client span per
// query, insert, update, delete and raw statement
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("gorm")}
}

type tracingPlugin struct {
	tracer trace.Tracer
	system string
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	p.system = "postgresql"
	if db.Dialector != nil && db.Dialector.Name() != "postgres" {
		p.system = db.Dialector.Name()
	}

	cb := db.Callback()
	err := errors.Join(
		cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT")),
		cb.Query().After("gorm:query").Register("telemetry:after_query", p.end),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT")),
		cb.Create().After("gorm:create").Register("telemetry:after_create", p.end),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE")),
		cb.Update().After("gorm:update").Register("telemetry:after_update", p.end),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.before("DELETE")),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.end),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.before("RAW")),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.end),
	)
	if err != nil {
		return fmt.Errorf("failed to register tracing callbacks: %w", err)
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, p.system),
				attribute.String(dbTableKey, table),
				attribute.String(dbOperationKey, operation),
			),
		)
		db.InstanceSet(spanInstanceKey, span)
		db.InstanceSet(startInstanceKey, time.Now())
	}
}

func (p *tracingPlugin) end(db *gorm.DB) {
	raw, ok := db.InstanceGet(spanInstanceKey)
	if !ok {
		return
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if raw, ok := db.InstanceGet(startInstanceKey); ok {
		if start, ok := raw.(time.Time); ok {
			span.SetAttributes(attribute.Int64("db.duration_ms", time.Since(start).Milliseconds()))
		}
	}

	// Placeholders only, never bound values
	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatementLen {
			sql = sql[:maxStatementLen] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}
	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}

	// A missing row is an answer, not a failure
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
