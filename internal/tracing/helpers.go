package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dbTracerName   = ServiceName + "/db"
	rootTracerName = ServiceName
)

// DBOperation labels the kind of statement a database span covers.
type DBOperation string

// Database operations used by the Postgres stores.
const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
	DBOperationExec   DBOperation = "exec"
)

// EndFunc finishes a span, recording err on it when non-nil.
type EndFunc func(err error)

func finisher(span trace.Span) EndFunc {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartDBSpan starts a client span named "<operation> <table>" for a Postgres call.
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "hunches", tracing.DBOperationQuery)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, EndFunc) {
	name := string(operation)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", string(operation)),
	}
	if table != "" {
		name += " " + table
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, finisher(span)
}

// StartSpan starts an internal span, e.g. "ranking.recompute" or "estimate.deep".
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, EndFunc) {
	ctx, span := otel.Tracer(rootTracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, finisher(span)
}

// AddEvent adds an event to the span in ctx, if any.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the span in ctx, if any.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
