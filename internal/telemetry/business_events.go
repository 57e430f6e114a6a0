package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents provides helper methods for tracing marketplace operations.
// These sit above the HTTP and database spans (e.g. "buyer opened a
// conversation about a listing", "message sent").
type BusinessEvents struct {
	tracer trace.Tracer
}

func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{tracer: otel.Tracer("lemarcheluxe/business-events")}
}

// ============================================================================
// MESSAGING
// ============================================================================

// TraceConversationResolve spans the find-or-create of a buyer/seller thread
func (be *BusinessEvents) TraceConversationResolve(ctx context.Context, productID, userID, otherUserID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "messaging.resolve_conversation",
		trace.WithAttributes(
			attribute.String("product.id", productID),
			attribute.String("user.id", userID),
			attribute.String("other_user.id", otherUserID),
		),
	)
}

func (be *BusinessEvents) TraceSendMessage(ctx context.Context, conversationID, senderID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "messaging.send_message",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", senderID),
		),
	)
}

func (be *BusinessEvents) TraceMarkRead(ctx context.Context, conversationID, userID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "messaging.mark_read",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
}

// ============================================================================
// LISTINGS
// ============================================================================

func (be *BusinessEvents) TraceCreateProduct(ctx context.Context, userID, category, brand string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "products.create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("product.category", category),
			attribute.String("product.brand", brand),
		),
	)
}

// SearchEventAttrs attributes for search operations
type SearchEventAttrs struct {
	Query       string
	Index       string // "products", "profiles"
	FiltersUsed []string
}

// TraceSearch creates a span for search operations
func (be *BusinessEvents) TraceSearch(ctx context.Context, attrs SearchEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "search.query",
		trace.WithAttributes(
			attribute.String("search.query", attrs.Query),
			attribute.String("search.index", attrs.Index),
		),
	)
	if len(attrs.FiltersUsed) > 0 {
		span.SetAttributes(attribute.StringSlice("search.filters", attrs.FiltersUsed))
	}
	return ctx, span
}

// RecordSearchResult annotates a search span once results are known
func RecordSearchResult(span trace.Span, resultCount int, fallbackUsed bool) {
	span.SetAttributes(attribute.Int("search.result_count", resultCount))
	if fallbackUsed {
		span.SetAttributes(attribute.Bool("search.fallback_used", true))
	}
}

// ============================================================================
// EXTERNAL SERVICES
// ============================================================================

// TraceExternalAPI creates a span for calls to S3, SES or Elasticsearch
func (be *BusinessEvents) TraceExternalAPI(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "external."+service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.service", service),
			attribute.String("external.operation", operation),
		),
	)
}

// EndSpan records err (if any) on span and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

var (
	globalBusinessEvents *BusinessEvents
	businessEventsOnce   sync.Once
)

// GetBusinessEvents returns the shared business events tracer. The otel
// global provider delegates, so it is safe to call before InitTracer.
func GetBusinessEvents() *BusinessEvents {
	businessEventsOnce.Do(func() {
		globalBusinessEvents = NewBusinessEvents()
	})
	return globalBusinessEvents
}
