package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationMiddleware propagates X-Correlation-ID (falling back to the
// request id) into the span and the context baggage, so background work
// started by the request can be tied back to it.
// Must run after RequestIDMiddleware.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString("request_id")
		}
		if correlationID == "" {
			c.Next()
			return
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)

		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.SetAttributes(attribute.String("trace.correlation_id", correlationID))
		}

		if member, err := baggage.NewMember("correlation_id", correlationID); err == nil {
			bag, err := baggage.FromContext(ctx).SetMember(member)
			if err == nil {
				ctx = baggage.ContextWithBaggage(ctx, bag)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
