package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/humayat/internal/domain"
)

var tracer = otel.Tracer("rest")

// RequestContext tags each request with an id, records it on a span and logs
// the outcome once the handler returns.
func RequestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Rest.Middleware.RequestContext")
		defer span.End()

		requestID := c.Request().Header.Get(domain.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Response().Header().Set(domain.RequestIDHeader, requestID)
		span.SetAttributes(attribute.String("RequestId", requestID))

		ctx = context.WithValue(ctx, domain.RequestIDCtxKey, requestID)
		c.SetRequest(c.Request().WithContext(ctx))

		start := time.Now()
		err := next(c)
		if err != nil {
			span.RecordError(err)
			c.Error(err)
		}

		attrs := []any{
			slog.String("requestId", requestID),
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().Status),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("module", "rest"),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			attrs = append(attrs, slog.String("traceId", sc.TraceID().String()))
		}
		slog.DebugContext(ctx, "request handled", attrs...)
		return nil
	}
}
