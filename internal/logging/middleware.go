package logging

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

// Middleware attaches a request-scoped logger to the request context and logs
// one line per finished request.
func Middleware(base *zap.Logger) fiber.Handler {
	if base == nil {
		base = zap.L()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDHeader, rid)

		ctx := c.UserContext()
		fields := []zap.Field{zap.String("request_id", rid)}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
		reqLogger := base.With(fields...)
		c.SetUserContext(ContextWithLogger(ctx, reqLogger))

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		reqLogger.Info("request completed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}
