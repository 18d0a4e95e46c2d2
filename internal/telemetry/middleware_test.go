package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_StartsServerSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var seen bool
	app := fiber.New()
	app.Use(Middleware("storefront-test"))
	app.Get("/health", func(c *fiber.Ctx) error {
		seen = trace.SpanContextFromContext(c.UserContext()).IsValid()
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)

	assert.True(t, seen)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /health", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
}
