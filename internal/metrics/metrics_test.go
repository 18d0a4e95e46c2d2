package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.OrderCommit("created", time.Millisecond)
	m.SignatureCheck(true)
	m.ProviderRequest("create_order", nil)
	m.CartRejected()
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrderCommit("created", 10*time.Millisecond)
	m.OrderCommit("replayed", time.Millisecond)
	m.SignatureCheck(false)
	m.ProviderRequest("fetch_order", errors.New("down"))
	m.CartRejected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderCommits.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderCommits.WithLabelValues("replayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureChecks.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("fetch_order", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cartRejections))
}

func TestMiddlewareAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/api/v1/orders/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })
	app.Get("/metrics", Handler(reg))

	_, err := app.Test(httptest.NewRequest("GET", "/api/v1/orders/7", nil))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/orders/:id", "404")))

	res, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	assert.True(t, strings.Contains(string(body), "storefront_http_requests_total"))
}
