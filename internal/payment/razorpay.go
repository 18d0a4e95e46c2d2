package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wichananm65/storefront-backend/internal/config"
	"github.com/wichananm65/storefront-backend/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	noteUserID          = "user_id"
	noteCartItems       = "cart_items"
	noteShippingAddress = "shipping_address"

	defaultRetryWait = 2 * time.Second
)

// RazorpayClient implements Provider against the Razorpay orders API.
type RazorpayClient struct {
	http    *resty.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type ClientOption func(*resty.Client)

// WithRetryWait overrides the fixed pause between retries.
func WithRetryWait(d time.Duration) ClientOption {
	return func(c *resty.Client) {
		c.SetRetryWaitTime(d).SetRetryMaxWaitTime(d)
	}
}

func NewRazorpayClient(cfg config.RazorpayConfig, m *metrics.Metrics, opts ...ClientOption) *RazorpayClient {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(defaultRetryWait).
		SetRetryMaxWaitTime(defaultRetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	for _, opt := range opts {
		opt(c)
	}
	return &RazorpayClient{http: c, metrics: m, tracer: otel.Tracer("payment")}
}

type rzpOrder struct {
	ID       string         `json:"id,omitempty"`
	Amount   int64          `json:"amount"`
	Currency string         `json:"currency"`
	Receipt  string         `json:"receipt,omitempty"`
	Status   string         `json:"status,omitempty"`
	Notes    map[string]any `json:"notes,omitempty"`
}

type rzpErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (Intent, error) {
	ctx, span := c.tracer.Start(ctx, "razorpay.CreateOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.amount_minor", req.AmountMinor), attribute.String("payment.currency", req.Currency))

	notes, err := encodeNotes(req.Notes)
	if err != nil {
		return Intent{}, err
	}
	body := rzpOrder{Amount: req.AmountMinor, Currency: req.Currency, Receipt: req.Receipt, Notes: notes}

	var out rzpOrder
	var apiErr rzpErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/orders")
	if err = classify("create order", resp, err, &apiErr); err != nil {
		c.fail(span, "create_order", err)
		return Intent{}, err
	}
	c.metrics.ProviderRequest("create_order", nil)
	span.SetAttributes(attribute.String("payment.provider_order_id", out.ID))
	return out.toIntent()
}

func (c *RazorpayClient) FetchOrder(ctx context.Context, providerOrderID string) (Intent, error) {
	ctx, span := c.tracer.Start(ctx, "razorpay.FetchOrder", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("payment.provider_order_id", providerOrderID))

	var out rzpOrder
	var apiErr rzpErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/orders/" + url.PathEscape(providerOrderID))
	if err = classify("fetch order", resp, err, &apiErr); err != nil {
		if resp != nil && resp.StatusCode() == http.StatusBadRequest && strings.Contains(apiErr.Error.Description, "does not exist") {
			err = fmt.Errorf("%w: %s", ErrIntentNotFound, providerOrderID)
		}
		c.fail(span, "fetch_order", err)
		return Intent{}, err
	}
	c.metrics.ProviderRequest("fetch_order", nil)
	return out.toIntent()
}

func (c *RazorpayClient) fail(span trace.Span, op string, err error) {
	c.metrics.ProviderRequest(op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
}

func classify(op string, resp *resty.Response, err error, apiErr *rzpErrorBody) error {
	if err != nil {
		return &ProviderError{Op: op, Retriable: true, Err: err}
	}
	status := resp.StatusCode()
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrIntentNotFound, resp.Request.URL)
	case resp.IsError():
		return &ProviderError{
			Op:          op,
			StatusCode:  status,
			Code:        apiErr.Error.Code,
			Reason:      apiErr.Error.Reason,
			Description: apiErr.Error.Description,
			Retriable:   status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
		}
	}
	return nil
}

func encodeNotes(n Notes) (map[string]any, error) {
	items, err := json.Marshal(n.CartItems)
	if err != nil {
		return nil, fmt.Errorf("encode cart snapshot: %w", err)
	}
	addr, err := json.Marshal(n.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}
	return map[string]any{
		noteUserID:          strconv.Itoa(n.UserID),
		noteCartItems:       string(items),
		noteShippingAddress: string(addr),
	}, nil
}

func decodeNotes(raw map[string]any) (Notes, error) {
	var n Notes
	switch v := raw[noteUserID].(type) {
	case float64:
		n.UserID = int(v)
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return Notes{}, fmt.Errorf("decode user_id note: %w", err)
		}
		n.UserID = id
	default:
		return Notes{}, errors.New("intent has no user_id note")
	}

	items, _ := raw[noteCartItems].(string)
	if err := json.Unmarshal([]byte(items), &n.CartItems); err != nil {
		return Notes{}, fmt.Errorf("decode cart snapshot: %w", err)
	}
	addr, _ := raw[noteShippingAddress].(string)
	if err := json.Unmarshal([]byte(addr), &n.ShippingAddress); err != nil {
		return Notes{}, fmt.Errorf("decode shipping address: %w", err)
	}
	return n, nil
}

func (o rzpOrder) toIntent() (Intent, error) {
	notes, err := decodeNotes(o.Notes)
	if err != nil {
		return Intent{}, fmt.Errorf("intent %s: %w", o.ID, err)
	}
	return Intent{
		ProviderOrderID: o.ID,
		AmountMinor:     o.Amount,
		Currency:        o.Currency,
		Receipt:         o.Receipt,
		Status:          o.Status,
		Notes:           notes,
	}, nil
}
