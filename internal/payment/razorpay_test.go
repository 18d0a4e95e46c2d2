package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/storefront-backend/internal/config"
)

func newTestClient(url string) *RazorpayClient {
	return NewRazorpayClient(config.RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		BaseURL:   url,
		Timeout:   2 * time.Second,
	}, nil, WithRetryWait(time.Millisecond))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRazorpayCreateOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "BAD_REQUEST_ERROR", "description": "Authentication failed"}})
			return
		}
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		got["id"] = "order_Q1"
		got["status"] = "created"
		writeJSON(w, http.StatusOK, got)
	}))
	defer srv.Close()

	in, err := newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{
		AmountMinor: 135000,
		Currency:    "INR",
		Receipt:     "order_1_42",
		Notes: Notes{
			UserID:          42,
			CartItems:       []CartLine{{ProductID: 1, Quantity: 3, Price: 450}},
			ShippingAddress: ShippingAddress{FullName: "Asha Rao", City: "Pune"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_Q1", in.ProviderOrderID)
	assert.EqualValues(t, 135000, in.AmountMinor)
	assert.Equal(t, 42, in.Notes.UserID)
	assert.Equal(t, []CartLine{{ProductID: 1, Quantity: 3, Price: 450}}, in.Notes.CartItems)
	assert.Equal(t, "Pune", in.Notes.ShippingAddress.City)

	notes := got["notes"].(map[string]any)
	assert.Equal(t, "42", notes["user_id"])
	assert.JSONEq(t, `[{"product_id":1,"quantity":3,"price":450}]`, notes["cart_items"].(string))
}

func TestRazorpayFetchOrder_NumericUserNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/order_Q2", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"id": "order_Q2", "amount": 90000, "currency": "INR", "status": "paid",
			"notes": map[string]any{
				"user_id":          7,
				"cart_items":       `[{"product_id":3,"quantity":2,"price":450}]`,
				"shipping_address": `{"full_name":"Ravi","city":"Delhi"}`,
			},
		})
	}))
	defer srv.Close()

	in, err := newTestClient(srv.URL).FetchOrder(context.Background(), "order_Q2")
	require.NoError(t, err)
	assert.Equal(t, 7, in.Notes.UserID)
	assert.Equal(t, 2, in.Notes.CartItems[0].Quantity)
	assert.Equal(t, "Delhi", in.Notes.ShippingAddress.City)
}

func TestRazorpay_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": map[string]string{"code": "SERVER_ERROR", "description": "upstream"}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchOrder(context.Background(), "order_Q3")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retriable)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "one attempt plus two retries")
}

func TestRazorpay_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{"code": "BAD_REQUEST_ERROR", "description": "The id provided does not exist"}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchOrder(context.Background(), "order_missing")
	assert.True(t, errors.Is(err, ErrIntentNotFound))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	_, err = newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{AmountMinor: 100, Currency: "INR"})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retriable)
	assert.Equal(t, "BAD_REQUEST_ERROR", perr.Code)
}

func TestRazorpay_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).FetchOrder(context.Background(), "order_Q4")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retriable)
	assert.NotEmpty(t, perr.UserMessage())
}

func TestRazorpay_InternationalCardRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]string{
			"code":        "BAD_REQUEST_ERROR",
			"description": "International transactions are not allowed",
			"reason":      "international_transaction_not_allowed",
		}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{AmountMinor: 100, Currency: "USD"})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "international_transaction_not_allowed", perr.Reason)
	assert.Contains(t, perr.UserMessage(), "International cards are not supported")
}

func TestProviderError_UserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  ProviderError
		want string
	}{
		{"server error code", ProviderError{Code: "SERVER_ERROR", Retriable: true}, "Razorpay is experiencing technical difficulties. Please try again in a few minutes or contact support."},
		{"bad request with description", ProviderError{Code: "BAD_REQUEST_ERROR", Description: "Amount exceeds maximum amount allowed."}, "Amount exceeds maximum amount allowed."},
		{"bad request without description", ProviderError{Code: "BAD_REQUEST_ERROR"}, "Payment request failed"},
		{"transport failure", ProviderError{Retriable: true}, "Payment service is temporarily unavailable, please try again"},
		{"unknown code", ProviderError{Code: "GATEWAY_ERROR", Description: "internal detail"}, "Payment request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.UserMessage())
		})
	}
}
