package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(DefaultEndpoints(srv.URL), 5*time.Second, zerolog.Nop())
}

func TestHTTPGateway_Initiate(t *testing.T) {
	var got map[string]any
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/payments/initiate", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ResponseCode":"0","CheckoutRequestID":"abc123","CustomerMessage":"Enter PIN"}`))
	})

	res, err := gw.Initiate(context.Background(), InitiationRequest{
		MSISDN:           "254712345678",
		Amount:           1500,
		AccountReference: "EVT-9",
		Description:      "2 tickets",
		EventID:          "9",
		TicketQuantity:   2,
		BearerToken:      "tok",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.CorrelationID)
	assert.Equal(t, "Enter PIN", res.Message)
	assert.False(t, res.Rejected())

	assert.Equal(t, "254712345678", got["phone"])
	assert.EqualValues(t, 1500, got["amount"])
	assert.Equal(t, "EVT-9", got["accountReference"])
	assert.Equal(t, "2 tickets", got["description"])
	assert.Equal(t, "9", got["eventId"])
	assert.EqualValues(t, 2, got["ticketQuantity"])
}

func TestHTTPGateway_InitiateOmitsEmptyStorefrontFields(t *testing.T) {
	var got map[string]any
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := gw.Initiate(context.Background(), InitiationRequest{MSISDN: "254712345678", Amount: 10})
	require.NoError(t, err)
	assert.NotContains(t, got, "eventId")
	assert.NotContains(t, got, "ticketQuantity")
}

func TestHTTPGateway_InitiateHTTPError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Event sold out"}`))
	})
	_, err := gw.Initiate(context.Background(), InitiationRequest{MSISDN: "254712345678", Amount: 10})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Equal(t, "Event sold out", httpErr.Message)
}

func TestHTTPGateway_InitiateTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	gw := NewHTTPGateway(DefaultEndpoints(srv.URL), time.Second, zerolog.Nop())
	_, err := gw.Initiate(context.Background(), InitiationRequest{MSISDN: "254712345678", Amount: 10})
	require.Error(t, err)
	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestHTTPGateway_StatusSendsCacheBustingHeaders(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/payments/status", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("checkoutRequestId"))
		assert.Equal(t, "no-cache, no-store, must-revalidate", r.Header.Get("Cache-Control"))
		assert.Equal(t, "no-cache", r.Header.Get("Pragma"))
		assert.Equal(t, "0", r.Header.Get("Expires"))
		_, _ = w.Write([]byte(`{"status":"Pending"}`))
	})
	res, err := gw.Status(context.Background(), "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, "pending", res.Status)
	assert.False(t, res.NotModified)
}

func TestHTTPGateway_StatusNotModified(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	res, err := gw.Status(context.Background(), "abc123", "")
	require.NoError(t, err)
	assert.True(t, res.NotModified)
}

func TestHTTPGateway_StatusServerError(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	})
	_, err := gw.Status(context.Background(), "abc123", "")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "upstream down", httpErr.Message)
}

func TestStubGateway(t *testing.T) {
	gw := NewStubGateway(2)
	res, err := gw.Initiate(context.Background(), InitiationRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, res.CorrelationID)

	st, err := gw.Status(context.Background(), res.CorrelationID, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, st.Outcome())

	st, err = gw.Status(context.Background(), res.CorrelationID, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, st.Outcome())

	_, err = gw.Status(context.Background(), "nope", "")
	assert.Error(t, err)
}
