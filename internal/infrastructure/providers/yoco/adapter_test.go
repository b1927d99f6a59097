package yoco_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infrastructure/providers/yoco"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testSecret() string {
	return "whsec_" + base64.StdEncoding.EncodeToString(testKey)
}

func sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, testKey)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedHeaders(id, timestamp string, body []byte) http.Header {
	h := http.Header{}
	h.Set("webhook-id", id)
	h.Set("webhook-timestamp", timestamp)
	h.Set("webhook-signature", sign(id, timestamp, body))
	return h
}

func TestVerifyWebhookSignature(t *testing.T) {
	a := &yoco.Adapter{WebhookSecret: testSecret()}

	body := []byte(`{"type":"payment.succeeded"}`)
	headers := signedHeaders("evt_1", "1700000000", body)

	require.True(t, a.VerifyWebhookSignature(body, headers))

	// Tampered body fails.
	require.False(t, a.VerifyWebhookSignature([]byte(`{"type":"payment.failed"}`), headers))

	// Missing headers fail.
	require.False(t, a.VerifyWebhookSignature(body, http.Header{}))

	// No secret never verifies.
	empty := &yoco.Adapter{}
	require.False(t, empty.VerifyWebhookSignature(body, headers))
	require.False(t, empty.WebhookSecretConfigured())
}

func TestNormalizeWebhookPayload(t *testing.T) {
	a := &yoco.Adapter{}

	cases := []struct {
		eventType string
		want      paymentlink.Status
	}{
		{"payment.succeeded", paymentlink.StatusPaid},
		{"payment.failed", paymentlink.StatusFailed},
		{"checkout.expired", paymentlink.StatusExpired},
		{"payment.refund.succeeded", paymentlink.StatusPending},
		{"something.new", paymentlink.StatusPending},
	}

	for _, tc := range cases {
		body := fmt.Appendf(nil,
			`{"id":"evt_1","type":"%s","payload":{"id":"p_9","metadata":{"checkoutId":"ch_42"}}}`,
			tc.eventType)

		evt, err := a.NormalizeWebhookPayload(body)
		require.NoError(t, err)
		require.Equal(t, tc.want, evt.Status, "type %s", tc.eventType)
		require.Equal(t, "ch_42", evt.ProviderReference)
		require.Equal(t, "evt_1", evt.EventID)
	}
}

func TestNormalizeWebhookPayload_FallsBackToPayloadID(t *testing.T) {
	a := &yoco.Adapter{}

	evt, err := a.NormalizeWebhookPayload([]byte(`{"id":"evt_2","type":"payment.succeeded","payload":{"id":"p_9"}}`))
	require.NoError(t, err)
	require.Equal(t, "p_9", evt.ProviderReference)
}

func TestCreateLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkouts", r.URL.Path)
		require.Equal(t, "Bearer sk_test_1", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, float64(10000), req["amount"])
		require.Equal(t, "ZAR", req["currency"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"ch_123","redirectUrl":"https://c.yoco.com/checkout/ch_123","status":"created"}`)
	}))
	defer srv.Close()

	a := &yoco.Adapter{APIKey: "sk_test_1", BaseURL: srv.URL}

	res, err := a.CreateLink(context.Background(), provider.CreateLinkRequest{
		OrderID:     "order-1",
		AmountCents: 10000,
		Currency:    "ZAR",
	})
	require.NoError(t, err)
	require.Equal(t, "ch_123", res.ProviderReference)
	require.Equal(t, "https://c.yoco.com/checkout/ch_123", res.CheckoutURL)
	require.False(t, res.ExpiresAt.IsZero())
}

func TestCreateLink_ErrorClassification(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	a := &yoco.Adapter{APIKey: "sk_test_1", BaseURL: srv.URL}

	_, err := a.CreateLink(context.Background(), provider.CreateLinkRequest{OrderID: "o", AmountCents: 1, Currency: "ZAR"})
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)

	status = http.StatusBadRequest
	_, err = a.CreateLink(context.Background(), provider.CreateLinkRequest{OrderID: "o", AmountCents: 1, Currency: "ZAR"})
	require.ErrorIs(t, err, provider.ErrInvalidRequest)
}

func TestQueryStatus(t *testing.T) {
	checkoutStatus := `"completed"`
	httpStatus := http.StatusOK

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpStatus != http.StatusOK {
			w.WriteHeader(httpStatus)
			return
		}
		fmt.Fprintf(w, `{"id":"ch_1","status":%s}`, checkoutStatus)
	}))
	defer srv.Close()

	a := &yoco.Adapter{APIKey: "sk_test_1", BaseURL: srv.URL}

	st, err := a.QueryStatus(context.Background(), "ch_1")
	require.NoError(t, err)
	require.Equal(t, paymentlink.StatusPaid, st)

	checkoutStatus = `"expired"`
	st, err = a.QueryStatus(context.Background(), "ch_1")
	require.NoError(t, err)
	require.Equal(t, paymentlink.StatusExpired, st)

	// A status this engine has never heard of stays pending.
	checkoutStatus = `"processing"`
	st, err = a.QueryStatus(context.Background(), "ch_1")
	require.NoError(t, err)
	require.Equal(t, paymentlink.StatusPending, st)

	// Not found yet means pending, not an error.
	httpStatus = http.StatusNotFound
	st, err = a.QueryStatus(context.Background(), "ch_1")
	require.NoError(t, err)
	require.Equal(t, paymentlink.StatusPending, st)

	httpStatus = http.StatusInternalServerError
	_, err = a.QueryStatus(context.Background(), "ch_1")
	require.ErrorIs(t, err, provider.ErrProviderUnavailable)
}
