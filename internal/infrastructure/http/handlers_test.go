package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okapilabs/paylink-go/internal/application/lifecycle"
	"github.com/okapilabs/paylink-go/internal/application/webhook"
	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
	httpapi "github.com/okapilabs/paylink-go/internal/infrastructure/http"
	"github.com/okapilabs/paylink-go/internal/infrastructure/persistence/inmemory"
)

type stubAdapter struct {
	verified bool
}

func (s *stubAdapter) Name() string                  { return "yoco" }
func (s *stubAdapter) WebhookSecretConfigured() bool { return true }

func (s *stubAdapter) CreateLink(_ context.Context, req provider.CreateLinkRequest) (provider.CreateLinkResult, error) {
	return provider.CreateLinkResult{
		ProviderReference: "ch_1",
		CheckoutURL:       "https://pay.example/ch_1",
		ExpiresAt:         time.Now().Add(time.Hour),
	}, nil
}

func (s *stubAdapter) VerifyWebhookSignature([]byte, http.Header) bool { return s.verified }

func (s *stubAdapter) NormalizeWebhookPayload(rawBody []byte) (provider.WebhookEvent, error) {
	var p struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return provider.WebhookEvent{}, err
	}
	return provider.WebhookEvent{
		EventID:           "evt-1",
		ProviderReference: p.Reference,
		Status:            paymentlink.Status(p.Status),
	}, nil
}

func (s *stubAdapter) QueryStatus(context.Context, string) (paymentlink.Status, error) {
	return paymentlink.StatusPending, nil
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(*paymentlink.PaymentLink) {}

func newTestServer(adapter *stubAdapter) (*httptest.Server, *inmemory.PaymentLinkRepository) {
	repo := inmemory.NewPaymentLinkRepository()
	adapters := map[string]provider.Adapter{"yoco": adapter}

	service := &lifecycle.Service{
		Repo:            repo,
		Adapters:        adapters,
		DefaultProvider: "yoco",
		Notifier:        noopNotifier{},
		Logger:          logging.Noop{},
		Metrics:         &metrics.Counters{},
	}

	ingestor := &webhook.Ingestor{
		Adapters: adapters,
		Engine:   service,
		Logger:   logging.Noop{},
		Metrics:  &metrics.Counters{},
	}

	handler := &httpapi.PaymentHandler{
		Service:  service,
		Ingestor: ingestor,
		Logger:   logging.Noop{},
	}

	return httptest.NewServer(httpapi.NewRouter(handler)), repo
}

func TestCreateAndFetchPaymentRequest(t *testing.T) {
	srv, _ := newTestServer(&stubAdapter{verified: true})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/payment-requests", "application/json",
		strings.NewReader(`{"orderId":"order-1","customerId":"cust-1","amountCents":10000,"currency":"ZAR"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkoutUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, "https://pay.example/ch_1", created.CheckoutURL)

	statusResp, err := http.Get(srv.URL + "/payment-requests/" + created.ID)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	require.Equal(t, http.StatusOK, statusResp.StatusCode)

	var status struct {
		Status            string `json:"status"`
		ProviderReference string `json:"providerReference"`
	}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	require.Equal(t, "pending", status.Status)
	require.Equal(t, "ch_1", status.ProviderReference)
}

func TestCreatePaymentRequest_ValidationError(t *testing.T) {
	srv, _ := newTestServer(&stubAdapter{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/payment-requests", "application/json",
		strings.NewReader(`{"orderId":"","amountCents":0,"currency":"ZAR"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	srv, _ := newTestServer(&stubAdapter{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/payment-requests/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReceiveWebhook_StatusMapping(t *testing.T) {
	adapter := &stubAdapter{verified: false}
	srv, repo := newTestServer(adapter)
	defer srv.Close()

	now := time.Now().UTC()
	require.NoError(t, repo.Save(&paymentlink.PaymentLink{
		ID:                "link-1",
		OrderID:           "order-1",
		Provider:          "yoco",
		ProviderReference: "ch_1",
		AmountCents:       10000,
		Currency:          "ZAR",
		Status:            paymentlink.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))

	post := func(path, body string) *http.Response {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	// Signature failure is the one case the provider must see as an error.
	resp := post("/webhooks/yoco", `{"reference":"ch_1","status":"paid"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	adapter.verified = true

	resp = post("/webhooks/yoco", `{"reference":"ch_1","status":"paid"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	link, err := repo.FindByID("link-1")
	require.NoError(t, err)
	require.Equal(t, paymentlink.StatusPaid, link.Status)

	// Unknown reference still acknowledged.
	resp = post("/webhooks/yoco", `{"reference":"ch_missing","status":"paid"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Missing reference is a validation failure.
	resp = post("/webhooks/yoco", `{"status":"paid"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown provider route.
	resp = post("/webhooks/stripe", `{"reference":"ch_1","status":"paid"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
