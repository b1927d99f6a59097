// Package yoco integrates the Yoco checkout API.
//
// Checkout creation is a POST to /checkouts with the amount in cents. Webhook
// authenticity follows Yoco's signing scheme: HMAC-SHA256 over
// "<webhook-id>.<webhook-timestamp>.<raw body>" keyed with the base64 part of
// the whsec_ secret, carried base64-encoded in the webhook-signature header as
// "v1,<signature>".
package yoco

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
)

const secretPrefix = "whsec_"

// checkoutTTL is how long Yoco keeps a checkout open; the API does not return
// an expiry so the link's ExpiresAt is derived from it.
const checkoutTTL = time.Hour

type Adapter struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Client        *http.Client
}

func (a *Adapter) Name() string { return "yoco" }

type checkoutRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type checkoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

func (a *Adapter) CreateLink(ctx context.Context, req provider.CreateLinkRequest) (provider.CreateLinkResult, error) {
	body, err := json.Marshal(checkoutRequest{
		Amount:   req.AmountCents,
		Currency: req.Currency,
		Metadata: map[string]string{
			"orderId":       req.OrderID,
			"customerEmail": req.CustomerEmail,
		},
	})
	if err != nil {
		return provider.CreateLinkResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/checkouts", bytes.NewReader(body))
	if err != nil {
		return provider.CreateLinkResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)

	resp, err := a.client().Do(httpReq)
	if err != nil {
		return provider.CreateLinkResult{}, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return provider.CreateLinkResult{}, fmt.Errorf("%w: yoco returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return provider.CreateLinkResult{}, fmt.Errorf("%w: yoco returned %d: %s", provider.ErrInvalidRequest, resp.StatusCode, respBody)
	}

	var out checkoutResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return provider.CreateLinkResult{}, fmt.Errorf("decode checkout response: %w", err)
	}
	if out.ID == "" {
		return provider.CreateLinkResult{}, fmt.Errorf("checkout response missing id")
	}

	return provider.CreateLinkResult{
		ProviderReference: out.ID,
		CheckoutURL:       out.RedirectURL,
		ExpiresAt:         time.Now().UTC().Add(checkoutTTL),
	}, nil
}

func (a *Adapter) WebhookSecretConfigured() bool {
	return a.WebhookSecret != ""
}

func (a *Adapter) VerifyWebhookSignature(rawBody []byte, headers http.Header) bool {
	if a.WebhookSecret == "" {
		return false
	}

	id := headers.Get("webhook-id")
	timestamp := headers.Get("webhook-timestamp")
	signature := headers.Get("webhook-signature")
	if id == "" || timestamp == "" || signature == "" {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(a.WebhookSecret, secretPrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Header carries space-separated "v1,<sig>" entries; any match passes.
	for _, part := range strings.Fields(signature) {
		version, sig, found := strings.Cut(part, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

type webhookPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdDate"`
	Payload   struct {
		ID       string `json:"id"`
		Metadata struct {
			CheckoutID string `json:"checkoutId"`
		} `json:"metadata"`
	} `json:"payload"`
}

func (a *Adapter) NormalizeWebhookPayload(rawBody []byte) (provider.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return provider.WebhookEvent{}, err
	}

	reference := p.Payload.Metadata.CheckoutID
	if reference == "" {
		reference = p.Payload.ID
	}

	var status paymentlink.Status
	switch p.Type {
	case "payment.succeeded":
		status = paymentlink.StatusPaid
	case "payment.failed":
		status = paymentlink.StatusFailed
	case "checkout.expired":
		status = paymentlink.StatusExpired
	default:
		// Unrecognized event types never escalate.
		status = paymentlink.StatusPending
	}

	return provider.WebhookEvent{
		EventID:           p.ID,
		ProviderReference: reference,
		Status:            status,
		OccurredAt:        p.CreatedAt,
	}, nil
}

type checkoutStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (a *Adapter) QueryStatus(ctx context.Context, providerReference string) (paymentlink.Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/checkouts/"+providerReference, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)

	resp, err := a.client().Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Yoco may lag behind its own checkout creation.
		return paymentlink.StatusPending, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: yoco returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: yoco returned %d", provider.ErrInvalidRequest, resp.StatusCode)
	}

	var out checkoutStatusResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode checkout status: %w", err)
	}

	switch out.Status {
	case "completed":
		return paymentlink.StatusPaid, nil
	case "failed":
		return paymentlink.StatusFailed, nil
	case "expired":
		return paymentlink.StatusExpired, nil
	default:
		return paymentlink.StatusPending, nil
	}
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}
