// Package peach integrates Peach Payments hosted checkouts.
//
// Peach reports outcomes as dotted result codes grouped in families. Success
// and failure families are matched by prefix; anything outside the documented
// families stays pending so an unknown code can never be read as a payment.
// Webhooks are signed with HMAC-SHA256 over the raw body, hex-encoded in the
// X-Initiate-Signature header.
package peach

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
)

// checkoutTTL matches Peach's 30 minute checkout session lifetime.
const checkoutTTL = 30 * time.Minute

// Result code families, checked in order. The first match wins; 100.396.104
// (session expired) must be tested before the broader failure families.
var (
	successPrefixes = []string{"000.000.", "000.100.1"}
	// 800.400.5 is "pending at the connector"; 700.400.580 is "cannot be
	// found via lookup", which for a fresh checkout means no payment yet.
	pendingPrefixes = []string{"000.200", "800.400.5", "700.400.580"}
	expiredPrefixes = []string{"100.396.104"}
	failurePrefixes = []string{
		"000.400.1", "100.396.101", "100.380", "100.390",
		"600.", "700.", "800.", "900.",
	}
)

type Adapter struct {
	EntityID      string
	APIKey        string
	WebhookSecret string
	BaseURL       string
	Client        *http.Client
}

func (a *Adapter) Name() string { return "peach" }

type checkoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Result      struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"result"`
}

func (a *Adapter) CreateLink(ctx context.Context, req provider.CreateLinkRequest) (provider.CreateLinkResult, error) {
	form := url.Values{}
	form.Set("entityId", a.EntityID)
	form.Set("amount", decimal.New(req.AmountCents, -2).StringFixed(2))
	form.Set("currency", req.Currency)
	form.Set("merchantTransactionId", req.OrderID)
	form.Set("paymentType", "DB")
	if req.CustomerEmail != "" {
		form.Set("customer.email", req.CustomerEmail)
	}
	if req.CustomerName != "" {
		form.Set("customer.givenName", req.CustomerName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/checkouts", strings.NewReader(form.Encode()))
	if err != nil {
		return provider.CreateLinkResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)

	resp, err := a.client().Do(httpReq)
	if err != nil {
		return provider.CreateLinkResult{}, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return provider.CreateLinkResult{}, fmt.Errorf("%w: peach returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return provider.CreateLinkResult{}, fmt.Errorf("%w: peach returned %d: %s", provider.ErrInvalidRequest, resp.StatusCode, respBody)
	}

	var out checkoutResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return provider.CreateLinkResult{}, fmt.Errorf("decode checkout response: %w", err)
	}
	if out.ID == "" {
		return provider.CreateLinkResult{}, fmt.Errorf("checkout response missing id")
	}

	checkoutURL := out.RedirectURL
	if checkoutURL == "" {
		checkoutURL = fmt.Sprintf("%s/checkout?checkoutId=%s", a.BaseURL, out.ID)
	}

	return provider.CreateLinkResult{
		ProviderReference: out.ID,
		CheckoutURL:       checkoutURL,
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

	signature := headers.Get("X-Initiate-Signature")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.WebhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

type webhookPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		ID         string `json:"id"`
		CheckoutID string `json:"checkoutId"`
		Result     struct {
			Code string `json:"code"`
		} `json:"result"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"payload"`
}

func (a *Adapter) NormalizeWebhookPayload(rawBody []byte) (provider.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return provider.WebhookEvent{}, err
	}

	reference := p.Payload.CheckoutID
	if reference == "" {
		reference = p.Payload.ID
	}

	return provider.WebhookEvent{
		EventID:           p.ID,
		ProviderReference: reference,
		Status:            normalizeResultCode(p.Payload.Result.Code),
		OccurredAt:        p.Payload.Timestamp,
	}, nil
}

type paymentStatusResponse struct {
	ID     string `json:"id"`
	Result struct {
		Code string `json:"code"`
	} `json:"result"`
}

func (a *Adapter) QueryStatus(ctx context.Context, providerReference string) (paymentlink.Status, error) {
	endpoint := fmt.Sprintf("%s/v1/checkouts/%s/payment?entityId=%s",
		a.BaseURL, url.PathEscape(providerReference), url.QueryEscape(a.EntityID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
		// No payment attempt against the checkout yet.
		return paymentlink.StatusPending, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: peach returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: peach returned %d", provider.ErrInvalidRequest, resp.StatusCode)
	}

	var out paymentStatusResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode payment status: %w", err)
	}

	return normalizeResultCode(out.Result.Code), nil
}

func normalizeResultCode(code string) paymentlink.Status {
	switch {
	case matchesAny(code, successPrefixes):
		return paymentlink.StatusPaid
	case matchesAny(code, pendingPrefixes):
		return paymentlink.StatusPending
	case matchesAny(code, expiredPrefixes):
		return paymentlink.StatusExpired
	case matchesAny(code, failurePrefixes):
		return paymentlink.StatusFailed
	default:
		return paymentlink.StatusPending
	}
}

func matchesAny(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}
