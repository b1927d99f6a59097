package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
)

var (
	// ErrProviderUnavailable covers network failures and provider 5xx
	// responses. Callers retry; it is never a verdict on the payment.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidRequest covers malformed creation requests rejected either
	// locally or by the provider with a 4xx. Not retryable.
	ErrInvalidRequest = errors.New("invalid payment request")

	// ErrUnknownReference means a webhook or status result referenced a
	// payment link this engine never created.
	ErrUnknownReference = errors.New("unknown provider reference")
)

type CreateLinkRequest struct {
	OrderID       string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
}

type CreateLinkResult struct {
	ProviderReference string
	CheckoutURL       string
	ExpiresAt         time.Time
}

// WebhookEvent is the canonical shape of a provider notification after
// normalization. Reconciliation results are expressed as the same type so
// both channels share one transition path.
type WebhookEvent struct {
	EventID           string
	ProviderReference string
	Status            paymentlink.Status
	OccurredAt        time.Time
}

type Adapter interface {
	Name() string

	CreateLink(ctx context.Context, req CreateLinkRequest) (CreateLinkResult, error)

	// VerifyWebhookSignature checks the provider signature against the raw,
	// byte-exact request body. An adapter with no configured secret always
	// returns false; skipping verification is a configuration decision made
	// above this contract.
	VerifyWebhookSignature(rawBody []byte, headers http.Header) bool

	WebhookSecretConfigured() bool

	// NormalizeWebhookPayload translates a provider payload into the
	// canonical event. Status codes outside the documented success and
	// failure families normalize to pending, never to paid.
	NormalizeWebhookPayload(rawBody []byte) (WebhookEvent, error)

	// QueryStatus asks the provider for the current state of a reference.
	// A reference the provider does not know yet maps to pending.
	QueryStatus(ctx context.Context, providerReference string) (paymentlink.Status, error)
}
