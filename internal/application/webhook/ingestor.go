package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
)

var (
	ErrUnknownProvider  = errors.New("unknown webhook provider")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedPayload = errors.New("webhook payload malformed")
)

// TransitionApplier is the single mutation path into the payment link store.
type TransitionApplier interface {
	ApplyTransition(ctx context.Context, providerName string, evt provider.WebhookEvent) error
}

// ReceiptLog records inbound webhook events for audit and deduplication.
// Seen reports whether the provider event id was recorded before; Record
// returns false when a concurrent delivery won the write.
type ReceiptLog interface {
	Seen(providerName, eventID string) (bool, error)
	Record(providerName, eventID string, receivedAt time.Time, body []byte) (bool, error)
}

type Ingestor struct {
	Adapters map[string]provider.Adapter
	Engine   TransitionApplier
	Receipts ReceiptLog

	// AllowUnverified accepts unsigned webhooks for adapters with no
	// configured secret. Every acceptance is logged at error level.
	AllowUnverified bool

	Logger  logging.Logger
	Metrics *metrics.Counters
}

func (i *Ingestor) Handle(ctx context.Context, providerName string, rawBody []byte, headers http.Header) error {
	adapter, ok := i.Adapters[providerName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	i.Metrics.IncWebhooksReceived()

	if !adapter.WebhookSecretConfigured() {
		if !i.AllowUnverified {
			i.Metrics.IncWebhooksRejected()
			i.Logger.Error("webhook rejected: no secret configured", map[string]any{
				"provider": providerName,
			})
			return ErrSignatureInvalid
		}
		i.Logger.Error("accepting unverified webhook: no secret configured", map[string]any{
			"provider": providerName,
		})
	} else if !adapter.VerifyWebhookSignature(rawBody, headers) {
		i.Metrics.IncWebhooksRejected()
		i.Logger.Error("webhook rejected: signature mismatch", map[string]any{
			"provider": providerName,
		})
		return ErrSignatureInvalid
	}

	evt, err := adapter.NormalizeWebhookPayload(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if evt.ProviderReference == "" {
		return fmt.Errorf("%w: missing provider reference", ErrMalformedPayload)
	}

	if i.Receipts != nil && evt.EventID != "" {
		seen, err := i.Receipts.Seen(providerName, evt.EventID)
		if err != nil {
			i.Logger.Error("webhook receipt log read failed", map[string]any{
				"provider": providerName,
				"event_id": evt.EventID,
				"error":    err.Error(),
			})
		} else if seen {
			i.Metrics.IncWebhooksDuplicate()
			i.Logger.Info("duplicate webhook acknowledged", map[string]any{
				"provider": providerName,
				"event_id": evt.EventID,
			})
			return nil
		}
	}

	if err := i.Engine.ApplyTransition(ctx, providerName, evt); err != nil {
		if errors.Is(err, provider.ErrUnknownReference) {
			// Acknowledge so the provider stops retrying; the reference will
			// never resolve here.
			i.Logger.Error("webhook for unknown reference", map[string]any{
				"provider":           providerName,
				"provider_reference": evt.ProviderReference,
			})
			i.record(providerName, evt.EventID, rawBody)
			return nil
		}
		// No receipt for a failed apply: the provider's retry of this event
		// id must reach the state machine again.
		return err
	}

	i.record(providerName, evt.EventID, rawBody)
	return nil
}

func (i *Ingestor) record(providerName, eventID string, rawBody []byte) {
	if i.Receipts == nil || eventID == "" {
		return
	}
	// The receipt log is an audit surface; losing a receipt must not drop
	// the webhook itself.
	if _, err := i.Receipts.Record(providerName, eventID, time.Now().UTC(), rawBody); err != nil {
		i.Logger.Error("webhook receipt log write failed", map[string]any{
			"provider": providerName,
			"event_id": eventID,
			"error":    err.Error(),
		})
	}
}
