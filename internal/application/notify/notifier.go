package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
)

// Notifier tells the order system that a payment link was paid. Delivery is
// best effort: the paid state is already durable before Dispatch is called,
// and a failed sequence never rolls it back. The receiving endpoint is
// idempotent by contract (the payload carries the order id and paid
// timestamp), so redelivery is safe.
type Notifier struct {
	OrderSystemURL string
	Client         *http.Client

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration

	// Lifetime bounds in-flight deliveries; context.Background when nil.
	// Wire the process shutdown context here.
	Lifetime context.Context

	Logger  logging.Logger
	Metrics *metrics.Counters

	wg sync.WaitGroup
}

type orderPaidNotification struct {
	OrderID           string    `json:"orderId"`
	PaidAt            time.Time `json:"paidAt"`
	Provider          string    `json:"provider"`
	ProviderReference string    `json:"providerReference"`
	AmountCents       int64     `json:"amountCents"`
	Currency          string    `json:"currency"`
}

// Dispatch schedules one delivery sequence and returns immediately. The
// caller that flipped the link to paid must not block on this.
func (n *Notifier) Dispatch(link *paymentlink.PaymentLink) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(link)
	}()
}

// Wait joins all outstanding delivery sequences. Called on shutdown after the
// lifetime context is cancelled.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// RedeliverySweep is the extension point for stronger delivery guarantees: a
// future version would persist exhausted sequences and drain them on a timer.
// TODO(delivery): persist failed notifications and replay them here.
func (n *Notifier) RedeliverySweep(ctx context.Context) error {
	return nil
}

func (n *Notifier) deliver(link *paymentlink.PaymentLink) {
	payload := orderPaidNotification{
		OrderID:           link.OrderID,
		Provider:          link.Provider,
		ProviderReference: link.ProviderReference,
		AmountCents:       link.AmountCents,
		Currency:          link.Currency,
	}
	if link.PaidAt != nil {
		payload.PaidAt = *link.PaidAt
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.fail(link, fmt.Sprintf("marshal: %v", err))
		return
	}

	maxAttempts := n.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := n.post(body)

		if err == nil && status >= 200 && status < 300 {
			n.Metrics.IncNotificationsSucceeded()
			n.Logger.Info("order system notified", map[string]any{
				"order_id": link.OrderID,
				"link_id":  link.ID,
				"attempt":  attempt,
			})
			return
		}

		transient := err != nil || transientStatus(status)
		if !transient {
			n.fail(link, fmt.Sprintf("order system returned %d", status))
			return
		}

		n.Logger.Error("order notification attempt failed", map[string]any{
			"order_id": link.OrderID,
			"attempt":  attempt,
			"status":   status,
			"error":    errString(err),
		})

		if attempt == maxAttempts {
			break
		}
		if !n.sleep(n.backoff(attempt)) {
			return
		}
	}

	n.fail(link, fmt.Sprintf("exhausted %d attempts", maxAttempts))
}

func (n *Notifier) post(body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(n.lifetime(), n.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.OrderSystemURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		// Covers timeouts, connection resets and DNS failures. All transient.
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (n *Notifier) fail(link *paymentlink.PaymentLink, reason string) {
	n.Metrics.IncNotificationsFailed()
	n.Logger.Error("order notification failed", map[string]any{
		"order_id": link.OrderID,
		"link_id":  link.ID,
		"reason":   reason,
	})
}

// backoff is exponential from BaseDelay, capped at MaxDelay, with up to 50%
// random jitter so retries from concurrent payments do not align.
func (n *Notifier) backoff(attempt int) time.Duration {
	base := n.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := min(base<<(attempt-1), n.maxDelay())
	return d + rand.N(d/2+1)
}

func (n *Notifier) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-n.lifetime().Done():
		return false
	}
}

func (n *Notifier) lifetime() context.Context {
	if n.Lifetime != nil {
		return n.Lifetime
	}
	return context.Background()
}

func (n *Notifier) timeout() time.Duration {
	if n.Timeout > 0 {
		return n.Timeout
	}
	return 15 * time.Second
}

func (n *Notifier) maxDelay() time.Duration {
	if n.MaxDelay > 0 {
		return n.MaxDelay
	}
	return 30 * time.Second
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
