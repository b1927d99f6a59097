package notify_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okapilabs/paylink-go/internal/application/notify"
	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
)

func paidLink() *paymentlink.PaymentLink {
	paidAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &paymentlink.PaymentLink{
		ID:                "link-1",
		OrderID:           "order-1",
		Provider:          "yoco",
		ProviderReference: "ch_1",
		AmountCents:       10000,
		Currency:          "ZAR",
		Status:            paymentlink.StatusPaid,
		PaidAt:            &paidAt,
	}
}

func newNotifier(url string) *notify.Notifier {
	return &notify.Notifier{
		OrderSystemURL: url,
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Timeout:        time.Second,
		Logger:         logging.Noop{},
		Metrics:        &metrics.Counters{},
	}
}

func TestNotifier_DeliversPayload(t *testing.T) {
	var calls atomic.Int64
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newNotifier(srv.URL)
	n.Dispatch(paidLink())
	n.Wait()

	require.Equal(t, int64(1), calls.Load())
	require.Equal(t, "order-1", got["orderId"])
	require.Equal(t, "yoco", got["provider"])
	require.Equal(t, "ch_1", got["providerReference"])
	require.Equal(t, float64(10000), got["amountCents"])
	require.Equal(t, uint64(1), n.Metrics.NotificationsSucceeded)
}

func TestNotifier_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newNotifier(srv.URL)
	n.Dispatch(paidLink())
	n.Wait()

	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, uint64(1), n.Metrics.NotificationsSucceeded)
	require.Equal(t, uint64(0), n.Metrics.NotificationsFailed)
}

func TestNotifier_DoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	n := newNotifier(srv.URL)
	n.Dispatch(paidLink())
	n.Wait()

	require.Equal(t, int64(1), calls.Load())
	require.Equal(t, uint64(1), n.Metrics.NotificationsFailed)
}

func TestNotifier_ExhaustsAttemptsAndGivesUp(t *testing.T) {
	var calls atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := newNotifier(srv.URL)
	n.Dispatch(paidLink())
	n.Wait()

	require.Equal(t, int64(3), calls.Load())
	require.Equal(t, uint64(1), n.Metrics.NotificationsFailed)
	require.Equal(t, uint64(0), n.Metrics.NotificationsSucceeded)
}

func TestNotifier_DispatchDoesNotBlock(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newNotifier(srv.URL)

	start := time.Now()
	n.Dispatch(paidLink())
	elapsed := time.Since(start)

	close(release)
	n.Wait()

	if elapsed > 100*time.Millisecond {
		t.Fatalf("Dispatch blocked for %v", elapsed)
	}
	require.Equal(t, uint64(1), n.Metrics.NotificationsSucceeded)
}
