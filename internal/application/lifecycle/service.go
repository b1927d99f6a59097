package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
)

var (
	ErrLinkNotFound    = errors.New("payment link not found")
	ErrUnknownProvider = errors.New("no adapter configured for provider")
)

// OrderNotifier delivers the paid fact to the order system. Dispatch must
// return without waiting for delivery.
type OrderNotifier interface {
	Dispatch(link *paymentlink.PaymentLink)
}

// Service owns the payment link lifecycle. Webhook ingestion and the
// reconciliation loop both mutate state exclusively through ApplyTransition.
type Service struct {
	Repo            paymentlink.Repository
	Adapters        map[string]provider.Adapter
	DefaultProvider string
	Notifier        OrderNotifier
	Logger          logging.Logger
	Metrics         *metrics.Counters

	// Now is overridable for tests; time.Now when nil.
	Now func() time.Time
}

type CreateRequest struct {
	OrderID       string
	CustomerID    string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	CustomerName  string
}

func (s *Service) CreatePaymentRequest(ctx context.Context, req CreateRequest) (*paymentlink.PaymentLink, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", provider.ErrInvalidRequest)
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", provider.ErrInvalidRequest)
	}
	if len(req.Currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be an ISO 4217 code", provider.ErrInvalidRequest)
	}

	adapter, ok := s.Adapters[s.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, s.DefaultProvider)
	}

	res, err := adapter.CreateLink(ctx, provider.CreateLinkRequest{
		OrderID:       req.OrderID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	link := &paymentlink.PaymentLink{
		ID:                uuid.NewString(),
		OrderID:           req.OrderID,
		CustomerID:        req.CustomerID,
		Provider:          adapter.Name(),
		ProviderReference: res.ProviderReference,
		AmountCents:       req.AmountCents,
		Currency:          req.Currency,
		Status:            paymentlink.StatusPending,
		CheckoutURL:       res.CheckoutURL,
		CustomerEmail:     req.CustomerEmail,
		ExpiresAt:         res.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.Repo.Save(link); err != nil {
		return nil, err
	}

	s.Metrics.IncLinksCreated()
	s.Logger.Info("payment link created", map[string]any{
		"link_id":            link.ID,
		"order_id":           link.OrderID,
		"provider":           link.Provider,
		"provider_reference": link.ProviderReference,
		"amount_cents":       link.AmountCents,
		"currency":           link.Currency,
	})

	return link, nil
}

func (s *Service) GetPaymentStatus(id string) (*paymentlink.PaymentLink, error) {
	link, err := s.Repo.FindByID(id)
	if err != nil {
		if errors.Is(err, paymentlink.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, id)
		}
		return nil, err
	}
	return link, nil
}

// ApplyTransition moves a link toward a terminal state. Terminal states are
// sticky: once a link is paid, failed or expired, later events of any kind are
// acknowledged without effect. The single conditional update in the repository
// makes concurrent webhook and reconciliation writes commute.
func (s *Service) ApplyTransition(ctx context.Context, providerName string, evt provider.WebhookEvent) error {
	link, err := s.Repo.FindByProviderReference(providerName, evt.ProviderReference)
	if err != nil {
		if errors.Is(err, paymentlink.ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", provider.ErrUnknownReference, providerName, evt.ProviderReference)
		}
		return err
	}

	if link.Status.Terminal() {
		return nil
	}

	switch evt.Status {
	case paymentlink.StatusPaid:
		paidAt := evt.OccurredAt
		if paidAt.IsZero() {
			paidAt = s.now()
		}

		won, err := s.Repo.MarkPaid(link.ID, paidAt)
		if err != nil {
			return err
		}
		if !won {
			// Another channel already resolved this link.
			return nil
		}

		s.Metrics.IncTransitionsApplied()
		s.Logger.Info("payment link paid", map[string]any{
			"link_id":            link.ID,
			"order_id":           link.OrderID,
			"provider":           providerName,
			"provider_reference": evt.ProviderReference,
		})

		link.Status = paymentlink.StatusPaid
		link.PaidAt = &paidAt
		s.Notifier.Dispatch(link)
		return nil

	case paymentlink.StatusFailed, paymentlink.StatusExpired:
		won, err := s.Repo.MarkStatus(link.ID, evt.Status)
		if err != nil {
			return err
		}
		if won {
			s.Metrics.IncTransitionsApplied()
			s.Logger.Info("payment link closed", map[string]any{
				"link_id":            link.ID,
				"order_id":           link.OrderID,
				"provider":           providerName,
				"provider_reference": evt.ProviderReference,
				"status":             string(evt.Status),
			})
		}
		return nil

	default:
		// Still pending on the provider side.
		return nil
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
