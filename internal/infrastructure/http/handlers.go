package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/okapilabs/paylink-go/internal/application/lifecycle"
	"github.com/okapilabs/paylink-go/internal/application/webhook"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	Service  *lifecycle.Service
	Ingestor *webhook.Ingestor
	Logger   logging.Logger
}

type CreatePaymentRequest struct {
	OrderID       string `json:"orderId"`
	CustomerID    string `json:"customerId"`
	AmountCents   int64  `json:"amountCents"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName"`
}

type CreatePaymentResponse struct {
	ID          string    `json:"id"`
	CheckoutURL string    `json:"checkoutUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type PaymentStatusResponse struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	AmountCents       int64      `json:"amountCents"`
	Currency          string     `json:"currency"`
	Provider          string     `json:"provider"`
	ProviderReference string     `json:"providerReference"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	link, err := h.Service.CreatePaymentRequest(r.Context(), lifecycle.CreateRequest{
		OrderID:       req.OrderID,
		CustomerID:    req.CustomerID,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, provider.ErrProviderUnavailable):
			http.Error(w, "payment provider unavailable", http.StatusBadGateway)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, CreatePaymentResponse{
		ID:          link.ID,
		CheckoutURL: link.CheckoutURL,
		ExpiresAt:   link.ExpiresAt,
	})
}

func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	link, err := h.Service.GetPaymentStatus(id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrLinkNotFound) {
			http.Error(w, "payment request not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PaymentStatusResponse{
		ID:                link.ID,
		Status:            string(link.Status),
		AmountCents:       link.AmountCents,
		Currency:          link.Currency,
		Provider:          link.Provider,
		ProviderReference: link.ProviderReference,
		PaidAt:            link.PaidAt,
	})
}

// ReceiveWebhook acknowledges any verified webhook with a 2xx, including ones
// whose reference is unknown, so providers do not retry forever. 4xx is
// reserved for signature and validation failures.
func (h *PaymentHandler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	err = h.Ingestor.Handle(r.Context(), providerName, rawBody, r.Header)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, webhook.ErrUnknownProvider):
		http.Error(w, "unknown provider", http.StatusNotFound)
	case errors.Is(err, webhook.ErrSignatureInvalid):
		http.Error(w, "signature verification failed", http.StatusUnauthorized)
	case errors.Is(err, webhook.ErrMalformedPayload):
		http.Error(w, "malformed payload", http.StatusBadRequest)
	default:
		h.Logger.Error("webhook processing failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
