package httpapi

import "net/http"

func NewRouter(handler *PaymentHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /payment-requests", handler.CreatePayment)
	mux.HandleFunc("GET /payment-requests/{id}", handler.GetPaymentStatus)
	mux.HandleFunc("POST /webhooks/{provider}", handler.ReceiveWebhook)

	return mux
}
