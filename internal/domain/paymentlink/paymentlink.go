package paymentlink

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired
}

type PaymentLink struct {
	ID                string
	OrderID           string
	CustomerID        string
	Provider          string
	ProviderReference string
	AmountCents       int64
	Currency          string
	Status            Status
	CheckoutURL       string
	CustomerEmail     string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	PaidAt            *time.Time
	UpdatedAt         time.Time
}
