package paymentlink

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repository lookups for ids and references that
// were never stored. Every other lookup error is an infrastructure failure.
var ErrNotFound = errors.New("payment link not found")

type Repository interface {
	Save(*PaymentLink) error
	FindByID(string) (*PaymentLink, error)
	FindByProviderReference(provider, reference string) (*PaymentLink, error)

	// MarkPaid flips a pending link to paid and sets paid_at if it was never
	// set. Returns true only for the caller whose update changed the row, so
	// concurrent webhook and reconciliation writes resolve to one winner.
	MarkPaid(id string, paidAt time.Time) (bool, error)

	// MarkStatus flips a pending link to failed or expired under the same
	// single-winner rule.
	MarkStatus(id string, status Status) (bool, error)

	// FindStalePending returns pending links created at or before cutoff,
	// oldest first, capped at limit.
	FindStalePending(cutoff time.Time, limit int) ([]*PaymentLink, error)
}
