package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
)

var ErrLinkNotFound = paymentlink.ErrNotFound

type PaymentLinkRepository struct {
	db *sql.DB
}

func NewPaymentLinkRepository(db *sql.DB) *PaymentLinkRepository {
	return &PaymentLinkRepository{db: db}
}

const linkColumns = `id, order_id, customer_id, provider, provider_reference,
	amount_cents, currency, status, checkout_url, customer_email,
	expires_at, created_at, paid_at, updated_at`

func (r *PaymentLinkRepository) Save(link *paymentlink.PaymentLink) error {
	_, err := r.db.Exec(
		`INSERT INTO payment_links
		 (id, order_id, customer_id, provider, provider_reference,
		  amount_cents, currency, status, checkout_url, customer_email,
		  expires_at, created_at, paid_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID,
		link.OrderID,
		link.CustomerID,
		link.Provider,
		nullString(link.ProviderReference),
		link.AmountCents,
		link.Currency,
		string(link.Status),
		link.CheckoutURL,
		link.CustomerEmail,
		nullTime(link.ExpiresAt),
		link.CreatedAt,
		link.PaidAt,
		link.UpdatedAt,
	)
	return err
}

func (r *PaymentLinkRepository) FindByID(id string) (*paymentlink.PaymentLink, error) {
	row := r.db.QueryRow(
		`SELECT `+linkColumns+` FROM payment_links WHERE id = ?`, id)
	return scanLink(row)
}

func (r *PaymentLinkRepository) FindByProviderReference(provider, reference string) (*paymentlink.PaymentLink, error) {
	row := r.db.QueryRow(
		`SELECT `+linkColumns+`
		 FROM payment_links
		 WHERE provider = ? AND provider_reference = ?`,
		provider, reference)
	return scanLink(row)
}

// MarkPaid is the single atomic conditional update that makes duplicate and
// racing confirmations safe: only the first caller changes the row, and
// paid_at survives any later write via COALESCE.
func (r *PaymentLinkRepository) MarkPaid(id string, paidAt time.Time) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE payment_links
		 SET status = ?, paid_at = COALESCE(paid_at, ?), updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(paymentlink.StatusPaid),
		paidAt,
		time.Now().UTC(),
		id,
		string(paymentlink.StatusPending),
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *PaymentLinkRepository) MarkStatus(id string, status paymentlink.Status) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE payment_links
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status),
		time.Now().UTC(),
		id,
		string(paymentlink.StatusPending),
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (r *PaymentLinkRepository) FindStalePending(cutoff time.Time, limit int) ([]*paymentlink.PaymentLink, error) {
	rows, err := r.db.Query(
		`SELECT `+linkColumns+`
		 FROM payment_links
		 WHERE status = ? AND created_at <= ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		string(paymentlink.StatusPending),
		cutoff,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*paymentlink.PaymentLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*paymentlink.PaymentLink, error) {
	var (
		link      paymentlink.PaymentLink
		status    string
		reference sql.NullString
		expiresAt sql.NullTime
		paidAt    sql.NullTime
	)

	if err := row.Scan(
		&link.ID,
		&link.OrderID,
		&link.CustomerID,
		&link.Provider,
		&reference,
		&link.AmountCents,
		&link.Currency,
		&status,
		&link.CheckoutURL,
		&link.CustomerEmail,
		&expiresAt,
		&link.CreatedAt,
		&paidAt,
		&link.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	link.Status = paymentlink.Status(status)
	link.ProviderReference = reference.String
	if expiresAt.Valid {
		link.ExpiresAt = expiresAt.Time
	}
	if paidAt.Valid {
		t := paidAt.Time
		link.PaidAt = &t
	}

	return &link, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
