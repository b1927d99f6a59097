package inmemory

import (
	"sort"
	"sync"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
)

var ErrLinkNotFound = paymentlink.ErrNotFound

// PaymentLinkRepository keeps links in memory with the same win/lose
// transition semantics as the sqlite implementation. Used by tests and the
// dev server.
type PaymentLinkRepository struct {
	mu         sync.RWMutex
	links      map[string]*paymentlink.PaymentLink
	references map[string]string // provider + "/" + reference -> link id
}

func NewPaymentLinkRepository() *PaymentLinkRepository {
	return &PaymentLinkRepository{
		links:      make(map[string]*paymentlink.PaymentLink),
		references: make(map[string]string),
	}
}

func refKey(provider, reference string) string {
	return provider + "/" + reference
}

func (r *PaymentLinkRepository) Save(link *paymentlink.PaymentLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *link
	r.links[link.ID] = &cp
	if link.ProviderReference != "" {
		r.references[refKey(link.Provider, link.ProviderReference)] = link.ID
	}
	return nil
}

func (r *PaymentLinkRepository) FindByID(id string) (*paymentlink.PaymentLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}

	cp := *link
	return &cp, nil
}

func (r *PaymentLinkRepository) FindByProviderReference(provider, reference string) (*paymentlink.PaymentLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.references[refKey(provider, reference)]
	if !ok {
		return nil, ErrLinkNotFound
	}
	link, ok := r.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}

	cp := *link
	return &cp, nil
}

func (r *PaymentLinkRepository) MarkPaid(id string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[id]
	if !ok {
		return false, ErrLinkNotFound
	}
	if link.Status != paymentlink.StatusPending {
		return false, nil
	}

	link.Status = paymentlink.StatusPaid
	if link.PaidAt == nil {
		t := paidAt
		link.PaidAt = &t
	}
	link.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *PaymentLinkRepository) MarkStatus(id string, status paymentlink.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[id]
	if !ok {
		return false, ErrLinkNotFound
	}
	if link.Status != paymentlink.StatusPending {
		return false, nil
	}

	link.Status = status
	link.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *PaymentLinkRepository) FindStalePending(cutoff time.Time, limit int) ([]*paymentlink.PaymentLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*paymentlink.PaymentLink
	for _, link := range r.links {
		if link.Status == paymentlink.StatusPending && !link.CreatedAt.After(cutoff) {
			cp := *link
			stale = append(stale, &cp)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Links returns a snapshot keyed by id, for tests.
func (r *PaymentLinkRepository) Links() map[string]*paymentlink.PaymentLink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*paymentlink.PaymentLink, len(r.links))
	for id, link := range r.links {
		cp := *link
		out[id] = &cp
	}
	return out
}
