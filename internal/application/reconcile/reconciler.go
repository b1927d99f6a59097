package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okapilabs/paylink-go/internal/domain/paymentlink"
	"github.com/okapilabs/paylink-go/internal/domain/provider"
	"github.com/okapilabs/paylink-go/internal/infra/logging"
	"github.com/okapilabs/paylink-go/internal/infra/metrics"
)

// Engine is the shared transition path; the reconciler feeds provider poll
// results through exactly the same code as webhook delivery.
type Engine interface {
	ApplyTransition(ctx context.Context, providerName string, evt provider.WebhookEvent) error
}

// Reconciler sweeps pending payment links that have outlived MinAge and asks
// the provider what actually happened to them. It is the compensating control
// for dropped or delayed webhooks.
type Reconciler struct {
	Repo     paymentlink.Repository
	Adapters map[string]provider.Adapter
	Engine   Engine

	Interval     time.Duration
	InitialDelay time.Duration

	// MinAge keeps the sweep away from links whose webhook may still be in
	// flight.
	MinAge    time.Duration
	BatchSize int

	Logger  logging.Logger
	Metrics *metrics.Counters

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// Run blocks until ctx is cancelled. The first pass fires after InitialDelay
// so it does not collide with cold-start load; later passes every Interval.
// A tick that arrives while the previous pass is still running is skipped.
func (r *Reconciler) Run(ctx context.Context) {
	first := time.NewTimer(r.InitialDelay)
	defer first.Stop()

	select {
	case <-ctx.Done():
		return
	case <-first.C:
		r.wg.Add(1)
		go r.tick(ctx)
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.wg.Add(1)
			go r.tick(ctx)
		}
	}
}

// Wait joins any in-flight pass. Called on shutdown after Run has returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) tick(ctx context.Context) {
	defer r.wg.Done()

	if !r.inFlight.CompareAndSwap(false, true) {
		r.Logger.Info("reconcile pass still running, skipping tick", nil)
		return
	}
	defer r.inFlight.Store(false)

	r.ReconcileOnce(ctx)
}

// ReconcileOnce runs a single sweep. Per-item failures are logged and
// contained; the pass always finishes the batch.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.MinAge)

	links, err := r.Repo.FindStalePending(cutoff, r.BatchSize)
	if err != nil {
		r.Logger.Error("reconcile query failed", map[string]any{"error": err.Error()})
		return
	}

	r.Metrics.IncReconcilePasses()
	if len(links) == 0 {
		return
	}

	r.Logger.Info("reconcile pass started", map[string]any{"batch": len(links)})

	for _, link := range links {
		adapter, ok := r.Adapters[link.Provider]
		if !ok {
			r.Logger.Error("no adapter for pending link", map[string]any{
				"link_id":  link.ID,
				"provider": link.Provider,
			})
			continue
		}

		status, err := adapter.QueryStatus(ctx, link.ProviderReference)
		if err != nil {
			r.Logger.Error("provider status query failed", map[string]any{
				"link_id":            link.ID,
				"provider":           link.Provider,
				"provider_reference": link.ProviderReference,
				"error":              err.Error(),
			})
			continue
		}

		evt := provider.WebhookEvent{
			ProviderReference: link.ProviderReference,
			Status:            status,
		}
		if err := r.Engine.ApplyTransition(ctx, link.Provider, evt); err != nil {
			r.Logger.Error("reconcile transition failed", map[string]any{
				"link_id": link.ID,
				"error":   err.Error(),
			})
			continue
		}

		if status.Terminal() {
			r.Metrics.IncReconcileItemsResolved()
		}
	}
}
