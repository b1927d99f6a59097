package metrics

import "sync/atomic"

type Counters struct {
	LinksCreated           uint64
	WebhooksReceived       uint64
	WebhooksRejected       uint64
	WebhooksDuplicate      uint64
	TransitionsApplied     uint64
	ReconcilePasses        uint64
	ReconcileItemsResolved uint64
	NotificationsSucceeded uint64
	NotificationsFailed    uint64
}

func (c *Counters) IncLinksCreated() {
	atomic.AddUint64(&c.LinksCreated, 1)
}

func (c *Counters) IncWebhooksReceived() {
	atomic.AddUint64(&c.WebhooksReceived, 1)
}

func (c *Counters) IncWebhooksRejected() {
	atomic.AddUint64(&c.WebhooksRejected, 1)
}

func (c *Counters) IncWebhooksDuplicate() {
	atomic.AddUint64(&c.WebhooksDuplicate, 1)
}

func (c *Counters) IncTransitionsApplied() {
	atomic.AddUint64(&c.TransitionsApplied, 1)
}

func (c *Counters) IncReconcilePasses() {
	atomic.AddUint64(&c.ReconcilePasses, 1)
}

func (c *Counters) IncReconcileItemsResolved() {
	atomic.AddUint64(&c.ReconcileItemsResolved, 1)
}

func (c *Counters) IncNotificationsSucceeded() {
	atomic.AddUint64(&c.NotificationsSucceeded, 1)
}

func (c *Counters) IncNotificationsFailed() {
	atomic.AddUint64(&c.NotificationsFailed, 1)
}
