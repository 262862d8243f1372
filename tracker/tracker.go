// Package tracker polls the API for order status changes. It is a courtesy
// refresh: a change that happens and reverts between two polls is never seen.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"food-ordering-api/apperr"
	"food-ordering-api/client"
	"food-ordering-api/models"
)

const (
	DefaultOrderInterval = 30 * time.Second
	DefaultWatchInterval = 120 * time.Second
)

// Change is one observed status difference. From is empty on the first
// observation of an order.
type Change struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
	Order   models.Order
	At      time.Time
}

type OrderGetter interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type OrderLister interface {
	MyOrders(ctx context.Context) ([]models.Order, error)
}

// permanent reports errors that another poll cannot fix.
func permanent(err error) bool {
	return client.IsKind(err, apperr.KindNotFound) ||
		client.IsKind(err, apperr.KindForbidden) ||
		client.IsKind(err, apperr.KindUnauthenticated)
}

// OrderTracker follows one order until it reaches a terminal status.
type OrderTracker struct {
	src      OrderGetter
	orderID  string
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewOrderTracker(src OrderGetter, orderID string, interval time.Duration, log *slog.Logger) *OrderTracker {
	if interval <= 0 {
		interval = DefaultOrderInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &OrderTracker{src: src, orderID: orderID, interval: interval, log: log, now: time.Now}
}

// Run polls immediately and then on every tick, calling emit for each status
// change. It returns nil once the order is terminal, the context error when
// cancelled, or the error of a poll that cannot succeed later.
func (t *OrderTracker) Run(ctx context.Context, emit func(Change)) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var last models.OrderStatus
	for {
		o, err := t.src.GetOrder(ctx, t.orderID)
		switch {
		case err == nil:
			if o.Status != last {
				emit(Change{OrderID: o.ID, From: last, To: o.Status, Order: *o, At: t.now()})
				last = o.Status
			}
			if last.Terminal() {
				return nil
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case permanent(err):
			return err
		default:
			t.log.WarnContext(ctx, "poll order failed", "order_id", t.orderID, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ActiveOrdersWatcher follows every non-terminal order of the signed-in
// customer. The first poll only records a baseline.
type ActiveOrdersWatcher struct {
	src      OrderLister
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	active map[string]models.OrderStatus
}

func NewActiveOrdersWatcher(src OrderLister, interval time.Duration, log *slog.Logger) *ActiveOrdersWatcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &ActiveOrdersWatcher{src: src, interval: interval, log: log, now: time.Now}
}

// Active returns the ids and statuses currently being watched.
func (w *ActiveOrdersWatcher) Active() map[string]models.OrderStatus {
	out := make(map[string]models.OrderStatus, len(w.active))
	for id, s := range w.active {
		out[id] = s
	}
	return out
}

// Run polls until ctx is done and returns its error.
func (w *ActiveOrdersWatcher) Run(ctx context.Context, emit func(Change)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	first := true
	for {
		list, err := w.src.MyOrders(ctx)
		switch {
		case err == nil:
			w.observe(list, first, emit)
			first = false
		case ctx.Err() != nil:
			return ctx.Err()
		case permanent(err):
			return err
		default:
			w.log.WarnContext(ctx, "poll orders failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ActiveOrdersWatcher) observe(list []models.Order, baseline bool, emit func(Change)) {
	if w.active == nil {
		w.active = map[string]models.OrderStatus{}
	}
	for _, o := range list {
		prev, tracked := w.active[o.ID]
		switch {
		case tracked && prev != o.Status:
			emit(Change{OrderID: o.ID, From: prev, To: o.Status, Order: o, At: w.now()})
		case !tracked && !o.Status.Terminal() && !baseline:
			// placed since the last poll
			emit(Change{OrderID: o.ID, To: o.Status, Order: o, At: w.now()})
		}
		if o.Status.Terminal() {
			delete(w.active, o.ID)
		} else {
			w.active[o.ID] = o.Status
		}
	}
}

// IsDone reports whether err ended a Run normally.
func IsDone(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
