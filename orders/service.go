// Package orders runs the order lifecycle: checkout, status changes, ratings
// and refund requests. Prices are always recomputed from the catalog.
package orders

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/events"
	"food-ordering-api/metrics"
	"food-ordering-api/models"
)

// DeliveryLead is added to the checkout time to estimate delivery.
const DeliveryLead = 35 * time.Minute

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Options struct {
	// RequireApproval refuses orders for restaurants that are not publicly listed.
	RequireApproval bool
	Publisher       events.Publisher
	Metrics         *metrics.Metrics
	Log             *slog.Logger
}

type Service struct {
	db              *gorm.DB
	requireApproval bool
	publisher       events.Publisher
	metrics         *metrics.Metrics
	log             *slog.Logger
	now             func() time.Time
}

func NewService(db *gorm.DB, opts Options) *Service {
	s := &Service{
		db:              db,
		requireApproval: opts.RequireApproval,
		publisher:       opts.Publisher,
		metrics:         opts.Metrics,
		log:             opts.Log,
		now:             time.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = events.LogPublisher{Log: s.log}
	}
	return s
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "publish order event failed", "type", e.Type, "order_id", e.OrderID, "error", err)
	}
}

// load fetches an order with its items and the owner of its restaurant. The
// owner is empty when the restaurant no longer exists.
func (s *Service) load(ctx context.Context, orderID string) (*models.Order, string, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Restaurant").
		First(&o, "id = ?", orderID).Error
	if err != nil {
		return nil, "", apperr.FromStore("find order", err, "Order not found")
	}
	owner := ""
	if o.Restaurant != nil {
		owner = o.Restaurant.OwnerID
	}
	return &o, owner, nil
}
