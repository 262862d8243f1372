package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/events"
	"food-ordering-api/models"
	"food-ordering-api/policy"
	"food-ordering-api/statemachine"
	"food-ordering-api/validation"
)

var (
	errStaleStatus  = errors.New("order status changed concurrently")
	errAlreadyRated = errors.New("order already rated")
)

// UpdateOrderStatus moves an order along the state machine on behalf of its
// restaurant. Asking for the current status changes nothing.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor policy.Identity, orderID string, to models.OrderStatus, note string) (*models.Order, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	o, owner, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionUpdateOrderStatus, policy.Resource{OwnerID: owner, CustomerID: o.CustomerID}); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, statemachine.CanTransition(o.Status, to)
	}
	if to == o.Status {
		return o, nil
	}
	if err := statemachine.CanTransition(o.Status, to); err != nil {
		return nil, err
	}

	from := o.Status
	now := s.now()
	updates := map[string]interface{}{"status": to}
	if to == models.StatusDelivered && o.ActualDeliveryTime == nil {
		updates["actual_delivery_time"] = now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the status guard makes two racing transitions from the same state
		// resolve to exactly one winner
		res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", o.ID, from).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStaleStatus
		}
		return tx.Create(&models.OrderStatusHistory{
			OrderID:    o.ID,
			FromStatus: from,
			ToStatus:   to,
			ChangedBy:  actor.ID,
			Note:       strings.TrimSpace(note),
		}).Error
	})
	if errors.Is(err, errStaleStatus) {
		return nil, apperr.Conflict("Order status was changed by someone else; reload and try again")
	}
	if err != nil {
		return nil, apperr.Dependency("update order status", err)
	}

	o.Status = to
	if _, stamped := updates["actual_delivery_time"]; stamped {
		o.ActualDeliveryTime = &now
	}

	s.metrics.StatusChanged(string(to))
	s.publish(ctx, events.Event{
		Type:           events.TypeOrderStatusChanged,
		OrderID:        o.ID,
		RestaurantID:   o.RestaurantID,
		CustomerID:     o.CustomerID,
		Status:         string(to),
		PreviousStatus: string(from),
		ChangedBy:      actor.ID,
	})
	s.log.InfoContext(ctx, "order status changed", "order_id", o.ID, "from", from, "to", to, "by", actor.ID)
	return o, nil
}

type RatingInput struct {
	Food     int    `json:"food" validate:"gte=1,lte=5"`
	Delivery int    `json:"delivery" validate:"gte=1,lte=5"`
	Overall  int    `json:"overall" validate:"gte=1,lte=5"`
	Comment  string `json:"comment" validate:"max=500"`
}

// RateOrder records the customer's rating of a delivered order and folds the
// overall score into the restaurant's running average.
func (s *Service) RateOrder(ctx context.Context, customer policy.Identity, orderID string, in RatingInput) (*models.Order, error) {
	if customer.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	o, owner, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(customer, policy.ActionRateOrder, policy.Resource{OwnerID: owner, CustomerID: o.CustomerID}); err != nil {
		return nil, err
	}
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if o.Status != models.StatusDelivered {
		return nil, apperr.Validation(apperr.Field("status", "Only delivered orders can be rated"))
	}
	if o.Rating != nil {
		return nil, apperr.Conflict("This order has already been rated")
	}

	rating := &models.OrderRating{
		Food:     in.Food,
		Delivery: in.Delivery,
		Overall:  in.Overall,
		Comment:  strings.TrimSpace(in.Comment),
		RatedAt:  s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{ID: o.ID}).Where("rating IS NULL").Select("Rating").Updates(models.Order{Rating: rating})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyRated
		}
		var r models.Restaurant
		err := tx.Select("id", "rating_average", "rating_count").First(&r, "id = ?", o.RestaurantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		count := r.RatingCount + 1
		avg := (r.RatingAverage*float64(r.RatingCount) + float64(in.Overall)) / float64(count)
		return tx.Model(&models.Restaurant{}).Where("id = ?", r.ID).Updates(map[string]interface{}{
			"rating_average": avg,
			"rating_count":   count,
		}).Error
	})
	if errors.Is(err, errAlreadyRated) {
		return nil, apperr.Conflict("This order has already been rated")
	}
	if err != nil {
		return nil, apperr.Dependency("rate order", err)
	}
	o.Rating = rating
	return o, nil
}

type RefundInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
	// Amount defaults to the order total.
	Amount *decimal.Decimal `json:"amount"`
}

// RequestRefund files a refund request for a finished order. Processing it is
// left to the payment back office.
func (s *Service) RequestRefund(ctx context.Context, customer policy.Identity, orderID string, in RefundInput) (*models.Order, error) {
	if customer.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	o, owner, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(customer, policy.ActionRequestRefund, policy.Resource{OwnerID: owner, CustomerID: o.CustomerID}); err != nil {
		return nil, err
	}

	amount := o.Pricing.Total
	var extra []apperr.FieldError
	if in.Amount != nil {
		amount = *in.Amount
		if !amount.IsPositive() {
			extra = append(extra, apperr.Field("amount", "amount must be greater than zero"))
		} else if amount.GreaterThan(o.Pricing.Total) {
			extra = append(extra, apperr.Field("amount", "amount cannot exceed the order total of "+o.Pricing.Total.StringFixed(2)))
		}
	}
	if err := validation.Struct(&in, extra...); err != nil {
		return nil, err
	}
	if !o.Status.Terminal() {
		return nil, apperr.Validation(apperr.Field("status", "Refunds can only be requested for delivered or cancelled orders"))
	}
	if o.Refund != nil && o.Refund.Requested {
		return nil, apperr.Conflict("A refund has already been requested for this order")
	}

	refund := &models.Refund{
		Requested:   true,
		Reason:      strings.TrimSpace(in.Reason),
		Amount:      amount,
		Status:      models.RefundPending,
		RequestedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Model(&models.Order{ID: o.ID}).Select("Refund").Updates(models.Order{Refund: refund}).Error; err != nil {
		return nil, apperr.Dependency("request refund", err)
	}
	o.Refund = refund
	s.log.InfoContext(ctx, "refund requested", "order_id", o.ID, "amount", amount.StringFixed(2))
	return o, nil
}
