package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/events"
	"food-ordering-api/models"
	"food-ordering-api/policy"
	"food-ordering-api/pricing"
	"food-ordering-api/validation"
)

// OptionChoice names one option; its price is always looked up server side.
type OptionChoice struct {
	Name string `json:"name" validate:"required"`
}

type CustomizationChoice struct {
	Name            string         `json:"name" validate:"required"`
	SelectedOptions []OptionChoice `json:"selectedOptions" validate:"dive"`
}

type ItemInput struct {
	MenuItemID          string                `json:"menuItemId" validate:"required"`
	Quantity            int                   `json:"quantity" validate:"gte=1"`
	Customizations      []CustomizationChoice `json:"customizations" validate:"dive"`
	SpecialInstructions string                `json:"specialInstructions" validate:"max=200"`
}

type CreateOrderInput struct {
	RestaurantID        string                 `json:"restaurantId" validate:"required"`
	Items               []ItemInput            `json:"items" validate:"required,min=1,dive"`
	DeliveryAddress     models.DeliveryAddress `json:"deliveryAddress"`
	ContactInfo         models.ContactInfo     `json:"contactInfo"`
	PaymentMethod       models.PaymentMethod   `json:"paymentMethod" validate:"required"`
	SpecialInstructions string                 `json:"specialInstructions" validate:"max=500"`
	// IdempotencyKey comes from the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-" validate:"max=64"`
}

// CreateOrder checks out an order for the caller. Replaying an idempotency key
// returns the order created by the first request.
func (s *Service) CreateOrder(ctx context.Context, customer policy.Identity, in CreateOrderInput) (*models.Order, error) {
	if err := policy.Authorize(customer, policy.ActionCreateOrder, policy.Resource{CustomerID: customer.ID}); err != nil {
		return nil, err
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.IdempotencyKey != "" {
		if existing, err := s.findByIdempotencyKey(ctx, customer.ID, in.IdempotencyKey); err != nil || existing != nil {
			return existing, err
		}
	}

	var extra []apperr.FieldError
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		extra = append(extra, apperr.Field("paymentMethod",
			"paymentMethod must be one of: Credit Card, Debit Card, PayPal, Cash on Delivery"))
	}

	restaurant, fields, err := s.orderableRestaurant(ctx, in.RestaurantID)
	if err != nil {
		return nil, err
	}
	extra = append(extra, fields...)

	var items []models.OrderItem
	var lines []pricing.Line
	if restaurant != nil {
		items, lines, fields, err = s.priceItems(ctx, restaurant.ID, in.Items)
		if err != nil {
			return nil, err
		}
		extra = append(extra, fields...)
	}
	if err := validation.Struct(&in, extra...); err != nil {
		return nil, err
	}

	breakdown := pricing.Compute(lines, restaurant.DeliveryFee, decimal.Zero)
	for i := range items {
		items[i].LineTotal = breakdown.LineTotals[i]
	}

	now := s.now()
	order := &models.Order{
		CustomerID:            customer.ID,
		RestaurantID:          restaurant.ID,
		Items:                 items,
		Status:                models.StatusPending,
		PaymentMethod:         in.PaymentMethod,
		PaymentStatus:         models.PaymentPending,
		DeliveryAddress:       in.DeliveryAddress,
		ContactInfo:           in.ContactInfo,
		EstimatedDeliveryTime: now.Add(DeliveryLead),
		SpecialInstructions:   in.SpecialInstructions,
		Pricing: models.Pricing{
			Subtotal:       breakdown.Subtotal,
			DeliveryFee:    breakdown.DeliveryFee,
			Tax:            breakdown.Tax,
			DiscountAmount: breakdown.Discount,
			Total:          breakdown.Total,
		},
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		order.IdempotencyKey = &key
	}
	order.ContactInfo.Email = strings.ToLower(strings.TrimSpace(order.ContactInfo.Email))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.StatusPending,
			ChangedBy: customer.ID,
			Note:      "Order placed",
		}).Error
	})
	if err != nil {
		// a concurrent request with the same key won the race
		if order.IdempotencyKey != nil && apperr.IsDuplicateKey(err) {
			existing, findErr := s.findByIdempotencyKey(ctx, customer.ID, *order.IdempotencyKey)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, apperr.Dependency("create order", err)
	}

	s.metrics.OrderCreated()
	s.publish(ctx, events.Event{
		Type:         events.TypeOrderCreated,
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		Status:       string(order.Status),
		Total:        order.Pricing.Total.StringFixed(2),
	})
	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"restaurant_id", order.RestaurantID,
		"customer_id", order.CustomerID,
		"total", order.Pricing.Total.StringFixed(2),
	)
	order.Restaurant = restaurant
	return order, nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, customerID, key string) (*models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ? AND idempotency_key = ?", customerID, key).
		Limit(1).
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Dependency("find order by idempotency key", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// orderableRestaurant returns the restaurant or a field error when it cannot
// take orders. Only store failures are returned as errors.
func (s *Service) orderableRestaurant(ctx context.Context, id string) (*models.Restaurant, []apperr.FieldError, error) {
	if id == "" {
		return nil, nil, nil
	}
	var r models.Restaurant
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if err != nil {
		if err = apperr.FromStore("find restaurant", err, "Restaurant not found"); apperr.KindOf(err) != apperr.KindNotFound {
			return nil, nil, err
		}
		return nil, []apperr.FieldError{apperr.Field("restaurantId", "Restaurant not found")}, nil
	}
	if !r.PubliclyVisible(s.requireApproval) {
		return nil, []apperr.FieldError{apperr.Field("restaurantId", "Restaurant is not accepting orders")}, nil
	}
	return &r, nil, nil
}

// priceItems snapshots each requested line at current catalog prices.
func (s *Service) priceItems(ctx context.Context, restaurantID string, in []ItemInput) ([]models.OrderItem, []pricing.Line, []apperr.FieldError, error) {
	ids := make([]string, 0, len(in))
	for _, it := range in {
		if it.MenuItemID != "" {
			ids = append(ids, it.MenuItemID)
		}
	}
	var found []models.MenuItem
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
			return nil, nil, nil, apperr.Dependency("load menu items", err)
		}
	}
	byID := make(map[string]*models.MenuItem, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	now := s.now()
	var fields []apperr.FieldError
	items := make([]models.OrderItem, 0, len(in))
	lines := make([]pricing.Line, 0, len(in))
	for i, it := range in {
		path := fmt.Sprintf("items[%d]", i)
		if it.MenuItemID == "" {
			continue
		}
		mi, ok := byID[it.MenuItemID]
		switch {
		case !ok:
			fields = append(fields, apperr.Field(path+".menuItemId", "Menu item not found"))
			continue
		case mi.RestaurantID != restaurantID:
			fields = append(fields, apperr.Field(path+".menuItemId", "'"+mi.Name+"' is not on this restaurant's menu"))
			continue
		case !mi.IsAvailable:
			fields = append(fields, apperr.Field(path+".menuItemId", "'"+mi.Name+"' is not available"))
			continue
		}

		selected, optionPrices, errs := resolveCustomizations(path, mi, it.Customizations)
		fields = append(fields, errs...)

		unit := pricing.EffectiveUnitPrice(mi.Price, mi.Discount.Percentage, mi.Discount.ValidUntil, now)
		items = append(items, models.OrderItem{
			MenuItemID:          mi.ID,
			Name:                mi.Name,
			Quantity:            it.Quantity,
			UnitPrice:           unit,
			Customizations:      selected,
			SpecialInstructions: it.SpecialInstructions,
		})
		lines = append(lines, pricing.Line{UnitPrice: unit, Quantity: it.Quantity, OptionPrices: optionPrices})
	}
	return items, lines, fields, nil
}

// resolveCustomizations checks the requested choices against the menu item's
// groups and prices them.
func resolveCustomizations(path string, mi *models.MenuItem, in []CustomizationChoice) ([]models.SelectedCustomization, []decimal.Decimal, []apperr.FieldError) {
	field := path + ".customizations"
	var fields []apperr.FieldError
	var selected []models.SelectedCustomization
	var prices []decimal.Decimal
	chosen := map[string]bool{}

	for _, c := range in {
		group, ok := mi.Group(c.Name)
		if !ok {
			fields = append(fields, apperr.Field(field, "Unknown customization '"+c.Name+"' for "+mi.Name))
			continue
		}
		if chosen[c.Name] {
			fields = append(fields, apperr.Field(field, "Customization '"+c.Name+"' given more than once"))
			continue
		}
		if !group.MultipleChoice && len(c.SelectedOptions) > 1 {
			fields = append(fields, apperr.Field(field, "Choose only one option for '"+c.Name+"'"))
			continue
		}
		sc := models.SelectedCustomization{Name: group.Name}
		seen := map[string]bool{}
		for _, choice := range c.SelectedOptions {
			opt, ok := group.Option(choice.Name)
			if !ok {
				fields = append(fields, apperr.Field(field, "Unknown option '"+choice.Name+"' for '"+c.Name+"'"))
				continue
			}
			if seen[opt.Name] {
				continue
			}
			seen[opt.Name] = true
			sc.SelectedOptions = append(sc.SelectedOptions, models.SelectedOption{Name: opt.Name, Price: opt.Price})
			prices = append(prices, opt.Price)
		}
		if len(sc.SelectedOptions) > 0 {
			chosen[c.Name] = true
			selected = append(selected, sc)
		}
	}

	for _, g := range mi.Customizations {
		if g.Required && !chosen[g.Name] {
			fields = append(fields, apperr.Field(field, "'"+g.Name+"' is required for "+mi.Name))
		}
	}
	return selected, prices, fields
}
