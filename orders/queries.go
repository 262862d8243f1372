package orders

import (
	"context"
	"strings"

	"food-ordering-api/apperr"
	"food-ordering-api/models"
	"food-ordering-api/policy"
)

// GetOrder returns an order to its customer, its restaurant's owner or an admin.
func (s *Service) GetOrder(ctx context.Context, id policy.Identity, orderID string) (*models.Order, error) {
	if id.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	o, owner, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(id, policy.ActionReadOrder, policy.Resource{OwnerID: owner, CustomerID: o.CustomerID}); err != nil {
		return nil, err
	}
	return o, nil
}

// History lists every status change of an order, oldest first.
func (s *Service) History(ctx context.Context, id policy.Identity, orderID string) ([]models.OrderStatusHistory, error) {
	o, err := s.GetOrder(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	hist := []models.OrderStatusHistory{}
	if err := s.db.WithContext(ctx).Where("order_id = ?", o.ID).Order("id ASC").Find(&hist).Error; err != nil {
		return nil, apperr.Dependency("load order history", err)
	}
	return hist, nil
}

// ListOrdersForCustomer returns the caller's orders, newest first.
func (s *Service) ListOrdersForCustomer(ctx context.Context, customer policy.Identity) ([]models.Order, error) {
	if customer.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	list := []models.Order{}
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Restaurant").
		Where("customer_id = ?", customer.ID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, apperr.Dependency("list orders", err)
	}
	return list, nil
}

type RestaurantOrderFilter struct {
	// Status filters by order status; "" and "all" mean every status.
	Status string
	Limit  int
}

func parseStatusFilter(raw string) (models.OrderStatus, error) {
	if raw == "" || strings.EqualFold(raw, "all") {
		return "", nil
	}
	st := models.OrderStatus(raw)
	if !st.Valid() {
		return "", apperr.Validation(apperr.Field("status", "Unknown order status '"+raw+"'"))
	}
	return st, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

// ListOrdersForRestaurant is the kitchen queue of the caller's restaurant.
func (s *Service) ListOrdersForRestaurant(ctx context.Context, owner policy.Identity, f RestaurantOrderFilter) ([]models.Order, error) {
	if owner.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	status, err := parseStatusFilter(f.Status)
	if err != nil {
		return nil, err
	}
	var r models.Restaurant
	if err := s.db.WithContext(ctx).Select("id").First(&r, "owner_id = ?", owner.ID).Error; err != nil {
		return nil, apperr.FromStore("find restaurant", err, "No restaurant found for this user")
	}

	q := s.db.WithContext(ctx).Preload("Items").Preload("Customer").Where("restaurant_id = ?", r.ID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	list := []models.Order{}
	if err := q.Order("created_at DESC").Limit(clampLimit(f.Limit)).Find(&list).Error; err != nil {
		return nil, apperr.Dependency("list restaurant orders", err)
	}
	return list, nil
}

type AdminOrderFilter struct {
	Status       string
	RestaurantID string
	Limit        int
}

// AdminOrderList carries a page of orders plus a count of every order per status.
type AdminOrderList struct {
	Orders  []models.Order               `json:"orders"`
	Total   int64                        `json:"total"`
	Summary map[models.OrderStatus]int64 `json:"summary"`
}

// ListAllOrders is the admin dashboard across all restaurants.
func (s *Service) ListAllOrders(ctx context.Context, admin policy.Identity, f AdminOrderFilter) (*AdminOrderList, error) {
	if err := policy.Authorize(admin, policy.ActionListAllOrders, policy.Resource{}); err != nil {
		return nil, err
	}
	status, err := parseStatusFilter(f.Status)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Preload("Items").Preload("Restaurant").Preload("Customer")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if f.RestaurantID != "" {
		q = q.Where("restaurant_id = ?", f.RestaurantID)
	}
	out := &AdminOrderList{Orders: []models.Order{}, Summary: map[models.OrderStatus]int64{}}
	if err := q.Order("created_at DESC").Limit(clampLimit(f.Limit)).Find(&out.Orders).Error; err != nil {
		return nil, apperr.Dependency("list orders", err)
	}

	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, apperr.Dependency("summarise orders", err)
	}
	for _, st := range models.OrderStatuses {
		out.Summary[st] = 0
	}
	for _, row := range rows {
		out.Summary[row.Status] = row.Count
		out.Total += row.Count
	}
	return out, nil
}
