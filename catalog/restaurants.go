package catalog

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/events"
	"food-ordering-api/models"
	"food-ordering-api/policy"
	"food-ordering-api/statemachine"
	"food-ordering-api/validation"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type AddressInput struct {
	Street    string   `json:"street" validate:"required,max=100"`
	City      string   `json:"city" validate:"required,max=50"`
	State     string   `json:"state" validate:"required,max=50"`
	ZipCode   string   `json:"zipCode" validate:"required,max=12"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

func (a AddressInput) location() models.Location {
	return models.Location{
		PostalAddress: models.PostalAddress{
			Street:  strings.TrimSpace(a.Street),
			City:    strings.TrimSpace(a.City),
			State:   strings.TrimSpace(a.State),
			ZipCode: strings.TrimSpace(a.ZipCode),
		},
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
	}
}

type RestaurantInput struct {
	Name                  string             `json:"name" validate:"required,max=100"`
	Description           string             `json:"description" validate:"required,max=500"`
	Cuisine               models.Cuisine     `json:"cuisine" validate:"required"`
	Address               AddressInput       `json:"address"`
	Phone                 string             `json:"phone" validate:"required,max=20"`
	Email                 string             `json:"email" validate:"required,email_rfc"`
	Images                []string           `json:"images" validate:"max=5"`
	Hours                 models.WeeklyHours `json:"hours"`
	DeliveryFee           *decimal.Decimal   `json:"deliveryFee"`
	MinimumOrder          *decimal.Decimal   `json:"minimumOrder"`
	EstimatedDeliveryTime string             `json:"estimatedDeliveryTime" validate:"max=30"`
	Tags                  []string           `json:"tags"`
}

func (in *RestaurantInput) validate() error {
	var extra []apperr.FieldError
	if in.Cuisine != "" && !in.Cuisine.Valid() {
		extra = append(extra, cuisineError())
	}
	extra = append(extra, checkCoordinates(in.Address.Latitude, in.Address.Longitude)...)
	extra = append(extra, checkTags(in.Tags)...)
	extra = append(extra, checkHours(in.Hours)...)
	extra = append(extra, checkAmount("deliveryFee", in.DeliveryFee)...)
	extra = append(extra, checkAmount("minimumOrder", in.MinimumOrder)...)
	return validation.Struct(in, extra...)
}

// RestaurantUpdate lists what an owner may change. Ownership and approval are
// deliberately absent.
type RestaurantUpdate struct {
	Name                  *string             `json:"name" validate:"omitempty,max=100"`
	Description           *string             `json:"description" validate:"omitempty,max=500"`
	Cuisine               *models.Cuisine     `json:"cuisine"`
	Address               *AddressInput       `json:"address"`
	Phone                 *string             `json:"phone" validate:"omitempty,max=20"`
	Email                 *string             `json:"email" validate:"omitempty,email_rfc"`
	Images                *[]string           `json:"images" validate:"omitempty,max=5"`
	Hours                 *models.WeeklyHours `json:"hours"`
	DeliveryFee           *decimal.Decimal    `json:"deliveryFee"`
	MinimumOrder          *decimal.Decimal    `json:"minimumOrder"`
	EstimatedDeliveryTime *string             `json:"estimatedDeliveryTime" validate:"omitempty,max=30"`
	Tags                  *[]string           `json:"tags"`
	IsActive              *bool               `json:"isActive"`
}

func (u *RestaurantUpdate) validate() error {
	var extra []apperr.FieldError
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		extra = append(extra, apperr.Field("name", "name cannot be empty"))
	}
	if u.Cuisine != nil && !u.Cuisine.Valid() {
		extra = append(extra, cuisineError())
	}
	if u.Address != nil {
		extra = append(extra, checkCoordinates(u.Address.Latitude, u.Address.Longitude)...)
	}
	if u.Tags != nil {
		extra = append(extra, checkTags(*u.Tags)...)
	}
	if u.Hours != nil {
		extra = append(extra, checkHours(*u.Hours)...)
	}
	extra = append(extra, checkAmount("deliveryFee", u.DeliveryFee)...)
	extra = append(extra, checkAmount("minimumOrder", u.MinimumOrder)...)
	return validation.Struct(u, extra...)
}

func cuisineError() apperr.FieldError {
	names := make([]string, len(models.Cuisines))
	for i, c := range models.Cuisines {
		names[i] = string(c)
	}
	return apperr.Field("cuisine", "cuisine must be one of: "+strings.Join(names, ", "))
}

func checkCoordinates(lat, lng *float64) []apperr.FieldError {
	if (lat == nil) != (lng == nil) {
		return []apperr.FieldError{apperr.Field("address", "latitude and longitude must be given together")}
	}
	return nil
}

func checkTags(tags []string) []apperr.FieldError {
	var out []apperr.FieldError
	for _, t := range tags {
		if !contains(models.RestaurantTags, t) {
			out = append(out, apperr.Field("tags", "Unknown tag '"+t+"'"))
		}
	}
	return out
}

func checkHours(w models.WeeklyHours) []apperr.FieldError {
	days := []struct {
		name string
		h    models.DayHours
	}{
		{"monday", w.Monday}, {"tuesday", w.Tuesday}, {"wednesday", w.Wednesday},
		{"thursday", w.Thursday}, {"friday", w.Friday}, {"saturday", w.Saturday}, {"sunday", w.Sunday},
	}
	var out []apperr.FieldError
	for _, d := range days {
		for _, v := range []string{d.h.Open, d.h.Close} {
			if v == "" {
				continue
			}
			if _, err := time.Parse("15:04", v); err != nil {
				out = append(out, apperr.Field("hours."+d.name, "times must be HH:MM"))
				break
			}
		}
	}
	return out
}

func checkAmount(field string, d *decimal.Decimal) []apperr.FieldError {
	if d != nil && d.IsNegative() {
		return []apperr.FieldError{apperr.Field(field, field+" cannot be negative")}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func ownerConflict() error {
	return apperr.Conflict("You already have a restaurant registered",
		apperr.Field("owner", "Each owner can register only one restaurant"))
}

// CreateRestaurant registers the caller's restaurant. It starts unapproved.
func (s *Service) CreateRestaurant(ctx context.Context, owner policy.Identity, in RestaurantInput) (*models.Restaurant, error) {
	if err := policy.Authorize(owner, policy.ActionCreateRestaurant, policy.Resource{}); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Restaurant{}).Where("owner_id = ?", owner.ID).Count(&count).Error; err != nil {
		return nil, apperr.Dependency("check existing restaurant", err)
	}
	if count > 0 {
		return nil, ownerConflict()
	}

	r := &models.Restaurant{
		OwnerID:               owner.ID,
		Name:                  strings.TrimSpace(in.Name),
		Description:           in.Description,
		Cuisine:               in.Cuisine,
		Address:               in.Address.location(),
		Phone:                 in.Phone,
		Email:                 strings.ToLower(strings.TrimSpace(in.Email)),
		Images:                in.Images,
		Hours:                 in.Hours,
		DeliveryFee:           models.DefaultDeliveryFee,
		MinimumOrder:          models.DefaultMinimumOrder,
		EstimatedDeliveryTime: models.DefaultEstimatedDeliveryTime,
		IsApproved:            false,
		IsActive:              true,
		Tags:                  in.Tags,
	}
	if in.DeliveryFee != nil {
		r.DeliveryFee = *in.DeliveryFee
	}
	if in.MinimumOrder != nil {
		r.MinimumOrder = *in.MinimumOrder
	}
	if in.EstimatedDeliveryTime != "" {
		r.EstimatedDeliveryTime = in.EstimatedDeliveryTime
	}

	// the unique index on owner_id settles a race the count above cannot
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if apperr.IsDuplicateKey(err) {
			return nil, ownerConflict()
		}
		return nil, apperr.Dependency("create restaurant", err)
	}
	s.log.InfoContext(ctx, "restaurant registered", "restaurant_id", r.ID, "owner_id", owner.ID)
	return r, nil
}

func (s *Service) findRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	var r models.Restaurant
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, apperr.FromStore("find restaurant", err, "Restaurant not found")
	}
	return &r, nil
}

// GetRestaurant returns a restaurant the caller is allowed to see. Hidden
// restaurants look exactly like missing ones.
func (s *Service) GetRestaurant(ctx context.Context, id policy.Identity, restaurantID string) (*models.Restaurant, error) {
	r, err := s.findRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if !policy.CanViewRestaurant(id, r, s.requireApproval) {
		return nil, apperr.NotFound("Restaurant not found")
	}
	return r, nil
}

// GetMyRestaurant returns the restaurant owned by the caller.
func (s *Service) GetMyRestaurant(ctx context.Context, owner policy.Identity) (*models.Restaurant, error) {
	if owner.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	var r models.Restaurant
	if err := s.db.WithContext(ctx).First(&r, "owner_id = ?", owner.ID).Error; err != nil {
		return nil, apperr.FromStore("find restaurant", err, "No restaurant found for this user")
	}
	return &r, nil
}

func (s *Service) UpdateRestaurant(ctx context.Context, id policy.Identity, restaurantID string, upd RestaurantUpdate) (*models.Restaurant, error) {
	if id.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	r, err := s.findRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(id, policy.ActionUpdateRestaurant, policy.Resource{OwnerID: r.OwnerID}); err != nil {
		return nil, err
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	oldImages := r.Images
	if upd.Name != nil {
		r.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Cuisine != nil {
		r.Cuisine = *upd.Cuisine
	}
	if upd.Address != nil {
		r.Address = upd.Address.location()
	}
	if upd.Phone != nil {
		r.Phone = *upd.Phone
	}
	if upd.Email != nil {
		r.Email = strings.ToLower(strings.TrimSpace(*upd.Email))
	}
	if upd.Images != nil {
		r.Images = *upd.Images
	}
	if upd.Hours != nil {
		r.Hours = *upd.Hours
	}
	if upd.DeliveryFee != nil {
		r.DeliveryFee = *upd.DeliveryFee
	}
	if upd.MinimumOrder != nil {
		r.MinimumOrder = *upd.MinimumOrder
	}
	if upd.EstimatedDeliveryTime != nil {
		r.EstimatedDeliveryTime = *upd.EstimatedDeliveryTime
	}
	if upd.Tags != nil {
		r.Tags = *upd.Tags
	}
	if upd.IsActive != nil {
		r.IsActive = *upd.IsActive
	}

	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return nil, apperr.FromStore("update restaurant", err, "Restaurant not found")
	}
	if upd.Images != nil {
		s.deleteBlobs(ctx, removed(oldImages, r.Images)...)
	}
	return r, nil
}

func removed(before, after []string) []string {
	var out []string
	for _, v := range before {
		if !contains(after, v) {
			out = append(out, v)
		}
	}
	return out
}

// ApproveRestaurant makes a restaurant eligible for public listings.
func (s *Service) ApproveRestaurant(ctx context.Context, admin policy.Identity, restaurantID string) (*models.Restaurant, error) {
	if err := policy.Authorize(admin, policy.ActionApproveRestaurant, policy.Resource{}); err != nil {
		return nil, err
	}
	r, err := s.findRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if r.IsApproved {
		return r, nil
	}
	if err := s.db.WithContext(ctx).Model(r).Update("is_approved", true).Error; err != nil {
		return nil, apperr.Dependency("approve restaurant", err)
	}
	r.IsApproved = true
	s.log.InfoContext(ctx, "restaurant approved", "restaurant_id", r.ID, "admin_id", admin.ID)
	return r, nil
}

// DeleteRestaurant removes a restaurant with its menu. Orders still in flight
// are cancelled; finished orders are kept for their customers.
func (s *Service) DeleteRestaurant(ctx context.Context, id policy.Identity, restaurantID string) error {
	if id.IsAnonymous() {
		return apperr.Unauthenticated("Authentication required")
	}
	r, err := s.findRestaurant(ctx, restaurantID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(id, policy.ActionDeleteRestaurant, policy.Resource{OwnerID: r.OwnerID}); err != nil {
		return err
	}

	var images []string
	var cancelled []models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.MenuItem
		if err := tx.Select("id", "image").Where("restaurant_id = ?", r.ID).Find(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			if it.Image != "" {
				images = append(images, it.Image)
			}
		}
		if err := tx.Where("restaurant_id = ?", r.ID).Delete(&models.MenuItem{}).Error; err != nil {
			return err
		}

		var open []models.Order
		if err := tx.Where("restaurant_id = ? AND status NOT IN ?", r.ID,
			[]models.OrderStatus{models.StatusDelivered, models.StatusCancelled}).Find(&open).Error; err != nil {
			return err
		}
		for i := range open {
			o := open[i]
			if err := statemachine.CanTransition(o.Status, models.StatusCancelled); err != nil {
				return err
			}
			if err := tx.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", models.StatusCancelled).Error; err != nil {
				return err
			}
			h := models.OrderStatusHistory{
				OrderID:    o.ID,
				FromStatus: o.Status,
				ToStatus:   models.StatusCancelled,
				ChangedBy:  id.ID,
				Note:       "Restaurant removed",
			}
			if err := tx.Create(&h).Error; err != nil {
				return err
			}
			cancelled = append(cancelled, o)
		}

		return tx.Delete(r).Error
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Dependency("delete restaurant", err)
	}

	for _, o := range cancelled {
		s.metrics.StatusChanged(string(models.StatusCancelled))
		e := events.Event{
			Type:           events.TypeOrderStatusChanged,
			OrderID:        o.ID,
			RestaurantID:   o.RestaurantID,
			CustomerID:     o.CustomerID,
			Status:         string(models.StatusCancelled),
			PreviousStatus: string(o.Status),
			ChangedBy:      id.ID,
			OccurredAt:     s.now(),
		}
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.WarnContext(ctx, "publish order event failed", "order_id", o.ID, "error", err)
		}
	}
	s.deleteBlobs(ctx, append(images, r.Images...)...)
	s.log.InfoContext(ctx, "restaurant deleted", "restaurant_id", r.ID, "cancelled_orders", len(cancelled))
	return nil
}

type ListFilter struct {
	Cuisine string
	Search  string
	Near    *Point
	// MaxDistance is in meters.
	MaxDistance float64
	Page        int
	PageSize    int
}

type RestaurantPage struct {
	Restaurants []models.Restaurant `json:"restaurants"`
	Total       int64               `json:"total"`
	TotalPages  int                 `json:"totalPages"`
	CurrentPage int                 `json:"currentPage"`
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	if f.MaxDistance <= 0 {
		f.MaxDistance = DefaultMaxDistance
	}
}

// ListRestaurants is the public directory, best rated first.
func (s *Service) ListRestaurants(ctx context.Context, f ListFilter) (*RestaurantPage, error) {
	f.normalize()

	q := s.db.WithContext(ctx).Model(&models.Restaurant{}).Where("is_active = ?", true)
	if s.requireApproval {
		q = q.Where("is_approved = ?", true)
	}
	if f.Cuisine != "" {
		q = q.Where("cuisine = ?", f.Cuisine)
	}
	if clause, args := searchClause(f.Search); clause != "" {
		q = q.Where(clause, args...)
	}
	q = q.Session(&gorm.Session{})
	ordered := q.Order("rating_average DESC").Order("created_at DESC")

	page := &RestaurantPage{CurrentPage: f.Page, Restaurants: []models.Restaurant{}}

	if f.Near == nil {
		if err := q.Count(&page.Total).Error; err != nil {
			return nil, apperr.Dependency("count restaurants", err)
		}
		if err := ordered.Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).Find(&page.Restaurants).Error; err != nil {
			return nil, apperr.Dependency("list restaurants", err)
		}
	} else {
		minLat, maxLat, minLng, maxLng := boundingBox(*f.Near, f.MaxDistance)
		var candidates []models.Restaurant
		err := ordered.Where("address_latitude BETWEEN ? AND ? AND address_longitude BETWEEN ? AND ?",
			minLat, maxLat, minLng, maxLng).Find(&candidates).Error
		if err != nil {
			return nil, apperr.Dependency("list restaurants", err)
		}
		var near []models.Restaurant
		for _, r := range candidates {
			if !r.Address.HasCoordinates() {
				continue
			}
			if Distance(*f.Near, Point{Lat: *r.Address.Latitude, Lng: *r.Address.Longitude}) <= f.MaxDistance {
				near = append(near, r)
			}
		}
		page.Total = int64(len(near))
		start := (f.Page - 1) * f.PageSize
		if start < len(near) {
			end := start + f.PageSize
			if end > len(near) {
				end = len(near)
			}
			page.Restaurants = near[start:end]
		}
	}

	page.TotalPages = int(math.Ceil(float64(page.Total) / float64(f.PageSize)))
	return page, nil
}

// searchClause matches any whitespace-separated term against name, description
// or cuisine, case-insensitively.
func searchClause(search string) (string, []interface{}) {
	terms := strings.Fields(strings.ToLower(search))
	if len(terms) == 0 {
		return "", nil
	}
	var parts []string
	var args []interface{}
	for _, t := range terms {
		like := "%" + escapeLike(t) + "%"
		parts = append(parts,
			`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(cuisine) LIKE ? ESCAPE '\'`)
		args = append(args, like, like, like)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type AdminRestaurantFilter struct {
	// Approved filters by approval state when set.
	Approved *bool
}

// ListAllRestaurants is the admin view, including unapproved and inactive ones.
func (s *Service) ListAllRestaurants(ctx context.Context, admin policy.Identity, f AdminRestaurantFilter) ([]models.Restaurant, error) {
	if err := policy.Authorize(admin, policy.ActionListAllRestaurants, policy.Resource{}); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if f.Approved != nil {
		q = q.Where("is_approved = ?", *f.Approved)
	}
	list := []models.Restaurant{}
	if err := q.Find(&list).Error; err != nil {
		return nil, apperr.Dependency("list restaurants", err)
	}
	return list, nil
}
