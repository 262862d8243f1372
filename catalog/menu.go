package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"food-ordering-api/apperr"
	"food-ordering-api/models"
	"food-ordering-api/policy"
	"food-ordering-api/storage"
	"food-ordering-api/validation"
)

// menuImageDir is where menu item images are stored.
const menuImageDir = "menu-items"

// MenuImageField is the multipart field carrying a menu item image.
const MenuImageField = "menuImage"

const defaultPreparationTime = 15

var hundred = decimal.NewFromInt(100)

type MenuItemInput struct {
	// RestaurantID is only needed by admins; owners always add to their own restaurant.
	RestaurantID    string                      `json:"restaurantId"`
	Name            string                      `json:"name" validate:"required,max=100"`
	Description     string                      `json:"description" validate:"required,max=300"`
	Category        models.MenuCategory         `json:"category" validate:"required"`
	Price           *decimal.Decimal            `json:"price"`
	Image           string                      `json:"image"`
	Ingredients     []string                    `json:"ingredients"`
	Allergens       []string                    `json:"allergens"`
	Dietary         []string                    `json:"dietary"`
	SpiceLevel      string                      `json:"spiceLevel"`
	Calories        *int                        `json:"calories" validate:"omitempty,gte=0"`
	PreparationTime *int                        `json:"preparationTime" validate:"omitempty,gte=1"`
	IsAvailable     *bool                       `json:"isAvailable"`
	IsPopular       bool                        `json:"isPopular"`
	Discount        *models.Discount            `json:"discount"`
	Customizations  []models.CustomizationGroup `json:"customizations"`
}

func (in *MenuItemInput) validate() error {
	var extra []apperr.FieldError
	if in.Price == nil {
		extra = append(extra, apperr.Field("price", "price is required"))
	}
	extra = append(extra, checkMenuFields(&in.Category, in.Price, in.Allergens, in.Dietary, in.SpiceLevel, in.Discount, in.Customizations)...)
	return validation.Struct(in, extra...)
}

type MenuItemUpdate struct {
	Name            *string                      `json:"name" validate:"omitempty,max=100"`
	Description     *string                      `json:"description" validate:"omitempty,max=300"`
	Category        *models.MenuCategory         `json:"category"`
	Price           *decimal.Decimal             `json:"price"`
	Image           *string                      `json:"image"`
	Ingredients     *[]string                    `json:"ingredients"`
	Allergens       *[]string                    `json:"allergens"`
	Dietary         *[]string                    `json:"dietary"`
	SpiceLevel      *string                      `json:"spiceLevel"`
	Calories        *int                         `json:"calories" validate:"omitempty,gte=0"`
	PreparationTime *int                         `json:"preparationTime" validate:"omitempty,gte=1"`
	IsAvailable     *bool                        `json:"isAvailable"`
	IsPopular       *bool                        `json:"isPopular"`
	Discount        *models.Discount             `json:"discount"`
	Customizations  *[]models.CustomizationGroup `json:"customizations"`
}

func (u *MenuItemUpdate) validate() error {
	var extra []apperr.FieldError
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		extra = append(extra, apperr.Field("name", "name cannot be empty"))
	}
	spice := ""
	if u.SpiceLevel != nil {
		spice = *u.SpiceLevel
	}
	var allergens, dietary []string
	if u.Allergens != nil {
		allergens = *u.Allergens
	}
	if u.Dietary != nil {
		dietary = *u.Dietary
	}
	var groups []models.CustomizationGroup
	if u.Customizations != nil {
		groups = *u.Customizations
	}
	extra = append(extra, checkMenuFields(u.Category, u.Price, allergens, dietary, spice, u.Discount, groups)...)
	return validation.Struct(u, extra...)
}

func checkMenuFields(category *models.MenuCategory, price *decimal.Decimal, allergens, dietary []string,
	spice string, discount *models.Discount, groups []models.CustomizationGroup) []apperr.FieldError {
	var out []apperr.FieldError
	if category != nil && *category != "" && !category.Valid() {
		out = append(out, apperr.Field("category", "Unknown category '"+string(*category)+"'"))
	}
	if price != nil && price.IsNegative() {
		out = append(out, apperr.Field("price", "Price cannot be negative"))
	}
	for _, a := range allergens {
		if !contains(models.Allergens, a) {
			out = append(out, apperr.Field("allergens", "Unknown allergen '"+a+"'"))
		}
	}
	for _, d := range dietary {
		if !contains(models.Dietary, d) {
			out = append(out, apperr.Field("dietary", "Unknown dietary tag '"+d+"'"))
		}
	}
	if spice != "" && !contains(models.SpiceLevels, spice) {
		out = append(out, apperr.Field("spiceLevel", "Unknown spice level '"+spice+"'"))
	}
	if discount != nil && (discount.Percentage.IsNegative() || discount.Percentage.GreaterThan(hundred)) {
		out = append(out, apperr.Field("discount.percentage", "Discount must be between 0 and 100"))
	}
	for _, g := range groups {
		if strings.TrimSpace(g.Name) == "" {
			out = append(out, apperr.Field("customizations", "Every customization needs a name"))
			continue
		}
		seen := map[string]bool{}
		for _, o := range g.Options {
			if o.Price.IsNegative() {
				out = append(out, apperr.Field("customizations", "Option prices cannot be negative"))
			}
			if seen[o.Name] {
				out = append(out, apperr.Field("customizations", "Duplicate option '"+o.Name+"' in "+g.Name))
			}
			seen[o.Name] = true
		}
	}
	return out
}

func (s *Service) findMenuItem(ctx context.Context, id string) (*models.MenuItem, *models.Restaurant, error) {
	var item models.MenuItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, nil, apperr.FromStore("find menu item", err, "Menu item not found")
	}
	r, err := s.findRestaurant(ctx, item.RestaurantID)
	if err != nil {
		return nil, nil, err
	}
	return &item, r, nil
}

// CreateMenuItem adds an item to the caller's restaurant. An uploaded image
// takes precedence over an image URL in the input.
func (s *Service) CreateMenuItem(ctx context.Context, id policy.Identity, in MenuItemInput, upload *storage.Upload) (*models.MenuItem, error) {
	if err := policy.Authorize(id, policy.ActionCreateMenuItem, policy.Resource{OwnerID: id.ID}); err != nil {
		return nil, err
	}

	var r *models.Restaurant
	var err error
	if in.RestaurantID != "" {
		r, err = s.findRestaurant(ctx, in.RestaurantID)
		if err != nil {
			return nil, err
		}
		if err := policy.Authorize(id, policy.ActionCreateMenuItem, policy.Resource{OwnerID: r.OwnerID}); err != nil {
			return nil, err
		}
	} else {
		r, err = s.GetMyRestaurant(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	item := &models.MenuItem{
		RestaurantID:    r.ID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Category:        in.Category,
		Price:           *in.Price,
		Image:           in.Image,
		Ingredients:     in.Ingredients,
		Allergens:       in.Allergens,
		Dietary:         in.Dietary,
		SpiceLevel:      in.SpiceLevel,
		Calories:        in.Calories,
		PreparationTime: defaultPreparationTime,
		IsAvailable:     true,
		IsPopular:       in.IsPopular,
		Customizations:  in.Customizations,
	}
	if item.SpiceLevel == "" {
		item.SpiceLevel = "None"
	}
	if in.PreparationTime != nil {
		item.PreparationTime = *in.PreparationTime
	}
	if in.IsAvailable != nil {
		item.IsAvailable = *in.IsAvailable
	}
	if in.Discount != nil {
		item.Discount = *in.Discount
	}

	if upload != nil {
		url, err := s.saveUpload(ctx, menuImageDir, MenuImageField, upload)
		if err != nil {
			return nil, err
		}
		item.Image = url
	}

	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if upload != nil {
			s.deleteBlobs(ctx, item.Image)
		}
		return nil, apperr.FromStore("create menu item", err, "Restaurant not found")
	}
	return item, nil
}

// UpdateMenuItem applies a partial update. A new upload replaces the previous
// image, whose blob is then deleted.
func (s *Service) UpdateMenuItem(ctx context.Context, id policy.Identity, itemID string, upd MenuItemUpdate, upload *storage.Upload) (*models.MenuItem, error) {
	if id.IsAnonymous() {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	item, r, err := s.findMenuItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(id, policy.ActionUpdateMenuItem, policy.Resource{OwnerID: r.OwnerID}); err != nil {
		return nil, err
	}
	if err := upd.validate(); err != nil {
		return nil, err
	}

	oldImage := item.Image
	if upd.Name != nil {
		item.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		item.Description = *upd.Description
	}
	if upd.Category != nil {
		item.Category = *upd.Category
	}
	if upd.Price != nil {
		item.Price = *upd.Price
	}
	if upd.Image != nil {
		item.Image = *upd.Image
	}
	if upd.Ingredients != nil {
		item.Ingredients = *upd.Ingredients
	}
	if upd.Allergens != nil {
		item.Allergens = *upd.Allergens
	}
	if upd.Dietary != nil {
		item.Dietary = *upd.Dietary
	}
	if upd.SpiceLevel != nil {
		item.SpiceLevel = *upd.SpiceLevel
	}
	if upd.Calories != nil {
		item.Calories = upd.Calories
	}
	if upd.PreparationTime != nil {
		item.PreparationTime = *upd.PreparationTime
	}
	if upd.IsAvailable != nil {
		item.IsAvailable = *upd.IsAvailable
	}
	if upd.IsPopular != nil {
		item.IsPopular = *upd.IsPopular
	}
	if upd.Discount != nil {
		item.Discount = *upd.Discount
	}
	if upd.Customizations != nil {
		item.Customizations = *upd.Customizations
	}

	if upload != nil {
		url, err := s.saveUpload(ctx, menuImageDir, MenuImageField, upload)
		if err != nil {
			return nil, err
		}
		item.Image = url
	}

	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		if upload != nil {
			s.deleteBlobs(ctx, item.Image)
		}
		return nil, apperr.FromStore("update menu item", err, "Menu item not found")
	}
	if oldImage != "" && oldImage != item.Image {
		s.deleteBlobs(ctx, oldImage)
	}
	return item, nil
}

func (s *Service) DeleteMenuItem(ctx context.Context, id policy.Identity, itemID string) error {
	if id.IsAnonymous() {
		return apperr.Unauthenticated("Authentication required")
	}
	item, r, err := s.findMenuItem(ctx, itemID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(id, policy.ActionDeleteMenuItem, policy.Resource{OwnerID: r.OwnerID}); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(item).Error; err != nil {
		return apperr.Dependency("delete menu item", err)
	}
	if item.Image != "" {
		s.deleteBlobs(ctx, item.Image)
	}
	return nil
}

type MenuFilter struct {
	Category string
	// AvailableOnly is forced on for callers who do not manage the restaurant.
	AvailableOnly bool
}

// ListMenuItemsByRestaurant returns a menu ordered by category then name.
func (s *Service) ListMenuItemsByRestaurant(ctx context.Context, id policy.Identity, restaurantID string, f MenuFilter) ([]models.MenuItem, error) {
	r, err := s.GetRestaurant(ctx, id, restaurantID)
	if err != nil {
		return nil, err
	}
	if !policy.ManagesInventory(id, r.OwnerID) {
		f.AvailableOnly = true
	}

	q := s.db.WithContext(ctx).Where("restaurant_id = ?", r.ID)
	if f.AvailableOnly {
		q = q.Where("is_available = ?", true)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	items := []models.MenuItem{}
	if err := q.Order("category ASC").Order("name ASC").Find(&items).Error; err != nil {
		return nil, apperr.Dependency("list menu items", err)
	}
	return items, nil
}
