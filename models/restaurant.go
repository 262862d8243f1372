package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Cuisine string

const (
	CuisineItalian       Cuisine = "Italian"
	CuisineChinese       Cuisine = "Chinese"
	CuisineIndian        Cuisine = "Indian"
	CuisineMexican       Cuisine = "Mexican"
	CuisineAmerican      Cuisine = "American"
	CuisineThai          Cuisine = "Thai"
	CuisineJapanese      Cuisine = "Japanese"
	CuisineMediterranean Cuisine = "Mediterranean"
	CuisineFastFood      Cuisine = "Fast Food"
	CuisineOther         Cuisine = "Other"
)

// Cuisines lists every accepted cuisine in display order.
var Cuisines = []Cuisine{
	CuisineItalian, CuisineChinese, CuisineIndian, CuisineMexican, CuisineAmerican,
	CuisineThai, CuisineJapanese, CuisineMediterranean, CuisineFastFood, CuisineOther,
}

func (c Cuisine) Valid() bool {
	for _, known := range Cuisines {
		if c == known {
			return true
		}
	}
	return false
}

var RestaurantTags = []string{"Popular", "New", "Fast Delivery", "Healthy", "Vegetarian", "Vegan", "Halal"}

// Location is an address with optional coordinates.
type Location struct {
	PostalAddress `gorm:"embedded"`
	Latitude      *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// HasCoordinates reports whether both coordinates are present.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// DayHours describes one weekday; Open/Close are "HH:MM".
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed"`
}

type WeeklyHours struct {
	Monday    DayHours `json:"monday"`
	Tuesday   DayHours `json:"tuesday"`
	Wednesday DayHours `json:"wednesday"`
	Thursday  DayHours `json:"thursday"`
	Friday    DayHours `json:"friday"`
	Saturday  DayHours `json:"saturday"`
	Sunday    DayHours `json:"sunday"`
}

// Defaults applied when a restaurant registers without its own values.
var (
	DefaultDeliveryFee  = decimal.RequireFromString("10.99")
	DefaultMinimumOrder = decimal.NewFromInt(50)
)

const DefaultEstimatedDeliveryTime = "30-45 min"

type Restaurant struct {
	ID                    string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID               string          `json:"ownerId" gorm:"type:varchar(36);uniqueIndex;not null"`
	Owner                 *User           `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Name                  string          `json:"name" gorm:"not null;index"`
	Description           string          `json:"description"`
	Cuisine               Cuisine         `json:"cuisine" gorm:"index"`
	Address               Location        `json:"address" gorm:"embedded;embeddedPrefix:address_"`
	Phone                 string          `json:"phone"`
	Email                 string          `json:"email"`
	Images                []string        `json:"images" gorm:"serializer:json"`
	Hours                 WeeklyHours     `json:"hours" gorm:"serializer:json"`
	DeliveryFee           decimal.Decimal `json:"deliveryFee" gorm:"type:varchar(32)"`
	MinimumOrder          decimal.Decimal `json:"minimumOrder" gorm:"type:varchar(32)"`
	EstimatedDeliveryTime string          `json:"estimatedDeliveryTime"`
	RatingAverage         float64         `json:"ratingAverage" gorm:"index"`
	RatingCount           int             `json:"ratingCount"`
	IsApproved            bool            `json:"isApproved" gorm:"index"`
	IsActive              bool            `json:"isActive" gorm:"index"`
	Tags                  []string        `json:"tags" gorm:"serializer:json"`
	MenuItems             []MenuItem      `json:"menuItems,omitempty" gorm:"foreignKey:RestaurantID"`
	CreatedAt             time.Time       `json:"createdAt" gorm:"index"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

func (r *Restaurant) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// PubliclyVisible applies the listing rule. requireApproval toggles the approval gate.
func (r *Restaurant) PubliclyVisible(requireApproval bool) bool {
	if !r.IsActive {
		return false
	}
	return !requireApproval || r.IsApproved
}

type MenuCategory string

var MenuCategories = []MenuCategory{
	"Appetizers", "Main Course", "Desserts", "Beverages", "Salads", "Soups", "Sides", "Specials",
}

func (c MenuCategory) Valid() bool {
	for _, known := range MenuCategories {
		if c == known {
			return true
		}
	}
	return false
}

var (
	Allergens   = []string{"Nuts", "Dairy", "Gluten", "Eggs", "Soy", "Fish", "Shellfish", "Sesame"}
	Dietary     = []string{"Vegetarian", "Vegan", "Gluten-Free", "Dairy-Free", "Keto", "Low-Carb", "Halal", "Kosher"}
	SpiceLevels = []string{"None", "Mild", "Medium", "Hot", "Extra Hot"}
)

// Discount is a percentage off the list price until ValidUntil (open-ended when nil).
type Discount struct {
	Percentage decimal.Decimal `json:"percentage"`
	ValidUntil *time.Time      `json:"validUntil,omitempty"`
}

type CustomizationOption struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type CustomizationGroup struct {
	Name           string                `json:"name"`
	Options        []CustomizationOption `json:"options"`
	Required       bool                  `json:"required"`
	MultipleChoice bool                  `json:"multipleChoice"`
}

// Option finds a named option in the group.
func (g CustomizationGroup) Option(name string) (CustomizationOption, bool) {
	for _, o := range g.Options {
		if o.Name == name {
			return o, true
		}
	}
	return CustomizationOption{}, false
}

type MenuItem struct {
	ID              string               `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RestaurantID    string               `json:"restaurantId" gorm:"type:varchar(36);not null;index:idx_menu_restaurant_available"`
	Name            string               `json:"name" gorm:"not null"`
	Description     string               `json:"description"`
	Category        MenuCategory         `json:"category" gorm:"index"`
	Price           decimal.Decimal      `json:"price" gorm:"type:varchar(32);not null"`
	Image           string               `json:"image"`
	Ingredients     []string             `json:"ingredients" gorm:"serializer:json"`
	Allergens       []string             `json:"allergens" gorm:"serializer:json"`
	Dietary         []string             `json:"dietary" gorm:"serializer:json"`
	SpiceLevel      string               `json:"spiceLevel"`
	Calories        *int                 `json:"calories,omitempty"`
	PreparationTime int                  `json:"preparationTime"`
	IsAvailable     bool                 `json:"isAvailable" gorm:"index:idx_menu_restaurant_available"`
	IsPopular       bool                 `json:"isPopular"`
	Discount        Discount             `json:"discount" gorm:"serializer:json"`
	Customizations  []CustomizationGroup `json:"customizations" gorm:"serializer:json"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func (m *MenuItem) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Group finds a customization group by name.
func (m *MenuItem) Group(name string) (CustomizationGroup, bool) {
	for _, g := range m.Customizations {
		if g.Name == name {
			return g, true
		}
	}
	return CustomizationGroup{}, false
}
