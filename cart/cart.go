// Package cart accumulates a customer's selections from one restaurant before
// checkout. Its totals are for display; the server reprices every order.
package cart

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"food-ordering-api/models"
	"food-ordering-api/orders"
	"food-ordering-api/pricing"
)

var (
	ErrDifferentRestaurant = errors.New("cart already holds items from another restaurant")
	ErrLineNotFound        = errors.New("cart line not found")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
	ErrUnknownOption       = errors.New("unknown customization option")
)

// Line is one menu item with its chosen options.
type Line struct {
	ID                  string                       `json:"id"`
	MenuItem            models.MenuItem              `json:"menuItem"`
	Quantity            int                          `json:"quantity"`
	Customizations      []orders.CustomizationChoice `json:"customizations"`
	SpecialInstructions string                       `json:"specialInstructions,omitempty"`
}

type Cart struct {
	Restaurant *models.Restaurant `json:"restaurant"`
	Items      []Line             `json:"items"`

	now func() time.Time
}

func New() *Cart {
	return &Cart{now: time.Now}
}

func (c *Cart) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// CanAddFrom reports whether items from restaurantID may join the cart.
func (c *Cart) CanAddFrom(restaurantID string) bool {
	return len(c.Items) == 0 || (c.Restaurant != nil && c.Restaurant.ID == restaurantID)
}

// Add puts qty of item into the cart. An identical item with identical
// customizations is merged into the existing line.
func (c *Cart) Add(r models.Restaurant, item models.MenuItem, qty int, choices []orders.CustomizationChoice, note string) (*Line, error) {
	if !c.CanAddFrom(r.ID) {
		return nil, ErrDifferentRestaurant
	}
	if item.RestaurantID != "" && item.RestaurantID != r.ID {
		return nil, fmt.Errorf("menu item %s belongs to another restaurant", item.ID)
	}
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	if _, err := optionPrices(item, choices); err != nil {
		return nil, err
	}

	for i := range c.Items {
		l := &c.Items[i]
		if l.MenuItem.ID == item.ID && sameChoices(l.Customizations, choices) {
			l.Quantity += qty
			return l, nil
		}
	}

	if len(c.Items) == 0 {
		rc := r
		c.Restaurant = &rc
	}
	c.Items = append(c.Items, Line{
		ID:                  uuid.NewString(),
		MenuItem:            item,
		Quantity:            qty,
		Customizations:      choices,
		SpecialInstructions: note,
	})
	return &c.Items[len(c.Items)-1], nil
}

func sameChoices(a, b []orders.CustomizationChoice) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (c *Cart) UpdateQuantity(lineID string, qty int) error {
	for i := range c.Items {
		if c.Items[i].ID != lineID {
			continue
		}
		if qty <= 0 {
			return c.Remove(lineID)
		}
		c.Items[i].Quantity = qty
		return nil
	}
	return ErrLineNotFound
}

func (c *Cart) Remove(lineID string) error {
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			if len(c.Items) == 0 {
				c.Restaurant = nil
			}
			return nil
		}
	}
	return ErrLineNotFound
}

func (c *Cart) Clear() {
	c.Items = nil
	c.Restaurant = nil
}

// ItemCount sums quantities across lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

// Breakdown prices the cart the way checkout will, using the menu snapshots
// held in the cart.
func (c *Cart) Breakdown() pricing.Breakdown {
	now := c.clock()
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, l := range c.Items {
		opts, _ := optionPrices(l.MenuItem, l.Customizations)
		d := l.MenuItem.Discount
		lines = append(lines, pricing.Line{
			UnitPrice:    pricing.EffectiveUnitPrice(l.MenuItem.Price, d.Percentage, d.ValidUntil, now),
			Quantity:     l.Quantity,
			OptionPrices: opts,
		})
	}
	return pricing.Compute(lines, c.DeliveryFee(), decimal.Zero)
}

func (c *Cart) Subtotal() decimal.Decimal { return c.Breakdown().Subtotal }

// DeliveryFee is zero for an empty cart.
func (c *Cart) DeliveryFee() decimal.Decimal {
	if c.Restaurant == nil || len(c.Items) == 0 {
		return decimal.Zero
	}
	return c.Restaurant.DeliveryFee
}

func (c *Cart) Tax() decimal.Decimal { return c.Breakdown().Tax }

func (c *Cart) Total() decimal.Decimal { return c.Breakdown().Total }

// OrderInput builds a checkout request. Only ids, quantities and option names
// travel; prices are looked up again by the server.
func (c *Cart) OrderInput(addr models.DeliveryAddress, contact models.ContactInfo, method models.PaymentMethod, note string) (orders.CreateOrderInput, error) {
	if len(c.Items) == 0 || c.Restaurant == nil {
		return orders.CreateOrderInput{}, errors.New("cart is empty")
	}
	in := orders.CreateOrderInput{
		RestaurantID:        c.Restaurant.ID,
		DeliveryAddress:     addr,
		ContactInfo:         contact,
		PaymentMethod:       method,
		SpecialInstructions: note,
		IdempotencyKey:      uuid.NewString(),
	}
	for _, l := range c.Items {
		in.Items = append(in.Items, orders.ItemInput{
			MenuItemID:          l.MenuItem.ID,
			Quantity:            l.Quantity,
			Customizations:      l.Customizations,
			SpecialInstructions: l.SpecialInstructions,
		})
	}
	return in, nil
}

func optionPrices(item models.MenuItem, choices []orders.CustomizationChoice) ([]decimal.Decimal, error) {
	var prices []decimal.Decimal
	for _, ch := range choices {
		group, ok := findGroup(item.Customizations, ch.Name)
		if !ok {
			return nil, fmt.Errorf("%w: group %q", ErrUnknownOption, ch.Name)
		}
		for _, sel := range ch.SelectedOptions {
			opt, ok := group.Option(sel.Name)
			if !ok {
				return nil, fmt.Errorf("%w: %s/%s", ErrUnknownOption, ch.Name, sel.Name)
			}
			prices = append(prices, opt.Price)
		}
	}
	return prices, nil
}

func findGroup(groups []models.CustomizationGroup, name string) (models.CustomizationGroup, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return models.CustomizationGroup{}, false
}
