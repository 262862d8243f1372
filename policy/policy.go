// Package policy decides who may do what. Every function here is pure: it looks
// only at the caller's identity and the resource ownership it is handed.
package policy

import (
	"food-ordering-api/apperr"
	"food-ordering-api/models"
)

// Identity is the authenticated caller. The zero value is an anonymous caller.
type Identity struct {
	ID   string          `json:"id"`
	Role models.UserRole `json:"role"`
}

// Anonymous is the identity of a caller without a valid token.
var Anonymous = Identity{}

func (i Identity) IsAnonymous() bool { return i.ID == "" }

func (i Identity) IsAdmin() bool { return i.ID != "" && i.Role == models.RoleAdmin }

type Action string

const (
	ActionCreateRestaurant   Action = "restaurant:create"
	ActionUpdateRestaurant   Action = "restaurant:update"
	ActionDeleteRestaurant   Action = "restaurant:delete"
	ActionApproveRestaurant  Action = "restaurant:approve"
	ActionListAllRestaurants Action = "restaurant:list_all"
	ActionCreateMenuItem     Action = "menu:create"
	ActionUpdateMenuItem     Action = "menu:update"
	ActionDeleteMenuItem     Action = "menu:delete"
	ActionCreateOrder        Action = "order:create"
	ActionReadOrder          Action = "order:read"
	ActionUpdateOrderStatus  Action = "order:update_status"
	ActionRateOrder          Action = "order:rate"
	ActionRequestRefund      Action = "order:refund"
	ActionListAllOrders      Action = "order:list_all"
	ActionListUsers          Action = "user:list"
)

// Resource carries the ownership facts an action is checked against.
// OwnerID is the owning restaurant's owner; for menu items and orders it is
// resolved transitively through the restaurant.
type Resource struct {
	OwnerID    string
	CustomerID string
}

// Authorize returns nil, an Unauthenticated error or a Forbidden error.
func Authorize(id Identity, action Action, res Resource) error {
	if id.IsAnonymous() {
		return apperr.Unauthenticated("Authentication required")
	}
	if id.IsAdmin() {
		return nil
	}

	switch action {
	case ActionCreateRestaurant:
		if id.Role != models.RoleRestaurantOwner {
			return apperr.Forbidden("Only restaurant owners can register a restaurant")
		}
		return nil

	case ActionCreateMenuItem:
		if id.Role != models.RoleRestaurantOwner {
			return apperr.Forbidden("Only restaurant owners can add menu items")
		}
		return ownerOnly(id, res, "You can only add menu items to your own restaurant")

	case ActionUpdateRestaurant, ActionDeleteRestaurant:
		return ownerOnly(id, res, "You can only manage your own restaurant")

	case ActionUpdateMenuItem, ActionDeleteMenuItem:
		return ownerOnly(id, res, "You can only manage menu items of your own restaurant")

	case ActionUpdateOrderStatus:
		return ownerOnly(id, res, "Only the restaurant that received this order can update its status")

	case ActionCreateOrder:
		return nil

	case ActionReadOrder:
		if id.ID == res.CustomerID || id.ID == res.OwnerID {
			return nil
		}
		return apperr.Forbidden("You do not have access to this order")

	case ActionRateOrder, ActionRequestRefund:
		if id.ID == res.CustomerID {
			return nil
		}
		return apperr.Forbidden("Only the customer who placed this order can do that")

	case ActionApproveRestaurant, ActionListAllRestaurants, ActionListAllOrders, ActionListUsers:
		return apperr.Forbidden("Admin access required")
	}

	return apperr.Forbidden("Action not permitted")
}

func ownerOnly(id Identity, res Resource, msg string) error {
	if res.OwnerID != "" && id.ID == res.OwnerID {
		return nil
	}
	return apperr.Forbidden(msg)
}

// CanViewRestaurant applies the listing visibility rule. The owner and admins
// always see their restaurant, whatever its state.
func CanViewRestaurant(id Identity, r *models.Restaurant, requireApproval bool) bool {
	if r.PubliclyVisible(requireApproval) {
		return true
	}
	if id.IsAnonymous() {
		return false
	}
	return id.IsAdmin() || id.ID == r.OwnerID
}

// CanViewMenuItem hides unavailable items from everyone but the owner and admins.
func CanViewMenuItem(id Identity, ownerID string, available bool) bool {
	if available {
		return true
	}
	if id.IsAnonymous() {
		return false
	}
	return id.IsAdmin() || id.ID == ownerID
}

// ManagesInventory reports whether id may see the full (unfiltered) inventory
// of a restaurant owned by ownerID.
func ManagesInventory(id Identity, ownerID string) bool {
	return !id.IsAnonymous() && (id.IsAdmin() || id.ID == ownerID)
}
