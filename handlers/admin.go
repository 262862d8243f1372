package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"food-ordering-api/apperr"
	"food-ordering-api/catalog"
	"food-ordering-api/middleware"
	"food-ordering-api/models"
	"food-ordering-api/orders"
)

// AdminGetAllOrders returns orders across restaurants with a per-status summary
func (h *Handler) AdminGetAllOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	f := orders.AdminOrderFilter{
		Status:       c.Query("status"),
		RestaurantID: c.Query("restaurant_id"),
		Limit:        limit,
	}
	list, err := h.orders.ListAllOrders(c.Request.Context(), middleware.GetIdentity(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// AdminGetAllUsers returns all users, optionally filtered by role
func (h *Handler) AdminGetAllUsers(c *gin.Context) {
	users, err := h.identity.ListUsers(c.Request.Context(), middleware.GetIdentity(c), models.UserRole(c.Query("role")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(users), "users": users})
}

// AdminGetAllRestaurants includes unapproved and inactive restaurants.
// approved=false is the approval queue.
func (h *Handler) AdminGetAllRestaurants(c *gin.Context) {
	var f catalog.AdminRestaurantFilter
	if raw := c.Query("approved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(c, apperr.Validation(apperr.Field("approved", "approved must be true or false")))
			return
		}
		f.Approved = &v
	}
	list, err := h.catalog.ListAllRestaurants(c.Request.Context(), middleware.GetIdentity(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "restaurants": list})
}
