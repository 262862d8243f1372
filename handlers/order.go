package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"food-ordering-api/middleware"
	"food-ordering-api/models"
	"food-ordering-api/orders"
	"food-ordering-api/statemachine"
)

// IdempotencyHeader lets a client retry checkout without ordering twice.
const IdempotencyHeader = "Idempotency-Key"

// CreateOrder places an order for the caller
func (h *Handler) CreateOrder(c *gin.Context) {
	var req orders.CreateOrderInput
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(IdempotencyHeader)

	order, err := h.orders.CreateOrder(c.Request.Context(), middleware.GetIdentity(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetMyOrders returns all orders for the logged-in customer
func (h *Handler) GetMyOrders(c *gin.Context) {
	list, err := h.orders.ListOrdersForCustomer(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetRestaurantOrders lists orders for the owner's restaurant
func (h *Handler) GetRestaurantOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	f := orders.RestaurantOrderFilter{Status: c.Query("status"), Limit: limit}
	list, err := h.orders.ListOrdersForRestaurant(c.Request.Context(), middleware.GetIdentity(c), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrderHistory(c *gin.Context) {
	hist, err := h.orders.History(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
	Note   string             `json:"note"`
}

// UpdateOrderStatus transitions an order using the state machine
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"), req.Status, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) RateOrder(c *gin.Context) {
	var req orders.RatingInput
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.orders.RateOrder(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) RequestRefund(c *gin.Context) {
	var req orders.RefundInput
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	order, err := h.orders.RequestRefund(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetStateMachineInfo returns the full state machine for informational purposes
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"transitions":     statemachine.GetAllTransitions(),
		"statuses":        models.OrderStatuses,
		"terminal_states": []models.OrderStatus{models.StatusDelivered, models.StatusCancelled},
		"description":     "Order lifecycle. Restaurant owners and admins move orders along these edges.",
	})
}
