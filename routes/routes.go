package routes

import (
	"github.com/gin-gonic/gin"

	"food-ordering-api/handlers"
	"food-ordering-api/middleware"
	"food-ordering-api/models"
)

func SetupRoutes(r *gin.Engine, h *handlers.Handler, verifier middleware.TokenVerifier) {
	authRequired := middleware.AuthRequired(verifier)
	optionalAuth := middleware.OptionalAuth(verifier)
	ownerOrAdmin := middleware.RoleRequired(models.RoleRestaurantOwner, models.RoleAdmin)
	adminOnly := middleware.RoleRequired(models.RoleAdmin)

	r.GET("/health", h.Health)
	r.GET("/uploads/*path", h.ServeUpload)
	r.NoRoute(h.NotFound)

	api := r.Group("/api")

	// ── Auth ───────────────────────────────────────────────────────
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/me", authRequired, h.GetProfile)
		auth.PUT("/profile", authRequired, h.UpdateProfile)
		auth.PUT("/change-password", authRequired, h.ChangePassword)
	}

	// ── Restaurants ────────────────────────────────────────────────
	restaurants := api.Group("/restaurants")
	{
		restaurants.GET("", h.ListRestaurants)
		restaurants.GET("/my-restaurant", authRequired, h.GetMyRestaurant)
		restaurants.POST("", authRequired, h.CreateRestaurant)
		restaurants.GET("/:id", optionalAuth, h.GetRestaurant)
		restaurants.PUT("/:id", authRequired, ownerOrAdmin, h.UpdateRestaurant)
		restaurants.DELETE("/:id", authRequired, ownerOrAdmin, h.DeleteRestaurant)
		restaurants.PUT("/:id/approve", authRequired, adminOnly, h.ApproveRestaurant)
	}

	// ── Menus ──────────────────────────────────────────────────────
	menus := api.Group("/menus")
	{
		menus.GET("/restaurant/:restaurantId", optionalAuth, h.GetMenu)
		menus.POST("", authRequired, ownerOrAdmin, h.CreateMenuItem)
		menus.PUT("/:id", authRequired, ownerOrAdmin, h.UpdateMenuItem)
		menus.DELETE("/:id", authRequired, ownerOrAdmin, h.DeleteMenuItem)
	}

	// ── Orders ─────────────────────────────────────────────────────
	api.GET("/orders/state-machine", h.GetStateMachineInfo)
	orders := api.Group("/orders", authRequired)
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/user", h.GetMyOrders)
		orders.GET("/restaurant", ownerOrAdmin, h.GetRestaurantOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/history", h.GetOrderHistory)
		orders.PUT("/:id/status", ownerOrAdmin, h.UpdateOrderStatus)
		orders.POST("/:id/rating", h.RateOrder)
		orders.POST("/:id/refund", h.RequestRefund)
	}

	// ── Admin ──────────────────────────────────────────────────────
	admin := api.Group("/admin", authRequired, adminOnly)
	{
		admin.GET("/orders", h.AdminGetAllOrders)
		admin.GET("/users", h.AdminGetAllUsers)
		admin.GET("/restaurants", h.AdminGetAllRestaurants)
	}
}
