package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"food-ordering-api/apperr"
	"food-ordering-api/catalog"
	"food-ordering-api/middleware"
)

// ListRestaurants is the public directory. lat and lng switch on the distance
// filter; maxDistance is in meters.
func (h *Handler) ListRestaurants(c *gin.Context) {
	f := catalog.ListFilter{
		Cuisine: c.Query("cuisine"),
		Search:  c.Query("search"),
	}
	var fields []apperr.FieldError
	var err error
	if f.Page, err = queryInt(c, "page", 1); err != nil {
		h.fail(c, err)
		return
	}
	if f.PageSize, err = queryInt(c, "limit", 0); err != nil {
		h.fail(c, err)
		return
	}

	latRaw, lngRaw := c.Query("lat"), c.Query("lng")
	if latRaw != "" || lngRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lng, lngErr := strconv.ParseFloat(lngRaw, 64)
		if latErr != nil || lat < -90 || lat > 90 {
			fields = append(fields, apperr.Field("lat", "lat must be a latitude between -90 and 90"))
		}
		if lngErr != nil || lng < -180 || lng > 180 {
			fields = append(fields, apperr.Field("lng", "lng must be a longitude between -180 and 180"))
		}
		f.Near = &catalog.Point{Lat: lat, Lng: lng}
	}
	if raw := c.Query("maxDistance"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d <= 0 {
			fields = append(fields, apperr.Field("maxDistance", "maxDistance must be a positive number of meters"))
		}
		f.MaxDistance = d
	}
	if len(fields) > 0 {
		h.fail(c, apperr.Validation(fields...))
		return
	}

	page, err := h.catalog.ListRestaurants(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetRestaurant returns a single restaurant
func (h *Handler) GetRestaurant(c *gin.Context) {
	r, err := h.catalog.GetRestaurant(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// GetMyRestaurant fetches the restaurant owned by the logged-in user
func (h *Handler) GetMyRestaurant(c *gin.Context) {
	r, err := h.catalog.GetMyRestaurant(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateRestaurant(c *gin.Context) {
	var req catalog.RestaurantInput
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.catalog.CreateRestaurant(c.Request.Context(), middleware.GetIdentity(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// UpdateRestaurant updates restaurant details
func (h *Handler) UpdateRestaurant(c *gin.Context) {
	var req catalog.RestaurantUpdate
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.catalog.UpdateRestaurant(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteRestaurant(c *gin.Context) {
	if err := h.catalog.DeleteRestaurant(c.Request.Context(), middleware.GetIdentity(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Restaurant deleted successfully"})
}

func (h *Handler) ApproveRestaurant(c *gin.Context) {
	r, err := h.catalog.ApproveRestaurant(c.Request.Context(), middleware.GetIdentity(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
