// Package handlers adapts HTTP requests to the identity, catalog and orders
// services. Handlers only parse input and render output.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"food-ordering-api/apperr"
	"food-ordering-api/catalog"
	"food-ordering-api/identity"
	"food-ordering-api/orders"
	"food-ordering-api/storage"
)

type Handler struct {
	identity *identity.Service
	catalog  *catalog.Service
	orders   *orders.Service
	blobs    storage.Store
	log      *slog.Logger
}

func New(id *identity.Service, cat *catalog.Service, ord *orders.Service, blobs storage.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{identity: id, catalog: cat, orders: ord, blobs: blobs, log: log}
}

// fail writes err as a structured error reply. Server-side failures are logged
// with their cause, which the client never sees.
func (h *Handler) fail(c *gin.Context, err error) {
	status, body := apperr.ToResponse(err)
	if status >= 500 {
		h.log.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the request body into v. An empty body leaves v untouched.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(apperr.Field("body", "Invalid JSON body: "+err.Error()))
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(apperr.Field(key, key+" must be a whole number"))
	}
	return n, nil
}
