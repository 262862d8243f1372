package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"food-ordering-api/apperr"
	"food-ordering-api/storage"
)

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ServeUpload streams a stored image.
func (h *Handler) ServeUpload(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("path"), "/")
	if !storage.ValidKey(key) {
		h.fail(c, apperr.NotFound("File not found"))
		return
	}
	rc, err := h.blobs.Open(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		h.fail(c, apperr.NotFound("File not found"))
		return
	}
	if err != nil {
		h.fail(c, apperr.Dependency("open upload", err))
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, storage.ContentType(key), rc, nil)
}

// NotFound answers unknown routes in the same error shape as everything else.
func (h *Handler) NotFound(c *gin.Context) {
	h.fail(c, apperr.NotFound("Route not found"))
}
