package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"food-ordering-api/identity"
	"food-ordering-api/middleware"
)

// Register creates a new user account
func (h *Handler) Register(c *gin.Context) {
	var req identity.RegisterInput
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.identity.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Account created successfully",
		"token":   res.Token,
		"user":    res.User,
	})
}

// Login authenticates a user and returns a JWT
func (h *Handler) Login(c *gin.Context) {
	var req identity.LoginInput
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.identity.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   res.Token,
		"user":    res.User,
	})
}

// GetProfile returns the authenticated user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.identity.GetProfile(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req identity.ProfileUpdate
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	user, err := h.identity.UpdateProfile(c.Request.Context(), middleware.GetIdentity(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req identity.PasswordChange
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.identity.ChangePassword(c.Request.Context(), middleware.GetIdentity(c), req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}
