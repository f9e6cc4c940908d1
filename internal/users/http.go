package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Getter reads a user profile.
type Getter interface {
	Get(ctx context.Context, firebaseUID string) (*User, error)
}

type Handler struct {
	users Getter
	uid   func(*gin.Context) string
}

// NewHandler serves the caller's profile. uid extracts the caller's Firebase UID.
func NewHandler(users Getter, uid func(*gin.Context) string) *Handler {
	return &Handler{users: users, uid: uid}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

func (h *Handler) me(c *gin.Context) {
	uid := h.uid(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "not authenticated"})
		return
	}
	u, err := h.users.Get(c.Request.Context(), uid)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": u})
}
