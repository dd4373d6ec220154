package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

// MeHandler serves the caller's profile
type MeHandler struct {
	service *watchlist.Service
}

// NewMeHandler creates a new profile handler instance
func NewMeHandler(service *watchlist.Service) *MeHandler {
	return &MeHandler{service: service}
}

// GetMe handles GET /api/me
func (h *MeHandler) GetMe(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.GetUser(ctx, identity.UserID)
	if err != nil {
		respondError(c, err, "get_me")
		return
	}
	c.JSON(http.StatusOK, user)
}

// SetupMeRoutes registers profile routes
func SetupMeRoutes(apiGroup *gin.RouterGroup, service *watchlist.Service) {
	handler := NewMeHandler(service)
	apiGroup.GET("/me", handler.GetMe)
}
