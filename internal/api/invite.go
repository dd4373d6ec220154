package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

// InviteRequest represents a request to invite an email to a watchlist
type InviteRequest struct {
	Email string `json:"email" binding:"required"`
}

// InviteResponse reports how the invitation was delivered. Existing accounts
// receive a direct invitation; other emails get a pending invite.
type InviteResponse struct {
	Direct bool                  `json:"direct"`
	Invite *models.PendingInvite `json:"invite,omitempty"`
}

// AcceptInviteRequest identifies the invitation being accepted
type AcceptInviteRequest struct {
	WatchlistID string `json:"watchlist_id,omitempty"`
	InviteID    string `json:"invite_id,omitempty"`
}

// AcceptInviteResponse carries the joined watchlist id
type AcceptInviteResponse struct {
	WatchlistID string `json:"watchlist_id"`
}

// InvitationListResponse represents the open invitations of the caller
type InvitationListResponse struct {
	Invitations []watchlist.Invitation `json:"invitations"`
}

// InviteHandler handles invitation API requests
type InviteHandler struct {
	service *watchlist.Service
}

// NewInviteHandler creates a new invite handler instance
func NewInviteHandler(service *watchlist.Service) *InviteHandler {
	return &InviteHandler{service: service}
}

// Invite handles POST /api/watchlists/:id/invites
func (h *InviteHandler) Invite(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	invite, err := h.service.Invite(ctx, id, identity, req.Email)
	if err != nil {
		respondError(c, err, "invite")
		return
	}
	c.JSON(http.StatusCreated, InviteResponse{
		Direct: invite == nil,
		Invite: invite,
	})
}

// AcceptInvite handles POST /api/invitations/accept
func (h *InviteHandler) AcceptInvite(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	watchlistID, ok := optionalUUID(c, req.WatchlistID, "watchlist_id")
	if !ok {
		return
	}
	inviteID, ok := optionalUUID(c, req.InviteID, "invite_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	joined, err := h.service.AcceptInvite(ctx, identity, watchlistID, inviteID)
	if err != nil {
		respondError(c, err, "accept_invite")
		return
	}
	c.JSON(http.StatusOK, AcceptInviteResponse{WatchlistID: joined.String()})
}

// ListInvitations handles GET /api/me/invitations
func (h *InviteHandler) ListInvitations(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	invitations, err := h.service.ListInvitations(ctx, identity)
	if err != nil {
		respondError(c, err, "list_invitations")
		return
	}
	c.JSON(http.StatusOK, InvitationListResponse{Invitations: invitations})
}

func optionalUUID(c *gin.Context, raw, field string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "invalid_id", "Invalid "+field+" format")
		return uuid.Nil, false
	}
	return id, true
}

// SetupInviteRoutes registers invitation routes
func SetupInviteRoutes(apiGroup *gin.RouterGroup, service *watchlist.Service) {
	handler := NewInviteHandler(service)

	apiGroup.POST("/watchlists/:id/invites", handler.Invite)
	apiGroup.POST("/invitations/accept", handler.AcceptInvite)
	apiGroup.GET("/me/invitations", handler.ListInvitations)
}
