package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

// Request/Response DTOs

// CreateWatchlistRequest represents a request to create a new watchlist
type CreateWatchlistRequest struct {
	Name         string `json:"name" binding:"required"`
	PartnerEmail string `json:"partner_email,omitempty"`
}

// CreateWatchlistResponse carries the new watchlist and, when the partner
// invite failed, the reason
type CreateWatchlistResponse struct {
	Watchlist   *models.Watchlist `json:"watchlist"`
	InviteError *ErrorResponse    `json:"invite_error,omitempty"`
}

// AddItemRequest represents a request to add an item to the queue
type AddItemRequest struct {
	Kind       string  `json:"kind" binding:"required"`
	Title      string  `json:"title" binding:"required"`
	ExternalID *string `json:"external_id,omitempty"`
	PosterPath string  `json:"poster_path,omitempty"`
	Overview   string  `json:"overview,omitempty"`
}

// ReviewItemRequest represents a rating and comment for a finished item
type ReviewItemRequest struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

// ItemListResponse represents a list of queue or finished items
type ItemListResponse struct {
	Items []*models.WatchlistItem `json:"items"`
}

// WatchlistHandler handles watchlist-related API requests
type WatchlistHandler struct {
	service *watchlist.Service
}

// NewWatchlistHandler creates a new watchlist handler instance
func NewWatchlistHandler(service *watchlist.Service) *WatchlistHandler {
	return &WatchlistHandler{service: service}
}

// CreateWatchlist handles POST /api/watchlists
func (h *WatchlistHandler) CreateWatchlist(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	var req CreateWatchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	w, err := h.service.CreateWatchlist(ctx, identity, req.Name, req.PartnerEmail)
	if err != nil && w == nil {
		respondError(c, err, "create_watchlist")
		return
	}

	resp := CreateWatchlistResponse{Watchlist: w}
	if err != nil {
		_, code := statusFor(err)
		resp.InviteError = &ErrorResponse{Error: code, Message: rootMessage(err)}
	}
	c.JSON(http.StatusCreated, resp)
}

// GetWatchlist handles GET /api/watchlists/:id and returns the full snapshot
func (h *WatchlistHandler) GetWatchlist(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	snapshot, err := h.service.Snapshot(ctx, id, identity.UserID)
	if err != nil {
		respondError(c, err, "get_watchlist")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ListItems handles GET /api/watchlists/:id/items?status=pending|finished
func (h *WatchlistHandler) ListItems(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var (
		items []*models.WatchlistItem
		err   error
	)
	switch c.DefaultQuery("status", "pending") {
	case "pending":
		items, err = h.service.ListPending(ctx, id, identity.UserID)
	case "finished":
		items, err = h.service.ListFinished(ctx, id, identity.UserID)
	default:
		badRequest(c, "invalid_status", "Status must be pending or finished")
		return
	}
	if err != nil {
		respondError(c, err, "list_items")
		return
	}
	if items == nil {
		items = []*models.WatchlistItem{}
	}
	c.JSON(http.StatusOK, ItemListResponse{Items: items})
}

// AddItem handles POST /api/watchlists/:id/items
func (h *WatchlistHandler) AddItem(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body: "+err.Error())
		return
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		badRequest(c, "invalid_kind", "Kind must be movie or show")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.AddItem(ctx, id, identity.UserID, watchlist.NewItem{
		Kind:       kind,
		Title:      req.Title,
		ExternalID: req.ExternalID,
		PosterPath: req.PosterPath,
		Overview:   req.Overview,
	})
	if err != nil {
		respondError(c, err, "add_item")
		return
	}

	logger.Log.Info().
		Str("watchlist_id", id.String()).
		Str("item_id", item.ID.String()).
		Str("actor_id", identity.UserID).
		Msg("Item added")

	c.JSON(http.StatusCreated, item)
}

// PromoteItem handles POST /api/watchlists/:id/items/:item_id/promote
func (h *WatchlistHandler) PromoteItem(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	np, err := h.service.Promote(ctx, id, itemID, identity.UserID)
	if err != nil {
		respondError(c, err, "promote")
		return
	}
	c.JSON(http.StatusOK, np)
}

// FinishNowPlaying handles POST /api/watchlists/:id/now-playing/:kind/finish
func (h *WatchlistHandler) FinishNowPlaying(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.Finish(ctx, id, kind, identity.UserID)
	if err != nil {
		respondError(c, err, "finish")
		return
	}
	c.JSON(http.StatusOK, item)
}

// MoveBackNowPlaying handles POST /api/watchlists/:id/now-playing/:kind/move-back
func (h *WatchlistHandler) MoveBackNowPlaying(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.MoveBack(ctx, id, kind, identity.UserID)
	if err != nil {
		respondError(c, err, "move_back")
		return
	}
	c.JSON(http.StatusOK, item)
}

// ClearNowPlaying handles DELETE /api/watchlists/:id/now-playing/:kind
func (h *WatchlistHandler) ClearNowPlaying(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	kind, ok := kindParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.ClearNowPlaying(ctx, id, kind, identity.UserID); err != nil {
		respondError(c, err, "clear_now_playing")
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveItem handles DELETE /api/items/:item_id
func (h *WatchlistHandler) RemoveItem(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.RemoveItem(ctx, itemID, identity.UserID); err != nil {
		respondError(c, err, "remove_item")
		return
	}
	c.Status(http.StatusNoContent)
}

// ReviewItem handles PUT /api/items/:item_id/review
func (h *WatchlistHandler) ReviewItem(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "item_id")
	if !ok {
		return
	}

	var req ReviewItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.service.ReviewItem(ctx, itemID, identity.UserID, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err, "review_item")
		return
	}
	c.JSON(http.StatusOK, item)
}

// SetupWatchlistRoutes registers watchlist, queue and now-playing routes
func SetupWatchlistRoutes(apiGroup *gin.RouterGroup, service *watchlist.Service) {
	handler := NewWatchlistHandler(service)

	apiGroup.POST("/watchlists", handler.CreateWatchlist)
	apiGroup.GET("/watchlists/:id", handler.GetWatchlist)

	// Queue
	apiGroup.GET("/watchlists/:id/items", handler.ListItems)
	apiGroup.POST("/watchlists/:id/items", handler.AddItem)
	apiGroup.POST("/watchlists/:id/items/:item_id/promote", handler.PromoteItem)
	apiGroup.DELETE("/items/:item_id", handler.RemoveItem)
	apiGroup.PUT("/items/:item_id/review", handler.ReviewItem)

	// Now playing
	apiGroup.POST("/watchlists/:id/now-playing/:kind/finish", handler.FinishNowPlaying)
	apiGroup.POST("/watchlists/:id/now-playing/:kind/move-back", handler.MoveBackNowPlaying)
	apiGroup.DELETE("/watchlists/:id/now-playing/:kind", handler.ClearNowPlaying)
}
