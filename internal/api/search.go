package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/tmdb"
)

// Searcher finds titles in an external catalogue
type Searcher interface {
	Search(ctx context.Context, query string) ([]tmdb.Result, error)
}

// SearchResponse represents media search results
type SearchResponse struct {
	Results []tmdb.Result `json:"results"`
}

// SearchHandler handles media search requests
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new search handler instance
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Search handles GET /api/search?q=
func (h *SearchHandler) Search(c *gin.Context) {
	if _, ok := requireIdentity(c); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.searcher.Search(ctx, c.Query("q"))
	if err != nil {
		if errors.Is(err, tmdb.ErrNotConfigured) {
			c.JSON(http.StatusNotImplemented, ErrorResponse{
				Error:   "search_disabled",
				Message: "Media search is not configured",
			})
			return
		}

		logger.Log.Error().
			Err(err).
			Str("query", c.Query("q")).
			Msg("Media search failed")

		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "search_failed",
			Message: "Media search is unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, SearchResponse{Results: results})
}

// SetupSearchRoutes registers media search routes
func SetupSearchRoutes(apiGroup *gin.RouterGroup, searcher Searcher) {
	handler := NewSearchHandler(searcher)
	apiGroup.GET("/search", handler.Search)
}
