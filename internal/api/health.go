package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/urnext/internal/db"
)

// Pinger is an optional dependency checked by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the response from the health check endpoint
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Broker   string                 `json:"broker,omitempty"`
	Time     string                 `json:"time"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db     *db.DB
	broker Pinger
}

// NewHealthHandler creates a new health check handler. broker may be nil.
func NewHealthHandler(database *db.DB, broker Pinger) *HealthHandler {
	return &HealthHandler{db: database, broker: broker}
}

// Check handles the health check endpoint
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339),
		Details: make(map[string]interface{}),
	}

	// Check database connectivity
	if err := h.db.Health(ctx); err != nil {
		response.Status = "degraded"
		response.Database = "unhealthy"
		response.Details["database_error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	response.Database = "healthy"

	if h.broker != nil {
		if err := h.broker.Ping(ctx); err != nil {
			response.Status = "degraded"
			response.Broker = "unhealthy"
			response.Details["broker_error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.Broker = "healthy"
	}

	c.JSON(http.StatusOK, response)
}

// SetupHealthRoutes registers health check routes
func SetupHealthRoutes(apiGroup *gin.RouterGroup, database *db.DB, broker Pinger) {
	handler := NewHealthHandler(database, broker)
	apiGroup.GET("/health", handler.Check)
}
