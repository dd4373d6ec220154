package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/middleware"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

// ErrorResponse represents an error in API responses
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusFor maps a service error to an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case watchlist.IsTurnViolation(err):
		return http.StatusConflict, "not_your_turn"
	case watchlist.IsAlreadyPlaying(err):
		return http.StatusConflict, "already_playing"
	case watchlist.IsDuplicateInvite(err):
		return http.StatusConflict, "already_invited"
	case errors.Is(err, watchlist.ErrAlreadyMember):
		return http.StatusConflict, "already_member"
	}

	switch watchlist.KindOf(err) {
	case watchlist.ErrorKindNotFound:
		return http.StatusNotFound, "not_found"
	case watchlist.ErrorKindPermissionDenied:
		return http.StatusForbidden, "forbidden"
	case watchlist.ErrorKindIdentityMismatch:
		return http.StatusForbidden, "identity_mismatch"
	case watchlist.ErrorKindInvalid:
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusServiceUnavailable, "unavailable"
	}
}

// respondError writes the error response for a failed service call. Transient
// failures are logged here; business rule rejections are logged by the service.
func respondError(c *gin.Context, err error, operation string) {
	status, code := statusFor(err)

	message := rootMessage(err)
	if watchlist.KindOf(err).Retryable() {
		logger.Log.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFrom(c)).
			Str("operation", operation).
			Msg("Request failed")
		message = "Temporarily unavailable, please retry"
		c.Header("Retry-After", "1")
	}

	c.JSON(status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// rootMessage returns the message of the innermost wrapped error
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// requireIdentity returns the authenticated identity or writes a 401
func requireIdentity(c *gin.Context) (models.Identity, bool) {
	identity, err := middleware.IdentityFrom(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication required",
		})
		return models.Identity{}, false
	}
	return identity, true
}

// uuidParam parses a UUID path parameter or writes a 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid_id", "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}

// kindParam parses the :kind path parameter or writes a 400
func kindParam(c *gin.Context) (models.Kind, bool) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		badRequest(c, "invalid_kind", "Kind must be movie or show")
		return "", false
	}
	return kind, true
}
