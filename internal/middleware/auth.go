package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/urnext/internal/auth"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
)

const identityKey = "identity"

// AccessTokenParam is the query parameter accepted in place of the
// Authorization header on push endpoints, where browsers cannot set headers
const AccessTokenParam = "access_token"

// TokenVerifier turns a raw bearer token into an identity
type TokenVerifier interface {
	Verify(raw string) (models.Identity, error)
}

// UserProvisioner makes sure a profile exists for an authenticated identity
type UserProvisioner interface {
	EnsureUser(ctx context.Context, identity models.Identity) (*models.User, error)
}

// authError mirrors the API error body
type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Authenticate verifies the bearer token, provisions the user profile and
// stores the identity on the context. When allowQuery is set the token may
// also be passed as ?access_token=.
func Authenticate(verifier TokenVerifier, users UserProvisioner, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok && allowQuery {
			raw = c.Query(AccessTokenParam)
			ok = raw != ""
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, authError{
				Error:   "unauthorized",
				Message: "Missing bearer token",
			})
			return
		}

		identity, err := verifier.Verify(raw)
		if err != nil {
			logger.Log.Debug().
				Err(err).
				Str("request_id", RequestIDFrom(c)).
				Msg("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, authError{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
			return
		}

		if users != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			_, err = users.EnsureUser(ctx, identity)
			cancel()
			if err != nil {
				logger.Log.Error().
					Err(err).
					Str("user_id", identity.UserID).
					Msg("Failed to provision user profile")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, authError{
					Error:   "unavailable",
					Message: "Failed to load user profile",
				})
				return
			}
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// ErrNoIdentity is returned when a handler runs without Authenticate
var ErrNoIdentity = errors.New("no authenticated identity")

// IdentityFrom returns the identity stored by Authenticate
func IdentityFrom(c *gin.Context) (models.Identity, error) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, ErrNoIdentity
	}
	identity, ok := v.(models.Identity)
	if !ok {
		return models.Identity{}, ErrNoIdentity
	}
	return identity, nil
}

// SetIdentity stores identity on the context, for tests and trusted callers
func SetIdentity(c *gin.Context, identity models.Identity) {
	c.Set(identityKey, identity)
}
