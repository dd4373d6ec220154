package watchlist

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
)

// EnsureUser returns the profile for identity, creating it on first sight and
// refreshing the email and display name when the identity provider changed them
func (s *Service) EnsureUser(ctx context.Context, identity models.Identity) (*models.User, error) {
	var user *models.User
	err := s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		var err error
		user, err = ensureUser(ctx, r, identity)
		return err
	})
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("user_id", identity.UserID).
			Msg("Failed to provision user")
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	return user, nil
}

// GetUser returns the profile for userID
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get user: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func ensureUser(ctx context.Context, r *db.Repositories, identity models.Identity) (*models.User, error) {
	user, err := r.Users.GetByID(ctx, identity.UserID)
	if err != nil {
		if !db.IsNotFound(err) {
			return nil, err
		}
		user = models.NewUser(identity)
		if err := r.Users.Create(ctx, user); err != nil {
			return nil, err
		}
		logger.Log.Info().
			Str("user_id", user.ID).
			Msg("User profile created")
		return user, nil
	}

	email := models.NormalizeEmail(identity.Email)
	if (email != "" && email != user.Email) || (identity.DisplayName != "" && identity.DisplayName != user.DisplayName) {
		if email == "" {
			email = user.Email
		}
		name := identity.DisplayName
		if name == "" {
			name = user.DisplayName
		}
		if err := r.Users.UpdateProfile(ctx, user.ID, email, name); err != nil {
			return nil, err
		}
		user.Email = email
		user.DisplayName = name
	}
	return user, nil
}
