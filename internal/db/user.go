package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/models"
)

// UserRepository handles database operations for user profiles
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		return fmt.Errorf("failed to create user: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves a user by identity subject
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &user, nil
}

// GetByEmail retrieves a user by normalized email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &user, nil
}

// UpdateProfile refreshes the identity-provided fields
func (r *UserRepository) UpdateProfile(ctx context.Context, id, email, displayName string) error {
	return r.update(ctx, id, map[string]interface{}{
		"email":        models.NormalizeEmail(email),
		"display_name": displayName,
	})
}

// SetActiveWatchlist points the user at a watchlist
func (r *UserRepository) SetActiveWatchlist(ctx context.Context, id string, watchlistID uuid.UUID) error {
	return r.update(ctx, id, map[string]interface{}{
		"active_watchlist": uuid.NullUUID{UUID: watchlistID, Valid: true},
	})
}

// MarkCreator points the user at a watchlist they created
func (r *UserRepository) MarkCreator(ctx context.Context, id string, watchlistID uuid.UUID) error {
	return r.update(ctx, id, map[string]interface{}{
		"active_watchlist":     uuid.NullUUID{UUID: watchlistID, Valid: true},
		"is_watchlist_creator": true,
	})
}

// SetInvites replaces the list of watchlists the user was directly invited to
func (r *UserRepository) SetInvites(ctx context.Context, id string, invites models.StringList) error {
	return r.update(ctx, id, map[string]interface{}{
		"watchlist_invites": invites,
	})
}

func (r *UserRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
