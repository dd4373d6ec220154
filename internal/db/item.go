package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/models"
)

// ItemRepository handles database operations for watchlist items.
// Pending and finished items share a table and differ only in finished_at.
type ItemRepository struct {
	db *DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts a new item into the database
func (r *ItemRepository) Create(ctx context.Context, item *models.WatchlistItem) error {
	result := r.db.WithContext(ctx).Create(item)
	if result.Error != nil {
		return fmt.Errorf("failed to create item: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves an item by its UUID
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WatchlistItem, error) {
	var item models.WatchlistItem
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&item)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &item, nil
}

// GetInWatchlist retrieves an item by its UUID scoped to a watchlist
func (r *ItemRepository) GetInWatchlist(ctx context.Context, watchlistID, id uuid.UUID) (*models.WatchlistItem, error) {
	var item models.WatchlistItem
	result := r.db.WithContext(ctx).
		Where("id = ? AND watchlist_id = ?", id.String(), watchlistID.String()).
		First(&item)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &item, nil
}

// ListPending retrieves the pending queue ordered by add time (oldest first)
func (r *ItemRepository) ListPending(ctx context.Context, watchlistID uuid.UUID) ([]*models.WatchlistItem, error) {
	var items []*models.WatchlistItem
	result := r.db.WithContext(ctx).
		Where("watchlist_id = ? AND finished_at IS NULL", watchlistID.String()).
		Order("added_at ASC").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", MapGormError(result.Error))
	}
	return items, nil
}

// ListFinished retrieves finished records, most recently finished first
func (r *ItemRepository) ListFinished(ctx context.Context, watchlistID uuid.UUID) ([]*models.WatchlistItem, error) {
	var items []*models.WatchlistItem
	result := r.db.WithContext(ctx).
		Where("watchlist_id = ? AND finished_at IS NOT NULL", watchlistID.String()).
		Order("finished_at DESC").
		Find(&items)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list finished items: %w", MapGormError(result.Error))
	}
	return items, nil
}

// CountPending returns the number of pending items across both kinds
func (r *ItemRepository) CountPending(ctx context.Context, watchlistID uuid.UUID) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.WatchlistItem{}).
		Where("watchlist_id = ? AND finished_at IS NULL", watchlistID.String()).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", MapGormError(result.Error))
	}
	return count, nil
}

// MarkFinished stamps finished_at on a pending item
func (r *ItemRepository) MarkFinished(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.WatchlistItem{}).
		Where("id = ? AND finished_at IS NULL", id.String()).
		Update("finished_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to finish item: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateReview sets rating and comment on a finished item
func (r *ItemRepository) UpdateReview(ctx context.Context, id uuid.UUID, rating *int, comment *string) error {
	result := r.db.WithContext(ctx).
		Model(&models.WatchlistItem{}).
		Where("id = ? AND finished_at IS NOT NULL", id.String()).
		Updates(map[string]interface{}{
			"rating":  rating,
			"comment": comment,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update review: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes an item by its UUID
func (r *ItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete item: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
