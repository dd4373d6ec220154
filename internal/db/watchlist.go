package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/models"
	"gorm.io/gorm"
)

// WatchlistRepository handles database operations for watchlist aggregates.
// Turn pointer and slot writes are conditional; a false result means the
// guarded value changed since it was read.
type WatchlistRepository struct {
	db *DB
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(db *DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// Create inserts a new watchlist into the database
func (r *WatchlistRepository) Create(ctx context.Context, w *models.Watchlist) error {
	result := r.db.WithContext(ctx).Create(w)
	if result.Error != nil {
		return fmt.Errorf("failed to create watchlist: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves a watchlist by its UUID
func (r *WatchlistRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Watchlist, error) {
	var w models.Watchlist
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&w)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &w, nil
}

// ListByIDs retrieves the watchlists with the given ids, in no particular order
func (r *WatchlistRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Watchlist, error) {
	watchlists := []*models.Watchlist{}
	if len(ids) == 0 {
		return watchlists, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	result := r.db.WithContext(ctx).Where("id IN ?", keys).Find(&watchlists)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list watchlists: %w", MapGormError(result.Error))
	}
	return watchlists, nil
}

// SetMembers replaces the member list
func (r *WatchlistRepository) SetMembers(ctx context.Context, id uuid.UUID, members models.StringList) error {
	return r.updateExact(r.db.WithContext(ctx).Where("id = ?", id.String()), map[string]interface{}{
		"members": members,
	})
}

// RecordAdd moves the turn pointers for kind to actor, provided the per-kind
// pointer still holds prev.
func (r *WatchlistRepository) RecordAdd(ctx context.Context, id uuid.UUID, kind models.Kind, prev *string, actor string) (bool, error) {
	col := models.LastAddedByColumn(kind)
	q := guardPointer(r.db.WithContext(ctx).Where("id = ?", id.String()), col, prev)
	return r.updateGuarded(q, map[string]interface{}{
		col:             actor,
		"last_added_by": actor,
	})
}

// FillSlot writes np into the empty now-playing slot for kind and sets the
// per-kind turn pointer to lastAddedBy.
func (r *WatchlistRepository) FillSlot(ctx context.Context, id uuid.UUID, kind models.Kind, np *models.NowPlaying, lastAddedBy string) (bool, error) {
	q := r.db.WithContext(ctx).
		Where("id = ?", id.String()).
		Where(models.NowPlayingColumn(kind) + " IS NULL")
	return r.updateGuarded(q, map[string]interface{}{
		models.NowPlayingColumn(kind):  models.Slot{Item: np},
		models.LastAddedByColumn(kind): lastAddedBy,
	})
}

// ReleaseSlot empties the now-playing slot for kind, provided it still holds
// the copy of source. A nil mover clears the per-kind turn pointer; otherwise
// both pointers are credited to the mover.
func (r *WatchlistRepository) ReleaseSlot(ctx context.Context, id uuid.UUID, kind models.Kind, source uuid.UUID, mover *string) (bool, error) {
	slot := models.NowPlayingColumn(kind)
	q := r.db.WithContext(ctx).
		Where("id = ?", id.String()).
		Where("json_extract("+slot+", '$.source_item_id') = ?", source.String())

	updates := map[string]interface{}{slot: nil}
	if mover == nil {
		updates[models.LastAddedByColumn(kind)] = nil
	} else {
		updates[models.LastAddedByColumn(kind)] = *mover
		updates["last_added_by"] = *mover
	}
	return r.updateGuarded(q, updates)
}

// ResetTurns clears all three turn pointers
func (r *WatchlistRepository) ResetTurns(ctx context.Context, id uuid.UUID) error {
	return r.updateExact(r.db.WithContext(ctx).Where("id = ?", id.String()), map[string]interface{}{
		"last_added_by":       nil,
		"last_added_by_movie": nil,
		"last_added_by_show":  nil,
	})
}

// Delete deletes a watchlist by its UUID (cascade delete to items and invites)
func (r *WatchlistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&models.Watchlist{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete watchlist: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *WatchlistRepository) updateGuarded(q *gorm.DB, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	result := q.Model(&models.Watchlist{}).Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update watchlist: %w", MapGormError(result.Error))
	}
	return result.RowsAffected == 1, nil
}

func (r *WatchlistRepository) updateExact(q *gorm.DB, updates map[string]interface{}) error {
	ok, err := r.updateGuarded(q, updates)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func guardPointer(q *gorm.DB, col string, prev *string) *gorm.DB {
	if prev == nil {
		return q.Where(col + " IS NULL")
	}
	return q.Where(col+" = ?", *prev)
}
