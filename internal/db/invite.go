package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/models"
	"gorm.io/gorm"
)

// InviteRepository handles database operations for pending invites
type InviteRepository struct {
	db *DB
}

// NewInviteRepository creates a new invite repository
func NewInviteRepository(db *DB) *InviteRepository {
	return &InviteRepository{db: db}
}

// Create inserts a new invite. A second invite for the same email and
// watchlist fails with ErrDuplicate.
func (r *InviteRepository) Create(ctx context.Context, invite *models.PendingInvite) error {
	result := r.db.WithContext(ctx).Create(invite)
	if result.Error != nil {
		return fmt.Errorf("failed to create invite: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves an invite by its UUID
func (r *InviteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PendingInvite, error) {
	var invite models.PendingInvite
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&invite)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &invite, nil
}

// FindByEmailAndWatchlist retrieves the invite for an email to a watchlist
func (r *InviteRepository) FindByEmailAndWatchlist(ctx context.Context, email string, watchlistID uuid.UUID) (*models.PendingInvite, error) {
	var invite models.PendingInvite
	result := r.db.WithContext(ctx).
		Where("email = ? AND watchlist_id = ?", models.NormalizeEmail(email), watchlistID.String()).
		First(&invite)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &invite, nil
}

// ListByEmail retrieves every invite addressed to an email, oldest first
func (r *InviteRepository) ListByEmail(ctx context.Context, email string) ([]*models.PendingInvite, error) {
	var invites []*models.PendingInvite
	result := r.db.WithContext(ctx).
		Where("email = ?", models.NormalizeEmail(email)).
		Order("created_at ASC").
		Find(&invites)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list invites: %w", MapGormError(result.Error))
	}
	return invites, nil
}

// ListUnsent retrieves up to limit invites whose email is due for a delivery
// attempt at now, oldest first. Invites the dispatcher gave up on and invites
// waiting out a retry delay are skipped.
func (r *InviteRepository) ListUnsent(ctx context.Context, now time.Time, limit int) ([]*models.PendingInvite, error) {
	var invites []*models.PendingInvite
	result := r.db.WithContext(ctx).
		Where("email_sent = ? AND failed_at IS NULL", false).
		Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&invites)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list unsent invites: %w", MapGormError(result.Error))
	}
	return invites, nil
}

// RecordFailure counts a failed delivery attempt. A nil nextAttempt gives up
// on the invite: it stays claimable but is no longer swept.
func (r *InviteRepository) RecordFailure(ctx context.Context, id uuid.UUID, reason string, nextAttempt *time.Time, at time.Time) error {
	updates := map[string]interface{}{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_error":      reason,
		"next_attempt_at": nextAttempt,
	}
	if nextAttempt == nil {
		updates["failed_at"] = at
	}

	result := r.db.WithContext(ctx).
		Model(&models.PendingInvite{}).
		Where("id = ? AND email_sent = ?", id.String(), false).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record invite failure: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSent records a successful invite email. Marking an already sent
// invite is a no-op; a consumed invite returns ErrNotFound.
func (r *InviteRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.PendingInvite{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"email_sent":    true,
			"email_sent_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark invite sent: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes an invite by its UUID
func (r *InviteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&models.PendingInvite{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete invite: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAcceptance stores who consumed an invite and where it led
func (r *InviteRepository) RecordAcceptance(ctx context.Context, acceptance *models.InviteAcceptance) error {
	result := r.db.WithContext(ctx).Create(acceptance)
	if result.Error != nil {
		return fmt.Errorf("failed to record invite acceptance: %w", MapGormError(result.Error))
	}
	return nil
}

// GetAcceptance retrieves the acceptance of a consumed invite
func (r *InviteRepository) GetAcceptance(ctx context.Context, inviteID uuid.UUID) (*models.InviteAcceptance, error) {
	var acceptance models.InviteAcceptance
	result := r.db.WithContext(ctx).Where("invite_id = ?", inviteID.String()).First(&acceptance)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &acceptance, nil
}
