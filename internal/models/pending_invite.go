package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingInvite is an outstanding invitation addressed to an email without an account
type PendingInvite struct {
	ID            uuid.UUID  `json:"id" gorm:"type:text;primaryKey;column:id"`
	Email         string     `json:"email" gorm:"type:text;not null;column:email" validate:"required,email"`
	WatchlistID   uuid.UUID  `json:"watchlist_id" gorm:"type:text;not null;column:watchlist_id"`
	WatchlistName string     `json:"watchlist_name" gorm:"type:text;not null;column:watchlist_name"`
	InvitedBy     string     `json:"invited_by" gorm:"type:text;not null;column:invited_by"`
	InvitedByName string     `json:"invited_by_name" gorm:"type:text;not null;column:invited_by_name"`
	EmailSent     bool       `json:"email_sent" gorm:"type:integer;not null;default:0;column:email_sent"`
	EmailSentAt   *time.Time `json:"email_sent_at,omitempty" gorm:"type:datetime;column:email_sent_at"`
	Attempts      int        `json:"-" gorm:"type:integer;not null;default:0;column:attempts"`
	LastError     *string    `json:"-" gorm:"type:text;column:last_error"`
	NextAttemptAt *time.Time `json:"-" gorm:"type:datetime;column:next_attempt_at"`
	FailedAt      *time.Time `json:"-" gorm:"type:datetime;column:failed_at"`
	CreatedAt     time.Time  `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
}

// NewPendingInvite creates an invite for email to join watchlist w
func NewPendingInvite(email string, w *Watchlist, inviter Identity) *PendingInvite {
	name := inviter.DisplayName
	if name == "" {
		name = "A user"
	}
	return &PendingInvite{
		ID:            uuid.New(),
		Email:         NormalizeEmail(email),
		WatchlistID:   w.ID,
		WatchlistName: w.Name,
		InvitedBy:     inviter.UserID,
		InvitedByName: name,
		CreatedAt:     time.Now().UTC(),
	}
}

// Undeliverable reports whether the dispatcher gave up on the invite email
func (i *PendingInvite) Undeliverable() bool {
	return i.FailedAt != nil
}

// InviteAcceptance records a consumed invite so a retried accept can be
// resolved after the pending invite is gone
type InviteAcceptance struct {
	InviteID    uuid.UUID `json:"invite_id" gorm:"type:text;primaryKey;column:invite_id"`
	WatchlistID uuid.UUID `json:"watchlist_id" gorm:"type:text;not null;column:watchlist_id"`
	UserID      string    `json:"user_id" gorm:"type:text;not null;column:user_id"`
	AcceptedAt  time.Time `json:"accepted_at" gorm:"type:datetime;not null;column:accepted_at"`
}
