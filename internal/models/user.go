package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the profile of an authenticated member. ActiveWatchlist mirrors
// watchlist membership and is rewritten by every membership change.
type User struct {
	ID                 string        `json:"id" gorm:"type:text;primaryKey;column:id"`
	Email              string        `json:"email" gorm:"type:text;not null;column:email"`
	DisplayName        string        `json:"display_name" gorm:"type:text;not null;default:'';column:display_name"`
	ActiveWatchlist    uuid.NullUUID `json:"active_watchlist" gorm:"type:text;column:active_watchlist"`
	WatchlistInvites   StringList    `json:"watchlist_invites" gorm:"type:text;not null;column:watchlist_invites"`
	IsWatchlistCreator bool          `json:"is_watchlist_creator" gorm:"type:integer;not null;default:0;column:is_watchlist_creator"`
	CreatedAt          time.Time     `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt          time.Time     `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewUser creates a profile from an authenticated identity
func NewUser(identity Identity) *User {
	now := time.Now().UTC()
	return &User{
		ID:               identity.UserID,
		Email:            NormalizeEmail(identity.Email),
		DisplayName:      identity.DisplayName,
		WatchlistInvites: StringList{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// FirstName returns the first word of the display name
func (u *User) FirstName() string {
	for i, r := range u.DisplayName {
		if r == ' ' {
			return u.DisplayName[:i]
		}
	}
	return u.DisplayName
}
