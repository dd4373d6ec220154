package models

import (
	"time"

	"github.com/google/uuid"
)

// WatchlistItem is a queued candidate or, once FinishedAt is set, a finished record
type WatchlistItem struct {
	ID          uuid.UUID  `json:"id" gorm:"type:text;primaryKey;column:id"`
	WatchlistID uuid.UUID  `json:"watchlist_id" gorm:"type:text;not null;column:watchlist_id" validate:"required"`
	ExternalID  *string    `json:"external_id,omitempty" gorm:"type:text;column:external_id"`
	Title       string     `json:"title" gorm:"type:text;not null;column:title" validate:"required"`
	PosterPath  string     `json:"poster_path" gorm:"type:text;not null;default:'';column:poster_path"`
	Overview    string     `json:"overview" gorm:"type:text;not null;default:'';column:overview"`
	Kind        Kind       `json:"kind" gorm:"type:text;not null;column:kind" validate:"oneof=movie show"`
	AddedBy     string     `json:"added_by" gorm:"type:text;not null;column:added_by" validate:"required"`
	AddedAt     time.Time  `json:"added_at" gorm:"type:datetime;not null;column:added_at"`
	Rating      *int       `json:"rating,omitempty" gorm:"type:integer;column:rating" validate:"omitempty,gte=1,lte=5"`
	Comment     *string    `json:"comment,omitempty" gorm:"type:text;column:comment"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" gorm:"type:datetime;column:finished_at"`
}

// NewWatchlistItem creates a pending item with generated UUID and timestamp
func NewWatchlistItem(watchlistID uuid.UUID, kind Kind, title, addedBy string) *WatchlistItem {
	return &WatchlistItem{
		ID:          uuid.New(),
		WatchlistID: watchlistID,
		Title:       title,
		Kind:        kind,
		AddedBy:     addedBy,
		AddedAt:     time.Now().UTC(),
	}
}

// IsFinished reports whether the item is a finished record
func (i *WatchlistItem) IsFinished() bool {
	return i.FinishedAt != nil
}
