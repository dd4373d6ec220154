package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Watchlist is the shared queue aggregate: membership, per-kind turn pointers
// and the now-playing slots
type Watchlist struct {
	ID               uuid.UUID  `json:"id" gorm:"type:text;primaryKey;column:id"`
	Name             string     `json:"name" gorm:"type:text;not null;column:name" validate:"required,min=1,max=255"`
	Members          StringList `json:"members" gorm:"type:text;not null;column:members"`
	NowPlayingMovie  Slot       `json:"now_playing_movie" gorm:"type:text;column:now_playing_movie"`
	NowPlayingShow   Slot       `json:"now_playing_show" gorm:"type:text;column:now_playing_show"`
	LastAddedBy      *string    `json:"last_added_by" gorm:"type:text;column:last_added_by"`
	LastAddedByMovie *string    `json:"last_added_by_movie" gorm:"type:text;column:last_added_by_movie"`
	LastAddedByShow  *string    `json:"last_added_by_show" gorm:"type:text;column:last_added_by_show"`
	CreatedAt        time.Time  `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewWatchlist creates a Watchlist owned by a single creator
func NewWatchlist(name, creatorID string) *Watchlist {
	now := time.Now().UTC()
	return &Watchlist{
		ID:        uuid.New(),
		Name:      name,
		Members:   StringList{creatorID},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsMember reports whether userID belongs to the watchlist
func (w *Watchlist) IsMember(userID string) bool {
	return w.Members.Contains(userID)
}

// NowPlaying returns the item occupying the slot for kind, or nil
func (w *Watchlist) NowPlaying(kind Kind) *NowPlaying {
	if kind == KindMovie {
		return w.NowPlayingMovie.Item
	}
	return w.NowPlayingShow.Item
}

// LastAddedByKind returns the per-kind turn pointer
func (w *Watchlist) LastAddedByKind(kind Kind) *string {
	if kind == KindMovie {
		return w.LastAddedByMovie
	}
	return w.LastAddedByShow
}

// NowPlayingColumn returns the column holding the now-playing slot for kind
func NowPlayingColumn(kind Kind) string {
	if kind == KindMovie {
		return "now_playing_movie"
	}
	return "now_playing_show"
}

// LastAddedByColumn returns the column holding the per-kind turn pointer
func LastAddedByColumn(kind Kind) string {
	if kind == KindMovie {
		return "last_added_by_movie"
	}
	return "last_added_by_show"
}

// NowPlaying is the detached copy of a promoted item held in a now-playing slot.
// It is not a row; SourceItemID points at the queue row it was promoted from.
type NowPlaying struct {
	SourceItemID uuid.UUID `json:"source_item_id"`
	ExternalID   *string   `json:"external_id,omitempty"`
	Title        string    `json:"title"`
	PosterPath   string    `json:"poster_path"`
	Overview     string    `json:"overview"`
	Kind         Kind      `json:"kind"`
	AddedBy      string    `json:"added_by"`
	AddedAt      time.Time `json:"added_at"`
	StartedAt    time.Time `json:"started_at"`
}

// NowPlayingFrom builds the detached copy for a pending item
func NowPlayingFrom(item *WatchlistItem, startedAt time.Time) *NowPlaying {
	return &NowPlaying{
		SourceItemID: item.ID,
		ExternalID:   item.ExternalID,
		Title:        item.Title,
		PosterPath:   item.PosterPath,
		Overview:     item.Overview,
		Kind:         item.Kind,
		AddedBy:      item.AddedBy,
		AddedAt:      item.AddedAt,
		StartedAt:    startedAt,
	}
}

// Slot is a nullable now-playing column. An empty slot is stored as NULL.
type Slot struct {
	Item *NowPlaying
}

// Occupied reports whether the slot holds an item
func (s Slot) Occupied() bool {
	return s.Item != nil
}

// Value implements driver.Valuer
func (s Slot) Value() (driver.Value, error) {
	if s.Item == nil {
		return nil, nil
	}
	b, err := json.Marshal(s.Item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode now playing: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (s *Slot) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		s.Item = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for now playing", src)
	}

	if len(raw) == 0 || string(raw) == "null" {
		s.Item = nil
		return nil
	}

	var item NowPlaying
	if err := json.Unmarshal(raw, &item); err != nil {
		return fmt.Errorf("failed to decode now playing: %w", err)
	}
	s.Item = &item
	return nil
}

// MarshalJSON renders the slot as its item or null
func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Item)
}

// UnmarshalJSON reads an item or null
func (s *Slot) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		s.Item = nil
		return nil
	}
	var item NowPlaying
	if err := json.Unmarshal(b, &item); err != nil {
		return err
	}
	s.Item = &item
	return nil
}
