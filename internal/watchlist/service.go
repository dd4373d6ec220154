// Package watchlist implements the shared watchlist: turn-based admission of
// queue items, the now-playing lifecycle and invitations.
package watchlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/events"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
)

// Observer receives the outcome of every service operation
type Observer interface {
	Observe(operation, outcome string, elapsed time.Duration)
}

// Option configures a Service
type Option func(*Service)

// WithObserver reports operation outcomes to o
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service handles business logic for watchlists. Every mutation runs in one
// database transaction and publishes change events after commit.
type Service struct {
	db        *db.DB
	repos     *db.Repositories
	publisher events.Publisher
	observer  Observer
	now       func() time.Time
}

// NewService creates a new watchlist service instance
func NewService(database *db.DB, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		db:        database,
		repos:     db.NewRepositories(database),
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewItem describes an item proposed for the queue
type NewItem struct {
	Kind       models.Kind
	Title      string
	ExternalID *string
	PosterPath string
	Overview   string
}

// Snapshot is the full current state of a watchlist
type Snapshot struct {
	Watchlist *models.Watchlist       `json:"watchlist"`
	Pending   []*models.WatchlistItem `json:"pending"`
	Finished  []*models.WatchlistItem `json:"finished"`
}

// CreateWatchlist creates a watchlist with the creator as its only member and
// makes it the creator's active watchlist. A non-empty partnerEmail is invited
// afterwards; if that invite fails the watchlist is still returned along with
// the error.
func (s *Service) CreateWatchlist(ctx context.Context, creator models.Identity, name, partnerEmail string) (w *models.Watchlist, err error) {
	defer s.observe("create_watchlist", time.Now(), &err)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("failed to create watchlist: %w", ErrEmptyName)
	}
	if partnerEmail != "" {
		if err := validateInviteEmail(partnerEmail, creator); err != nil {
			return nil, fmt.Errorf("failed to create watchlist: %w", err)
		}
	}

	w = models.NewWatchlist(name, creator.UserID)
	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		if _, err := ensureUser(ctx, r, creator); err != nil {
			return err
		}
		if err := r.Watchlists.Create(ctx, w); err != nil {
			return err
		}
		return r.Users.MarkCreator(ctx, creator.UserID, w.ID)
	})
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("actor_id", creator.UserID).
			Msg("Failed to create watchlist")
		return nil, fmt.Errorf("failed to create watchlist: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", w.ID.String()).
		Str("actor_id", creator.UserID).
		Msg("Watchlist created successfully")

	s.publish(ctx, events.NewUserEvent(creator.UserID))

	if partnerEmail != "" {
		if _, err := s.Invite(ctx, w.ID, creator, partnerEmail); err != nil {
			return w, fmt.Errorf("watchlist created but partner invite failed: %w", err)
		}
	}
	return w, nil
}

// Get returns the watchlist if actorID is a member
func (s *Service) Get(ctx context.Context, id uuid.UUID, actorID string) (*models.Watchlist, error) {
	w, err := memberWatchlist(ctx, s.repos, id, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get watchlist: %w", err)
	}
	return w, nil
}

// Snapshot returns the watchlist with its pending queue and finished history
func (s *Service) Snapshot(ctx context.Context, id uuid.UUID, actorID string) (*Snapshot, error) {
	w, err := s.Get(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repos.Items.ListPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	finished, err := s.repos.Items.ListFinished(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return &Snapshot{Watchlist: w, Pending: pending, Finished: finished}, nil
}

// ListPending returns the pending queue, oldest first
func (s *Service) ListPending(ctx context.Context, id uuid.UUID, actorID string) ([]*models.WatchlistItem, error) {
	if _, err := s.Get(ctx, id, actorID); err != nil {
		return nil, err
	}
	items, err := s.repos.Items.ListPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

// ListFinished returns the finished history, most recently finished first
func (s *Service) ListFinished(ctx context.Context, id uuid.UUID, actorID string) ([]*models.WatchlistItem, error) {
	if _, err := s.Get(ctx, id, actorID); err != nil {
		return nil, err
	}
	items, err := s.repos.Items.ListFinished(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished items: %w", err)
	}
	return items, nil
}

// AddItem appends an item to the pending queue if the turn rule admits it.
// On success both turn pointers for the item's kind name the actor.
func (s *Service) AddItem(ctx context.Context, watchlistID uuid.UUID, actorID string, in NewItem) (item *models.WatchlistItem, err error) {
	defer s.observe("add_item", time.Now(), &err)

	if !in.Kind.Valid() {
		return nil, fmt.Errorf("failed to add item: %w", ErrInvalidKind)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("failed to add item: %w", ErrEmptyName)
	}

	item = models.NewWatchlistItem(watchlistID, in.Kind, title, actorID)
	item.ExternalID = in.ExternalID
	item.PosterPath = in.PosterPath
	item.Overview = in.Overview
	item.AddedAt = s.now()

	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		w, err := memberWatchlist(ctx, r, watchlistID, actorID)
		if err != nil {
			return err
		}
		pending, err := r.Items.CountPending(ctx, watchlistID)
		if err != nil {
			return err
		}
		if !CanAdd(w, in.Kind, actorID, pending) {
			return ErrNotYourTurn
		}
		if err := r.Items.Create(ctx, item); err != nil {
			return err
		}
		ok, err := r.Watchlists.RecordAdd(ctx, watchlistID, in.Kind, w.LastAddedByKind(in.Kind), actorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", watchlistID.String()).
			Str("actor_id", actorID).
			Str("kind", in.Kind.String()).
			Msg("Add item failed")
		return nil, fmt.Errorf("failed to add item: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("item_id", item.ID.String()).
		Str("actor_id", actorID).
		Str("kind", in.Kind.String()).
		Msg("Item added to queue")

	s.publish(ctx, events.NewWatchlistEvent(watchlistID))
	return item, nil
}

// Promote moves a pending item into the now-playing slot for its kind. The
// slot must be empty and it must be the actor's turn, unless the queue holds
// at most one item. The per-kind turn pointer is set to the item's original
// adder rather than the promoter.
func (s *Service) Promote(ctx context.Context, watchlistID, itemID uuid.UUID, actorID string) (np *models.NowPlaying, err error) {
	defer s.observe("promote", time.Now(), &err)

	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		w, err := memberWatchlist(ctx, r, watchlistID, actorID)
		if err != nil {
			return err
		}
		item, err := r.Items.GetInWatchlist(ctx, watchlistID, itemID)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrItemNotFound
			}
			return err
		}
		if item.IsFinished() {
			return ErrItemNotPending
		}
		if w.NowPlaying(item.Kind) != nil {
			return ErrAlreadyPlaying
		}
		pending, err := r.Items.CountPending(ctx, watchlistID)
		if err != nil {
			return err
		}
		if !CanPromote(w, item.Kind, actorID, pending) {
			return ErrNotYourTurn
		}

		if err := r.Items.Delete(ctx, item.ID); err != nil {
			return err
		}
		np = models.NowPlayingFrom(item, s.now())
		ok, err := r.Watchlists.FillSlot(ctx, watchlistID, item.Kind, np, item.AddedBy)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", watchlistID.String()).
			Str("item_id", itemID.String()).
			Str("actor_id", actorID).
			Msg("Promote failed")
		return nil, fmt.Errorf("failed to promote item: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("item_id", itemID.String()).
		Str("actor_id", actorID).
		Str("kind", np.Kind.String()).
		Msg("Item promoted to now playing")

	s.publish(ctx, events.NewWatchlistEvent(watchlistID))
	return np, nil
}

// Finish records the now-playing item of kind as finished and empties the
// slot. The item's original row is stamped, or recreated under its original
// id when the row no longer exists. The per-kind turn pointer is cleared.
func (s *Service) Finish(ctx context.Context, watchlistID uuid.UUID, kind models.Kind, actorID string) (finished *models.WatchlistItem, err error) {
	defer s.observe("finish", time.Now(), &err)

	if !kind.Valid() {
		return nil, fmt.Errorf("failed to finish: %w", ErrInvalidKind)
	}

	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		w, err := memberWatchlist(ctx, r, watchlistID, actorID)
		if err != nil {
			return err
		}
		np := w.NowPlaying(kind)
		if np == nil {
			return ErrNothingPlaying
		}
		if np.SourceItemID == uuid.Nil {
			return ErrOriginalRecordMissing
		}

		now := s.now()
		original, err := r.Items.GetInWatchlist(ctx, watchlistID, np.SourceItemID)
		switch {
		case err == nil && original.IsFinished():
			return ErrConcurrentUpdate
		case err == nil:
			if err := r.Items.MarkFinished(ctx, original.ID, now); err != nil {
				return err
			}
			original.FinishedAt = &now
			finished = original
		case db.IsNotFound(err):
			finished = finishedFromNowPlaying(watchlistID, np, now)
			if err := r.Items.Create(ctx, finished); err != nil {
				if db.IsDuplicate(err) {
					return ErrConcurrentUpdate
				}
				return err
			}
		default:
			return err
		}

		ok, err := r.Watchlists.ReleaseSlot(ctx, watchlistID, kind, np.SourceItemID, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", watchlistID.String()).
			Str("actor_id", actorID).
			Str("kind", kind.String()).
			Msg("Finish failed")
		return nil, fmt.Errorf("failed to finish: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("item_id", finished.ID.String()).
		Str("actor_id", actorID).
		Str("kind", kind.String()).
		Msg("Now playing finished")

	s.publish(ctx, events.NewWatchlistEvent(watchlistID))
	return finished, nil
}

// MoveBack returns the now-playing item of kind to the queue as a new item
// credited to the actor, who becomes the last adder for that kind.
func (s *Service) MoveBack(ctx context.Context, watchlistID uuid.UUID, kind models.Kind, actorID string) (item *models.WatchlistItem, err error) {
	defer s.observe("move_back", time.Now(), &err)

	if !kind.Valid() {
		return nil, fmt.Errorf("failed to move back: %w", ErrInvalidKind)
	}

	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		w, err := memberWatchlist(ctx, r, watchlistID, actorID)
		if err != nil {
			return err
		}
		np := w.NowPlaying(kind)
		if np == nil {
			return ErrNothingPlaying
		}

		item = models.NewWatchlistItem(watchlistID, kind, np.Title, actorID)
		item.ExternalID = np.ExternalID
		item.PosterPath = np.PosterPath
		item.Overview = np.Overview
		item.AddedAt = s.now()
		if err := r.Items.Create(ctx, item); err != nil {
			return err
		}

		ok, err := r.Watchlists.ReleaseSlot(ctx, watchlistID, kind, np.SourceItemID, &actorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", watchlistID.String()).
			Str("actor_id", actorID).
			Str("kind", kind.String()).
			Msg("Move back failed")
		return nil, fmt.Errorf("failed to move back: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("item_id", item.ID.String()).
		Str("actor_id", actorID).
		Str("kind", kind.String()).
		Msg("Now playing moved back to queue")

	s.publish(ctx, events.NewWatchlistEvent(watchlistID))
	return item, nil
}

// ClearNowPlaying empties the now-playing slot of kind without recording it
// as finished. The per-kind turn pointer is cleared.
func (s *Service) ClearNowPlaying(ctx context.Context, watchlistID uuid.UUID, kind models.Kind, actorID string) (err error) {
	defer s.observe("clear_now_playing", time.Now(), &err)

	if !kind.Valid() {
		return fmt.Errorf("failed to clear now playing: %w", ErrInvalidKind)
	}

	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		w, err := memberWatchlist(ctx, r, watchlistID, actorID)
		if err != nil {
			return err
		}
		np := w.NowPlaying(kind)
		if np == nil {
			return ErrNothingPlaying
		}
		ok, err := r.Watchlists.ReleaseSlot(ctx, watchlistID, kind, np.SourceItemID, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", watchlistID.String()).
			Str("actor_id", actorID).
			Str("kind", kind.String()).
			Msg("Clear now playing failed")
		return fmt.Errorf("failed to clear now playing: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("actor_id", actorID).
		Str("kind", kind.String()).
		Msg("Now playing cleared")

	s.publish(ctx, events.NewWatchlistEvent(watchlistID))
	return nil
}

// RemoveItem deletes a pending item. Only the member who added it may remove
// it. When at most one pending item remains all turn pointers are reset.
func (s *Service) RemoveItem(ctx context.Context, itemID uuid.UUID, actorID string) (err error) {
	defer s.observe("remove_item", time.Now(), &err)

	var watchlistID uuid.UUID
	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		item, err := r.Items.GetByID(ctx, itemID)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrItemNotFound
			}
			return err
		}
		watchlistID = item.WatchlistID
		if _, err := memberWatchlist(ctx, r, item.WatchlistID, actorID); err != nil {
			return err
		}
		if item.AddedBy != actorID {
			return ErrNotItemOwner
		}
		if item.IsFinished() {
			return ErrItemNotPending
		}

		if err := r.Items.Delete(ctx, itemID); err != nil {
			return err
		}
		remaining, err := r.Items.CountPending(ctx, item.WatchlistID)
		if err != nil {
			return err
		}
		if shouldResetTurns(remaining) {
			return r.Watchlists.ResetTurns(ctx, item.WatchlistID)
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("item_id", itemID.String()).
			Str("actor_id", actorID).
			Msg("Remove item failed")
		return fmt.Errorf("failed to remove item: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("item_id", itemID.String()).
		Str("actor_id", actorID).
		Msg("Item removed from queue")

	s.publish(ctx, events.NewWatchlistEvent(watchlistID))
	return nil
}

// ReviewItem sets the rating and comment of a finished item. Any member may
// review. A nil rating or blank comment clears the field.
func (s *Service) ReviewItem(ctx context.Context, itemID uuid.UUID, actorID string, rating *int, comment *string) (item *models.WatchlistItem, err error) {
	defer s.observe("review_item", time.Now(), &err)

	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, fmt.Errorf("failed to review item: %w", ErrInvalidRating)
	}
	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		if trimmed == "" {
			comment = nil
		} else {
			comment = &trimmed
		}
	}

	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		found, err := r.Items.GetByID(ctx, itemID)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrItemNotFound
			}
			return err
		}
		if _, err := memberWatchlist(ctx, r, found.WatchlistID, actorID); err != nil {
			return err
		}
		if !found.IsFinished() {
			return ErrItemNotFinished
		}
		if err := r.Items.UpdateReview(ctx, itemID, rating, comment); err != nil {
			return err
		}
		found.Rating = rating
		found.Comment = comment
		item = found
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("item_id", itemID.String()).
			Str("actor_id", actorID).
			Msg("Review item failed")
		return nil, fmt.Errorf("failed to review item: %w", err)
	}

	s.publish(ctx, events.NewWatchlistEvent(item.WatchlistID))
	return item, nil
}

// memberWatchlist loads a watchlist and checks that actorID belongs to it
func memberWatchlist(ctx context.Context, r *db.Repositories, id uuid.UUID, actorID string) (*models.Watchlist, error) {
	w, err := r.Watchlists.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrWatchlistNotFound
		}
		return nil, err
	}
	if !w.IsMember(actorID) {
		return nil, ErrNotMember
	}
	return w, nil
}

func finishedFromNowPlaying(watchlistID uuid.UUID, np *models.NowPlaying, at time.Time) *models.WatchlistItem {
	return &models.WatchlistItem{
		ID:          np.SourceItemID,
		WatchlistID: watchlistID,
		ExternalID:  np.ExternalID,
		Title:       np.Title,
		PosterPath:  np.PosterPath,
		Overview:    np.Overview,
		Kind:        np.Kind,
		AddedBy:     np.AddedBy,
		AddedAt:     np.AddedAt,
		FinishedAt:  &at,
	}
}

// publish sends change events. The mutation is already committed, so a
// failed publish is logged and not returned.
func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, e); err != nil {
			logger.Log.Warn().
				Err(err).
				Str("topic", e.Topic).
				Str("type", string(e.Type)).
				Msg("Failed to publish change event")
		}
	}
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	if s.observer == nil {
		return
	}
	outcome := "ok"
	if *err != nil {
		outcome = KindOf(*err).String()
	}
	s.observer.Observe(operation, outcome, time.Since(start))
}

// failureEvent logs rejected business rules at warn and everything else at error
func failureEvent(err error) *zerolog.Event {
	if IsTransient(err) {
		return logger.Log.Error().Err(err)
	}
	return logger.Log.Warn().Err(err)
}
