package watchlist

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/events"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
)

// Invitation is an open invitation for a user to join a watchlist. InviteID
// is set when the invitation came from an email invite.
type Invitation struct {
	WatchlistID   uuid.UUID  `json:"watchlist_id"`
	WatchlistName string     `json:"watchlist_name"`
	InviteID      *uuid.UUID `json:"invite_id,omitempty"`
	InvitedByName string     `json:"invited_by_name,omitempty"`
}

// Invite invites email to the watchlist. An existing account receives a
// direct invitation on its profile and a nil invite is returned; any other
// address gets a pending invite that the mail dispatcher delivers.
func (s *Service) Invite(ctx context.Context, watchlistID uuid.UUID, inviter models.Identity, email string) (invite *models.PendingInvite, err error) {
	defer s.observe("invite", time.Now(), &err)

	if err := validateInviteEmail(email, inviter); err != nil {
		return nil, fmt.Errorf("failed to invite: %w", err)
	}
	email = models.NormalizeEmail(email)

	var invitedUserID string
	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		w, err := memberWatchlist(ctx, r, watchlistID, inviter.UserID)
		if err != nil {
			return err
		}

		user, err := r.Users.GetByEmail(ctx, email)
		if err != nil {
			if !db.IsNotFound(err) {
				return err
			}
			user = nil
		}
		if user != nil && w.IsMember(user.ID) {
			return ErrAlreadyMember
		}

		// An email invite outlives the invitee signing up, so it counts for
		// existing accounts too.
		if _, err := r.Invites.FindByEmailAndWatchlist(ctx, email, watchlistID); err == nil {
			return ErrAlreadyInvited
		} else if !db.IsNotFound(err) {
			return err
		}

		if user != nil {
			if user.WatchlistInvites.Contains(watchlistID.String()) {
				return ErrAlreadyInvited
			}
			invitedUserID = user.ID
			return r.Users.SetInvites(ctx, user.ID, user.WatchlistInvites.With(watchlistID.String()))
		}

		invite = models.NewPendingInvite(email, w, inviter)
		invite.CreatedAt = s.now()
		if err := r.Invites.Create(ctx, invite); err != nil {
			if db.IsDuplicate(err) {
				return ErrAlreadyInvited
			}
			return err
		}
		return nil
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", watchlistID.String()).
			Str("actor_id", inviter.UserID).
			Msg("Invite failed")
		return nil, fmt.Errorf("failed to invite: %w", err)
	}

	if invitedUserID != "" {
		logger.Log.Info().
			Str("watchlist_id", watchlistID.String()).
			Str("actor_id", inviter.UserID).
			Str("user_id", invitedUserID).
			Msg("Existing user invited to watchlist")
		s.publish(ctx, events.NewUserEvent(invitedUserID))
		return nil, nil
	}

	logger.Log.Info().
		Str("watchlist_id", watchlistID.String()).
		Str("actor_id", inviter.UserID).
		Str("invite_id", invite.ID.String()).
		Msg("Pending invite created")
	s.publish(ctx, events.NewInviteEvent(invite.ID, watchlistID))
	return invite, nil
}

// AcceptInvite joins the acceptor to a watchlist and makes it their active
// watchlist. With an invite id the invite must be addressed to the acceptor's
// verified email and, when watchlistID is set, belong to that watchlist.
// Without one the acceptor must hold a direct invitation to watchlistID.
// Accepting again after success returns the same watchlist id.
func (s *Service) AcceptInvite(ctx context.Context, acceptor models.Identity, watchlistID, inviteID uuid.UUID) (joined uuid.UUID, err error) {
	defer s.observe("accept_invite", time.Now(), &err)

	if watchlistID == uuid.Nil && inviteID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("failed to accept invite: %w", ErrInviteNotFound)
	}

	joined = watchlistID
	err = s.db.WithRepositories(ctx, func(r *db.Repositories) error {
		user, err := ensureUser(ctx, r, acceptor)
		if err != nil {
			return err
		}

		var invite *models.PendingInvite
		if inviteID != uuid.Nil {
			invite, err = r.Invites.GetByID(ctx, inviteID)
			switch {
			case err == nil:
				if !acceptor.EmailVerified || models.NormalizeEmail(acceptor.Email) != invite.Email {
					return ErrEmailMismatch
				}
				if watchlistID != uuid.Nil && invite.WatchlistID != watchlistID {
					return ErrWatchlistMismatch
				}
				joined = invite.WatchlistID
			case db.IsNotFound(err):
				invite = nil
				accepted, err := acceptedBy(ctx, r, inviteID, user.ID)
				if err != nil {
					return err
				}
				switch {
				case accepted != nil && watchlistID != uuid.Nil && accepted.WatchlistID != watchlistID:
					return ErrWatchlistMismatch
				case accepted != nil:
					joined = accepted.WatchlistID
				case watchlistID == uuid.Nil:
					return ErrInviteNotFound
				}
			default:
				return err
			}
		}

		w, err := r.Watchlists.GetByID(ctx, joined)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrWatchlistNotFound
			}
			return err
		}

		directlyInvited := user.WatchlistInvites.Contains(joined.String())
		if invite == nil && !directlyInvited && !w.IsMember(user.ID) {
			if inviteID != uuid.Nil {
				return ErrInviteNotFound
			}
			return ErrNotInvited
		}

		if !w.IsMember(user.ID) {
			if err := r.Watchlists.SetMembers(ctx, w.ID, w.Members.With(user.ID)); err != nil {
				return err
			}
		}
		if invite != nil {
			if err := r.Invites.Delete(ctx, invite.ID); err != nil {
				return err
			}
			if err := r.Invites.RecordAcceptance(ctx, &models.InviteAcceptance{
				InviteID:    invite.ID,
				WatchlistID: invite.WatchlistID,
				UserID:      user.ID,
				AcceptedAt:  s.now(),
			}); err != nil {
				return err
			}
		}
		if directlyInvited {
			if err := r.Users.SetInvites(ctx, user.ID, user.WatchlistInvites.Without(joined.String())); err != nil {
				return err
			}
		}
		return r.Users.SetActiveWatchlist(ctx, user.ID, joined)
	})
	if err != nil {
		failureEvent(err).
			Str("watchlist_id", joined.String()).
			Str("actor_id", acceptor.UserID).
			Msg("Accept invite failed")
		return uuid.Nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	logger.Log.Info().
		Str("watchlist_id", joined.String()).
		Str("actor_id", acceptor.UserID).
		Msg("Invite accepted")

	s.publish(ctx, events.NewWatchlistEvent(joined), events.NewUserEvent(acceptor.UserID))
	return joined, nil
}

// acceptedBy returns the acceptance of a consumed invite when userID made it
func acceptedBy(ctx context.Context, r *db.Repositories, inviteID uuid.UUID, userID string) (*models.InviteAcceptance, error) {
	accepted, err := r.Invites.GetAcceptance(ctx, inviteID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if accepted.UserID != userID {
		return nil, nil
	}
	return accepted, nil
}

// ListInvitations returns the open invitations for a user: direct invitations
// on the profile and, for a verified email, pending email invites
func (s *Service) ListInvitations(ctx context.Context, identity models.Identity) ([]Invitation, error) {
	user, err := s.repos.Users.GetByID(ctx, identity.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("failed to list invitations: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(user.WatchlistInvites))
	for _, raw := range user.WatchlistInvites {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.Log.Warn().
				Str("user_id", user.ID).
				Str("watchlist_id", raw).
				Msg("Skipping malformed watchlist invite")
			continue
		}
		ids = append(ids, id)
	}

	watchlists, err := s.repos.Watchlists.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	names := make(map[uuid.UUID]string, len(watchlists))
	for _, w := range watchlists {
		names[w.ID] = w.Name
	}

	invitations := make([]Invitation, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		name, ok := names[id]
		if !ok {
			continue
		}
		seen[id] = true
		invitations = append(invitations, Invitation{WatchlistID: id, WatchlistName: name})
	}

	if !identity.EmailVerified {
		return invitations, nil
	}

	pending, err := s.repos.Invites.ListByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	for _, inv := range pending {
		if seen[inv.WatchlistID] {
			continue
		}
		id := inv.ID
		invitations = append(invitations, Invitation{
			WatchlistID:   inv.WatchlistID,
			WatchlistName: inv.WatchlistName,
			InviteID:      &id,
			InvitedByName: inv.InvitedByName,
		})
	}
	return invitations, nil
}

func validateInviteEmail(email string, inviter models.Identity) error {
	normalized := models.NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return ErrInvalidEmail
	}
	if normalized == models.NormalizeEmail(inviter.Email) {
		return ErrSelfInvite
	}
	return nil
}
