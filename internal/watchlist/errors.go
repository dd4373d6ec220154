package watchlist

import (
	"errors"

	"github.com/stwalsh4118/urnext/internal/db"
)

// Custom watchlist service errors
var (
	// ErrWatchlistNotFound indicates the requested watchlist does not exist
	ErrWatchlistNotFound = errors.New("watchlist not found")

	// ErrItemNotFound indicates the requested item does not exist in the watchlist
	ErrItemNotFound = errors.New("item not found")

	// ErrUserNotFound indicates no profile exists for the user
	ErrUserNotFound = errors.New("user not found")

	// ErrInviteNotFound indicates the invite does not exist or was already consumed
	ErrInviteNotFound = errors.New("invite not found")

	// ErrNotMember indicates the actor is not a member of the watchlist
	ErrNotMember = errors.New("not a member of this watchlist")

	// ErrNotItemOwner indicates only the member who added an item may remove it
	ErrNotItemOwner = errors.New("only the member who added this item can remove it")

	// ErrNotYourTurn indicates the turn rule rejected the action
	ErrNotYourTurn = errors.New("it is not your turn")

	// ErrAlreadyPlaying indicates the now-playing slot for the kind is occupied
	ErrAlreadyPlaying = errors.New("something is already playing")

	// ErrNothingPlaying indicates the now-playing slot for the kind is empty
	ErrNothingPlaying = errors.New("nothing is playing")

	// ErrOriginalRecordMissing indicates the now-playing copy cannot be traced to its item
	ErrOriginalRecordMissing = errors.New("original item record is missing")

	// ErrAlreadyInvited indicates the email was already invited to the watchlist
	ErrAlreadyInvited = errors.New("already invited")

	// ErrAlreadyMember indicates the invitee already belongs to the watchlist
	ErrAlreadyMember = errors.New("already a member")

	// ErrSelfInvite indicates a member tried to invite their own email
	ErrSelfInvite = errors.New("cannot invite yourself")

	// ErrEmailMismatch indicates the invite is addressed to a different verified email
	ErrEmailMismatch = errors.New("invite email does not match your account")

	// ErrWatchlistMismatch indicates the invite belongs to a different watchlist
	ErrWatchlistMismatch = errors.New("invite is for a different watchlist")

	// ErrNotInvited indicates the user holds no invitation to the watchlist
	ErrNotInvited = errors.New("no invitation to this watchlist")

	// ErrInvalidKind indicates the media kind is not movie or show
	ErrInvalidKind = errors.New("kind must be movie or show")

	// ErrEmptyName indicates a required name or title is blank
	ErrEmptyName = errors.New("name must not be empty")

	// ErrInvalidEmail indicates the email address is malformed
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrItemNotPending indicates the item is a finished record
	ErrItemNotPending = errors.New("item is not in the queue")

	// ErrItemNotFinished indicates only finished items can be reviewed
	ErrItemNotFinished = errors.New("item has not been finished")

	// ErrInvalidRating indicates the rating is outside 1-5
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrConcurrentUpdate indicates another member changed the watchlist first; retry
	ErrConcurrentUpdate = errors.New("watchlist was modified concurrently")
)

// ErrorKind is the category a service error falls into
type ErrorKind int

const (
	// ErrorKindTransient indicates store or network trouble; the caller may retry
	ErrorKindTransient ErrorKind = iota
	// ErrorKindNotFound indicates a referenced watchlist, item, user or invite is absent
	ErrorKindNotFound
	// ErrorKindPermissionDenied indicates the actor lacks rights for the action
	ErrorKindPermissionDenied
	// ErrorKindTurnViolation indicates the turn rule rejected the action
	ErrorKindTurnViolation
	// ErrorKindAlreadyOccupied indicates the now-playing slot is busy
	ErrorKindAlreadyOccupied
	// ErrorKindDuplicateInvite indicates a repeated invitation
	ErrorKindDuplicateInvite
	// ErrorKindIdentityMismatch indicates the invite does not belong to the accepting account
	ErrorKindIdentityMismatch
	// ErrorKindInvalid indicates malformed input or an action invalid in the current state
	ErrorKindInvalid
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindNotFound:
		return "not_found"
	case ErrorKindPermissionDenied:
		return "permission_denied"
	case ErrorKindTurnViolation:
		return "turn_violation"
	case ErrorKindAlreadyOccupied:
		return "already_occupied"
	case ErrorKindDuplicateInvite:
		return "duplicate_invite"
	case ErrorKindIdentityMismatch:
		return "identity_mismatch"
	case ErrorKindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Retryable reports whether the caller may retry the same request
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrWatchlistNotFound, ErrorKindNotFound},
	{ErrItemNotFound, ErrorKindNotFound},
	{ErrUserNotFound, ErrorKindNotFound},
	{ErrInviteNotFound, ErrorKindNotFound},
	{ErrNotMember, ErrorKindPermissionDenied},
	{ErrNotItemOwner, ErrorKindPermissionDenied},
	{ErrNotInvited, ErrorKindPermissionDenied},
	{ErrNotYourTurn, ErrorKindTurnViolation},
	{ErrAlreadyPlaying, ErrorKindAlreadyOccupied},
	{ErrAlreadyInvited, ErrorKindDuplicateInvite},
	{ErrAlreadyMember, ErrorKindDuplicateInvite},
	{ErrEmailMismatch, ErrorKindIdentityMismatch},
	{ErrWatchlistMismatch, ErrorKindIdentityMismatch},
	{ErrNothingPlaying, ErrorKindInvalid},
	{ErrOriginalRecordMissing, ErrorKindInvalid},
	{ErrSelfInvite, ErrorKindInvalid},
	{ErrInvalidKind, ErrorKindInvalid},
	{ErrEmptyName, ErrorKindInvalid},
	{ErrInvalidEmail, ErrorKindInvalid},
	{ErrItemNotPending, ErrorKindInvalid},
	{ErrItemNotFinished, ErrorKindInvalid},
	{ErrInvalidRating, ErrorKindInvalid},
	{ErrConcurrentUpdate, ErrorKindTransient},
}

// KindOf classifies err. A foreign key violation means a referenced row is
// gone. Other errors that are not service errors, such as lock contention or
// cancelled contexts, classify as transient.
func KindOf(err error) ErrorKind {
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	if db.IsNotFound(err) || db.IsForeignKey(err) {
		return ErrorKindNotFound
	}
	return ErrorKindTransient
}

// IsNotFound checks if the error refers to a missing watchlist, item, user or invite
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == ErrorKindNotFound
}

// IsTurnViolation checks if the error is a turn rule rejection
func IsTurnViolation(err error) bool {
	return errors.Is(err, ErrNotYourTurn)
}

// IsAlreadyPlaying checks if the error is an occupied now-playing slot
func IsAlreadyPlaying(err error) bool {
	return errors.Is(err, ErrAlreadyPlaying)
}

// IsDuplicateInvite checks if the error is a repeated invitation
func IsDuplicateInvite(err error) bool {
	return errors.Is(err, ErrAlreadyInvited)
}

// IsTransient checks if the error is retryable
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == ErrorKindTransient
}
