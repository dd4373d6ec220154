package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urnext/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, RunMigrations(sqlDB, "file://../../migrations"))

	return database
}

func createWatchlist(t *testing.T, repos *Repositories) *models.Watchlist {
	t.Helper()
	w := models.NewWatchlist("Friday", "alice")
	require.NoError(t, repos.Watchlists.Create(context.Background(), w))
	return w
}

func TestWatchlistRepository_RecordAddGuard(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)

	ok, err := repos.Watchlists.RecordAdd(ctx, w.ID, models.KindMovie, nil, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// The pointer moved, so a second writer holding the stale value loses.
	ok, err = repos.Watchlists.RecordAdd(ctx, w.ID, models.KindMovie, nil, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	alice := "alice"
	ok, err = repos.Watchlists.RecordAdd(ctx, w.ID, models.KindMovie, &alice, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repos.Watchlists.GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastAddedByMovie)
	assert.Equal(t, "bob", *got.LastAddedByMovie)
	require.NotNil(t, got.LastAddedBy)
	assert.Equal(t, "bob", *got.LastAddedBy)
	assert.Nil(t, got.LastAddedByShow)
}

func TestWatchlistRepository_SlotLifecycle(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)

	item := models.NewWatchlistItem(w.ID, models.KindShow, "Severance", "alice")
	require.NoError(t, repos.Items.Create(ctx, item))

	np := models.NowPlayingFrom(item, time.Now().UTC())
	ok, err := repos.Watchlists.FillSlot(ctx, w.ID, models.KindShow, np, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Watchlists.FillSlot(ctx, w.ID, models.KindShow, np, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "occupied slot must not be overwritten")

	got, err := repos.Watchlists.GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, got.NowPlayingShow.Occupied())
	assert.Equal(t, item.ID, got.NowPlayingShow.Item.SourceItemID)
	assert.False(t, got.NowPlayingMovie.Occupied())

	ok, err = repos.Watchlists.ReleaseSlot(ctx, w.ID, models.KindShow, uuid.New(), nil)
	require.NoError(t, err)
	assert.False(t, ok, "release must match the source item")

	ok, err = repos.Watchlists.ReleaseSlot(ctx, w.ID, models.KindShow, item.ID, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repos.Watchlists.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, got.NowPlayingShow.Occupied())
	assert.Nil(t, got.LastAddedByShow)
}

func TestWatchlistRepository_ReleaseSlotCreditsMover(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)

	item := models.NewWatchlistItem(w.ID, models.KindMovie, "Heat", "alice")
	require.NoError(t, repos.Items.Create(ctx, item))
	ok, err := repos.Watchlists.FillSlot(ctx, w.ID, models.KindMovie, models.NowPlayingFrom(item, time.Now().UTC()), "alice")
	require.NoError(t, err)
	require.True(t, ok)

	bob := "bob"
	ok, err = repos.Watchlists.ReleaseSlot(ctx, w.ID, models.KindMovie, item.ID, &bob)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repos.Watchlists.GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastAddedByMovie)
	assert.Equal(t, "bob", *got.LastAddedByMovie)
	require.NotNil(t, got.LastAddedBy)
	assert.Equal(t, "bob", *got.LastAddedBy)
}

func TestWatchlistRepository_ResetTurnsAndMissing(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)

	_, err := repos.Watchlists.RecordAdd(ctx, w.ID, models.KindShow, nil, "alice")
	require.NoError(t, err)
	require.NoError(t, repos.Watchlists.ResetTurns(ctx, w.ID))

	got, err := repos.Watchlists.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastAddedBy)
	assert.Nil(t, got.LastAddedByShow)

	missing := uuid.New()
	_, err = repos.Watchlists.GetByID(ctx, missing)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(repos.Watchlists.ResetTurns(ctx, missing)))
	assert.True(t, IsNotFound(repos.Watchlists.Delete(ctx, missing)))
}

func TestItemRepository_PendingAndFinished(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)

	first := models.NewWatchlistItem(w.ID, models.KindMovie, "Alien", "alice")
	first.AddedAt = time.Now().UTC().Add(-time.Minute)
	second := models.NewWatchlistItem(w.ID, models.KindShow, "Andor", "bob")
	require.NoError(t, repos.Items.Create(ctx, first))
	require.NoError(t, repos.Items.Create(ctx, second))

	count, err := repos.Items.CountPending(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, repos.Items.MarkFinished(ctx, first.ID, time.Now().UTC()))

	pending, err := repos.Items.ListPending(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	finished, err := repos.Items.ListFinished(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.True(t, finished[0].IsFinished())

	_, err = repos.Items.GetInWatchlist(ctx, uuid.New(), second.ID)
	assert.True(t, IsNotFound(err))
}

func TestUserRepository_EmailIndex(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))

	require.NoError(t, repos.Users.Create(ctx, models.NewUser(models.Identity{UserID: "alice", Email: "Alice@Example.com"})))

	found, err := repos.Users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.ID)

	err = repos.Users.Create(ctx, models.NewUser(models.Identity{UserID: "impostor", Email: "alice@example.com"}))
	assert.True(t, IsDuplicate(err))

	// Accounts without an email are exempt from the unique index.
	require.NoError(t, repos.Users.Create(ctx, models.NewUser(models.Identity{UserID: "anon1"})))
	require.NoError(t, repos.Users.Create(ctx, models.NewUser(models.Identity{UserID: "anon2"})))
}

func TestInviteRepository_UnsentAndMarkSent(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	repos := NewRepositories(database)
	w := createWatchlist(t, repos)

	invite := models.NewPendingInvite("carol@example.com", w, models.Identity{UserID: "alice", DisplayName: "Alice"})
	require.NoError(t, repos.Invites.Create(ctx, invite))

	dup := models.NewPendingInvite("CAROL@example.com", w, models.Identity{UserID: "alice"})
	assert.True(t, IsDuplicate(repos.Invites.Create(ctx, dup)))

	unsent, err := repos.Invites.ListUnsent(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, unsent, 1)

	require.NoError(t, repos.Invites.MarkSent(ctx, invite.ID, time.Now().UTC()))
	unsent, err = repos.Invites.ListUnsent(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	// A rolled back transaction leaves the invite in place.
	err = database.WithRepositories(ctx, func(tx *Repositories) error {
		if err := tx.Invites.Delete(ctx, invite.ID); err != nil {
			return err
		}
		return ErrInvalidInput
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = repos.Invites.GetByID(ctx, invite.ID)
	require.NoError(t, err)

	require.NoError(t, repos.Invites.Delete(ctx, invite.ID))
	assert.True(t, IsNotFound(repos.Invites.MarkSent(ctx, invite.ID, time.Now().UTC())))
}

func TestInviteRepository_RecordFailure(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)
	now := time.Now().UTC()

	retry := models.NewPendingInvite("retry@example.com", w, models.Identity{UserID: "alice"})
	require.NoError(t, repos.Invites.Create(ctx, retry))
	dead := models.NewPendingInvite("dead@example.com", w, models.Identity{UserID: "alice"})
	require.NoError(t, repos.Invites.Create(ctx, dead))

	next := now.Add(time.Minute)
	require.NoError(t, repos.Invites.RecordFailure(ctx, retry.ID, "451 try later", &next, now))
	require.NoError(t, repos.Invites.RecordFailure(ctx, dead.ID, "550 no such user", nil, now))

	// Neither is due now: one waits out its delay, the other was given up on.
	due, err := repos.Invites.ListUnsent(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repos.Invites.ListUnsent(ctx, next.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, retry.ID, due[0].ID)
	assert.Equal(t, 1, due[0].Attempts)
	require.NotNil(t, due[0].LastError)
	assert.Equal(t, "451 try later", *due[0].LastError)
	assert.False(t, due[0].Undeliverable())

	got, err := repos.Invites.GetByID(ctx, dead.ID)
	require.NoError(t, err)
	assert.True(t, got.Undeliverable())
	assert.Nil(t, got.NextAttemptAt)

	// A sent invite no longer counts failures.
	require.NoError(t, repos.Invites.MarkSent(ctx, retry.ID, now))
	assert.True(t, IsNotFound(repos.Invites.RecordFailure(ctx, retry.ID, "late", nil, now)))
}

func TestInviteRepository_Acceptance(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(setupTestDB(t))
	w := createWatchlist(t, repos)

	inviteID := uuid.New()
	_, err := repos.Invites.GetAcceptance(ctx, inviteID)
	assert.True(t, IsNotFound(err))

	require.NoError(t, repos.Invites.RecordAcceptance(ctx, &models.InviteAcceptance{
		InviteID:    inviteID,
		WatchlistID: w.ID,
		UserID:      "bob",
		AcceptedAt:  time.Now().UTC(),
	}))

	accepted, err := repos.Invites.GetAcceptance(ctx, inviteID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, accepted.WatchlistID)
	assert.Equal(t, "bob", accepted.UserID)

	err = repos.Invites.RecordAcceptance(ctx, &models.InviteAcceptance{
		InviteID:    inviteID,
		WatchlistID: w.ID,
		UserID:      "bob",
		AcceptedAt:  time.Now().UTC(),
	})
	assert.True(t, IsDuplicate(err))
}

func TestMapGormError(t *testing.T) {
	assert.Nil(t, MapGormError(nil))
	assert.ErrorIs(t, MapGormError(errString("UNIQUE constraint failed: users.email")), ErrDuplicate)
	assert.ErrorIs(t, MapGormError(errString("FOREIGN KEY constraint failed")), ErrForeignKey)
	assert.ErrorIs(t, MapGormError(errString("database is locked")), ErrBusy)
	assert.EqualError(t, MapGormError(errString("boom")), "boom")
}

type errString string

func (e errString) Error() string { return string(e) }
