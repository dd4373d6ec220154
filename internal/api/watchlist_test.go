package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

func TestWatchlistAPI_RequiresAuth(t *testing.T) {
	a := setupTestAPI(t)

	rec := a.do(t, nil, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, nil, http.MethodPost, "/api/watchlists", CreateWatchlistRequest{Name: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWatchlistAPI_CreateWatchlist(t *testing.T) {
	a := setupTestAPI(t)

	t.Run("creator becomes member with active watchlist", func(t *testing.T) {
		rec := a.do(t, &alice, http.MethodPost, "/api/watchlists", CreateWatchlistRequest{Name: "Ours"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		created := decode[CreateWatchlistResponse](t, rec)
		assert.Equal(t, "Ours", created.Watchlist.Name)
		assert.Equal(t, models.StringList{"alice"}, created.Watchlist.Members)
		assert.Nil(t, created.InviteError)

		rec = a.do(t, &alice, http.MethodGet, "/api/me", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode[models.User](t, rec)
		assert.True(t, me.IsWatchlistCreator)
		assert.Equal(t, created.Watchlist.ID, me.ActiveWatchlist.UUID)
	})

	t.Run("partner email creates a pending invite", func(t *testing.T) {
		rec := a.do(t, &carol, http.MethodPost, "/api/watchlists", CreateWatchlistRequest{
			Name:         "Carol's",
			PartnerEmail: "dave@example.com",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		dave := models.Identity{UserID: "dave", DisplayName: "Dave", Email: "dave@example.com", EmailVerified: true}
		rec = a.do(t, &dave, http.MethodGet, "/api/me/invitations", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		list := decode[InvitationListResponse](t, rec)
		require.Len(t, list.Invitations, 1)
		assert.Equal(t, "Carol's", list.Invitations[0].WatchlistName)
		require.NotNil(t, list.Invitations[0].InviteID)

		rec = a.do(t, &dave, http.MethodPost, "/api/invitations/accept", AcceptInviteRequest{
			InviteID: list.Invitations[0].InviteID.String(),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, list.Invitations[0].WatchlistID.String(), decode[AcceptInviteResponse](t, rec).WatchlistID)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		rec := a.do(t, &alice, http.MethodPost, "/api/watchlists", CreateWatchlistRequest{Name: "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("self invite rejected before creation", func(t *testing.T) {
		rec := a.do(t, &alice, http.MethodPost, "/api/watchlists", CreateWatchlistRequest{
			Name:         "Solo",
			PartnerEmail: alice.Email,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWatchlistAPI_TurnsAndNowPlaying(t *testing.T) {
	a := setupTestAPI(t)
	id := a.createPair(t)
	base := "/api/watchlists/" + id

	rec := a.do(t, &alice, http.MethodPost, base+"/items", AddItemRequest{Kind: "movie", Title: "Heat"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	heat := decode[models.WatchlistItem](t, rec)
	assert.Equal(t, models.KindMovie, heat.Kind)
	assert.Equal(t, "alice", heat.AddedBy)

	rec = a.do(t, &alice, http.MethodPost, base+"/items", AddItemRequest{Kind: "movie", Title: "Ronin"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_your_turn", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, &bob, http.MethodPost, base+"/items", AddItemRequest{Kind: "movie", Title: "Ronin"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ronin := decode[models.WatchlistItem](t, rec)

	rec = a.do(t, &alice, http.MethodPost, base+"/items/"+heat.ID.String()+"/promote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	np := decode[models.NowPlaying](t, rec)
	assert.Equal(t, heat.ID, np.SourceItemID)

	rec = a.do(t, &bob, http.MethodPost, base+"/items/"+ronin.ID.String()+"/promote", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_playing", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, &alice, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decode[watchlist.Snapshot](t, rec)
	require.NotNil(t, snapshot.Watchlist.NowPlayingMovie.Item)
	assert.Equal(t, "Heat", snapshot.Watchlist.NowPlayingMovie.Item.Title)
	require.Len(t, snapshot.Pending, 1)
	assert.Equal(t, ronin.ID, snapshot.Pending[0].ID)

	rec = a.do(t, &bob, http.MethodPost, base+"/now-playing/movie/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	finished := decode[models.WatchlistItem](t, rec)
	assert.Equal(t, heat.ID, finished.ID)
	assert.NotNil(t, finished.FinishedAt)

	rec = a.do(t, &alice, http.MethodGet, base+"/items?status=finished", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ItemListResponse](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, heat.ID, list.Items[0].ID)

	rec = a.do(t, &alice, http.MethodGet, base+"/items?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ItemListResponse](t, rec).Items, 1)

	rec = a.do(t, &alice, http.MethodGet, base+"/items?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, &alice, http.MethodDelete, base+"/now-playing/movie", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, &alice, http.MethodPost, base+"/now-playing/cartoon/finish", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_kind", decode[ErrorResponse](t, rec).Error)
}

func TestWatchlistAPI_MoveBackAndClear(t *testing.T) {
	a := setupTestAPI(t)
	id := a.createPair(t)
	base := "/api/watchlists/" + id

	rec := a.do(t, &alice, http.MethodPost, base+"/items", AddItemRequest{Kind: "tv", Title: "The Wire"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wire := decode[models.WatchlistItem](t, rec)
	assert.Equal(t, models.KindShow, wire.Kind)

	rec = a.do(t, &bob, http.MethodPost, base+"/items/"+wire.ID.String()+"/promote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, &bob, http.MethodPost, base+"/now-playing/show/move-back", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	back := decode[models.WatchlistItem](t, rec)
	assert.Equal(t, "bob", back.AddedBy, "moved-back items are credited to the mover")
	assert.Nil(t, back.FinishedAt)

	rec = a.do(t, &bob, http.MethodPost, base+"/items/"+back.ID.String()+"/promote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, &alice, http.MethodDelete, base+"/now-playing/show", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = a.do(t, &alice, http.MethodGet, base, nil)
	snapshot := decode[watchlist.Snapshot](t, rec)
	assert.Nil(t, snapshot.Watchlist.NowPlayingShow.Item)
	assert.Nil(t, snapshot.Watchlist.LastAddedByShow)
}

func TestWatchlistAPI_RemoveAndReview(t *testing.T) {
	a := setupTestAPI(t)
	id := a.createPair(t)
	base := "/api/watchlists/" + id

	rec := a.do(t, &bob, http.MethodPost, base+"/items", AddItemRequest{Kind: "movie", Title: "Alien"})
	require.Equal(t, http.StatusCreated, rec.Code)
	alien := decode[models.WatchlistItem](t, rec)

	rec = a.do(t, &alice, http.MethodDelete, "/api/items/"+alien.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, &bob, http.MethodDelete, "/api/items/"+alien.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, &bob, http.MethodDelete, "/api/items/"+alien.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, &alice, http.MethodPost, base+"/items", AddItemRequest{Kind: "movie", Title: "Aliens"})
	require.Equal(t, http.StatusCreated, rec.Code)
	aliens := decode[models.WatchlistItem](t, rec)

	rec = a.do(t, &alice, http.MethodPut, "/api/items/"+aliens.ID.String()+"/review", ReviewItemRequest{Rating: intPtr(4)})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pending items cannot be reviewed")

	rec = a.do(t, &alice, http.MethodPost, base+"/items/"+aliens.ID.String()+"/promote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, &alice, http.MethodPost, base+"/now-playing/movie/finish", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, &bob, http.MethodPut, "/api/items/"+aliens.ID.String()+"/review", ReviewItemRequest{Rating: intPtr(6)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	comment := "  Game over, man  "
	rec = a.do(t, &bob, http.MethodPut, "/api/items/"+aliens.ID.String()+"/review", ReviewItemRequest{
		Rating:  intPtr(5),
		Comment: &comment,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decode[models.WatchlistItem](t, rec)
	require.NotNil(t, reviewed.Rating)
	assert.Equal(t, 5, *reviewed.Rating)
	require.NotNil(t, reviewed.Comment)
	assert.Equal(t, "Game over, man", *reviewed.Comment)
}

func TestWatchlistAPI_AccessErrors(t *testing.T) {
	a := setupTestAPI(t)
	id := a.createPair(t)

	rec := a.do(t, &carol, http.MethodGet, "/api/watchlists/"+id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, &carol, http.MethodPost, "/api/watchlists/"+id+"/items", AddItemRequest{Kind: "movie", Title: "Jaws"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, &alice, http.MethodGet, "/api/watchlists/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, &alice, http.MethodGet, "/api/watchlists/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, &alice, http.MethodPost, "/api/watchlists/"+id+"/items", AddItemRequest{Kind: "book", Title: "Dune"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_kind", decode[ErrorResponse](t, rec).Error)

	rec = a.do(t, &alice, http.MethodPost, "/api/watchlists/"+id+"/items", map[string]string{"kind": "movie"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[ErrorResponse](t, rec).Error)
}

func intPtr(v int) *int {
	return &v
}
