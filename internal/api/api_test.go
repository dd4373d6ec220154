package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urnext/internal/auth"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/events"
	"github.com/stwalsh4118/urnext/internal/middleware"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/tmdb"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

var (
	alice = models.Identity{UserID: "alice", DisplayName: "Alice Smith", Email: "alice@example.com", EmailVerified: true}
	bob   = models.Identity{UserID: "bob", DisplayName: "Bob Jones", Email: "bob@example.com", EmailVerified: true}
	carol = models.Identity{UserID: "carol", DisplayName: "Carol", Email: "carol@example.com", EmailVerified: true}
)

type fakeSearcher struct {
	results []tmdb.Result
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) ([]tmdb.Result, error) {
	return f.results, f.err
}

type testAPI struct {
	router   *gin.Engine
	service  *watchlist.Service
	database *db.DB
	broker   *events.MemoryBroker
	verifier *auth.Verifier
	searcher *fakeSearcher
}

// setupTestAPI creates a router wired like the server, backed by a temp database
func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	err = db.RunMigrations(sqlDB, "file://../../migrations")
	require.NoError(t, err)

	broker := events.NewMemoryBroker(32)
	service := watchlist.NewService(database, broker)
	verifier := auth.NewVerifier("test-secret", "")
	searcher := &fakeSearcher{}

	t.Cleanup(func() {
		_ = broker.Close()
		_ = database.Close()
	})

	router := gin.New()
	router.Use(middleware.RequestID())
	apiGroup := router.Group("/api")
	SetupHealthRoutes(apiGroup, database, nil)

	authed := apiGroup.Group("", middleware.Authenticate(verifier, service, false))
	SetupMeRoutes(authed, service)
	SetupWatchlistRoutes(authed, service)
	SetupInviteRoutes(authed, service)
	SetupSearchRoutes(authed, searcher)

	push := apiGroup.Group("", middleware.Authenticate(verifier, service, true))
	SetupSubscribeRoutes(push, service, broker, nil)

	return &testAPI{
		router:   router,
		service:  service,
		database: database,
		broker:   broker,
		verifier: verifier,
		searcher: searcher,
	}
}

func (a *testAPI) token(t *testing.T, identity models.Identity) string {
	t.Helper()
	token, err := a.verifier.Sign(identity, time.Hour)
	require.NoError(t, err)
	return token
}

// do performs a request as identity and returns the recorder
func (a *testAPI) do(t *testing.T, identity *models.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(t, *identity))
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createPair creates a watchlist through the API and joins bob to it
func (a *testAPI) createPair(t *testing.T) string {
	t.Helper()

	rec := a.do(t, &alice, http.MethodPost, "/api/watchlists", CreateWatchlistRequest{Name: "Movie night"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CreateWatchlistResponse](t, rec)
	id := created.Watchlist.ID.String()

	// Provision bob's profile
	rec = a.do(t, &bob, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, &alice, http.MethodPost, "/api/watchlists/"+id+"/invites", InviteRequest{Email: bob.Email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, decode[InviteResponse](t, rec).Direct)

	rec = a.do(t, &bob, http.MethodPost, "/api/invitations/accept", AcceptInviteRequest{WatchlistID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, id, decode[AcceptInviteResponse](t, rec).WatchlistID)

	return id
}
