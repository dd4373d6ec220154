//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/urnext/internal/auth"
	"github.com/stwalsh4118/urnext/internal/config"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/server"
)

const testSecret = "integration-secret"

type harness struct {
	server   *server.Server
	database *db.DB
	verifier *auth.Verifier
}

// setupHarness builds a full server on a temp database with the memory broker
// and the logging mail sender, and starts its background workers
func setupHarness(t *testing.T) *harness {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "integration.db"))
	require.NoError(t, err, "Failed to create test database")

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err, "Failed to get SQL DB")

	// Resolve migrations relative to this file so the test works from any directory
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")
	rootDir := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	err = db.RunMigrations(sqlDB, "file://"+filepath.Join(rootDir, "migrations"))
	require.NoError(t, err, "Failed to run migrations")

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging:  config.LoggingConfig{Level: "error"},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
		Realtime: config.RealtimeConfig{Broker: config.BrokerMemory, ChannelPrefix: "it:", Buffer: 16},
		Mail: config.MailConfig{
			Driver:           config.MailDriverLog,
			From:             "urNext <noreply@example.com>",
			InviteBaseURL:    "https://urnext.example.com/",
			SweepInterval:    100 * time.Millisecond,
			BatchSize:        10,
			BreakerThreshold: 3,
			BreakerReset:     time.Second,
		},
		TMDB:    config.TMDBConfig{Timeout: time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := server.New(ctx, cfg, database)
	require.NoError(t, err, "Failed to create server")
	s.StartWorkers(ctx)

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = s.Shutdown(shutdownCtx)
		cancel()
		_ = database.Close()
	})

	return &harness{
		server:   s,
		database: database,
		verifier: auth.NewVerifier(testSecret, ""),
	}
}

// do sends an authenticated JSON request as identity
func (h *harness) do(t *testing.T, identity models.Identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	token, err := h.verifier.Sign(identity, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

var (
	alice = models.Identity{UserID: "alice", DisplayName: "Alice Smith", Email: "alice@example.com", EmailVerified: true}
	carol = models.Identity{UserID: "carol", DisplayName: "Carol", Email: "carol@example.com", EmailVerified: true}
)
