package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

func TestStatusFor(t *testing.T) {
	wrap := func(err error) error {
		return fmt.Errorf("failed to do thing: %w", err)
	}

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not your turn", wrap(watchlist.ErrNotYourTurn), http.StatusConflict, "not_your_turn"},
		{"already playing", wrap(watchlist.ErrAlreadyPlaying), http.StatusConflict, "already_playing"},
		{"already invited", wrap(watchlist.ErrAlreadyInvited), http.StatusConflict, "already_invited"},
		{"already member", wrap(watchlist.ErrAlreadyMember), http.StatusConflict, "already_member"},
		{"watchlist not found", wrap(watchlist.ErrWatchlistNotFound), http.StatusNotFound, "not_found"},
		{"store not found", wrap(db.ErrNotFound), http.StatusNotFound, "not_found"},
		{"not member", wrap(watchlist.ErrNotMember), http.StatusForbidden, "forbidden"},
		{"not owner", wrap(watchlist.ErrNotItemOwner), http.StatusForbidden, "forbidden"},
		{"email mismatch", wrap(watchlist.ErrEmailMismatch), http.StatusForbidden, "identity_mismatch"},
		{"watchlist mismatch", wrap(watchlist.ErrWatchlistMismatch), http.StatusForbidden, "identity_mismatch"},
		{"nothing playing", wrap(watchlist.ErrNothingPlaying), http.StatusBadRequest, "invalid_request"},
		{"concurrent update", wrap(watchlist.ErrConcurrentUpdate), http.StatusServiceUnavailable, "unavailable"},
		{"busy store", wrap(db.ErrBusy), http.StatusServiceUnavailable, "unavailable"},
		{"deadline", wrap(context.DeadlineExceeded), http.StatusServiceUnavailable, "unavailable"},
		{"unknown", errors.New("boom"), http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRootMessage(t *testing.T) {
	err := fmt.Errorf("failed to add item: %w", watchlist.ErrNotYourTurn)
	assert.Equal(t, "it is not your turn", rootMessage(err))
	assert.Equal(t, "plain", rootMessage(errors.New("plain")))
}

func TestRespondError_RetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"concurrent update", fmt.Errorf("failed to start: %w", watchlist.ErrConcurrentUpdate), http.StatusServiceUnavailable, "1"},
		{"busy store", fmt.Errorf("failed to add item: %w", db.ErrBusy), http.StatusServiceUnavailable, "1"},
		{"turn violation", fmt.Errorf("failed to add item: %w", watchlist.ErrNotYourTurn), http.StatusConflict, ""},
		{"missing parent", fmt.Errorf("failed to add item: %w", db.ErrForeignKey), http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/watchlists", nil)

			respondError(c, tt.err, "test")

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}
