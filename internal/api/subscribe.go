package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stwalsh4118/urnext/internal/events"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Push message types
const (
	MessageSnapshot = "snapshot"
	MessageState    = "state"
	MessageError    = "error"
)

// PushMessage is a frame sent to a subscriber. Every change is delivered as
// the full current state, never as a diff.
type PushMessage struct {
	Type     string              `json:"type"`
	User     *models.User        `json:"user,omitempty"`
	Snapshot *watchlist.Snapshot `json:"snapshot,omitempty"`
	Error    *ErrorResponse      `json:"error,omitempty"`
}

// SubscriberGauge tracks open push connections
type SubscriberGauge interface {
	SubscriberOpened()
	SubscriberClosed()
}

// SubscribeHandler serves WebSocket push subscriptions
type SubscribeHandler struct {
	service    *watchlist.Service
	subscriber events.Subscriber
	gauge      SubscriberGauge
	upgrader   websocket.Upgrader
}

// NewSubscribeHandler creates a new push handler. gauge may be nil.
func NewSubscribeHandler(service *watchlist.Service, subscriber events.Subscriber, gauge SubscriberGauge) *SubscribeHandler {
	return &SubscribeHandler{
		service:    service,
		subscriber: subscriber,
		gauge:      gauge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Authenticated by bearer token, not cookies
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SubscribeWatchlist handles GET /api/watchlists/:id/subscribe. It sends a
// snapshot on connect and again after every change to the watchlist.
func (h *SubscribeHandler) SubscribeWatchlist(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	checkCtx, cancelCheck := context.WithTimeout(c.Request.Context(), 5*time.Second)
	_, err := h.service.Get(checkCtx, id, identity.UserID)
	cancelCheck()
	if err != nil {
		respondError(c, err, "subscribe_watchlist")
		return
	}

	stream, ctx, ok := h.open(c)
	if !ok {
		return
	}
	defer stream.close()

	sub, err := h.subscriber.Subscribe(ctx, events.WatchlistTopic(id))
	if err != nil {
		stream.fail(err)
		return
	}
	defer sub.Close()

	log := logger.Log.With().
		Str("watchlist_id", id.String()).
		Str("actor_id", identity.UserID).
		Logger()
	log.Debug().Strs("topics", sub.Topics()).Msg("Watchlist subscription opened")

	push := func() bool {
		snapshot, err := h.service.Snapshot(ctx, id, identity.UserID)
		if err != nil {
			if watchlist.IsTransient(err) && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Failed to load snapshot for subscriber")
				return true
			}
			stream.fail(err)
			return false
		}
		return stream.send(PushMessage{Type: MessageSnapshot, Snapshot: snapshot})
	}

	if !push() {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Events():
			if !ok || !push() {
				return
			}
		case <-ticker.C:
			if !stream.ping() {
				return
			}
		}
	}
}

// SubscribeMe handles GET /api/me/subscribe. It follows the caller's active
// watchlist: when the profile changes the watchlist subscription is switched.
func (h *SubscribeHandler) SubscribeMe(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	stream, ctx, ok := h.open(c)
	if !ok {
		return
	}
	defer stream.close()

	userSub, err := h.subscriber.Subscribe(ctx, events.UserTopic(identity.UserID))
	if err != nil {
		stream.fail(err)
		return
	}
	defer userSub.Close()

	scope := events.NewScope(h.subscriber)
	defer scope.Close()

	log := logger.Log.With().Str("actor_id", identity.UserID).Logger()

	push := func() bool {
		user, err := h.service.GetUser(ctx, identity.UserID)
		if err != nil {
			if watchlist.IsTransient(err) && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Failed to load profile for subscriber")
				return true
			}
			stream.fail(err)
			return false
		}

		msg := PushMessage{Type: MessageState, User: user}
		if !user.ActiveWatchlist.Valid {
			if _, err := scope.Switch(ctx, ""); err != nil {
				stream.fail(err)
				return false
			}
			return stream.send(msg)
		}

		active := user.ActiveWatchlist.UUID
		previous := scope.Key()
		if _, err := scope.Switch(ctx, active.String(), events.WatchlistTopic(active)); err != nil {
			stream.fail(err)
			return false
		}
		if previous != active.String() {
			log.Debug().
				Str("watchlist_id", active.String()).
				Str("previous_watchlist_id", previous).
				Msg("Following active watchlist")
		}
		snapshot, err := h.service.Snapshot(ctx, active, identity.UserID)
		switch {
		case err == nil:
			msg.Snapshot = snapshot
		case watchlist.IsTransient(err):
			log.Warn().Err(err).Str("watchlist_id", active.String()).Msg("Failed to load snapshot for subscriber")
		default:
			log.Debug().Err(err).Str("watchlist_id", active.String()).Msg("Active watchlist not readable")
		}
		return stream.send(msg)
	}

	if !push() {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var watchlistEvents <-chan events.Event
		if current := scope.Current(); current != nil {
			watchlistEvents = current.Events()
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-userSub.Events():
			if !ok || !push() {
				return
			}
		case _, ok := <-watchlistEvents:
			if !ok || !push() {
				return
			}
		case <-ticker.C:
			if !stream.ping() {
				return
			}
		}
	}
}

// open upgrades the connection and starts the read pump. The returned
// context is cancelled when the client goes away.
func (h *SubscribeHandler) open(c *gin.Context) (*pushStream, context.Context, bool) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	s := &pushStream{conn: conn, cancel: cancel, gauge: h.gauge}
	if s.gauge != nil {
		s.gauge.SubscriberOpened()
	}
	go s.readPump()
	return s, ctx, true
}

// pushStream owns one WebSocket connection. Only the handler goroutine writes;
// the read pump only reads, to observe pongs and disconnects.
type pushStream struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	gauge  SubscriberGauge
}

func (s *pushStream) readPump() {
	defer s.cancel()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *pushStream) send(msg PushMessage) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		logger.Log.Debug().Err(err).Msg("Failed to write push message")
		return false
	}
	return true
}

func (s *pushStream) ping() bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil) == nil
}

// fail sends a final error frame
func (s *pushStream) fail(err error) {
	_, code := statusFor(err)
	s.send(PushMessage{
		Type:  MessageError,
		Error: &ErrorResponse{Error: code, Message: rootMessage(err)},
	})
}

func (s *pushStream) close() {
	s.cancel()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	_ = s.conn.Close()
	if s.gauge != nil {
		s.gauge.SubscriberClosed()
	}
}

// SetupSubscribeRoutes registers WebSocket push routes
func SetupSubscribeRoutes(apiGroup *gin.RouterGroup, service *watchlist.Service, subscriber events.Subscriber, gauge SubscriberGauge) {
	handler := NewSubscribeHandler(service, subscriber, gauge)

	apiGroup.GET("/watchlists/:id/subscribe", handler.SubscribeWatchlist)
	apiGroup.GET("/me/subscribe", handler.SubscribeMe)
}

