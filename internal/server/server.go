// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/urnext/internal/api"
	"github.com/stwalsh4118/urnext/internal/auth"
	"github.com/stwalsh4118/urnext/internal/config"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/events"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/mail"
	"github.com/stwalsh4118/urnext/internal/metrics"
	"github.com/stwalsh4118/urnext/internal/middleware"
	"github.com/stwalsh4118/urnext/internal/tmdb"
	"github.com/stwalsh4118/urnext/internal/watchlist"
)

// Server represents the HTTP server and the background workers it owns
type Server struct {
	config     *config.Config
	db         *db.DB
	broker     events.Broker
	pinger     api.Pinger
	metrics    *metrics.Metrics
	service    *watchlist.Service
	verifier   *auth.Verifier
	search     *tmdb.Client
	dispatcher *mail.Dispatcher
	router     *gin.Engine
	server     *http.Server

	cancelWorkers context.CancelFunc
	workers       sync.WaitGroup
}

// New creates a new server instance
func New(ctx context.Context, cfg *config.Config, database *db.DB) (*Server, error) {
	s := &Server{
		config:   cfg,
		db:       database,
		verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		search: tmdb.NewClient(tmdb.Config{
			APIKey:  cfg.TMDB.APIKey,
			BaseURL: cfg.TMDB.BaseURL,
			Timeout: cfg.TMDB.Timeout,
		}),
	}

	if err := s.setupBroker(ctx); err != nil {
		return nil, err
	}

	var opts []watchlist.Option
	var mailObserver mail.Observer
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
		opts = append(opts, watchlist.WithObserver(s.metrics))
		mailObserver = s.metrics
	}
	s.service = watchlist.NewService(database, s.broker, opts...)

	sender, err := newSender(cfg.Mail)
	if err != nil {
		_ = s.broker.Close()
		return nil, err
	}
	s.dispatcher = mail.NewDispatcher(
		db.NewRepositories(database).Invites,
		sender,
		s.broker,
		mail.NewBreaker(cfg.Mail.BreakerThreshold, cfg.Mail.BreakerReset),
		mail.DispatcherConfig{
			From:          cfg.Mail.From,
			InviteBaseURL: cfg.Mail.InviteBaseURL,
			SweepInterval: cfg.Mail.SweepInterval,
			BatchSize:     cfg.Mail.BatchSize,
			MaxAttempts:   cfg.Mail.MaxAttempts,
			RetryBackoff:  cfg.Mail.RetryBackoff,
		},
		mailObserver,
	)

	s.setupRouter()
	return s, nil
}

// setupBroker selects the change notification broker
func (s *Server) setupBroker(ctx context.Context) error {
	switch s.config.Realtime.Broker {
	case config.BrokerRedis:
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		broker, err := events.NewRedisBrokerFromURL(connectCtx, s.config.Realtime.RedisURL,
			s.config.Realtime.ChannelPrefix, s.config.Realtime.Buffer)
		if err != nil {
			return fmt.Errorf("failed to start redis broker: %w", err)
		}
		s.broker = broker
		s.pinger = broker
	default:
		s.broker = events.NewMemoryBroker(s.config.Realtime.Buffer)
	}

	logger.Log.Info().
		Str("broker", s.config.Realtime.Broker).
		Msg("Change notification broker ready")
	return nil
}

// newSender selects the invite mail transport
func newSender(cfg config.MailConfig) (mail.Sender, error) {
	if cfg.Driver != config.MailDriverSMTP {
		return mail.LogSender{}, nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Timeout:  cfg.SMTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure smtp sender: %w", err)
	}
	return sender, nil
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	// Set Gin mode based on log level
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Add middleware stack
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(s.corsConfig()))
	if s.metrics != nil {
		s.router.Use(middleware.RequestMetrics(s.metrics))
		s.router.GET(s.config.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	apiGroup := s.router.Group("/api")
	api.SetupHealthRoutes(apiGroup, s.db, s.pinger)

	authed := apiGroup.Group("", middleware.Authenticate(s.verifier, s.service, false))
	api.SetupMeRoutes(authed, s.service)
	api.SetupWatchlistRoutes(authed, s.service)
	api.SetupInviteRoutes(authed, s.service)
	api.SetupSearchRoutes(authed, s.search)

	push := apiGroup.Group("", middleware.Authenticate(s.verifier, s.service, s.config.Auth.AllowQueryToken))
	var gauge api.SubscriberGauge
	if s.metrics != nil {
		gauge = s.metrics
	}
	api.SetupSubscribeRoutes(push, s.service, s.broker, gauge)
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if len(s.config.Server.CORSOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.config.Server.CORSOrigins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	return cfg
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Service returns the watchlist service
func (s *Server) Service() *watchlist.Service {
	return s.service
}

// StartWorkers launches the invite mail dispatcher
func (s *Server) StartWorkers(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelWorkers = cancel

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		if err := s.dispatcher.Run(ctx); err != nil {
			logger.Log.Error().
				Err(err).
				Msg("Invite mail dispatcher exited")
		}
	}()
}

// Start starts the background workers and the HTTP server. It blocks until
// the server stops and returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.StartWorkers(ctx)

	s.server = &http.Server{
		Addr:           s.config.Server.Address(),
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	var shutdownErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	// Stop background workers
	if s.cancelWorkers != nil {
		s.cancelWorkers()
	}
	s.workers.Wait()

	// Closing the broker ends open push subscriptions
	if err := s.broker.Close(); err != nil && shutdownErr == nil {
		shutdownErr = fmt.Errorf("broker shutdown error: %w", err)
	}

	logger.Log.Info().Msg("Server stopped")
	return shutdownErr
}
