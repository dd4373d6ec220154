package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/urnext/internal/db"
	"github.com/stwalsh4118/urnext/internal/events"
	"github.com/stwalsh4118/urnext/internal/logger"
	"github.com/stwalsh4118/urnext/internal/models"
)

// Delivery outcomes reported to the Observer
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeRejected    = "rejected"
	OutcomeAbandoned   = "abandoned"
	OutcomeSkipped     = "skipped"
	OutcomeCircuitOpen = "circuit_open"
)

const (
	sendTimeout     = 30 * time.Second
	maxRetryBackoff = 6 * time.Hour
)

// Observer receives the outcome of every delivery attempt
type Observer interface {
	ObserveMail(outcome string)
}

// DispatcherConfig holds dispatcher settings
type DispatcherConfig struct {
	From          string
	InviteBaseURL string
	SweepInterval time.Duration
	BatchSize     int
	// MaxAttempts caps delivery attempts per invite
	MaxAttempts int
	// RetryBackoff is the delay after the first failure; it doubles per attempt
	RetryBackoff time.Duration
}

// Dispatcher sends invite emails for pending invites. It reacts to
// invite.created events and periodically sweeps for invites whose email has
// not been sent. A failed invite waits out a growing backoff before the sweep
// retries it; a rejected recipient or an exhausted invite is given up on.
type Dispatcher struct {
	invites    *db.InviteRepository
	sender     Sender
	subscriber events.Subscriber
	breaker    *Breaker
	cfg        DispatcherConfig
	observer   Observer
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(invites *db.InviteRepository, sender Sender, subscriber events.Subscriber, breaker *Breaker, cfg DispatcherConfig, observer Observer) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	return &Dispatcher{
		invites:    invites,
		sender:     sender,
		subscriber: subscriber,
		breaker:    breaker,
		cfg:        cfg,
		observer:   observer,
		now:        time.Now,
	}
}

// Run dispatches until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	sub, err := d.subscriber.Subscribe(ctx, events.InvitesTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invites: %w", err)
	}
	defer sub.Close()

	logger.Log.Info().
		Dur("sweep_interval", d.cfg.SweepInterval).
		Msg("Invite mail dispatcher started")

	d.sweep(ctx)

	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("Invite mail dispatcher stopped")
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("invite subscription closed")
			}
			if e.Type != events.InviteCreated {
				continue
			}
			id, err := uuid.Parse(e.InviteID)
			if err != nil {
				logger.Log.Warn().
					Str("invite_id", e.InviteID).
					Msg("Ignoring invite event with malformed id")
				continue
			}
			_ = d.Deliver(ctx, id)
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	if _, err := d.Sweep(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
		logger.Log.Error().
			Err(err).
			Msg("Invite mail sweep failed")
	}
}

// Sweep delivers up to one batch of unsent invites. It stops early when the
// breaker opens and returns the number of emails sent.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	pending, err := d.invites.ListUnsent(ctx, d.now().UTC(), d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load unsent invites: %w", err)
	}

	sent := 0
	for _, invite := range pending {
		err := d.deliver(ctx, invite)
		if errors.Is(err, ErrCircuitOpen) {
			return sent, err
		}
		if err == nil {
			sent++
		}
	}
	return sent, nil
}

// Deliver sends the email for one invite and marks it sent. Invites that were
// already sent or consumed are skipped.
func (d *Dispatcher) Deliver(ctx context.Context, inviteID uuid.UUID) error {
	invite, err := d.invites.GetByID(ctx, inviteID)
	if err != nil {
		if db.IsNotFound(err) {
			d.observe(OutcomeSkipped)
			return nil
		}
		return fmt.Errorf("failed to load invite: %w", err)
	}
	return d.deliver(ctx, invite)
}

func (d *Dispatcher) deliver(ctx context.Context, invite *models.PendingInvite) error {
	if invite.EmailSent || invite.Undeliverable() {
		d.observe(OutcomeSkipped)
		return nil
	}

	msg, err := ComposeInvite(d.cfg.From, d.cfg.InviteBaseURL, invite)
	if err != nil {
		d.observe(OutcomeFailed)
		return err
	}

	// Rejected recipients do not count against the breaker
	var sendErr error
	err = d.breaker.Call(func() error {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		sendErr = d.sender.Send(sendCtx, msg)
		if IsRecipientRejected(sendErr) {
			return nil
		}
		return sendErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		d.observe(OutcomeCircuitOpen)
		logger.Log.Warn().
			Str("invite_id", invite.ID.String()).
			Msg("Invite email deferred: mail circuit open")
		return err
	}
	if sendErr != nil {
		return d.recordFailure(ctx, invite, sendErr)
	}

	if err := d.invites.MarkSent(ctx, invite.ID, d.now().UTC()); err != nil && !db.IsNotFound(err) {
		logger.Log.Error().
			Err(err).
			Str("invite_id", invite.ID.String()).
			Msg("Invite email sent but not marked")
		return fmt.Errorf("failed to mark invite sent: %w", err)
	}

	d.observe(OutcomeSent)
	logger.Log.Info().
		Str("invite_id", invite.ID.String()).
		Str("watchlist_id", invite.WatchlistID.String()).
		Msg("Invite email sent")
	return nil
}

// recordFailure stores the failed attempt and schedules the next one, or
// gives up when the recipient was rejected or the attempts are used up
func (d *Dispatcher) recordFailure(ctx context.Context, invite *models.PendingInvite, sendErr error) error {
	now := d.now().UTC()
	attempts := invite.Attempts + 1

	outcome := OutcomeFailed
	var next *time.Time
	switch {
	case IsRecipientRejected(sendErr):
		outcome = OutcomeRejected
	case attempts >= d.cfg.MaxAttempts:
		outcome = OutcomeAbandoned
	default:
		at := now.Add(d.retryDelay(attempts))
		next = &at
	}
	d.observe(outcome)

	event := logger.Log.Warn()
	if outcome == OutcomeFailed {
		event = logger.Log.Error()
	}
	event.
		Err(sendErr).
		Str("invite_id", invite.ID.String()).
		Int("attempts", attempts).
		Str("outcome", outcome).
		Str("breaker_state", d.breaker.State().String()).
		Msg("Failed to send invite email")

	if err := d.invites.RecordFailure(ctx, invite.ID, sendErr.Error(), next, now); err != nil && !db.IsNotFound(err) {
		logger.Log.Error().
			Err(err).
			Str("invite_id", invite.ID.String()).
			Msg("Failed to record invite delivery failure")
	}
	return fmt.Errorf("failed to send invite email: %w", sendErr)
}

// retryDelay returns the wait after the given number of failed attempts
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	delay := d.cfg.RetryBackoff
	for i := 1; i < attempts && delay < maxRetryBackoff; i++ {
		delay *= 2
	}
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	return delay
}

func (d *Dispatcher) observe(outcome string) {
	if d.observer != nil {
		d.observer.ObserveMail(outcome)
	}
}
