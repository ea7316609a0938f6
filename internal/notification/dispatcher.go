// Package notification builds outbox rows inside business transactions and
// delivers them afterwards. Delivery failures are retried up to a limit and
// never reach the operation that produced the notification.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

// Sink delivers one notification to the outside world.
type Sink interface {
	Deliver(ctx context.Context, n *domain.Notification) error
}

// DeliveryRecorder counts delivery outcomes.
type DeliveryRecorder interface {
	NotificationDelivered(ok bool)
}

// Config tunes the dispatcher loop
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Dispatcher drains the outbox into a Sink.
type Dispatcher struct {
	store    store.Store
	sink     Sink
	cfg      Config
	logger   *slog.Logger
	recorder DeliveryRecorder
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(st store.Store, sink Sink, cfg Config, logger *slog.Logger, recorder DeliveryRecorder) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    st,
		sink:     sink,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("notification dispatcher started", "interval", d.cfg.PollInterval.String())
	for {
		if _, _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("notification dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch. Each row is delivered and marked in its
// own transaction holding that row's lock, so a failed mark never undoes the
// marks of rows already sent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (delivered, failed int, err error) {
	var pending []*domain.Notification
	err = d.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pending, err = tx.ClaimNotifications(ctx, d.cfg.BatchSize, d.cfg.MaxAttempts)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	for _, candidate := range pending {
		var sent, attempted bool
		err := d.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			n, err := tx.ClaimNotification(ctx, candidate.ID, d.cfg.MaxAttempts)
			if err != nil || n == nil {
				return err
			}
			attempted = true

			if derr := d.sink.Deliver(ctx, n); derr != nil {
				level := slog.LevelWarn
				if n.Attempts+1 >= d.cfg.MaxAttempts {
					level = slog.LevelError
				}
				d.logger.Log(ctx, level, "notification delivery failed",
					"notification_id", n.ID,
					"type", n.Type,
					"attempt", n.Attempts+1,
					"error", derr,
				)
				return tx.MarkNotificationFailed(ctx, n.ID, derr.Error())
			}
			sent = true
			return tx.MarkNotificationDelivered(ctx, n.ID, d.now())
		})
		if err != nil {
			return delivered, failed, fmt.Errorf("notification %s: %w", candidate.ID, err)
		}
		if !attempted {
			continue
		}
		d.recordOutcome(sent)
		if sent {
			delivered++
		} else {
			failed++
		}
	}
	return delivered, failed, nil
}

func (d *Dispatcher) recordOutcome(ok bool) {
	if d.recorder != nil {
		d.recorder.NotificationDelivered(ok)
	}
}
