package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"report-scheduler/internal/mail"
	"report-scheduler/internal/models"
	"report-scheduler/internal/notify"
	"report-scheduler/internal/store"
	"report-scheduler/internal/telemetry"
)

// Throttle limits how fast mail leaves the process.
type Throttle interface {
	Wait(ctx context.Context, key string, maxWait time.Duration) (bool, error)
}

type DeliveryConfig struct {
	// BatchSize caps the rows taken per pass. Zero or less takes every pending row.
	BatchSize int
	// StaleAfter purges rows that still fail once they are older than this. Zero keeps them.
	StaleAfter   time.Duration
	Env          notify.Env
	ThrottleKey  string
	ThrottleWait time.Duration
}

// Stats summarizes one delivery pass.
type Stats struct {
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Dropped   int  `json:"dropped"`
	Throttled bool `json:"throttled"`
}

// Delivery drains the outbox through a mail transport. Rows are deleted only after the
// transport accepted them, so a crash between send and delete resends the message.
type Delivery struct {
	store     store.Queries
	transport mail.Transport
	throttle  Throttle
	cfg       DeliveryConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewDelivery(q store.Queries, transport mail.Transport, throttle Throttle, cfg DeliveryConfig, logger *zap.Logger) *Delivery {
	if cfg.BatchSize < 0 {
		cfg.BatchSize = 0
	}
	if cfg.ThrottleKey == "" {
		cfg.ThrottleKey = "ratelimit:smtp"
	}
	if cfg.ThrottleWait <= 0 {
		cfg.ThrottleWait = 5 * time.Second
	}
	return &Delivery{
		store:     q,
		transport: transport,
		throttle:  throttle,
		cfg:       cfg,
		logger:    logger.With(zap.String("worker", "outbox")),
		now:       time.Now,
	}
}

// Run delivers the pending emails oldest first, up to BatchSize when one is set.
func (d *Delivery) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	pending, err := d.store.PendingOutboxEmails(ctx, d.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("load pending emails: %w", err)
	}

	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !d.deliver(ctx, email, &stats) {
			break
		}
	}

	if depth, err := d.store.CountOutboxEmails(ctx); err == nil {
		telemetry.OutboxDepth.Set(float64(depth))
	}
	if len(pending) > 0 {
		d.logger.Info("delivery pass finished",
			zap.Int("sent", stats.Sent),
			zap.Int("failed", stats.Failed),
			zap.Int("dropped", stats.Dropped),
			zap.Bool("throttled", stats.Throttled),
		)
	}
	return stats, nil
}

// deliver handles one row and reports whether the batch should continue.
func (d *Delivery) deliver(ctx context.Context, email models.OutboxEmail, stats *Stats) bool {
	logger := d.logger.With(zap.String("email_id", email.ID))

	action, err := notify.Unmarshal(email.Action)
	if err != nil {
		logger.Error("dropping undecodable email", zap.Error(err))
		d.drop(ctx, email, "undecodable", stats)
		return true
	}
	logger = logger.With(zap.String("kind", string(action.Kind())))

	to := cleanRecipients(email.ToAddresses)
	if len(to) == 0 {
		logger.Warn("dropping email without recipients")
		d.drop(ctx, email, "no_recipients", stats)
		return true
	}

	subject, body, err := notify.Render(action, d.cfg.Env)
	if err != nil {
		d.fail(ctx, email, err, stats, logger)
		return true
	}

	if d.throttle != nil {
		ok, err := d.throttle.Wait(ctx, d.cfg.ThrottleKey, d.cfg.ThrottleWait)
		if err != nil {
			logger.Warn("mail throttle unavailable, sending anyway", zap.Error(err))
		} else if !ok {
			telemetry.MailThrottled.Inc()
			stats.Throttled = true
			return false
		}
	}

	err = d.transport.Send(ctx, mail.Message{To: to, Subject: subject, HTML: body})
	switch {
	case err == nil:
		if err := d.store.DeleteOutboxEmail(ctx, email.ID); err != nil {
			logger.Error("sent email could not be removed and will be resent", zap.Error(err))
		}
		telemetry.EmailsSent.Inc()
		stats.Sent++
		logger.Info("email sent", zap.Strings("to", to), zap.String("subject", subject))
	case errors.Is(err, mail.ErrRejected):
		logger.Error("email rejected by mail server", zap.Error(err))
		d.drop(ctx, email, "rejected", stats)
	default:
		d.fail(ctx, email, err, stats, logger)
	}
	return true
}

func (d *Delivery) fail(ctx context.Context, email models.OutboxEmail, err error, stats *Stats, logger *zap.Logger) {
	if d.cfg.StaleAfter > 0 && email.CreatedAt.Before(d.now().Add(-d.cfg.StaleAfter)) {
		logger.Warn("purging stale email", zap.Strings("to", email.ToAddresses), zap.Error(err))
		d.drop(ctx, email, "stale", stats)
		return
	}
	telemetry.EmailsFailed.Inc()
	stats.Failed++
	logger.Error("error sending email", zap.Error(err))
}

func (d *Delivery) drop(ctx context.Context, email models.OutboxEmail, reason string, stats *Stats) {
	if err := d.store.DeleteOutboxEmail(ctx, email.ID); err != nil {
		d.logger.Error("remove email", zap.String("email_id", email.ID), zap.Error(err))
		return
	}
	telemetry.EmailsDropped.WithLabelValues(reason).Inc()
	stats.Dropped++
}
