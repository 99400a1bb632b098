// Package app assembles the background jobs from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"report-scheduler/internal/api"
	"report-scheduler/internal/attachment"
	"report-scheduler/internal/config"
	"report-scheduler/internal/jobhistory"
	"report-scheduler/internal/mail"
	"report-scheduler/internal/mailbox"
	"report-scheduler/internal/mart"
	"report-scheduler/internal/notify"
	"report-scheduler/internal/objectstore"
	"report-scheduler/internal/outbox"
	"report-scheduler/internal/policy"
	"report-scheduler/internal/ratelimit"
	"report-scheduler/internal/scheduler"
	"report-scheduler/internal/store"
	"report-scheduler/internal/store/memstore"
)

const (
	JobOutbox              = "outbox"
	JobFutureEngagement    = "future-engagement"
	JobAccountDeactivation = "account-deactivation"
	JobMartImport          = "mart-import"
)

// App holds the wired components. Close releases their connections.
type App struct {
	Store     store.Store
	Claimer   jobhistory.Claimer
	Scheduler *scheduler.Scheduler
	Server    *api.Server

	// Mailbox is the MART source, nil when the importer is disabled.
	Mailbox mart.Mailbox

	postgres *store.Postgres
	redis    *redis.Client
	logger   *zap.Logger
}

// Options override components, mainly for tests and local runs.
type Options struct {
	Store     store.Store
	Transport mail.Transport
	Mailbox   mart.Mailbox
	Redis     *redis.Client
	Clock     func() time.Time
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{logger: logger, redis: opts.Redis, Store: opts.Store, Mailbox: opts.Mailbox}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", cfg.TimeZone, err)
	}

	if a.Store == nil {
		if err := a.openStore(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if a.redis == nil && (cfg.ClaimBackend == "redis" || cfg.MailRateLimitCapacity > 0) {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	switch cfg.ClaimBackend {
	case "redis":
		a.Claimer = jobhistory.NewRedisClaimer(a.redis)
	case "postgres", "store", "":
		a.Claimer = jobhistory.NewStoreClaimer(a.Store)
	default:
		return nil, fmt.Errorf("unknown claim backend %q", cfg.ClaimBackend)
	}

	var schedOpts []scheduler.Option
	if opts.Clock != nil {
		schedOpts = append(schedOpts, scheduler.WithClock(opts.Clock))
	}
	a.Scheduler = scheduler.New(a.Claimer, logger, schedOpts...)

	if err := a.registerOutbox(cfg, loc, opts.Transport); err != nil {
		return nil, err
	}
	if err := a.registerPolicies(cfg, loc); err != nil {
		return nil, err
	}
	if cfg.MartEnabled {
		if err := a.registerMart(ctx, cfg); err != nil {
			return nil, err
		}
	}

	var limiter api.Limiter
	if a.redis != nil && cfg.AdminRateLimitCapacity > 0 {
		limiter = ratelimit.NewTokenBucket(a.redis, cfg.AdminRateLimitCapacity, cfg.AdminRateLimitRefill, time.Hour)
	}
	a.Server = api.New(a.Scheduler, a.Claimer, a.Store, limiter, logger)

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.StoreDriver {
	case "memory":
		a.logger.Warn("using in-memory store, data is lost on exit")
		a.Store = memstore.New()
	case "postgres", "":
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.postgres = pg
		a.Store = pg
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return nil
}

// Migrate applies the schema when the store is Postgres.
func (a *App) Migrate(ctx context.Context) error {
	if a.postgres == nil {
		return nil
	}
	applied, err := a.postgres.RunMigrations(ctx, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("schema up to date", zap.Int("applied", len(applied)))
	return nil
}

func (a *App) registerOutbox(cfg config.Config, loc *time.Location, transport mail.Transport) error {
	if transport == nil {
		if cfg.SMTPDisabled {
			transport = mail.NewLogTransport(a.logger)
		} else {
			transport = mail.NewSMTPTransport(mail.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				StartTLS: cfg.SMTPStartTLS,
				Timeout:  cfg.SMTPTimeout,
				From:     cfg.EmailFrom,
			})
		}
	}
	var throttle outbox.Throttle
	if a.redis != nil && cfg.MailRateLimitCapacity > 0 {
		throttle = ratelimit.NewTokenBucket(a.redis, cfg.MailRateLimitCapacity, cfg.MailRateLimitRefill, time.Hour)
	}
	delivery := outbox.NewDelivery(a.Store, transport, throttle, outbox.DeliveryConfig{
		BatchSize:  cfg.EmailBatchSize,
		StaleAfter: cfg.EmailStaleAfter,
		Env: notify.Env{
			ServerURL:        cfg.ServerURL,
			SupportEmailAddr: cfg.SupportEmailAddr,
			Location:         loc,
			DateFormat:       cfg.DateFormat,
		},
	}, a.logger)

	return a.Scheduler.Register(scheduler.Job{
		Name:         JobOutbox,
		Interval:     cfg.OutboxInterval,
		InitialDelay: cfg.OutboxInitialDelay,
		Run: func(ctx context.Context, _ scheduler.RunInfo) error {
			_, err := delivery.Run(ctx)
			return err
		},
	})
}

func (a *App) registerPolicies(cfg config.Config, loc *time.Location) error {
	future := policy.NewFutureEngagement(a.Store, loc, a.logger)
	if err := a.Scheduler.Register(scheduler.Job{
		Name:         JobFutureEngagement,
		Interval:     cfg.FutureEngagementInterval,
		InitialDelay: cfg.FutureEngagementInitialDelay,
		Run: func(ctx context.Context, info scheduler.RunInfo) error {
			_, err := future.Run(ctx, info.Now)
			return err
		},
	}); err != nil {
		return err
	}

	if !cfg.DeactivationEnabled {
		return nil
	}
	deactivation := policy.NewAccountDeactivation(a.Store, policy.DeactivationConfig{
		WarningDays:    cfg.DeactivationWarningDays,
		IgnoredDomains: cfg.DeactivationIgnoredDomains,
		Location:       loc,
	}, a.logger)
	return a.Scheduler.Register(scheduler.Job{
		Name:         JobAccountDeactivation,
		Interval:     cfg.DeactivationInterval,
		InitialDelay: cfg.DeactivationInitialDelay,
		Run: func(ctx context.Context, info scheduler.RunInfo) error {
			_, err := deactivation.Run(ctx, info.Now, info.LastRun)
			return err
		},
	})
}

func (a *App) registerMart(ctx context.Context, cfg config.Config) error {
	s3cfg := objectstore.S3Config{
		Region:    cfg.MartS3Region,
		Endpoint:  cfg.MartS3Endpoint,
		PathStyle: cfg.MartS3PathStyle,
		AccessKey: cfg.MartS3AccessKey,
		SecretKey: cfg.MartS3SecretKey,
	}
	needS3 := a.Mailbox == nil || cfg.AttachmentS3Bucket != ""
	var s3store *objectstore.S3Store
	if needS3 {
		client, err := objectstore.NewS3Client(ctx, s3cfg)
		if err != nil {
			return err
		}
		if a.Mailbox == nil {
			if cfg.MartS3Bucket == "" {
				return errors.New("MART_S3_BUCKET is required when MART_ENABLED is set")
			}
			a.Mailbox = mailbox.NewS3Mailbox(client, mailbox.S3Config{
				Bucket:          cfg.MartS3Bucket,
				InboxPrefix:     cfg.MartInboxPrefix,
				ProcessedPrefix: cfg.MartProcessedPrefix,
			}, a.logger)
		}
		if cfg.AttachmentS3Bucket != "" {
			s3store = objectstore.NewS3Store(client, cfg.AttachmentS3Bucket)
		}
	}

	var blobs objectstore.Store = objectstore.NewLocalStore(cfg.AttachmentDir)
	if s3store != nil {
		blobs = s3store
	}
	processor := attachment.NewProcessor(blobs, attachment.Config{
		AllowedMimeTypes: cfg.AttachmentAllowedMimeTypes,
		ThumbnailWidth:   cfg.AttachmentThumbnailWidth,
	}, a.logger)
	importer := mart.NewImporter(a.Store, a.Mailbox, processor, cfg.MartBatchSize, a.logger)

	return a.Scheduler.Register(scheduler.Job{
		Name:         JobMartImport,
		Interval:     cfg.MartInterval,
		InitialDelay: cfg.MartInitialDelay,
		Run: func(ctx context.Context, _ scheduler.RunInfo) error {
			_, err := importer.Run(ctx)
			return err
		},
	})
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}
