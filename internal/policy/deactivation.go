package policy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"report-scheduler/internal/models"
	"report-scheduler/internal/notify"
	"report-scheduler/internal/outbox"
	"report-scheduler/internal/store"
	"report-scheduler/internal/telemetry"
)

type DeactivationConfig struct {
	// WarningDays are the days before end of tour on which a warning is sent.
	WarningDays    []int
	IgnoredDomains []string
	Location       *time.Location
}

// DeactivationStats summarizes one run.
type DeactivationStats struct {
	Warned      int `json:"warned"`
	Deactivated int `json:"deactivated"`
	Ignored     int `json:"ignored"`
}

// AccountDeactivation warns people ahead of their end of tour and deactivates their
// account once it is reached.
type AccountDeactivation struct {
	store       store.Store
	matcher     DomainMatcher
	warningDays []int // descending
	loc         *time.Location
	logger      *zap.Logger
}

func NewAccountDeactivation(st store.Store, cfg DeactivationConfig, logger *zap.Logger) *AccountDeactivation {
	days := make([]int, 0, len(cfg.WarningDays))
	seen := map[int]bool{}
	for _, d := range cfg.WarningDays {
		if d > 0 && !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(days)))
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &AccountDeactivation{
		store:       st,
		matcher:     NewDomainMatcher(cfg.IgnoredDomains),
		warningDays: days,
		loc:         loc,
		logger:      logger.With(zap.String("worker", "account_deactivation")),
	}
}

func (w *AccountDeactivation) Run(ctx context.Context, now time.Time, lastRun *time.Time) (DeactivationStats, error) {
	var stats DeactivationStats
	horizon := endOfDay(now, w.loc)
	if len(w.warningDays) > 0 {
		horizon = endOfDay(now.AddDate(0, 0, w.warningDays[0]), w.loc)
	}
	people, err := w.store.PeopleWithEndOfTourBefore(ctx, models.PersonActive, horizon)
	if err != nil {
		return stats, fmt.Errorf("load people near end of tour: %w", err)
	}

	for _, p := range people {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		logger := w.logger.With(zap.String("person", p.UUID))
		if w.matcher.Ignored(p.DomainUsername) {
			stats.Ignored++
			continue
		}
		if p.Status != models.PersonActive || p.EndOfTourDate == nil {
			continue
		}

		if !p.EndOfTourDate.After(now) {
			if err := w.deactivate(ctx, p, now); err != nil {
				logger.Error("deactivate account", zap.Error(err))
				continue
			}
			stats.Deactivated++
			continue
		}

		threshold, next, ok := w.warningFor(p, now, lastRun)
		if !ok {
			continue
		}
		if p.EmailAddress == "" {
			logger.Info("no email address, skipping deactivation warning")
			continue
		}
		action := notify.AccountDeactivationWarning{
			PersonUUID:    p.UUID,
			PersonName:    p.Name,
			EndOfTourDate: *p.EndOfTourDate,
			NextReminder:  next,
		}
		if err := w.store.WithTx(ctx, func(q store.Queries) error {
			return outbox.Enqueue(ctx, q, []string{p.EmailAddress}, action, now)
		}); err != nil {
			logger.Error("enqueue deactivation warning", zap.Int("days", threshold), zap.Error(err))
			continue
		}
		stats.Warned++
	}

	if stats.Warned+stats.Deactivated > 0 {
		w.logger.Info("account deactivation run finished",
			zap.Int("warned", stats.Warned),
			zap.Int("deactivated", stats.Deactivated),
		)
	}
	return stats, nil
}

// warningFor returns the threshold matching the whole days left until end of tour and
// the date of the following reminder, if any. A threshold already matched on the day
// of lastRun is not matched again.
func (w *AccountDeactivation) warningFor(p models.Person, now time.Time, lastRun *time.Time) (int, *time.Time, bool) {
	days := daysBetween(now, *p.EndOfTourDate, w.loc)
	for i, threshold := range w.warningDays {
		if days != threshold {
			continue
		}
		if lastRun != nil && daysBetween(*lastRun, *p.EndOfTourDate, w.loc) == threshold {
			return 0, nil, false
		}
		var next *time.Time
		if i+1 < len(w.warningDays) {
			at := p.EndOfTourDate.AddDate(0, 0, -w.warningDays[i+1])
			next = &at
		}
		return threshold, next, true
	}
	return 0, nil, false
}

// deactivate marks the person inactive, frees their position and enqueues the notice
// in one transaction.
func (w *AccountDeactivation) deactivate(ctx context.Context, p models.Person, now time.Time) error {
	err := w.store.WithTx(ctx, func(q store.Queries) error {
		if err := q.UpdatePersonStatus(ctx, p.UUID, models.PersonInactive); err != nil {
			return err
		}
		if p.PositionUUID != nil {
			if err := q.RemovePersonFromPosition(ctx, *p.PositionUUID, now); err != nil {
				return fmt.Errorf("remove from position %s: %w", *p.PositionUUID, err)
			}
		}
		if p.EmailAddress == "" {
			return nil
		}
		return outbox.Enqueue(ctx, q, []string{p.EmailAddress}, notify.AccountDeactivation{
			PersonUUID:    p.UUID,
			PersonName:    p.Name,
			EndOfTourDate: *p.EndOfTourDate,
		}, now)
	})
	if err != nil {
		return err
	}
	telemetry.AccountsDeactivated.Inc()
	w.logger.Info("account deactivated", zap.String("person", p.UUID), zap.Bool("notified", p.EmailAddress != ""))
	return nil
}
