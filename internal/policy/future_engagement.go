package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"report-scheduler/internal/models"
	"report-scheduler/internal/notify"
	"report-scheduler/internal/outbox"
	"report-scheduler/internal/store"
)

var futureEngagementStates = map[models.ReportState]bool{
	models.ReportPendingApproval: true,
	models.ReportApproved:        true,
	models.ReportPublished:       true,
	models.ReportRejected:        true,
}

// FutureEngagement reminds planning approvers about engagements whose date has come
// while the planning approval is still outstanding.
type FutureEngagement struct {
	store  store.Store
	loc    *time.Location
	logger *zap.Logger
}

func NewFutureEngagement(st store.Store, loc *time.Location, logger *zap.Logger) *FutureEngagement {
	if loc == nil {
		loc = time.UTC
	}
	return &FutureEngagement{store: st, loc: loc, logger: logger.With(zap.String("worker", "future_engagement"))}
}

// Run enqueues one warning per qualifying report and returns how many were enqueued.
// Every report due by the end of today is considered; a report already warned for its
// current approval step is skipped.
func (w *FutureEngagement) Run(ctx context.Context, now time.Time) (int, error) {
	reports, err := w.store.ReportsWithEngagementBetween(ctx, nil, endOfDay(now, w.loc))
	if err != nil {
		return 0, fmt.Errorf("load due reports: %w", err)
	}

	sent := 0
	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		ok, err := w.notify(ctx, r, now)
		if err != nil {
			w.logger.Error("future engagement warning failed", zap.String("report", r.UUID), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	if sent > 0 {
		w.logger.Info("future engagement warnings enqueued", zap.Int("count", sent))
	}
	return sent, nil
}

func (w *FutureEngagement) notify(ctx context.Context, r models.Report, now time.Time) (bool, error) {
	if !futureEngagementStates[r.State] || r.ApprovalStepUUID == nil || r.EngagementDate == nil {
		return false, nil
	}
	step, err := w.store.GetApprovalStep(ctx, *r.ApprovalStepUUID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if step.Type != models.PlanningApproval {
		return false, nil
	}
	approved, err := w.store.HasReportAction(ctx, r.UUID, step.UUID, models.ActionApprove)
	if err != nil {
		return false, err
	}
	if approved {
		return false, nil
	}

	to, err := w.approverEmails(ctx, step)
	if err != nil {
		return false, err
	}
	action := notify.FutureEngagementWarning{ReportUUID: r.UUID, Intent: r.Intent, EngagementDate: *r.EngagementDate}
	var marked bool
	err = w.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		marked, err = q.MarkEngagementWarned(ctx, r.UUID, step.UUID, now)
		if err != nil || !marked {
			return err
		}
		return outbox.Enqueue(ctx, q, to, action, now)
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}

// approverEmails resolves the people currently holding the step's approver positions.
func (w *FutureEngagement) approverEmails(ctx context.Context, step models.ApprovalStep) ([]string, error) {
	var to []string
	for _, positionUUID := range step.ApproverUUIDs {
		pos, err := w.store.GetPosition(ctx, positionUUID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if pos.CurrentPersonUUID == nil {
			continue
		}
		person, err := w.store.GetPerson(ctx, *pos.CurrentPersonUUID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if person.Status == models.PersonActive && person.EmailAddress != "" {
			to = append(to, person.EmailAddress)
		}
	}
	return to, nil
}
