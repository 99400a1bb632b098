// Package jobhistory guards scheduled jobs with a persisted last-run marker so that
// a job runs at most once per window across every process sharing the backend.
package jobhistory

import (
	"context"
	"fmt"
	"time"

	"report-scheduler/internal/models"
	"report-scheduler/internal/store"
)

// Claim is the outcome of a claim attempt.
type Claim struct {
	Granted bool
	// PreviousRun is the last run recorded before this attempt, nil if the job never ran.
	PreviousRun *time.Time
}

// Claimer performs the atomic check-and-set on a job's last run.
type Claimer interface {
	Claim(ctx context.Context, jobName string, now time.Time, window time.Duration) (Claim, error)
	// ForceClaim records now regardless of the window. Used for manual runs.
	ForceClaim(ctx context.Context, jobName string, now time.Time) (Claim, error)
	History(ctx context.Context) ([]models.JobHistory, error)
}

// StoreClaimer keeps job history in the relational store.
type StoreClaimer struct {
	q store.Queries
}

func NewStoreClaimer(q store.Queries) *StoreClaimer {
	return &StoreClaimer{q: q}
}

func (c *StoreClaimer) Claim(ctx context.Context, jobName string, now time.Time, window time.Duration) (Claim, error) {
	prev, ok, err := c.q.ClaimJob(ctx, jobName, now, window)
	if err != nil {
		return Claim{}, fmt.Errorf("claim %s: %w", jobName, err)
	}
	return Claim{Granted: ok, PreviousRun: prev}, nil
}

func (c *StoreClaimer) ForceClaim(ctx context.Context, jobName string, now time.Time) (Claim, error) {
	prev, err := c.q.ForceClaimJob(ctx, jobName, now)
	if err != nil {
		return Claim{}, fmt.Errorf("force claim %s: %w", jobName, err)
	}
	return Claim{Granted: true, PreviousRun: prev}, nil
}

func (c *StoreClaimer) History(ctx context.Context) ([]models.JobHistory, error) {
	return c.q.ListJobHistory(ctx)
}
