package store

import (
	"context"
	"errors"
	"time"

	"report-scheduler/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrOverlap is returned by position changes that would overlap existing history.
	ErrOverlap = models.ErrHistoryOverlap
)

// Queries is the data access capability the background jobs depend on.
// Implementations must be safe for concurrent use.
type Queries interface {
	// ClaimJob atomically sets the job's last run to now when at least window has
	// elapsed since the previous run (or the job never ran). It returns the previous
	// run time and whether the claim was granted.
	ClaimJob(ctx context.Context, jobName string, now time.Time, window time.Duration) (*time.Time, bool, error)
	// ForceClaimJob unconditionally records now as the last run and returns the previous one.
	ForceClaimJob(ctx context.Context, jobName string, now time.Time) (*time.Time, error)
	ListJobHistory(ctx context.Context) ([]models.JobHistory, error)

	InsertOutboxEmail(ctx context.Context, email models.OutboxEmail) error
	PendingOutboxEmails(ctx context.Context, limit int) ([]models.OutboxEmail, error)
	DeleteOutboxEmail(ctx context.Context, id string) error
	CountOutboxEmails(ctx context.Context) (int64, error)

	GetReport(ctx context.Context, uuid string) (models.Report, error)
	// ReportsWithEngagementBetween returns reports whose engagement date is in (after, before].
	// A nil after means no lower bound.
	ReportsWithEngagementBetween(ctx context.Context, after *time.Time, before time.Time) ([]models.Report, error)
	InsertReport(ctx context.Context, report models.Report) error
	GetApprovalStep(ctx context.Context, uuid string) (models.ApprovalStep, error)
	InsertReportAction(ctx context.Context, action models.ReportAction) error
	HasReportAction(ctx context.Context, reportUUID, stepUUID string, actionType models.ReportActionType) (bool, error)
	// MarkEngagementWarned records that the future-engagement warning for the report's
	// approval step went out. It returns false when the pair was already marked.
	MarkEngagementWarned(ctx context.Context, reportUUID, stepUUID string, at time.Time) (bool, error)

	GetPerson(ctx context.Context, uuid string) (models.Person, error)
	FindPeopleByEmail(ctx context.Context, email string) ([]models.Person, error)
	// PeopleWithEndOfTourBefore returns people in the given status whose end-of-tour
	// date is set and not after before.
	PeopleWithEndOfTourBefore(ctx context.Context, status models.PersonStatus, before time.Time) ([]models.Person, error)
	UpdatePersonStatus(ctx context.Context, uuid string, status models.PersonStatus) error

	GetPosition(ctx context.Context, uuid string) (models.Position, error)
	SetPersonInPosition(ctx context.Context, personUUID, positionUUID string, at time.Time) error
	RemovePersonFromPosition(ctx context.Context, positionUUID string, at time.Time) error
	PositionHistory(ctx context.Context, personUUID string) ([]models.PersonPositionHistory, error)

	GetOrganization(ctx context.Context, uuid string) (models.Organization, error)
	GetLocation(ctx context.Context, uuid string) (models.Location, error)
	GetTask(ctx context.Context, uuid string) (models.Task, error)

	InsertAttachment(ctx context.Context, attachment models.Attachment) error
	ListAttachments(ctx context.Context, reportUUID string) ([]models.Attachment, error)

	InsertMartImportedReport(ctx context.Context, record models.MartImportedReport) error
	ListMartImportedReports(ctx context.Context, limit int) ([]models.MartImportedReport, error)
}

// Store adds transactions to Queries. Everything fn does through its Queries argument
// commits or rolls back together.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
