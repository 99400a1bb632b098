package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"report-scheduler/internal/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres wraps pgxpool for Postgres persistence.
type Postgres struct {
	*queries
	pool *pgxpool.Pool
}

type queries struct {
	db dbtx
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{queries: &queries{db: pool}, pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside a single transaction.
func (s *Postgres) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return s.queries.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}

// inTx begins a transaction, or a savepoint when already inside one.
func (q *queries) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (q *queries) ClaimJob(ctx context.Context, jobName string, now time.Time, window time.Duration) (*time.Time, bool, error) {
	var (
		prev    *time.Time
		granted bool
	)
	err := q.inTx(ctx, func(tx pgx.Tx) error {
		var last time.Time
		err := tx.QueryRow(ctx, `
			SELECT last_run_at FROM job_history WHERE job_name = $1 FOR UPDATE
		`, jobName).Scan(&last)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("select job history: %w", err)
		default:
			prev = &last
		}
		if prev != nil && now.Sub(*prev) < window {
			return nil
		}
		// The WHERE clause also covers the race where two claimers both saw no row:
		// the loser's insert turns into a conflicting update that matches nothing.
		tag, err := tx.Exec(ctx, `
			INSERT INTO job_history (job_name, last_run_at)
			VALUES ($1, $2)
			ON CONFLICT (job_name) DO UPDATE SET last_run_at = EXCLUDED.last_run_at
			WHERE job_history.last_run_at <= $3
		`, jobName, now, now.Add(-window))
		if err != nil {
			return fmt.Errorf("upsert job history: %w", err)
		}
		granted = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return prev, granted, nil
}

func (q *queries) ForceClaimJob(ctx context.Context, jobName string, now time.Time) (*time.Time, error) {
	var prev *time.Time
	err := q.inTx(ctx, func(tx pgx.Tx) error {
		var last time.Time
		err := tx.QueryRow(ctx, `
			SELECT last_run_at FROM job_history WHERE job_name = $1 FOR UPDATE
		`, jobName).Scan(&last)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("select job history: %w", err)
		default:
			prev = &last
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_history (job_name, last_run_at)
			VALUES ($1, $2)
			ON CONFLICT (job_name) DO UPDATE SET last_run_at = EXCLUDED.last_run_at
		`, jobName, now); err != nil {
			return fmt.Errorf("upsert job history: %w", err)
		}
		return nil
	})
	return prev, err
}

func (q *queries) ListJobHistory(ctx context.Context) ([]models.JobHistory, error) {
	rows, err := q.db.Query(ctx, `SELECT job_name, last_run_at FROM job_history ORDER BY job_name`)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.JobHistory, error) {
		var h models.JobHistory
		err := row.Scan(&h.JobName, &h.LastRunAt)
		return h, err
	})
}

func (q *queries) InsertOutboxEmail(ctx context.Context, email models.OutboxEmail) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO pending_emails (id, to_addresses, action, created_at)
		VALUES ($1, $2, $3, $4)
	`, email.ID, email.ToAddresses, email.Action, email.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pending email: %w", mapError(err))
	}
	return nil
}

func (q *queries) PendingOutboxEmails(ctx context.Context, limit int) ([]models.OutboxEmail, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, to_addresses, action, created_at
		FROM pending_emails
		ORDER BY created_at, id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending emails: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OutboxEmail, error) {
		var e models.OutboxEmail
		err := row.Scan(&e.ID, &e.ToAddresses, &e.Action, &e.CreatedAt)
		return e, err
	})
}

func (q *queries) DeleteOutboxEmail(ctx context.Context, id string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM pending_emails WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete pending email: %w", err)
	}
	return nil
}

func (q *queries) CountOutboxEmails(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM pending_emails`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending emails: %w", err)
	}
	return n, nil
}

const reportColumns = `uuid, state, engagement_date, approval_step_uuid, author_uuid, advisor_org_uuid,
	location_uuid, intent, report_text, custom_fields, created_at, updated_at`

func scanReport(row pgx.Row) (models.Report, error) {
	var (
		r                        models.Report
		step, author, org, loc   pgtype.Text
		reportText, customFields pgtype.Text
	)
	if err := row.Scan(&r.UUID, &r.State, &r.EngagementDate, &step, &author, &org, &loc, &r.Intent, &reportText, &customFields, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.Report{}, err
	}
	r.ApprovalStepUUID = textPtr(step)
	r.AuthorUUID = textPtr(author)
	r.AdvisorOrgUUID = textPtr(org)
	r.LocationUUID = textPtr(loc)
	r.ReportText = reportText.String
	r.CustomFields = customFields.String
	return r, nil
}

func (q *queries) GetReport(ctx context.Context, uuid string) (models.Report, error) {
	r, err := scanReport(q.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE uuid = $1`, uuid))
	if err != nil {
		return models.Report{}, fmt.Errorf("get report %s: %w", uuid, mapError(err))
	}
	rows, err := q.db.Query(ctx, `SELECT task_uuid FROM report_tasks WHERE report_uuid = $1 ORDER BY task_uuid`, uuid)
	if err != nil {
		return models.Report{}, fmt.Errorf("query report tasks: %w", err)
	}
	r.TaskUUIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return models.Report{}, fmt.Errorf("scan report tasks: %w", err)
	}
	return r, nil
}

func (q *queries) ReportsWithEngagementBetween(ctx context.Context, after *time.Time, before time.Time) ([]models.Report, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE engagement_date <= $1 AND ($2::timestamptz IS NULL OR engagement_date > $2)
		ORDER BY engagement_date, uuid
	`, before, after)
	if err != nil {
		return nil, fmt.Errorf("query reports by engagement: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Report, error) {
		return scanReport(row)
	})
}

func (q *queries) InsertReport(ctx context.Context, r models.Report) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, r.UUID, r.State, r.EngagementDate, r.ApprovalStepUUID, r.AuthorUUID, r.AdvisorOrgUUID,
		r.LocationUUID, r.Intent, emptyToNil(r.ReportText), emptyToNil(r.CustomFields), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.UUID, mapError(err))
	}
	for _, task := range r.TaskUUIDs {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO report_tasks (report_uuid, task_uuid) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, r.UUID, task); err != nil {
			return fmt.Errorf("insert report task: %w", err)
		}
	}
	return nil
}

func (q *queries) GetApprovalStep(ctx context.Context, uuid string) (models.ApprovalStep, error) {
	var (
		step models.ApprovalStep
		next pgtype.Text
	)
	err := q.db.QueryRow(ctx, `
		SELECT uuid, name, type, next_step_uuid FROM approval_steps WHERE uuid = $1
	`, uuid).Scan(&step.UUID, &step.Name, &step.Type, &next)
	if err != nil {
		return models.ApprovalStep{}, fmt.Errorf("get approval step %s: %w", uuid, mapError(err))
	}
	step.NextStepUUID = textPtr(next)
	rows, err := q.db.Query(ctx, `
		SELECT position_uuid FROM approval_step_approvers WHERE step_uuid = $1 ORDER BY ord
	`, uuid)
	if err != nil {
		return models.ApprovalStep{}, fmt.Errorf("query approvers: %w", err)
	}
	step.ApproverUUIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return models.ApprovalStep{}, fmt.Errorf("scan approvers: %w", err)
	}
	return step, nil
}

func (q *queries) InsertReportAction(ctx context.Context, a models.ReportAction) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO report_actions (report_uuid, step_uuid, person_uuid, type, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ReportUUID, a.StepUUID, a.PersonUUID, a.Type, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report action: %w", mapError(err))
	}
	return nil
}

func (q *queries) HasReportAction(ctx context.Context, reportUUID, stepUUID string, actionType models.ReportActionType) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM report_actions WHERE report_uuid = $1 AND step_uuid = $2 AND type = $3
		)
	`, reportUUID, stepUUID, actionType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query report actions: %w", err)
	}
	return exists, nil
}

func (q *queries) MarkEngagementWarned(ctx context.Context, reportUUID, stepUUID string, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO engagement_warnings (report_uuid, step_uuid, warned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (report_uuid, step_uuid) DO NOTHING
	`, reportUUID, stepUUID, at)
	if err != nil {
		return false, fmt.Errorf("mark engagement warned: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const personSelect = `
	SELECT p.uuid, p.name, p.rank, p.email_address, p.domain_username, p.status, p.end_of_tour_date, pos.uuid
	FROM people p
	LEFT JOIN positions pos ON pos.current_person_uuid = p.uuid`

func scanPerson(row pgx.Row) (models.Person, error) {
	var (
		p                   models.Person
		rank, email, domain pgtype.Text
		position            pgtype.Text
	)
	if err := row.Scan(&p.UUID, &p.Name, &rank, &email, &domain, &p.Status, &p.EndOfTourDate, &position); err != nil {
		return models.Person{}, err
	}
	p.Rank = rank.String
	p.EmailAddress = email.String
	p.DomainUsername = domain.String
	p.PositionUUID = textPtr(position)
	return p, nil
}

func (q *queries) GetPerson(ctx context.Context, uuid string) (models.Person, error) {
	p, err := scanPerson(q.db.QueryRow(ctx, personSelect+` WHERE p.uuid = $1`, uuid))
	if err != nil {
		return models.Person{}, fmt.Errorf("get person %s: %w", uuid, mapError(err))
	}
	return p, nil
}

func (q *queries) FindPeopleByEmail(ctx context.Context, email string) ([]models.Person, error) {
	rows, err := q.db.Query(ctx, personSelect+` WHERE lower(p.email_address) = lower($1) ORDER BY p.uuid`, email)
	if err != nil {
		return nil, fmt.Errorf("query people by email: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Person, error) {
		return scanPerson(row)
	})
}

func (q *queries) PeopleWithEndOfTourBefore(ctx context.Context, status models.PersonStatus, before time.Time) ([]models.Person, error) {
	rows, err := q.db.Query(ctx, personSelect+`
		WHERE p.status = $1 AND p.end_of_tour_date IS NOT NULL AND p.end_of_tour_date <= $2
		ORDER BY p.end_of_tour_date, p.uuid
	`, status, before)
	if err != nil {
		return nil, fmt.Errorf("query people by end of tour: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Person, error) {
		return scanPerson(row)
	})
}

func (q *queries) UpdatePersonStatus(ctx context.Context, uuid string, status models.PersonStatus) error {
	tag, err := q.db.Exec(ctx, `UPDATE people SET status = $2, updated_at = NOW() WHERE uuid = $1`, uuid, status)
	if err != nil {
		return fmt.Errorf("update person status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update person %s: %w", uuid, ErrNotFound)
	}
	return nil
}

func (q *queries) GetPosition(ctx context.Context, uuid string) (models.Position, error) {
	var (
		pos          models.Position
		org, current pgtype.Text
	)
	err := q.db.QueryRow(ctx, `
		SELECT uuid, name, organization_uuid, current_person_uuid FROM positions WHERE uuid = $1
	`, uuid).Scan(&pos.UUID, &pos.Name, &org, &current)
	if err != nil {
		return models.Position{}, fmt.Errorf("get position %s: %w", uuid, mapError(err))
	}
	pos.OrganizationUUID = textPtr(org)
	pos.CurrentPersonUUID = textPtr(current)
	return pos, nil
}

func (q *queries) SetPersonInPosition(ctx context.Context, personUUID, positionUUID string, at time.Time) error {
	return q.inTx(ctx, func(tx pgx.Tx) error {
		inner := &queries{db: tx}
		pos, err := inner.GetPosition(ctx, positionUUID)
		if err != nil {
			return err
		}
		if pos.CurrentPersonUUID != nil {
			if *pos.CurrentPersonUUID == personUUID {
				return nil
			}
			if err := inner.closePosition(ctx, positionUUID, at); err != nil {
				return err
			}
		}
		var held pgtype.Text
		err = tx.QueryRow(ctx, `SELECT uuid FROM positions WHERE current_person_uuid = $1`, personUUID).Scan(&held)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("query held position: %w", err)
		}
		if held.Valid {
			if err := inner.closePosition(ctx, held.String, at); err != nil {
				return err
			}
		}

		candidate := models.PersonPositionHistory{PersonUUID: personUUID, PositionUUID: positionUUID, StartTime: at}
		byPerson, err := inner.PositionHistory(ctx, personUUID)
		if err != nil {
			return err
		}
		if err := models.CheckHistoryOverlap(byPerson, candidate); err != nil {
			return err
		}
		byPosition, err := inner.historyByPosition(ctx, positionUUID)
		if err != nil {
			return err
		}
		if err := models.CheckHistoryOverlap(byPosition, candidate); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO person_position_history (person_uuid, position_uuid, start_time) VALUES ($1, $2, $3)
		`, personUUID, positionUUID, at); err != nil {
			return fmt.Errorf("insert position history: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE positions SET current_person_uuid = $2, updated_at = NOW() WHERE uuid = $1
		`, positionUUID, personUUID); err != nil {
			return fmt.Errorf("assign position: %w", mapError(err))
		}
		return nil
	})
}

func (q *queries) RemovePersonFromPosition(ctx context.Context, positionUUID string, at time.Time) error {
	return q.inTx(ctx, func(tx pgx.Tx) error {
		return (&queries{db: tx}).closePosition(ctx, positionUUID, at)
	})
}

func (q *queries) closePosition(ctx context.Context, positionUUID string, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE person_position_history SET end_time = $2
		WHERE position_uuid = $1 AND end_time IS NULL
	`, positionUUID, at)
	if err != nil {
		return fmt.Errorf("close position history: %w", err)
	}
	if tag.RowsAffected() > 0 {
		var bad bool
		if err := q.db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM person_position_history WHERE position_uuid = $1 AND end_time < start_time)
		`, positionUUID).Scan(&bad); err != nil {
			return fmt.Errorf("verify position history: %w", err)
		}
		if bad {
			return models.ErrHistoryOverlap
		}
	}
	if _, err := q.db.Exec(ctx, `
		UPDATE positions SET current_person_uuid = NULL, updated_at = NOW() WHERE uuid = $1
	`, positionUUID); err != nil {
		return fmt.Errorf("clear position: %w", err)
	}
	return nil
}

func collectHistory(rows pgx.Rows) ([]models.PersonPositionHistory, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.PersonPositionHistory, error) {
		var h models.PersonPositionHistory
		err := row.Scan(&h.PersonUUID, &h.PositionUUID, &h.StartTime, &h.EndTime)
		return h, err
	})
}

func (q *queries) PositionHistory(ctx context.Context, personUUID string) ([]models.PersonPositionHistory, error) {
	rows, err := q.db.Query(ctx, `
		SELECT person_uuid, position_uuid, start_time, end_time
		FROM person_position_history WHERE person_uuid = $1 ORDER BY start_time
	`, personUUID)
	if err != nil {
		return nil, fmt.Errorf("query position history: %w", err)
	}
	return collectHistory(rows)
}

func (q *queries) historyByPosition(ctx context.Context, positionUUID string) ([]models.PersonPositionHistory, error) {
	rows, err := q.db.Query(ctx, `
		SELECT person_uuid, position_uuid, start_time, end_time
		FROM person_position_history WHERE position_uuid = $1 ORDER BY start_time
	`, positionUUID)
	if err != nil {
		return nil, fmt.Errorf("query position history: %w", err)
	}
	return collectHistory(rows)
}

func (q *queries) GetOrganization(ctx context.Context, uuid string) (models.Organization, error) {
	var (
		org      models.Organization
		longName pgtype.Text
	)
	err := q.db.QueryRow(ctx, `SELECT uuid, short_name, long_name FROM organizations WHERE uuid = $1`, uuid).
		Scan(&org.UUID, &org.ShortName, &longName)
	if err != nil {
		return models.Organization{}, fmt.Errorf("get organization %s: %w", uuid, mapError(err))
	}
	org.LongName = longName.String
	return org, nil
}

func (q *queries) GetLocation(ctx context.Context, uuid string) (models.Location, error) {
	var loc models.Location
	err := q.db.QueryRow(ctx, `SELECT uuid, name FROM locations WHERE uuid = $1`, uuid).Scan(&loc.UUID, &loc.Name)
	if err != nil {
		return models.Location{}, fmt.Errorf("get location %s: %w", uuid, mapError(err))
	}
	return loc, nil
}

func (q *queries) GetTask(ctx context.Context, uuid string) (models.Task, error) {
	var (
		task     models.Task
		longName pgtype.Text
	)
	err := q.db.QueryRow(ctx, `SELECT uuid, short_name, long_name FROM tasks WHERE uuid = $1`, uuid).
		Scan(&task.UUID, &task.ShortName, &longName)
	if err != nil {
		return models.Task{}, fmt.Errorf("get task %s: %w", uuid, mapError(err))
	}
	task.LongName = longName.String
	return task, nil
}

func (q *queries) InsertAttachment(ctx context.Context, a models.Attachment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO attachments (uuid, related_report_uuid, author_uuid, file_name, mime_type, content_length, storage_key, thumbnail_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.UUID, a.RelatedReportUUID, a.AuthorUUID, a.FileName, a.MimeType, a.ContentLength, a.StorageKey, a.ThumbnailKey, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", mapError(err))
	}
	return nil
}

func (q *queries) ListAttachments(ctx context.Context, reportUUID string) ([]models.Attachment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT uuid, related_report_uuid, author_uuid, file_name, mime_type, content_length, storage_key, thumbnail_key, created_at
		FROM attachments WHERE related_report_uuid = $1 ORDER BY created_at, uuid
	`, reportUUID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Attachment, error) {
		var (
			a             models.Attachment
			author, thumb pgtype.Text
		)
		err := row.Scan(&a.UUID, &a.RelatedReportUUID, &author, &a.FileName, &a.MimeType, &a.ContentLength, &a.StorageKey, &thumb, &a.CreatedAt)
		a.AuthorUUID = textPtr(author)
		a.ThumbnailKey = textPtr(thumb)
		return a, err
	})
}

func (q *queries) InsertMartImportedReport(ctx context.Context, r models.MartImportedReport) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO mart_imported_reports (id, created_at, person_uuid, report_uuid, success, errors)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.CreatedAt, r.PersonUUID, r.ReportUUID, r.Success, emptyToNil(r.Errors))
	if err != nil {
		return fmt.Errorf("insert mart imported report: %w", mapError(err))
	}
	return nil
}

func (q *queries) ListMartImportedReports(ctx context.Context, limit int) ([]models.MartImportedReport, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, created_at, person_uuid, report_uuid, success, errors
		FROM mart_imported_reports
		ORDER BY created_at DESC, id
		LIMIT NULLIF($1, 0)
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query mart imported reports: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MartImportedReport, error) {
		var (
			r                    models.MartImportedReport
			person, report, errs pgtype.Text
		)
		err := row.Scan(&r.ID, &r.CreatedAt, &person, &report, &r.Success, &errs)
		r.PersonUUID = textPtr(person)
		r.ReportUUID = textPtr(report)
		r.Errors = errs.String
		return r, err
	})
}

// mapError translates driver errors into the package's sentinel errors.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		case "23P01":
			return models.ErrHistoryOverlap
		}
	}
	return err
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
