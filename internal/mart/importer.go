// Package mart imports reports authored in the external MART system from a mailbox.
package mart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"report-scheduler/internal/attachment"
	"report-scheduler/internal/models"
	"report-scheduler/internal/store"
	"report-scheduler/internal/telemetry"
)

// Mailbox is the source of MART messages. A message stays in the mailbox until acked.
type Mailbox interface {
	Download(ctx context.Context, limit int) ([]Message, error)
	Ack(ctx context.Context, id string) error
}

// AttachmentProcessor stores an attachment blob and describes it. Discard removes
// the blobs of an attachment whose row was rolled back.
type AttachmentProcessor interface {
	Process(ctx context.Context, reportUUID string, authorUUID *string, fileName string, data []byte) (models.Attachment, error)
	Discard(ctx context.Context, att models.Attachment) error
}

// hardFailure rejects a single message. It is recorded, never retried.
type hardFailure struct {
	msg string
}

func (e *hardFailure) Error() string { return e.msg }

func reject(format string, args ...any) error {
	return &hardFailure{msg: fmt.Sprintf(format, args...)}
}

type Stats struct {
	Imported int
	Rejected int
	Retried  int
}

type Importer struct {
	store       store.Store
	mailbox     Mailbox
	attachments AttachmentProcessor
	policy      *bluemonday.Policy
	batchSize   int
	logger      *zap.Logger
	now         func() time.Time
}

func NewImporter(st store.Store, mailbox Mailbox, attachments AttachmentProcessor, batchSize int, logger *zap.Logger) *Importer {
	return &Importer{
		store:       st,
		mailbox:     mailbox,
		attachments: attachments,
		policy:      bluemonday.UGCPolicy(),
		batchSize:   batchSize,
		logger:      logger.With(zap.String("worker", "mart_import")),
		now:         time.Now,
	}
}

// Run imports one batch of messages. Each message gets exactly one audit record
// and is acknowledged once that record is committed. Infrastructure errors leave
// the message in the mailbox for the next run.
func (im *Importer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	messages, err := im.mailbox.Download(ctx, im.batchSize)
	if err != nil {
		return stats, fmt.Errorf("download messages: %w", err)
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		record, err := im.importMessage(ctx, msg)
		if err != nil {
			stats.Retried++
			telemetry.MartImports.WithLabelValues("retry").Inc()
			im.logger.Error("mart message import failed", zap.String("message", msg.ID), zap.Error(err))
			continue
		}
		if record.Success {
			stats.Imported++
			telemetry.MartImports.WithLabelValues("imported").Inc()
			im.logger.Info("mart report imported", zap.String("message", msg.ID), zap.Stringp("report", record.ReportUUID))
		} else {
			stats.Rejected++
			telemetry.MartImports.WithLabelValues("rejected").Inc()
			im.logger.Warn("mart report rejected", zap.String("message", msg.ID), zap.String("errors", record.Errors))
		}
		if err := im.mailbox.Ack(ctx, msg.ID); err != nil {
			im.logger.Error("ack mart message", zap.String("message", msg.ID), zap.Error(err))
		}
	}
	return stats, nil
}

func (im *Importer) importMessage(ctx context.Context, msg Message) (models.MartImportedReport, error) {
	record := models.MartImportedReport{ID: uuid.NewString(), CreatedAt: im.now().UTC()}

	dto, err := parseReport(msg)
	if err != nil {
		record.Errors = fmt.Sprintf("Invalid report payload: %v", err)
		return record, im.store.InsertMartImportedReport(ctx, record)
	}
	if dto.SubmittedAt != nil {
		im.logger.Debug("mart transport delay", zap.String("report", dto.UUID), zap.Duration("delay", im.now().Sub(*dto.SubmittedAt)))
	}

	var stored []models.Attachment
	err = im.store.WithTx(ctx, func(q store.Queries) error {
		return im.createReport(ctx, q, dto, msg.files(), &record, &stored)
	})
	if err != nil {
		im.discard(ctx, stored)
	}
	var hard *hardFailure
	switch {
	case err == nil:
		return record, nil
	case errors.As(err, &hard):
		record.Success = false
		record.ReportUUID = nil
		record.Errors = hard.msg
		return record, im.store.InsertMartImportedReport(ctx, record)
	default:
		return record, err
	}
}

// createReport validates dto against the stored entities and writes the report, its
// attachments and the success audit row through q.
func (im *Importer) createReport(ctx context.Context, q store.Queries, dto ReportDto, files []Attachment, record *models.MartImportedReport, stored *[]models.Attachment) error {
	people, err := q.FindPeopleByEmail(ctx, dto.Email)
	if err != nil {
		return err
	}
	if len(people) == 0 {
		return reject("Can not find submitter: '%s' with email: %s", dto.submitterName(), dto.Email)
	}
	author := people[0]
	record.PersonUUID = &author.UUID

	org, err := q.GetOrganization(ctx, dto.OrganizationUUID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !organizationNameMatches(org, dto.OrganizationName)) {
		return reject("Can not find submitter organization: '%s' with uuid: %s", dto.OrganizationName, dto.OrganizationUUID)
	}
	if err != nil {
		return err
	}

	loc, err := q.GetLocation(ctx, dto.LocationUUID)
	if errors.Is(err, store.ErrNotFound) {
		return reject("Can not find report location: does not exist")
	}
	if err != nil {
		return err
	}

	_, err = q.GetReport(ctx, dto.UUID)
	if err == nil {
		return reject("Report with UUID already exists: %s", dto.UUID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var warnings strings.Builder
	taskUUIDs, err := resolveTasks(ctx, q, dto.Tasks, &warnings)
	if err != nil {
		return err
	}

	now := im.now().UTC()
	report := models.Report{
		UUID:           dto.UUID,
		State:          models.ReportDraft,
		EngagementDate: dto.EngagementDate,
		AuthorUUID:     &author.UUID,
		AdvisorOrgUUID: &org.UUID,
		LocationUUID:   &loc.UUID,
		Intent:         strings.TrimSpace(dto.Intent),
		ReportText:     im.sanitize(dto.ReportText),
		CustomFields:   dto.CustomFields,
		TaskUUIDs:      taskUUIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := q.InsertReport(ctx, report); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return reject("Report with UUID already exists: %s", dto.UUID)
		}
		return err
	}

	for _, f := range files {
		if im.attachments == nil {
			fmt.Fprintf(&warnings, "Attachment found in e-mail is not valid: %s<br>", f.Name)
			continue
		}
		att, err := im.attachments.Process(ctx, report.UUID, &author.UUID, f.Name, f.Data)
		if errors.Is(err, attachment.ErrNotAllowed) || errors.Is(err, attachment.ErrEmpty) {
			fmt.Fprintf(&warnings, "Attachment found in e-mail is not valid: %s<br>", f.Name)
			continue
		}
		if err != nil {
			return err
		}
		*stored = append(*stored, att)
		if err := q.InsertAttachment(ctx, att); err != nil {
			return err
		}
	}

	record.Success = true
	record.ReportUUID = &report.UUID
	record.Errors = warnings.String()
	return q.InsertMartImportedReport(ctx, *record)
}

// discard removes blobs written by a transaction that did not commit. Failures only
// leave orphaned blobs behind, so they are logged.
func (im *Importer) discard(ctx context.Context, atts []models.Attachment) {
	for _, att := range atts {
		if err := im.attachments.Discard(ctx, att); err != nil {
			im.logger.Warn("discard attachment blob", zap.String("attachment", att.UUID), zap.Error(err))
		}
	}
}

// resolveTasks returns the uuids of the tasks that exist and appends a warning for
// each missing one. Tasks are visited in uuid order.
func resolveTasks(ctx context.Context, q store.Queries, tasks map[string]string, warnings *strings.Builder) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var found []string
	for _, id := range ids {
		_, err := q.GetTask(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(warnings, "Can not find task: '%s' with uuid: %s<br>", tasks[id], id)
			continue
		}
		if err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, nil
}

func organizationNameMatches(org models.Organization, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	return strings.EqualFold(name, org.ShortName) || strings.EqualFold(name, org.LongName)
}

func (im *Importer) sanitize(html string) string {
	clean := strings.TrimSpace(im.policy.Sanitize(html))
	if strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(clean)) == "" {
		return ""
	}
	return clean
}
