package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"report-scheduler/internal/models"
	"report-scheduler/internal/store"
)

// state holds every table. Its methods do no locking; Store serializes access.
type state struct {
	jobs        map[string]time.Time
	emails      map[string]models.OutboxEmail
	reports     map[string]models.Report
	steps       map[string]models.ApprovalStep
	actions     []models.ReportAction
	warned      map[[2]string]time.Time
	people      map[string]models.Person
	positions   map[string]models.Position
	history     []models.PersonPositionHistory
	orgs        map[string]models.Organization
	locations   map[string]models.Location
	tasks       map[string]models.Task
	attachments []models.Attachment
	imports     []models.MartImportedReport
}

func newState() *state {
	return &state{
		jobs:      map[string]time.Time{},
		emails:    map[string]models.OutboxEmail{},
		reports:   map[string]models.Report{},
		steps:     map[string]models.ApprovalStep{},
		warned:    map[[2]string]time.Time{},
		people:    map[string]models.Person{},
		positions: map[string]models.Position{},
		orgs:      map[string]models.Organization{},
		locations: map[string]models.Location{},
		tasks:     map[string]models.Task{},
	}
}

// clone copies the containers. Stored values are replaced, never mutated in place,
// so sharing them between the copies is safe.
func (s *state) clone() *state {
	return &state{
		jobs:        maps.Clone(s.jobs),
		emails:      maps.Clone(s.emails),
		reports:     maps.Clone(s.reports),
		steps:       maps.Clone(s.steps),
		actions:     slices.Clone(s.actions),
		warned:      maps.Clone(s.warned),
		people:      maps.Clone(s.people),
		positions:   maps.Clone(s.positions),
		history:     slices.Clone(s.history),
		orgs:        maps.Clone(s.orgs),
		locations:   maps.Clone(s.locations),
		tasks:       maps.Clone(s.tasks),
		attachments: slices.Clone(s.attachments),
		imports:     slices.Clone(s.imports),
	}
}

func (s *state) ClaimJob(_ context.Context, jobName string, now time.Time, window time.Duration) (*time.Time, bool, error) {
	last, ok := s.jobs[jobName]
	if !ok {
		s.jobs[jobName] = now
		return nil, true, nil
	}
	if now.Sub(last) < window {
		return &last, false, nil
	}
	s.jobs[jobName] = now
	return &last, true, nil
}

func (s *state) ForceClaimJob(_ context.Context, jobName string, now time.Time) (*time.Time, error) {
	var prev *time.Time
	if last, ok := s.jobs[jobName]; ok {
		prev = &last
	}
	s.jobs[jobName] = now
	return prev, nil
}

func (s *state) ListJobHistory(context.Context) ([]models.JobHistory, error) {
	out := make([]models.JobHistory, 0, len(s.jobs))
	for name, at := range s.jobs {
		out = append(out, models.JobHistory{JobName: name, LastRunAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out, nil
}

func (s *state) InsertOutboxEmail(_ context.Context, email models.OutboxEmail) error {
	if _, ok := s.emails[email.ID]; ok {
		return fmt.Errorf("insert pending email %s: %w", email.ID, store.ErrAlreadyExists)
	}
	email.ToAddresses = slices.Clone(email.ToAddresses)
	email.Action = slices.Clone(email.Action)
	s.emails[email.ID] = email
	return nil
}

func (s *state) PendingOutboxEmails(_ context.Context, limit int) ([]models.OutboxEmail, error) {
	out := slices.Collect(maps.Values(s.emails))
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *state) DeleteOutboxEmail(_ context.Context, id string) error {
	delete(s.emails, id)
	return nil
}

func (s *state) CountOutboxEmails(context.Context) (int64, error) {
	return int64(len(s.emails)), nil
}

func (s *state) GetReport(_ context.Context, uuid string) (models.Report, error) {
	r, ok := s.reports[uuid]
	if !ok {
		return models.Report{}, fmt.Errorf("get report %s: %w", uuid, store.ErrNotFound)
	}
	return r, nil
}

func (s *state) ReportsWithEngagementBetween(_ context.Context, after *time.Time, before time.Time) ([]models.Report, error) {
	var out []models.Report
	for _, r := range s.reports {
		if r.EngagementDate == nil || r.EngagementDate.After(before) {
			continue
		}
		if after != nil && !r.EngagementDate.After(*after) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EngagementDate.Equal(*out[j].EngagementDate) {
			return out[i].EngagementDate.Before(*out[j].EngagementDate)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func (s *state) InsertReport(_ context.Context, r models.Report) error {
	if _, ok := s.reports[r.UUID]; ok {
		return fmt.Errorf("insert report %s: %w", r.UUID, store.ErrAlreadyExists)
	}
	r.TaskUUIDs = slices.Clone(r.TaskUUIDs)
	slices.Sort(r.TaskUUIDs)
	s.reports[r.UUID] = r
	return nil
}

func (s *state) GetApprovalStep(_ context.Context, uuid string) (models.ApprovalStep, error) {
	step, ok := s.steps[uuid]
	if !ok {
		return models.ApprovalStep{}, fmt.Errorf("get approval step %s: %w", uuid, store.ErrNotFound)
	}
	return step, nil
}

func (s *state) InsertReportAction(_ context.Context, a models.ReportAction) error {
	if _, ok := s.reports[a.ReportUUID]; !ok {
		return fmt.Errorf("insert report action: %w", store.ErrNotFound)
	}
	s.actions = append(s.actions, a)
	return nil
}

func (s *state) HasReportAction(_ context.Context, reportUUID, stepUUID string, actionType models.ReportActionType) (bool, error) {
	for _, a := range s.actions {
		if a.ReportUUID == reportUUID && a.StepUUID != nil && *a.StepUUID == stepUUID && a.Type == actionType {
			return true, nil
		}
	}
	return false, nil
}

func (s *state) MarkEngagementWarned(_ context.Context, reportUUID, stepUUID string, at time.Time) (bool, error) {
	if _, ok := s.reports[reportUUID]; !ok {
		return false, fmt.Errorf("mark engagement warned: %w", store.ErrNotFound)
	}
	key := [2]string{reportUUID, stepUUID}
	if _, ok := s.warned[key]; ok {
		return false, nil
	}
	s.warned[key] = at
	return true, nil
}

// withPosition fills in the position currently held by p.
func (s *state) withPosition(p models.Person) models.Person {
	p.PositionUUID = nil
	for _, pos := range s.positions {
		if pos.CurrentPersonUUID != nil && *pos.CurrentPersonUUID == p.UUID {
			uuid := pos.UUID
			p.PositionUUID = &uuid
			break
		}
	}
	return p
}

func (s *state) GetPerson(_ context.Context, uuid string) (models.Person, error) {
	p, ok := s.people[uuid]
	if !ok {
		return models.Person{}, fmt.Errorf("get person %s: %w", uuid, store.ErrNotFound)
	}
	return s.withPosition(p), nil
}

func (s *state) FindPeopleByEmail(_ context.Context, email string) ([]models.Person, error) {
	var out []models.Person
	for _, p := range s.people {
		if p.EmailAddress != "" && strings.EqualFold(p.EmailAddress, email) {
			out = append(out, s.withPosition(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func (s *state) PeopleWithEndOfTourBefore(_ context.Context, status models.PersonStatus, before time.Time) ([]models.Person, error) {
	var out []models.Person
	for _, p := range s.people {
		if p.Status != status || p.EndOfTourDate == nil || p.EndOfTourDate.After(before) {
			continue
		}
		out = append(out, s.withPosition(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndOfTourDate.Equal(*out[j].EndOfTourDate) {
			return out[i].EndOfTourDate.Before(*out[j].EndOfTourDate)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

func (s *state) UpdatePersonStatus(_ context.Context, uuid string, status models.PersonStatus) error {
	p, ok := s.people[uuid]
	if !ok {
		return fmt.Errorf("update person %s: %w", uuid, store.ErrNotFound)
	}
	p.Status = status
	s.people[uuid] = p
	return nil
}

func (s *state) GetPosition(_ context.Context, uuid string) (models.Position, error) {
	pos, ok := s.positions[uuid]
	if !ok {
		return models.Position{}, fmt.Errorf("get position %s: %w", uuid, store.ErrNotFound)
	}
	return pos, nil
}

func (s *state) SetPersonInPosition(ctx context.Context, personUUID, positionUUID string, at time.Time) error {
	pos, ok := s.positions[positionUUID]
	if !ok {
		return fmt.Errorf("get position %s: %w", positionUUID, store.ErrNotFound)
	}
	if _, ok := s.people[personUUID]; !ok {
		return fmt.Errorf("get person %s: %w", personUUID, store.ErrNotFound)
	}
	if pos.CurrentPersonUUID != nil {
		if *pos.CurrentPersonUUID == personUUID {
			return nil
		}
		if err := s.RemovePersonFromPosition(ctx, positionUUID, at); err != nil {
			return err
		}
	}
	if held := s.withPosition(s.people[personUUID]).PositionUUID; held != nil {
		if err := s.RemovePersonFromPosition(ctx, *held, at); err != nil {
			return err
		}
	}

	candidate := models.PersonPositionHistory{PersonUUID: personUUID, PositionUUID: positionUUID, StartTime: at}
	var related []models.PersonPositionHistory
	for _, h := range s.history {
		if h.PersonUUID == personUUID || h.PositionUUID == positionUUID {
			related = append(related, h)
		}
	}
	if err := models.CheckHistoryOverlap(related, candidate); err != nil {
		return err
	}
	s.history = append(s.history, candidate)
	pos = s.positions[positionUUID]
	pos.CurrentPersonUUID = &personUUID
	s.positions[positionUUID] = pos
	return nil
}

func (s *state) RemovePersonFromPosition(_ context.Context, positionUUID string, at time.Time) error {
	pos, ok := s.positions[positionUUID]
	if !ok {
		return fmt.Errorf("get position %s: %w", positionUUID, store.ErrNotFound)
	}
	for i, h := range s.history {
		if h.PositionUUID != positionUUID || h.EndTime != nil {
			continue
		}
		if at.Before(h.StartTime) {
			return models.ErrHistoryOverlap
		}
		end := at
		h.EndTime = &end
		s.history[i] = h
	}
	pos.CurrentPersonUUID = nil
	s.positions[positionUUID] = pos
	return nil
}

func (s *state) PositionHistory(_ context.Context, personUUID string) ([]models.PersonPositionHistory, error) {
	var out []models.PersonPositionHistory
	for _, h := range s.history {
		if h.PersonUUID == personUUID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *state) GetOrganization(_ context.Context, uuid string) (models.Organization, error) {
	org, ok := s.orgs[uuid]
	if !ok {
		return models.Organization{}, fmt.Errorf("get organization %s: %w", uuid, store.ErrNotFound)
	}
	return org, nil
}

func (s *state) GetLocation(_ context.Context, uuid string) (models.Location, error) {
	loc, ok := s.locations[uuid]
	if !ok {
		return models.Location{}, fmt.Errorf("get location %s: %w", uuid, store.ErrNotFound)
	}
	return loc, nil
}

func (s *state) GetTask(_ context.Context, uuid string) (models.Task, error) {
	task, ok := s.tasks[uuid]
	if !ok {
		return models.Task{}, fmt.Errorf("get task %s: %w", uuid, store.ErrNotFound)
	}
	return task, nil
}

func (s *state) InsertAttachment(_ context.Context, a models.Attachment) error {
	if _, ok := s.reports[a.RelatedReportUUID]; !ok {
		return fmt.Errorf("insert attachment: report %s: %w", a.RelatedReportUUID, store.ErrNotFound)
	}
	for _, existing := range s.attachments {
		if existing.UUID == a.UUID {
			return fmt.Errorf("insert attachment %s: %w", a.UUID, store.ErrAlreadyExists)
		}
	}
	s.attachments = append(s.attachments, a)
	return nil
}

func (s *state) ListAttachments(_ context.Context, reportUUID string) ([]models.Attachment, error) {
	var out []models.Attachment
	for _, a := range s.attachments {
		if a.RelatedReportUUID == reportUUID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *state) InsertMartImportedReport(_ context.Context, r models.MartImportedReport) error {
	for _, existing := range s.imports {
		if existing.ID == r.ID {
			return fmt.Errorf("insert mart imported report %s: %w", r.ID, store.ErrAlreadyExists)
		}
	}
	s.imports = append(s.imports, r)
	return nil
}

func (s *state) ListMartImportedReports(_ context.Context, limit int) ([]models.MartImportedReport, error) {
	out := slices.Clone(s.imports)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
