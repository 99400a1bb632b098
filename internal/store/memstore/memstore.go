// Package memstore is an in-memory store.Store used by tests and by the worker
// when no database is configured.
package memstore

import (
	"context"
	"sync"
	"time"

	"report-scheduler/internal/models"
	"report-scheduler/internal/store"
)

// Store guards a state with a single mutex. WithTx works on a copy and swaps it in
// on success, so a failed transaction leaves no trace.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(_ context.Context, fn func(q store.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ClaimJob(ctx context.Context, jobName string, now time.Time, window time.Duration) (*time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ClaimJob(ctx, jobName, now, window)
}

func (s *Store) ForceClaimJob(ctx context.Context, jobName string, now time.Time) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ForceClaimJob(ctx, jobName, now)
}

func (s *Store) ListJobHistory(ctx context.Context) ([]models.JobHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListJobHistory(ctx)
}

func (s *Store) InsertOutboxEmail(ctx context.Context, email models.OutboxEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertOutboxEmail(ctx, email)
}

func (s *Store) PendingOutboxEmails(ctx context.Context, limit int) ([]models.OutboxEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.PendingOutboxEmails(ctx, limit)
}

func (s *Store) DeleteOutboxEmail(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteOutboxEmail(ctx, id)
}

func (s *Store) CountOutboxEmails(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CountOutboxEmails(ctx)
}

func (s *Store) GetReport(ctx context.Context, uuid string) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetReport(ctx, uuid)
}

func (s *Store) ReportsWithEngagementBetween(ctx context.Context, after *time.Time, before time.Time) ([]models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ReportsWithEngagementBetween(ctx, after, before)
}

func (s *Store) InsertReport(ctx context.Context, report models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertReport(ctx, report)
}

func (s *Store) GetApprovalStep(ctx context.Context, uuid string) (models.ApprovalStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetApprovalStep(ctx, uuid)
}

func (s *Store) InsertReportAction(ctx context.Context, action models.ReportAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertReportAction(ctx, action)
}

func (s *Store) HasReportAction(ctx context.Context, reportUUID, stepUUID string, actionType models.ReportActionType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.HasReportAction(ctx, reportUUID, stepUUID, actionType)
}

func (s *Store) MarkEngagementWarned(ctx context.Context, reportUUID, stepUUID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.MarkEngagementWarned(ctx, reportUUID, stepUUID, at)
}

func (s *Store) GetPerson(ctx context.Context, uuid string) (models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetPerson(ctx, uuid)
}

func (s *Store) FindPeopleByEmail(ctx context.Context, email string) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindPeopleByEmail(ctx, email)
}

func (s *Store) PeopleWithEndOfTourBefore(ctx context.Context, status models.PersonStatus, before time.Time) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.PeopleWithEndOfTourBefore(ctx, status, before)
}

func (s *Store) UpdatePersonStatus(ctx context.Context, uuid string, status models.PersonStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdatePersonStatus(ctx, uuid, status)
}

func (s *Store) GetPosition(ctx context.Context, uuid string) (models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetPosition(ctx, uuid)
}

func (s *Store) SetPersonInPosition(ctx context.Context, personUUID, positionUUID string, at time.Time) error {
	return s.WithTx(ctx, func(q store.Queries) error {
		return q.SetPersonInPosition(ctx, personUUID, positionUUID, at)
	})
}

func (s *Store) RemovePersonFromPosition(ctx context.Context, positionUUID string, at time.Time) error {
	return s.WithTx(ctx, func(q store.Queries) error {
		return q.RemovePersonFromPosition(ctx, positionUUID, at)
	})
}

func (s *Store) PositionHistory(ctx context.Context, personUUID string) ([]models.PersonPositionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.PositionHistory(ctx, personUUID)
}

func (s *Store) GetOrganization(ctx context.Context, uuid string) (models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetOrganization(ctx, uuid)
}

func (s *Store) GetLocation(ctx context.Context, uuid string) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetLocation(ctx, uuid)
}

func (s *Store) GetTask(ctx context.Context, uuid string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetTask(ctx, uuid)
}

func (s *Store) InsertAttachment(ctx context.Context, attachment models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertAttachment(ctx, attachment)
}

func (s *Store) ListAttachments(ctx context.Context, reportUUID string) ([]models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListAttachments(ctx, reportUUID)
}

func (s *Store) InsertMartImportedReport(ctx context.Context, record models.MartImportedReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.InsertMartImportedReport(ctx, record)
}

func (s *Store) ListMartImportedReports(ctx context.Context, limit int) ([]models.MartImportedReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListMartImportedReports(ctx, limit)
}
