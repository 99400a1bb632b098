package memstore

import (
	"slices"

	"report-scheduler/internal/models"
)

// PutPerson inserts or replaces a person. PositionUUID is ignored; use SetPersonInPosition.
func (s *Store) PutPerson(p models.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.PositionUUID = nil
	s.st.people[p.UUID] = p
}

func (s *Store) PutPosition(pos models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.positions[pos.UUID] = pos
}

func (s *Store) PutOrganization(org models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.orgs[org.UUID] = org
}

func (s *Store) PutLocation(loc models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.locations[loc.UUID] = loc
}

func (s *Store) PutTask(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.tasks[task.UUID] = task
}

func (s *Store) PutApprovalStep(step models.ApprovalStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step.ApproverUUIDs = slices.Clone(step.ApproverUUIDs)
	s.st.steps[step.UUID] = step
}

// PutReport inserts or replaces a report.
func (s *Store) PutReport(r models.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.reports[r.UUID] = r
}

// Actions returns a copy of every recorded report action.
func (s *Store) Actions() []models.ReportAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.actions)
}
