package models

import (
	"time"
)

// ReportState enumerates the workflow states of a report.
type ReportState string

const (
	ReportDraft           ReportState = "DRAFT"
	ReportPendingApproval ReportState = "PENDING_APPROVAL"
	ReportApproved        ReportState = "APPROVED"
	ReportPublished       ReportState = "PUBLISHED"
	ReportRejected        ReportState = "REJECTED"
	ReportCancelled       ReportState = "CANCELLED"
)

// ApprovalStepType distinguishes planning from report approval.
type ApprovalStepType string

const (
	PlanningApproval ApprovalStepType = "PLANNING_APPROVAL"
	ReportApproval   ApprovalStepType = "REPORT_APPROVAL"
)

// ReportActionType is the kind of workflow action recorded against a report.
type ReportActionType string

const (
	ActionApprove ReportActionType = "APPROVE"
	ActionReject  ReportActionType = "REJECT"
	ActionSubmit  ReportActionType = "SUBMIT"
	ActionPublish ReportActionType = "PUBLISH"
)

// PersonStatus is the account status of a person.
type PersonStatus string

const (
	PersonActive   PersonStatus = "ACTIVE"
	PersonInactive PersonStatus = "INACTIVE"
)

// Report is the subset of a report the background jobs read or create.
type Report struct {
	UUID             string      `json:"uuid"`
	State            ReportState `json:"state"`
	EngagementDate   *time.Time  `json:"engagement_date,omitempty"`
	ApprovalStepUUID *string     `json:"approval_step_uuid,omitempty"`
	AuthorUUID       *string     `json:"author_uuid,omitempty"`
	AdvisorOrgUUID   *string     `json:"advisor_org_uuid,omitempty"`
	LocationUUID     *string     `json:"location_uuid,omitempty"`
	Intent           string      `json:"intent"`
	ReportText       string      `json:"report_text,omitempty"`
	CustomFields     string      `json:"custom_fields,omitempty"`
	TaskUUIDs        []string    `json:"task_uuids,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// ApprovalStep is one stage of an organization's approval chain.
type ApprovalStep struct {
	UUID          string           `json:"uuid"`
	Name          string           `json:"name"`
	Type          ApprovalStepType `json:"type"`
	ApproverUUIDs []string         `json:"approver_uuids"` // positions, in order
	NextStepUUID  *string          `json:"next_step_uuid,omitempty"`
}

// ReportAction is an append-only record of workflow progress.
type ReportAction struct {
	ReportUUID string           `json:"report_uuid"`
	StepUUID   *string          `json:"step_uuid,omitempty"`
	PersonUUID *string          `json:"person_uuid,omitempty"`
	Type       ReportActionType `json:"type"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Person is a user of the system.
type Person struct {
	UUID           string       `json:"uuid"`
	Name           string       `json:"name"`
	Rank           string       `json:"rank,omitempty"`
	EmailAddress   string       `json:"email_address,omitempty"`
	DomainUsername string       `json:"domain_username,omitempty"`
	Status         PersonStatus `json:"status"`
	EndOfTourDate  *time.Time   `json:"end_of_tour_date,omitempty"`
	PositionUUID   *string      `json:"position_uuid,omitempty"`
}

// Position is a billet in an organization, optionally held by a person.
type Position struct {
	UUID              string  `json:"uuid"`
	Name              string  `json:"name"`
	OrganizationUUID  *string `json:"organization_uuid,omitempty"`
	CurrentPersonUUID *string `json:"current_person_uuid,omitempty"`
}

// Organization owns positions and approval chains.
type Organization struct {
	UUID      string `json:"uuid"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name,omitempty"`
}

// Location is a place where an engagement happens.
type Location struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Task is an objective a report can reference.
type Task struct {
	UUID      string `json:"uuid"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name,omitempty"`
}

// Attachment is a binary file linked to a report.
type Attachment struct {
	UUID              string    `json:"uuid"`
	RelatedReportUUID string    `json:"related_report_uuid"`
	AuthorUUID        *string   `json:"author_uuid,omitempty"`
	FileName          string    `json:"file_name"`
	MimeType          string    `json:"mime_type"`
	ContentLength     int64     `json:"content_length"`
	StorageKey        string    `json:"storage_key"`
	ThumbnailKey      *string   `json:"thumbnail_key,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
