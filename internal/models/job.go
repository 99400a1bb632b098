package models

import (
	"time"
)

// JobHistory is the persisted last-run marker for a scheduled job.
type JobHistory struct {
	JobName   string    `json:"job_name"`
	LastRunAt time.Time `json:"last_run_at"`
}

// MartImportedReport is the audit row written for every processed MART message.
type MartImportedReport struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	PersonUUID *string   `json:"person_uuid,omitempty"`
	ReportUUID *string   `json:"report_uuid,omitempty"`
	Success    bool      `json:"success"`
	Errors     string    `json:"errors,omitempty"`
}

// OutboxEmail is a pending notification email. Action holds the encoded
// notification envelope; the notify package owns its format.
type OutboxEmail struct {
	ID          string    `json:"id"`
	ToAddresses []string  `json:"to_addresses"`
	Action      []byte    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}
