package mart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReportJSONAttachment is the attachment name MART uses for the report payload
// when it is not carried in the message body.
const ReportJSONAttachment = "mart_report.json"

// ReportDto is the wire form of a report authored in MART. Unknown fields are ignored.
type ReportDto struct {
	UUID             string            `json:"uuid"`
	Email            string            `json:"email"`
	FirstName        string            `json:"firstName"`
	LastName         string            `json:"lastName"`
	Rank             string            `json:"rank"`
	Country          string            `json:"country"`
	OrganizationUUID string            `json:"organizationUuid"`
	OrganizationName string            `json:"organizationName"`
	PositionName     string            `json:"positionName"`
	LocationUUID     string            `json:"locationUuid"`
	EngagementDate   *time.Time        `json:"engagementDate"`
	SubmittedAt      *time.Time        `json:"submittedAt"`
	Intent           string            `json:"intent"`
	ReportText       string            `json:"reportText"`
	Tasks            map[string]string `json:"tasks"`
	CustomFields     string            `json:"customFields"`
}

// Attachment is a file carried by a mailbox message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one downloaded mailbox item.
type Message struct {
	ID          string
	Body        []byte
	Attachments []Attachment
}

// payload returns the report JSON, preferring the dedicated attachment over the body.
func (m Message) payload() []byte {
	for _, a := range m.Attachments {
		if strings.EqualFold(a.Name, ReportJSONAttachment) {
			return a.Data
		}
	}
	return m.Body
}

// files returns the attachments that belong to the report.
func (m Message) files() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if !strings.EqualFold(a.Name, ReportJSONAttachment) {
			out = append(out, a)
		}
	}
	return out
}

func parseReport(m Message) (ReportDto, error) {
	raw := bytes.TrimSpace(m.payload())
	if len(raw) == 0 {
		return ReportDto{}, errors.New("empty message")
	}
	var dto ReportDto
	if err := json.Unmarshal(raw, &dto); err != nil {
		return ReportDto{}, err
	}
	if strings.TrimSpace(dto.UUID) == "" {
		return ReportDto{}, errors.New("missing report uuid")
	}
	if strings.TrimSpace(dto.Email) == "" {
		return ReportDto{}, errors.New("missing submitter email")
	}
	return dto, nil
}

func (d ReportDto) submitterName() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", d.FirstName, d.LastName))
}
