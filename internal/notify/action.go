// Package notify defines the notifications the background jobs send and renders
// them to e-mail.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the variant of an Action.
type Kind string

const (
	KindFutureEngagementWarning    Kind = "future_engagement_warning"
	KindAccountDeactivationWarning Kind = "account_deactivation_warning"
	KindAccountDeactivation        Kind = "account_deactivation"
)

var ErrUnknownKind = errors.New("unknown notification kind")

// Action is a notification payload. The set of implementations is closed.
type Action interface {
	Kind() Kind
	action()
}

// FutureEngagementWarning asks the approvers of a planned engagement whose date has
// come to approve or update it.
type FutureEngagementWarning struct {
	ReportUUID     string    `json:"report_uuid"`
	Intent         string    `json:"intent"`
	EngagementDate time.Time `json:"engagement_date"`
}

// AccountDeactivationWarning tells a person that their account closes at end of tour.
type AccountDeactivationWarning struct {
	PersonUUID    string    `json:"person_uuid"`
	PersonName    string    `json:"person_name"`
	EndOfTourDate time.Time `json:"end_of_tour_date"`
	// NextReminder is nil when this is the last warning.
	NextReminder *time.Time `json:"next_reminder,omitempty"`
}

// AccountDeactivation tells a person that their account has been closed.
type AccountDeactivation struct {
	PersonUUID    string    `json:"person_uuid"`
	PersonName    string    `json:"person_name"`
	EndOfTourDate time.Time `json:"end_of_tour_date"`
}

func (FutureEngagementWarning) Kind() Kind    { return KindFutureEngagementWarning }
func (AccountDeactivationWarning) Kind() Kind { return KindAccountDeactivationWarning }
func (AccountDeactivation) Kind() Kind        { return KindAccountDeactivation }

func (FutureEngagementWarning) action()    {}
func (AccountDeactivationWarning) action() {}
func (AccountDeactivation) action()        {}

type envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Marshal encodes an action as {"type": kind, "data": payload}.
func Marshal(a Action) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", a.Kind(), err)
	}
	return json.Marshal(envelope{Type: a.Kind(), Data: data})
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(raw []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode notification envelope: %w", err)
	}
	var (
		a   Action
		err error
	)
	switch env.Type {
	case KindFutureEngagementWarning:
		var v FutureEngagementWarning
		err = json.Unmarshal(env.Data, &v)
		a = v
	case KindAccountDeactivationWarning:
		var v AccountDeactivationWarning
		err = json.Unmarshal(env.Data, &v)
		a = v
	case KindAccountDeactivation:
		var v AccountDeactivation
		err = json.Unmarshal(env.Data, &v)
		a = v
	default:
		return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownKind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return a, nil
}
