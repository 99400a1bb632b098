package models

import (
	"errors"
	"time"
)

// ErrHistoryOverlap is returned when a person/position interval would overlap an existing one.
var ErrHistoryOverlap = errors.New("position history intervals overlap")

// PersonPositionHistory records that a person held a position during [StartTime, EndTime).
// A nil EndTime means the assignment is still open.
type PersonPositionHistory struct {
	PersonUUID   string     `json:"person_uuid"`
	PositionUUID string     `json:"position_uuid"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// Overlaps reports whether two history intervals share any instant.
// An open-ended interval conflicts with every interval that starts after it.
func (h PersonPositionHistory) Overlaps(other PersonPositionHistory) bool {
	if h.EndTime != nil && !other.StartTime.Before(*h.EndTime) {
		return false
	}
	if other.EndTime != nil && !h.StartTime.Before(*other.EndTime) {
		return false
	}
	return true
}

// CheckHistoryOverlap validates that candidate does not overlap any entry of history.
// Entries equal to candidate (same person, position and start) are ignored so that
// closing an open interval can be validated against the rest of the history.
func CheckHistoryOverlap(history []PersonPositionHistory, candidate PersonPositionHistory) error {
	for _, h := range history {
		if h.PersonUUID == candidate.PersonUUID && h.PositionUUID == candidate.PositionUUID && h.StartTime.Equal(candidate.StartTime) {
			continue
		}
		if h.Overlaps(candidate) {
			return ErrHistoryOverlap
		}
	}
	return nil
}
