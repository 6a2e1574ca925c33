// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DeviceID is the normalized identifier a device advertises (MAC-like, opaque).
// Identifiers are case-insensitive on the wire; they are stored uppercase so the
// same physical device always maps to the same record.
type DeviceID string

// NewDeviceID normalizes and validates a raw identifier.
func NewDeviceID(raw string) (DeviceID, error) {
	id := DeviceID(strings.ToUpper(strings.TrimSpace(raw)))
	if !id.IsValid() {
		return "", ErrInvalidIdentifier
	}
	return id, nil
}

// IsValid reports whether the identifier is usable as a registry key.
func (id DeviceID) IsValid() bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (id DeviceID) String() string {
	return string(id)
}

// StudentID uniquely identifies a student in the roster.
type StudentID string

// NewStudentID generates a new random student ID.
func NewStudentID() StudentID {
	return StudentID(uuid.New().String())
}

// ParseStudentID validates a student ID string.
func ParseStudentID(s string) (StudentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", WrapError("roster", "ParseStudentID", ErrInvalidID, "student ID must be a UUID", err)
	}
	return StudentID(s), nil
}

// IsValid checks if the student ID is well-formed.
func (id StudentID) IsValid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

// IsZero reports whether the ID is unset.
func (id StudentID) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer.
func (id StudentID) String() string {
	return string(id)
}

// SessionID identifies one class meeting. All attendance state is scoped to it.
type SessionID string

// NewSessionID generates a new random session ID.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// IsValid checks if the session ID is non-empty.
func (id SessionID) IsValid() bool {
	return strings.TrimSpace(string(id)) != ""
}

// IsZero reports whether the ID is unset.
func (id SessionID) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer.
func (id SessionID) String() string {
	return string(id)
}

// Signal is a received signal strength in dBm. Real advertisements sit roughly
// between -100 (barely in range) and 0 (on top of the antenna).
type Signal int

// Signal bounds accepted from the scanning collaborator.
const (
	MinSignal Signal = -120
	MaxSignal Signal = 20
)

// IsValid checks the signal is within physical bounds.
func (s Signal) IsValid() bool {
	return s >= MinSignal && s <= MaxSignal
}

// Confidence is a classifier score in [0, 1].
type Confidence float64

// IsValid checks the confidence is within [0, 1].
func (c Confidence) IsValid() bool {
	return c >= 0 && c <= 1
}

// Clamp forces the confidence into [0, 1].
func (c Confidence) Clamp() Confidence {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// TimeRange represents a time interval with inclusive bounds.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange creates a validated time range.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if end.Before(start) {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "end before start")
	}
	return TimeRange{Start: start, End: end}, nil
}

// Contains checks if a time falls within the range.
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration returns the length of the range.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Pagination holds paging parameters for list queries.
type Pagination struct {
	Limit  int
	Offset int
}

// DefaultPagination returns sane defaults for list queries.
func DefaultPagination() Pagination {
	return Pagination{Limit: 50, Offset: 0}
}

// Normalize clamps pagination values to valid bounds.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
