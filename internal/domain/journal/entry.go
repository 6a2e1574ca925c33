// Package journal defines the append-only session log. Every registry update,
// assignment transition, and attendance transition is recorded as an entry;
// replaying the entries from an empty state reproduces the exact registry and
// attendance the live engine held.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Entry is one immutable log record. Seq is assigned by the journal on
// append and is strictly increasing.
type Entry struct {
	Seq     uint64           `json:"seq"`
	At      time.Time        `json:"at"`
	Kind    shared.EventType `json:"kind"`
	Session shared.SessionID `json:"session"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// ObservationPayload is the payload for observation entries.
type ObservationPayload struct {
	Identifier shared.DeviceID `json:"identifier"`
	RSSI       shared.Signal   `json:"rssi"`
	FirstSeen  bool            `json:"first_seen"`
}

// AssignmentPayload is the payload for assignment transition entries.
type AssignmentPayload struct {
	Identifier shared.DeviceID   `json:"identifier"`
	StudentID  shared.StudentID  `json:"student_id,omitempty"`
	Score      shared.Confidence `json:"score"`
	Manual     bool              `json:"manual"`
}

// AttendancePayload is the payload for attendance transition entries.
type AttendancePayload struct {
	StudentID shared.StudentID `json:"student_id"`
	Manual    bool             `json:"manual"`
}

// RosterPayload is the payload for roster entries.
type RosterPayload struct {
	StudentID  shared.StudentID `json:"student_id"`
	Name       string           `json:"name,omitempty"`
	Identifier shared.DeviceID  `json:"identifier,omitempty"`
}

// RetrainPayload is the payload for classifier retrain entries.
type RetrainPayload struct {
	Examples int `json:"examples"`
}

// NewEntry builds an unsequenced entry. The journal assigns Seq on append.
func NewEntry(kind shared.EventType, session shared.SessionID, at time.Time, payload interface{}) (Entry, error) {
	e := Entry{At: at, Kind: kind, Session: session}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Entry{}, shared.WrapError("journal", "NewEntry", shared.ErrInvalidFormat, "cannot encode payload", err)
		}
		e.Payload = raw
	}
	return e, nil
}

// Decode unmarshals the entry payload into v.
func (e Entry) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return shared.ErrBadEntryPayload
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return shared.WrapError("journal", "Decode", shared.ErrInvalidFormat, "cannot decode entry payload", err)
	}
	return nil
}

// Journal is the live append-only log.
type Journal interface {
	// Append stamps the entry with the next sequence number and stores it.
	Append(ctx context.Context, entry Entry) (Entry, error)

	// List returns up to limit entries with Seq greater than afterSeq, in
	// sequence order. An empty result means the caller has caught up.
	List(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error)

	// LastSeq returns the highest assigned sequence number, zero when empty.
	LastSeq(ctx context.Context) (uint64, error)
}

// Archive is the durable copy of the journal kept by the persistence
// collaborator. The archive job pushes new entries periodically; startup
// replay reads them back.
type Archive interface {
	// Store persists entries. Re-storing an already archived sequence number
	// must be a no-op so the archive job can safely retry.
	Store(ctx context.Context, entries []Entry) error

	// List returns up to limit archived entries with Seq greater than
	// afterSeq, in sequence order.
	List(ctx context.Context, afterSeq uint64, limit int) ([]Entry, error)

	// LastSeq returns the highest archived sequence number, zero when empty.
	LastSeq(ctx context.Context) (uint64, error)
}
