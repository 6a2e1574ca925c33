// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every transition the engine makes is announced on the
// event bus and recorded in the session journal under one of these kinds.
const (
	// Observation events
	EventObservationRecorded EventType = "observation.recorded"
	EventDeviceFirstSeen     EventType = "observation.device_first_seen"

	// Assignment events
	EventAssignmentPending   EventType = "assignment.pending_review"
	EventAssignmentConfirmed EventType = "assignment.confirmed"
	EventAssignmentRejected  EventType = "assignment.rejected"
	EventAssignmentRevoked   EventType = "assignment.revoked"

	// Attendance events
	EventStudentEntered        EventType = "attendance.entered"
	EventStudentLeftEarly      EventType = "attendance.left_early"
	EventStudentPresentAtClose EventType = "attendance.present_at_close"
	EventStudentMarkedAbsent   EventType = "attendance.marked_absent"

	// Roster events
	EventStudentAdded   EventType = "roster.student_added"
	EventStudentRemoved EventType = "roster.student_removed"
	EventDeviceBound    EventType = "roster.device_bound"
	EventDeviceUnbound  EventType = "roster.device_unbound"

	// Session events
	EventSessionOpened EventType = "session.opened"
	EventSessionClosed EventType = "session.closed"

	// Classifier events
	EventClassifierRetrained EventType = "classifier.retrained"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Session     SessionID `json:"session_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// SessionID returns the session the event belongs to.
func (e BaseEvent) SessionID() SessionID {
	return e.Session
}

// NewBaseEvent creates a new base event. The timestamp is the domain time of
// the transition, not wall-clock publish time, so replayed events carry the
// same instant they carried live.
func NewBaseEvent(eventType EventType, aggregateID string, session SessionID, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Session:     session,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Observation Events
// ═══════════════════════════════════════════════════════════════════════════

// ObservationRecordedEvent is emitted for every accepted observation.
type ObservationRecordedEvent struct {
	BaseEvent
	Identifier DeviceID `json:"identifier"`
	RSSI       Signal   `json:"rssi"`
	FirstSeen  bool     `json:"first_seen"`
}

// Payload implements Event interface.
func (e ObservationRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"identifier": e.Identifier.String(),
		"rssi":       int(e.RSSI),
		"first_seen": e.FirstSeen,
	}
}

// NewObservationRecordedEvent creates a new ObservationRecordedEvent.
func NewObservationRecordedEvent(id DeviceID, session SessionID, rssi Signal, at time.Time, firstSeen bool) ObservationRecordedEvent {
	return ObservationRecordedEvent{
		BaseEvent:  NewBaseEvent(EventObservationRecorded, id.String(), session, at),
		Identifier: id,
		RSSI:       rssi,
		FirstSeen:  firstSeen,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Assignment Events
// ═══════════════════════════════════════════════════════════════════════════

// AssignmentChangedEvent is emitted when a device's assignment status moves.
// One event struct covers pending, confirmed, rejected and revoked; the Type
// field tells them apart.
type AssignmentChangedEvent struct {
	BaseEvent
	Identifier DeviceID   `json:"identifier"`
	StudentID  StudentID  `json:"student_id,omitempty"`
	Score      Confidence `json:"score"`
	Manual     bool       `json:"manual"`
}

// Payload implements Event interface.
func (e AssignmentChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"identifier": e.Identifier.String(),
		"student_id": e.StudentID.String(),
		"score":      float64(e.Score),
		"manual":     e.Manual,
	}
}

// NewAssignmentChangedEvent creates a new AssignmentChangedEvent.
func NewAssignmentChangedEvent(t EventType, id DeviceID, student StudentID, session SessionID, score Confidence, manual bool, at time.Time) AssignmentChangedEvent {
	return AssignmentChangedEvent{
		BaseEvent:  NewBaseEvent(t, id.String(), session, at),
		Identifier: id,
		StudentID:  student,
		Score:      score,
		Manual:     manual,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// AttendanceChangedEvent is emitted when a student's presence state moves.
type AttendanceChangedEvent struct {
	BaseEvent
	StudentID StudentID `json:"student_id"`
	Manual    bool      `json:"manual"`
}

// Payload implements Event interface.
func (e AttendanceChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID.String(),
		"manual":     e.Manual,
	}
}

// NewAttendanceChangedEvent creates a new AttendanceChangedEvent.
func NewAttendanceChangedEvent(t EventType, student StudentID, session SessionID, manual bool, at time.Time) AttendanceChangedEvent {
	return AttendanceChangedEvent{
		BaseEvent: NewBaseEvent(t, student.String(), session, at),
		StudentID: student,
		Manual:    manual,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionEvent is emitted when a session opens or closes.
type SessionEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e SessionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.Session.String(),
	}
}

// NewSessionEvent creates a new SessionEvent.
func NewSessionEvent(t EventType, session SessionID, at time.Time) SessionEvent {
	return SessionEvent{
		BaseEvent: NewBaseEvent(t, session.String(), session, at),
	}
}

// ClassifierRetrainedEvent is emitted when a background retrain completes.
type ClassifierRetrainedEvent struct {
	BaseEvent
	Examples int `json:"examples"`
}

// Payload implements Event interface.
func (e ClassifierRetrainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"examples": e.Examples,
	}
}

// NewClassifierRetrainedEvent creates a new ClassifierRetrainedEvent.
func NewClassifierRetrainedEvent(session SessionID, examples int, at time.Time) ClassifierRetrainedEvent {
	return ClassifierRetrainedEvent{
		BaseEvent: NewBaseEvent(EventClassifierRetrained, session.String(), session, at),
		Examples:  examples,
	}
}

// EventHandler processes a domain event.
type EventHandler func(event Event) error

// EventBus distributes domain events to subscribers.
type EventBus interface {
	// Publish sends an event to all subscribers of its type.
	Publish(event Event) error

	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for every event type.
	SubscribeAll(handler EventHandler) error

	// Close shuts down the bus and waits for in-flight deliveries.
	Close() error
}
