// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEVICE REVIEW QUERIES
// What the professor sees when deciding who is who: devices nobody claimed
// yet and devices waiting on a decision, oldest first.
// ══════════════════════════════════════════════════════════════════════════════

// DeviceView is one registry record shaped for display.
type DeviceView struct {
	Identifier shared.DeviceID   `json:"identifier"`
	Status     device.Status     `json:"status"`
	FirstSeen  time.Time         `json:"first_seen"`
	LastSeen   time.Time         `json:"last_seen"`
	MeanSignal float64           `json:"mean_signal"`
	Sightings  int               `json:"sightings"`
	Candidate  shared.StudentID  `json:"candidate,omitempty"`
	Confidence shared.Confidence `json:"confidence,omitempty"`
}

func toDeviceView(rec *device.Record) DeviceView {
	return DeviceView{
		Identifier: rec.ID,
		Status:     rec.Status,
		FirstSeen:  rec.FirstSeen,
		LastSeen:   rec.LastSeen,
		MeanSignal: rec.MeanSignal(),
		Sightings:  len(rec.History),
		Candidate:  rec.Candidate,
		Confidence: rec.Confidence,
	}
}

// DeviceReviewHandler serves the registry review queries.
type DeviceReviewHandler struct {
	registry device.Registry
}

// NewDeviceReviewHandler creates a new DeviceReviewHandler.
func NewDeviceReviewHandler(registry device.Registry) *DeviceReviewHandler {
	return &DeviceReviewHandler{registry: registry}
}

// Unassigned lists devices nobody has claimed, ordered by first appearance.
func (h *DeviceReviewHandler) Unassigned(ctx context.Context) ([]DeviceView, error) {
	records, err := h.registry.Unassigned(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]DeviceView, 0, len(records))
	for _, rec := range records {
		views = append(views, toDeviceView(rec))
	}
	return views, nil
}

// PendingReview lists devices waiting on a professor decision.
func (h *DeviceReviewHandler) PendingReview(ctx context.Context) ([]DeviceView, error) {
	records, err := h.registry.PendingReview(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]DeviceView, 0, len(records))
	for _, rec := range records {
		views = append(views, toDeviceView(rec))
	}
	return views, nil
}

// Device returns one registry record.
func (h *DeviceReviewHandler) Device(ctx context.Context, id shared.DeviceID) (DeviceView, error) {
	rec, err := h.registry.Get(ctx, id)
	if err != nil {
		return DeviceView{}, err
	}
	return toDeviceView(rec), nil
}
