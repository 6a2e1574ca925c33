// Package eventhandler contains event bus subscribers that maintain derived
// state off the hot path.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/rollcall-hub/rollcall/internal/application/query"
	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// SnapshotRefresher rebuilds the cached presence snapshot whenever a
// transition changes the picture. Running as a subscriber keeps cache writes
// off the observation hot path.
type SnapshotRefresher struct {
	builder *query.AttendanceSnapshotHandler
	cache   attendance.SnapshotCache
	logger  *slog.Logger
}

// NewSnapshotRefresher creates a new SnapshotRefresher.
func NewSnapshotRefresher(builder *query.AttendanceSnapshotHandler, cache attendance.SnapshotCache, logger *slog.Logger) *SnapshotRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotRefresher{builder: builder, cache: cache, logger: logger}
}

// Register subscribes the refresher to every event that moves presence state.
func (h *SnapshotRefresher) Register(bus shared.EventBus) error {
	for _, t := range []shared.EventType{
		shared.EventStudentEntered,
		shared.EventStudentLeftEarly,
		shared.EventStudentPresentAtClose,
		shared.EventStudentMarkedAbsent,
		shared.EventStudentAdded,
		shared.EventStudentRemoved,
		shared.EventSessionClosed,
	} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *SnapshotRefresher) Handle(event shared.Event) error {
	type sessioned interface {
		SessionID() shared.SessionID
	}
	se, ok := event.(sessioned)
	if !ok || se.SessionID().IsZero() {
		return nil
	}
	session := se.SessionID()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot, err := h.builder.Build(ctx, session, time.Now().UTC())
	if err != nil {
		h.logger.Error("snapshot rebuild failed", "session", session, "error", err)
		return err
	}
	if err := h.cache.Publish(ctx, snapshot); err != nil {
		h.logger.Warn("snapshot publish failed", "session", session, "error", err)
		return err
	}
	return nil
}
