// Package ingest adapts raw scanner output into validated domain
// observations. The scanning collaborator is any process that emits NDJSON
// events; this package owns validation, normalization, and the signal
// threshold filter.
package ingest

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// RawEvent is one sighting as reported by the scanning collaborator.
type RawEvent struct {
	Identifier string    `json:"identifier"`
	Name       string    `json:"name,omitempty"`
	RSSI       int       `json:"rssi"`
	Timestamp  time.Time `json:"timestamp"`
}

// Adapter normalizes raw events. Malformed events are dropped and counted,
// never fatal; advertisements below the signal threshold are filtered and
// counted separately.
type Adapter struct {
	minSignal shared.Signal
	logger    *slog.Logger

	dropped  atomic.Uint64
	filtered atomic.Uint64
}

// NewAdapter creates an adapter with the given signal threshold in dBm.
func NewAdapter(minSignal shared.Signal, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{minSignal: minSignal, logger: logger}
}

// Normalize validates a raw event into an observation for the session.
func (a *Adapter) Normalize(raw RawEvent, session shared.SessionID) (device.Observation, error) {
	id, err := shared.NewDeviceID(raw.Identifier)
	if err != nil {
		a.drop(raw, "missing or invalid identifier")
		return device.Observation{}, shared.ErrMalformedObservation
	}
	if raw.Timestamp.IsZero() {
		a.drop(raw, "missing timestamp")
		return device.Observation{}, shared.ErrMalformedObservation
	}
	sig := shared.Signal(raw.RSSI)
	if !sig.IsValid() {
		a.drop(raw, "signal out of range")
		return device.Observation{}, shared.ErrMalformedObservation
	}
	if sig < a.minSignal {
		a.filtered.Add(1)
		return device.Observation{}, shared.ErrSignalBelowThreshold
	}

	obs, err := device.NewObservation(id, sig, raw.Timestamp, session)
	if err != nil {
		a.drop(raw, "observation rejected")
		return device.Observation{}, shared.ErrMalformedObservation
	}
	return obs, nil
}

func (a *Adapter) drop(raw RawEvent, reason string) {
	a.dropped.Add(1)
	a.logger.Debug("observation dropped", "reason", reason, "identifier", raw.Identifier)
}

// Dropped returns the number of malformed events discarded so far.
func (a *Adapter) Dropped() uint64 {
	return a.dropped.Load()
}

// Filtered returns the number of below-threshold events discarded so far.
func (a *Adapter) Filtered() uint64 {
	return a.filtered.Load()
}
