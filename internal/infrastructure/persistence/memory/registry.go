// Package memory holds the in-memory repositories behind the live engine.
// They are the system of record during a session; the Postgres archive only
// mirrors the journal for durability.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rollcall-hub/rollcall/internal/domain/device"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// Registry is the in-memory device registry. A single mutex serializes all
// mutation, which also orders manual overrides against automatic resolution
// of the same identifier. Reads hand out clones.
type Registry struct {
	mu          sync.RWMutex
	records     map[shared.DeviceID]*device.Record
	historySize int
}

// NewRegistry creates an empty registry with the given signal history bound.
func NewRegistry(historySize int) *Registry {
	if historySize <= 0 {
		historySize = device.DefaultHistorySize
	}
	return &Registry{
		records:     make(map[shared.DeviceID]*device.Record),
		historySize: historySize,
	}
}

// Record implements device.Registry.
func (r *Registry) Record(_ context.Context, obs device.Observation) (*device.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[obs.ID]
	if !ok {
		rec = device.NewRecord(obs, r.historySize)
		r.records[obs.ID] = rec
		return rec.Clone(), true, nil
	}
	rec.Observe(obs)
	return rec.Clone(), false, nil
}

// Get implements device.Registry.
func (r *Registry) Get(_ context.Context, id shared.DeviceID) (*device.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, shared.ErrDeviceNotFound
	}
	return rec.Clone(), nil
}

// Unassigned implements device.Registry.
func (r *Registry) Unassigned(ctx context.Context) ([]*device.Record, error) {
	return r.byStatus(ctx, device.StatusUnassigned)
}

// PendingReview implements device.Registry.
func (r *Registry) PendingReview(ctx context.Context) ([]*device.Record, error) {
	return r.byStatus(ctx, device.StatusPendingReview)
}

func (r *Registry) byStatus(_ context.Context, status device.Status) ([]*device.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*device.Record
	for _, rec := range r.records {
		if rec.Status == status {
			out = append(out, rec.Clone())
		}
	}
	sortByFirstSeen(out)
	return out, nil
}

// ByStudent implements device.Registry.
func (r *Registry) ByStudent(_ context.Context, student shared.StudentID) ([]*device.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*device.Record
	for _, rec := range r.records {
		if matchesStudent(rec, student) {
			out = append(out, rec.Clone())
		}
	}
	sortByFirstSeen(out)
	return out, nil
}

// All implements device.Registry.
func (r *Registry) All(_ context.Context) ([]*device.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*device.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	sortByFirstSeen(out)
	return out, nil
}

// Count implements device.Registry.
func (r *Registry) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

// Mutate implements device.Registry. The callback works on staged clones;
// they replace the committed records only when fn returns nil, so an aborted
// resolution leaves no partial update behind.
func (r *Registry) Mutate(_ context.Context, fn func(tx device.Txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &registryTxn{registry: r, staged: make(map[shared.DeviceID]*device.Record)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, rec := range tx.staged {
		r.records[id] = rec
	}
	return nil
}

type registryTxn struct {
	registry *Registry
	staged   map[shared.DeviceID]*device.Record
}

func (tx *registryTxn) Get(id shared.DeviceID) (*device.Record, error) {
	if rec, ok := tx.staged[id]; ok {
		return rec, nil
	}
	rec, ok := tx.registry.records[id]
	if !ok {
		return nil, shared.ErrDeviceNotFound
	}
	staged := rec.Clone()
	tx.staged[id] = staged
	return staged, nil
}

func (tx *registryTxn) ConfirmedFor(student shared.StudentID, session shared.SessionID) (*device.Record, bool) {
	for id := range tx.registry.records {
		rec := tx.view(id)
		if rec.IsConfirmedFor(student, session) {
			staged, _ := tx.Get(id)
			return staged, true
		}
	}
	for id, rec := range tx.staged {
		if _, committed := tx.registry.records[id]; !committed && rec.IsConfirmedFor(student, session) {
			return rec, true
		}
	}
	return nil, false
}

func (tx *registryTxn) ByStudent(student shared.StudentID) []*device.Record {
	var out []*device.Record
	for id := range tx.registry.records {
		if matchesStudent(tx.view(id), student) {
			staged, _ := tx.Get(id)
			out = append(out, staged)
		}
	}
	sortByFirstSeen(out)
	return out
}

// view returns the staged version when present, otherwise the committed one,
// without staging anything.
func (tx *registryTxn) view(id shared.DeviceID) *device.Record {
	if rec, ok := tx.staged[id]; ok {
		return rec
	}
	return tx.registry.records[id]
}

func matchesStudent(rec *device.Record, student shared.StudentID) bool {
	switch rec.Status {
	case device.StatusConfirmed:
		return rec.AssignedStudent == student
	case device.StatusPendingReview:
		return rec.Candidate == student
	}
	return false
}

func sortByFirstSeen(recs []*device.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].FirstSeen.Equal(recs[j].FirstSeen) {
			return recs[i].FirstSeen.Before(recs[j].FirstSeen)
		}
		return recs[i].ID < recs[j].ID
	})
}
