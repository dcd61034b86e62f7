// Package overlay holds the detection overlay shared between the face
// processor (the only writer) and the frame pipeline (reader).
package overlay

import (
	"sync/atomic"

	"github.com/m3-muru/facial-rpi/pkg/types"
)

// Overlay stores an immutable snapshot of detection records. Every write
// replaces the whole list; readers never see a partially updated list.
type Overlay struct {
	records atomic.Pointer[[]types.DetectionRecord]
	version atomic.Uint64
}

// New returns an empty overlay.
func New() *Overlay {
	o := &Overlay{}
	empty := []types.DetectionRecord{}
	o.records.Store(&empty)
	return o
}

// Set replaces the overlay with a copy of records.
func (o *Overlay) Set(records []types.DetectionRecord) {
	snapshot := make([]types.DetectionRecord, len(records))
	copy(snapshot, records)
	o.records.Store(&snapshot)
	o.version.Add(1)
}

// SetPending replaces the overlay with one Pending record per face.
func (o *Overlay) SetPending(faces []types.Rect) {
	records := make([]types.DetectionRecord, len(faces))
	for i, f := range faces {
		records[i] = types.DetectionRecord{Face: f, Status: types.StatusPending}
	}
	o.Set(records)
}

// Resolve marks the first Pending record with status and publishes the result
// as a new snapshot. It reports whether a Pending record was found.
func (o *Overlay) Resolve(status types.Status) bool {
	current := o.Snapshot()
	for i := range current {
		if current[i].Status == types.StatusPending {
			current[i].Status = status
			o.Set(current)
			return true
		}
	}
	return false
}

// Restatus changes every record with status from to status to. It reports
// whether any record changed.
func (o *Overlay) Restatus(from, to types.Status) bool {
	current := o.Snapshot()
	changed := false
	for i := range current {
		if current[i].Status == from {
			current[i].Status = to
			changed = true
		}
	}
	if changed {
		o.Set(current)
	}
	return changed
}

// Clear empties the overlay.
func (o *Overlay) Clear() {
	o.Set(nil)
}

// Snapshot returns a private copy of the current records.
func (o *Overlay) Snapshot() []types.DetectionRecord {
	current := *o.records.Load()
	out := make([]types.DetectionRecord, len(current))
	copy(out, current)
	return out
}

// View returns the current snapshot without copying. Callers must not modify it.
func (o *Overlay) View() []types.DetectionRecord {
	return *o.records.Load()
}

// Version increments on every write.
func (o *Overlay) Version() uint64 {
	return o.version.Load()
}
