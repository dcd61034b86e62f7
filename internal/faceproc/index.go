package faceproc

import (
	"github.com/m3-muru/facial-rpi/internal/biometric"
	"github.com/m3-muru/facial-rpi/internal/datastore"
	"github.com/m3-muru/facial-rpi/internal/logger"
)

// Entry is one employee and every template stored for them
type Entry struct {
	EmployeeID string
	Templates  []biometric.Faceprint
}

// FaceprintIndex is an ordered, immutable employee -> templates map. Order is
// the first appearance of each employee in the datastore listing.
type FaceprintIndex struct {
	entries   []Entry
	templates int
}

// BuildIndex groups datastore records by employee id
func BuildIndex(records []datastore.FaceprintRecord) *FaceprintIndex {
	idx := &FaceprintIndex{}
	pos := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.EmployeeID == "" {
			logger.Warn("FaceSM", "Skipping faceprint record without employee id")
			continue
		}
		i, ok := pos[rec.EmployeeID]
		if !ok {
			i = len(idx.entries)
			pos[rec.EmployeeID] = i
			idx.entries = append(idx.entries, Entry{EmployeeID: rec.EmployeeID})
		}
		idx.entries[i].Templates = append(idx.entries[i].Templates, rec.Faceprint)
		idx.templates++
	}
	return idx
}

// Len returns the number of employees
func (x *FaceprintIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// Templates returns the total number of stored templates
func (x *FaceprintIndex) Templates() int {
	if x == nil {
		return 0
	}
	return x.templates
}

// Entries returns the employees in index order. Callers must not modify it.
func (x *FaceprintIndex) Entries() []Entry {
	if x == nil {
		return nil
	}
	return x.entries
}
