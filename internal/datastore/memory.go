package datastore

import (
	"context"
	"sync"
)

// MemoryStore keeps faceprint records in process. It backs the simulated
// kiosk when no datastore URLs are configured.
type MemoryStore struct {
	mu      sync.Mutex
	records []FaceprintRecord
}

// NewMemoryStore returns a store holding a copy of records
func NewMemoryStore(records ...FaceprintRecord) *MemoryStore {
	return &MemoryStore{records: append([]FaceprintRecord(nil), records...)}
}

// Faceprints returns the records in insertion order
func (m *MemoryStore) Faceprints(ctx context.Context) ([]FaceprintRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FaceprintRecord(nil), m.records...), nil
}

// AddFaceprint appends rec
func (m *MemoryStore) AddFaceprint(ctx context.Context, rec FaceprintRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
