package idempotency

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It survives nothing and is
// meant for tests and the memory transport.
type MemoryStore struct {
	records sync.Map // transactionID -> Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, transactionID string) (*Record, error) {
	v, ok := m.records.Load(transactionID)
	if !ok {
		return nil, ErrRecordNotFound
	}
	rec := v.(Record)
	return &rec, nil
}

// PutIfAbsent implements Store.
func (m *MemoryStore) PutIfAbsent(_ context.Context, rec Record) (Record, bool, error) {
	v, loaded := m.records.LoadOrStore(rec.TransactionID, rec)
	return v.(Record), !loaded, nil
}

// Len returns the number of records.
func (m *MemoryStore) Len() int {
	n := 0
	m.records.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
