// Package audit houses concrete implementations of the core.AuditRecorder
// contract. Durable backends (Postgres, object storage, ...) belong to the
// host service; the in-memory recorder here serves tests and local runs.
package audit

import (
	"sync"

	"github.com/hupe1980/agentcore/core"
)

// InMemory is a volatile AuditRecorder appending records to a process-local
// slice. Safe for concurrent access; returned slices are copies.
type InMemory struct {
	mu      sync.RWMutex
	records []core.AuditRecord
}

// NewInMemory constructs an empty in-memory audit recorder.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Record appends an audit record.
func (a *InMemory) Record(rec core.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

// Records returns a copy of all recorded entries, in order.
func (a *InMemory) Records() []core.AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]core.AuditRecord(nil), a.records...)
}

// ByUser returns the records for one user, in order.
func (a *InMemory) ByUser(userID string) []core.AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []core.AuditRecord
	for _, rec := range a.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}
