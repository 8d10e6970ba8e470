package model

import "time"

// Audit operations. Every accepted memory write and every accepted
// world-state transition produces exactly one entry; denied canonical
// write attempts are recorded as OpMemoryDenied.
const (
	OpMemoryPut       = "memory.put"
	OpMemoryDenied    = "memory.denied"
	OpWorldTransition = "world.transition"
)

// AuditEntry mirrors a memory write or a world-state transition. The audit
// log is append-only; entries are never updated or deleted by the core.
type AuditEntry struct {
	Seq       int64     `json:"seq"`
	Op        string    `json:"op"`
	ItemID    string    `json:"item_id,omitempty"`
	Scope     Scope     `json:"scope,omitempty"`
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	TraceID   string    `json:"trace_id"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
