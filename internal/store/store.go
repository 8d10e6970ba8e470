// Package store provides the persistence layer: the scoped memory store,
// the append-only audit log and the world-state rows, all SQLite-backed.
package store

import (
	"context"
	"encoding/json"

	"github.com/redstack/redmem/internal/model"
)

// Draft holds the caller-supplied fields of a memory write. ID and
// CreatedAt are assigned at insertion when absent.
type Draft struct {
	ID          string          `json:"id,omitempty"`
	Scope       model.Scope     `json:"scope"`
	Kind        string          `json:"kind"`
	Key         string          `json:"key,omitempty"`
	Text        string          `json:"text"`
	Data        json.RawMessage `json:"data,omitempty"`
	Source      string          `json:"source"`
	Confidence  float64         `json:"confidence"`
	TTLSeconds  int             `json:"ttl_seconds,omitempty"`
	TraceID     string          `json:"trace_id"`
	ApprovalRef string          `json:"approval_ref,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Refs        []string        `json:"refs,omitempty"`
}

// QueryParams filters a memory query. Zero values mean "no filter".
type QueryParams struct {
	Scope          model.Scope `json:"scope,omitempty"`
	Kind           string      `json:"kind,omitempty"`
	Key            string      `json:"key,omitempty"`
	TraceID        string      `json:"trace_id,omitempty"`
	Tag            string      `json:"tag,omitempty"`
	TextContains   string      `json:"text_contains,omitempty"`
	IncludeExpired bool        `json:"include_expired,omitempty"`
	Limit          int         `json:"limit,omitempty"`
}

// ApprovalVerifier validates that a canonical write carries an authentic,
// unconsumed approval reference over the payload digest.
type ApprovalVerifier interface {
	Verify(ref, digest string) error
}

// Store is the memory persistence contract.
type Store interface {
	Put(ctx context.Context, d Draft) (*model.MemoryItem, error)
	Get(ctx context.Context, id string) (*model.MemoryItem, error)
	Query(ctx context.Context, p QueryParams) ([]model.MemoryItem, error)
	Stats(ctx context.Context) (*Stats, error)
	Tail(ctx context.Context, limit int) ([]model.AuditEntry, error)
	Close() error
}
