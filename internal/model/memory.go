// Package model defines the core memory and world-state data types.
package model

import (
	"encoding/json"
	"time"
)

// Scope classifies how authoritative a memory item is.
type Scope string

const (
	// ScopeCanonical is approved durable truth. Writes require a verified
	// approval reference.
	ScopeCanonical Scope = "canonical"
	// ScopeOperational holds events, receipts and world-state artifacts.
	ScopeOperational Scope = "operational"
	// ScopeSemantic holds non-authoritative recall material. It never
	// drives execution.
	ScopeSemantic Scope = "semantic"
)

// Valid reports whether s is one of the three known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeCanonical, ScopeOperational, ScopeSemantic:
		return true
	}
	return false
}

// MemoryItem is one remembered fact or event. Items are written once and
// never mutated in place; a correction is a new item referencing the old
// one via Refs.
type MemoryItem struct {
	ID          string          `json:"id"`
	Scope       Scope           `json:"scope"`
	Kind        string          `json:"kind"`
	Key         string          `json:"key,omitempty"`
	Text        string          `json:"text"`
	Data        json.RawMessage `json:"data,omitempty"`
	Source      string          `json:"source"`
	Confidence  float64         `json:"confidence"`
	CreatedAt   time.Time       `json:"created_at"`
	TTLSeconds  int             `json:"ttl_seconds,omitempty"`
	TraceID     string          `json:"trace_id"`
	ApprovalRef string          `json:"approval_ref,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Refs        []string        `json:"refs,omitempty"`
}

// ExpiresAt returns the expiry time and whether a TTL is set.
func (m *MemoryItem) ExpiresAt() (time.Time, bool) {
	if m.TTLSeconds <= 0 {
		return time.Time{}, false
	}
	return m.CreatedAt.Add(time.Duration(m.TTLSeconds) * time.Second), true
}

// Expired reports whether the item's TTL has elapsed at the given instant.
func (m *MemoryItem) Expired(now time.Time) bool {
	exp, ok := m.ExpiresAt()
	return ok && !now.Before(exp)
}
