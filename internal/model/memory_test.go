package model

import (
	"testing"
	"time"
)

func TestScopeValid(t *testing.T) {
	for _, s := range []Scope{ScopeCanonical, ScopeOperational, ScopeSemantic} {
		if !s.Valid() {
			t.Errorf("%q not valid", s)
		}
	}
	for _, s := range []Scope{"", "CANONICAL", "ops", "unknown"} {
		if s.Valid() {
			t.Errorf("%q accepted", s)
		}
	}
}

func TestMemoryItemExpiry(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	item := MemoryItem{CreatedAt: created}
	if _, ok := item.ExpiresAt(); ok {
		t.Error("item without TTL has an expiry")
	}
	if item.Expired(created.Add(time.Hour)) {
		t.Error("item without TTL expired")
	}

	item.TTLSeconds = 60
	exp, ok := item.ExpiresAt()
	if !ok || !exp.Equal(created.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, %v", exp, ok)
	}
	if item.Expired(created.Add(59 * time.Second)) {
		t.Error("expired before TTL elapsed")
	}
	if !item.Expired(created.Add(61 * time.Second)) {
		t.Error("not expired after TTL elapsed")
	}
	// Expiry is inclusive at the boundary.
	if !item.Expired(created.Add(60 * time.Second)) {
		t.Error("not expired exactly at TTL")
	}
}

func TestWorldStateValidAndTerminal(t *testing.T) {
	for _, s := range []WorldState{StateDisarmed, StateArmedIdle, StateArmedActive, StateFrozen, StateEnded} {
		if !s.Valid() {
			t.Errorf("%q not valid", s)
		}
	}
	if WorldState("ARMED").Valid() {
		t.Error("unknown state accepted")
	}
	if !StateEnded.Terminal() {
		t.Error("ENDED not terminal")
	}
	if StateFrozen.Terminal() {
		t.Error("FROZEN marked terminal")
	}
}
