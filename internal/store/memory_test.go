package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/redstack/redmem/internal/approval"
	"github.com/redstack/redmem/internal/model"
)

const testSecret = "unit-test-signing-secret"

func newTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "redmem.db"), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVerifier(t *testing.T) *approval.Verifier {
	t.Helper()
	v, err := approval.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestPutAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	draft := Draft{
		Scope:      model.ScopeOperational,
		Kind:       "observation",
		Key:        "svc/api",
		Text:       "api responded in 42ms",
		Data:       json.RawMessage(`{"latency_ms":42}`),
		Source:     "probe",
		Confidence: 0.9,
		TraceID:    "trace-1",
		Tags:       []string{"latency", "api"},
		Refs:       []string{"01ABC"},
	}
	item, err := s.Put(ctx, draft)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if item.ID == "" {
		t.Fatal("Put assigned no id")
	}

	got, err := s.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != draft.Text || got.Key != draft.Key || got.Kind != draft.Kind {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Scope != model.ScopeOperational {
		t.Errorf("scope = %q, want operational", got.Scope)
	}
	if !reflect.DeepEqual(got.Tags, draft.Tags) {
		t.Errorf("tags = %v, want %v", got.Tags, draft.Tags)
	}
	if !reflect.DeepEqual(got.Refs, draft.Refs) {
		t.Errorf("refs = %v, want %v", got.Refs, draft.Refs)
	}
	// Payloads are stored verbatim, not re-encoded.
	if !bytes.Equal(got.Data, draft.Data) {
		t.Errorf("data = %s, want %s byte for byte", got.Data, draft.Data)
	}
}

func TestPutValidation(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name  string
		draft Draft
	}{
		{"unknown scope", Draft{Scope: "mystery", Text: "x", TraceID: "t"}},
		{"empty text", Draft{Scope: model.ScopeOperational, Text: "  ", TraceID: "t"}},
		{"missing trace", Draft{Scope: model.ScopeOperational, Text: "x"}},
		{"negative ttl", Draft{Scope: model.ScopeOperational, Text: "x", TraceID: "t", TTLSeconds: -5}},
		{"bad data json", Draft{Scope: model.ScopeOperational, Text: "x", TraceID: "t", Data: json.RawMessage(`{broken`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Put(ctx, tt.draft); !errors.Is(err, ErrValidation) {
				t.Errorf("Put = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCanonicalRequiresApproval(t *testing.T) {
	s := newTestStore(t, Options{Verifier: testVerifier(t)})
	ctx := context.Background()

	_, err := s.Put(ctx, Draft{
		Scope:   model.ScopeCanonical,
		Kind:    "fact",
		Key:     "target/host",
		Text:    "host is in scope",
		TraceID: "trace-deny",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Put without approval = %v, want ErrUnauthorized", err)
	}

	// The denied write leaves no item behind, only a denial audit entry.
	items, err := s.Query(ctx, QueryParams{Scope: model.ScopeCanonical})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("denied write persisted %d items", len(items))
	}

	entries, err := s.Tail(ctx, 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != model.OpMemoryDenied {
		t.Fatalf("audit tail = %+v, want one memory.denied entry", entries)
	}
	if entries[0].TraceID != "trace-deny" {
		t.Errorf("denial trace_id = %q", entries[0].TraceID)
	}
}

func TestCanonicalWithValidApproval(t *testing.T) {
	s := newTestStore(t, Options{Verifier: testVerifier(t)})
	ctx := context.Background()

	draft := Draft{
		Scope:   model.ScopeCanonical,
		Kind:    "fact",
		Key:     "target/host",
		Text:    "host is in scope",
		TraceID: "trace-ok",
	}
	digest := approval.PayloadDigest(string(draft.Scope), draft.Kind, draft.Key, draft.Text)
	ref, err := approval.Issue(testSecret, digest, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	draft.ApprovalRef = ref

	item, err := s.Put(ctx, draft)
	if err != nil {
		t.Fatalf("Put with approval: %v", err)
	}
	if item.ApprovalRef != ref {
		t.Errorf("approval_ref not persisted")
	}

	// Replaying the same reference must fail: approvals are single use.
	draft.ApprovalRef = ref
	if _, err := s.Put(ctx, draft); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replayed approval = %v, want ErrUnauthorized", err)
	}
}

func TestCanonicalApprovalBoundToPayload(t *testing.T) {
	s := newTestStore(t, Options{Verifier: testVerifier(t)})
	ctx := context.Background()

	digest := approval.PayloadDigest("canonical", "fact", "k", "approved text")
	ref, err := approval.Issue(testSecret, digest, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Same reference, different text: the digest no longer matches.
	_, err = s.Put(ctx, Draft{
		Scope:       model.ScopeCanonical,
		Kind:        "fact",
		Key:         "k",
		Text:        "tampered text",
		TraceID:     "trace-tamper",
		ApprovalRef: ref,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("tampered payload = %v, want ErrUnauthorized", err)
	}
}

func TestCanonicalDeniedWithoutVerifier(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.Put(ctx, Draft{
		Scope:       model.ScopeCanonical,
		Text:        "x",
		TraceID:     "t",
		ApprovalRef: "v1.whatever.1.2.3",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Put without verifier = %v, want ErrUnauthorized", err)
	}
}

func TestEveryWriteHasAuditEntry(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Put(ctx, Draft{
			Scope:   model.ScopeOperational,
			Text:    "obs",
			TraceID: "trace-pair",
		})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	n, err := s.AuditCount(ctx)
	if err != nil {
		t.Fatalf("AuditCount: %v", err)
	}
	if n != 5 {
		t.Fatalf("audit count = %d, want 5", n)
	}

	entries, err := s.Tail(ctx, 100)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	for _, e := range entries {
		if e.Op != model.OpMemoryPut {
			t.Errorf("unexpected op %q", e.Op)
		}
		if e.ItemID == "" {
			t.Errorf("audit entry without item id: %+v", e)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	put := func(scope model.Scope, kind, key, text, trace string, tags ...string) {
		t.Helper()
		if _, err := s.Put(ctx, Draft{
			Scope: scope, Kind: kind, Key: key, Text: text, TraceID: trace, Tags: tags,
		}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put(model.ScopeOperational, "observation", "a", "alpha event", "t1", "net")
	put(model.ScopeOperational, "drift", "b", "beta drift", "t1", "drift")
	put(model.ScopeSemantic, "recall", "c", "gamma recall", "t2")

	tests := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"by scope", QueryParams{Scope: model.ScopeOperational}, 2},
		{"by kind", QueryParams{Kind: "drift"}, 1},
		{"by key", QueryParams{Key: "a"}, 1},
		{"by trace", QueryParams{TraceID: "t1"}, 2},
		{"by tag", QueryParams{Tag: "net"}, 1},
		{"by text", QueryParams{TextContains: "gamma"}, 1},
		{"limit", QueryParams{Limit: 2}, 2},
		{"no match", QueryParams{Key: "zzz"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := s.Query(ctx, tt.params)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("got %d items, want %d", len(items), tt.want)
			}
		})
	}
}

func TestQueryOrderedOldestFirst(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		if _, err := s.Put(ctx, Draft{Scope: model.ScopeOperational, Text: text, TraceID: "t"}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	items, err := s.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items", len(items))
	}
	for i, want := range []string{"first", "second", "third"} {
		if items[i].Text != want {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Text, want)
		}
	}
}

func TestTTLExpiry(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	item, err := s.Put(ctx, Draft{
		Scope:      model.ScopeOperational,
		Text:       "short lived",
		TraceID:    "t",
		TTLSeconds: 1,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	items, err := s.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("fresh item filtered out: got %d items", len(items))
	}

	time.Sleep(1200 * time.Millisecond)

	items, err = s.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expired item still visible: %+v", items)
	}

	// The row survives for audit; IncludeExpired and Get still see it.
	items, err = s.Query(ctx, QueryParams{IncludeExpired: true})
	if err != nil {
		t.Fatalf("Query include_expired: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("include_expired hid the item")
	}
	if _, err := s.Get(ctx, item.ID); err != nil {
		t.Fatalf("Get expired item: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t, Options{})
	if _, err := s.Get(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Put(ctx, Draft{Scope: model.ScopeOperational, Text: "x", TraceID: "t"}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if _, err := s.Put(ctx, Draft{Scope: model.ScopeSemantic, Kind: "recall", Text: "y", TraceID: "t"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalItems != 4 {
		t.Errorf("TotalItems = %d, want 4", st.TotalItems)
	}
	if st.AuditCount != 4 {
		t.Errorf("AuditCount = %d, want 4", st.AuditCount)
	}
	if len(st.Scopes) != 2 {
		t.Errorf("Scopes = %+v, want 2 groups", st.Scopes)
	}
}
