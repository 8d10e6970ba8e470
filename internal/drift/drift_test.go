package drift

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/redstack/redmem/internal/model"
)

func TestDetectIdenticalSnapshots(t *testing.T) {
	snap := Snapshot{"svc1": {"version": "1.0", "status": "UP"}}
	if findings := Detect(snap, snap); len(findings) != 0 {
		t.Fatalf("identical snapshots produced findings: %+v", findings)
	}
}

func TestDetectAttributeChange(t *testing.T) {
	prev := Snapshot{"svc1": {"version": "1.0", "status": "UP"}}
	cur := Snapshot{"svc1": {"version": "2.0", "status": "UP"}}

	findings := Detect(prev, cur)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	f := findings[0]
	if f.Entity != "svc1" || f.Change != AttrsChanged {
		t.Fatalf("finding = %+v", f)
	}
	want := []Delta{{Attr: "version", Previous: "1.0", Current: "2.0"}}
	if !reflect.DeepEqual(f.Deltas, want) {
		t.Fatalf("deltas = %+v, want %+v", f.Deltas, want)
	}
}

func TestDetectAddedAndRemoved(t *testing.T) {
	prev := Snapshot{"old": {"status": "UP"}}
	cur := Snapshot{"new": {"status": "UP"}}

	findings := Detect(prev, cur)
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(findings))
	}
	// Sorted by entity id: "new" before "old".
	if findings[0].Entity != "new" || findings[0].Change != EntityAdded {
		t.Errorf("findings[0] = %+v", findings[0])
	}
	if findings[1].Entity != "old" || findings[1].Change != EntityRemoved {
		t.Errorf("findings[1] = %+v", findings[1])
	}
}

func TestDetectAttrAddAndRemove(t *testing.T) {
	prev := Snapshot{"svc1": {"a": "1", "b": "2"}}
	cur := Snapshot{"svc1": {"a": "1", "c": "3"}}

	findings := Detect(prev, cur)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	want := []Delta{
		{Attr: "b", Previous: "2"},
		{Attr: "c", Current: "3"},
	}
	if !reflect.DeepEqual(findings[0].Deltas, want) {
		t.Fatalf("deltas = %+v, want %+v", findings[0].Deltas, want)
	}
}

func TestFindingSummary(t *testing.T) {
	tests := []struct {
		finding Finding
		want    string
	}{
		{Finding{Entity: "svc1", Change: EntityAdded}, "entity svc1 appeared"},
		{Finding{Entity: "svc1", Change: EntityRemoved}, "entity svc1 disappeared"},
		{
			Finding{Entity: "svc1", Change: AttrsChanged, Deltas: []Delta{
				{Attr: "version", Previous: "1.0", Current: "2.0"},
			}},
			`entity svc1 changed: version: "1.0" -> "2.0"`,
		},
	}
	for _, tt := range tests {
		if got := tt.finding.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

type captureWriter struct {
	drafts []Draft
	err    error
}

func (w *captureWriter) Put(_ context.Context, d Draft) (*model.MemoryItem, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.drafts = append(w.drafts, d)
	return &model.MemoryItem{ID: "x"}, nil
}

func TestRecorderWritesOperationalFindings(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(w, nil)
	ctx := context.Background()

	r.Prime(Snapshot{"svc1": {"version": "1.0"}})
	findings := r.Observe(ctx, Snapshot{"svc1": {"version": "2.0"}}, "trace-d1")
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if len(w.drafts) != 1 {
		t.Fatalf("got %d writes, want 1", len(w.drafts))
	}

	d := w.drafts[0]
	if d.Scope != model.ScopeOperational {
		t.Errorf("scope = %q, want operational", d.Scope)
	}
	if d.Kind != "drift" || d.Key != "drift/svc1" || d.Source != "drift-detector" {
		t.Errorf("draft = %+v", d)
	}
	if d.TraceID != "trace-d1" {
		t.Errorf("trace_id = %q", d.TraceID)
	}
	if !strings.Contains(d.Text, "svc1") {
		t.Errorf("text = %q", d.Text)
	}
}

func TestRecorderAdvancesBaseline(t *testing.T) {
	r := NewRecorder(nil, nil)
	ctx := context.Background()

	snap := Snapshot{"svc1": {"status": "UP"}}
	r.Prime(snap)
	if findings := r.Observe(ctx, snap, "t"); len(findings) != 0 {
		t.Fatalf("unchanged snapshot produced findings: %+v", findings)
	}

	changed := Snapshot{"svc1": {"status": "DOWN"}}
	if findings := r.Observe(ctx, changed, "t"); len(findings) != 1 {
		t.Fatalf("change not detected")
	}
	// Baseline moved: the same snapshot again is quiet.
	if findings := r.Observe(ctx, changed, "t"); len(findings) != 0 {
		t.Fatalf("baseline did not advance")
	}
}

func TestRecorderWriteFailureDoesNotBlock(t *testing.T) {
	w := &captureWriter{err: errors.New("db locked")}
	r := NewRecorder(w, nil)

	r.Prime(Snapshot{})
	findings := r.Observe(context.Background(), Snapshot{"svc1": {"status": "UP"}}, "t")
	if len(findings) != 1 {
		t.Fatalf("findings suppressed by write failure: %+v", findings)
	}
}
