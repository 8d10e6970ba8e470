package drift

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redstack/redmem/internal/model"
	"github.com/redstack/redmem/internal/store"
)

// MemoryWriter is the slice of the store the recorder needs.
type MemoryWriter interface {
	Put(ctx context.Context, d Draft) (*model.MemoryItem, error)
}

// Draft aliases the store draft so callers wire the recorder without an
// adapter.
type Draft = store.Draft

// Recorder diffs each observed snapshot against the previous one and
// persists findings as operational-scope memory items. It holds no
// reference to the state machine.
type Recorder struct {
	mu     sync.Mutex
	last   Snapshot
	writer MemoryWriter
	logger *slog.Logger
}

// NewRecorder builds a recorder with an empty baseline: the first Observe
// reports every entity as added unless Prime is called first.
func NewRecorder(w MemoryWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{writer: w, logger: logger}
}

// Prime sets the baseline snapshot without emitting findings.
func (r *Recorder) Prime(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = snap
}

// Observe diffs cur against the stored baseline, records each finding as
// an operational memory item and advances the baseline. A write failure is
// logged and skipped: losing a drift receipt must not block observation.
func (r *Recorder) Observe(ctx context.Context, cur Snapshot, traceID string) []Finding {
	r.mu.Lock()
	prev := r.last
	r.last = cur
	r.mu.Unlock()

	findings := Detect(prev, cur)
	if r.writer == nil {
		return findings
	}

	for _, f := range findings {
		data, _ := json.Marshal(f)
		_, err := r.writer.Put(ctx, Draft{
			Scope:      model.ScopeOperational,
			Kind:       "drift",
			Key:        "drift/" + f.Entity,
			Text:       f.Summary(),
			Data:       data,
			Source:     "drift-detector",
			Confidence: 0.6,
			TraceID:    traceID,
			Tags:       []string{"drift", f.Change},
		})
		if err != nil {
			r.logger.Warn("drift finding not recorded",
				"entity", f.Entity, "error", err, "trace_id", traceID)
		}
	}
	return findings
}
