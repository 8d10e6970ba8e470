package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/redstack/redmem/internal/model"
)

// auditMirror appends committed audit entries to a JSONL file so the
// record survives independently of the primary database. Writes are best
// effort: a mirror failure is logged, never propagated.
type auditMirror struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	warned bool
}

func newAuditMirror(path string, logger *slog.Logger) *auditMirror {
	return &auditMirror{path: path, logger: logger}
}

func (m *auditMirror) append(entry model.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		m.warn(err)
		return
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		m.warn(err)
		return
	}
	defer f.Close()

	b, err := json.Marshal(entry)
	if err != nil {
		m.warn(err)
		return
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		m.warn(err)
		return
	}
	m.warned = false
}

// warn once per failure streak to keep a dead disk from flooding logs.
func (m *auditMirror) warn(err error) {
	if m.warned {
		return
	}
	m.warned = true
	m.logger.Warn("audit mirror append failed", "path", m.path, "error", err)
}
