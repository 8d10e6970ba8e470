package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. The same database file holds
// the memory items, the audit log, the world-state singleton, the
// world-event log and the entity registry, so an item write and its audit
// mirror commit in one transaction.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	verifier ApprovalVerifier
	mirror   *auditMirror
	logger   *slog.Logger
}

// Options configures a SQLiteStore.
type Options struct {
	// Verifier gates canonical-scope writes. With a nil verifier every
	// canonical write is denied.
	Verifier ApprovalVerifier
	// MirrorPath, when set, appends every audit entry to a JSONL file
	// after commit. Best effort: a mirror failure never fails the write.
	MirrorPath string
	Logger     *slog.Logger
}

// New opens or creates the database at dbPath and applies the schema.
// A missing or corrupted world-state singleton is fatal here, not at
// first use.
func New(dbPath string, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &SQLiteStore{
		db:       db,
		path:     dbPath,
		verifier: opts.Verifier,
		logger:   logger,
	}
	if opts.MirrorPath != "" {
		s.mirror = newAuditMirror(opts.MirrorPath, logger)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedWorldState(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed world state: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	return ulid.Make().String()
}

// NewTraceID mints a trace id for operations arriving without one.
func (s *SQLiteStore) NewTraceID() string {
	return "trace-" + s.newID()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_items (
		id           TEXT PRIMARY KEY,
		scope        TEXT NOT NULL,
		kind         TEXT NOT NULL,
		key          TEXT,
		text         TEXT NOT NULL,
		data         TEXT,
		source       TEXT NOT NULL,
		confidence   REAL NOT NULL DEFAULT 0.8,
		created_at   TEXT NOT NULL,
		ttl_seconds  INTEGER,
		trace_id     TEXT NOT NULL,
		approval_ref TEXT,
		tags         TEXT,
		refs         TEXT,
		expires_at   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memory_scope_kind ON memory_items(scope, kind);
	CREATE INDEX IF NOT EXISTS idx_memory_expires ON memory_items(expires_at);
	CREATE INDEX IF NOT EXISTS idx_memory_key ON memory_items(key);
	CREATE INDEX IF NOT EXISTS idx_memory_created ON memory_items(created_at);
	CREATE INDEX IF NOT EXISTS idx_memory_trace ON memory_items(trace_id);

	CREATE TABLE IF NOT EXISTS audit_entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		op         TEXT NOT NULL,
		item_id    TEXT,
		scope      TEXT,
		from_state TEXT,
		to_state   TEXT,
		actor      TEXT,
		trace_id   TEXT NOT NULL,
		detail     TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_trace ON audit_entries(trace_id);

	CREATE TABLE IF NOT EXISTS world_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		state      TEXT NOT NULL,
		reason     TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT NOT NULL,
		version    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_events (
		event_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		from_state TEXT NOT NULL,
		to_state   TEXT NOT NULL,
		reason     TEXT NOT NULL,
		actor      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		trace_id   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_world_events_created ON world_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_world_events_trace ON world_events(trace_id);

	CREATE TABLE IF NOT EXISTS world_entities (
		entity_id TEXT PRIMARY KEY,
		kind      TEXT NOT NULL,
		name      TEXT NOT NULL,
		attrs     TEXT,
		status    TEXT NOT NULL DEFAULT 'UNKNOWN',
		last_seen TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Ping reports whether the persistence layer is reachable.
func (s *SQLiteStore) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Fixed-width timestamps so that string comparison in SQL matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimeNow() string {
	return formatTime(time.Now())
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
