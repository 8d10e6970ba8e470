package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redstack/redmem/internal/model"
)

const maxTailLimit = 500

// execer covers both *sql.DB and *sql.Tx so audit inserts can join a
// caller's transaction or commit standalone (denials).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertAudit(ctx context.Context, e execer, entry model.AuditEntry) (int64, error) {
	res, err := e.ExecContext(ctx,
		`INSERT INTO audit_entries
		 (op, item_id, scope, from_state, to_state, actor, trace_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Op, nullString(entry.ItemID), nullString(string(entry.Scope)),
		nullString(entry.FromState), nullString(entry.ToState),
		nullString(entry.Actor), entry.TraceID, nullString(entry.Detail),
		formatTime(entry.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertAuditDB(ctx context.Context, db *sql.DB, entry model.AuditEntry) (int64, error) {
	return insertAudit(ctx, db, entry)
}

// Tail returns the most recent audit entries, newest first. The limit is
// clamped; there is no way to update or delete entries.
func (s *SQLiteStore) Tail(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxTailLimit {
		limit = maxTailLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, item_id, scope, from_state, to_state, actor, trace_id, detail, created_at
		 FROM audit_entries
		 ORDER BY seq DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: audit tail: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var itemID, scope, fromState, toState, actor, detail sql.NullString
		var createdAt string
		err := rows.Scan(&e.Seq, &e.Op, &itemID, &scope, &fromState, &toState,
			&actor, &e.TraceID, &detail, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: scan audit: %v", ErrUnavailable, err)
		}
		e.ItemID = itemID.String
		e.Scope = model.Scope(scope.String)
		e.FromState = fromState.String
		e.ToState = toState.String
		e.Actor = actor.String
		e.Detail = detail.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AuditCount returns the total number of audit entries.
func (s *SQLiteStore) AuditCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: audit count: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (s *SQLiteStore) mirrorEntry(entry model.AuditEntry) {
	if s.mirror != nil {
		s.mirror.append(entry)
	}
}
