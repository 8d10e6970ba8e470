package store

import (
	"context"
	"database/sql"

	"github.com/redstack/redmem/internal/model"
)

// TraceView collects everything produced under one causal trace id.
// Memory items and world events live in independent tables that are never
// joined; a trace lookup runs both queries.
type TraceView struct {
	TraceID string             `json:"trace_id"`
	Items   []model.MemoryItem `json:"items"`
	Events  []model.WorldEvent `json:"events"`
	Audit   []model.AuditEntry `json:"audit"`
}

// Trace returns all artifacts correlated to traceID.
func (s *SQLiteStore) Trace(ctx context.Context, traceID string) (*TraceView, error) {
	if traceID == "" {
		return nil, ErrValidation
	}

	view := &TraceView{TraceID: traceID}

	items, err := s.Query(ctx, QueryParams{TraceID: traceID, IncludeExpired: true})
	if err != nil {
		return nil, err
	}
	view.Items = items

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, from_state, to_state, reason, actor, created_at, trace_id
		 FROM world_events
		 WHERE trace_id = ?
		 ORDER BY event_id ASC`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanWorldEvent(rows)
		if err != nil {
			return nil, err
		}
		view.Events = append(view.Events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	audit, err := s.tailByTrace(ctx, traceID)
	if err != nil {
		return nil, err
	}
	view.Audit = audit
	return view, nil
}

func (s *SQLiteStore) tailByTrace(ctx context.Context, traceID string) ([]model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, op, item_id, scope, from_state, to_state, actor, trace_id, detail, created_at
		 FROM audit_entries
		 WHERE trace_id = ?
		 ORDER BY seq ASC`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var itemID, scope, fromState, toState, actor, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.Seq, &e.Op, &itemID, &scope, &fromState, &toState,
			&actor, &e.TraceID, &detail, &createdAt); err != nil {
			return nil, err
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
