package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redstack/redmem/internal/model"
)

const worldStateRowID = 1

// seedWorldState inserts the singleton row on first boot. Exactly one row
// exists at all times; the CHECK constraint pins its id.
func (s *SQLiteStore) seedWorldState() error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO world_state (id, state, reason, updated_at, updated_by, version)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		worldStateRowID, string(model.StateDisarmed), "boot default",
		formatTime(time.Now()), "system")
	if err != nil {
		return err
	}

	// A missing or duplicated singleton is a fatal schema condition.
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM world_state`).Scan(&n); err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("world_state has %d rows, want exactly 1", n)
	}
	return nil
}

// WorldSnapshot reads the current value of the singleton row.
func (s *SQLiteStore) WorldSnapshot(ctx context.Context) (model.WorldSnapshot, error) {
	var snap model.WorldSnapshot
	var state, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, reason, updated_at, updated_by, version FROM world_state WHERE id = ?`,
		worldStateRowID).
		Scan(&state, &snap.Reason, &updatedAt, &snap.UpdatedBy, &snap.Version)
	if err != nil {
		return snap, fmt.Errorf("%w: world snapshot: %v", ErrUnavailable, err)
	}
	snap.State = model.WorldState(state)
	snap.UpdatedAt = parseTime(updatedAt)
	return snap, nil
}

// ApplyTransition updates the singleton row, appends the transition event
// and mirrors the audit entry in one transaction. The UPDATE is guarded by
// the snapshot's version: a concurrent transition that committed first
// makes the guard miss and the whole unit rolls back with ErrConflict.
func (s *SQLiteStore) ApplyTransition(ctx context.Context, from model.WorldSnapshot, to model.WorldState, reason, actor, traceID string) (*model.WorldEvent, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE world_state
		 SET state = ?, reason = ?, updated_at = ?, updated_by = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		string(to), reason, formatTime(now), actor, worldStateRowID, from.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: update state: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: rows affected: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: concurrent transition from %s", ErrConflict, from.State)
	}

	evRes, err := tx.ExecContext(ctx,
		`INSERT INTO world_events (from_state, to_state, reason, actor, created_at, trace_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(from.State), string(to), reason, actor, formatTime(now), nullString(traceID))
	if err != nil {
		return nil, fmt.Errorf("%w: insert event: %v", ErrUnavailable, err)
	}
	eventID, err := evRes.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: event id: %v", ErrUnavailable, err)
	}

	entry := model.AuditEntry{
		Op:        model.OpWorldTransition,
		FromState: string(from.State),
		ToState:   string(to),
		Actor:     actor,
		TraceID:   traceID,
		Detail:    reason,
		CreatedAt: now,
	}
	seq, err := insertAudit(ctx, tx, entry)
	if err != nil {
		return nil, fmt.Errorf("%w: audit mirror: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}

	entry.Seq = seq
	s.mirrorEntry(entry)

	return &model.WorldEvent{
		EventID:   eventID,
		FromState: from.State,
		ToState:   to,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: now,
		TraceID:   traceID,
	}, nil
}

// WorldEvents returns the most recent transition events, newest first.
func (s *SQLiteStore) WorldEvents(ctx context.Context, limit int) ([]model.WorldEvent, error) {
	if limit <= 0 {
		limit = 25
	}
	if limit > maxTailLimit {
		limit = maxTailLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, from_state, to_state, reason, actor, created_at, trace_id
		 FROM world_events
		 ORDER BY event_id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: world events: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var events []model.WorldEvent
	for rows.Next() {
		ev, err := scanWorldEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrUnavailable, err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func scanWorldEvent(row scanner) (*model.WorldEvent, error) {
	var ev model.WorldEvent
	var from, to, createdAt string
	var traceID sql.NullString
	err := row.Scan(&ev.EventID, &from, &to, &ev.Reason, &ev.Actor, &createdAt, &traceID)
	if err != nil {
		return nil, err
	}
	ev.FromState = model.WorldState(from)
	ev.ToState = model.WorldState(to)
	ev.CreatedAt = parseTime(createdAt)
	ev.TraceID = traceID.String
	return &ev, nil
}

// UpsertEntity creates or replaces one entity row and stamps last_seen.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, e model.Entity) (*model.Entity, error) {
	if e.EntityID == "" {
		return nil, fmt.Errorf("%w: entity_id is required", ErrValidation)
	}
	if e.Kind == "" {
		e.Kind = "service"
	}
	if e.Name == "" {
		e.Name = e.EntityID
	}
	if e.Status == "" {
		e.Status = "UNKNOWN"
	}
	e.LastSeen = time.Now().UTC()

	var attrs interface{}
	if len(e.Attrs) > 0 {
		b, _ := json.Marshal(e.Attrs)
		attrs = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO world_entities (entity_id, kind, name, attrs, status, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET
		   kind = excluded.kind, name = excluded.name, attrs = excluded.attrs,
		   status = excluded.status, last_seen = excluded.last_seen`,
		e.EntityID, e.Kind, e.Name, attrs, e.Status, formatTime(e.LastSeen))
	if err != nil {
		return nil, fmt.Errorf("%w: upsert entity: %v", ErrUnavailable, err)
	}
	return &e, nil
}

// ListEntities returns entities ordered by id.
func (s *SQLiteStore) ListEntities(ctx context.Context, limit int) ([]model.Entity, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, kind, name, attrs, status, last_seen
		 FROM world_entities
		 ORDER BY entity_id ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list entities: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		var attrs sql.NullString
		var lastSeen string
		if err := rows.Scan(&e.EntityID, &e.Kind, &e.Name, &attrs, &e.Status, &lastSeen); err != nil {
			return nil, fmt.Errorf("%w: scan entity: %v", ErrUnavailable, err)
		}
		if attrs.Valid {
			json.Unmarshal([]byte(attrs.String), &e.Attrs)
		}
		e.LastSeen = parseTime(lastSeen)
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// EntitySnapshot flattens the registry into entity -> attribute map form
// for the drift detector. Status is folded in as a synthetic attribute so
// a status flap shows up as drift.
func (s *SQLiteStore) EntitySnapshot(ctx context.Context) (map[string]map[string]string, error) {
	entities, err := s.ListEntities(ctx, maxTailLimit)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]map[string]string, len(entities))
	for _, e := range entities {
		attrs := make(map[string]string, len(e.Attrs)+1)
		for k, v := range e.Attrs {
			attrs[k] = v
		}
		attrs["status"] = e.Status
		snap[e.EntityID] = attrs
	}
	return snap, nil
}
