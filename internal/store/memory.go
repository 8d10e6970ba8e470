package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redstack/redmem/internal/approval"
	"github.com/redstack/redmem/internal/model"
)

const defaultQueryLimit = 100

// Put validates and persists one memory item together with its audit
// mirror in a single transaction. Canonical-scope drafts must carry an
// approval reference that verifies against the payload digest; a denied
// attempt is audited separately and nothing else is persisted.
func (s *SQLiteStore) Put(ctx context.Context, d Draft) (*model.MemoryItem, error) {
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	if d.Scope == model.ScopeCanonical {
		if err := s.authorizeCanonical(ctx, d); err != nil {
			return nil, err
		}
	}

	item := &model.MemoryItem{
		ID:          d.ID,
		Scope:       d.Scope,
		Kind:        d.Kind,
		Key:         d.Key,
		Text:        d.Text,
		Data:        d.Data,
		Source:      d.Source,
		Confidence:  d.Confidence,
		CreatedAt:   time.Now().UTC(),
		TTLSeconds:  d.TTLSeconds,
		TraceID:     d.TraceID,
		ApprovalRef: d.ApprovalRef,
		Tags:        d.Tags,
		Refs:        d.Refs,
	}
	if item.ID == "" {
		item.ID = s.newID()
	}
	if item.Kind == "" {
		item.Kind = "note"
	}
	if item.Source == "" {
		item.Source = "system"
	}

	var expiresAt interface{}
	if exp, ok := item.ExpiresAt(); ok {
		expiresAt = formatTime(exp)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_items
		 (id, scope, kind, key, text, data, source, confidence, created_at,
		  ttl_seconds, trace_id, approval_ref, tags, refs, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Scope), item.Kind, nullString(item.Key), item.Text,
		nullRaw(item.Data), item.Source, item.Confidence, formatTime(item.CreatedAt),
		nullInt(item.TTLSeconds), item.TraceID, nullString(item.ApprovalRef),
		marshalStrings(item.Tags), marshalStrings(item.Refs), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert item: %v", ErrUnavailable, err)
	}

	entry := model.AuditEntry{
		Op:        model.OpMemoryPut,
		ItemID:    item.ID,
		Scope:     item.Scope,
		Actor:     item.Source,
		TraceID:   item.TraceID,
		Detail:    item.Kind,
		CreatedAt: item.CreatedAt,
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
	return item, nil
}

func validateDraft(d Draft) error {
	if !d.Scope.Valid() {
		return fmt.Errorf("%w: unknown scope %q", ErrValidation, d.Scope)
	}
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if strings.TrimSpace(d.TraceID) == "" {
		return fmt.Errorf("%w: trace_id is required", ErrValidation)
	}
	if d.TTLSeconds < 0 {
		return fmt.Errorf("%w: ttl_seconds must be positive", ErrValidation)
	}
	if len(d.Data) > 0 && !json.Valid(d.Data) {
		return fmt.Errorf("%w: data is not valid JSON", ErrValidation)
	}
	return nil
}

// authorizeCanonical checks the approval reference against the draft's
// payload digest and records a denial audit entry on failure. The denial
// entry commits on its own: the write itself is never persisted.
func (s *SQLiteStore) authorizeCanonical(ctx context.Context, d Draft) error {
	digest := approval.PayloadDigest(string(d.Scope), d.Kind, d.Key, d.Text)

	var reason string
	switch {
	case d.ApprovalRef == "":
		reason = "canonical write without approval_ref"
	case s.verifier == nil:
		reason = "no approval verifier configured"
	default:
		if err := s.verifier.Verify(d.ApprovalRef, digest); err != nil {
			reason = err.Error()
		}
	}
	if reason == "" {
		return nil
	}

	s.auditDenied(ctx, d, reason)
	return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
}

func (s *SQLiteStore) auditDenied(ctx context.Context, d Draft, reason string) {
	entry := model.AuditEntry{
		Op:        model.OpMemoryDenied,
		Scope:     d.Scope,
		Actor:     d.Source,
		TraceID:   d.TraceID,
		Detail:    reason,
		CreatedAt: time.Now().UTC(),
	}
	seq, err := insertAuditDB(ctx, s.db, entry)
	if err != nil {
		s.logger.Warn("denial audit failed", "error", err, "trace_id", d.TraceID)
		return
	}
	entry.Seq = seq
	s.mirrorEntry(entry)
}

// Get retrieves one item by id. Expired items are still returned here;
// expiry filtering is a query concern.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.MemoryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memory_items WHERE id = ?`, id)
	item, err := scanMemoryItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	return item, nil
}

// Query returns items matching the filters, ordered by created_at
// ascending with insertion order breaking ties. Expired items are
// excluded unless IncludeExpired is set.
func (s *SQLiteStore) Query(ctx context.Context, p QueryParams) ([]model.MemoryItem, error) {
	where := []string{"1=1"}
	var args []interface{}

	if p.Scope != "" {
		if !p.Scope.Valid() {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrValidation, p.Scope)
		}
		where = append(where, "scope = ?")
		args = append(args, string(p.Scope))
	}
	if p.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, p.Kind)
	}
	if p.Key != "" {
		where = append(where, "key = ?")
		args = append(args, p.Key)
	}
	if p.TraceID != "" {
		where = append(where, "trace_id = ?")
		args = append(args, p.TraceID)
	}
	if p.Tag != "" {
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+p.Tag+`"%`)
	}
	if p.TextContains != "" {
		where = append(where, "text LIKE ?")
		args = append(args, "%"+p.TextContains+"%")
	}
	if !p.IncludeExpired {
		where = append(where, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, formatTime(time.Now()))
	}

	limit := p.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT `+memoryColumns+` FROM memory_items
		 WHERE %s
		 ORDER BY created_at ASC, rowid ASC
		 LIMIT ?`, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var items []model.MemoryItem
	for rows.Next() {
		item, err := scanMemoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

const memoryColumns = `id, scope, kind, key, text, data, source, confidence,
	created_at, ttl_seconds, trace_id, approval_ref, tags, refs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryItem(row scanner) (*model.MemoryItem, error) {
	var m model.MemoryItem
	var scope, createdAt string
	var key, data, approvalRef, tags, refs sql.NullString
	var ttl sql.NullInt64

	err := row.Scan(&m.ID, &scope, &m.Kind, &key, &m.Text, &data, &m.Source,
		&m.Confidence, &createdAt, &ttl, &m.TraceID, &approvalRef, &tags, &refs)
	if err != nil {
		return nil, err
	}

	m.Scope = model.Scope(scope)
	m.CreatedAt = parseTime(createdAt)
	if key.Valid {
		m.Key = key.String
	}
	if data.Valid {
		m.Data = json.RawMessage(data.String)
	}
	if ttl.Valid {
		m.TTLSeconds = int(ttl.Int64)
	}
	if approvalRef.Valid {
		m.ApprovalRef = approvalRef.String
	}
	if tags.Valid {
		json.Unmarshal([]byte(tags.String), &m.Tags)
	}
	if refs.Valid {
		json.Unmarshal([]byte(refs.String), &m.Refs)
	}
	return &m, nil
}

func marshalStrings(v []string) interface{} {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) interface{} {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func nullInt(n int) interface{} {
	if n <= 0 {
		return nil
	}
	return n
}
