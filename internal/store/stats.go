package store

import (
	"context"
	"fmt"
	"os"
)

// Stats holds store-wide counters.
type Stats struct {
	DBPath      string      `json:"db_path"`
	DBSizeBytes int64       `json:"db_size_bytes"`
	TotalItems  int         `json:"total_items"`
	ActiveItems int         `json:"active_items"`
	AuditCount  int         `json:"audit_count"`
	EventCount  int         `json:"event_count"`
	Scopes      []ScopeStat `json:"scopes"`
}

// ScopeStat holds per-(scope,kind) counts.
type ScopeStat struct {
	Scope string `json:"scope"`
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Stats returns counts per scope/kind plus log sizes. Active excludes
// expired items.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_items`).Scan(&st.TotalItems); err != nil {
		return nil, fmt.Errorf("%w: stats: %v", ErrUnavailable, err)
	}
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_items WHERE expires_at IS NULL OR expires_at > ?`,
		formatTimeNow()).Scan(&st.ActiveItems)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&st.AuditCount)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM world_events`).Scan(&st.EventCount)

	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, kind, COUNT(*) AS cnt
		FROM memory_items
		GROUP BY scope, kind
		ORDER BY cnt DESC`)
	if err != nil {
		return st, fmt.Errorf("%w: scope stats: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc ScopeStat
		rows.Scan(&sc.Scope, &sc.Kind, &sc.Count)
		st.Scopes = append(st.Scopes, sc)
	}
	return st, rows.Err()
}
