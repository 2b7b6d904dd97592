package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// AppendAction records a completed action.
func (s *Store) AppendAction(ctx context.Context, o models.ActionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.At.IsZero() {
		o.At = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO action_history (kind, post_id, success, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?)
	`,
		string(o.Kind),
		sql.NullString{String: o.PostID, Valid: o.PostID != ""},
		boolInt(o.Success),
		o.Duration.Milliseconds(),
		o.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

// RecentActions returns actions recorded at or after since, oldest first.
// limit <= 0 means no limit.
func (s *Store) RecentActions(ctx context.Context, since time.Time, limit int) ([]models.ActionOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// newest N, re-ordered ascending
	query := `
	SELECT kind, post_id, success, duration_ms, created_at FROM (
		SELECT id, kind, post_id, success, duration_ms, created_at
		FROM action_history
		WHERE created_at >= ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{since.UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var out []models.ActionOutcome
	for rows.Next() {
		var (
			o          models.ActionOutcome
			kind       string
			postID     sql.NullString
			success    int
			durationMs int64
			createdAt  int64
		)
		if err := rows.Scan(&kind, &postID, &success, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		o.Kind = models.ActionKind(kind)
		o.PostID = postID.String
		o.Success = success != 0
		o.Duration = time.Duration(durationMs) * time.Millisecond
		o.At = time.UnixMilli(createdAt).UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return out, nil
}

// CountActionsSince counts actions of kind (all kinds when empty).
func (s *Store) CountActionsSince(ctx context.Context, kind models.ActionKind, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM action_history WHERE created_at >= ?`
	args := []any{since.UnixMilli()}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
