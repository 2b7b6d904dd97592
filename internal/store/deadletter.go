package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeadLetter is an alert that could not be delivered.
type DeadLetter struct {
	ID          string
	Target      string
	Severity    string
	Message     string
	Error       string
	CreatedAt   time.Time
	RetryCount  int
	NextRetryAt time.Time // zero = give up
	ResolvedAt  time.Time // zero = unresolved
}

// SaveDeadLetter saves a dead letter
func (s *Store) SaveDeadLetter(ctx context.Context, dl *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO dead_letters (
		id, target, severity, message, error,
		created_at, retry_count, next_retry_at, resolved_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		dl.ID, dl.Target, dl.Severity, dl.Message, dl.Error,
		dl.CreatedAt.UnixMilli(), dl.RetryCount, toMillis(dl.NextRetryAt), toMillis(dl.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return nil
}

// ListRetryable returns unresolved dead letters ready for retry
func (s *Store) ListRetryable(ctx context.Context, limit int) ([]*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, target, severity, message, error,
	       created_at, retry_count, next_retry_at, resolved_at
	FROM dead_letters
	WHERE next_retry_at <= ? AND resolved_at IS NULL
	ORDER BY next_retry_at ASC
	`

	args := []any{s.now().UnixMilli()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable dead letters: %w", err)
	}
	defer rows.Close()

	var dls []*DeadLetter
	for rows.Next() {
		dl := &DeadLetter{}
		var createdAt int64
		var nextRetry, resolved sql.NullInt64

		err := rows.Scan(
			&dl.ID, &dl.Target, &dl.Severity, &dl.Message, &dl.Error,
			&createdAt, &dl.RetryCount, &nextRetry, &resolved,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.CreatedAt = time.UnixMilli(createdAt).UTC()
		dl.NextRetryAt = fromMillis(nextRetry)
		dl.ResolvedAt = fromMillis(resolved)

		dls = append(dls, dl)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}

	return dls, nil
}

// IncrementRetry bumps the retry count and schedules the next attempt.
// A zero nextRetryAt gives up on the letter.
func (s *Store) IncrementRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
	UPDATE dead_letters
	SET retry_count = retry_count + 1, next_retry_at = ?, error = ?
	WHERE id = ?
	`, toMillis(nextRetryAt), lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dead letter not found: %s", id)
	}

	return nil
}

// ResolveDeadLetter marks a dead letter as resolved
func (s *Store) ResolveDeadLetter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `UPDATE dead_letters SET resolved_at = ? WHERE id = ?`, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("dead letter not found: %s", id)
	}

	return nil
}
