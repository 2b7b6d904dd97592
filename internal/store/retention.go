package store

import (
	"context"
	"fmt"
	"time"
)

// Retention windows.
const (
	ActionHistoryRetention = 30 * 24 * time.Hour
	IncidentRetention      = 90 * 24 * time.Hour
	DeadLetterRetention    = 24 * time.Hour
)

// RunRetention cleans up old data according to retention policies
func (s *Store) RunRetention(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM action_history WHERE created_at < ?",
		now.Add(-ActionHistoryRetention).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete old actions: %w", err)
	}
	actions, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		"DELETE FROM incidents WHERE created_at < ?",
		now.Add(-IncidentRetention).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete old incidents: %w", err)
	}
	incidents, _ := res.RowsAffected()

	// resolved, or abandoned after giving up
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM dead_letters
		 WHERE (resolved_at IS NOT NULL AND resolved_at < ?)
		    OR (resolved_at IS NULL AND next_retry_at IS NULL AND created_at < ?)`,
		now.Add(-DeadLetterRetention).UnixMilli(),
		now.Add(-IncidentRetention).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete old dead letters: %w", err)
	}

	if actions > 0 || incidents > 0 {
		s.logger.Info().Int64("actions", actions).Int64("incidents", incidents).Msg("retention pass removed rows")
	}
	return nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	err = s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
