package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// SaveIncident persists an incident, assigning an ID and timestamp when
// missing.
func (s *Store) SaveIncident(ctx context.Context, inc *models.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	signals, err := json.Marshal(inc.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode incident signals: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = s.now()
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO incidents (id, level, action, reason, signals, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, inc.ID, inc.Level.String(), string(inc.Action), inc.Reason, string(signals), inc.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// ListIncidents returns the newest incidents first.
func (s *Store) ListIncidents(ctx context.Context, limit int) ([]models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, level, action, reason, signals, created_at
	FROM incidents ORDER BY created_at DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		var (
			inc       models.Incident
			level     string
			action    string
			signals   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&inc.ID, &level, &action, &inc.Reason, &signals, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.Level = models.ParseAlertLevel(level)
		inc.Action = models.RecommendedAction(action)
		inc.CreatedAt = time.UnixMilli(createdAt).UTC()
		if signals.Valid && signals.String != "" && signals.String != "null" {
			if err := json.Unmarshal([]byte(signals.String), &inc.Signals); err != nil {
				s.logger.Warn().Err(err).Str("incident_id", inc.ID).Msg("undecodable incident signals")
			}
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}
	return out, nil
}
